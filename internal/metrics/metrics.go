package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_reservations_total",
			Help: "Ticket reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	reservedSeats = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticket_reserved_seats_total",
			Help: "Seats reserved across all ticket types",
		},
	)

	ordersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_orders_total",
			Help: "Checkout attempts by outcome",
		},
		[]string{"outcome"},
	)

	gatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_request_duration_seconds",
			Help:    "Duration of payment gateway initialize calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"provider", "outcome"},
	)

	webhooks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Payment confirmation deliveries by response status",
		},
		[]string{"status"},
	)

	inventoryDrift = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ticket_inventory_drift",
			Help: "Difference between stored sold counters and ticket sums at the last reconcile",
		},
		[]string{"ticket_type_id"},
	)
)

func TrackReservation(outcome string, quantity int) {
	reservations.WithLabelValues(outcome).Inc()
	if outcome == "reserved" {
		reservedSeats.Add(float64(quantity))
	}
}

func TrackOrder(outcome string) {
	ordersCreated.WithLabelValues(outcome).Inc()
}

func TrackGateway(provider, outcome string, d time.Duration) {
	gatewayLatency.WithLabelValues(provider, outcome).Observe(d.Seconds())
}

func TrackWebhook(status int) {
	webhooks.WithLabelValues(statusLabel(status)).Inc()
}

func SetDrift(ticketTypeID string, drift int) {
	inventoryDrift.WithLabelValues(ticketTypeID).Set(float64(drift))
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 200 && status < 300:
		return "2xx"
	default:
		return "other"
	}
}
