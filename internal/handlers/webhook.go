package handlers

import (
	"io"
	"net/http"

	"ticket-checkout/internal/services"
	"ticket-checkout/internal/utils"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	reconciler *services.Reconciler
}

func NewWebhookHandler(reconciler *services.Reconciler) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// PaymentConfirmation passes the raw body to the reconciler; the signature
// covers the exact bytes the gateway sent.
func (h *WebhookHandler) PaymentConfirmation(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Unreadable webhook body", err.Error()))
		return
	}

	status, err := h.reconciler.Handle(c.Request.Context(), body, c.GetHeader(h.reconciler.SignatureHeader()))
	if err != nil {
		detail := err.Error()
		if status >= http.StatusInternalServerError {
			c.Error(err)
			detail = "internal error"
		}
		c.JSON(status, utils.ErrorResponse("Payment confirmation rejected", detail))
		return
	}

	c.JSON(status, utils.SuccessResponse("Payment confirmation accepted", nil))
}
