package handlers

import (
	"errors"
	"net/http"

	"ticket-checkout/internal/services"
	"ticket-checkout/internal/utils"

	"github.com/gin-gonic/gin"
)

// respondError maps the service error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, message string, err error) {
	var status int
	switch {
	case errors.Is(err, services.ErrCapacityExceeded),
		errors.Is(err, services.ErrEventDeleted),
		errors.Is(err, services.ErrTicketTypeLocked),
		errors.Is(err, services.ErrTicketOrdered),
		errors.Is(err, services.ErrCheckoutInProgress):
		status = http.StatusConflict
	case errors.Is(err, services.ErrEventNotFound),
		errors.Is(err, services.ErrTicketTypeNotFound),
		errors.Is(err, services.ErrTicketNotFound),
		errors.Is(err, services.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrInvalidTicketType),
		errors.Is(err, services.ErrInvalidTicket),
		errors.Is(err, services.ErrMissingEmail):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrMissingBuyer):
		status = http.StatusUnauthorized
	case errors.Is(err, services.ErrGatewayUnavailable):
		status = http.StatusServiceUnavailable
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse(message, "internal error"))
		return
	}
	c.JSON(status, utils.ErrorResponse(message, err.Error()))
}
