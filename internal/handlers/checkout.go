package handlers

import (
	"net/http"

	"ticket-checkout/internal/middleware"
	"ticket-checkout/internal/services"
	"ticket-checkout/internal/utils"

	"github.com/gin-gonic/gin"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type CheckoutHandler struct {
	checkout *services.CheckoutService
}

func NewCheckoutHandler(checkout *services.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

type checkoutRequest struct {
	TicketIDs []string `json:"ticketIds" binding:"required,min=1"`
}

func (h *CheckoutHandler) Checkout(c *gin.Context) {
	buyer, ok := middleware.BuyerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Buyer identity required", ""))
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	order, err := h.checkout.CreateOrder(c.Request.Context(), services.CheckoutRequest{
		TicketIDs:      req.TicketIDs,
		Buyer:          buyer,
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
	})
	if err != nil {
		respondError(c, "Checkout failed", err)
		return
	}

	c.JSON(http.StatusCreated, utils.SuccessResponse("Order created", order))
}

func (h *CheckoutHandler) GetOrder(c *gin.Context) {
	order, err := h.checkout.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to retrieve order", err)
		return
	}
	if buyer, ok := middleware.BuyerFrom(c); ok && order.BuyerID != buyer.ID {
		c.JSON(http.StatusNotFound, utils.ErrorResponse("Failed to retrieve order", services.ErrOrderNotFound.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Order retrieved", order))
}
