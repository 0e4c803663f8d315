package handlers

import (
	"net/http"

	"ticket-checkout/internal/middleware"
	"ticket-checkout/internal/models"
	"ticket-checkout/internal/services"
	"ticket-checkout/internal/utils"

	"github.com/gin-gonic/gin"
)

type InventoryHandler struct {
	inventory *services.InventoryService
}

func NewInventoryHandler(inventory *services.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventory: inventory}
}

type reserveTicketRequest struct {
	TicketTypeID string               `json:"ticketTypeId" binding:"required"`
	EventID      string               `json:"eventId"`
	Quantity     int                  `json:"quantity" binding:"max=2147483647"`
	OwnerDetails *models.OwnerDetails `json:"ownerDetails"`
}

func (h *InventoryHandler) ReserveTicket(c *gin.Context) {
	buyer, ok := middleware.BuyerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Buyer identity required", ""))
		return
	}

	var req reserveTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	ticket, err := h.inventory.Reserve(c.Request.Context(), services.ReserveRequest{
		TicketTypeID: req.TicketTypeID,
		EventID:      req.EventID,
		Quantity:     req.Quantity,
		Buyer:        buyer,
		Owner:        req.OwnerDetails,
	})
	if err != nil {
		respondError(c, "Ticket reservation failed", err)
		return
	}

	c.JSON(http.StatusCreated, utils.SuccessResponse("Ticket reserved", ticket))
}

func (h *InventoryHandler) GetTicket(c *gin.Context) {
	ticket, err := h.inventory.GetTicket(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to retrieve ticket", err)
		return
	}
	if buyer, ok := middleware.BuyerFrom(c); ok && ticket.BuyerID != buyer.ID {
		c.JSON(http.StatusNotFound, utils.ErrorResponse("Failed to retrieve ticket", services.ErrTicketNotFound.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Ticket retrieved", ticket))
}

func (h *InventoryHandler) ReleaseTicket(c *gin.Context) {
	buyer, _ := middleware.BuyerFrom(c)

	ticket, err := h.inventory.Release(c.Request.Context(), c.Param("id"), buyer.ID)
	if err != nil {
		respondError(c, "Ticket release failed", err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Ticket released", ticket))
}

func (h *InventoryHandler) RegisterTicketType(c *gin.Context) {
	var in services.TicketTypeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	tt, err := h.inventory.RegisterTicketType(c.Request.Context(), c.Param("eventId"), in)
	if err != nil {
		respondError(c, "Ticket type registration failed", err)
		return
	}

	c.JSON(http.StatusCreated, utils.SuccessResponse("Ticket type registered", tt))
}

func (h *InventoryHandler) ListTicketTypes(c *gin.Context) {
	types, err := h.inventory.ListTicketTypes(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		respondError(c, "Failed to list ticket types", err)
		return
	}
	if types == nil {
		types = []*models.TicketType{}
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Ticket types retrieved", types))
}

func (h *InventoryHandler) GetTicketType(c *gin.Context) {
	tt, err := h.inventory.GetTicketType(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to retrieve ticket type", err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Ticket type retrieved", tt))
}

func (h *InventoryHandler) UpdateTicketType(c *gin.Context) {
	var upd services.TicketTypeUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	tt, err := h.inventory.UpdateTicketType(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		respondError(c, "Ticket type update failed", err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Ticket type updated", tt))
}

func (h *InventoryHandler) TicketTypeSold(c *gin.Context) {
	id := c.Param("id")
	sold, err := h.inventory.SoldCount(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Failed to retrieve sold count", err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Sold count retrieved", gin.H{
		"ticketTypeId": id,
		"sold":         sold,
	}))
}

func (h *InventoryHandler) EventSold(c *gin.Context) {
	id := c.Param("eventId")
	sold, err := h.inventory.EventSoldCount(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Failed to retrieve sold count", err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Sold count retrieved", gin.H{
		"eventId": id,
		"sold":    sold,
	}))
}
