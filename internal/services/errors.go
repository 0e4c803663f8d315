package services

import "errors"

var (
	ErrMissingBuyer       = errors.New("buyer identity required")
	ErrMissingEmail       = errors.New("buyer email required for payment")
	ErrInvalidQuantity    = errors.New("quantity must be between 1 and 2147483647")
	ErrCapacityExceeded   = errors.New("ticket type capacity exceeded")
	ErrEventNotFound      = errors.New("event not found")
	ErrEventDeleted       = errors.New("event has been deleted")
	ErrTicketTypeNotFound = errors.New("ticket type not found")
	ErrInvalidTicketType  = errors.New("invalid ticket type")
	ErrTicketTypeLocked   = errors.New("ticket type price and capacity are fixed once tickets are sold")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrTicketOrdered      = errors.New("ticket is part of an order")
	ErrInvalidTicket      = errors.New("invalid ticket")
	ErrOrderNotFound      = errors.New("order not found")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrCheckoutInProgress = errors.New("checkout already in progress")

	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrMalformedEvent   = errors.New("malformed payment event")
	ErrUnsupportedEvent = errors.New("unsupported payment event")
	ErrAmountMismatch   = errors.New("incomplete payment")
)
