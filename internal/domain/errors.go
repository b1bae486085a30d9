package domain

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrItemNotFound        = errors.New("item not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidID           = errors.New("invalid id")
	ErrDuplicateItems      = errors.New("duplicate item ids are not allowed")
	ErrTradeURLRequired    = errors.New("trade url is required before placing an order")
	ErrActiveOrderExists   = errors.New("an active order already exists")
	ErrItemsUnavailable    = errors.New("one or more items are not available")
	ErrItemsLocked         = errors.New("items are temporarily locked, please retry")
	ErrOrderNotCancellable = errors.New("only pending orders can be cancelled")
)
