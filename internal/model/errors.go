package model

import "errors"

// Errors of the accounting core. ErrConcurrentModification is transient
// and retried internally a bounded number of times; validation errors
// are surfaced to the caller immediately
var (
	ErrInvalidVolume          = errors.New("invalid volume")
	ErrInvalidState           = errors.New("invalid state transition")
	ErrInsufficientMargin     = errors.New("insufficient free margin")
	ErrInvalidPercent         = errors.New("ib share percent out of range")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrAlreadyPaid            = errors.New("commission record is not pending")
	ErrQuoteUnavailable       = errors.New("quote unavailable")
	ErrUnknownSymbol          = errors.New("unknown symbol")
)
