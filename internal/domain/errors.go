package domain

import "errors"

var (
	ErrNotFound               = errors.New("generation request not found")
	ErrForbidden              = errors.New("user not authorized for this request")
	ErrValidation             = errors.New("invalid input")
	ErrInvalidState           = errors.New("operation not allowed in current status")
	ErrInsufficientCredits    = errors.New("insufficient credits")
	ErrLedgerUnavailable      = errors.New("credit ledger unavailable")
	ErrDispatch               = errors.New("job dispatch failed")
	ErrJobPublish             = errors.New("failed to queue generation job")
	ErrConcurrentModification = errors.New("request was modified concurrently")
)
