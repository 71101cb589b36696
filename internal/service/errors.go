package service

import "errors"

// Business errors surfaced to callers. Every one of these is a synchronous
// rejection of the requested action; nothing here is retried inside the
// engine.
var (
	ErrValidation          = errors.New("invalid input")
	ErrIllegalTransition   = errors.New("illegal status transition")
	ErrNotEligible         = errors.New("duplicate lead is not reward eligible")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBelowMinimum        = errors.New("amount below minimum withdrawal")
	ErrAlreadyProcessed    = errors.New("already processed")
)
