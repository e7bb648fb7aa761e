package model

import "errors"

var (
	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrUnknownCurrency    = errors.New("unknown currency")
	ErrSchemaIncompatible = errors.New("database schema is not compatible with the rate cache")
	ErrSourceRead         = errors.New("failed to read from rate source")
	ErrLengthMismatch     = errors.New("dates and values differ in length")
	ErrInvalidDate        = errors.New("invalid date, use YYYY-MM-DD")
	ErrWaitTimeout        = errors.New("timed out waiting for cache population")
)
