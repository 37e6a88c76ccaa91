package domain

import "errors"

// Trading error taxonomy. All of these are recoverable at the caller; none
// of them ever leaves balance and holdings in an inconsistent cross-field
// state. Handlers map each kind to a distinct HTTP status.
var (
	// ErrInvalidQuantity rejects a non-positive share count before any I/O.
	ErrInvalidQuantity = errors.New("share quantity must be a positive integer")

	// ErrQuoteUnavailable covers any failure of the price source, including
	// unknown tickers. The trade engine performs no retries itself.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrInsufficientBalance rejects a buy that would overdraw the account.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientShares rejects a sell that exceeds the current holding.
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrAccountNotFound indicates the account does not exist.
	ErrAccountNotFound = errors.New("account not found")
)
