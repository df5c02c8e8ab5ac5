package account

import "errors"

// Rejection kinds surfaced by OpenPosition preconditions.
var (
	ErrInvalidSize         = errors.New("account: quantity outside configured trade size bounds")
	ErrInvalidLeverage     = errors.New("account: leverage outside configured bounds")
	ErrDuplicateSymbol     = errors.New("account: an open position already exists for symbol")
	ErrInsufficientMargin  = errors.New("account: available margin too small")
	ErrMaxPositionsReached = errors.New("account: open position limit reached")
)

var (
	// ErrPositionNotFound reports a close against an unknown or already
	// closed position id.
	ErrPositionNotFound = errors.New("account: position not found")

	// ErrDisabled reports an operation against an account that has been
	// switched off pending operator intervention.
	ErrDisabled = errors.New("account: account is disabled")

	// ErrInvariant reports a broken accounting invariant. The account
	// disables itself when this is returned.
	ErrInvariant = errors.New("account: invariant violated")
)
