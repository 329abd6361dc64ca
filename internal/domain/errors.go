package domain

import "errors"

var (
	// ErrNotFound means a referenced cart, order, payment, user or artwork
	// does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidQuantity rejects cart writes whose quantity would drop
	// below one.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")

	// ErrIllegalTransition rejects a status change not allowed by the
	// transition table. The stored status is left untouched.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrConflict signals an idempotency violation, e.g. a duplicate
	// transaction id or a second cart for the same user.
	ErrConflict = errors.New("resource already exists")
)
