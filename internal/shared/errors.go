package shared

import "errors"

var (
	// ErrNotFound indicates an unknown sequence, account, or product.
	ErrNotFound = errors.New("not found")
	// ErrUnbalanced indicates journal debits and credits differ by more than the tolerance.
	ErrUnbalanced = errors.New("journal lines must balance")
	// ErrInsufficientStock indicates FIFO consumption would leave a shortage.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrDuplicateDocumentNumber indicates a unique-constraint race on a generated number.
	ErrDuplicateDocumentNumber = errors.New("duplicate document number")
	// ErrInvalidAmount indicates a non-positive amount or quantity.
	ErrInvalidAmount = errors.New("amount must be positive")
)
