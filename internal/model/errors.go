package model

import "errors"

var (
	// ErrOrderSubmission marks an order the exchange rejected or failed to accept.
	ErrOrderSubmission = errors.New("order submission failed")

	// ErrLedgerWrite marks a trade record that could not be persisted.
	ErrLedgerWrite = errors.New("ledger write failed")
)
