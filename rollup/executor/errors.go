// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library, released under the GNU LGPL v3.

// Package executor implements the L2 EXECUTE precompile: it re-executes a rollup block from a
// compact witness against a trusted prior state root, the same way the witness-backed guest
// program a stateless prover runs would, and returns the ABI-encoded summary a calling contract
// needs to finalize the block.
package executor

import "errors"

// Failure reasons are the exact ASCII strings the precompile reverts with; callers pattern-match
// on these rather than on Go error identity, since the revert payload crosses the EVM boundary.
const (
	ReasonBadRoot         = "bad-root"
	ReasonBadReceipts     = "bad-receipts"
	ReasonBadMessages     = "bad-messages"
	ReasonBadBaseFee      = "bad-base-fee"
	ReasonBlobTxRejected  = "blob-tx-rejected"
)

var (
	ErrBlobTxRejected = errors.New(ReasonBlobTxRejected)
	ErrBadRoot        = errors.New(ReasonBadRoot)
	ErrBadReceipts    = errors.New(ReasonBadReceipts)
	ErrBadMessages    = errors.New(ReasonBadMessages)
	ErrBadBaseFee     = errors.New(ReasonBadBaseFee)
)

// RevertError pairs one of the fixed ASCII reasons with the underlying cause, mirroring how a
// precompile surfaces a revert: the reason is the wire-visible payload, the wrapped error is
// only for local logging.
type RevertError struct {
	Reason string
	Cause  error
}

func (e *RevertError) Error() string { return e.Reason }
func (e *RevertError) Unwrap() error { return e.Cause }

func revert(reason string, cause error) error {
	return &RevertError{Reason: reason, Cause: cause}
}
