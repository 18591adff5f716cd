package service

import (
	"errors"
	"fmt"
)

// Validation failures: rejected before any state mutation.
var (
	ErrBlocked      = errors.New("account is blocked")
	ErrStaleHarvest = errors.New("invalid harvest time")
	ErrNoWallet     = errors.New("account has no wallet")
	ErrNoCapacity   = errors.New("no mining capacity")
)

// ErrDuplicate means another settlement is already in flight or completed in
// the same time bucket.
var ErrDuplicate = errors.New("duplicate harvest request")

// Policy soft-decline reasons. These go back to the client verbatim with a
// 200 status so well-behaved clients do not retry-storm.
const (
	PolicyCooldown          = "Mining cooltime error"
	PolicyZeroYield         = "Mining amount error"
	PolicyInsufficientYield = "insufficient mining amount"
)

// PolicyError is a business-policy rejection: harmless to retry, no state
// mutated beyond the settlement record it may mark FAILED.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string { return e.Reason }

// Transfer saga terminal failure reasons. Operator-facing only; the client
// always sees a generic message.
const (
	ReasonFeeTransferFailed           = "FEE_TRANSFER_FAILED"
	ReasonMainTransferFailed          = "MAIN_TRANSFER_FAILED"
	ReasonMainFailedFeeRecovered      = "MAIN_TRANSFER_FAILED_FEE_RECOVERED"
	ReasonMainFailedFeeRecoveryFailed = "MAIN_TRANSFER_FAILED_FEE_RECOVERY_FAILED"
)

type TransferError struct {
	Reason string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed (%s): %v", e.Reason, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
