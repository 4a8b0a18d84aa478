package remitter

import "errors"

var (
	// Unauthorized: caller lacks the role or ownership the operation requires
	ErrUnauthorized = errors.New("caller not authorized")

	// InvalidState family
	ErrNotFound        = errors.New("contractor not found")
	ErrDuplicateWallet = errors.New("wallet already registered to an active contractor")
	ErrTerminated      = errors.New("contractor is terminated")
	ErrCycleConflict   = errors.New("starting cycle conflicts with already settled cycles")
	ErrPlanActive      = errors.New("contractor already has an active payment plan")
	ErrInvalidAmount   = errors.New("amount must be positive")

	// LimitExceeded: claimable balance, authorization ceiling, or max salary
	ErrLimitExceeded = errors.New("limit exceeded")

	// ExternalTransferFailed: the currency collaborator rejected the move;
	// the ledger mutation staged for the operation has been rolled back
	ErrTransferFailed = errors.New("currency transfer failed")
)
