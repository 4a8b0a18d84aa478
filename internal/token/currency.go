package token

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("amount must be positive")
)

// Currency is the fungible-token collaborator the remitter settles in.
// Transfer moves funds out of an account the caller controls; TransferFrom
// spends a previously approved allowance. Implementations must be safe for
// concurrent use.
type Currency interface {
	BalanceOf(ctx context.Context, account string) (decimal.Decimal, error)
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error
	Approve(ctx context.Context, owner, spender string, amount decimal.Decimal) error
	Allowance(ctx context.Context, owner, spender string) (decimal.Decimal, error)
	TransferFrom(ctx context.Context, spender, from, to string, amount decimal.Decimal) error
}
