package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Bank is an in-memory Currency used in tests and dev mode.
type Bank struct {
	mu         sync.Mutex
	balances   map[string]decimal.Decimal
	allowances map[string]map[string]decimal.Decimal // owner -> spender -> amount
}

// NewBank creates an empty bank
func NewBank() *Bank {
	return &Bank{
		balances:   make(map[string]decimal.Decimal),
		allowances: make(map[string]map[string]decimal.Decimal),
	}
}

// Mint credits an account out of thin air
func (b *Bank) Mint(account string, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] = b.balance(account).Add(amount)
}

func (b *Bank) balance(account string) decimal.Decimal {
	if v, ok := b.balances[account]; ok {
		return v
	}
	return decimal.Zero
}

// BalanceOf returns the balance of an account
func (b *Bank) BalanceOf(ctx context.Context, account string) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance(account), nil
}

// Transfer moves funds between accounts
func (b *Bank) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.move(from, to, amount)
}

func (b *Bank) move(from, to string, amount decimal.Decimal) error {
	bal := b.balance(from)
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from, bal, amount)
	}
	b.balances[from] = bal.Sub(amount)
	b.balances[to] = b.balance(to).Add(amount)
	return nil
}

// Approve grants spender the right to move owner's funds up to amount
func (b *Bank) Approve(ctx context.Context, owner, spender string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.allowances[owner] == nil {
		b.allowances[owner] = make(map[string]decimal.Decimal)
	}
	b.allowances[owner][spender] = amount
	return nil
}

// Allowance returns the remaining approved amount
func (b *Bank) Allowance(ctx context.Context, owner, spender string) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allowance(owner, spender), nil
}

func (b *Bank) allowance(owner, spender string) decimal.Decimal {
	if m, ok := b.allowances[owner]; ok {
		if v, ok := m[spender]; ok {
			return v
		}
	}
	return decimal.Zero
}

// TransferFrom spends an allowance granted by from to spender
func (b *Bank) TransferFrom(ctx context.Context, spender, from, to string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	allowed := b.allowance(from, spender)
	if allowed.LessThan(amount) {
		return fmt.Errorf("%w: %s allowed %s, needs %s", ErrInsufficientAllowance, spender, allowed, amount)
	}

	if err := b.move(from, to, amount); err != nil {
		return err
	}
	b.allowances[from][spender] = allowed.Sub(amount)
	return nil
}
