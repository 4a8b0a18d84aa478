package token

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/terminal-bench/remitter/pkg/circuit"
)

// Guarded wraps a Currency with a circuit breaker so a failing currency
// backend trips fast instead of stalling every settlement.
type Guarded struct {
	inner   Currency
	breaker *circuit.Breaker
}

// NewGuarded wraps the given currency
func NewGuarded(inner Currency, breaker *circuit.Breaker) *Guarded {
	return &Guarded{inner: inner, breaker: breaker}
}

func (g *Guarded) BalanceOf(ctx context.Context, account string) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := g.breaker.Execute(ctx, func() error {
		var err error
		out, err = g.inner.BalanceOf(ctx, account)
		return err
	})
	return out, err
}

func (g *Guarded) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	return g.breaker.Execute(ctx, func() error {
		return g.inner.Transfer(ctx, from, to, amount)
	})
}

func (g *Guarded) Approve(ctx context.Context, owner, spender string, amount decimal.Decimal) error {
	return g.breaker.Execute(ctx, func() error {
		return g.inner.Approve(ctx, owner, spender, amount)
	})
}

func (g *Guarded) Allowance(ctx context.Context, owner, spender string) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := g.breaker.Execute(ctx, func() error {
		var err error
		out, err = g.inner.Allowance(ctx, owner, spender)
		return err
	})
	return out, err
}

func (g *Guarded) TransferFrom(ctx context.Context, spender, from, to string, amount decimal.Decimal) error {
	return g.breaker.Execute(ctx, func() error {
		return g.inner.TransferFrom(ctx, spender, from, to, amount)
	})
}
