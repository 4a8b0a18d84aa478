package token_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/remitter/internal/token"
	"github.com/terminal-bench/remitter/pkg/circuit"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestBankTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("should move funds between accounts", func(t *testing.T) {
		bank := token.NewBank()
		bank.Mint("alice", d(100))

		require.NoError(t, bank.Transfer(ctx, "alice", "bob", d(40)))

		aliceBal, err := bank.BalanceOf(ctx, "alice")
		require.NoError(t, err)
		bobBal, err := bank.BalanceOf(ctx, "bob")
		require.NoError(t, err)
		assert.True(t, aliceBal.Equal(d(60)))
		assert.True(t, bobBal.Equal(d(40)))
	})

	t.Run("should reject overdraft", func(t *testing.T) {
		bank := token.NewBank()
		bank.Mint("alice", d(10))

		err := bank.Transfer(ctx, "alice", "bob", d(11))
		assert.ErrorIs(t, err, token.ErrInsufficientFunds)

		bal, err := bank.BalanceOf(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, bal.Equal(d(10)))
	})

	t.Run("should reject non-positive amounts", func(t *testing.T) {
		bank := token.NewBank()
		bank.Mint("alice", d(10))

		assert.ErrorIs(t, bank.Transfer(ctx, "alice", "bob", d(0)), token.ErrInvalidAmount)
		assert.ErrorIs(t, bank.Transfer(ctx, "alice", "bob", d(-1)), token.ErrInvalidAmount)
	})
}

func TestBankAllowance(t *testing.T) {
	ctx := context.Background()

	t.Run("should spend within the approved allowance", func(t *testing.T) {
		bank := token.NewBank()
		bank.Mint("alice", d(100))

		require.NoError(t, bank.Approve(ctx, "alice", "spender", d(50)))

		allowed, err := bank.Allowance(ctx, "alice", "spender")
		require.NoError(t, err)
		assert.True(t, allowed.Equal(d(50)))

		require.NoError(t, bank.TransferFrom(ctx, "spender", "alice", "vault", d(30)))

		allowed, err = bank.Allowance(ctx, "alice", "spender")
		require.NoError(t, err)
		assert.True(t, allowed.Equal(d(20)))

		err = bank.TransferFrom(ctx, "spender", "alice", "vault", d(21))
		assert.ErrorIs(t, err, token.ErrInsufficientAllowance)
	})

	t.Run("should not spend without approval", func(t *testing.T) {
		bank := token.NewBank()
		bank.Mint("alice", d(100))

		err := bank.TransferFrom(ctx, "spender", "alice", "vault", d(1))
		assert.ErrorIs(t, err, token.ErrInsufficientAllowance)
	})
}

type downCurrency struct {
	*token.Bank
}

var errDown = errors.New("down")

func (c *downCurrency) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	return errDown
}

func TestGuarded(t *testing.T) {
	ctx := context.Background()

	t.Run("should trip after repeated failures", func(t *testing.T) {
		breaker := circuit.NewBreaker(circuit.Config{
			Name:        "currency",
			MaxFailures: 3,
			Timeout:     0,
			HalfOpenMax: 1,
		})
		guarded := token.NewGuarded(&downCurrency{token.NewBank()}, breaker)

		for i := 0; i < 3; i++ {
			err := guarded.Transfer(ctx, "a", "b", d(1))
			assert.ErrorIs(t, err, errDown)
		}
		assert.Equal(t, circuit.StateOpen, breaker.State())
	})

	t.Run("should pass through when the backend is healthy", func(t *testing.T) {
		breaker := circuit.NewBreaker(circuit.Config{
			Name:        "currency",
			MaxFailures: 3,
			HalfOpenMax: 1,
		})
		bank := token.NewBank()
		bank.Mint("a", d(10))
		guarded := token.NewGuarded(bank, breaker)

		require.NoError(t, guarded.Transfer(ctx, "a", "b", d(5)))
		bal, err := guarded.BalanceOf(ctx, "b")
		require.NoError(t, err)
		assert.True(t, bal.Equal(d(5)))
		assert.Equal(t, circuit.StateClosed, breaker.State())
	})
}
