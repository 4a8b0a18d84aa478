package treasury_test

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/remitter/internal/token"
	"github.com/terminal-bench/remitter/internal/treasury"
)

// open skips the test unless a Postgres instance is reachable via
// TEST_DATABASE_URL
func open(t *testing.T) *treasury.Treasury {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping treasury integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)
	if err := db.Ping(); err != nil {
		t.Skipf("database unreachable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tr := treasury.New(db)
	require.NoError(t, tr.Migrate(context.Background()))
	return tr
}

// addr returns a unique account address so runs do not interfere
func addr(prefix string) string {
	return prefix + "-" + uuid.New().String()
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestDepositAndBalance(t *testing.T) {
	tr := open(t)
	ctx := context.Background()

	t.Run("should credit a new account", func(t *testing.T) {
		custody := addr("custody")
		require.NoError(t, tr.Deposit(ctx, custody, d(1000), "boot funding"))

		balance, err := tr.BalanceOf(ctx, custody)
		require.NoError(t, err)
		assert.True(t, balance.Equal(d(1000)))
	})

	t.Run("should report zero for unknown accounts", func(t *testing.T) {
		balance, err := tr.BalanceOf(ctx, addr("ghost"))
		require.NoError(t, err)
		assert.True(t, balance.IsZero())
	})

	t.Run("should reject non-positive deposits", func(t *testing.T) {
		assert.ErrorIs(t, tr.Deposit(ctx, addr("custody"), d(0), ""), token.ErrInvalidAmount)
		assert.ErrorIs(t, tr.Deposit(ctx, addr("custody"), d(-5), ""), token.ErrInvalidAmount)
	})
}

func TestTransfer(t *testing.T) {
	tr := open(t)
	ctx := context.Background()

	t.Run("should move funds and write audit entries", func(t *testing.T) {
		from, to := addr("custody"), addr("wallet")
		require.NoError(t, tr.Deposit(ctx, from, d(1000), ""))

		require.NoError(t, tr.Transfer(ctx, from, to, d(400)))

		fromBalance, err := tr.BalanceOf(ctx, from)
		require.NoError(t, err)
		toBalance, err := tr.BalanceOf(ctx, to)
		require.NoError(t, err)
		assert.True(t, fromBalance.Equal(d(600)))
		assert.True(t, toBalance.Equal(d(400)))

		entries, err := tr.Entries(ctx, to, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "credit", entries[0].Type)
		assert.True(t, entries[0].Amount.Equal(d(400)))
		assert.True(t, entries[0].Balance.Equal(d(400)))
	})

	t.Run("should reject overdraft", func(t *testing.T) {
		from, to := addr("custody"), addr("wallet")
		require.NoError(t, tr.Deposit(ctx, from, d(100), ""))

		err := tr.Transfer(ctx, from, to, d(500))
		assert.ErrorIs(t, err, token.ErrInsufficientFunds)

		balance, err := tr.BalanceOf(ctx, from)
		require.NoError(t, err)
		assert.True(t, balance.Equal(d(100)))
	})

	t.Run("should reject non-positive amounts", func(t *testing.T) {
		err := tr.Transfer(ctx, addr("a"), addr("b"), d(0))
		assert.ErrorIs(t, err, token.ErrInvalidAmount)
	})
}

func TestAllowances(t *testing.T) {
	tr := open(t)
	ctx := context.Background()

	t.Run("should spend and decrement an allowance", func(t *testing.T) {
		owner, spender, custody := addr("wallet"), addr("agent"), addr("custody")
		require.NoError(t, tr.Deposit(ctx, owner, d(1000), ""))
		require.NoError(t, tr.Approve(ctx, owner, spender, d(300)))

		allowed, err := tr.Allowance(ctx, owner, spender)
		require.NoError(t, err)
		assert.True(t, allowed.Equal(d(300)))

		require.NoError(t, tr.TransferFrom(ctx, spender, owner, custody, d(200)))

		allowed, err = tr.Allowance(ctx, owner, spender)
		require.NoError(t, err)
		assert.True(t, allowed.Equal(d(100)))

		balance, err := tr.BalanceOf(ctx, custody)
		require.NoError(t, err)
		assert.True(t, balance.Equal(d(200)))
	})

	t.Run("should reject spending past the allowance", func(t *testing.T) {
		owner, spender := addr("wallet"), addr("agent")
		require.NoError(t, tr.Deposit(ctx, owner, d(1000), ""))
		require.NoError(t, tr.Approve(ctx, owner, spender, d(100)))

		err := tr.TransferFrom(ctx, spender, owner, addr("custody"), d(200))
		assert.ErrorIs(t, err, token.ErrInsufficientAllowance)
	})

	t.Run("should treat missing approval as zero", func(t *testing.T) {
		owner := addr("wallet")
		require.NoError(t, tr.Deposit(ctx, owner, d(1000), ""))

		err := tr.TransferFrom(ctx, addr("agent"), owner, addr("custody"), d(1))
		assert.ErrorIs(t, err, token.ErrInsufficientAllowance)
	})

	t.Run("should overwrite a prior approval", func(t *testing.T) {
		owner, spender := addr("wallet"), addr("agent")
		require.NoError(t, tr.Approve(ctx, owner, spender, d(300)))
		require.NoError(t, tr.Approve(ctx, owner, spender, d(50)))

		allowed, err := tr.Allowance(ctx, owner, spender)
		require.NoError(t, err)
		assert.True(t, allowed.Equal(d(50)))
	})
}
