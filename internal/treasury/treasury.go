package treasury

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/terminal-bench/remitter/internal/token"
)

// Treasury is the Postgres-backed currency implementation: account balances
// with audit entries and allowance rows. It satisfies token.Currency so the
// ledger can settle against it in production.
type Treasury struct {
	db *sql.DB
}

// New creates a treasury over an open database handle
func New(db *sql.DB) *Treasury {
	return &Treasury{db: db}
}

// Migrate creates the treasury tables if they do not exist
func (t *Treasury) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS treasury_accounts (
			address    TEXT PRIMARY KEY,
			balance    NUMERIC(30,6) NOT NULL DEFAULT 0,
			version    INT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS treasury_entries (
			id         UUID PRIMARY KEY,
			address    TEXT NOT NULL,
			type       TEXT NOT NULL,
			amount     NUMERIC(30,6) NOT NULL,
			balance    NUMERIC(30,6) NOT NULL,
			reference  TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS treasury_allowances (
			owner   TEXT NOT NULL,
			spender TEXT NOT NULL,
			amount  NUMERIC(30,6) NOT NULL,
			PRIMARY KEY (owner, spender)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := t.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate treasury: %w", err)
		}
	}
	return nil
}

// Deposit credits an account, creating it if needed. Used to fund the
// custody account.
func (t *Treasury) Deposit(ctx context.Context, address string, amount decimal.Decimal, reference string) error {
	if !amount.IsPositive() {
		return token.ErrInvalidAmount
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := t.ensureAccount(ctx, tx, address); err != nil {
		return err
	}

	balance, _, err := t.lockAccount(ctx, tx, address)
	if err != nil {
		return err
	}

	newBalance := balance.Add(amount)
	if err := t.updateBalance(ctx, tx, address, newBalance); err != nil {
		return err
	}
	if err := t.writeEntry(ctx, tx, address, "deposit", amount, newBalance, reference); err != nil {
		return err
	}

	return tx.Commit()
}

// BalanceOf returns the balance of an account, zero for unknown accounts
func (t *Treasury) BalanceOf(ctx context.Context, account string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := t.db.QueryRowContext(ctx,
		`SELECT balance FROM treasury_accounts WHERE address = $1`,
		account,
	).Scan(&balance)

	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// Transfer moves funds between accounts atomically
func (t *Treasury) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return token.ErrInvalidAmount
	}

	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := t.move(ctx, tx, from, to, amount); err != nil {
		return err
	}

	return tx.Commit()
}

// move locks both accounts in address order to avoid deadlocks, then moves
// the amount. Must run inside a transaction.
func (t *Treasury) move(ctx context.Context, tx *sql.Tx, from, to string, amount decimal.Decimal) error {
	if err := t.ensureAccount(ctx, tx, to); err != nil {
		return err
	}

	first, second := from, to
	if second < first {
		first, second = second, first
	}
	balances := make(map[string]decimal.Decimal, 2)
	for _, addr := range []string{first, second} {
		balance, _, err := t.lockAccount(ctx, tx, addr)
		if err != nil {
			return err
		}
		balances[addr] = balance
	}

	if balances[from].LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", token.ErrInsufficientFunds, from, balances[from], amount)
	}

	newFrom := balances[from].Sub(amount)
	newTo := balances[to].Add(amount)

	if err := t.updateBalance(ctx, tx, from, newFrom); err != nil {
		return err
	}
	if err := t.updateBalance(ctx, tx, to, newTo); err != nil {
		return err
	}

	ref := fmt.Sprintf("%s->%s", from, to)
	if err := t.writeEntry(ctx, tx, from, "debit", amount, newFrom, ref); err != nil {
		return err
	}
	if err := t.writeEntry(ctx, tx, to, "credit", amount, newTo, ref); err != nil {
		return err
	}

	return nil
}

// Approve sets the allowance spender may move out of owner's account
func (t *Treasury) Approve(ctx context.Context, owner, spender string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return token.ErrInvalidAmount
	}

	_, err := t.db.ExecContext(ctx,
		`INSERT INTO treasury_allowances (owner, spender, amount) VALUES ($1, $2, $3)
		 ON CONFLICT (owner, spender) DO UPDATE SET amount = $3`,
		owner, spender, amount,
	)
	if err != nil {
		return fmt.Errorf("failed to set allowance: %w", err)
	}
	return nil
}

// Allowance returns the remaining approved amount
func (t *Treasury) Allowance(ctx context.Context, owner, spender string) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := t.db.QueryRowContext(ctx,
		`SELECT amount FROM treasury_allowances WHERE owner = $1 AND spender = $2`,
		owner, spender,
	).Scan(&amount)

	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get allowance: %w", err)
	}
	return amount, nil
}

// TransferFrom spends an allowance granted by from to spender
func (t *Treasury) TransferFrom(ctx context.Context, spender, from, to string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return token.ErrInvalidAmount
	}

	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var allowed decimal.Decimal
	err = tx.QueryRowContext(ctx,
		`SELECT amount FROM treasury_allowances WHERE owner = $1 AND spender = $2 FOR UPDATE`,
		from, spender,
	).Scan(&allowed)
	if err == sql.ErrNoRows {
		allowed = decimal.Zero
	} else if err != nil {
		return fmt.Errorf("failed to lock allowance: %w", err)
	}

	if allowed.LessThan(amount) {
		return fmt.Errorf("%w: %s allowed %s, needs %s", token.ErrInsufficientAllowance, spender, allowed, amount)
	}

	if err := t.move(ctx, tx, from, to, amount); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE treasury_allowances SET amount = $1 WHERE owner = $2 AND spender = $3`,
		allowed.Sub(amount), from, spender,
	)
	if err != nil {
		return fmt.Errorf("failed to update allowance: %w", err)
	}

	return tx.Commit()
}

// Entry is one audit row for an account
type Entry struct {
	ID        uuid.UUID
	Address   string
	Type      string
	Amount    decimal.Decimal
	Balance   decimal.Decimal
	Reference string
	CreatedAt time.Time
}

// Entries returns the most recent audit entries for an account
func (t *Treasury) Entries(ctx context.Context, address string, limit int) ([]Entry, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, address, type, amount, balance, reference, created_at
		 FROM treasury_entries WHERE address = $1 ORDER BY created_at DESC LIMIT $2`,
		address, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Address, &e.Type, &e.Amount, &e.Balance, &e.Reference, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (t *Treasury) ensureAccount(ctx context.Context, tx *sql.Tx, address string) error {
	now := time.Now()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO treasury_accounts (address, balance, version, created_at, updated_at)
		 VALUES ($1, 0, 1, $2, $2) ON CONFLICT (address) DO NOTHING`,
		address, now,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure account: %w", err)
	}
	return nil
}

func (t *Treasury) lockAccount(ctx context.Context, tx *sql.Tx, address string) (decimal.Decimal, int, error) {
	var balance decimal.Decimal
	var version int
	err := tx.QueryRowContext(ctx,
		`SELECT balance, version FROM treasury_accounts WHERE address = $1 FOR UPDATE`,
		address,
	).Scan(&balance, &version)

	if err == sql.ErrNoRows {
		return decimal.Zero, 0, fmt.Errorf("%w: account %s", token.ErrInsufficientFunds, address)
	}
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("failed to lock account: %w", err)
	}
	return balance, version, nil
}

func (t *Treasury) updateBalance(ctx context.Context, tx *sql.Tx, address string, balance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE treasury_accounts SET balance = $1, updated_at = $2, version = version + 1
		 WHERE address = $3`,
		balance, time.Now(), address,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

func (t *Treasury) writeEntry(ctx context.Context, tx *sql.Tx, address, entryType string, amount, balance decimal.Decimal, reference string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO treasury_entries (id, address, type, amount, balance, reference, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), address, entryType, amount, balance, reference, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	return nil
}
