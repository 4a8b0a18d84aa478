package remitter

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/terminal-bench/remitter/pkg/messaging"
)

// CheckAuthorization returns the remaining headroom under the contractor's
// authorization ceiling
func (l *Ledger) CheckAuthorization(id uint64) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.get(id)
	if err != nil {
		return decimal.Zero, err
	}

	rem := l.ceiling(c).Sub(c.PendingCredits)
	if rem.IsNegative() {
		rem = decimal.Zero
	}
	return rem, nil
}

// MaxPayable returns the largest single payment the contractor could request
func (l *Ledger) MaxPayable(id uint64) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.get(id)
	if err != nil {
		return decimal.Zero, err
	}

	owed, _, _ := l.unaccounted(c)
	v := c.Accrued.Add(owed).Add(c.PendingCredits).Sub(c.PendingDebits)
	if v.IsNegative() {
		return decimal.Zero, nil
	}
	return v, nil
}

// AddCredit grants the contractor an allowance beyond accrued salary. The
// pending total is capped by the authorization ceiling.
func (l *Ledger) AddCredit(ctx context.Context, caller string, id uint64, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, opAdmin, nil); err != nil {
		return err
	}
	c, err := l.get(id)
	if err != nil {
		return err
	}
	if !c.Active {
		return ErrTerminated
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if c.PendingCredits.Add(amount).GreaterThan(l.ceiling(c)) {
		return ErrLimitExceeded
	}

	c.PendingCredits = c.PendingCredits.Add(amount)
	l.totalPendingCredits = l.totalPendingCredits.Add(amount)
	l.nonce++

	l.emit(ctx, messaging.SubjectCreditAdded, messaging.LedgerEvent{
		ContractorID: id,
		Amount:       amount.String(),
		Pending:      c.PendingCredits.String(),
	})
	return nil
}

// AddDebit records an amount the contractor owes back to the ledger
func (l *Ledger) AddDebit(ctx context.Context, caller string, id uint64, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, opAdmin, nil); err != nil {
		return err
	}
	c, err := l.get(id)
	if err != nil {
		return err
	}
	if !c.Active {
		return ErrTerminated
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	c.PendingDebits = c.PendingDebits.Add(amount)
	l.totalPendingDebits = l.totalPendingDebits.Add(amount)
	l.nonce++

	l.emit(ctx, messaging.SubjectDebitAdded, messaging.LedgerEvent{
		ContractorID: id,
		Amount:       amount.String(),
		Pending:      c.PendingDebits.String(),
	})
	return nil
}

// AddAuthorizedPayment raises the contractor's authorization ceiling by the
// given amount
func (l *Ledger) AddAuthorizedPayment(ctx context.Context, caller string, id uint64, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, opAdmin, nil); err != nil {
		return err
	}
	c, err := l.get(id)
	if err != nil {
		return err
	}
	if !c.Active {
		return ErrTerminated
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	c.AuthCeiling = l.ceiling(c).Add(amount)
	l.nonce++

	l.emit(ctx, messaging.SubjectContractorChanged, messaging.ContractorEvent{
		ContractorID: c.ID,
		Name:         c.Name,
		Wallet:       c.Wallet,
		PerCycle:     c.PerCycle.String(),
		StartCycle:   c.StartingCycle,
		Field:        "auth_ceiling",
	})
	return nil
}

// PayCredit repays an outstanding debit with currency pulled from the
// caller. Requires a prior allowance grant to the custody account. The
// ledger is updated before the external pull; a failed pull rolls it back.
func (l *Ledger) PayCredit(ctx context.Context, caller string, id uint64, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.get(id)
	if err != nil {
		return err
	}
	if err := l.authorize(caller, opSettle, c); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(c.PendingDebits) {
		return ErrLimitExceeded
	}

	// effects
	undo := settlementUndo{
		pendingDebits:      c.PendingDebits,
		totalPendingDebits: l.totalPendingDebits,
		totalDebits:        l.totalDebits,
		nonce:              l.nonce,
	}
	c.PendingDebits = c.PendingDebits.Sub(amount)
	l.totalPendingDebits = l.totalPendingDebits.Sub(amount)
	l.totalDebits = l.totalDebits.Add(amount)
	l.nonce++

	// interaction
	if err := l.currency.TransferFrom(ctx, l.custody, caller, l.custody, amount); err != nil {
		c.PendingDebits = undo.pendingDebits
		l.totalPendingDebits = undo.totalPendingDebits
		l.totalDebits = undo.totalDebits
		l.nonce = undo.nonce
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	l.emit(ctx, messaging.SubjectCreditPaid, messaging.LedgerEvent{
		ContractorID: id,
		Amount:       amount.String(),
		Pending:      c.PendingDebits.String(),
	})
	return nil
}

type settlementUndo struct {
	accrued             decimal.Decimal
	paid                decimal.Decimal
	pendingCredits      decimal.Decimal
	pendingDebits       decimal.Decimal
	cyclesPaid          uint64
	plan                *PaymentPlan
	totalPayroll        decimal.Decimal
	totalPaid           decimal.Decimal
	totalPendingCredits decimal.Decimal
	totalPendingDebits  decimal.Decimal
	totalCredits        decimal.Decimal
	totalDebits         decimal.Decimal
	nonce               uint64
}

// SendPayment moves currency from the ledger's custody to the given address,
// bounded by the contractor's claimable balance. Accrual is accounted first,
// the ledger is fully updated, and only then is the external transfer
// invoked; a failed transfer restores the staged state. Requestable by the
// contractor or an authorized agent.
func (l *Ledger) SendPayment(ctx context.Context, caller string, id uint64, to string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.get(id)
	if err != nil {
		return err
	}
	if err := l.authorize(caller, opSettle, c); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	// checks: claimable computed without committing anything, so a rejected
	// request leaves every counter untouched
	owed, _, _ := l.unaccounted(c)
	avail := c.Accrued.Add(owed).Add(c.PendingCredits).Sub(c.PendingDebits)
	if amount.GreaterThan(avail) {
		return ErrLimitExceeded
	}

	// effects: account accrual, then draw accounted salary first and pending
	// credits after
	undo := settlementUndo{
		accrued:             c.Accrued,
		paid:                c.Paid,
		pendingCredits:      c.PendingCredits,
		cyclesPaid:          c.CyclesPaid,
		plan:                c.Plan.clone(),
		totalPayroll:        l.totalPayroll,
		totalPaid:           l.totalPaid,
		totalPendingCredits: l.totalPendingCredits,
		totalCredits:        l.totalCredits,
		nonce:               l.nonce,
	}
	l.settleAccrual(c)

	fromAccrued := amount
	if fromAccrued.GreaterThan(c.Accrued) {
		fromAccrued = c.Accrued
	}
	c.Accrued = c.Accrued.Sub(fromAccrued)

	if creditDraw := amount.Sub(fromAccrued); creditDraw.IsPositive() {
		c.PendingCredits = c.PendingCredits.Sub(creditDraw)
		l.totalPendingCredits = l.totalPendingCredits.Sub(creditDraw)
		l.totalCredits = l.totalCredits.Add(creditDraw)
	}

	c.Paid = c.Paid.Add(amount)
	l.totalPaid = l.totalPaid.Add(amount)
	l.nonce++

	// interaction
	if err := l.currency.Transfer(ctx, l.custody, to, amount); err != nil {
		c.Accrued = undo.accrued
		c.Paid = undo.paid
		c.PendingCredits = undo.pendingCredits
		c.CyclesPaid = undo.cyclesPaid
		c.Plan = undo.plan
		l.totalPayroll = undo.totalPayroll
		l.totalPaid = undo.totalPaid
		l.totalPendingCredits = undo.totalPendingCredits
		l.totalCredits = undo.totalCredits
		l.nonce = undo.nonce
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	l.emit(ctx, messaging.SubjectPaymentSent, messaging.LedgerEvent{
		ContractorID: id,
		Amount:       amount.String(),
		To:           to,
	})
	return nil
}
