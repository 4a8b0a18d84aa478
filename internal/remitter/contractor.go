package remitter

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/terminal-bench/remitter/pkg/messaging"
)

// Contractor is a registered payee. Accrued is the accounted-but-unclaimed
// salary balance; CyclesPaid is the last cycle whose accrual has been rolled
// into it.
type Contractor struct {
	ID            uint64
	Name          string
	Wallet        string
	PerCycle      decimal.Decimal
	StartingCycle uint64
	CyclesPaid    uint64

	Accrued        decimal.Decimal
	Paid           decimal.Decimal
	PendingCredits decimal.Decimal
	PendingDebits  decimal.Decimal
	AuthCeiling    decimal.Decimal // zero means defaultAuth applies

	Plan   *PaymentPlan
	Agents map[string]bool

	Active       bool
	TerminatedAt uint64
}

// PaymentPlan is a fixed-amount installment schedule that accrues alongside
// the per-cycle salary
type PaymentPlan struct {
	PerCycle  decimal.Decimal
	Remaining uint64
}

func (p *PaymentPlan) clone() *PaymentPlan {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// ContractorView is the query snapshot of a single contractor
type ContractorView struct {
	ID             uint64          `json:"id"`
	Name           string          `json:"name"`
	Wallet         string          `json:"wallet"`
	PerCycle       decimal.Decimal `json:"per_cycle"`
	StartingCycle  uint64          `json:"starting_cycle"`
	CyclesPaid     uint64          `json:"cycles_paid"`
	Accrued        decimal.Decimal `json:"accrued"`
	Paid           decimal.Decimal `json:"paid"`
	PendingCredits decimal.Decimal `json:"pending_credits"`
	PendingDebits  decimal.Decimal `json:"pending_debits"`
	AuthCeiling    decimal.Decimal `json:"auth_ceiling"`
	Agents         []string        `json:"agents,omitempty"`
	Active         bool            `json:"active"`
	TerminatedAt   uint64          `json:"terminated_at,omitempty"`
}

// AddContractor registers a new contractor and returns the assigned id.
// Ids are sequential and start at 1.
func (l *Ledger) AddContractor(ctx context.Context, caller, name, wallet string, perCycle decimal.Decimal, startingCycle uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, opAdmin, nil); err != nil {
		return 0, err
	}
	if perCycle.IsNegative() {
		return 0, ErrInvalidAmount
	}
	if perCycle.GreaterThan(l.maxSalary) {
		return 0, ErrLimitExceeded
	}
	if _, exists := l.walletIndex[wallet]; exists {
		return 0, ErrDuplicateWallet
	}

	l.nextID++
	c := &Contractor{
		ID:            l.nextID,
		Name:          name,
		Wallet:        wallet,
		PerCycle:      perCycle,
		StartingCycle: startingCycle,
		CyclesPaid:    startingCycle,
		Agents:        make(map[string]bool),
		Active:        true,
	}
	l.contractors[c.ID] = c
	l.walletIndex[wallet] = c.ID
	l.totalWorkers++
	l.nonce++

	l.emit(ctx, messaging.SubjectContractorAdded, messaging.ContractorEvent{
		ContractorID: c.ID,
		Name:         name,
		Wallet:       wallet,
		PerCycle:     perCycle.String(),
		StartCycle:   startingCycle,
	})
	return c.ID, nil
}

// GetID looks up the active contractor owning a wallet
func (l *Ledger) GetID(wallet string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.walletIndex[wallet]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

// ViewContractor returns a snapshot of one contractor record. Terminated
// contractors remain queryable.
func (l *Ledger) ViewContractor(id uint64) (ContractorView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.get(id)
	if err != nil {
		return ContractorView{}, err
	}

	agents := make([]string, 0, len(c.Agents))
	for a := range c.Agents {
		agents = append(agents, a)
	}

	return ContractorView{
		ID:             c.ID,
		Name:           c.Name,
		Wallet:         c.Wallet,
		PerCycle:       c.PerCycle,
		StartingCycle:  c.StartingCycle,
		CyclesPaid:     c.CyclesPaid,
		Accrued:        c.Accrued,
		Paid:           c.Paid,
		PendingCredits: c.PendingCredits,
		PendingDebits:  c.PendingDebits,
		AuthCeiling:    l.ceiling(c),
		Agents:         agents,
		Active:         c.Active,
		TerminatedAt:   c.TerminatedAt,
	}, nil
}

// ChangeName updates the display label
func (l *Ledger) ChangeName(ctx context.Context, caller string, id uint64, name string) error {
	return l.change(ctx, caller, id, "name", func(c *Contractor) error {
		c.Name = name
		return nil
	})
}

// ChangeWallet moves the contractor to a new settlement address
func (l *Ledger) ChangeWallet(ctx context.Context, caller string, id uint64, wallet string) error {
	return l.change(ctx, caller, id, "wallet", func(c *Contractor) error {
		if _, exists := l.walletIndex[wallet]; exists {
			return ErrDuplicateWallet
		}
		delete(l.walletIndex, c.Wallet)
		c.Wallet = wallet
		l.walletIndex[wallet] = c.ID
		return nil
	})
}

// ChangeSalary updates the per-cycle rate, re-validated against MaxSalary.
// Already accounted cycles keep the old rate.
func (l *Ledger) ChangeSalary(ctx context.Context, caller string, id uint64, perCycle decimal.Decimal) error {
	return l.change(ctx, caller, id, "per_cycle", func(c *Contractor) error {
		if perCycle.IsNegative() {
			return ErrInvalidAmount
		}
		if perCycle.GreaterThan(l.maxSalary) {
			return ErrLimitExceeded
		}
		l.settleAccrual(c)
		c.PerCycle = perCycle
		return nil
	})
}

// ChangeStartingCycle moves the accrual start. Changes that would reach back
// into already settled cycles are rejected to keep the ledger monotonic.
func (l *Ledger) ChangeStartingCycle(ctx context.Context, caller string, id uint64, start uint64) error {
	return l.change(ctx, caller, id, "starting_cycle", func(c *Contractor) error {
		if start < c.CyclesPaid {
			return ErrCycleConflict
		}
		c.StartingCycle = start
		return nil
	})
}

// AddPaymentPlan layers an installment schedule on top of the salary: amount
// accrues per cycle for the given number of installments.
func (l *Ledger) AddPaymentPlan(ctx context.Context, caller string, id uint64, amount decimal.Decimal, installments uint64) error {
	return l.change(ctx, caller, id, "payment_plan", func(c *Contractor) error {
		if !amount.IsPositive() || installments == 0 {
			return ErrInvalidAmount
		}
		if c.Plan != nil && c.Plan.Remaining > 0 {
			return ErrPlanActive
		}
		l.settleAccrual(c)
		c.Plan = &PaymentPlan{PerCycle: amount, Remaining: installments}
		return nil
	})
}

// change runs an admin-only mutation of an active contractor
func (l *Ledger) change(ctx context.Context, caller string, id uint64, field string, fn func(*Contractor) error) error {
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
	if err := fn(c); err != nil {
		return err
	}

	l.nonce++
	l.emit(ctx, messaging.SubjectContractorChanged, messaging.ContractorEvent{
		ContractorID: c.ID,
		Name:         c.Name,
		Wallet:       c.Wallet,
		PerCycle:     c.PerCycle.String(),
		StartCycle:   c.StartingCycle,
		Field:        field,
	})
	return nil
}

// TerminateContractor accounts accrual through the current cycle, then
// freezes the record. The remaining balance stays claimable; no further
// salary accrues.
func (l *Ledger) TerminateContractor(ctx context.Context, caller string, id uint64) error {
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

	l.settleAccrual(c)
	c.Active = false
	c.TerminatedAt = l.cycleCount
	delete(l.walletIndex, c.Wallet)
	l.totalWorkers--
	l.nonce++

	l.emit(ctx, messaging.SubjectContractorTerminated, messaging.ContractorEvent{
		ContractorID: c.ID,
		Name:         c.Name,
		Wallet:       c.Wallet,
		PerCycle:     c.PerCycle.String(),
		StartCycle:   c.StartingCycle,
	})
	return nil
}

// AuthorizeAgent grants or revokes a third party's ability to settle on the
// contractor's behalf
func (l *Ledger) AuthorizeAgent(ctx context.Context, caller string, id uint64, wallet string, authorize bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.get(id)
	if err != nil {
		return err
	}
	if err := l.authorize(caller, opOwner, c); err != nil {
		return err
	}
	if !c.Active {
		return ErrTerminated
	}

	if authorize {
		c.Agents[wallet] = true
	} else {
		delete(c.Agents, wallet)
	}
	l.nonce++

	l.emit(ctx, messaging.SubjectContractorChanged, messaging.ContractorEvent{
		ContractorID: c.ID,
		Name:         c.Name,
		Wallet:       c.Wallet,
		PerCycle:     c.PerCycle.String(),
		StartCycle:   c.StartingCycle,
		Field:        "agents",
	})
	return nil
}
