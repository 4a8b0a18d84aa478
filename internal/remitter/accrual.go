package remitter

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/terminal-bench/remitter/pkg/messaging"
)

// unaccounted computes the salary accrued since the last accounting without
// mutating anything. Returns the amount, the number of cycles it covers, and
// how many of those cycles draw from the payment plan.
func (l *Ledger) unaccounted(c *Contractor) (decimal.Decimal, uint64, uint64) {
	if !c.Active {
		return decimal.Zero, 0, 0
	}

	base := c.CyclesPaid
	if c.StartingCycle > base {
		base = c.StartingCycle
	}
	if l.cycleCount <= base {
		return decimal.Zero, 0, 0
	}
	n := l.cycleCount - base

	owed := c.PerCycle.Mul(decimal.NewFromInt(int64(n)))

	var planCycles uint64
	if c.Plan != nil && c.Plan.Remaining > 0 {
		planCycles = n
		if c.Plan.Remaining < planCycles {
			planCycles = c.Plan.Remaining
		}
		owed = owed.Add(c.Plan.PerCycle.Mul(decimal.NewFromInt(int64(planCycles))))
	}

	return owed, n, planCycles
}

// settleAccrual rolls unaccounted salary into the contractor's accrued
// balance and the payroll aggregate. Idempotent within a cycle: calling it
// twice at the same cycle count is a no-op the second time. Must be called
// with the ledger lock held. Reports whether anything was settled.
func (l *Ledger) settleAccrual(c *Contractor) bool {
	owed, n, planCycles := l.unaccounted(c)
	if !c.Active {
		return false
	}
	if l.cycleCount > c.CyclesPaid {
		c.CyclesPaid = l.cycleCount
	}
	if n == 0 {
		return false
	}

	c.Accrued = c.Accrued.Add(owed)
	l.totalPayroll = l.totalPayroll.Add(owed)
	if planCycles > 0 {
		c.Plan.Remaining -= planCycles
		if c.Plan.Remaining == 0 {
			c.Plan = nil
		}
	}
	return true
}

// AdvanceCycle ticks the global cycle counter by exactly one. Accrual for
// every active contractor is accounted through the closing cycle first, so
// the emitted tuple reflects settled aggregates. Callable by anyone; the
// scheduler is an external actor. Returns the new cycle count.
func (l *Ledger) AdvanceCycle(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, c := range l.contractors {
		if c.Active {
			l.settleAccrual(c)
		}
	}

	ev := messaging.CycleEvent{
		Cycle:        l.cycleCount,
		TotalPayroll: l.totalPayroll.String(),
		TotalPaid:    l.totalPaid.String(),
		Increment:    1,
	}

	l.cycleCount++
	l.nonce++
	l.emit(ctx, messaging.SubjectCycleAdvanced, ev)

	return l.cycleCount, nil
}

// OwedSalary returns the contractor's unaccounted salary and the number of
// cycles it covers. After UpdateState the figure resets; the cumulative
// claimable balance is exposed by MaxPayable. For a terminated contractor
// both values are zero: accrual was frozen at termination.
func (l *Ledger) OwedSalary(id uint64) (decimal.Decimal, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.get(id)
	if err != nil {
		return decimal.Zero, 0, err
	}

	owed, n, _ := l.unaccounted(c)
	return owed, n, nil
}

// UpdateState batch-settles accrual bookkeeping for the given contractors.
// Idempotent per cycle. Unknown ids fail the whole batch before any
// accounting happens.
func (l *Ledger) UpdateState(ctx context.Context, ids []uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cs := make([]*Contractor, 0, len(ids))
	for _, id := range ids {
		c, err := l.get(id)
		if err != nil {
			return err
		}
		cs = append(cs, c)
	}

	settled := false
	for _, c := range cs {
		if l.settleAccrual(c) {
			settled = true
		}
	}
	if settled {
		l.nonce++
	}
	return nil
}
