package remitter

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/terminal-bench/remitter/internal/token"
	"github.com/terminal-bench/remitter/pkg/messaging"
)

// Ledger is the payroll remitter state machine. It owns the contractor
// registry, the cycle accrual engine, and the authorization and settlement
// ledger. Every mutation executes under one lock: operations are serialized
// and either fully commit or fully fail.
type Ledger struct {
	mu sync.Mutex

	currency token.Currency
	custody  string // account the ledger settles from
	events   EventSink

	superAdmin string
	admins     map[string]bool

	contractors map[uint64]*Contractor
	walletIndex map[string]uint64 // active wallet -> id
	nextID      uint64

	totalPayroll        decimal.Decimal
	totalPendingCredits decimal.Decimal
	totalPendingDebits  decimal.Decimal
	totalCredits        decimal.Decimal
	totalDebits         decimal.Decimal
	totalPaid           decimal.Decimal
	totalWorkers        int
	maxSalary           decimal.Decimal
	defaultAuth         decimal.Decimal
	nonce               uint64
	cycleCount          uint64
}

// Config holds ledger construction parameters
type Config struct {
	Currency    token.Currency
	Custody     string // settlement account, defaults to "remitter"
	Events      EventSink
	SuperAdmin  string
	DefaultAuth decimal.Decimal
	MaxSalary   decimal.Decimal
}

// New creates a ledger with an empty registry at cycle zero
func New(cfg Config) *Ledger {
	custody := cfg.Custody
	if custody == "" {
		custody = "remitter"
	}
	return &Ledger{
		currency:    cfg.Currency,
		custody:     custody,
		events:      cfg.Events,
		superAdmin:  cfg.SuperAdmin,
		admins:      make(map[string]bool),
		contractors: make(map[uint64]*Contractor),
		walletIndex: make(map[string]uint64),
		defaultAuth: cfg.DefaultAuth,
		maxSalary:   cfg.MaxSalary,
	}
}

// operation classes for the authorization policy
type opClass int

const (
	opAdmin  opClass = iota // registry mutation, credits, debits, plans
	opSettle                // payments by the contractor or an authorized agent
	opOwner                 // agent management: contractor or admin
	opSuper                 // global configuration
)

// authorize is the single policy gate consulted by every mutating operation.
// c may be nil for operations without a target contractor.
func (l *Ledger) authorize(caller string, class opClass, c *Contractor) error {
	isAdmin := caller == l.superAdmin || l.admins[caller]

	switch class {
	case opAdmin:
		if isAdmin {
			return nil
		}
	case opSettle:
		if c != nil && (caller == c.Wallet || c.Agents[caller]) {
			return nil
		}
	case opOwner:
		if isAdmin || (c != nil && caller == c.Wallet) {
			return nil
		}
	case opSuper:
		if caller == l.superAdmin {
			return nil
		}
	}
	return ErrUnauthorized
}

func (l *Ledger) get(id uint64) (*Contractor, error) {
	c, ok := l.contractors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// ceiling returns the contractor's effective authorization ceiling
func (l *Ledger) ceiling(c *Contractor) decimal.Decimal {
	if c.AuthCeiling.IsZero() {
		return l.defaultAuth
	}
	return c.AuthCeiling
}

// Custody returns the settlement account the ledger pays from
func (l *Ledger) Custody() string {
	return l.custody
}

// State is a consistent point-in-time snapshot of the ledger aggregates
type State struct {
	TotalPayroll        decimal.Decimal `json:"total_payroll"`
	TotalPendingCredits decimal.Decimal `json:"total_pending_credits"`
	TotalPendingDebits  decimal.Decimal `json:"total_pending_debits"`
	TotalCredits        decimal.Decimal `json:"total_credits"`
	TotalDebits         decimal.Decimal `json:"total_debits"`
	TotalPaid           decimal.Decimal `json:"total_paid"`
	TotalWorkers        int             `json:"total_workers"`
	MaxSalary           decimal.Decimal `json:"max_salary"`
	DefaultAuth         decimal.Decimal `json:"default_auth"`
	Nonce               uint64          `json:"nonce"`
	CycleCount          uint64          `json:"cycle_count"`
}

// ViewState returns the ledger aggregates
func (l *Ledger) ViewState() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return State{
		TotalPayroll:        l.totalPayroll,
		TotalPendingCredits: l.totalPendingCredits,
		TotalPendingDebits:  l.totalPendingDebits,
		TotalCredits:        l.totalCredits,
		TotalDebits:         l.totalDebits,
		TotalPaid:           l.totalPaid,
		TotalWorkers:        l.totalWorkers,
		MaxSalary:           l.maxSalary,
		DefaultAuth:         l.defaultAuth,
		Nonce:               l.nonce,
		CycleCount:          l.cycleCount,
	}
}

// SetDefaultAuth sets the default authorization ceiling for contractors
// without a ceiling of their own
func (l *Ledger) SetDefaultAuth(ctx context.Context, caller string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, opSuper, nil); err != nil {
		return err
	}
	if amount.IsNegative() {
		return ErrInvalidAmount
	}

	l.defaultAuth = amount
	l.nonce++
	l.emit(ctx, messaging.SubjectConfigChanged, messaging.ConfigEvent{Field: "default_auth", Value: amount.String()})
	return nil
}

// SetMaxSalary sets the global per-cycle salary ceiling. Existing
// contractors above the new ceiling keep their salary; only new values are
// validated against it.
func (l *Ledger) SetMaxSalary(ctx context.Context, caller string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, opSuper, nil); err != nil {
		return err
	}
	if amount.IsNegative() {
		return ErrInvalidAmount
	}

	l.maxSalary = amount
	l.nonce++
	l.emit(ctx, messaging.SubjectConfigChanged, messaging.ConfigEvent{Field: "max_salary", Value: amount.String()})
	return nil
}

// SetAdmin grants or revokes the admin role for a wallet
func (l *Ledger) SetAdmin(ctx context.Context, caller, wallet string, isAdmin bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, opSuper, nil); err != nil {
		return err
	}

	if isAdmin {
		l.admins[wallet] = true
	} else {
		delete(l.admins, wallet)
	}
	l.nonce++
	l.emit(ctx, messaging.SubjectConfigChanged, messaging.ConfigEvent{Field: "admin:" + wallet, Value: boolStr(isAdmin)})
	return nil
}

// SetSuperAdmin hands the super-admin role to another wallet
func (l *Ledger) SetSuperAdmin(ctx context.Context, caller, wallet string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.authorize(caller, opSuper, nil); err != nil {
		return err
	}

	l.superAdmin = wallet
	l.nonce++
	l.emit(ctx, messaging.SubjectConfigChanged, messaging.ConfigEvent{Field: "super_admin", Value: wallet})
	return nil
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
