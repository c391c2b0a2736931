// Package store provides an in-memory Graph and LedgerWriter implementation
// for tests and development.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brandfx/commission-engine/referral"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	users   map[referral.UserID]*referral.User
	byKey   map[referral.VantageKey]referral.UserID
	incomes map[referral.UserID][]referral.Income
	nextID  referral.UserID
}

func NewMemory() *Memory {
	return &Memory{
		users:   make(map[referral.UserID]*referral.User),
		byKey:   make(map[referral.VantageKey]referral.UserID),
		incomes: make(map[referral.UserID][]referral.Income),
		nextID:  1,
	}
}

// AddUser registers a node and returns its assigned ID. Wallet fields start
// at zero unless set on u.
func (m *Memory) AddUser(u referral.User) referral.UserID {
	m.mu.Lock()
	defer m.mu.Unlock()

	u.ID = m.nextID
	m.nextID++
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.users[u.ID] = &u
	if u.VantageKey != "" {
		m.byKey[u.VantageKey] = u.ID
	}
	return u.ID
}

// User returns a copy of the stored node.
func (m *Memory) User(id referral.UserID) (referral.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return referral.User{}, false
	}
	return *u, true
}

// SetActive flips a node's active flag.
func (m *Memory) SetActive(id referral.UserID, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.IsActive = active
	}
}

// IncomesFor returns the income records credited to a user, oldest first.
func (m *Memory) IncomesFor(id referral.UserID) []referral.Income {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]referral.Income, len(m.incomes[id]))
	copy(result, m.incomes[id])
	return result
}

// =============================================================================
// GRAPH (referral.Graph interface)
// =============================================================================

func (m *Memory) FindByVantageKey(_ context.Context, key referral.VantageKey) (*referral.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byKey[key]
	if !ok {
		return nil, referral.ErrUserNotFound
	}
	u := *m.users[id]
	return &u, nil
}

func (m *Memory) ParentOf(_ context.Context, u *referral.User) (*referral.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if u.ParentID == nil {
		return nil, nil
	}
	parent, ok := m.users[*u.ParentID]
	if !ok {
		return nil, referral.ErrUserNotFound
	}
	p := *parent
	return &p, nil
}

func (m *Memory) DirectReferralCount(_ context.Context, u *referral.User) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, candidate := range m.users {
		if candidate.ParentID != nil && *candidate.ParentID == u.ID {
			count++
		}
	}
	return count, nil
}

// =============================================================================
// LEDGER WRITER (referral.LedgerWriter interface)
// =============================================================================

// CreditAll applies a distribution atomically: all beneficiaries are
// validated before any record or balance is touched.
func (m *Memory) CreditAll(_ context.Context, credits []referral.Credit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range credits {
		if _, ok := m.users[c.Beneficiary]; !ok {
			return &referral.CreditError{UserID: c.Beneficiary, Level: c.Level, Err: referral.ErrUserNotFound}
		}
	}

	now := time.Now().UTC()
	for _, c := range credits {
		u := m.users[c.Beneficiary]
		u.WalletBalance = u.WalletBalance.Add(c.Amount)
		u.TotalEarned = u.TotalEarned.Add(c.Amount)

		m.incomes[c.Beneficiary] = append(m.incomes[c.Beneficiary], referral.Income{
			ID:               uuid.NewString(),
			UserID:           c.Beneficiary,
			Amount:           c.Amount,
			Percentage:       c.Percentage,
			Level:            c.Level,
			Category:         c.Category,
			Description:      c.Description,
			SourceVantageKey: c.SourceVantageKey,
			SourceAmount:     c.SourceAmount,
			SourceRef:        c.SourceRef,
			CreatedAt:        now,
		})
	}
	return nil
}
