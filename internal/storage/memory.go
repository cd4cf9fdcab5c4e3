package storage

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process Directory and Sink with the same upsert and
// de-duplication semantics as Postgres. Used for local runs and tests.
type Memory struct {
	names Resolver

	mu        sync.RWMutex
	templates map[string]*Template
	users     map[string]*User
	prices    map[string]map[string]float64
	sessions  map[string]*SessionRecord
	logs      map[string][]LogEntry
	attempts  map[string]bool
}

// SessionRecord is the stored state of a session row.
type SessionRecord struct {
	ContactNumber string
	Summary       SessionSummary
	Counters      BillingCounters
}

// NewMemory creates an empty Memory store.
func NewMemory(names Resolver) *Memory {
	return &Memory{
		names:     names,
		templates: make(map[string]*Template),
		users:     make(map[string]*User),
		prices:    make(map[string]map[string]float64),
		sessions:  make(map[string]*SessionRecord),
		logs:      make(map[string][]LogEntry),
		attempts:  make(map[string]bool),
	}
}

func key(parts ...string) string { return strings.Join(parts, "/") }

// PutTemplate stores a template for the tenant's subject.
func (m *Memory) PutTemplate(tenant, subjectID string, t Template) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns := string(m.names.Namespace(tenant))
	m.templates[key(ns, m.names.TemplatesTable(subjectID), t.Name)] = &t
}

// PutUser stores a user record in the tenant's namespace.
func (m *Memory) PutUser(tenant string, u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[key(string(m.names.Namespace(tenant)), u.ID)] = &u
}

// PutPrices stores the category prices of the subject for dialCode.
func (m *Memory) PutPrices(tenant, subjectID, dialCode string, prices map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns := string(m.names.Namespace(tenant))
	cp := make(map[string]float64, len(prices))
	for k, v := range prices {
		cp[k] = v
	}
	m.prices[key(ns, m.names.PricingTable(subjectID), dialCode)] = cp
}

// Session returns the stored session of contact, if any.
func (m *Memory) Session(tenant, subjectID, contact string) (SessionRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns := string(m.names.Namespace(tenant))
	s, ok := m.sessions[key(ns, m.names.SessionsTable(subjectID), contact)]
	if !ok {
		return SessionRecord{}, false
	}
	return *s, true
}

// Logs returns the subject's log entries in insertion order.
func (m *Memory) Logs(tenant, subjectID string) []LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns := string(m.names.Namespace(tenant))
	src := m.logs[key(ns, m.names.LiveChatTable(subjectID))]
	out := make([]LogEntry, len(src))
	copy(out, src)
	return out
}

func (m *Memory) Template(_ context.Context, ns Namespace, subjectID, name string) (*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[key(string(ns), m.names.TemplatesTable(subjectID), name)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) User(_ context.Context, ns Namespace, subjectID string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[key(string(ns), subjectID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) UnitPrice(_ context.Context, ns Namespace, subjectID, dialCode, category string) (*float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.prices[key(string(ns), m.names.PricingTable(subjectID), dialCode)]
	if !ok {
		return nil, ErrNotFound
	}
	price, ok := row[category]
	if !ok {
		return nil, nil
	}
	return &price, nil
}

func (m *Memory) UpsertSessions(_ context.Context, ns Namespace, muts []*Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mut := range muts {
		contact := mut.SessionUpdate.Filter.ContactNumber
		k := key(string(ns), m.names.SessionsTable(mut.SubjectID), contact)
		if s, ok := m.sessions[k]; ok {
			s.Summary = mut.SessionUpdate.Update.Set
			continue
		}
		m.sessions[k] = &SessionRecord{
			ContactNumber: contact,
			Summary:       mut.SessionUpdate.Update.Set,
			Counters:      mut.SessionUpdate.Update.SetOnInsert,
		}
	}
	return nil
}

func (m *Memory) InsertLogs(_ context.Context, ns Namespace, muts []*Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mut := range muts {
		table := key(string(ns), m.names.LiveChatTable(mut.SubjectID))
		ak := key(table, mut.LiveChatInsert.AttemptID)
		if m.attempts[ak] {
			continue
		}
		m.attempts[ak] = true
		m.logs[table] = append(m.logs[table], mut.LiveChatInsert)
	}
	return nil
}
