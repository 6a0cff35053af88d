// Package storetest provides an in-memory, transactional stand-in for the
// Postgres repository. Writes made inside RunInTx are staged and only become
// visible when the callback returns nil.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thatzerroguy/expense-tracker/internal/domain"
	"github.com/thatzerroguy/expense-tracker/internal/store"
)

// Memory holds templates and entries. The zero value is not usable; call NewMemory.
type Memory struct {
	// txMu serializes transactions, standing in for row locks.
	txMu sync.Mutex
	mu   sync.Mutex

	templates map[uuid.UUID]domain.RecurringTemplate
	entries   []domain.LedgerEntry
	users     map[uuid.UUID]bool

	// Fault injection. FindErr fails scans of a kind, the others fail the
	// matching write for every template unless a per-template error is set.
	FindErr         map[domain.Kind]error
	LockErr         error
	InsertErr       error
	UpdateErr       error
	InsertErrFor    map[uuid.UUID]error
	UpdateErrFor    map[uuid.UUID]error
	BeforeLockHook  func(id uuid.UUID)
	Commits         int
	Rollbacks       int
	FindCalls       map[domain.Kind]int
	LockedTemplates []uuid.UUID
}

// NewMemory returns an empty store seeded with the given templates.
func NewMemory(templates ...domain.RecurringTemplate) *Memory {
	m := &Memory{
		templates: make(map[uuid.UUID]domain.RecurringTemplate),
		FindCalls: make(map[domain.Kind]int),
	}
	for _, tpl := range templates {
		m.templates[tpl.ID] = tpl
	}
	return m
}

// RestrictUsers makes inserts for any other owner fail with store.ErrOwnerNotFound.
func (m *Memory) RestrictUsers(ids ...uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		m.users[id] = true
	}
}

// Template returns the committed state of a template.
func (m *Memory) Template(id uuid.UUID) (domain.RecurringTemplate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[id]
	return tpl, ok
}

// PutTemplate inserts or replaces a committed template.
func (m *Memory) PutTemplate(tpl domain.RecurringTemplate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[tpl.ID] = tpl
}

// DeleteTemplate removes a committed template.
func (m *Memory) DeleteTemplate(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.templates, id)
}

// Entries returns the committed ledger entries.
func (m *Memory) Entries() []domain.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.LedgerEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// EntriesFor returns the committed entries linked to one template.
func (m *Memory) EntriesFor(templateID uuid.UUID) []domain.LedgerEntry {
	var out []domain.LedgerEntry
	for _, e := range m.Entries() {
		if e.TemplateID != nil && *e.TemplateID == templateID {
			out = append(out, e)
		}
	}
	return out
}

func (m *Memory) FindDueTemplates(ctx context.Context, kind domain.Kind, asOf time.Time) ([]domain.RecurringTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FindCalls[kind]++
	if err := m.FindErr[kind]; err != nil {
		return nil, err
	}

	var due []domain.RecurringTemplate
	for _, tpl := range m.templates {
		if tpl.Kind == kind && tpl.IsActive && !tpl.NextExecutionDate.After(asOf) {
			due = append(due, tpl)
		}
	}
	return due, nil
}

func (m *Memory) RunInTx(ctx context.Context, fn func(tx store.LedgerTx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := &memoryTx{m: m, updates: make(map[uuid.UUID]time.Time)}
	if err := fn(tx); err != nil {
		m.mu.Lock()
		m.Rollbacks++
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, tx.entries...)
	for id, next := range tx.updates {
		tpl := m.templates[id]
		tpl.NextExecutionDate = next
		m.templates[id] = tpl
	}
	m.Commits++
	return nil
}

type memoryTx struct {
	m       *Memory
	entries []domain.LedgerEntry
	updates map[uuid.UUID]time.Time
}

func (t *memoryTx) LockTemplate(ctx context.Context, kind domain.Kind, id uuid.UUID) (*domain.RecurringTemplate, error) {
	if hook := t.m.BeforeLockHook; hook != nil {
		hook(id)
	}

	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	t.m.LockedTemplates = append(t.m.LockedTemplates, id)
	if t.m.LockErr != nil {
		return nil, t.m.LockErr
	}
	tpl, ok := t.m.templates[id]
	if !ok || tpl.Kind != kind {
		return nil, store.ErrTemplateNotFound
	}
	if next, ok := t.updates[id]; ok {
		tpl.NextExecutionDate = next
	}
	return &tpl, nil
}

func (t *memoryTx) InsertLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	if entry.TemplateID != nil {
		if err := t.m.InsertErrFor[*entry.TemplateID]; err != nil {
			return err
		}
	}
	if t.m.InsertErr != nil {
		return t.m.InsertErr
	}
	if t.m.users != nil && !t.m.users[entry.UserID] {
		return store.ErrOwnerNotFound
	}
	t.entries = append(t.entries, *entry)
	return nil
}

func (t *memoryTx) UpdateNextExecutionDate(ctx context.Context, kind domain.Kind, id uuid.UUID, next time.Time) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	if err := t.m.UpdateErrFor[id]; err != nil {
		return err
	}
	if t.m.UpdateErr != nil {
		return t.m.UpdateErr
	}
	if tpl, ok := t.m.templates[id]; !ok || tpl.Kind != kind {
		return store.ErrTemplateNotFound
	}
	t.updates[id] = next
	return nil
}
