package db

import (
	"context"
	"errors"
	"sync"

	"visitorgate/apperr"
	"visitorgate/models"
)

var errUnreachable = errors.New("backend unreachable")

// MemoryStore is a process-local Store for development and tests. SetDown
// makes every call fail like an unreachable backend, and FailOn fails a single
// table.
type MemoryStore struct {
	mu        sync.Mutex
	visitors  []models.VisitorSession
	logs      []models.VisitLogEntry
	locations []models.Location
	frequent  []models.FrequentVisitor
	down      bool
	failing   map[models.Entity]bool
	calls     []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{failing: make(map[models.Entity]bool)}
}

// SetDown toggles simulated unavailability.
func (m *MemoryStore) SetDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

// FailOn makes every call touching table fail until cleared.
func (m *MemoryStore) FailOn(table models.Entity, fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[table] = fail
}

// Calls returns the operations performed so far, as "op table".
func (m *MemoryStore) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return &apperr.RemoteError{Op: "ping", Entity: "memory", Err: errUnreachable}
	}
	return nil
}

// enter records the call and reports a simulated failure. Callers hold m.mu.
func (m *MemoryStore) enter(op string, table models.Entity) error {
	m.calls = append(m.calls, op+" "+string(table))
	if m.down || m.failing[table] {
		return &apperr.RemoteError{Op: op, Entity: string(table), Err: errUnreachable}
	}
	return nil
}

func (m *MemoryStore) ListVisitors(context.Context) ([]models.VisitorSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list", models.EntityVisitors); err != nil {
		return nil, err
	}
	return append([]models.VisitorSession(nil), m.visitors...), nil
}

func (m *MemoryStore) ListVisitLogs(context.Context) ([]models.VisitLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list", models.EntityVisitLogs); err != nil {
		return nil, err
	}
	return append([]models.VisitLogEntry(nil), m.logs...), nil
}

func (m *MemoryStore) ListLocations(context.Context) ([]models.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list", models.EntityLocations); err != nil {
		return nil, err
	}
	return append([]models.Location(nil), m.locations...), nil
}

func (m *MemoryStore) ListFrequentVisitors(context.Context) ([]models.FrequentVisitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list", models.EntityFrequentVisitors); err != nil {
		return nil, err
	}
	return append([]models.FrequentVisitor(nil), m.frequent...), nil
}

func (m *MemoryStore) LocationIDs(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list ids", models.EntityLocations); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(m.locations))
	for _, l := range m.locations {
		ids = append(ids, l.ID)
	}
	return ids, nil
}

func (m *MemoryStore) DeleteAll(_ context.Context, table models.Entity) error {
	if err := checkTable(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("delete", table); err != nil {
		return err
	}
	switch table {
	case models.EntityVisitors:
		m.visitors = nil
	case models.EntityVisitLogs:
		m.logs = nil
	case models.EntityLocations:
		m.locations = nil
	case models.EntityFrequentVisitors:
		m.frequent = nil
	}
	return nil
}

func (m *MemoryStore) DeleteLocations(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("delete", models.EntityLocations); err != nil {
		return err
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.locations[:0:0]
	for _, l := range m.locations {
		if !drop[l.ID] {
			kept = append(kept, l)
		}
	}
	m.locations = kept
	return nil
}

func (m *MemoryStore) InsertVisitors(_ context.Context, visitors []models.VisitorSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("insert", models.EntityVisitors); err != nil {
		return err
	}
	m.visitors = append(m.visitors, visitors...)
	return nil
}

func (m *MemoryStore) InsertVisitLogs(_ context.Context, logs []models.VisitLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("insert", models.EntityVisitLogs); err != nil {
		return err
	}
	m.logs = append(m.logs, logs...)
	return nil
}

func (m *MemoryStore) InsertFrequentVisitors(_ context.Context, visitors []models.FrequentVisitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("insert", models.EntityFrequentVisitors); err != nil {
		return err
	}
	m.frequent = append(m.frequent, visitors...)
	return nil
}

func (m *MemoryStore) UpsertLocations(_ context.Context, locations []models.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("upsert", models.EntityLocations); err != nil {
		return err
	}
	for _, l := range locations {
		replaced := false
		for i := range m.locations {
			if m.locations[i].ID == l.ID {
				m.locations[i] = l
				replaced = true
				break
			}
		}
		if !replaced {
			m.locations = append(m.locations, l)
		}
	}
	return nil
}
