package sink

import (
	"context"
	"sync"
	"time"

	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
)

// Memory keeps records in process. Used when no database is configured.
type Memory struct {
	mu      sync.RWMutex
	records []contractx.ErrorRecord
	limit   int
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 1000
	}
	return &Memory{limit: limit}
}

func (m *Memory) Write(_ context.Context, rec contractx.ErrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	if over := len(m.records) - m.limit; over > 0 {
		m.records = append([]contractx.ErrorRecord(nil), m.records[over:]...)
	}
	return nil
}

func (m *Memory) Records() []contractx.ErrorRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]contractx.ErrorRecord(nil), m.records...)
}

func (m *Memory) CountUnresolvedSince(_ context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rec := range m.records {
		if !rec.Resolved && !rec.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}
