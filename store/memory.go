package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Recorder used by tests and `serve --store memory`.
type Memory struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemory returns an empty Memory recorder.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Save(ctx context.Context, rec *Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rec == nil || rec.UserID == "" {
		return "", ErrInvalidRecord
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	cp := *rec
	cp.Samples = append([]float64(nil), rec.Samples...)

	m.mu.Lock()
	m.records = append(m.records, cp)
	m.mu.Unlock()
	return rec.ID, nil
}

func (m *Memory) List(ctx context.Context, q Query) ([]Record, error) {
	if q.UserID == "" {
		return nil, ErrInvalidRecord
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := q.limit()
	skipped := 0
	out := []Record{}
	for i := range m.records {
		rec := &m.records[i]
		if !q.matches(rec) {
			continue
		}
		if skipped < q.Skip {
			skipped++
			continue
		}
		out = append(out, *rec)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
