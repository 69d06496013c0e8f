package memory

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a simple in-process store for local/dev use and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Record)}
}

func (s *InMemoryStore) Load(_ context.Context, userID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *InMemoryStore) Create(_ context.Context, userID string, profile Profile) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[userID]; ok {
		return cloneRecord(existing), nil
	}
	rec := Record{UserID: userID, LastUpdated: time.Now().UTC()}
	rec.ApplyProfile(profile)
	s.records[userID] = rec
	return cloneRecord(rec), nil
}

func (s *InMemoryStore) Save(_ context.Context, record Record) error {
	record.LastUpdated = time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.UserID] = cloneRecord(record)
	return nil
}

func (s *InMemoryStore) SweepExpired(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.records {
		kept := rec.Insights[:0:0]
		for _, ins := range rec.Insights {
			if ins.CreatedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, ins)
		}
		if len(kept) != len(rec.Insights) {
			rec.Insights = kept
			s.records[id] = rec
		}
	}
	return removed, nil
}

func (s *InMemoryStore) Close() error { return nil }

func cloneRecord(rec Record) Record {
	out := rec
	out.Insights = make([]Insight, len(rec.Insights))
	copy(out.Insights, rec.Insights)
	return out
}
