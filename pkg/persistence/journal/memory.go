package journal

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/go-go-golems/streamchat/pkg/chatclient"
	"github.com/pkg/errors"
)

// InMemoryStore mirrors the ordering semantics of the SQLite store.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]chatclient.ExchangeRecord
}

var _ Store = &InMemoryStore{}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: map[string]chatclient.ExchangeRecord{}}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) RecordExchange(_ context.Context, rec chatclient.ExchangeRecord) error {
	if strings.TrimSpace(rec.ExchangeID) == "" {
		return errors.New("in-memory journal: exchange id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ExchangeID] = rec
	return nil
}

func (s *InMemoryStore) List(_ context.Context, q Query) ([]chatclient.ExchangeRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	s.mu.Lock()
	out := make([]chatclient.ExchangeRecord, 0, len(s.records))
	for _, rec := range s.records {
		if q.SessionID != "" && rec.SessionID != q.SessionID {
			continue
		}
		if q.State != "" && rec.State.String() != q.State {
			continue
		}
		out = append(out, rec)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ExchangeID > out[j].ExchangeID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
