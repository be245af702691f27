// Package reconcile keeps payments that were captured without an order row and
// replays them when the gateway reports the payment again.
package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"bazar_back_end/internal/models"
)

var ErrNotFound = errors.New("reconciliation record not found")

type Store interface {
	Save(ctx context.Context, r models.Reconciliation) error
	Get(ctx context.Context, paymentRef string) (*models.Reconciliation, error)
	List(ctx context.Context, includeResolved bool) ([]models.Reconciliation, error)
	Resolve(ctx context.Context, paymentRef, orderID string, at time.Time) error
}

type MemoryStore struct {
	mu      sync.Mutex
	records map[string]models.Reconciliation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.Reconciliation)}
}

func (s *MemoryStore) Save(_ context.Context, r models.Reconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.PaymentRef] = r
	return nil
}

func (s *MemoryStore) Get(_ context.Context, ref string) (*models.Reconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *MemoryStore) List(_ context.Context, includeResolved bool) ([]models.Reconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Reconciliation, 0, len(s.records))
	for _, r := range s.records {
		if r.ResolvedOrderID != "" && !includeResolved {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Resolve(_ context.Context, ref, orderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[ref]
	if !ok {
		return ErrNotFound
	}
	r.ResolvedOrderID = orderID
	r.ResolvedAt = &at
	s.records[ref] = r
	return nil
}

var _ Store = (*MemoryStore)(nil)
