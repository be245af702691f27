package orders

import (
	"context"
	"sort"
	"sync"

	"bazar_back_end/internal/models"
)

// MemoryRepository keeps orders in process. Used by tests and ORDER_STORE=memory.
type MemoryRepository struct {
	mu        sync.RWMutex
	byID      map[string]models.Order
	byNumber  map[string]string
	byPayment map[string]string
	log       map[string][]models.StatusTransition
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:      make(map[string]models.Order),
		byNumber:  make(map[string]string),
		byPayment: make(map[string]string),
		log:       make(map[string][]models.StatusTransition),
	}
}

func (r *MemoryRepository) Insert(_ context.Context, o *models.Order, first models.StatusTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byNumber[o.OrderNumber]; taken {
		return ErrDuplicateNumber
	}
	if o.PaymentRef != "" {
		if _, taken := r.byPayment[o.PaymentRef]; taken {
			return ErrDuplicatePaymentRef
		}
		r.byPayment[o.PaymentRef] = o.ID
	}
	r.byNumber[o.OrderNumber] = o.ID
	r.byID[o.ID] = cloneOrder(*o)
	r.log[o.ID] = []models.StatusTransition{first}
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneOrder(o)
	return &out, nil
}

func (r *MemoryRepository) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	r.mu.RLock()
	id, ok := r.byNumber[number]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryRepository) GetByPaymentRef(ctx context.Context, ref string) (*models.Order, error) {
	r.mu.RLock()
	id, ok := r.byPayment[ref]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID string) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Order
	for _, o := range r.byID {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *MemoryRepository) List(_ context.Context, filter models.OrderFilter) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Order
	for _, o := range r.byID {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id string, t models.StatusTransition, payment models.PaymentStatus, paymentRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != t.From {
		return ErrStaleStatus
	}
	if paymentRef != "" && paymentRef != o.PaymentRef {
		if owner, taken := r.byPayment[paymentRef]; taken && owner != id {
			return ErrDuplicatePaymentRef
		}
		r.byPayment[paymentRef] = id
		o.PaymentRef = paymentRef
	}
	o.Status = t.To
	o.PaymentStatus = payment
	o.UpdatedAt = t.At
	r.byID[id] = o
	r.log[id] = append(r.log[id], t)
	return nil
}

func (r *MemoryRepository) Transitions(_ context.Context, id string) ([]models.StatusTransition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	log, ok := r.log[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]models.StatusTransition(nil), log...), nil
}

func cloneOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderLineItem(nil), o.Items...)
	return o
}

func sortNewestFirst(list []models.Order) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

var _ Repository = (*MemoryRepository)(nil)
