package orders

import (
	"context"
	"errors"

	"bazar_back_end/internal/models"
)

var (
	ErrNotFound            = errors.New("order not found")
	ErrDuplicateNumber     = errors.New("order number already taken")
	ErrDuplicatePaymentRef = errors.New("payment already recorded against an order")
	// ErrStaleStatus means the order changed status between read and write.
	ErrStaleStatus = errors.New("order status changed concurrently")
)

// Repository persists orders. Insert and UpdateStatus are atomic with the
// status log: readers never see an order without its first transition.
type Repository interface {
	Insert(ctx context.Context, o *models.Order, first models.StatusTransition) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByNumber(ctx context.Context, number string) (*models.Order, error)
	GetByPaymentRef(ctx context.Context, ref string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)
	List(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	// UpdateStatus applies t only if the stored status still equals t.From.
	UpdateStatus(ctx context.Context, id string, t models.StatusTransition, payment models.PaymentStatus, paymentRef string) error
	Transitions(ctx context.Context, id string) ([]models.StatusTransition, error)
}
