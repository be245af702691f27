// Package tracking answers order lookups: the public tracking page, the
// buyer's own orders and the support views.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bazar_back_end/internal/cache"
	"bazar_back_end/internal/models"
	"bazar_back_end/internal/orders"
)

var ErrNotFound = orders.ErrNotFound

type PublicItem struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Image    string          `json:"image,omitempty"`
}

// PublicView is what anyone holding an order number may see. It carries no
// phone, street address, email or payment reference.
type PublicView struct {
	OrderNumber       string               `json:"orderNumber"`
	Status            models.OrderStatus   `json:"status"`
	Badge             orders.Badge         `json:"badge"`
	Items             []PublicItem         `json:"items"`
	Total             decimal.Decimal      `json:"total"`
	PaymentMethod     models.PaymentMethod `json:"paymentMethod"`
	City              string               `json:"city"`
	CreatedAt         time.Time            `json:"createdAt"`
	EstimatedDelivery time.Time            `json:"estimatedDelivery"`
	Timeline          orders.Timeline      `json:"timeline"`
}

type DetailView struct {
	models.Order
	Badge             orders.Badge              `json:"badge"`
	EstimatedDelivery time.Time                 `json:"estimatedDelivery"`
	Timeline          orders.Timeline           `json:"timeline"`
	History           []models.StatusTransition `json:"history"`
}

type Stats struct {
	TotalOrders  int                        `json:"totalOrders"`
	ByStatus     map[models.OrderStatus]int `json:"byStatus"`
	Revenue      decimal.Decimal            `json:"revenue"`
	AwaitingCash decimal.Decimal            `json:"awaitingCash"`
}

type Service struct {
	repo         orders.Repository
	cache        cache.Cache
	publisher    cache.Publisher
	cacheTTL     time.Duration
	deliveryDays int
	logger       *slog.Logger
}

type Config struct {
	CacheTTL     time.Duration
	DeliveryDays int
}

func NewService(repo orders.Repository, c cache.Cache, pub cache.Publisher, cfg Config, logger *slog.Logger) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.TrackingTTL
	}
	if cfg.DeliveryDays <= 0 {
		cfg.DeliveryDays = 4
	}
	return &Service{
		repo:         repo,
		cache:        c,
		publisher:    pub,
		cacheTTL:     cfg.CacheTTL,
		deliveryDays: cfg.DeliveryDays,
		logger:       logger.With("component", "tracking"),
	}
}

func NormalizeNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}

// Public looks an order up by its number. Results are cached until the
// order changes status.
func (s *Service) Public(ctx context.Context, number string) (PublicView, error) {
	number = NormalizeNumber(number)
	if number == "" {
		return PublicView{}, ErrNotFound
	}

	key := cache.TrackingKey(number)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var view PublicView
		if json.Unmarshal(raw, &view) == nil {
			return view, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.WarnContext(ctx, "tracking cache read failed", "error", err)
	}

	o, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return PublicView{}, err
	}
	view := s.publicView(o, s.history(ctx, o.ID))

	if raw, err := json.Marshal(view); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
			s.logger.WarnContext(ctx, "tracking cache write failed", "error", err)
		}
	}
	return view, nil
}

func (s *Service) publicView(o *models.Order, log []models.StatusTransition) PublicView {
	items := make([]PublicItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, PublicItem{Name: it.Name, Quantity: it.Quantity, Price: it.UnitPrice, Image: it.ImageRef})
	}
	return PublicView{
		OrderNumber:       o.OrderNumber,
		Status:            o.Status,
		Badge:             orders.BadgeFor(o.Status),
		Items:             items,
		Total:             o.Total,
		PaymentMethod:     o.PaymentMethod,
		City:              o.ShippingAddress.City,
		CreatedAt:         o.CreatedAt,
		EstimatedDelivery: s.estimatedDelivery(o),
		Timeline:          orders.BuildTimeline(o, log),
	}
}

func (s *Service) estimatedDelivery(o *models.Order) time.Time {
	return o.CreatedAt.AddDate(0, 0, s.deliveryDays)
}

func (s *Service) history(ctx context.Context, id string) []models.StatusTransition {
	log, err := s.repo.Transitions(ctx, id)
	if err != nil && !errors.Is(err, orders.ErrNotFound) {
		s.logger.WarnContext(ctx, "status log unavailable, using estimates", "order_id", id, "error", err)
	}
	return log
}

// Detail returns the full order to its owner or to support staff. Anyone
// else gets ErrNotFound.
func (s *Service) Detail(ctx context.Context, id string, who models.Principal) (DetailView, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return DetailView{}, err
	}
	if !who.IsAdmin() && (o.UserID == "" || o.UserID != who.UserID) {
		return DetailView{}, ErrNotFound
	}
	log := s.history(ctx, o.ID)
	return DetailView{
		Order:             *o,
		Badge:             orders.BadgeFor(o.Status),
		EstimatedDelivery: s.estimatedDelivery(o),
		Timeline:          orders.BuildTimeline(o, log),
		History:           log,
	}, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.Order, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Order{}
	}
	return list, nil
}

func (s *Service) List(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	if filter.Status != "" && !orders.ValidStatus(filter.Status) {
		return nil, orders.ErrUnknownStatus
	}
	list, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Order{}
	}
	return list, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	list, err := s.repo.List(ctx, models.OrderFilter{})
	if err != nil {
		return Stats{}, err
	}
	st := Stats{ByStatus: make(map[models.OrderStatus]int), Revenue: decimal.Zero, AwaitingCash: decimal.Zero}
	for _, o := range list {
		st.TotalOrders++
		st.ByStatus[o.Status]++
		switch {
		case o.PaymentStatus == models.PaymentPaid:
			st.Revenue = st.Revenue.Add(o.Total)
		case o.PaymentMethod == models.PaymentCOD && o.PaymentStatus == models.PaymentPending && !orders.IsTerminal(o.Status):
			st.AwaitingCash = st.AwaitingCash.Add(o.Total)
		}
	}
	return st, nil
}

// StatusUpdate is published on the order's status channel.
type StatusUpdate struct {
	OrderNumber string             `json:"orderNumber"`
	Status      models.OrderStatus `json:"status"`
	Badge       orders.Badge       `json:"badge"`
	At          time.Time          `json:"at"`
}

// OnLedgerEvent drops the cached view and tells live subscribers.
func (s *Service) OnLedgerEvent(ctx context.Context, ev orders.Event) {
	if ev.Kind != orders.EventStatusChanged {
		return
	}
	number := ev.Order.OrderNumber
	if err := s.cache.Delete(ctx, cache.TrackingKey(number)); err != nil {
		s.logger.WarnContext(ctx, "tracking cache invalidation failed", "order_number", number, "error", err)
	}
	if s.publisher == nil {
		return
	}
	payload, _ := json.Marshal(StatusUpdate{
		OrderNumber: number,
		Status:      ev.Order.Status,
		Badge:       orders.BadgeFor(ev.Order.Status),
		At:          ev.Transition.At,
	})
	if err := s.publisher.Publish(ctx, cache.StatusChannel(number), payload); err != nil {
		s.logger.WarnContext(ctx, "status publish failed", "order_number", number, "error", err)
	}
}
