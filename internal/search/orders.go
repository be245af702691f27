// Package search keeps the support-facing order index in Elasticsearch.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/shopspring/decimal"

	"bazar_back_end/internal/models"
	"bazar_back_end/internal/orders"
	"bazar_back_end/internal/tasks"
)

const IndexName = "orders"

var ErrUnavailable = errors.New("order search unavailable")

type Document struct {
	ID            string               `json:"id"`
	OrderNumber   string               `json:"orderNumber"`
	UserID        string               `json:"userId,omitempty"`
	CustomerName  string               `json:"customerName"`
	CustomerPhone string               `json:"customerPhone"`
	CustomerEmail string               `json:"customerEmail,omitempty"`
	City          string               `json:"city"`
	Status        models.OrderStatus   `json:"status"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	Total         decimal.Decimal      `json:"total"`
	CreatedAt     time.Time            `json:"createdAt"`
}

func DocumentOf(o models.Order) Document {
	return Document{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		CustomerEmail: o.CustomerEmail,
		City:          o.ShippingAddress.City,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total,
		CreatedAt:     o.CreatedAt,
	}
}

const mapping = `{
  "mappings": {
    "properties": {
      "id":            {"type": "keyword"},
      "orderNumber":   {"type": "keyword"},
      "userId":        {"type": "keyword"},
      "customerName":  {"type": "text"},
      "customerPhone": {"type": "keyword"},
      "customerEmail": {"type": "keyword"},
      "city":          {"type": "text"},
      "status":        {"type": "keyword"},
      "paymentMethod": {"type": "keyword"},
      "paymentStatus": {"type": "keyword"},
      "total":         {"type": "scaled_float", "scaling_factor": 100},
      "createdAt":     {"type": "date"}
    }
  }
}`

type OrderIndex struct {
	client *elasticsearch.Client
	tasks  tasks.Dispatcher
	logger *slog.Logger
}

// NewOrderIndex accepts a nil client; every call then reports
// ErrUnavailable and indexing is skipped.
func NewOrderIndex(client *elasticsearch.Client, d tasks.Dispatcher, logger *slog.Logger) *OrderIndex {
	return &OrderIndex{client: client, tasks: d, logger: logger.With("component", "search")}
}

func (x *OrderIndex) EnsureIndex(ctx context.Context) error {
	if x.client == nil {
		return ErrUnavailable
	}
	res, err := esapi.IndicesExistsRequest{Index: []string{IndexName}}.Do(ctx, x.client)
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = esapi.IndicesCreateRequest{Index: IndexName, Body: strings.NewReader(mapping)}.Do(ctx, x.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", IndexName, res.String())
	}
	x.logger.Info("search index created", "index", IndexName)
	return nil
}

func (x *OrderIndex) Index(ctx context.Context, o models.Order) error {
	if x.client == nil {
		return ErrUnavailable
	}
	data, err := json.Marshal(DocumentOf(o))
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      IndexName,
		DocumentID: o.ID,
		Body:       bytes.NewReader(data),
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index order %s: %s", o.OrderNumber, res.String())
	}
	return nil
}

// OnLedgerEvent reindexes the order in the background after every commit.
func (x *OrderIndex) OnLedgerEvent(_ context.Context, ev orders.Event) {
	if x.client == nil {
		return
	}
	o := ev.Order
	x.tasks.Dispatch(tasks.Task{
		Name: "search-index",
		Run:  func(ctx context.Context) error { return x.Index(ctx, o) },
	})
}

// Search matches the query against order numbers, customer names and
// phone numbers, newest orders first.
func (x *OrderIndex) Search(ctx context.Context, query string, limit int) ([]Document, error) {
	if x.client == nil {
		return nil, ErrUnavailable
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []Document{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	var buf bytes.Buffer
	q := map[string]any{
		"size": limit,
		"sort": []any{map[string]any{"createdAt": "desc"}},
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{"term": map[string]any{"orderNumber": strings.ToUpper(query)}},
					map[string]any{"term": map[string]any{"customerPhone": query}},
					map[string]any{"term": map[string]any{"customerEmail": strings.ToLower(query)}},
					map[string]any{"match": map[string]any{"customerName": map[string]any{"query": query, "fuzziness": "AUTO"}}},
				},
				"minimum_should_match": 1,
			},
		},
	}
	if err := json.NewEncoder(&buf).Encode(q); err != nil {
		return nil, err
	}

	res, err := esapi.SearchRequest{Index: []string{IndexName}, Body: &buf}.Do(ctx, x.client)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search orders: %s", res.String())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	out := make([]Document, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}
