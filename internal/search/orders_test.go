package search

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazar_back_end/internal/models"
	"bazar_back_end/internal/orders"
	"bazar_back_end/internal/tasks"
)

type seenRequest struct {
	Method string
	Path   string
	Body   string
}

func fakeElastic(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) (*elasticsearch.Client, *[]seenRequest) {
	t.Helper()
	var mu sync.Mutex
	var seen []seenRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, seenRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
		mu.Unlock()
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		respond(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client, &seen
}

type inline struct{}

func (inline) Dispatch(t tasks.Task) bool { return t.Run(context.Background()) == nil }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestIndexOnLedgerEvent(t *testing.T) {
	client, seen := fakeElastic(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})
	x := NewOrderIndex(client, inline{}, discard())

	o := models.Order{ID: "o-7", OrderNumber: "BZ-260301-QRS234", CustomerName: "Karim", CustomerPhone: "01812345678",
		Status: models.StatusShipped, Total: decimal.NewFromInt(960)}
	x.OnLedgerEvent(context.Background(), orders.Event{Kind: orders.EventStatusChanged, Order: o})

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/orders/_doc/o-7", req.Path)

	var doc Document
	require.NoError(t, json.Unmarshal([]byte(req.Body), &doc))
	assert.Equal(t, "BZ-260301-QRS234", doc.OrderNumber)
	assert.Equal(t, models.StatusShipped, doc.Status)
}

func TestSearchDecodesHits(t *testing.T) {
	client, seen := fakeElastic(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_source":{"id":"o-1","orderNumber":"BZ-260301-AAA222","customerName":"Karim","status":"pending","total":"960"}},
			{"_source":{"id":"o-2","orderNumber":"BZ-260228-BBB333","customerName":"Karima","status":"delivered","total":"1500"}}
		]}}`))
	})
	x := NewOrderIndex(client, inline{}, discard())

	docs, err := x.Search(context.Background(), " karim ", 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "o-1", docs[0].ID)
	assert.Equal(t, models.StatusDelivered, docs[1].Status)

	req := (*seen)[0]
	assert.Equal(t, "/orders/_search", req.Path)
	assert.Contains(t, req.Body, `"size":25`)
	assert.Contains(t, req.Body, `"orderNumber":"KARIM"`)
}

func TestSearchErrorResponse(t *testing.T) {
	client, _ := fakeElastic(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception"}}`))
	})
	x := NewOrderIndex(client, inline{}, discard())
	_, err := x.Search(context.Background(), "karim", 10)
	assert.ErrorContains(t, err, "index_not_found_exception")
}

func TestEnsureIndexCreatesMissingIndex(t *testing.T) {
	client, seen := fakeElastic(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	})
	x := NewOrderIndex(client, inline{}, discard())
	require.NoError(t, x.EnsureIndex(context.Background()))
	require.Len(t, *seen, 2)
	assert.Equal(t, http.MethodPut, (*seen)[1].Method)
	assert.True(t, strings.Contains((*seen)[1].Body, `"orderNumber":   {"type": "keyword"}`))
}

func TestWithoutClient(t *testing.T) {
	x := NewOrderIndex(nil, inline{}, discard())
	_, err := x.Search(context.Background(), "x", 1)
	assert.ErrorIs(t, err, ErrUnavailable)
	x.OnLedgerEvent(context.Background(), orders.Event{Kind: orders.EventCreated})
}
