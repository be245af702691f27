// Package paymenttest provides an in-memory payment.Gateway for tests.
package paymenttest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"bazar_back_end/internal/payment"
)

// Gateway records every call. Set DeclineWith or CreateErr to script failures.
type Gateway struct {
	mu sync.Mutex

	DeclineWith *payment.DeclineError
	CreateErr   error
	ConfirmErr  error
	// OnConfirm runs inside ConfirmIntent before the result is returned.
	OnConfirm func()

	Intents      map[string]*payment.Intent
	CreateCalls  int
	ConfirmCalls int
	GetCalls     int
	Refunds      []string
	idem         map[string]string
	seq          int
}

func New() *Gateway {
	return &Gateway{Intents: map[string]*payment.Intent{}, idem: map[string]string{}}
}

func (g *Gateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.CreateCalls + g.ConfirmCalls + g.GetCalls + len(g.Refunds)
}

func (g *Gateway) CreateIntent(_ context.Context, req payment.IntentRequest) (payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CreateCalls++
	if g.CreateErr != nil {
		return payment.Intent{}, g.CreateErr
	}
	if id, ok := g.idem[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return *g.Intents[id], nil
	}
	g.seq++
	in := &payment.Intent{
		ID:           fmt.Sprintf("pi_test_%d", g.seq),
		ClientSecret: fmt.Sprintf("pi_test_%d_secret", g.seq),
		AmountMinor:  req.AmountMinor,
		Currency:     req.Currency,
		Status:       payment.IntentRequiresPaymentMethod,
		Metadata:     req.Metadata,
	}
	g.Intents[in.ID] = in
	if req.IdempotencyKey != "" {
		g.idem[req.IdempotencyKey] = in.ID
	}
	return *in, nil
}

func (g *Gateway) ConfirmIntent(_ context.Context, intentID, _ string) (payment.Confirmation, error) {
	g.mu.Lock()
	g.ConfirmCalls++
	hook := g.OnConfirm
	g.mu.Unlock()
	if hook != nil {
		hook()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ConfirmErr != nil {
		return payment.Confirmation{}, g.ConfirmErr
	}
	in, ok := g.Intents[intentID]
	if !ok {
		return payment.Confirmation{}, fmt.Errorf("%w: no such intent %s", payment.ErrGatewayUnavailable, intentID)
	}
	if g.DeclineWith != nil {
		return payment.Confirmation{}, g.DeclineWith
	}
	in.Status = payment.IntentSucceeded
	return payment.Confirmation{IntentID: intentID, Succeeded: true}, nil
}

// Succeed marks an intent as confirmed by the client.
func (g *Gateway) Succeed(intentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if in, ok := g.Intents[intentID]; ok {
		in.Status = payment.IntentSucceeded
	}
}

func (g *Gateway) GetIntent(_ context.Context, intentID string) (payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.GetCalls++
	in, ok := g.Intents[intentID]
	if !ok {
		return payment.Intent{}, fmt.Errorf("%w: no such intent %s", payment.ErrGatewayUnavailable, intentID)
	}
	return *in, nil
}

func (g *Gateway) Refund(_ context.Context, intentID string, _ int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Refunds = append(g.Refunds, intentID)
	return "re_" + intentID, nil
}

// ParseWebhook reads a JSON payment.Event; the signature is ignored.
func (g *Gateway) ParseWebhook(payload []byte, _ string) (payment.Event, error) {
	var ev payment.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return payment.Event{}, err
	}
	return ev, nil
}
