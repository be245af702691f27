package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type State string

const (
	StateIdle            State = "idle"
	StateIntentRequested State = "intent-requested"
	StateIntentReady     State = "intent-ready"
	StateConfirming      State = "confirming"
	StateConfirmed       State = "confirmed"
	StateFailed          State = "failed"
	StateOrderSubmitting State = "order-submitting"
	StateOrderCreated    State = "order-created"
	StateOrderFailed     State = "order-failed"
)

// Busy states own the session; nothing else may start until they end.
func (s State) Busy() bool {
	return s == StateIntentRequested || s == StateConfirming || s == StateOrderSubmitting
}

// restartable are the states a new attempt may start from.
var restartable = []State{StateIdle, StateIntentReady, StateFailed, StateOrderFailed, StateOrderCreated, StateConfirmed}

// Session is one buyer's checkout progress. Attempt names the purchase in
// progress and feeds the gateway idempotency key; it is renewed once an order
// has been created so the next purchase gets its own intent.
type Session struct {
	State     State     `json:"state"`
	Attempt   string    `json:"attempt,omitempty"`
	IntentID  string    `json:"intentId,omitempty"`
	OrderID   string    `json:"orderId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s Session) with(state State) Session {
	s.State = state
	return s
}

// ErrStateConflict carries the state that blocked a transition.
type ErrStateConflict struct {
	Current State
}

func (e *ErrStateConflict) Error() string {
	return fmt.Sprintf("checkout session is %s", e.Current)
}

// SessionStore moves sessions between states with compare-and-set.
type SessionStore interface {
	Get(ctx context.Context, key string) (Session, error)
	// Transition writes next only if the stored state is one of from. A
	// missing session counts as idle.
	Transition(ctx context.Context, key string, from []State, next Session) error
}

type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

func (m *MemorySessionStore) Get(_ context.Context, key string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s, nil
	}
	return Session{State: StateIdle}, nil
}

func (m *MemorySessionStore) Transition(_ context.Context, key string, from []State, next Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[key]
	if !ok {
		cur = Session{State: StateIdle}
	}
	if !slices.Contains(from, cur.State) {
		return &ErrStateConflict{Current: cur.State}
	}
	m.sessions[key] = next
	return nil
}

// transitionScript sets KEYS[1] to ARGV[1] with a PX of ARGV[2] when the
// stored state is one of ARGV[3..]. It returns the previous state.
var transitionScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
local state = 'idle'
if cur then
  state = cjson.decode(cur)['state']
end
for i = 3, #ARGV do
  if ARGV[i] == state then
    redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
    return {1, state}
  end
end
return {0, state}
`)

type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl, prefix: "checkout:session:"}
}

func (r *RedisSessionStore) Get(ctx context.Context, key string) (Session, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{State: StateIdle}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("read checkout session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("decode checkout session: %w", err)
	}
	return s, nil
}

func (r *RedisSessionStore) Transition(ctx context.Context, key string, from []State, next Session) error {
	payload, err := json.Marshal(next)
	if err != nil {
		return err
	}
	args := make([]interface{}, 0, len(from)+2)
	args = append(args, payload, r.ttl.Milliseconds())
	for _, s := range from {
		args = append(args, string(s))
	}

	res, err := transitionScript.Run(ctx, r.client, []string{r.prefix + key}, args...).Slice()
	if err != nil {
		return fmt.Errorf("checkout session transition: %w", err)
	}
	if len(res) != 2 {
		return fmt.Errorf("checkout session transition: unexpected reply %v", res)
	}
	if ok, _ := res[0].(int64); ok == 1 {
		return nil
	}
	prev, _ := res[1].(string)
	return &ErrStateConflict{Current: State(prev)}
}

var (
	_ SessionStore = (*MemorySessionStore)(nil)
	_ SessionStore = (*RedisSessionStore)(nil)
)
