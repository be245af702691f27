package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value   []byte
	expires time.Time
}

type window struct {
	n       int64
	expires time.Time
}

// Memory is the in-process stand-in used when Redis is not configured.
type Memory struct {
	mu     sync.Mutex
	items  map[string]entry
	counts map[string]window
	subs   map[string]map[chan []byte]struct{}
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		items:  make(map[string]entry),
		counts: make(map[string]window),
		subs:   make(map[string]map[chan []byte]struct{}),
		now:    time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if !ok || (!e.expires.IsZero() && m.now().After(e.expires)) {
		delete(m.items, key)
		return nil, ErrMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.items[key] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *Memory) Incr(_ context.Context, key string, length time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	w, ok := m.counts[key]
	if !ok || now.After(w.expires) {
		w = window{expires: now.Add(length)}
	}
	w.n++
	m.counts[key] = w
	return w.n, nil
}

func (m *Memory) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs[channel] {
		select {
		case ch <- append([]byte(nil), payload...):
		default:
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	ctx, stop := context.WithCancel(ctx)
	ch := make(chan []byte, 8)
	m.mu.Lock()
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[chan []byte]struct{})
	}
	m.subs[channel][ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			m.mu.Lock()
			delete(m.subs[channel], ch)
			m.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}

var (
	_ Cache      = (*Memory)(nil)
	_ Counter    = (*Memory)(nil)
	_ Publisher  = (*Memory)(nil)
	_ Subscriber = (*Memory)(nil)
)
