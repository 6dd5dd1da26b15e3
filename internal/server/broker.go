package server

import (
	"context"
	"encoding/json"
	"sync"
)

const (
	EventUnlocked = "unlocked"
	EventSaved    = "saved"
)

// Event is pushed to a user's open progress streams.
type Event struct {
	Type       string            `json:"type"`
	LocationID string            `json:"locationId"`
	Progress   *ProgressResponse `json:"progress,omitempty"`
	Outcome    string            `json:"outcome,omitempty"`
}

// Broker fans progress events out to the streams of one user. The returned
// cancel func must be called to release the subscription.
type Broker interface {
	Subscribe(ctx context.Context, userID string) (<-chan []byte, func(), error)
	Publish(ctx context.Context, userID string, ev Event)
}

// MemBroker is an in-process Broker for single-instance deployments.
type MemBroker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewMemBroker() *MemBroker {
	return &MemBroker{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

func (b *MemBroker) Subscribe(_ context.Context, userID string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan []byte]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() { once.Do(func() { b.unsubscribe(userID, ch) }) }, nil
}

func (b *MemBroker) unsubscribe(userID string, ch chan []byte) {
	b.mu.Lock()
	delete(b.subs[userID], ch)
	if len(b.subs[userID]) == 0 {
		delete(b.subs, userID)
	}
	b.mu.Unlock()
}

func (b *MemBroker) Publish(_ context.Context, userID string, ev Event) {
	data, _ := json.Marshal(ev)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[userID] {
		select {
		case ch <- data:
		default:
			// Drop if subscriber is slow.
		}
	}
}
