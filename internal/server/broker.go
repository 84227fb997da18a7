package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/playperu/storyline/internal/unlock"
)

// guestChannel is the broker key for players without an account. Guests are
// not told apart: the server runs per device, so every guest stream is the
// same player.
const guestChannel = "guest"

// Broker is an in-process pub/sub for unlock events, keyed by identity. It
// is the unlock.Publisher behind the SSE stream. Signed-in users only see
// their own events; all guest subscribers share one channel.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

func channelFor(userID string) string {
	if userID == "" {
		return guestChannel
	}
	return "user:" + userID
}

// Subscribe returns a channel that receives JSON-encoded events for userID.
func (b *Broker) Subscribe(userID string) chan []byte {
	key := channelFor(userID)
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[key] == nil {
		b.subs[key] = make(map[chan []byte]struct{})
	}
	b.subs[key][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(userID string, ch chan []byte) {
	key := channelFor(userID)
	b.mu.Lock()
	delete(b.subs[key], ch)
	if len(b.subs[key]) == 0 {
		delete(b.subs, key)
	}
	b.mu.Unlock()
}

// Publish sends e to every subscriber of its user. It never blocks.
func (b *Broker) Publish(_ context.Context, e unlock.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b.mu.RLock()
	for ch := range b.subs[channelFor(e.UserID)] {
		select {
		case ch <- data:
		default:
			// Drop if subscriber is slow.
		}
	}
	b.mu.RUnlock()
	return nil
}
