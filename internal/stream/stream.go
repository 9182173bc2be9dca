// Package stream fan-outs ledger activity to in-process subscribers
// backing the server-sent-events feed.
package stream

import (
	"context"
	"sync"
	"time"

	"wekeza.org/internal/ledger"
)

// Activity is one ledger transaction as seen by a live feed client.
type Activity struct {
	OwnerID   string        `json:"owner_id"`
	Domain    ledger.Domain `json:"domain"`
	Type      string        `json:"transaction_type"`
	Amount    string        `json:"amount"`
	Reference string        `json:"reference_number"`
	Timestamp time.Time     `json:"timestamp"`
}

// FromTransaction converts a ledger row into a feed activity. Balance
// snapshots are deliberately omitted from the feed.
func FromTransaction(tx ledger.Transaction) Activity {
	return Activity{
		OwnerID:   tx.OwnerID,
		Domain:    tx.Domain,
		Type:      string(tx.Type),
		Amount:    tx.Amount.StringFixed(2),
		Reference: tx.ReferenceNumber,
		Timestamp: tx.CreatedAt,
	}
}

// Stream fan-outs activities to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Activity
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Activity)}
}

// Subscribe registers a subscriber and returns a channel which will
// receive activities. The channel is closed when the provided context
// ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Activity {
	ch := make(chan Activity, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the activity to all subscribers.
func (s *Stream) Publish(a Activity) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- a:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
