// Package relay fans streamed conversation events out to every connected
// observer of a conversation. Producers publish without blocking; a slow
// subscriber loses events rather than stalling the stream.
package relay

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"relaychat-backend/internal/models"
)

// subscriberBuffer is the per-subscriber channel depth. Publishes to a full
// buffer are dropped, not blocked on.
const subscriberBuffer = 64

// Broadcaster routes StreamEvents to subscribers keyed by conversation ID.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[uuid.UUID]chan models.StreamEvent
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[uuid.UUID]map[uuid.UUID]chan models.StreamEvent),
	}
}

// Subscribe registers an observer for one conversation and returns the event
// channel plus an unsubscribe function. The subscription is also torn down
// automatically when ctx is cancelled. Unsubscribe is idempotent.
func (b *Broadcaster) Subscribe(ctx context.Context, conversationID uuid.UUID) (<-chan models.StreamEvent, func()) {
	ch := make(chan models.StreamEvent, subscriberBuffer)
	subID := uuid.New()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if b.subs[conversationID] == nil {
		b.subs[conversationID] = make(map[uuid.UUID]chan models.StreamEvent)
	}
	b.subs[conversationID][subID] = ch
	b.mu.Unlock()

	log.Debug().
		Str("conversation_id", conversationID.String()).
		Str("subscriber_id", subID.String()).
		Msg("subscriber joined")

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.remove(conversationID, subID)
		})
	}

	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return ch, unsubscribe
}

// Publish delivers the event to every current subscriber of the
// conversation. Delivery is best-effort: a subscriber whose buffer is full is
// skipped.
func (b *Broadcaster) Publish(conversationID uuid.UUID, event models.StreamEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for subID, ch := range b.subs[conversationID] {
		select {
		case ch <- event:
		default:
			log.Warn().
				Str("conversation_id", conversationID.String()).
				Str("subscriber_id", subID.String()).
				Str("event_type", string(event.Type)).
				Msg("subscriber buffer full, dropping event")
		}
	}
}

// SubscriberCount reports how many observers a conversation currently has.
func (b *Broadcaster) SubscriberCount(conversationID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[conversationID])
}

// Close shuts the broadcaster down and closes every subscriber channel. After
// Close, Subscribe returns a closed channel and Publish is a no-op.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, subscribers := range b.subs {
		for _, ch := range subscribers {
			close(ch)
		}
	}
	b.subs = make(map[uuid.UUID]map[uuid.UUID]chan models.StreamEvent)
}

func (b *Broadcaster) remove(conversationID, subID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	subscribers, ok := b.subs[conversationID]
	if !ok {
		return
	}
	ch, ok := subscribers[subID]
	if !ok {
		return
	}
	delete(subscribers, subID)
	if len(subscribers) == 0 {
		delete(b.subs, conversationID)
	}
	close(ch)
}
