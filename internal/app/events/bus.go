// Package events provides the in-process event bus over which the pledge
// services publish their lifecycle notifications.
package events

import (
	"sync"
	"time"

	"github.com/R3E-Network/pledge_layer/pkg/logger"
)

// Type identifies an event class.
type Type string

const (
	TypeEggGenerated       Type = "egg.generated"
	TypeEggEdited          Type = "egg.edited"
	TypeEggTransferred     Type = "egg.transferred"
	TypeSurrenderRequested Type = "surrender.requested"
	TypeUpkeepRequested    Type = "upkeep.requested"
	TypeRewardIndex        Type = "reward.index"
	TypeContractClosed     Type = "contract.closed"
)

// Event is one published notification. Fields carry the event payload;
// TypeSurrenderRequested deliberately carries none beyond the triggering
// fact.
type Event struct {
	Type   Type                   `json:"type"`
	At     time.Time              `json:"at"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

// Bus fans events out to subscribers. Publishing never blocks: a subscriber
// that falls behind loses events rather than stalling the publisher.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	buffer int
	log    *logger.Logger
}

// NewBus creates a bus whose subscriber channels hold up to buffer events.
func NewBus(buffer int, log *logger.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &Bus{
		subs:   make(map[int]chan Event),
		buffer: buffer,
		log:    log,
	}
}

// Publish delivers the event to every subscriber.
func (b *Bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.log.WithField("subscriber", id).
				WithField("event", string(evt.Type)).
				Warn("subscriber buffer full, dropping event")
		}
	}
}

// Subscribe registers a new subscriber and returns its channel along with a
// cancel function. Cancel closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}
