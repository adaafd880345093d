// Package stream fans out engine notifications to live subscribers such as
// websocket clients of the reporting API.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mousou2003/MouSouTrade-sub000/internal/notify"
)

// HubConfig holds configuration for the Hub.
type HubConfig struct {
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
	// SlowConsumerDropThreshold is the number of drops after which a
	// subscriber is logged as slow.
	SlowConsumerDropThreshold int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SubscriberBufferSize:      64,
		SlowConsumerDropThreshold: 10,
	}
}

// Subscriber receives published notifications until it unsubscribes or
// the hub closes, which closes C.
type Subscriber struct {
	ID        string
	C         <-chan notify.Notification
	CreatedAt time.Time

	ch      chan notify.Notification
	dropped int
}

// HubStats is a snapshot of hub activity.
type HubStats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
}

// Hub is a fan-out of notifications. Publishing never blocks: a subscriber
// whose buffer is full misses the notification.
type Hub struct {
	config HubConfig
	log    zerolog.Logger

	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates a hub.
func NewHub(config HubConfig, log zerolog.Logger) *Hub {
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = DefaultHubConfig().SubscriberBufferSize
	}
	return &Hub{
		config:      config,
		log:         log.With().Str("component", "stream").Logger(),
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe registers a new subscriber. On a closed hub the returned
// subscriber's channel is already closed.
func (h *Hub) Subscribe() *Subscriber {
	ch := make(chan notify.Notification, h.config.SubscriberBufferSize)
	sub := &Subscriber{
		ID:        uuid.NewString(),
		C:         ch,
		CreatedAt: time.Now(),
		ch:        ch,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	h.subscribers[sub.ID] = sub
	h.log.Debug().Str("subscriber", sub.ID).Int("subscribers", len(h.subscribers)).Msg("Subscriber added")
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subscribers[id]
	if !ok {
		return
	}
	delete(h.subscribers, id)
	close(sub.ch)
	h.log.Debug().Str("subscriber", id).Int("subscribers", len(h.subscribers)).Msg("Subscriber removed")
}

// Publish delivers n to every subscriber with room in its buffer.
func (h *Hub) Publish(n notify.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	h.published.Add(1)
	for _, sub := range h.subscribers {
		select {
		case sub.ch <- n:
			h.delivered.Add(1)
		default:
			h.dropped.Add(1)
			sub.dropped++
			if h.config.SlowConsumerDropThreshold > 0 && sub.dropped%h.config.SlowConsumerDropThreshold == 0 {
				h.log.Warn().Str("subscriber", sub.ID).Int("dropped", sub.dropped).Msg("Slow subscriber is missing notifications")
			}
		}
	}
}

// Close closes every subscriber; later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		close(sub.ch)
		delete(h.subscribers, id)
	}
}

// Stats returns hub statistics.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := len(h.subscribers)
	h.mu.RUnlock()
	return HubStats{
		Subscribers: n,
		Published:   h.published.Load(),
		Delivered:   h.delivered.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// Name implements notify.Channel.
func (h *Hub) Name() string { return "stream" }

// IsEnabled implements notify.Channel.
func (h *Hub) IsEnabled() bool { return true }

// Send implements notify.Channel.
func (h *Hub) Send(_ context.Context, n notify.Notification) error {
	h.Publish(n)
	return nil
}

var _ notify.Channel = (*Hub)(nil)
