// Package stream distributes market bulletins to external subscribers.
package stream

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"virtual-exchange/internal/models"
	"virtual-exchange/internal/store"
)

// Sink delivers one bulletin to one subscriber target. A target is an
// opaque address owned by the delivery layer (a chat channel, a webhook).
type Sink func(target string, notice models.Notice) error

// Hub fans market bulletins out to the subscribed targets. Delivery is
// best-effort and synchronous from the caller's point of view; a target
// whose delivery fails is dropped and never retried, so one dead subscriber
// cannot stall the tick loop.
type Hub struct {
	sink  Sink
	store store.Store
	log   zerolog.Logger

	mu      sync.RWMutex
	targets map[string]struct{}

	// Metrics
	delivered uint64
	dropped   uint64
}

// NewHub creates a hub delivering through sink and persisting the
// subscriber set in st.
func NewHub(sink Sink, st store.Store, log zerolog.Logger) *Hub {
	return &Hub{
		sink:    sink,
		store:   st,
		log:     log.With().Str("component", "stream_hub").Logger(),
		targets: make(map[string]struct{}),
	}
}

// Load restores the persisted subscriber set. Call once at startup.
func (h *Hub) Load(ctx context.Context) error {
	targets, err := h.store.LoadSubscribers(ctx)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range targets {
		h.targets[t] = struct{}{}
	}
	return nil
}

// Subscribe adds a target and persists it.
func (h *Hub) Subscribe(ctx context.Context, target string) error {
	if err := h.store.AddSubscriber(ctx, target); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.targets[target] = struct{}{}
	return nil
}

// Unsubscribe removes a target and persists the removal.
func (h *Hub) Unsubscribe(ctx context.Context, target string) error {
	if err := h.store.RemoveSubscriber(ctx, target); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.targets, target)
	return nil
}

// Subscribers returns a snapshot of the current target set.
func (h *Hub) Subscribers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.targets))
	for t := range h.targets {
		out = append(out, t)
	}
	return out
}

// Broadcast delivers a bulletin to every subscriber. Failed targets are
// removed from both the in-memory set and the store.
func (h *Hub) Broadcast(notice models.Notice) {
	if h.sink == nil {
		return
	}
	var failed []string
	for _, target := range h.Subscribers() {
		if err := h.sink(target, notice); err != nil {
			h.log.Error().Err(err).Str("target", target).Msg("bulletin delivery failed, dropping subscriber")
			failed = append(failed, target)
			continue
		}
		h.mu.Lock()
		h.delivered++
		h.mu.Unlock()
	}
	for _, target := range failed {
		h.mu.Lock()
		delete(h.targets, target)
		h.dropped++
		h.mu.Unlock()
		if err := h.store.RemoveSubscriber(context.Background(), target); err != nil {
			h.log.Error().Err(err).Str("target", target).Msg("removing dead subscriber from store failed")
		}
	}
}

// Stats returns delivery counters for diagnostics.
func (h *Hub) Stats() (delivered, dropped uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.delivered, h.dropped
}
