package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nexchakra/storefront-backend/pkg/logger"
	"github.com/nexchakra/storefront-backend/pkg/metrics"
)

// Publisher is the write-side surface consumed by services.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Hub fans events out to connected observers. Publishing never blocks:
// an observer whose buffer is full is disconnected and must resubscribe.
type Hub struct {
	mu        sync.RWMutex
	observers map[*Observer]struct{}
	buffer    int
	logg      *logger.Logger
	metrics   *metrics.EventsMetrics
}

// Observer is a single subscriber attached to the hub.
type Observer struct {
	hub  *Hub
	ch   chan []byte
	once sync.Once
}

// HubParams groups hub dependencies.
type HubParams struct {
	ObserverBuffer int
	Logger         *logger.Logger
	Metrics        *metrics.EventsMetrics
}

// NewHub constructs an empty hub.
func NewHub(params HubParams) *Hub {
	buffer := params.ObserverBuffer
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{
		observers: make(map[*Observer]struct{}),
		buffer:    buffer,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}
}

// Subscribe attaches a new observer. The caller must drain C and call
// Close when done.
func (h *Hub) Subscribe() *Observer {
	obs := &Observer{
		hub: h,
		ch:  make(chan []byte, h.buffer),
	}
	h.mu.Lock()
	h.observers[obs] = struct{}{}
	h.mu.Unlock()
	h.metrics.ObserverConnected()
	return obs
}

// Publish serializes the event once and delivers it to every observer.
// Delivery order matches call order for any single publisher goroutine.
func (h *Hub) Publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		if h.logg != nil {
			h.logg.Error(ctx, "marshaling event", err)
		}
		return
	}

	h.metrics.IncPublished(string(event.EventType()))

	var slow []*Observer
	h.mu.RLock()
	for obs := range h.observers {
		select {
		case obs.ch <- payload:
		default:
			slow = append(slow, obs)
		}
	}
	h.mu.RUnlock()

	for _, obs := range slow {
		h.drop(ctx, obs)
	}
}

// ObserverCount reports how many observers are attached.
func (h *Hub) ObserverCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

func (h *Hub) drop(ctx context.Context, obs *Observer) {
	if h.detach(obs) {
		h.metrics.IncDropped()
		if h.logg != nil {
			h.logg.Warn(ctx, "dropping slow event observer")
		}
		obs.closeChannel()
	}
}

func (h *Hub) detach(obs *Observer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.observers[obs]; !ok {
		return false
	}
	delete(h.observers, obs)
	h.metrics.ObserverDisconnected()
	return true
}

// C exposes the observer's delivery channel. The channel is closed when
// the observer is dropped or Close is called.
func (o *Observer) C() <-chan []byte {
	return o.ch
}

// Close detaches the observer from the hub.
func (o *Observer) Close() {
	if o.hub.detach(o) {
		o.closeChannel()
	}
}

func (o *Observer) closeChannel() {
	o.once.Do(func() { close(o.ch) })
}
