package app

import (
	"log/slog"
	"sync"

	"github.com/voxlate/voxlate/internal/api"
)

// subBuffer is the per-subscriber event buffer. A subscriber that falls this
// far behind loses events rather than stalling the publisher, matching the
// pipeline's own drop policy.
const subBuffer = 64

// eventHub fans session events out to API subscribers. The pipeline's event
// channel is single-consumer, so the session manager pumps each session's
// events into the hub and the hub republishes to any number of listeners.
type eventHub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	ch chan api.SessionEvent

	// sessionID scopes the subscription. Empty receives every session.
	sessionID string

	dropped int
}

func newEventHub(logger *slog.Logger) *eventHub {
	return &eventHub{
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

// subscribe registers a listener for one session's events, or for all
// sessions when sessionID is empty. The returned cancel is idempotent and
// must be called to release the subscription.
func (h *eventHub) subscribe(sessionID string) (<-chan api.SessionEvent, func()) {
	sub := &subscriber{
		ch:        make(chan api.SessionEvent, subBuffer),
		sessionID: sessionID,
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			// The hub may have closed the channel already when the
			// session ended; only close if still registered.
			if _, ok := h.subs[sub]; ok {
				h.remove(sub)
			}
		})
	}
	return sub.ch, cancel
}

// publish fans ev out to matching subscribers. Never blocks: a full
// subscriber buffer drops the event for that subscriber only.
func (h *eventHub) publish(ev api.SessionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.sessionID != "" && sub.sessionID != ev.SessionID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
		}
	}
}

// closeScoped closes every subscription bound to sessionID. Called when a
// session ends so its WebSocket listeners see the channel close.
func (h *eventHub) closeScoped(sessionID string) {
	if sessionID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.sessionID == sessionID {
			h.remove(sub)
		}
	}
}

// closeAll closes every subscription. Called at manager shutdown.
func (h *eventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		h.remove(sub)
	}
}

// remove unregisters sub and closes its channel. Caller holds h.mu.
func (h *eventHub) remove(sub *subscriber) {
	delete(h.subs, sub)
	close(sub.ch)
	if sub.dropped > 0 {
		h.logger.Debug("event subscriber lagged",
			"session_id", sub.sessionID,
			"dropped", sub.dropped)
	}
}
