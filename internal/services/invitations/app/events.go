package app

import (
	"sync"

	"github.com/louisbranch/surveycast/internal/services/invitations/domain"
)

const subscriberBuffer = 16

// EventHub fans dispatch events out to in-process subscribers. Publishing
// never blocks; a subscriber that falls behind loses events rather than
// stalling dispatch.
type EventHub struct {
	mu          sync.Mutex
	subscribers map[int]subscription
	nextID      int
}

type subscription struct {
	ch       chan domain.Event
	surveyID string
}

// NewEventHub returns an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{subscribers: make(map[int]subscription)}
}

// Subscribe registers a listener for one survey's events, or for every
// survey when surveyID is empty, and returns its channel plus a cancel
// function. Cancel closes the channel.
func (h *EventHub) Subscribe(surveyID string) (<-chan domain.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan domain.Event, subscriberBuffer)
	h.subscribers[id] = subscription{ch: ch, surveyID: surveyID}
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if existing, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(existing.ch)
		}
	}
	return ch, cancel
}

// Publish delivers one event to every matching subscriber with room in its
// buffer.
func (h *EventHub) Publish(event domain.Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subscribers {
		if sub.surveyID != "" && sub.surveyID != event.SurveyID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}
