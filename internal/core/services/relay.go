package services

import (
	"sync"

	"homehub/internal/core/domain"
	"homehub/internal/core/ports"
	"homehub/pkg/utils"

	"go.uber.org/zap"
)

// RelayMetrics receives relay counters; a nil implementation is allowed.
type RelayMetrics interface {
	EventPublished(provider, eventType string)
	EventDropped(provider string)
	SubscriberAdded()
	SubscriberRemoved()
}

type relaySubscriber struct {
	token  string
	userID domain.UserID
	events chan *domain.Event
}

// EventRelay fans provider events out to live subscribers. Fan-out is
// scoped strictly to the publishing event's owning user: that scoping is
// the authorization boundary for the live-update path, established once
// at subscribe time. Delivery is best-effort; a stalled subscriber's
// bounded queue drops events instead of stalling publication.
type EventRelay struct {
	mu          sync.RWMutex
	subscribers map[domain.UserID]map[string]*relaySubscriber
	tokens      map[string]domain.UserID

	buffer  int
	logger  *zap.SugaredLogger
	metrics RelayMetrics
}

func NewEventRelay(buffer int, logger *zap.SugaredLogger, metrics RelayMetrics) *EventRelay {
	if buffer <= 0 {
		buffer = 64
	}
	return &EventRelay{
		subscribers: make(map[domain.UserID]map[string]*relaySubscriber),
		tokens:      make(map[string]domain.UserID),
		buffer:      buffer,
		logger:      logger,
		metrics:     metrics,
	}
}

// Publish delivers the event to every subscriber of the owning user, in
// publish order per subscriber. Subscribers of other users never observe
// it. Publish never blocks on a slow subscriber.
func (r *EventRelay) Publish(userID domain.UserID, event *domain.Event) {
	if r.metrics != nil {
		r.metrics.EventPublished(string(event.Provider), string(event.Type))
	}

	// The read lock is held across the sends so Unsubscribe cannot close
	// a channel mid-delivery; every send is non-blocking.
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sub := range r.subscribers[userID] {
		select {
		case sub.events <- event:
		default:
			if r.metrics != nil {
				r.metrics.EventDropped(string(event.Provider))
			}
			r.logger.Warnw("subscriber queue full, dropping event",
				"user_id", userID,
				"token", sub.token,
				"event_type", event.Type,
			)
		}
	}
}

// Subscribe registers a live subscriber for one user's events.
func (r *EventRelay) Subscribe(userID domain.UserID) (*ports.Subscription, error) {
	sub := &relaySubscriber{
		token:  utils.GenerateSubscriptionToken(),
		userID: userID,
		events: make(chan *domain.Event, r.buffer),
	}

	r.mu.Lock()
	if r.subscribers[userID] == nil {
		r.subscribers[userID] = make(map[string]*relaySubscriber)
	}
	r.subscribers[userID][sub.token] = sub
	r.tokens[sub.token] = userID
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SubscriberAdded()
	}

	return &ports.Subscription{
		Token:  sub.token,
		UserID: userID,
		Events: sub.events,
	}, nil
}

// Unsubscribe removes the subscriber and closes its event feed.
func (r *EventRelay) Unsubscribe(token string) {
	r.mu.Lock()
	userID, ok := r.tokens[token]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.tokens, token)

	sub := r.subscribers[userID][token]
	delete(r.subscribers[userID], token)
	if len(r.subscribers[userID]) == 0 {
		delete(r.subscribers, userID)
	}
	r.mu.Unlock()

	if sub != nil {
		close(sub.events)
	}
	if r.metrics != nil {
		r.metrics.SubscriberRemoved()
	}
}

// SubscriberCount returns the number of live subscribers for a user.
func (r *EventRelay) SubscriberCount(userID domain.UserID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers[userID])
}
