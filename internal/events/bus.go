package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSessionChanged        EventType = "SESSION_CHANGED"
	EventNotificationsUpdated  EventType = "NOTIFICATIONS_UPDATED"
	EventReactionChanged       EventType = "REACTION_CHANGED"
	EventLeaderboardUpdated    EventType = "LEADERBOARD_UPDATED"
	EventOnlineFriendsUpdated  EventType = "ONLINE_FRIENDS_UPDATED"
	EventCommunityStatsUpdated EventType = "COMMUNITY_STATS_UPDATED"
	EventMeetingUpdated        EventType = "MEETING_UPDATED"
	EventTopicUpdate           EventType = "TOPIC_UPDATE"
	EventToast                 EventType = "TOAST"
	EventError                 EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	UserID    string                 `json:"-"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
	sync        bool

	// async delivery: one dispatcher drains the queue in publish order
	queueMu sync.Mutex
	queue   []delivery
	wake    chan struct{}
}

type delivery struct {
	event Event
	subs  []Subscriber
}

// NewEventBus creates a bus that delivers off the publishing goroutine.
// Events reach subscribers in the order they were published.
func NewEventBus() *EventBus {
	eb := newBus()
	eb.wake = make(chan struct{}, 1)
	go eb.dispatch()
	return eb
}

// NewSyncEventBus creates a bus that calls subscribers on the publishing
// goroutine, in subscription order.
func NewSyncEventBus() *EventBus {
	eb := newBus()
	eb.sync = true
	return eb
}

func newBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}

	eb.mu.RLock()
	subs := append([]Subscriber(nil), eb.subscribers[event.Type]...)
	subs = append(subs, eb.allSubs...)
	eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if eb.sync {
		for _, sub := range subs {
			sub(event)
		}
		return
	}
	if len(subs) == 0 {
		return
	}

	eb.queueMu.Lock()
	eb.queue = append(eb.queue, delivery{event: event, subs: subs})
	eb.queueMu.Unlock()

	select {
	case eb.wake <- struct{}{}:
	default:
	}
}

func (eb *EventBus) dispatch() {
	for range eb.wake {
		for {
			eb.queueMu.Lock()
			if len(eb.queue) == 0 {
				eb.queueMu.Unlock()
				break
			}
			next := eb.queue[0]
			eb.queue[0] = delivery{}
			eb.queue = eb.queue[1:]
			eb.queueMu.Unlock()

			for _, sub := range next.subs {
				sub(next.event)
			}
		}
	}
}

// PublishToast publishes a transient message meant for the user's UI
func (eb *EventBus) PublishToast(userID, level, message string) {
	eb.Publish(Event{
		Type:   EventToast,
		UserID: userID,
		Data: map[string]interface{}{
			"level":   level,
			"message": message,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(userID, source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type:   EventError,
		UserID: userID,
		Data:   data,
	})
}

// PublishTopic publishes a fresh value of a shared polling topic
func (eb *EventBus) PublishTopic(eventType EventType, topic string, payload interface{}) {
	eb.Publish(Event{
		Type: eventType,
		Data: map[string]interface{}{
			"topic":   topic,
			"payload": payload,
		},
	})
}
