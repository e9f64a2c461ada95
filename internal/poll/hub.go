// Package poll shares periodic fetches between subscribers. Every topic has
// one timer and at most one request in flight no matter how many panels
// watch it; the timer stops when the last subscriber leaves.
package poll

import (
	"context"
	"errors"
	"sync"
	"time"

	"trade-journal/internal/events"
	"trade-journal/internal/logging"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

var (
	ErrUnknownTopic = errors.New("poll: unknown topic")
	ErrHubClosed    = errors.New("poll: hub closed")
)

// DefaultFetchTimeout bounds a single fetch
const DefaultFetchTimeout = 15 * time.Second

// Fetcher loads the current value of a topic
type Fetcher func(ctx context.Context) (interface{}, error)

// Topic describes a polled resource
type Topic struct {
	Name     string
	Interval time.Duration
	Fetch    Fetcher
	// Event, when set, is published on the bus with every delivered value
	Event events.EventType
}

// Update is one delivered value
type Update struct {
	Topic string      `json:"topic"`
	Seq   uint64      `json:"seq"`
	Value interface{} `json:"payload"`
	At    time.Time   `json:"at"`
}

// Handler receives updates in issue order
type Handler func(Update)

// TopicStats is reported by Stats
type TopicStats struct {
	Subscribers int       `json:"subscribers"`
	Interval    string    `json:"interval"`
	Fetches     int64     `json:"fetches"`
	Failures    int64     `json:"failures"`
	Dropped     int64     `json:"dropped"`
	LastUpdate  time.Time `json:"last_update"`
}

type topicState struct {
	Topic
	deliverMu sync.Mutex
	subs      map[string]Handler
	stop      chan struct{}
	inFlight  int
	retiring  bool
	delivered uint64
	last      *Update

	fetches  int64
	failures int64
	dropped  int64
}

type Hub struct {
	mu     sync.Mutex
	topics map[string]*topicState
	group  singleflight.Group
	// seq is shared by all topics so a topic dropped and later recreated
	// never reissues a sequence number a tab has already seen
	seq uint64

	bus          *events.EventBus
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	fetchTimeout time.Duration
	closed       bool
}

func NewHub(bus *events.EventBus) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		topics:       make(map[string]*topicState),
		bus:          bus,
		ctx:          ctx,
		cancel:       cancel,
		fetchTimeout: DefaultFetchTimeout,
	}
}

// Subscribe adds fn to topic t, starting its timer when it is the first
// subscriber. If t is already known its original fetcher and interval are
// kept. A late subscriber immediately receives the last delivered value.
func (h *Hub) Subscribe(t Topic, fn Handler) (string, error) {
	if t.Name == "" || t.Fetch == nil || t.Interval <= 0 {
		return "", errors.New("poll: topic needs a name, a fetcher and an interval")
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", ErrHubClosed
	}

	ts, ok := h.topics[t.Name]
	if !ok {
		ts = &topicState{Topic: t, subs: make(map[string]Handler)}
		h.topics[t.Name] = ts
	}

	id := uuid.New().String()
	ts.subs[id] = fn
	ts.retiring = false
	first := ts.stop == nil
	if first {
		ts.stop = make(chan struct{})
		h.wg.Add(1)
		go h.run(ts, ts.stop)
	}
	last := ts.last
	h.mu.Unlock()

	logging.PollContext(t.Name, ts.Interval).Debug("Subscribed", "subscription_id", id, "first", first)

	if !first && last != nil && fn != nil {
		fn(*last)
	}
	return id, nil
}

// Ensure registers t without subscribing to it, so Refresh can be used for
// one-off reads that still share the topic's in-flight request
func (h *Hub) Ensure(t Topic) error {
	if t.Name == "" || t.Fetch == nil || t.Interval <= 0 {
		return errors.New("poll: topic needs a name, a fetcher and an interval")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	if _, ok := h.topics[t.Name]; !ok {
		h.topics[t.Name] = &topicState{Topic: t, subs: make(map[string]Handler)}
	}
	return nil
}

// Fetch is Ensure followed by Refresh
func (h *Hub) Fetch(ctx context.Context, t Topic) (Update, error) {
	if err := h.Ensure(t); err != nil {
		return Update{}, err
	}
	return h.Refresh(ctx, t.Name)
}

// Unsubscribe removes a subscription. The topic's timer stops when its
// reference count reaches zero and the topic is forgotten once no fetch
// for it is in flight.
func (h *Hub) Unsubscribe(name, id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	ts, ok := h.topics[name]
	if !ok {
		return false
	}
	if _, ok := ts.subs[id]; !ok {
		return false
	}
	delete(ts.subs, id)

	if len(ts.subs) == 0 && ts.stop != nil {
		close(ts.stop)
		ts.stop = nil
		logging.PollContext(name, ts.Interval).Debug("Last subscriber left, timer stopped")
	}
	if len(ts.subs) == 0 {
		ts.retiring = true
		h.dropIdleLocked(ts)
	}
	return true
}

func (h *Hub) dropIdleLocked(ts *topicState) {
	if !ts.retiring || ts.inFlight > 0 || len(ts.subs) > 0 {
		return
	}
	if h.topics[ts.Name] == ts {
		delete(h.topics, ts.Name)
	}
}

// Refresh fetches topic now. A fetch already in flight for the topic is
// joined instead of issuing a second request.
func (h *Hub) Refresh(ctx context.Context, name string) (Update, error) {
	h.mu.Lock()
	ts, ok := h.topics[name]
	closed := h.closed
	h.mu.Unlock()

	if closed {
		return Update{}, ErrHubClosed
	}
	if !ok {
		return Update{}, ErrUnknownTopic
	}

	ch := h.group.DoChan(name, func() (interface{}, error) {
		return h.fetch(ts)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Update{}, res.Err
		}
		return res.Val.(Update), nil
	case <-ctx.Done():
		return Update{}, ctx.Err()
	}
}

// Last returns the most recently delivered update of a topic
func (h *Hub) Last(name string) (Update, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ts, ok := h.topics[name]
	if !ok || ts.last == nil {
		return Update{}, false
	}
	return *ts.last, true
}

// Subscribers returns the reference count of a topic
func (h *Hub) Subscribers(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ts, ok := h.topics[name]; ok {
		return len(ts.subs)
	}
	return 0
}

func (h *Hub) Stats() map[string]TopicStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]TopicStats, len(h.topics))
	for name, ts := range h.topics {
		s := TopicStats{
			Subscribers: len(ts.subs),
			Interval:    ts.Interval.String(),
			Fetches:     ts.fetches,
			Failures:    ts.failures,
			Dropped:     ts.dropped,
		}
		if ts.last != nil {
			s.LastUpdate = ts.last.At
		}
		out[name] = s
	}
	return out
}

// Close stops every timer and waits for the loops to exit
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for _, ts := range h.topics {
		if ts.stop != nil {
			close(ts.stop)
			ts.stop = nil
		}
	}
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()
}

func (h *Hub) run(ts *topicState, stop <-chan struct{}) {
	defer h.wg.Done()

	logger := logging.PollContext(ts.Name, ts.Interval)
	tick := func() {
		h.group.DoChan(ts.Name, func() (interface{}, error) {
			return h.fetch(ts)
		})
	}

	tick()
	ticker := time.NewTicker(ts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			logger.Debug("Polling")
			tick()
		}
	}
}

// fetch issues one request and delivers its result unless a newer one was
// delivered first
func (h *Hub) fetch(ts *topicState) (interface{}, error) {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	ts.fetches++
	ts.inFlight++
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		ts.inFlight--
		h.dropIdleLocked(ts)
		h.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(h.ctx, h.fetchTimeout)
	defer cancel()

	value, err := ts.Fetch(ctx)
	if err != nil {
		h.mu.Lock()
		ts.failures++
		h.mu.Unlock()
		logging.PollContext(ts.Name, ts.Interval).WithError(err).Warn("Poll fetch failed")
		return Update{}, err
	}

	u := Update{Topic: ts.Name, Seq: seq, Value: value, At: time.Now()}
	h.deliver(ts, u)
	return u, nil
}

func (h *Hub) deliver(ts *topicState, u Update) bool {
	ts.deliverMu.Lock()
	defer ts.deliverMu.Unlock()

	h.mu.Lock()
	if u.Seq <= ts.delivered {
		ts.dropped++
		h.mu.Unlock()
		return false
	}
	ts.delivered = u.Seq
	ts.last = &u
	handlers := make([]Handler, 0, len(ts.subs))
	for _, fn := range ts.subs {
		if fn != nil {
			handlers = append(handlers, fn)
		}
	}
	h.mu.Unlock()

	for _, fn := range handlers {
		fn(u)
	}
	if ts.Event != "" {
		h.bus.PublishTopic(ts.Event, ts.Name, u.Value)
	}
	return true
}
