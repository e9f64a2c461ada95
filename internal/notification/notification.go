// Package notification keeps the local notification cache and unread
// counter. Local mutations are applied synchronously and sent to the
// backend fire-and-forget: a failed call is logged and never rolled back.
package notification

import (
	"context"
	"sync"
	"time"

	"trade-journal/internal/events"
	"trade-journal/internal/journal"
	"trade-journal/internal/logging"
)

// API is the subset of the journal client the center calls
type API interface {
	ListNotifications(ctx context.Context) (*journal.NotificationList, error)
	MarkNotificationRead(ctx context.Context, id string) error
	DismissNotification(ctx context.Context, id string) error
	DismissAllNotifications(ctx context.Context) error
}

// sendTimeout bounds each fire-and-forget call
const sendTimeout = 10 * time.Second

// Center is the notification cache shared by every panel
type Center struct {
	mu     sync.RWMutex
	items  []journal.Notification
	unread int
	loaded bool

	api    API
	bus    *events.EventBus
	logger *logging.Logger
	wg     sync.WaitGroup
}

func NewCenter(api API, bus *events.EventBus) *Center {
	return &Center{
		api:    api,
		bus:    bus,
		logger: logging.WithComponent("notification"),
	}
}

// Fetch satisfies the poll hub's fetcher signature
func (c *Center) Fetch(ctx context.Context) (interface{}, error) {
	return c.api.ListNotifications(ctx)
}

// Apply replaces the cache with a fetched list. Dismissed entries are
// dropped from the visible list.
func (c *Center) Apply(list *journal.NotificationList) {
	if list == nil {
		return
	}
	items := make([]journal.Notification, 0, len(list.Notifications))
	for _, n := range list.Notifications {
		if !n.Dismissed {
			items = append(items, n)
		}
	}

	c.mu.Lock()
	c.items = items
	c.unread = list.UnreadCount
	c.loaded = true
	c.mu.Unlock()

	c.publish()
}

// Reset forgets the cached feed, used when the session ends so the next
// user starts from an unloaded cache
func (c *Center) Reset() {
	c.mu.Lock()
	c.items = nil
	c.unread = 0
	c.loaded = false
	c.mu.Unlock()

	c.publish()
}

// Refresh fetches the feed and applies it
func (c *Center) Refresh(ctx context.Context) error {
	list, err := c.api.ListNotifications(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Notification refresh failed")
		return err
	}
	c.Apply(list)
	return nil
}

// Open is called when the user opens the notification panel
func (c *Center) Open(ctx context.Context) error {
	return c.Refresh(ctx)
}

// List returns a copy of the cached notifications
func (c *Center) List() []journal.Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]journal.Notification(nil), c.items...)
}

func (c *Center) UnreadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unread
}

// Loaded reports whether a list was applied at least once
func (c *Center) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// MarkRead marks id read locally and tells the backend. It returns false
// when id is not cached.
func (c *Center) MarkRead(ctx context.Context, id string) bool {
	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return false
	}
	if !c.items[idx].Read {
		c.items[idx].Read = true
		c.decrementLocked()
	}
	c.mu.Unlock()

	c.publish()
	c.send(ctx, id, "mark read", func(ctx context.Context) error {
		return c.api.MarkNotificationRead(ctx, id)
	})
	return true
}

// Dismiss removes id locally and tells the backend. Dismissing an unread
// notification decrements the counter by one, never below zero.
func (c *Center) Dismiss(ctx context.Context, id string) bool {
	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return false
	}
	if !c.items[idx].Read {
		c.decrementLocked()
	}
	c.items = append(c.items[:idx], c.items[idx+1:]...)
	c.mu.Unlock()

	c.publish()
	c.send(ctx, id, "dismiss", func(ctx context.Context) error {
		return c.api.DismissNotification(ctx, id)
	})
	return true
}

// DismissAll clears the cache and the counter
func (c *Center) DismissAll(ctx context.Context) {
	c.mu.Lock()
	c.items = nil
	c.unread = 0
	c.mu.Unlock()

	c.publish()
	c.send(ctx, "", "dismiss all", c.api.DismissAllNotifications)
}

// Wait blocks until every pending backend call has returned
func (c *Center) Wait() {
	c.wg.Wait()
}

func (c *Center) indexLocked(id string) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Center) decrementLocked() {
	if c.unread > 0 {
		c.unread--
	}
}

func (c *Center) send(ctx context.Context, id, action string, call func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()

		if err := call(ctx); err != nil {
			logging.NotificationContext(id).WithError(err).Warn("Notification update not saved", "action", action)
			c.bus.PublishError("", "notifications", action+" not saved", err)
		}
	}()
}

func (c *Center) publish() {
	c.mu.RLock()
	data := map[string]interface{}{
		"notifications": append([]journal.Notification(nil), c.items...),
		"unreadCount":   c.unread,
	}
	c.mu.RUnlock()

	c.bus.Publish(events.Event{
		Type: events.EventNotificationsUpdated,
		Data: data,
	})
}
