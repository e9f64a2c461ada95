package notification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"trade-journal/internal/events"
	"trade-journal/internal/journal"
)

type fakeAPI struct {
	mu        sync.Mutex
	list      *journal.NotificationList
	listErr   error
	callErr   error
	read      []string
	dismissed []string
	all       int
}

func (f *fakeAPI) ListNotifications(ctx context.Context) (*journal.NotificationList, error) {
	return f.list, f.listErr
}

func (f *fakeAPI) MarkNotificationRead(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, id)
	return f.callErr
}

func (f *fakeAPI) DismissNotification(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed = append(f.dismissed, id)
	return f.callErr
}

func (f *fakeAPI) DismissAllNotifications(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.all++
	return f.callErr
}

func loadedCenter(t *testing.T, api *fakeAPI, unread int) *Center {
	t.Helper()
	api.list = &journal.NotificationList{
		Notifications: []journal.Notification{
			{ID: "n1", Kind: journal.NotifyFriendRequest, Read: false},
			{ID: "n2", Kind: journal.NotifyGoalAchieved, Read: true},
			{ID: "n3", Kind: journal.NotifySystem, Dismissed: true},
		},
		UnreadCount: unread,
	}
	c := NewCenter(api, nil)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	return c
}

func TestRefreshDropsDismissed(t *testing.T) {
	c := loadedCenter(t, &fakeAPI{}, 1)

	if len(c.List()) != 2 {
		t.Errorf("Expected 2 visible notifications, got %d", len(c.List()))
	}
	if c.UnreadCount() != 1 {
		t.Errorf("Expected unread 1, got %d", c.UnreadCount())
	}
	if !c.Loaded() {
		t.Error("Expected center to be loaded")
	}
}

func TestDismissUnreadCounter(t *testing.T) {
	tests := []struct {
		name       string
		unread     int
		id         string
		wantUnread int
	}{
		{"already read leaves counter", 1, "n2", 1},
		{"unread decrements by one", 1, "n1", 0},
		{"floored at zero", 0, "n1", 0},
		{"unknown id", 1, "nope", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			c := loadedCenter(t, api, tt.unread)

			c.Dismiss(context.Background(), tt.id)
			c.Wait()

			if c.UnreadCount() != tt.wantUnread {
				t.Errorf("Expected unread %d, got %d", tt.wantUnread, c.UnreadCount())
			}
		})
	}
}

func TestMutationsAreNotRolledBack(t *testing.T) {
	bus := events.NewSyncEventBus()
	var failures atomic.Int32
	bus.Subscribe(events.EventError, func(e events.Event) {
		if e.Data["source"] == "notifications" {
			failures.Add(1)
		}
	})

	api := &fakeAPI{callErr: errors.New("500")}
	c := loadedCenter(t, api, 1)
	c.bus = bus

	if !c.MarkRead(context.Background(), "n1") {
		t.Fatal("Expected n1 to be found")
	}
	c.Dismiss(context.Background(), "n2")
	c.Wait()

	if c.UnreadCount() != 0 {
		t.Errorf("Expected unread 0 after failed call, got %d", c.UnreadCount())
	}
	list := c.List()
	if len(list) != 1 || !list[0].Read {
		t.Errorf("Expected n1 read and n2 gone, got %+v", list)
	}
	if len(api.read) != 1 || len(api.dismissed) != 1 {
		t.Errorf("Expected one call each, got read=%v dismissed=%v", api.read, api.dismissed)
	}
	if n := failures.Load(); n != 2 {
		t.Errorf("Expected 2 error events, got %d", n)
	}
}

func TestResetForgetsFeed(t *testing.T) {
	bus := events.NewSyncEventBus()
	var last events.Event
	bus.Subscribe(events.EventNotificationsUpdated, func(e events.Event) { last = e })

	c := loadedCenter(t, &fakeAPI{}, 1)
	c.bus = bus
	c.Reset()

	if c.Loaded() || c.UnreadCount() != 0 || len(c.List()) != 0 {
		t.Errorf("Expected empty unloaded cache, got loaded=%v unread=%d items=%d", c.Loaded(), c.UnreadCount(), len(c.List()))
	}
	if last.Data["unreadCount"] != 0 {
		t.Errorf("Expected published unreadCount 0, got %v", last.Data["unreadCount"])
	}
}

func TestMarkReadTwiceDecrementsOnce(t *testing.T) {
	c := loadedCenter(t, &fakeAPI{}, 3)

	c.MarkRead(context.Background(), "n1")
	c.MarkRead(context.Background(), "n1")
	c.Wait()

	if c.UnreadCount() != 2 {
		t.Errorf("Expected unread 2, got %d", c.UnreadCount())
	}
}

func TestDismissAll(t *testing.T) {
	bus := events.NewSyncEventBus()
	var last events.Event
	bus.Subscribe(events.EventNotificationsUpdated, func(e events.Event) { last = e })

	api := &fakeAPI{}
	c := loadedCenter(t, api, 5)
	c.bus = bus

	c.DismissAll(context.Background())
	c.Wait()

	if c.UnreadCount() != 0 || len(c.List()) != 0 {
		t.Error("Expected empty cache after dismiss all")
	}
	if api.all != 1 {
		t.Errorf("Expected one dismiss-all call, got %d", api.all)
	}
	if last.Data["unreadCount"] != 0 {
		t.Errorf("Expected published unreadCount 0, got %v", last.Data["unreadCount"])
	}
}

func TestFireAndForgetSurvivesCancelledContext(t *testing.T) {
	api := &fakeAPI{}
	c := loadedCenter(t, api, 1)

	ctx, cancel := context.WithCancel(context.Background())
	c.MarkRead(ctx, "n1")
	cancel()
	c.Wait()

	if len(api.read) != 1 {
		t.Errorf("Expected call to be sent, got %v", api.read)
	}
}

func TestRefreshErrorKeepsCache(t *testing.T) {
	api := &fakeAPI{}
	c := loadedCenter(t, api, 1)

	api.listErr = errors.New("timeout")
	if err := c.Open(context.Background()); err == nil {
		t.Fatal("Expected error")
	}
	if len(c.List()) != 2 {
		t.Errorf("Expected cache kept, got %d items", len(c.List()))
	}
}
