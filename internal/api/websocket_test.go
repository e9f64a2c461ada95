package api

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"trade-journal/internal/events"
	"trade-journal/internal/logging"
)

func newTestClient(hub *UserWSHub, userID string) *UserWSClient {
	return &UserWSClient{
		send:   make(chan []byte, 16),
		hub:    hub,
		userID: userID,
		subs:   make(map[string]string),
		logger: logging.WebSocketContext("test", userID),
	}
}

func TestUserWSHubBroadcastWithNoClients(t *testing.T) {
	hub := NewUserWSHub()

	done := make(chan bool, 1)
	go func() {
		hub.BroadcastToUser("nobody", events.Event{Type: events.EventToast})
		hub.BroadcastToAll(events.Event{Type: events.EventToast})
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Broadcast blocked with no clients")
	}
}

func TestUserIsolation(t *testing.T) {
	hub := NewUserWSHub()
	client1 := newTestClient(hub, "user-1")
	client2 := newTestClient(hub, "user-2")

	hub.mu.Lock()
	hub.clients[client1] = true
	hub.clients[client2] = true
	hub.userClients["user-1"] = map[*UserWSClient]bool{client1: true}
	hub.userClients["user-2"] = map[*UserWSClient]bool{client2: true}
	hub.mu.Unlock()

	go hub.Run()
	defer hub.Stop()

	hub.BroadcastToUser("user-1", events.Event{
		Type: events.EventToast,
		Data: map[string]interface{}{"message": "reaction failed"},
	})

	select {
	case msg := <-client1.send:
		var ev events.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("Failed to parse message: %v", err)
		}
		if ev.Type != events.EventToast {
			t.Errorf("Expected TOAST, got %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("User 1 did not receive message")
	}

	select {
	case <-client2.send:
		t.Error("User 2 should not have received a message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUserWSHubDropsClosedClient(t *testing.T) {
	hub := NewUserWSHub()
	client := newTestClient(hub, "user-1")
	client.close()

	hub.mu.Lock()
	hub.clients[client] = true
	hub.userClients["user-1"] = map[*UserWSClient]bool{client: true}
	hub.mu.Unlock()

	go hub.Run()
	defer hub.Stop()

	hub.BroadcastToAll(events.Event{Type: events.EventToast})

	deadline := time.Now().Add(time.Second)
	for hub.GetTotalClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected closed client to be removed, still have %d", hub.GetTotalClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if hub.GetUserClientCount("user-1") != 0 {
		t.Errorf("Expected no clients for user-1, got %d", hub.GetUserClientCount("user-1"))
	}
}

func TestUserWSHubStopClosesClients(t *testing.T) {
	hub := NewUserWSHub()
	client := newTestClient(hub, "user-1")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run()
	}()
	hub.register <- client

	hub.Stop()
	wg.Wait()

	if _, ok := <-client.send; ok {
		t.Error("Expected send channel to be closed")
	}
	if client.deliver([]byte("late")) {
		t.Error("Expected delivery to a closed client to fail")
	}
}
