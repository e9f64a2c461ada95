package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"trade-journal/internal/events"
	"trade-journal/internal/journal"
	"trade-journal/internal/lounge"
	"trade-journal/internal/meeting"
	"trade-journal/internal/notification"
	"trade-journal/internal/poll"
	"trade-journal/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testToken = "tok-1"

// fakeBackend is a minimal journal API
type fakeBackend struct {
	mux         *http.ServeMux
	role        atomic.Value
	calls       map[string]*int64
	reactStatus atomic.Int32
}

func newFakeBackend() *fakeBackend {
	b := &fakeBackend{mux: http.NewServeMux(), calls: map[string]*int64{}}
	b.role.Store("user")
	b.reactStatus.Store(http.StatusOK)

	b.handle("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req journal.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"bad credentials"}`))
			return
		}
		writeJSON(w, map[string]interface{}{
			"token": testToken,
			"user":  map[string]interface{}{"id": "u1", "name": "Ada", "role": b.role.Load()},
		})
	})
	b.handle("GET /api/notifications", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"notifications": []map[string]interface{}{
				{"id": "n1", "type": "friend_request", "content": "Bob sent a request"},
				{"id": "n2", "type": "system", "content": "Maintenance", "read": true},
			},
			"unreadCount": 1,
		})
	})
	b.handle("GET /trades/user/u1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]interface{}{
			"trades": []map[string]interface{}{{
				"id": "t1", "symbol": "BTCUSDT", "side": "buy",
				"openTime": "2024-03-01T10:00:00Z", "closeTime": "2024-03-01T12:00:00Z",
				"netProfit": 120.5, "rating": 8,
				"execution": map[string]bool{"followedPlan": true, "properEntry": true, "respectedStopLoss": true, "properPositionSize": true},
				"journal":   map[string]bool{"hasNotes": true, "emotionTracked": true},
			}},
			"page": 1, "limit": 50, "total": 1, "totalPages": 1,
		})
	})
	b.handle("PUT /trades/t1/journal", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"id": "t1", "symbol": "BTCUSDT", "side": "buy", "rating": 5})
	})
	b.handle("POST /api/lounge/posts/p1/react", func(w http.ResponseWriter, r *http.Request) {
		if status := int(b.reactStatus.Load()); status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, map[string]interface{}{"reactions": map[string]int{"🔥": 3}, "myReaction": "🔥"})
	})
	b.handle("GET /api/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]interface{}{{"rank": 1, "userId": "u2", "username": "grace", "netProfit": 900}})
	})
	b.handle("GET /api/lounge/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"members": 40, "onlineNow": 7})
	})
	b.handle("GET /api/friends/meeting/m1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"id": "m1", "hostId": "u1", "guestId": "u2", "status": "accepted"})
	})
	b.handle("GET /api/friends/meeting/m2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"id": "m2", "hostId": "u1", "guestId": "u3", "status": "pending"})
	})
	return b
}

func (b *fakeBackend) handle(pattern string, h http.HandlerFunc) {
	n := new(int64)
	b.calls[pattern] = n
	b.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(n, 1)
		h(w, r)
	})
}

func (b *fakeBackend) count(pattern string) int64 {
	return atomic.LoadInt64(b.calls[pattern])
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

type testEnv struct {
	server  *Server
	backend *fakeBackend
	session *session.Store
	board   *lounge.Board
	polls   *poll.Hub
	center  *notification.Center
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, ServerConfig{})
}

func newTestEnvWithConfig(t *testing.T, cfg ServerConfig) *testEnv {
	t.Helper()
	backend := newFakeBackend()
	ts := httptest.NewServer(backend.mux)
	t.Cleanup(ts.Close)

	bus := events.NewSyncEventBus()
	client := journal.NewClient(ts.URL, 5*time.Second, nil)
	store := session.NewStore(session.NewMemoryPersister(), client, bus)
	client.SetTokenSource(store)

	hub := poll.NewHub(bus)
	t.Cleanup(hub.Close)
	board := lounge.NewBoard(client, bus, 10*time.Millisecond)
	center := notification.NewCenter(client, bus)

	srv := NewServer(cfg, Services{
		Client:        client,
		Session:       store,
		EventBus:      bus,
		Polls:         hub,
		Notifications: center,
		Board:         board,
		Lobby:         meeting.NewLobby(client, hub, 20*time.Millisecond),
	})
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	return &testEnv{server: srv, backend: backend, session: store, board: board, polls: hub, center: center}
}

func (e *testEnv) do(method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	return w, response
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	w, _ := e.do(http.MethodPost, "/api/session", map[string]string{"email": "ada@example.com", "password": "secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected login status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w, response := env.do(http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got '%v'", response["status"])
	}
	if response["authenticated"] != false {
		t.Errorf("Expected authenticated false, got %v", response["authenticated"])
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)

	paths := []string{"/api/trades", "/api/goals", "/api/notifications", "/api/leaderboard", "/ws"}
	for _, path := range paths {
		w, _ := env.do(http.MethodGet, path, nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected status 401, got %d", path, w.Code)
		}
	}
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
	}{
		{"valid credentials", map[string]string{"email": "ada@example.com", "password": "secret"}, http.StatusOK},
		{"wrong password", map[string]string{"email": "ada@example.com", "password": "nope"}, http.StatusUnauthorized},
		{"missing password", map[string]string{"email": "ada@example.com"}, http.StatusBadRequest},
		{"no body and no vault", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w, _ := env.do(http.MethodPost, "/api/session", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if authed := env.session.IsAuthenticated(); authed != (tt.wantStatus == http.StatusOK) {
				t.Errorf("Unexpected authenticated state %v", authed)
			}
		})
	}
}

func TestListTradesAddsScore(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	w, response := env.do(http.MethodGet, "/api/trades", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	data := response["data"].(map[string]interface{})
	trades := data["trades"].([]interface{})
	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(trades))
	}
	trade := trades[0].(map[string]interface{})
	// win 30 + execution 4*10 + journal 2*5 + rating 8
	if trade["score"] != float64(88) {
		t.Errorf("Expected score 88, got %v", trade["score"])
	}
	if trade["grade"] != "excellent" {
		t.Errorf("Expected grade excellent, got %v", trade["grade"])
	}
}

func TestTradeStats(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	w, _ := env.do(http.MethodGet, "/api/trades/stats?tz=Not/AZone", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown zone, got %d", w.Code)
	}

	w, response := env.do(http.MethodGet, "/api/trades/stats?tz=UTC", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if response["success"] != true {
		t.Errorf("Expected success, got %v", response)
	}
}

func TestUpdateJournalRejectsBadRating(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	w, _ := env.do(http.MethodPut, "/api/trades/t1/journal", map[string]interface{}{"rating": 11})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if n := env.backend.count("PUT /trades/t1/journal"); n != 0 {
		t.Errorf("Expected no backend call, got %d", n)
	}

	w, _ = env.do(http.MethodPut, "/api/trades/t1/journal", map[string]interface{}{"rating": 5})
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestReactToPost(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	w, response := env.do(http.MethodPost, "/api/lounge/posts/p1/react", map[string]string{"reaction": "🔥"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	data := response["data"].(map[string]interface{})
	if data["myReaction"] != "🔥" {
		t.Errorf("Expected myReaction 🔥, got %v", data["myReaction"])
	}
	counts := data["reactions"].(map[string]interface{})
	if counts["🔥"] != float64(3) {
		t.Errorf("Expected server count 3, got %v", counts["🔥"])
	}
}

func TestReactFailureRevertsState(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.backend.reactStatus.Store(http.StatusInternalServerError)

	target := lounge.Target{Kind: lounge.KindPost, ID: "p1"}
	before := env.board.State(target)

	w, _ := env.do(http.MethodPost, "/api/lounge/posts/p1/react", map[string]string{"reaction": "🔥"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", w.Code)
	}

	after := env.board.State(target)
	if after.Mine != before.Mine || len(after.Counts) != len(before.Counts) {
		t.Errorf("Expected state to be reverted, got %+v", after)
	}
}

func TestReactRequiresSymbol(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	w, _ := env.do(http.MethodPost, "/api/lounge/posts/p1/react", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestLeaderboardSharesFetch(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	w, _ := env.do(http.MethodGet, "/api/leaderboard?period=decade", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown period, got %d", w.Code)
	}

	for i := 0; i < 3; i++ {
		w, response := env.do(http.MethodGet, "/api/leaderboard?period=week&metric=profit", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		data := response["data"].(map[string]interface{})
		if data["topic"] != "leaderboard:week:profit" {
			t.Errorf("Expected topic leaderboard:week:profit, got %v", data["topic"])
		}
	}

	if n := env.backend.count("GET /api/leaderboard"); n != 1 {
		t.Errorf("Expected 1 backend fetch, got %d", n)
	}
}

func TestNotificationEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	// let the session-driven poll land first so it cannot overwrite the
	// local read below
	deadline := time.Now().Add(2 * time.Second)
	for !env.server.svc.Notifications.Loaded() {
		if time.Now().After(deadline) {
			t.Fatal("Timeout waiting for notification poll")
		}
		time.Sleep(5 * time.Millisecond)
	}

	w, response := env.do(http.MethodGet, "/api/notifications", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	data := response["data"].(map[string]interface{})
	if data["unreadCount"] != float64(1) {
		t.Errorf("Expected unread 1, got %v", data["unreadCount"])
	}

	w, _ = env.do(http.MethodPut, "/api/notifications/missing/read", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	w, response = env.do(http.MethodPut, "/api/notifications/n1/read", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	data = response["data"].(map[string]interface{})
	if data["unreadCount"] != float64(0) {
		t.Errorf("Expected unread 0, got %v", data["unreadCount"])
	}
}

func TestNotificationPollingFollowsSession(t *testing.T) {
	env := newTestEnv(t)

	if n := env.polls.Subscribers(TopicNotifications); n != 0 {
		t.Fatalf("Expected no subscribers before login, got %d", n)
	}

	env.login(t)
	if n := env.polls.Subscribers(TopicNotifications); n != 1 {
		t.Errorf("Expected 1 subscriber after login, got %d", n)
	}

	w, _ := env.do(http.MethodDelete, "/api/session", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if n := env.polls.Subscribers(TopicNotifications); n != 0 {
		t.Errorf("Expected no subscribers after logout, got %d", n)
	}
}

func TestLogoutResetsUserState(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	w, _ := env.do(http.MethodGet, "/api/notifications", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if _, err := env.board.React(context.Background(), "u1", lounge.Target{Kind: lounge.KindPost, ID: "p1"}, "🔥"); err != nil {
		t.Fatalf("React failed: %v", err)
	}

	w, _ = env.do(http.MethodDelete, "/api/session", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if env.center.Loaded() || env.center.UnreadCount() != 0 || len(env.center.List()) != 0 {
		t.Errorf("Expected empty feed after logout, got loaded=%v items=%d unread=%d",
			env.center.Loaded(), len(env.center.List()), env.center.UnreadCount())
	}
	if s := env.board.State(lounge.Target{Kind: lounge.KindPost, ID: "p1"}); s.Mine != "" {
		t.Errorf("Expected no reaction after logout, got %q", s.Mine)
	}

	env.login(t)
	deadline := time.Now().Add(2 * time.Second)
	for !env.center.Loaded() {
		if time.Now().After(deadline) {
			t.Fatal("Expected the feed to load again after login")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTopicFallbackIntervals(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		topic string
		want  time.Duration
	}{
		{TopicNotifications, 30 * time.Second},
		{TopicOnlineFriends, 15 * time.Second},
		{TopicCommunityStats, 5 * time.Minute},
		{"leaderboard:week:profit", 30 * time.Second},
	}
	for _, tt := range tests {
		topic, err := env.server.resolveTopic(tt.topic)
		if err != nil {
			t.Fatalf("%s: %v", tt.topic, err)
		}
		if topic.Interval != tt.want {
			t.Errorf("%s: expected interval %v, got %v", tt.topic, tt.want, topic.Interval)
		}
	}
}

func TestAdminRoutes(t *testing.T) {
	tests := []struct {
		role       string
		wantStatus int
	}{
		{"user", http.StatusForbidden},
		{"admin", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			env := newTestEnv(t)
			env.backend.role.Store(tt.role)
			env.login(t)

			w, _ := env.do(http.MethodGet, "/api/admin/polls", nil)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestWaitMeeting(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	w, _ := env.do(http.MethodGet, "/api/meetings/m1/wait?timeout=bogus", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	w, response := env.do(http.MethodGet, "/api/meetings/m1/wait?timeout=2s", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	data := response["data"].(map[string]interface{})
	if data["status"] != "accepted" {
		t.Errorf("Expected status accepted, got %v", data["status"])
	}
	if n := env.polls.Subscribers("meeting:m1"); n != 0 {
		t.Errorf("Expected meeting poll to stop, got %d subscribers", n)
	}
}

func TestWaitMeetingRepliesBeforeWriteTimeout(t *testing.T) {
	env := newTestEnvWithConfig(t, ServerConfig{WriteTimeout: 300 * time.Millisecond})
	env.login(t)

	ts := httptest.NewUnstartedServer(nil)
	ts.Config = env.server.newHTTPServer()
	ts.Start()
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/meetings/m2/wait?timeout=1s")
	if err != nil {
		t.Fatalf("Expected a reply before the write deadline, got %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", resp.StatusCode)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode reply: %v", err)
	}
	if body["pending"] != true {
		t.Errorf("Expected pending reply, got %v", body)
	}
}

func TestDefaultWriteTimeoutCoversMeetingWait(t *testing.T) {
	env := newTestEnv(t)
	if limit := env.server.meetingWaitLimit(); limit != maxMeetingWait {
		t.Errorf("Expected wait limit %v with the default write timeout, got %v", maxMeetingWait, limit)
	}
	if hs := env.server.newHTTPServer(); hs.WriteTimeout <= maxMeetingWait {
		t.Errorf("Expected write timeout above %v, got %v", maxMeetingWait, hs.WriteTimeout)
	}
}

func TestWebSocketTopicSubscription(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	ts := httptest.NewServer(env.server.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(wsCommand{Action: "subscribe", Topic: TopicCommunityStats}); err != nil {
		t.Fatalf("Failed to send command: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev events.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("Failed waiting for topic update: %v", err)
		}
		if ev.Type != events.EventTopicUpdate {
			continue
		}
		if ev.Data["topic"] != TopicCommunityStats {
			t.Errorf("Expected topic %s, got %v", TopicCommunityStats, ev.Data["topic"])
		}
		break
	}

	if n := env.polls.Subscribers(TopicCommunityStats); n != 1 {
		t.Errorf("Expected 1 subscriber, got %d", n)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for env.polls.Subscribers(TopicCommunityStats) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Expected subscription to be dropped on disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
