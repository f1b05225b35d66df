package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kwonkwonn/chatting-sever/internal/registry"
	"github.com/kwonkwonn/chatting-sever/internal/service"
	"github.com/kwonkwonn/chatting-sever/internal/store"
	"github.com/kwonkwonn/chatting-sever/internal/stream"
)

func newTestRouter(t *testing.T) (http.Handler, *service.Service) {
	t.Helper()
	logger := zerolog.Nop()
	st := store.NewMemoryStore()
	lg := stream.NewMemoryLog(0)
	reg := registry.New(logger)
	svc := service.New(lg, st, reg, service.Config{}, logger)
	return NewRouter(logger, svc, st, lg), svc
}

func createRoomViaAPI(t *testing.T, h http.Handler, name string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"name": name})
	req := httptest.NewRequest(http.MethodPost, "/rooms", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create room: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return resp.ID
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Status string `json:"status"`
		Checks map[string]struct {
			Status string `json:"status"`
		} `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status: got %q, want healthy", resp.Status)
	}
	for _, dep := range []string{"store", "stream"} {
		if resp.Checks[dep].Status != "pass" {
			t.Errorf("check %s: got %q, want pass", dep, resp.Checks[dep].Status)
		}
	}
}

func TestCreateRoomValidation(t *testing.T) {
	h, _ := newTestRouter(t)

	cases := []struct {
		name string
		body string
	}{
		{"empty name", `{"name":""}`},
		{"whitespace name", `{"name":"   "}`},
		{"invalid json", `{"name":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestRoomListAndHistory(t *testing.T) {
	h, _ := newTestRouter(t)

	first := createRoomViaAPI(t, h, "general")
	createRoomViaAPI(t, h, "random")

	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: got %d, want %d", rec.Code, http.StatusOK)
	}
	var list struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 2 {
		t.Errorf("total: got %d, want 2", list.Total)
	}

	req = httptest.NewRequest(http.MethodGet, "/rooms/"+first+"/messages", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status: got %d, want %d", rec.Code, http.StatusOK)
	}
	var history struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Messages) != 0 {
		t.Errorf("messages: got %d, want 0", len(history.Messages))
	}

	req = httptest.NewRequest(http.MethodGet, "/rooms/not-a-uuid/messages", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad uuid status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}

	req = httptest.NewRequest(http.MethodGet, "/rooms/"+uuid.NewString()+"/messages", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown room status: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestClientHandshake(t *testing.T) {
	h, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/client", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := uuid.Parse(resp.ID); err != nil {
		t.Errorf("id %q is not a UUID: %v", resp.ID, err)
	}
}

func TestStatsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)
	createRoomViaAPI(t, h, "general")

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	var stats struct {
		Rooms            int64 `json:"rooms"`
		ConnectedClients int   `json:"connected_clients"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Rooms != 1 {
		t.Errorf("rooms: got %d, want 1", stats.Rooms)
	}
	if stats.ConnectedClients != 0 {
		t.Errorf("connected clients: got %d, want 0", stats.ConnectedClients)
	}
}

func TestCreateRoomRateLimit(t *testing.T) {
	h, _ := newTestRouter(t)

	status := 0
	for i := 0; i < 11; i++ {
		body := fmt.Sprintf(`{"name":"room-%d"}`, i)
		req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		status = rec.Code
		if i < 10 && status != http.StatusCreated {
			t.Fatalf("request %d: status %d, want %d", i, status, http.StatusCreated)
		}
	}
	if status != http.StatusTooManyRequests {
		t.Errorf("11th request: status %d, want %d", status, http.StatusTooManyRequests)
	}
}

func TestWebsocketRoundTrip(t *testing.T) {
	h, svc := newTestRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	roomID := createRoomViaAPI(t, h, "general")
	room := uuid.MustParse(roomID)
	alice := uuid.NewString()
	bob := uuid.NewString()

	connA, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/"+roomID+"/"+alice), nil)
	if err != nil {
		t.Fatalf("dial first client: %v", err)
	}
	defer connA.Close()
	waitFor(t, 2*time.Second, func() bool { return svc.Online(room) == 1 }, "first client never registered")

	connB, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/"+roomID+"/"+bob), nil)
	if err != nil {
		t.Fatalf("dial second client: %v", err)
	}
	defer connB.Close()
	waitFor(t, 2*time.Second, func() bool { return svc.Online(room) == 2 }, "second client never registered")

	if err := connA.WriteJSON(map[string]string{"message": "hello room"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"sender": connA, "receiver": connB} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var evt struct {
			Type      string `json:"type"`
			Sender    string `json:"sender"`
			Body      string `json:"body"`
			Timestamp int64  `json:"ts"`
		}
		if err := conn.ReadJSON(&evt); err != nil {
			t.Fatalf("%s read: %v", name, err)
		}
		if evt.Type != "message" || evt.Sender != alice || evt.Body != "hello room" {
			t.Errorf("%s received %+v", name, evt)
		}
		if evt.Timestamp == 0 {
			t.Errorf("%s received zero timestamp", name)
		}
	}

	// The append happened before fanout, so history serves it immediately.
	req := httptest.NewRequest(http.MethodGet, "/rooms/"+roomID+"/messages", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status: got %d, want %d", rec.Code, http.StatusOK)
	}
	var history struct {
		Messages []struct {
			Sender string `json:"sender"`
			Body   string `json:"body"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Messages) != 1 {
		t.Fatalf("messages: got %d, want 1", len(history.Messages))
	}
	if history.Messages[0].Sender != alice || history.Messages[0].Body != "hello room" {
		t.Errorf("history entry: %+v", history.Messages[0])
	}
}

func TestWebsocketUnknownRoomRejected(t *testing.T) {
	h, _ := newTestRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/"+uuid.NewString()+"/"+uuid.NewString()), nil)
	if err == nil {
		conn.Close()
		t.Fatal("dial to unknown room succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		t.Errorf("handshake status: got %d, want %d", code, http.StatusNotFound)
	}
}

func TestWebsocketDisconnectUnregisters(t *testing.T) {
	h, svc := newTestRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	roomID := createRoomViaAPI(t, h, "general")
	room := uuid.MustParse(roomID)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/"+roomID+"/"+uuid.NewString()), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return svc.Online(room) == 1 }, "client never registered")

	conn.Close()
	waitFor(t, 2*time.Second, func() bool { return svc.Online(room) == 0 }, "client never unregistered")
}
