package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/your-org/mpr/pkg/dto"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestHub_FiltersByCase(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	watched := uuid.New()
	all := dial(t, srv, "")
	defer all.Close()
	filtered := dial(t, srv, "?case_id="+watched.String())
	defer filtered.Close()

	// Wait for both registrations to land.
	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.mu.RLock()
		n := len(hub.clients)
		hub.mu.RUnlock()
		if n == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.BroadcastEvent(&dto.WSEvent{Type: "scan_completed", CaseID: uuid.New()})
	hub.BroadcastEvent(&dto.WSEvent{Type: "review_decided", CaseID: watched})

	read := func(conn *websocket.Conn) dto.WSEvent {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var ev dto.WSEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return ev
	}

	if ev := read(all); ev.Type != "scan_completed" {
		t.Errorf("unfiltered client first event = %s", ev.Type)
	}
	if ev := read(all); ev.Type != "review_decided" {
		t.Errorf("unfiltered client second event = %s", ev.Type)
	}
	if ev := read(filtered); ev.CaseID != watched {
		t.Errorf("filtered client got event for case %s", ev.CaseID)
	}
}

func TestEventCaseID(t *testing.T) {
	id := uuid.New()
	data, _ := json.Marshal(dto.WSEvent{Type: "x", CaseID: id})
	if got := eventCaseID(data); got != id.String() {
		t.Errorf("eventCaseID = %s; want %s", got, id)
	}
	if got := eventCaseID([]byte("not json")); got != "" {
		t.Errorf("eventCaseID of garbage = %q", got)
	}
}
