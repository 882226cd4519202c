package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/sprintleague/riftwalker/internal/endpoint"
	"github.com/sprintleague/riftwalker/internal/endpointtable"
)

func newTestServer(t *testing.T) (*Server, *endpointtable.Table, *httptest.Server) {
	t.Helper()
	table := endpointtable.New()
	s := New(table, nil, zaptest.NewLogger(t))
	srv := httptest.NewServer(s.engine)
	t.Cleanup(srv.Close)
	return s, table, srv
}

func TestHandleHealth(t *testing.T) {
	_, _, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHandleStatus_ReflectsTableSnapshot(t *testing.T) {
	_, table, srv := newTestServer(t)
	table.GetOrCreate(endpoint.RegionID(endpoint.RegionNA1))

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Endpoints []endpointtable.Snapshot `json:"endpoints"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding /status body: %v", err)
	}
	if len(body.Endpoints) != 1 {
		t.Fatalf("expected 1 endpoint in snapshot, got %d", len(body.Endpoints))
	}
}

func TestHandleEvents_DeliversPublishedEvent(t *testing.T) {
	s, _, srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing ws: %v", err)
	}
	defer conn.Close()

	// Give the server a moment to register the subscription before
	// publishing, since Publish is fire-and-forget with no ack.
	time.Sleep(20 * time.Millisecond)
	s.Publish(Event{Walker: "walker-0", Message: "halted", GameID: 42})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	if got.Walker != "walker-0" || got.GameID != 42 {
		t.Fatalf("unexpected event: %+v", got)
	}
}
