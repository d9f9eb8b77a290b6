// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package tracker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/slidevoice/voicelink/internal/relay"
	"github.com/slidevoice/voicelink/internal/wire"
)

// mockJobServer simulates the narration job service's progress socket.
type mockJobServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	connChan   chan *websocket.Conn
	actionChan chan wire.TrackAction

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newMockJobServer() *mockJobServer {
	mock := &mockJobServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		connChan:   make(chan *websocket.Conn, 4),
		actionChan: make(chan wire.TrackAction, 16),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("client_id") == "" {
			http.Error(w, "missing client_id", http.StatusBadRequest)
			return
		}

		conn, err := mock.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mock.mu.Lock()
		mock.conns = append(mock.conns, conn)
		mock.mu.Unlock()
		mock.connChan <- conn

		// Drain client actions so tests can assert on them.
		go func() {
			for {
				var action wire.TrackAction
				if err := conn.ReadJSON(&action); err != nil {
					return
				}
				mock.actionChan <- action
			}
		}()
	}))

	return mock
}

func (m *mockJobServer) close() {
	m.mu.Lock()
	for _, c := range m.conns {
		_ = c.Close()
	}
	m.mu.Unlock()
	m.server.Close()
}

func (m *mockJobServer) url() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http") + "/ws/progress?client_id=test-session"
}

func (m *mockJobServer) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-m.connChan:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no connection arrived")
		return nil
	}
}

func (m *mockJobServer) waitAction(t *testing.T) wire.TrackAction {
	t.Helper()
	select {
	case action := <-m.actionChan:
		return action
	case <-time.After(2 * time.Second):
		t.Fatal("no action arrived")
		return wire.TrackAction{}
	}
}

func (m *mockJobServer) sendProgress(t *testing.T, conn *websocket.Conn, jobID, status string, progress float64) {
	t.Helper()
	msg := map[string]any{"job_id": jobID, "status": status, "progress": progress}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal progress: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write progress: %v", err)
	}
}

func newTestClient(url string, opts Options) *Client {
	opts.SocketURL = url
	if opts.Backoff == (relay.Backoff{}) {
		opts.Backoff = relay.Backoff{Base: 20 * time.Millisecond, CapAttempt: 3, MaxDelay: 100 * time.Millisecond}
	}
	return New(opts)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartTrackingSubscribes(t *testing.T) {
	mock := newMockJobServer()
	defer mock.close()

	client := newTestClient(mock.url(), Options{})
	defer client.StopTracking()

	if err := client.StartTracking(context.Background(), "job-42", StartOptions{}); err != nil {
		t.Fatalf("StartTracking: %v", err)
	}

	conn := mock.waitConn(t)
	action := mock.waitAction(t)
	if action.Action != "subscribe" || action.JobID != "job-42" {
		t.Fatalf("first action = %+v, want subscribe job-42", action)
	}

	mock.sendProgress(t, conn, "job-42", "processing", 0.4)

	waitFor(t, "snapshot", func() bool {
		_, ok := client.Latest()
		return ok
	})

	latest, _ := client.Latest()
	if latest.Status != "processing" || latest.Progress != 0.4 {
		t.Errorf("latest = %+v", latest)
	}
	if client.Status() != relay.StateReady {
		t.Errorf("Status = %v, want ready", client.Status())
	}
}

func TestJobSwitchReusesSocket(t *testing.T) {
	mock := newMockJobServer()
	defer mock.close()

	client := newTestClient(mock.url(), Options{})
	defer client.StopTracking()

	if err := client.StartTracking(context.Background(), "job-1", StartOptions{}); err != nil {
		t.Fatalf("StartTracking job-1: %v", err)
	}
	mock.waitConn(t)
	if a := mock.waitAction(t); a.Action != "subscribe" || a.JobID != "job-1" {
		t.Fatalf("action = %+v", a)
	}

	if err := client.StartTracking(context.Background(), "job-2", StartOptions{}); err != nil {
		t.Fatalf("StartTracking job-2: %v", err)
	}

	// Exactly one unsubscribe for job-1 then one subscribe for job-2,
	// with no second connection.
	if a := mock.waitAction(t); a.Action != "unsubscribe" || a.JobID != "job-1" {
		t.Fatalf("action = %+v, want unsubscribe job-1", a)
	}
	if a := mock.waitAction(t); a.Action != "subscribe" || a.JobID != "job-2" {
		t.Fatalf("action = %+v, want subscribe job-2", a)
	}

	select {
	case <-mock.connChan:
		t.Fatal("job switch opened a second socket")
	case <-time.After(100 * time.Millisecond):
	}

	if client.TrackedJob() != "job-2" {
		t.Errorf("TrackedJob = %q, want job-2", client.TrackedJob())
	}
}

func TestManifestRefreshFiresOnce(t *testing.T) {
	mock := newMockJobServer()
	defer mock.close()

	refreshes := make(chan string, 4)
	client := newTestClient(mock.url(), Options{
		OnManifestRefresh: func(jobID string) { refreshes <- jobID },
	})
	defer client.StopTracking()

	if err := client.StartTracking(context.Background(), "job-42", StartOptions{}); err != nil {
		t.Fatalf("StartTracking: %v", err)
	}
	conn := mock.waitConn(t)
	mock.waitAction(t)

	mock.sendProgress(t, conn, "job-42", "processing", 0.4)
	mock.sendProgress(t, conn, "job-42", "completed", 1.0)
	mock.sendProgress(t, conn, "job-42", "completed", 1.0) // duplicate terminal event

	select {
	case jobID := <-refreshes:
		if jobID != "job-42" {
			t.Errorf("refresh for %q, want job-42", jobID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("manifest refresh never fired")
	}

	select {
	case jobID := <-refreshes:
		t.Fatalf("manifest refresh fired twice (second for %q)", jobID)
	case <-time.After(150 * time.Millisecond):
	}

	waitFor(t, "both snapshots", func() bool { return len(client.History()) >= 3 })
	latest, _ := client.Latest()
	if latest.Status != "completed" || latest.Progress != 1.0 {
		t.Errorf("latest = %+v", latest)
	}
}

func TestProgressForOtherJobsIgnored(t *testing.T) {
	mock := newMockJobServer()
	defer mock.close()

	client := newTestClient(mock.url(), Options{})
	defer client.StopTracking()

	if err := client.StartTracking(context.Background(), "job-1", StartOptions{}); err != nil {
		t.Fatalf("StartTracking: %v", err)
	}
	conn := mock.waitConn(t)
	mock.waitAction(t)

	mock.sendProgress(t, conn, "job-other", "processing", 0.9)
	mock.sendProgress(t, conn, "job-1", "processing", 0.1)

	waitFor(t, "tracked snapshot", func() bool {
		_, ok := client.Latest()
		return ok
	})

	if len(client.History()) != 1 {
		t.Fatalf("history = %+v", client.History())
	}
	latest, _ := client.Latest()
	if latest.JobID != "job-1" {
		t.Errorf("latest from job %q", latest.JobID)
	}
}

func TestMalformedProgressSurfacedNonFatally(t *testing.T) {
	mock := newMockJobServer()
	defer mock.close()

	errs := make(chan error, 4)
	client := newTestClient(mock.url(), Options{
		OnError: func(err error) { errs <- err },
	})
	defer client.StopTracking()

	if err := client.StartTracking(context.Background(), "job-1", StartOptions{}); err != nil {
		t.Fatalf("StartTracking: %v", err)
	}
	conn := mock.waitConn(t)
	mock.waitAction(t)

	// Progress field missing entirely.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"job_id":"job-1","status":"processing"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case err := <-errs:
		if !errors.Is(err, wire.ErrMalformedPayload) {
			t.Errorf("err = %v, want ErrMalformedPayload", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("malformed payload never surfaced")
	}

	// The connection survives: a well-formed event still lands.
	mock.sendProgress(t, conn, "job-1", "processing", 0.2)
	waitFor(t, "snapshot after malformed message", func() bool {
		_, ok := client.Latest()
		return ok
	})
}

func TestReconnectAfterUnexpectedClose(t *testing.T) {
	mock := newMockJobServer()
	defer mock.close()

	client := newTestClient(mock.url(), Options{})
	defer client.StopTracking()

	if err := client.StartTracking(context.Background(), "job-1", StartOptions{}); err != nil {
		t.Fatalf("StartTracking: %v", err)
	}
	conn := mock.waitConn(t)
	mock.waitAction(t)

	mock.sendProgress(t, conn, "job-1", "processing", 0.3)
	waitFor(t, "first snapshot", func() bool {
		_, ok := client.Latest()
		return ok
	})

	// Kill the socket server-side; the client must reconnect and
	// resubscribe with history preserved.
	_ = conn.Close()

	mock.waitConn(t)
	action := mock.waitAction(t)
	if action.Action != "subscribe" || action.JobID != "job-1" {
		t.Fatalf("resubscribe action = %+v", action)
	}

	if len(client.History()) == 0 {
		t.Error("history cleared across transparent reconnect")
	}
}

func TestStopTrackingSuppressesReconnect(t *testing.T) {
	mock := newMockJobServer()
	defer mock.close()

	client := newTestClient(mock.url(), Options{})

	if err := client.StartTracking(context.Background(), "job-1", StartOptions{}); err != nil {
		t.Fatalf("StartTracking: %v", err)
	}
	mock.waitConn(t)
	mock.waitAction(t)

	client.StopTracking()
	client.StopTracking() // idempotent

	if client.Status() != relay.StateStopped {
		t.Errorf("Status = %v, want stopped", client.Status())
	}
	if client.TrackedJob() != "" {
		t.Errorf("TrackedJob = %q after stop", client.TrackedJob())
	}

	// No reconnect may arrive, even after the backoff window.
	select {
	case <-mock.connChan:
		t.Fatal("reconnect happened after StopTracking")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestStartTrackingClearsStateUnlessPreserved(t *testing.T) {
	mock := newMockJobServer()
	defer mock.close()

	client := newTestClient(mock.url(), Options{})
	defer client.StopTracking()

	if err := client.StartTracking(context.Background(), "job-1", StartOptions{}); err != nil {
		t.Fatalf("StartTracking: %v", err)
	}
	conn := mock.waitConn(t)
	mock.waitAction(t)

	mock.sendProgress(t, conn, "job-1", "processing", 0.5)
	waitFor(t, "snapshot", func() bool {
		_, ok := client.Latest()
		return ok
	})

	// A fresh start for another job clears history.
	if err := client.StartTracking(context.Background(), "job-2", StartOptions{}); err != nil {
		t.Fatalf("StartTracking job-2: %v", err)
	}
	if len(client.History()) != 0 {
		t.Errorf("history survived a fresh start: %+v", client.History())
	}
}
