// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/slidevoice/voicelink/internal/logging"
	"github.com/slidevoice/voicelink/internal/metrics"
	"github.com/slidevoice/voicelink/internal/relay"
	"github.com/slidevoice/voicelink/internal/wire"
)

var (
	// ErrNotTracking is returned when an operation needs an active
	// subscription but none exists.
	ErrNotTracking = errors.New("no job is being tracked")

	// ErrRemoteError carries an error event reported by the job service.
	ErrRemoteError = errors.New("job service reported an error")
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 75 * time.Second
)

// ManifestRefreshFunc is invoked asynchronously, exactly once per job,
// on the first terminal (completed/failed) status observation.
type ManifestRefreshFunc func(jobID string)

// Options carries the tracker's injected collaborators.
type Options struct {
	// SocketURL is the fully derived progress socket address, including
	// the per-session client id.
	SocketURL string

	// DialTimeout bounds the WebSocket handshake. Default 10s.
	DialTimeout time.Duration

	// HistoryCap bounds the snapshot history. Default 25.
	HistoryCap int

	// Backoff shapes the reconnect schedule. Zero value selects the
	// default 1s..30s doubling schedule.
	Backoff relay.Backoff

	// OnManifestRefresh is the terminal-state side effect. Optional.
	OnManifestRefresh ManifestRefreshFunc

	// OnError receives non-fatal errors: malformed payloads and error
	// events from the service. Optional.
	OnError func(error)
}

// StartOptions modifies StartTracking.
type StartOptions struct {
	// PreserveState keeps the snapshot history and terminal-state
	// bookkeeping across the (re)start. Used for transparent reconnects.
	PreserveState bool
}

// Client is the pub/sub progress-tracking client for remote narration
// jobs. One Client owns at most one socket at a time; a new connect
// attempt first tears down any live socket. Construct one per UI session
// and drive it with StartTracking/StopTracking.
type Client struct {
	socketURL string
	dialTO    time.Duration
	backoff   relay.Backoff
	refresh   ManifestRefreshFunc
	onError   func(error)
	machine   *relay.Machine
	history   *History

	mu              sync.Mutex
	conn            *websocket.Conn
	gen             uint64
	trackedJobID    string
	shouldReconnect bool
	attempt         int
	reconnectTimer  *time.Timer
	refreshed       map[string]bool

	writeMu sync.Mutex
}

// NewSessionClientID returns the per-session client id appended to the
// socket URL's query string by config.BackendConfig.ProgressSocketURL.
func NewSessionClientID() string {
	return uuid.NewString()
}

// New constructs a job tracker client. The socket is not opened until
// StartTracking.
func New(opts Options) *Client {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.Backoff == (relay.Backoff{}) {
		opts.Backoff = relay.DefaultBackoff()
	}

	return &Client{
		socketURL: opts.SocketURL,
		dialTO:    opts.DialTimeout,
		backoff:   opts.Backoff,
		refresh:   opts.OnManifestRefresh,
		onError:   opts.OnError,
		machine:   relay.NewMachine(),
		history:   NewHistory(opts.HistoryCap),
		refreshed: make(map[string]bool),
	}
}

// StartTracking subscribes to jobID. With a live connection and a
// different current job it sends unsubscribe(old) then subscribe(new) on
// the same socket; otherwise it opens a fresh socket and subscribes once
// connected. Without PreserveState the history and terminal-state
// bookkeeping are cleared first.
func (c *Client) StartTracking(ctx context.Context, jobID string, opts StartOptions) error {
	if jobID == "" {
		return fmt.Errorf("%w: empty job id", wire.ErrMalformedPayload)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machine.Stopped() {
		c.machine.Restart()
	}
	c.shouldReconnect = true

	if !opts.PreserveState {
		c.history.Clear()
		c.refreshed = make(map[string]bool)
	}

	if c.conn != nil && c.machine.State() == relay.StateReady {
		if c.trackedJobID == jobID {
			return nil
		}
		// Same socket, different job: swap subscriptions in order.
		if c.trackedJobID != "" {
			if err := c.writeAction(wire.ActionUnsubscribe, c.trackedJobID); err != nil {
				return fmt.Errorf("unsubscribe %s: %w", c.trackedJobID, err)
			}
		}
		if err := c.writeAction(wire.ActionSubscribe, jobID); err != nil {
			return fmt.Errorf("subscribe %s: %w", jobID, err)
		}
		c.trackedJobID = jobID
		return nil
	}

	return c.connectAndSubscribeLocked(ctx, jobID)
}

// StopTracking permanently ends tracking: it suppresses all future
// reconnects, closes the socket, and clears subscription state and
// history. Idempotent; this is the only path that sets the permanent
// stop.
func (c *Client) StopTracking() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shouldReconnect = false
	c.machine.To(relay.StateStopped)
	metrics.ConnectionState.WithLabelValues(metrics.ChannelTracker).Set(float64(relay.StateStopped))

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}

	c.closeConnLocked()
	c.trackedJobID = ""
	c.attempt = 0
	c.history.Clear()
	c.refreshed = make(map[string]bool)

	logging.Info().Str("component", "tracker").Msg("Tracking stopped")
}

// Latest returns the most recent snapshot, if any.
func (c *Client) Latest() (Snapshot, bool) {
	return c.history.Latest()
}

// History returns a copy of the snapshot buffer, newest first.
func (c *Client) History() []Snapshot {
	return c.history.Snapshots()
}

// TrackedJob returns the currently subscribed job id, empty when idle.
func (c *Client) TrackedJob() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trackedJobID
}

// Status returns the connection state.
func (c *Client) Status() relay.ConnState {
	return c.machine.State()
}

// connectAndSubscribeLocked dials, starts the read loop, and subscribes.
// Caller holds c.mu.
func (c *Client) connectAndSubscribeLocked(ctx context.Context, jobID string) error {
	c.closeConnLocked()
	c.machine.To(relay.StateConnecting)
	metrics.ConnectionState.WithLabelValues(metrics.ChannelTracker).Set(float64(relay.StateConnecting))

	dialer := websocket.Dialer{HandshakeTimeout: c.dialTO}
	conn, resp, err := dialer.DialContext(ctx, c.socketURL, nil)
	if err != nil {
		c.machine.To(relay.StateDisconnected)
		metrics.ConnectionState.WithLabelValues(metrics.ChannelTracker).Set(float64(relay.StateDisconnected))
		if resp != nil {
			return fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.conn = conn
	c.gen++
	c.machine.To(relay.StateReady)
	metrics.ConnectionState.WithLabelValues(metrics.ChannelTracker).Set(float64(relay.StateReady))

	logging.Info().Str("component", "tracker").Str("job_id", jobID).Msg("Connected to job service")

	go c.readLoop(conn, c.gen)
	go c.pingLoop(conn, c.gen)

	if err := c.writeAction(wire.ActionSubscribe, jobID); err != nil {
		return fmt.Errorf("subscribe %s: %w", jobID, err)
	}
	c.trackedJobID = jobID
	return nil
}

// writeAction sends one subscribe/unsubscribe message. Caller holds c.mu,
// which also guarantees calling order on the wire.
func (c *Client) writeAction(action, jobID string) error {
	if c.conn == nil {
		return relay.ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(wire.TrackAction{Action: action, JobID: jobID})
}

// readLoop drains one socket generation. It exits on the first read
// error and hands off to the disconnect path.
func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info().Str("component", "tracker").Msg("Connection closed by peer")
			} else {
				logging.Warn().Str("component", "tracker").Err(err).Msg("Read error")
			}
			c.handleDisconnect(gen)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handleMessage(data)
	}
}

// pingLoop keeps the connection's read deadline alive. It stops when its
// socket generation is retired.
func (c *Client) pingLoop(conn *websocket.Conn, gen uint64) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		live := c.gen == gen && c.conn == conn
		c.mu.Unlock()
		if !live {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
			return
		}
	}
}

// handleMessage routes one inbound message. Nothing here may panic out
// of the read loop; malformed input is surfaced through onError and the
// connection stays open.
func (c *Client) handleMessage(data []byte) {
	var msg wire.JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.MalformedMessages.WithLabelValues(metrics.ChannelTracker).Inc()
		c.reportError(fmt.Errorf("%w: %s", wire.ErrMalformedPayload, err.Error()))
		return
	}

	if msg.IsControl() {
		c.handleControl(&msg)
		return
	}
	c.handleProgress(&msg)
}

func (c *Client) handleControl(msg *wire.JobMessage) {
	switch msg.Event {
	case wire.EventConnected:
		// Informational only.

	case wire.EventSubscribed:
		c.mu.Lock()
		c.trackedJobID = msg.JobID
		c.mu.Unlock()
		logging.Debug().Str("component", "tracker").Str("job_id", msg.JobID).Msg("Subscription confirmed")

	case wire.EventUnsubscribed:
		c.mu.Lock()
		if c.trackedJobID == msg.JobID {
			c.trackedJobID = ""
		}
		c.mu.Unlock()

	case wire.EventError:
		c.reportError(fmt.Errorf("%w: %s", ErrRemoteError, msg.Message))

	default:
		logging.Debug().Str("component", "tracker").Str("event", msg.Event).Msg("Unknown event type")
	}
}

func (c *Client) handleProgress(msg *wire.JobMessage) {
	c.mu.Lock()
	tracked := c.trackedJobID
	c.mu.Unlock()

	if tracked == "" || msg.JobID != tracked {
		return
	}

	snap, err := newSnapshot(msg, time.Now())
	if err != nil {
		metrics.MalformedMessages.WithLabelValues(metrics.ChannelTracker).Inc()
		c.reportError(err)
		return
	}

	c.history.Push(snap)
	metrics.SnapshotsReceived.WithLabelValues(snap.Status).Inc()

	if snap.Terminal() {
		c.fireManifestRefresh(snap.JobID)
	}
}

// fireManifestRefresh triggers the injected refresh callback exactly once
// per job's terminal transition; repeated terminal events are absorbed.
func (c *Client) fireManifestRefresh(jobID string) {
	c.mu.Lock()
	already := c.refreshed[jobID]
	if !already {
		c.refreshed[jobID] = true
	}
	refresh := c.refresh
	c.mu.Unlock()

	if already || refresh == nil {
		return
	}

	metrics.ManifestRefreshes.Inc()
	logging.Info().Str("component", "tracker").Str("job_id", jobID).Msg("Terminal state reached, refreshing manifest")
	go refresh(jobID)
}

// handleDisconnect runs once per socket generation when its read loop
// dies. It schedules a single reconnect when tracking should continue.
func (c *Client) handleDisconnect(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		// A newer socket already exists; this generation is history.
		return
	}
	c.closeConnLocked()

	if !c.shouldReconnect || c.trackedJobID == "" || c.machine.Stopped() {
		c.machine.To(relay.StateDisconnected)
		metrics.ConnectionState.WithLabelValues(metrics.ChannelTracker).Set(float64(relay.StateDisconnected))
		return
	}

	c.attempt++
	delay := c.backoff.Delay(c.attempt)
	c.machine.To(relay.StateReconnecting)
	metrics.ConnectionState.WithLabelValues(metrics.ChannelTracker).Set(float64(relay.StateReconnecting))
	metrics.ReconnectAttempts.WithLabelValues(metrics.ChannelTracker).Inc()

	logging.Info().
		Str("component", "tracker").
		Int("attempt", c.attempt).
		Dur("delay", delay).
		Msg("Connection lost, scheduling reconnect")

	c.reconnectTimer = time.AfterFunc(delay, c.reconnect)
}

// reconnect is the timer callback. It must no-op when a manual stop won
// the race with the timer.
func (c *Client) reconnect() {
	c.mu.Lock()

	if !c.shouldReconnect || c.machine.Stopped() || c.trackedJobID == "" {
		c.mu.Unlock()
		return
	}
	jobID := c.trackedJobID
	dialTO := c.dialTO
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), dialTO)
	defer cancel()

	// Transparent reconnect: history survives.
	if err := c.StartTracking(ctx, jobID, StartOptions{PreserveState: true}); err != nil {
		logging.Warn().Str("component", "tracker").Err(err).Msg("Reconnect failed")
		c.handleDisconnect(c.currentGen())
		return
	}

	c.mu.Lock()
	c.attempt = 0
	c.mu.Unlock()
}

func (c *Client) currentGen() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// closeConnLocked tears down the socket with a best-effort close frame.
// Caller holds c.mu.
func (c *Client) closeConnLocked() {
	if c.conn == nil {
		return
	}

	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	_ = c.conn.Close()
	c.conn = nil
	c.gen++
}

func (c *Client) reportError(err error) {
	logging.Warn().Str("component", "tracker").Err(err).Msg("Non-fatal tracker error")
	if c.onError != nil {
		c.onError(err)
	}
}
