// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package bridge

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
	"github.com/slidevoice/voicelink/internal/secure"
	"github.com/slidevoice/voicelink/internal/wire"
)

var (
	// ErrNotConnected is returned when an operation is attempted without
	// an established secure channel.
	ErrNotConnected = errors.New("bridge channel not available")

	// ErrRemoteRejection wraps a well-formed response whose success flag
	// is false; the peer's error message is attached.
	ErrRemoteRejection = errors.New("bridge peer rejected request")

	// ErrStopped rejects in-flight and new requests after a deliberate
	// Close.
	ErrStopped = errors.New("bridge client stopped")
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 75 * time.Second
)

// HostProbe reports whether the add-in currently runs inside the host
// application the companion process attaches to. The bridge consults it
// before connecting and before any scheduled reconnect; outside the host
// there is nothing to connect to.
type HostProbe interface {
	HostPresent() bool
}

// HostProbeFunc adapts a plain function to HostProbe.
type HostProbeFunc func() bool

func (f HostProbeFunc) HostPresent() bool { return f() }

// Options carries the bridge client's collaborators and tuning.
type Options struct {
	// Endpoint is the companion process's local WebSocket address.
	Endpoint string

	// SharedToken, when non-empty, selects the token-derived session key
	// scheme instead of the asymmetric handshake. The scheme is fixed at
	// construction and never mixed within one connection.
	SharedToken string

	// Probe gates connecting on host presence. Required.
	Probe HostProbe

	// RequestTimeout bounds each RPC round trip. Default 15s.
	RequestTimeout time.Duration

	// ReconnectDelay is the fixed delay before the single reconnect
	// attempt after an unexpected close. Default 2s.
	ReconnectDelay time.Duration

	// DialTimeout bounds the WebSocket handshake. Default 10s.
	DialTimeout time.Duration
}

// Client is the encrypted request/response channel to the local companion
// process. All traffic after a successful key exchange travels sealed in
// SecureEnvelopes; a connection whose handshake fails is torn down and the
// channel reported unavailable, never used in plaintext.
//
// One Client owns at most one socket, one correlation table, and one
// session cipher at a time, all scoped to the current socket generation.
type Client struct {
	endpoint    string
	sharedToken string
	probe       HostProbe
	requestTO   time.Duration
	reconnDelay time.Duration
	dialTO      time.Duration

	table   *relay.Table
	machine *relay.Machine

	mu             sync.Mutex
	conn           *websocket.Conn
	cipher         *secure.SessionCipher
	gen            uint64
	available      bool
	reconnectTimer *time.Timer

	writeMu sync.Mutex
}

// New constructs a bridge client. No I/O happens until
// DetectAndInitialize.
func New(opts Options) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.Probe == nil {
		opts.Probe = HostProbeFunc(func() bool { return true })
	}

	return &Client{
		endpoint:    opts.Endpoint,
		sharedToken: opts.SharedToken,
		probe:       opts.Probe,
		requestTO:   opts.RequestTimeout,
		reconnDelay: opts.ReconnectDelay,
		dialTO:      opts.DialTimeout,
		table:       relay.NewTable(),
		machine:     relay.NewMachine(),
	}
}

// DetectAndInitialize probes for the companion process end to end: host
// presence check, socket dial, key exchange, then a testConnection round
// trip. It returns the final availability and records it for
// GetAvailability. Any live socket is torn down first; failure leaves the
// channel unavailable until the next call.
func (c *Client) DetectAndInitialize(ctx context.Context) bool {
	if c.machine.Stopped() {
		return false
	}

	if !c.probe.HostPresent() {
		logging.Debug().Str("component", "bridge").Msg("Host not present, bridge unavailable")
		c.teardown(relay.StateDisconnected)
		return false
	}

	if err := c.connect(ctx); err != nil {
		logging.Warn().Str("component", "bridge").Err(err).Msg("Bridge initialization failed")
		c.teardown(relay.StateDisconnected)
		return false
	}

	ok, err := c.TestConnection(ctx)
	if err != nil || !ok {
		logging.Warn().Str("component", "bridge").Err(err).Msg("Bridge liveness probe failed")
		c.teardown(relay.StateDisconnected)
		return false
	}

	c.mu.Lock()
	c.available = true
	c.mu.Unlock()
	logging.Info().Str("component", "bridge").Msg("Bridge channel established")
	return true
}

// GetAvailability is a pure read of the last known availability. It never
// triggers I/O.
func (c *Client) GetAvailability() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

// Status returns the connection state.
func (c *Client) Status() relay.ConnState {
	return c.machine.State()
}

// Close permanently shuts the client down: the socket is closed, every
// pending request is rejected with ErrStopped, and no reconnect will ever
// be scheduled. Idempotent.
func (c *Client) Close() {
	c.machine.To(relay.StateStopped)
	metrics.ConnectionState.WithLabelValues(metrics.ChannelBridge).Set(float64(relay.StateStopped))

	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.closeConnLocked()
	c.available = false
	c.mu.Unlock()

	c.table.Reset(ErrStopped)
	logging.Info().Str("component", "bridge").Msg("Bridge client closed")
}

// connect dials and completes the key exchange. On return with nil error
// the channel is Ready and carries a session cipher.
func (c *Client) connect(ctx context.Context) error {
	c.teardown(relay.StateConnecting)
	metrics.ConnectionState.WithLabelValues(metrics.ChannelBridge).Set(float64(relay.StateConnecting))

	dialer := websocket.Dialer{HandshakeTimeout: c.dialTO}
	conn, resp, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("bridge dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("bridge dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.mu.Lock()
	c.conn = conn
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.readLoop(conn, gen)
	go c.pingLoop(conn, gen)

	c.machine.To(relay.StateHandshaking)
	metrics.ConnectionState.WithLabelValues(metrics.ChannelBridge).Set(float64(relay.StateHandshaking))

	cipher, err := c.handshake(ctx)
	if err != nil {
		metrics.Handshakes.WithLabelValues("failure").Inc()
		return err
	}
	metrics.Handshakes.WithLabelValues("success").Inc()

	c.mu.Lock()
	if c.gen != gen || c.conn == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: socket lost during handshake", secure.ErrHandshakeFailed)
	}
	c.cipher = cipher
	c.mu.Unlock()

	c.machine.To(relay.StateReady)
	metrics.ConnectionState.WithLabelValues(metrics.ChannelBridge).Set(float64(relay.StateReady))
	return nil
}

// handshake derives this connection's session cipher, using whichever key
// scheme the client was constructed with.
func (c *Client) handshake(ctx context.Context) (*secure.SessionCipher, error) {
	if c.sharedToken != "" {
		cipher, err := secure.NewTokenSessionCipher(c.sharedToken)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", secure.ErrHandshakeFailed, err.Error())
		}
		return cipher, nil
	}

	neg, err := secure.NewNegotiator()
	if err != nil {
		return nil, err
	}
	pub, err := neg.PublicKey()
	if err != nil {
		return nil, err
	}

	raw, err := c.call(ctx, wire.MethodNegotiateSession, wire.NegotiateParams{PublicKey: pub})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", secure.ErrHandshakeFailed, err.Error())
	}

	var result wire.HandshakeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: handshake result: %s", secure.ErrHandshakeFailed, err.Error())
	}
	return neg.Establish(result)
}

// call performs one correlated request/response round trip. The correlation
// entry is registered before the write so a fast response can never race
// past its own pending slot. With a session cipher present the request is
// sealed; without one (handshake only) it goes out in plaintext.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	cipher := c.cipher
	c.mu.Unlock()

	if conn == nil {
		return nil, ErrNotConnected
	}

	id := uuid.NewString()
	ch, err := c.table.Add(id, c.requestTO)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := c.write(conn, cipher, wire.Request{
		ID:         id,
		Method:     method,
		Parameters: params,
		Timestamp:  start.UnixMilli(),
	}); err != nil {
		c.table.Reject(id, err)
		<-ch
		metrics.BridgeRequests.WithLabelValues(method, "transport_error").Inc()
		return nil, fmt.Errorf("bridge write failed: %w", err)
	}

	var res relay.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		c.table.Reject(id, ctx.Err())
		res = <-ch
	}

	metrics.BridgeRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	metrics.BridgeRequests.WithLabelValues(method, outcomeLabel(res.Err)).Inc()

	if res.Err != nil {
		return nil, res.Err
	}
	return res.Payload, nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRemoteRejection):
		return "remote_error"
	case errors.Is(err, relay.ErrRequestTimeout):
		return "timeout"
	default:
		return "transport_error"
	}
}

// write serializes and ships one request, sealing it when a cipher is
// present. writeMu serializes concurrent writers on the shared socket.
func (c *Client) write(conn *websocket.Conn, cipher *secure.SessionCipher, req wire.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	if cipher != nil {
		payload, iv, err := cipher.Seal(data)
		if err != nil {
			return err
		}
		data, err = json.Marshal(wire.SecureEnvelope{ID: req.ID, EncryptedPayload: payload, IV: iv})
		if err != nil {
			return err
		}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop is the single demultiplexing receiver for one socket
// generation: every inbound message settles through the correlation table
// by id. It exits on the first read error and hands off to handleClose.
func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info().Str("component", "bridge").Msg("Connection closed by peer")
			} else {
				logging.Warn().Str("component", "bridge").Err(err).Msg("Read error")
			}
			c.handleClose(gen)
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

// handleMessage unwraps one inbound frame into a logical Response and
// settles the matching pending request. Late or stale responses are
// dropped silently; malformed ones are counted and dropped.
func (c *Client) handleMessage(data []byte) {
	var env wire.SecureEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Sealed() {
		c.mu.Lock()
		cipher := c.cipher
		c.mu.Unlock()
		if cipher == nil {
			metrics.MalformedMessages.WithLabelValues(metrics.ChannelBridge).Inc()
			logging.Warn().Str("component", "bridge").Msg("Sealed response before handshake completed")
			return
		}
		plain, err := cipher.Open(env.EncryptedPayload, env.IV)
		if err != nil {
			metrics.MalformedMessages.WithLabelValues(metrics.ChannelBridge).Inc()
			c.table.Reject(env.ID, fmt.Errorf("%w: %s", wire.ErrMalformedPayload, err.Error()))
			return
		}
		data = plain
	}

	var resp wire.Response
	if err := json.Unmarshal(data, &resp); err != nil || resp.ID == "" {
		metrics.MalformedMessages.WithLabelValues(metrics.ChannelBridge).Inc()
		logging.Warn().Str("component", "bridge").Msg("Unparseable bridge message dropped")
		return
	}

	if !resp.Success {
		errMsg := resp.Error
		if errMsg == "" {
			errMsg = "no error detail provided"
		}
		c.table.Reject(resp.ID, fmt.Errorf("%w: %s", ErrRemoteRejection, errMsg))
		return
	}

	if !c.table.Resolve(resp.ID, resp.Result) {
		logging.Debug().Str("component", "bridge").Str("request_id", resp.ID).Msg("Late response dropped")
	}
}

// handleClose runs once per socket generation when its read loop dies. It
// clears everything generation-scoped and schedules the single fixed-delay
// reconnect, gated on the host probe.
func (c *Client) handleClose(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.closeConnLocked()
	c.available = false
	stopped := c.machine.Stopped()
	c.mu.Unlock()

	c.table.Reset(relay.ErrConnectionClosed)

	if stopped {
		return
	}

	c.machine.To(relay.StateDisconnected)
	metrics.ConnectionState.WithLabelValues(metrics.ChannelBridge).Set(float64(relay.StateDisconnected))

	if !c.probe.HostPresent() {
		logging.Info().Str("component", "bridge").Msg("Host gone, staying disconnected")
		return
	}

	metrics.ReconnectAttempts.WithLabelValues(metrics.ChannelBridge).Inc()
	logging.Info().
		Str("component", "bridge").
		Dur("delay", c.reconnDelay).
		Msg("Connection lost, scheduling reconnect")

	c.mu.Lock()
	c.reconnectTimer = time.AfterFunc(c.reconnDelay, c.reconnect)
	c.mu.Unlock()
}

// reconnect is the timer callback for the single scheduled attempt. A
// manual Close that won the race makes it a no-op; a failed attempt leaves
// the channel disconnected until the next explicit DetectAndInitialize.
func (c *Client) reconnect() {
	if c.machine.Stopped() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.dialTO+c.requestTO)
	defer cancel()

	if !c.DetectAndInitialize(ctx) {
		logging.Warn().Str("component", "bridge").Msg("Reconnect attempt failed")
	}
}

// teardown closes any live socket and resets generation-scoped state,
// leaving the machine in the given state.
func (c *Client) teardown(state relay.ConnState) {
	c.mu.Lock()
	c.closeConnLocked()
	c.available = false
	c.mu.Unlock()

	c.table.Reset(relay.ErrConnectionClosed)
	c.machine.To(state)
	metrics.ConnectionState.WithLabelValues(metrics.ChannelBridge).Set(float64(state))
}

// closeConnLocked drops the socket and the session cipher together: the
// key never outlives its connection. Caller holds c.mu.
func (c *Client) closeConnLocked() {
	c.cipher = nil
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
