// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slidevoice/voicelink/internal/logging"
)

// BridgeProber is the subset of the bridge client the keepalive service
// drives.
type BridgeProber interface {
	DetectAndInitialize(ctx context.Context) bool
	GetAvailability() bool
	Close()
}

// BridgeProbeService re-probes companion availability on an interval
// whenever the channel is down. It adapts the bridge's call-driven
// lifecycle to suture's Serve pattern: probe, sleep, repeat until the
// context is canceled, then close the client.
type BridgeProbeService struct {
	client   BridgeProber
	interval time.Duration
}

// NewBridgeProbeService wraps a bridge client for supervision.
func NewBridgeProbeService(client BridgeProber, interval time.Duration) *BridgeProbeService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &BridgeProbeService{client: client, interval: interval}
}

// Serve implements suture.Service.
func (s *BridgeProbeService) Serve(ctx context.Context) error {
	s.probe(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.client.Close()
			return ctx.Err()
		case <-ticker.C:
			s.probe(ctx)
		}
	}
}

func (s *BridgeProbeService) probe(ctx context.Context) {
	if s.client.GetAvailability() {
		return
	}
	if s.client.DetectAndInitialize(ctx) {
		logging.Info().Str("service", "bridge-probe").Msg("Companion process available")
	}
}

func (s *BridgeProbeService) String() string { return "bridge-probe" }

// MetricsService serves the Prometheus endpoint. It shuts the listener
// down gracefully when the supervisor cancels its context.
type MetricsService struct {
	addr string
}

// NewMetricsService builds the /metrics HTTP service.
func NewMetricsService(addr string) *MetricsService {
	return &MetricsService{addr: addr}
}

// Serve implements suture.Service.
func (s *MetricsService) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logging.Info().Str("service", "metrics").Str("addr", s.addr).Msg("Metrics endpoint listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *MetricsService) String() string { return "metrics" }
