// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

// voicelinkd keeps the bridge channel to the local companion process
// probed and healthy and exposes the Prometheus metrics endpoint. The
// tracker client is call-driven and constructed by the embedding
// application; the daemon exists to supervise the standing concerns.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/slidevoice/voicelink/internal/bridge"
	"github.com/slidevoice/voicelink/internal/config"
	"github.com/slidevoice/voicelink/internal/daemon"
	"github.com/slidevoice/voicelink/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("bridge_endpoint", cfg.Bridge.Endpoint).
		Bool("metrics", cfg.Metrics.Enabled).
		Msg("Starting voicelinkd")

	bridgeClient := bridge.New(bridge.Options{
		Endpoint:       cfg.Bridge.Endpoint,
		SharedToken:    cfg.Bridge.SharedToken,
		RequestTimeout: cfg.Bridge.RequestTimeout,
		ReconnectDelay: cfg.Bridge.ReconnectDelay,
		DialTimeout:    cfg.Bridge.DialTimeout,
		// The daemon runs next to the companion process; embedding
		// applications inject a real host probe instead.
		Probe: bridge.HostProbeFunc(func() bool { return true }),
	})

	sup := daemon.NewSupervisor("voicelinkd")
	sup.Add(daemon.NewBridgeProbeService(bridgeClient, cfg.Bridge.ProbeInterval))
	if cfg.Metrics.Enabled {
		sup.Add(daemon.NewMetricsService(cfg.Metrics.Addr))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := sup.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for services to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Shutdown error")
		}
	}

	logging.Info().Msg("voicelinkd stopped")
}
