/*
 * Copyright 2026 The Fleet Gateway Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sheinberglab/fleet-gateway/pkg/broadcast"
	"github.com/sheinberglab/fleet-gateway/pkg/browserapi"
	"github.com/sheinberglab/fleet-gateway/pkg/config"
	"github.com/sheinberglab/fleet-gateway/pkg/homebase"
	"github.com/sheinberglab/fleet-gateway/pkg/logger"
	"github.com/sheinberglab/fleet-gateway/pkg/models"
	"github.com/sheinberglab/fleet-gateway/pkg/notify"
	"github.com/sheinberglab/fleet-gateway/pkg/reachability"
	"github.com/sheinberglab/fleet-gateway/pkg/registry"
	"github.com/sheinberglab/fleet-gateway/pkg/statuscache"
	"github.com/sheinberglab/fleet-gateway/pkg/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/fleet-gateway/gateway.json", "Path to gateway config file")
	storeMode := flag.String("store", "postgres", "Store backend: postgres, log, or nop")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	cfg, err := config.Load(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	gatewayLogger, err := logger.NewComponentLogger(ctx, "gateway", logger.Config{
		Level:  cfg.Logging.Level,
		Debug:  cfg.Logging.Debug,
		Output: "stdout",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	backend, err := buildStore(ctx, *storeMode, cfg, gatewayLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	statusCache := statuscache.New()
	commCache := statuscache.NewCommCache()
	perfCache := statuscache.NewPerfCache()

	hub := broadcast.NewHub(statusCache, commCache, perfCache, gatewayLogger)
	go hub.Run(ctx)

	reg := registry.New(
		linkFactory(cfg, backend, statusCache, hub, gatewayLogger),
		cfg.HomebaseAllowedIPs,
	)

	devices, err := backend.ListDevices(ctx)
	if err != nil {
		gatewayLogger.Warn().Err(err).Msg("failed to seed registry from store")
	} else {
		reg.Load(devices)
	}

	for _, d := range devices {
		if _, err := reg.Ensure(ctx, d.Address); err != nil {
			gatewayLogger.Warn().Err(err).Str("address", d.Address).Msg("failed to start link at startup")
		}
	}

	prober := reachability.New(
		reg,
		cfg.ProbeWindow,
		time.Duration(cfg.ProbeIntervalMs)*time.Millisecond,
		time.Duration(cfg.ProbeTimeoutS*float64(time.Second)),
		gatewayLogger,
		storeReachabilitySink{backend},
		reachability.RegistrySink{Registry: reg},
	)
	go prober.Run(ctx)

	if cfg.Database.Host != "" {
		pool, err := store.NewPool(ctx, cfg.Database, gatewayLogger)
		if err != nil {
			return fmt.Errorf("failed to open notification listener pool: %w", err)
		}
		defer pool.Close()

		listener := notify.New(pool, gatewayLogger, statusCache, commCache, perfCache, backend, hub)
		go listener.Run(ctx)
	}

	if cfg.KVNatsURL != "" {
		go func() {
			err := config.WatchKV(ctx, cfg.KVNatsURL, cfg.KVNatsBucket, gatewayLogger, func(override config.Overrides) {
				config.ApplyOverrides(&cfg, override)
				reg.SetAllowlist(cfg.HomebaseAllowedIPs)
				reg.SetExtraSubscribeKeys(cfg.ExtraSubscribeKeys)

				gatewayLogger.Info().
					Strs("allowed_ips", cfg.HomebaseAllowedIPs).
					Strs("extra_subscribe_keys", cfg.ExtraSubscribeKeys).
					Msg("applied config override")
			})
			if err != nil && ctx.Err() == nil {
				gatewayLogger.Warn().Err(err).Msg("kv watch stopped")
			}
		}()
	}

	handler := browserapi.New(
		browserapi.RegistryAdapter{Reg: reg},
		backend,
		statusCache,
		store.ValidateReadOnly,
		gatewayLogger,
	)

	addr := fmt.Sprintf(":%d", cfg.BrowserPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           newMux(hub, handler, gatewayLogger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		gatewayLogger.Info().Str("addr", addr).Msg("browser session server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("browser session server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	return server.Shutdown(shutdownCtx)
}

func buildStore(ctx context.Context, mode string, cfg models.Config, log logger.Logger) (store.Store, error) {
	switch mode {
	case "nop":
		return store.NopStore{}, nil
	case "log":
		pool, err := store.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}

		return store.NewLoggingStore(store.NewPostgresStore(pool), log), nil
	default:
		pool, err := store.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}

		return store.NewPostgresStore(pool), nil
	}
}

// linkFactory builds a registry.Factory closing over the gateway's shared
// collaborators, matching the teacher's pattern of a closure-constructed
// per-connection object passed down into a registry/pool.
func linkFactory(cfg models.Config, backend store.Store, cache *statuscache.Cache, hub *broadcast.Hub, log logger.Logger) registry.Factory {
	linkCfg := homebase.Config{
		HeartbeatInterval:     time.Duration(cfg.HeartbeatIntervalMs) * time.Millisecond,
		HeartbeatTimeout:      time.Duration(cfg.HeartbeatTimeoutMs) * time.Millisecond,
		StaleTimeout:          time.Duration(cfg.StaleMs) * time.Millisecond,
		ConnectTimeout:        time.Duration(cfg.ConnectTimeoutMs) * time.Millisecond,
		RequestDefaultTimeout: time.Duration(cfg.RequestDefaultTimeoutMs) * time.Millisecond,
		MaxInFlight:           int64(cfg.MaxInFlight),
		MaxQueue:              cfg.MaxQueue,
		SubscribeEvery:        cfg.SubscribeEveryDefault,
		FastRetryWindow:       time.Duration(cfg.FastRetryWindowMs) * time.Millisecond,
		FastRetryBase:         time.Duration(cfg.FastRetryBaseMs) * time.Millisecond,
		FastRetryJitter:       time.Duration(cfg.FastRetryJitterMs) * time.Millisecond,
		SlowBaseBackoff:       time.Duration(cfg.SlowBaseBackoffMs) * time.Millisecond,
		SlowMaxBackoff:        time.Duration(cfg.SlowMaxBackoffMs) * time.Millisecond,
		SlowJitter:            time.Duration(cfg.SlowJitterMs) * time.Millisecond,
	}

	return func(address string) registry.Link {
		return homebase.New(address, linkCfg, log, cache, hub, backend)
	}
}

type storeReachabilitySink struct {
	backend store.Store
}

func (s storeReachabilitySink) UpsertReachability(ctx context.Context, address string, pingAvg int, pingSuccess float64, lastPingSuccess bool, serverTime time.Time) error {
	return s.backend.UpsertReachability(ctx, address, pingAvg, pingSuccess, lastPingSuccess, serverTime)
}

func newMux(hub *broadcast.Hub, handler *browserapi.Handler, log logger.Logger) http.Handler {
	mux := http.NewServeMux()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("websocket upgrade failed")
			return
		}

		hub.Serve(r.Context(), conn, handler)
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok, %d clients\n", hub.ClientCount())
	})

	return mux
}
