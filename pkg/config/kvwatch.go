package config

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sheinberglab/fleet-gateway/pkg/logger"
	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

// Overrides is the subset of models.Config a KV watcher is allowed to
// hot-reload: the allow-list and the subscription catalog overrides. The
// rest of the config tree requires a process restart.
type Overrides struct {
	HomebaseAllowedIPs []string `json:"homebase_allowed_ips"`
	ExtraSubscribeKeys []string `json:"extra_subscribe_keys,omitempty"`
}

// WatchKV connects to url and watches bucket/gateway-overrides, invoking
// apply with each decoded update. It blocks until ctx is canceled or the
// watch loop errors unrecoverably, and is meant to be run in its own
// goroutine by the caller (cmd/gateway).
func WatchKV(ctx context.Context, url, bucket string, log logger.Logger, apply func(Overrides)) error {
	nc, err := nats.Connect(url)
	if err != nil {
		return fmt.Errorf("config: nats connect: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("config: jetstream: %w", err)
	}

	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		return fmt.Errorf("config: open kv bucket %q: %w", bucket, err)
	}

	watcher, err := kv.Watch(ctx, "gateway-overrides")
	if err != nil {
		return fmt.Errorf("config: watch kv: %w", err)
	}
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-watcher.Updates():
			if !ok {
				return nil
			}

			if entry == nil {
				continue // initial state marker from jetstream's Watch
			}

			var ov Overrides
			if err := json.Unmarshal(entry.Value(), &ov); err != nil {
				if log != nil {
					log.Warn().Err(err).Msg("config: malformed kv override payload, ignoring")
				}

				continue
			}

			apply(ov)
		}
	}
}

// ApplyOverrides merges ov into cfg in place.
func ApplyOverrides(cfg *models.Config, ov Overrides) {
	if ov.HomebaseAllowedIPs != nil {
		cfg.HomebaseAllowedIPs = ov.HomebaseAllowedIPs
	}

	if ov.ExtraSubscribeKeys != nil {
		cfg.ExtraSubscribeKeys = ov.ExtraSubscribeKeys
	}
}
