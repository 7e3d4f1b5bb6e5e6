// Package notify implements the Notification Listener (Component F): a
// long-lived Postgres LISTEN session that mirrors database-side changes
// into the gateway's in-memory snapshots and rebroadcasts them to browsers.
package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sheinberglab/fleet-gateway/pkg/logger"
	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

// channels is the fixed subscription set from spec.md §4.F, re-registered
// on every (re)connect.
var channels = []string{"status_changes", "comm_status_changes", "perf_stats_changes", "new_image"}

const reconnectDelay = 5 * time.Second

// StatusCache is the subset of pkg/statuscache.Cache the listener needs.
type StatusCache interface {
	ApplyExternal(entry models.StatusEntry) (models.StatusEntry, bool)
}

// CommCache is the subset of pkg/statuscache.CommCache the listener needs.
type CommCache interface {
	ApplyExternal(entry models.CommStatusEntry) (models.CommStatusEntry, bool)
}

// PerfCache is the subset of pkg/statuscache.PerfCache the listener needs.
type PerfCache interface {
	ApplyExternal(entry models.PerfStatsEntry) (models.PerfStatsEntry, bool)
}

// ImageFetcher hydrates a new_image reference into its row bytes.
type ImageFetcher interface {
	FetchImageRow(ctx context.Context, host, statusType string) ([]byte, error)
}

// EventPublisher fans a channel event out to every connected browser
// (implemented by pkg/broadcast.Hub).
type EventPublisher interface {
	Publish(eventType string, data interface{})
}

// Listener holds a dedicated pgx connection open for the lifetime of its
// LISTEN session, per pgx's own guidance that LISTEN needs a connection
// that is not returned to the pool between notifications.
type Listener struct {
	pool      *pgxpool.Pool
	log       logger.Logger
	status    StatusCache
	comm      CommCache
	perf      PerfCache
	images    ImageFetcher
	publisher EventPublisher
}

func New(pool *pgxpool.Pool, log logger.Logger, status StatusCache, comm CommCache, perf PerfCache, images ImageFetcher, publisher EventPublisher) *Listener {
	return &Listener{
		pool:      pool,
		log:       log,
		status:    status,
		comm:      comm,
		perf:      perf,
		images:    images,
		publisher: publisher,
	}
}

// Run holds the LISTEN session until ctx is canceled, reconnecting and
// re-registering all four channels after any connection loss. It never
// returns an error to its caller; loss is logged and retried.
func (l *Listener) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := l.listenOnce(ctx); err != nil && ctx.Err() == nil {
			l.log.Warn().Err(err).Msg("notification listener lost connection, reconnecting")
		}

		if !sleepOrDone(ctx, reconnectDelay) {
			return
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("notify: acquire connection: %w", err)
	}
	defer conn.Release()

	for _, ch := range channels {
		if _, err := conn.Exec(ctx, "LISTEN "+ch); err != nil {
			return fmt.Errorf("notify: listen %s: %w", ch, err)
		}
	}

	l.log.Info().Msg("notification listener subscribed")

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("notify: wait for notification: %w", err)
		}

		l.dispatch(ctx, notification.Channel, []byte(notification.Payload))
	}
}

func (l *Listener) dispatch(ctx context.Context, channel string, payload []byte) {
	switch channel {
	case "status_changes":
		l.handleStatus(payload)
	case "comm_status_changes":
		l.handleComm(payload)
	case "perf_stats_changes":
		l.handlePerf(payload)
	case "new_image":
		l.handleNewImage(ctx, payload)
	default:
		l.log.Warn().Str("channel", channel).Msg("notification on unregistered channel")
	}
}

func (l *Listener) handleStatus(payload []byte) {
	var entry models.StatusEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		l.log.Warn().Err(err).Msg("malformed status_changes payload")
		return
	}

	if updated, changed := l.status.ApplyExternal(entry); changed {
		l.publisher.Publish("status_changes", updated)
	}
}

func (l *Listener) handleComm(payload []byte) {
	var entry models.CommStatusEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		l.log.Warn().Err(err).Msg("malformed comm_status_changes payload")
		return
	}

	if updated, changed := l.comm.ApplyExternal(entry); changed {
		l.publisher.Publish("comm_status_changes", updated)
	}
}

func (l *Listener) handlePerf(payload []byte) {
	var entry models.PerfStatsEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		l.log.Warn().Err(err).Msg("malformed perf_stats_changes payload")
		return
	}

	if updated, changed := l.perf.ApplyExternal(entry); changed {
		l.publisher.Publish("perf_stats_changes", updated)
	}
}

// handleNewImage hydrates a {host, status_type} reference from the store
// and re-enters it as if it had arrived on status_changes, per spec.md
// §4.F. status_type is split into (source, type) on its first '/', like
// pkg/translate's general rule but without its special cases (ess/git/*,
// ess/obs_active); a name with no '/' gets source "system".
func (l *Listener) handleNewImage(ctx context.Context, payload []byte) {
	var ref struct {
		Host       string `json:"host"`
		StatusType string `json:"status_type"`
	}

	if err := json.Unmarshal(payload, &ref); err != nil {
		l.log.Warn().Err(err).Msg("malformed new_image payload")
		return
	}

	data, err := l.images.FetchImageRow(ctx, ref.Host, ref.StatusType)
	if err != nil {
		l.log.Warn().Err(err).Str("host", ref.Host).Str("status_type", ref.StatusType).Msg("failed to fetch new_image row")
		return
	}

	source, typ := splitStatusType(ref.StatusType)

	entry := models.StatusEntry{
		Host:    ref.Host,
		Source:  source,
		Type:    typ,
		Value:   base64.StdEncoding.EncodeToString(data),
		SysTime: time.Now(),
	}

	if updated, changed := l.status.ApplyExternal(entry); changed {
		l.publisher.Publish("status_changes", updated)
	}
}

func splitStatusType(statusType string) (source, typ string) {
	if idx := strings.IndexByte(statusType, '/'); idx >= 0 {
		return statusType[:idx], statusType[idx+1:]
	}

	return "system", statusType
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
