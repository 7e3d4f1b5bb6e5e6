package store

import (
	"context"
	"time"

	"github.com/sheinberglab/fleet-gateway/pkg/logger"
	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

// LoggingStore wraps a Store and logs the write that RecordStatusChange
// would otherwise perform instead of issuing it, matching the older
// variant of the Homebase Link referenced in spec.md §9's Open Questions.
// Every other method, reads and the AddDevice, UpsertSubjectOptions and
// UpsertReachability writes alike, is delegated to the inner Store and
// executed, since a device registry that silently drops admin adds would
// be unusable for anything but a read-only demo.
type LoggingStore struct {
	inner Store
	log   logger.Logger
}

func NewLoggingStore(inner Store, log logger.Logger) *LoggingStore {
	return &LoggingStore{inner: inner, log: log}
}

func (s *LoggingStore) ListDevices(ctx context.Context) ([]models.Device, error) {
	return s.inner.ListDevices(ctx)
}

func (s *LoggingStore) AddDevice(ctx context.Context, address, displayName string) (models.Device, error) {
	return s.inner.AddDevice(ctx, address, displayName)
}

func (s *LoggingStore) UpsertReachability(ctx context.Context, address string, pingAvg int, pingSuccess float64, lastPingSuccess bool, serverTime time.Time) error {
	return s.inner.UpsertReachability(ctx, address, pingAvg, pingSuccess, lastPingSuccess, serverTime)
}

func (s *LoggingStore) RecordStatusChange(_ context.Context, entry models.StatusEntry) error {
	s.log.Debug().
		Str("host", entry.Host).
		Str("source", entry.Source).
		Str("type", entry.Type).
		Str("value", entry.Value).
		Msg("simulated store upsert")

	return nil
}

func (s *LoggingStore) FetchImageRow(ctx context.Context, host, statusType string) ([]byte, error) {
	return s.inner.FetchImageRow(ctx, host, statusType)
}

func (s *LoggingStore) UpsertSubjectOptions(ctx context.Context, address, csvOptions string) error {
	return s.inner.UpsertSubjectOptions(ctx, address, csvOptions)
}

func (s *LoggingStore) Query(ctx context.Context, sql string) ([]string, [][]interface{}, error) {
	return s.inner.Query(ctx, sql)
}

// NopStore satisfies Store without any backing database, for local
// development and tests where no Postgres instance is available.
type NopStore struct{}

func (NopStore) ListDevices(context.Context) ([]models.Device, error) { return nil, nil }

func (NopStore) AddDevice(_ context.Context, address, displayName string) (models.Device, error) {
	return models.Device{Address: address, DisplayName: displayName, CreatedAt: time.Now()}, nil
}

func (NopStore) UpsertReachability(context.Context, string, int, float64, bool, time.Time) error {
	return nil
}

func (NopStore) RecordStatusChange(context.Context, models.StatusEntry) error { return nil }

func (NopStore) FetchImageRow(context.Context, string, string) ([]byte, error) { return nil, nil }

func (NopStore) UpsertSubjectOptions(context.Context, string, string) error { return nil }

func (NopStore) Query(context.Context, string) ([]string, [][]interface{}, error) { return nil, nil, nil }
