package store

import (
	"context"
	"time"

	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

// Store is the gateway's view of the relational store. Schema, triggers,
// and stored procedures are out of scope per spec.md §1; only this
// interface is consumed.
//
// The write-path authority (log-only vs. authoritative) is pluggable per
// the resolution of Open Question 2 in DESIGN.md: RecordStatusChange has
// two shipped implementations, LoggingStore (log-only) and PostgresStore
// (authoritative upsert).
type Store interface {
	// ListDevices returns the known device registry rows, used to seed the
	// registry at startup.
	ListDevices(ctx context.Context) ([]models.Device, error)

	// AddDevice inserts a new device registry row (Browser Session
	// Handler's AddDevice intent).
	AddDevice(ctx context.Context, address, displayName string) (models.Device, error)

	// UpsertReachability persists a reachability aggregate computed by the
	// Reachability Prober.
	UpsertReachability(ctx context.Context, address string, pingAvg int, pingSuccess float64, lastPingSuccess bool, serverTime time.Time) error

	// RecordStatusChange is the simulated (or authoritative) store write
	// triggered by every accepted Status Cache update.
	RecordStatusChange(ctx context.Context, entry models.StatusEntry) error

	// FetchImageRow retrieves the row referenced by a new_image notification,
	// which carries only {host, status_type} and must be hydrated from the
	// store before it can be treated as a status_changes payload.
	FetchImageRow(ctx context.Context, host, statusType string) ([]byte, error)

	// UpsertSubjectOptions persists the computed animalOptions list for a
	// device (Browser Session Handler's Addsubject intent).
	UpsertSubjectOptions(ctx context.Context, address, csvOptions string) error

	// Query executes a validated read-only SQL statement and returns column
	// names plus row values as driver-native Go types.
	Query(ctx context.Context, sql string) (columns []string, rows [][]interface{}, err error)
}
