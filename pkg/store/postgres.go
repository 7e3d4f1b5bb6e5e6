package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sheinberglab/fleet-gateway/pkg/models"
)

// PostgresStore is the authoritative Store implementation: every write
// actually reaches the database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, display_name, hidden, created_at,
		       ping_avg, ping_success, last_ping, last_server_obs
		FROM devices`)
	if err != nil {
		return nil, fmt.Errorf("store: list devices: %w", err)
	}
	defer rows.Close()

	var out []models.Device

	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.Address, &d.DisplayName, &d.Hidden, &d.CreatedAt,
			&d.PingAvg, &d.PingSuccess, &d.LastPing, &d.LastServerObs); err != nil {
			return nil, fmt.Errorf("store: scan device: %w", err)
		}

		out = append(out, d)
	}

	return out, rows.Err()
}

func (s *PostgresStore) AddDevice(ctx context.Context, address, displayName string) (models.Device, error) {
	device := models.Device{Address: address, DisplayName: displayName, CreatedAt: time.Now()}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO devices (address, display_name, hidden, created_at)
		VALUES ($1, $2, false, $3)
		ON CONFLICT (address) DO UPDATE SET display_name = EXCLUDED.display_name`,
		device.Address, device.DisplayName, device.CreatedAt)
	if err != nil {
		return models.Device{}, fmt.Errorf("store: add device: %w", err)
	}

	return device, nil
}

func (s *PostgresStore) UpsertReachability(ctx context.Context, address string, pingAvg int, pingSuccess float64, lastPingSuccess bool, serverTime time.Time) error {
	if lastPingSuccess {
		_, err := s.pool.Exec(ctx, `
			UPDATE devices SET ping_avg = $2, ping_success = $3, last_server_obs = $4, last_ping = $4
			WHERE address = $1`, address, pingAvg, pingSuccess, serverTime)
		return wrapErr("upsert reachability", err)
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE devices SET ping_avg = $2, ping_success = $3, last_server_obs = $4
		WHERE address = $1`, address, pingAvg, pingSuccess, serverTime)
	return wrapErr("upsert reachability", err)
}

func (s *PostgresStore) RecordStatusChange(ctx context.Context, entry models.StatusEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO server_status (host, source, type, value, sys_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (host, source, type) DO UPDATE
		SET value = EXCLUDED.value, sys_time = EXCLUDED.sys_time`,
		entry.Host, entry.Source, entry.Type, entry.Value, entry.SysTime)
	return wrapErr("record status change", err)
}

func (s *PostgresStore) FetchImageRow(ctx context.Context, host, statusType string) ([]byte, error) {
	var payload []byte

	err := s.pool.QueryRow(ctx, `
		SELECT payload FROM server_status WHERE host = $1 AND type = $2`,
		host, statusType).Scan(&payload)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}

		return nil, wrapErr("fetch image row", err)
	}

	return payload, nil
}

func (s *PostgresStore) UpsertSubjectOptions(ctx context.Context, address, csvOptions string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE devices SET subject_options = $2 WHERE address = $1`, address, csvOptions)
	return wrapErr("upsert subject options", err)
}

func (s *PostgresStore) Query(ctx context.Context, sql string) ([]string, [][]interface{}, error) {
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, nil, wrapErr("query", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = string(f.Name)
	}

	var out [][]interface{}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, wrapErr("scan row", err)
		}

		out = append(out, values)
	}

	return columns, out, rows.Err()
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("store: %s: %w", op, err)
}
