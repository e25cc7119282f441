package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/codex-k8s/orion-orchestrator/internal/validate"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Fixed-width UTC layout so timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		device_id TEXT PRIMARY KEY,
		hostname TEXT NOT NULL DEFAULT '',
		os_type TEXT NOT NULL DEFAULT '',
		os_version TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		permissions TEXT NOT NULL,
		last_heartbeat TEXT NOT NULL,
		registered_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS executions (
		execution_id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		parameters TEXT NOT NULL,
		status TEXT NOT NULL,
		result TEXT,
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		completed_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS executions_device_created ON executions (device_id, created_at)`,
}

// SQL is a Store backed by database/sql (SQLite or PostgreSQL).
type SQL struct {
	db     *sql.DB
	driver string
}

// OpenSQL opens the database and applies the schema.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQL, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported sql driver: %s", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One connection keeps ":memory:" databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	}
	s := NewSQL(db, driver)
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQL wraps an open database without applying the schema.
func NewSQL(db *sql.DB, driver string) *SQL {
	return &SQL{db: db, driver: driver}
}

func (s *SQL) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQL) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(timeLayout, value)
}

func (s *SQL) RegisterDevice(ctx context.Context, d Device) (Device, error) {
	grant, err := json.Marshal(d.Grant)
	if err != nil {
		return Device{}, fmt.Errorf("encode grant: %w", err)
	}
	query := `INSERT INTO devices (device_id, hostname, os_type, os_version, status, permissions, last_heartbeat, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			hostname = excluded.hostname,
			os_type = excluded.os_type,
			os_version = excluded.os_version,
			status = excluded.status,
			last_heartbeat = excluded.last_heartbeat`
	_, err = s.exec(ctx, query,
		d.ID, d.Hostname, d.OSType, d.OSVersion, d.Status, string(grant), formatTime(d.LastHeartbeat), formatTime(d.RegisteredAt),
	)
	if err != nil {
		return Device{}, fmt.Errorf("register device: %w", err)
	}
	return s.GetDevice(ctx, d.ID)
}

const deviceColumns = `device_id, hostname, os_type, os_version, status, permissions, last_heartbeat, registered_at`

func (s *SQL) GetDevice(ctx context.Context, id string) (Device, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+deviceColumns+` FROM devices WHERE device_id = ?`), id)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, ErrNotFound
	}
	return d, err
}

func (s *SQL) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY device_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (Device, error) {
	var (
		d                   Device
		grant               string
		heartbeat, register string
	)
	if err := row.Scan(&d.ID, &d.Hostname, &d.OSType, &d.OSVersion, &d.Status, &grant, &heartbeat, &register); err != nil {
		return Device{}, err
	}
	if err := json.Unmarshal([]byte(grant), &d.Grant); err != nil {
		return Device{}, fmt.Errorf("decode grant for %s: %w", d.ID, err)
	}
	var err error
	if d.LastHeartbeat, err = parseTime(heartbeat); err != nil {
		return Device{}, err
	}
	if d.RegisteredAt, err = parseTime(register); err != nil {
		return Device{}, err
	}
	return d, nil
}

func (s *SQL) Heartbeat(ctx context.Context, id string, at time.Time) error {
	return s.updateDevice(ctx, `UPDATE devices SET status = ?, last_heartbeat = ? WHERE device_id = ?`, DeviceOnline, formatTime(at), id)
}

func (s *SQL) SetDeviceStatus(ctx context.Context, id, status string) error {
	return s.updateDevice(ctx, `UPDATE devices SET status = ? WHERE device_id = ?`, status, id)
}

func (s *SQL) SetGrant(ctx context.Context, id string, grant validate.Grant) error {
	raw, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("encode grant: %w", err)
	}
	return s.updateDevice(ctx, `UPDATE devices SET permissions = ? WHERE device_id = ?`, string(raw), id)
}

func (s *SQL) updateDevice(ctx context.Context, query string, args ...any) error {
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) MarkStaleOffline(ctx context.Context, before time.Time) (int, error) {
	res, err := s.exec(ctx, `UPDATE devices SET status = ? WHERE status = ? AND last_heartbeat < ?`, DeviceOffline, DeviceOnline, formatTime(before))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQL) CreateExecution(ctx context.Context, e Execution) error {
	params, err := json.Marshal(e.Parameters)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	_, err = s.exec(ctx, `INSERT INTO executions (execution_id, device_id, tool_name, parameters, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DeviceID, e.ToolName, string(params), e.Status, e.Error, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}
	return nil
}

func (s *SQL) FinishExecution(ctx context.Context, id string, out Outcome) error {
	var result sql.NullString
	if out.Result != nil {
		raw, err := json.Marshal(out.Result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		result = sql.NullString{String: string(raw), Valid: true}
	}
	res, err := s.exec(ctx, `UPDATE executions SET status = ?, result = ?, error = ?, completed_at = ?
		WHERE execution_id = ? AND status = ?`,
		outcomeStatus(out), result, out.Error, formatTime(out.At), id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetExecution(ctx, id); err != nil {
		return err
	}
	return ErrExecutionFinalized
}

const executionColumns = `execution_id, device_id, tool_name, parameters, status, result, error, created_at, completed_at`

func (s *SQL) GetExecution(ctx context.Context, id string) (Execution, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+executionColumns+` FROM executions WHERE execution_id = ?`), id)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Execution{}, ErrNotFound
	}
	return e, err
}

func (s *SQL) ListExecutions(ctx context.Context, deviceID string, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + executionColumns + ` FROM executions`
	args := []any{}
	if deviceID != "" {
		query += ` WHERE device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExecution(row scanner) (Execution, error) {
	var (
		e         Execution
		params    string
		result    sql.NullString
		created   string
		completed sql.NullString
	)
	if err := row.Scan(&e.ID, &e.DeviceID, &e.ToolName, &params, &e.Status, &result, &e.Error, &created, &completed); err != nil {
		return Execution{}, err
	}
	if err := json.Unmarshal([]byte(params), &e.Parameters); err != nil {
		return Execution{}, fmt.Errorf("decode parameters for %s: %w", e.ID, err)
	}
	if result.Valid {
		if err := json.Unmarshal([]byte(result.String), &e.Result); err != nil {
			return Execution{}, fmt.Errorf("decode result for %s: %w", e.ID, err)
		}
	}
	var err error
	if e.CreatedAt, err = parseTime(created); err != nil {
		return Execution{}, err
	}
	if completed.Valid {
		at, err := parseTime(completed.String)
		if err != nil {
			return Execution{}, err
		}
		e.CompletedAt = &at
	}
	return e, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}
