package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deribit-gateway/src/helpers"
	"deribit-gateway/src/logger"
	"deribit-gateway/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	// Schema name follows the executable so parallel deployments stay apart
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	return &PostgresDB{
		Config: cfg,
		Schema: name,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return &helpers.DatabaseError{GatewayError: helpers.GatewayError{
			Message: "opening postgres connection failed", Cause: err}}
	}

	if err := db.Ping(); err != nil {
		return &helpers.DatabaseError{GatewayError: helpers.GatewayError{
			Message: "postgres database unreachable", Cause: err}}
	}

	d.DB = db

	// Create Schema
	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	if err := d.createTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) createTables() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."invocations" (
			id BIGSERIAL PRIMARY KEY,
			tool TEXT NOT NULL,
			args_json TEXT,
			ok BOOLEAN NOT NULL,
			error_code INTEGER,
			duration_ms BIGINT,
			output_bytes INTEGER,
			timestamp BIGINT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`, d.Schema)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create invocations: %w", err)
	}

	query = fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_invocations_ts ON "%s"."invocations" (timestamp)`, d.Schema)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to index invocations: %w", err)
	}

	query = fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."snapshots" (
			id BIGSERIAL PRIMARY KEY,
			tool TEXT NOT NULL,
			ccy TEXT,
			payload TEXT NOT NULL,
			timestamp BIGINT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`, d.Schema)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create snapshots: %w", err)
	}

	query = fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON "%s"."snapshots" (timestamp)`, d.Schema)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to index snapshots: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveInvocation(inv models.MInvocation) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s"."invocations" (tool, args_json, ok, error_code, duration_ms, output_bytes, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.Schema)
	_, err := d.DB.Exec(query, inv.Tool, inv.ArgsJSON, inv.OK, inv.ErrorCode, inv.DurationMs, inv.OutputByte, inv.Timestamp)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveSnapshot(snap models.MSnapshot) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s"."snapshots" (tool, ccy, payload, timestamp)
		VALUES ($1, $2, $3, $4)
	`, d.Schema)
	_, err := d.DB.Exec(query, snap.Tool, snap.Ccy, snap.Payload, snap.Timestamp)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) RecentInvocations(limit int) ([]models.MInvocation, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT tool, args_json, ok, error_code, duration_ms, output_bytes, timestamp, created_at
		FROM "%s"."invocations"
		ORDER BY timestamp DESC
		LIMIT $1
	`, d.Schema)

	rows, err := d.DB.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MInvocation
	for rows.Next() {
		var inv models.MInvocation
		if err := rows.Scan(&inv.Tool, &inv.ArgsJSON, &inv.OK, &inv.ErrorCode, &inv.DurationMs, &inv.OutputByte, &inv.Timestamp, &inv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) CleanupOldData() error {
	retentionDays := d.Config.Storage.RetentionDays
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).UnixMilli()

	d.Logger.Info("Cleaning up data older than %d days (timestamp < %d)...", retentionDays, cutoff)

	query := fmt.Sprintf(`DELETE FROM "%s"."invocations" WHERE timestamp < $1`, d.Schema)
	if _, err := d.DB.Exec(query, cutoff); err != nil {
		d.Logger.Error("Cleanup invocations error: %v", err)
	}

	query = fmt.Sprintf(`DELETE FROM "%s"."snapshots" WHERE timestamp < $1`, d.Schema)
	if _, err := d.DB.Exec(query, cutoff); err != nil {
		d.Logger.Error("Cleanup snapshots error: %v", err)
	}

	d.Logger.Info("Cleanup completed")
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
