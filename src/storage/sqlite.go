package storage

import (
	"database/sql"
	"fmt"
	"time"

	"deribit-gateway/src/helpers"
	"deribit-gateway/src/logger"
	"deribit-gateway/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type AsyncSQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAsyncSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*AsyncSQLiteDB, error) {
	return &AsyncSQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return &helpers.DatabaseError{GatewayError: helpers.GatewayError{
			Message: "opening sqlite database failed", Cause: err}}
	}

	if err := db.Ping(); err != nil {
		return &helpers.DatabaseError{GatewayError: helpers.GatewayError{
			Message: "sqlite database unreachable", Cause: err}}
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) createTables() error {
	// SQLite types: INTEGER for int64, REAL for float64, TEXT for string
	query := `
		CREATE TABLE IF NOT EXISTS invocations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tool TEXT NOT NULL,
			args_json TEXT,
			ok INTEGER NOT NULL,
			error_code INTEGER,
			duration_ms INTEGER,
			output_bytes INTEGER,
			timestamp INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create invocations: %w", err)
	}
	if _, err := d.DB.Exec("CREATE INDEX IF NOT EXISTS idx_invocations_ts ON invocations (timestamp)"); err != nil {
		return fmt.Errorf("failed to index invocations: %w", err)
	}

	query = `
		CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tool TEXT NOT NULL,
			ccy TEXT,
			payload TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create snapshots: %w", err)
	}
	if _, err := d.DB.Exec("CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots (timestamp)"); err != nil {
		return fmt.Errorf("failed to index snapshots: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) SaveInvocation(inv models.MInvocation) error {
	_, err := d.DB.Exec(`
		INSERT INTO invocations (tool, args_json, ok, error_code, duration_ms, output_bytes, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, inv.Tool, inv.ArgsJSON, boolToInt(inv.OK), inv.ErrorCode, inv.DurationMs, inv.OutputByte, inv.Timestamp)
	return err
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) SaveSnapshot(snap models.MSnapshot) error {
	_, err := d.DB.Exec(`
		INSERT INTO snapshots (tool, ccy, payload, timestamp)
		VALUES (?, ?, ?, ?)
	`, snap.Tool, snap.Ccy, snap.Payload, snap.Timestamp)
	return err
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) RecentInvocations(limit int) ([]models.MInvocation, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.DB.Query(`
		SELECT tool, args_json, ok, error_code, duration_ms, output_bytes, timestamp, created_at
		FROM invocations
		ORDER BY timestamp DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MInvocation
	for rows.Next() {
		var inv models.MInvocation
		var ok int
		if err := rows.Scan(&inv.Tool, &inv.ArgsJSON, &ok, &inv.ErrorCode, &inv.DurationMs, &inv.OutputByte, &inv.Timestamp, &inv.CreatedAt); err != nil {
			return nil, err
		}
		inv.OK = ok != 0
		out = append(out, inv)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) CleanupOldData() error {
	retentionDays := d.Config.Storage.RetentionDays
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).UnixMilli()

	d.Logger.Info("Cleaning up data older than %d days (timestamp < %d)...", retentionDays, cutoff)

	if _, err := d.DB.Exec("DELETE FROM invocations WHERE timestamp < ?", cutoff); err != nil {
		d.Logger.Error("Cleanup invocations error: %v", err)
	}
	if _, err := d.DB.Exec("DELETE FROM snapshots WHERE timestamp < ?", cutoff); err != nil {
		d.Logger.Error("Cleanup snapshots error: %v", err)
	}

	d.Logger.Info("Cleanup completed")
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

// -----------------------------------------------------------------------------

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
