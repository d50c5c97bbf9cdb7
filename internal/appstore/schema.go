package appstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

// SchemaVersion is the current app store schema template version.
// Bump it together with a new entry in tenantMigrations.
const SchemaVersion = 1

// tenantSchema is the fixed schema template every app store is created
// from. Event timestamps are persisted at second resolution (time_s);
// AppData converts to and from the engine's millisecond resolution.
var tenantSchema = []string{
	`CREATE TABLE IF NOT EXISTS clients (
		id         VARCHAR PRIMARY KEY,
		ua         VARCHAR,
		lang       VARCHAR,
		time_s     BIGINT NOT NULL
	)`,

	`CREATE SEQUENCE IF NOT EXISTS hits_id_seq`,
	`CREATE TABLE IF NOT EXISTS hits (
		id        BIGINT PRIMARY KEY DEFAULT nextval('hits_id_seq'),
		client_id VARCHAR NOT NULL,
		url       VARCHAR NOT NULL,
		referrer  VARCHAR,
		time_s    BIGINT NOT NULL
	)`,

	`CREATE SEQUENCE IF NOT EXISTS client_logs_id_seq`,
	`CREATE TABLE IF NOT EXISTS client_logs (
		id      BIGINT PRIMARY KEY DEFAULT nextval('client_logs_id_seq'),
		time_s  BIGINT NOT NULL,
		tag     VARCHAR,
		message VARCHAR NOT NULL,
		level   INTEGER NOT NULL
	)`,

	`CREATE SEQUENCE IF NOT EXISTS server_logs_id_seq`,
	`CREATE TABLE IF NOT EXISTS server_logs (
		id      BIGINT PRIMARY KEY DEFAULT nextval('server_logs_id_seq'),
		time_s  BIGINT NOT NULL,
		tag     VARCHAR,
		message VARCHAR NOT NULL,
		level   INTEGER NOT NULL
	)`,

	`CREATE SEQUENCE IF NOT EXISTS metrics_id_seq`,
	`CREATE TABLE IF NOT EXISTS metrics (
		id         BIGINT PRIMARY KEY DEFAULT nextval('metrics_id_seq'),
		time_s     BIGINT NOT NULL,
		device     VARCHAR,
		cpu        DOUBLE,
		mem_used   DOUBLE,
		mem_total  DOUBLE,
		net_up     DOUBLE,
		net_down   DOUBLE,
		disk_used  DOUBLE,
		disk_total DOUBLE
	)`,

	`CREATE SEQUENCE IF NOT EXISTS feedback_id_seq`,
	`CREATE TABLE IF NOT EXISTS feedback (
		id      BIGINT PRIMARY KEY DEFAULT nextval('feedback_id_seq'),
		time_s  BIGINT NOT NULL,
		message VARCHAR NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS schema_info (
		version    INTEGER NOT NULL,
		applied_ms BIGINT NOT NULL
	)`,
}

// MigrateTenant applies the schema template to a freshly provisioned app
// store and records the schema version. It is an explicit lifecycle step
// invoked at app creation, not a side effect of first access.
func MigrateTenant(db *sql.DB) error {
	for _, stmt := range tenantSchema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply tenant schema: %w", err)
		}
	}

	var version int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_info`).Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version < SchemaVersion {
		_, err := db.Exec(`INSERT INTO schema_info (version, applied_ms) VALUES (?, ?)`,
			SchemaVersion, time.Now().UnixMilli())
		if err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}

	return nil
}

// checkSchema verifies that the store carries the expected schema version.
func checkSchema(db *sql.DB) error {
	var version int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_info`).Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("schema version %d, expected %d", version, SchemaVersion)
	}
	return nil
}

// openChecked is the default OpenFunc used by Acquire: open the file,
// verify connectivity and check the schema version.
func openChecked(path string) (*sql.DB, error) {
	db, err := openDuckDB(path)
	if err != nil {
		return nil, err
	}
	if err := checkSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// openDuckDB opens a DuckDB file and verifies connectivity.
func openDuckDB(path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return db, nil
}
