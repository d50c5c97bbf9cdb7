package store

import "fmt"

// controlSchema is the control store DDL. Statements are idempotent so the
// schema can be applied on every startup.
var controlSchema = []string{
	`CREATE SEQUENCE IF NOT EXISTS users_id_seq`,
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT PRIMARY KEY DEFAULT nextval('users_id_seq'),
		username      VARCHAR NOT NULL UNIQUE,
		password_hash VARCHAR NOT NULL,
		created_ms    BIGINT NOT NULL
	)`,

	`CREATE SEQUENCE IF NOT EXISTS sessions_id_seq`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id        BIGINT PRIMARY KEY DEFAULT nextval('sessions_id_seq'),
		public_id VARCHAR NOT NULL UNIQUE,
		user_id   BIGINT NOT NULL,
		ip        VARCHAR,
		ua        VARCHAR,
		time_ms   BIGINT NOT NULL
	)`,

	`CREATE SEQUENCE IF NOT EXISTS apps_id_seq`,
	`CREATE TABLE IF NOT EXISTS apps (
		id            BIGINT PRIMARY KEY DEFAULT nextval('apps_id_seq'),
		name          VARCHAR NOT NULL,
		description   VARCHAR NOT NULL DEFAULT '',
		audience_key  VARCHAR NOT NULL UNIQUE,
		telemetry_key VARCHAR NOT NULL UNIQUE,
		owner_id      BIGINT NOT NULL,
		created_ms    BIGINT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS permissions (
		app_id  BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		mask    INTEGER NOT NULL,
		PRIMARY KEY (app_id, user_id)
	)`,
}

// migrate applies the control schema.
func (s *Store) migrate() error {
	for _, stmt := range controlSchema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
