package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mstefan99/beacon/internal/errors"
	"github.com/mstefan99/beacon/internal/perms"
)

// App is an isolated analytics namespace with its own event store and
// write-scoping keys. The keys are independent high-entropy tokens: the
// audience key scopes browser-origin writes, the telemetry key scopes
// server-origin writes. Keys are omitted from JSON; handlers expose them
// only to holders of the ViewKeys capability.
type App struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	AudienceKey  string `json:"-"`
	TelemetryKey string `json:"-"`
	OwnerID      int64  `json:"ownerID"`
	CreatedMs    int64  `json:"created"`
}

// CreateApp inserts a new app with pre-minted keys and the owner's
// all-capability grant in one transaction. An app row must never exist
// without a grant through which the owner can reach it.
func (s *Store) CreateApp(name, description, audienceKey, telemetryKey string, ownerID int64) (*App, error) {
	ctx, cancel := s.defaultContext()
	defer cancel()

	a := &App{
		Name:         name,
		Description:  description,
		AudienceKey:  audienceKey,
		TelemetryKey: telemetryKey,
		OwnerID:      ownerID,
		CreatedMs:    time.Now().UnixMilli(),
	}

	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO apps (name, description, audience_key, telemetry_key, owner_id, created_ms)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id
		`, a.Name, a.Description, a.AudienceKey, a.TelemetryKey, a.OwnerID, a.CreatedMs).Scan(&a.ID)
		if err != nil {
			return fmt.Errorf("insert app: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO permissions (app_id, user_id, mask) VALUES (?, ?, ?)
		`, a.ID, a.OwnerID, perms.AllMask); err != nil {
			return fmt.Errorf("insert owner grant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

const appColumns = `id, name, description, audience_key, telemetry_key, owner_id, created_ms`

// GetAppByID returns the app with the given id.
func (s *Store) GetAppByID(id int64) (*App, error) {
	ctx, cancel := s.defaultContext()
	defer cancel()

	return scanApp(s.db.QueryRowContext(ctx,
		`SELECT `+appColumns+` FROM apps WHERE id = ?`, id))
}

// GetAppByAudienceKey returns the app owning the given audience key.
func (s *Store) GetAppByAudienceKey(key string) (*App, error) {
	ctx, cancel := s.defaultContext()
	defer cancel()

	return scanApp(s.db.QueryRowContext(ctx,
		`SELECT `+appColumns+` FROM apps WHERE audience_key = ?`, key))
}

// GetAppByTelemetryKey returns the app owning the given telemetry key.
func (s *Store) GetAppByTelemetryKey(key string) (*App, error) {
	ctx, cancel := s.defaultContext()
	defer cancel()

	return scanApp(s.db.QueryRowContext(ctx,
		`SELECT `+appColumns+` FROM apps WHERE telemetry_key = ?`, key))
}

// GetAppsByUser returns every app the user holds a permission grant for.
// The owner receives an all-capability grant at creation, so ownership is
// covered by the same query.
func (s *Store) GetAppsByUser(userID int64) ([]*App, error) {
	ctx, cancel := s.defaultContext()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.description, a.audience_key, a.telemetry_key,
		       a.owner_id, a.created_ms
		FROM apps a
		JOIN permissions p ON p.app_id = a.id
		WHERE p.user_id = ?
		ORDER BY a.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query apps: %w", err)
	}
	defer rows.Close()

	var apps []*App
	for rows.Next() {
		var a App
		err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.AudienceKey,
			&a.TelemetryKey, &a.OwnerID, &a.CreatedMs)
		if err != nil {
			return nil, fmt.Errorf("scan app: %w", err)
		}
		apps = append(apps, &a)
	}

	return apps, rows.Err()
}

// ListApps returns every app. Used by background sweeps that visit all
// tenant stores.
func (s *Store) ListApps() ([]*App, error) {
	ctx, cancel := s.defaultContext()
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+appColumns+` FROM apps ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query apps: %w", err)
	}
	defer rows.Close()

	var apps []*App
	for rows.Next() {
		var a App
		err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.AudienceKey,
			&a.TelemetryKey, &a.OwnerID, &a.CreatedMs)
		if err != nil {
			return nil, fmt.Errorf("scan app: %w", err)
		}
		apps = append(apps, &a)
	}

	return apps, rows.Err()
}

// UpdateApp persists name and description changes.
func (s *Store) UpdateApp(a *App) error {
	ctx, cancel := s.defaultContext()
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE apps SET name = ?, description = ? WHERE id = ?
	`, a.Name, a.Description, a.ID)
	if err != nil {
		return fmt.Errorf("update app: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound(errors.CodeAppNotFound, "App was not found")
	}
	return nil
}

// DeleteApp removes the app and all its permission grants in one
// transaction. Destroying the app's event store is the caller's
// responsibility, after all in-flight operations for the app have drained.
func (s *Store) DeleteApp(id int64) error {
	ctx, cancel := s.defaultContext()
	defer cancel()

	return s.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM permissions WHERE app_id = ?`, id); err != nil {
			return fmt.Errorf("delete grants: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM apps WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete app: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.NotFound(errors.CodeAppNotFound, "App was not found")
		}
		return nil
	})
}

func scanApp(row *sql.Row) (*App, error) {
	var a App
	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.AudienceKey,
		&a.TelemetryKey, &a.OwnerID, &a.CreatedMs)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(errors.CodeAppNotFound, "App was not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan app: %w", err)
	}
	return &a, nil
}
