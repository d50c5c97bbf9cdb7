package store

import (
	"database/sql"
	"fmt"

	"github.com/mstefan99/beacon/internal/errors"
	"github.com/mstefan99/beacon/internal/perms"
)

// Grant is one permission grant: (app, user) -> capability mask.
type Grant struct {
	AppID  int64               `json:"appID"`
	UserID int64               `json:"userID"`
	Mask   perms.PermissionSet `json:"permissions"`
}

// UpsertGrant creates or replaces the grant for (appID, userID).
func (s *Store) UpsertGrant(appID, userID int64, set perms.PermissionSet) error {
	ctx, cancel := s.defaultContext()
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permissions (app_id, user_id, mask)
		VALUES (?, ?, ?)
		ON CONFLICT (app_id, user_id) DO UPDATE SET mask = excluded.mask
	`, appID, userID, set.Mask())
	if err != nil {
		return fmt.Errorf("upsert grant: %w", err)
	}
	return nil
}

// GetGrant returns the grant for (appID, userID). A user without a grant
// row gets a NotFound error, not an empty set; callers decide how to treat
// the difference.
func (s *Store) GetGrant(appID, userID int64) (*Grant, error) {
	ctx, cancel := s.defaultContext()
	defer cancel()

	var mask int
	err := s.db.QueryRowContext(ctx, `
		SELECT mask FROM permissions WHERE app_id = ? AND user_id = ?
	`, appID, userID).Scan(&mask)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(errors.CodeNotFound, "Permission grant was not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan grant: %w", err)
	}

	return &Grant{AppID: appID, UserID: userID, Mask: perms.FromMask(mask)}, nil
}

// GetGrantsByApp returns all grants for one app.
func (s *Store) GetGrantsByApp(appID int64) ([]*Grant, error) {
	ctx, cancel := s.defaultContext()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, mask FROM permissions WHERE app_id = ? ORDER BY user_id
	`, appID)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	var grants []*Grant
	for rows.Next() {
		var userID int64
		var mask int
		if err := rows.Scan(&userID, &mask); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, &Grant{AppID: appID, UserID: userID, Mask: perms.FromMask(mask)})
	}

	return grants, rows.Err()
}

// DeleteGrant removes the grant for (appID, userID).
func (s *Store) DeleteGrant(appID, userID int64) error {
	ctx, cancel := s.defaultContext()
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM permissions WHERE app_id = ? AND user_id = ?
	`, appID, userID)
	if err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound(errors.CodeNotFound, "Permission grant was not found")
	}
	return nil
}
