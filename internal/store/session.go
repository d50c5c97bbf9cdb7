package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mstefan99/beacon/internal/errors"
)

// LoginSession is an authenticated user session. PublicID is the opaque
// token handed to the client; the numeric id never leaves the server.
type LoginSession struct {
	ID       int64  `json:"-"`
	PublicID string `json:"id"`
	UserID   int64  `json:"-"`
	IP       string `json:"ip"`
	UA       string `json:"ua"`
	TimeMs   int64  `json:"time"`
}

// CreateLoginSession inserts a new login session with the given public token.
func (s *Store) CreateLoginSession(publicID string, userID int64, ip, ua string) (*LoginSession, error) {
	ctx, cancel := s.defaultContext()
	defer cancel()

	ls := &LoginSession{
		PublicID: publicID,
		UserID:   userID,
		IP:       ip,
		UA:       ua,
		TimeMs:   time.Now().UnixMilli(),
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sessions (public_id, user_id, ip, ua, time_ms)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, ls.PublicID, ls.UserID, ls.IP, ls.UA, ls.TimeMs).Scan(&ls.ID)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return ls, nil
}

// GetLoginSession returns the session with the given public token.
func (s *Store) GetLoginSession(publicID string) (*LoginSession, error) {
	ctx, cancel := s.defaultContext()
	defer cancel()

	var ls LoginSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, public_id, user_id, ip, ua, time_ms
		FROM sessions
		WHERE public_id = ?
	`, publicID).Scan(&ls.ID, &ls.PublicID, &ls.UserID, &ls.IP, &ls.UA, &ls.TimeMs)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(errors.CodeNotFound, "Session was not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return &ls, nil
}

// GetLoginSessionsByUser returns all sessions of one user, newest first.
func (s *Store) GetLoginSessionsByUser(userID int64) ([]*LoginSession, error) {
	ctx, cancel := s.defaultContext()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, public_id, user_id, ip, ua, time_ms
		FROM sessions
		WHERE user_id = ?
		ORDER BY time_ms DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*LoginSession
	for rows.Next() {
		var ls LoginSession
		if err := rows.Scan(&ls.ID, &ls.PublicID, &ls.UserID, &ls.IP, &ls.UA, &ls.TimeMs); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, &ls)
	}

	return sessions, rows.Err()
}

// DeleteLoginSession removes a session by public token.
func (s *Store) DeleteLoginSession(publicID string) error {
	ctx, cancel := s.defaultContext()
	defer cancel()

	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE public_id = ?`, publicID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeLoginSessions removes sessions older than the cutoff. Returns the
// number of sessions removed.
func (s *Store) PurgeLoginSessions(cutoffMs int64) (int64, error) {
	ctx, cancel := s.defaultContext()
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE time_ms < ?`, cutoffMs)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}

	n, _ := res.RowsAffected()
	return n, nil
}
