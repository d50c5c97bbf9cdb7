package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mstefan99/beacon/internal/errors"
)

// User is an account that can own apps and hold permission grants.
// PasswordHash is never serialized.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	CreatedMs    int64  `json:"created"`
}

// CreateUser inserts a new user with a pre-hashed password.
func (s *Store) CreateUser(username, passwordHash string) (*User, error) {
	ctx, cancel := s.defaultContext()
	defer cancel()

	u := &User{
		Username:     username,
		PasswordHash: passwordHash,
		CreatedMs:    time.Now().UnixMilli(),
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, created_ms)
		VALUES (?, ?, ?)
		RETURNING id
	`, u.Username, u.PasswordHash, u.CreatedMs).Scan(&u.ID)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

// GetUserByID returns the user with the given id.
func (s *Store) GetUserByID(id int64) (*User, error) {
	ctx, cancel := s.defaultContext()
	defer cancel()

	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_ms
		FROM users
		WHERE id = ?
	`, id))
}

// GetUserByUsername returns the user with the given username.
func (s *Store) GetUserByUsername(username string) (*User, error) {
	ctx, cancel := s.defaultContext()
	defer cancel()

	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_ms
		FROM users
		WHERE username = ?
	`, username))
}

// UpdateUserPassword replaces the user's password hash.
func (s *Store) UpdateUserPassword(id int64, passwordHash string) error {
	ctx, cancel := s.defaultContext()
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ? WHERE id = ?
	`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound(errors.CodeUserNotFound, "User was not found")
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedMs)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(errors.CodeUserNotFound, "User was not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
