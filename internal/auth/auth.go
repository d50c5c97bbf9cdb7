// Package auth handles credentials and login sessions.
//
// Passwords are stored as bcrypt hashes. Session tokens and write keys are
// 32 random bytes, hex encoded, minted from crypto/rand and only ever
// compared against stored values; nothing is derivable from them.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mstefan99/beacon/internal/errors"
	"github.com/mstefan99/beacon/internal/logging"
	"github.com/mstefan99/beacon/internal/store"
)

var log = logging.Component("auth")

// tokenBytes is the entropy of session tokens and write keys.
const tokenBytes = 32

// Service authenticates users against the control store.
type Service struct {
	store      *store.Store
	sessionTTL time.Duration
}

// NewService creates an authentication service. sessionTTL bounds how long
// a login session stays valid.
func NewService(s *store.Store, sessionTTL time.Duration) *Service {
	return &Service{store: s, sessionTTL: sessionTTL}
}

// NewToken mints a random token for sessions and write keys.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashPassword derives a bcrypt hash from a plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Login verifies the credentials and opens a new session. Unknown users
// and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(username, password, ip, ua string) (*store.User, *store.LoginSession, error) {
	user, err := s.store.GetUserByUsername(username)
	if err != nil {
		if errors.IsNotFound(err) {
			// Burn a comparison anyway so response timing does not
			// reveal whether the username exists.
			CheckPassword("$2a$10$0000000000000000000000000000000000000000000000000000", password)
			return nil, nil, errors.Unauthorized("Invalid username or password")
		}
		return nil, nil, err
	}

	if !CheckPassword(user.PasswordHash, password) {
		return nil, nil, errors.Unauthorized("Invalid username or password")
	}

	token, err := NewToken()
	if err != nil {
		return nil, nil, err
	}

	session, err := s.store.CreateLoginSession(token, user.ID, ip, ua)
	if err != nil {
		return nil, nil, err
	}

	log.Info("user logged in", "user", user.Username, "ip", ip)
	return user, session, nil
}

// Register creates a new user account.
func (s *Service) Register(username, password string) (*store.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return s.store.CreateUser(username, hash)
}

// Resolve returns the session and user for a session token. Expired
// sessions are deleted on sight.
func (s *Service) Resolve(token string) (*store.User, *store.LoginSession, error) {
	if token == "" {
		return nil, nil, errors.Unauthorized("You need to sign in to do this")
	}

	session, err := s.store.GetLoginSession(token)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil, errors.Unauthorized("You need to sign in to do this")
		}
		return nil, nil, err
	}

	if s.expired(session) {
		if err := s.store.DeleteLoginSession(session.PublicID); err != nil {
			log.Warn("failed to delete expired session", "error", err)
		}
		return nil, nil, errors.Unauthorized("Your session has expired, please sign in again")
	}

	user, err := s.store.GetUserByID(session.UserID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil, errors.Unauthorized("You need to sign in to do this")
		}
		return nil, nil, err
	}

	return user, session, nil
}

// Logout deletes the session with the given token.
func (s *Service) Logout(token string) error {
	return s.store.DeleteLoginSession(token)
}

// ChangePassword verifies the current password and replaces it.
func (s *Service) ChangePassword(user *store.User, current, next string) error {
	if !CheckPassword(user.PasswordHash, current) {
		return errors.Unauthorized("Current password is incorrect")
	}

	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return s.store.UpdateUserPassword(user.ID, hash)
}

// PurgeExpired removes login sessions past their TTL. Returns the number
// removed.
func (s *Service) PurgeExpired() (int64, error) {
	cutoff := time.Now().Add(-s.sessionTTL).UnixMilli()
	return s.store.PurgeLoginSessions(cutoff)
}

func (s *Service) expired(session *store.LoginSession) bool {
	if s.sessionTTL <= 0 {
		return false
	}
	return time.Now().UnixMilli()-session.TimeMs > s.sessionTTL.Milliseconds()
}
