package store

import (
	"testing"
	"time"

	"github.com/mstefan99/beacon/internal/errors"
	"github.com/mstefan99/beacon/internal/perms"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	// An empty path gives an in-memory DuckDB instance.
	s, err := Open(Config{Path: "", QueryTimeout: 30 * time.Second})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// Users
// =============================================================================

func TestCreateAndGetUser(t *testing.T) {
	s := setupTestStore(t)

	created, err := s.CreateUser("alice", "hash-a")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.ID == 0 {
		t.Error("created user has zero id")
	}

	byID, err := s.GetUserByID(created.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID.Username != "alice" || byID.PasswordHash != "hash-a" {
		t.Errorf("got %+v", byID)
	}

	byName, err := s.GetUserByUsername("alice")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if byName.ID != created.ID {
		t.Errorf("id mismatch: %d vs %d", byName.ID, created.ID)
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetUserByUsername("nobody")
	if !errors.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
	if errors.CodeOf(err) != errors.CodeUserNotFound {
		t.Errorf("code = %s", errors.CodeOf(err))
	}
}

func TestUpdateUserPassword(t *testing.T) {
	s := setupTestStore(t)

	u, err := s.CreateUser("bob", "old")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateUserPassword(u.ID, "new"); err != nil {
		t.Fatalf("update password: %v", err)
	}

	got, err := s.GetUserByID(u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PasswordHash != "new" {
		t.Errorf("hash = %q, want new", got.PasswordHash)
	}

	if err := s.UpdateUserPassword(99999, "x"); !errors.IsNotFound(err) {
		t.Errorf("expected not-found for unknown user, got %v", err)
	}
}

// =============================================================================
// Login sessions
// =============================================================================

func TestLoginSessionLifecycle(t *testing.T) {
	s := setupTestStore(t)

	u, err := s.CreateUser("carol", "hash")
	if err != nil {
		t.Fatal(err)
	}

	created, err := s.CreateLoginSession("token-1", u.ID, "10.0.0.1", "agent")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := s.GetLoginSession("token-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.UserID != u.ID || got.IP != "10.0.0.1" || got.ID != created.ID {
		t.Errorf("got %+v", got)
	}

	if err := s.DeleteLoginSession("token-1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := s.GetLoginSession("token-1"); !errors.IsNotFound(err) {
		t.Errorf("expected not-found after delete, got %v", err)
	}
}

func TestPurgeLoginSessions(t *testing.T) {
	s := setupTestStore(t)

	u, err := s.CreateUser("dave", "hash")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.CreateLoginSession("fresh", u.ID, "", ""); err != nil {
		t.Fatal(err)
	}

	// Sessions are stamped with the current time, so a future cutoff
	// removes them and a past cutoff keeps them.
	n, err := s.PurgeLoginSessions(time.Now().Add(-time.Hour).UnixMilli())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("purged %d fresh sessions", n)
	}

	n, err = s.PurgeLoginSessions(time.Now().Add(time.Hour).UnixMilli())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("purged %d sessions, want 1", n)
	}
}

// =============================================================================
// Apps
// =============================================================================

func TestAppLifecycle(t *testing.T) {
	s := setupTestStore(t)

	owner, err := s.CreateUser("erin", "hash")
	if err != nil {
		t.Fatal(err)
	}

	app, err := s.CreateApp("Demo", "a demo app", "aud-key", "tel-key", owner.ID)
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	if app.Description != "a demo app" {
		t.Errorf("description = %q", app.Description)
	}

	byAud, err := s.GetAppByAudienceKey("aud-key")
	if err != nil {
		t.Fatalf("get by audience key: %v", err)
	}
	if byAud.ID != app.ID {
		t.Errorf("audience key resolved to app %d, want %d", byAud.ID, app.ID)
	}

	byTel, err := s.GetAppByTelemetryKey("tel-key")
	if err != nil {
		t.Fatalf("get by telemetry key: %v", err)
	}
	if byTel.ID != app.ID {
		t.Errorf("telemetry key resolved to app %d, want %d", byTel.ID, app.ID)
	}

	app.Description = "renamed demo"
	if err := s.UpdateApp(app); err != nil {
		t.Fatalf("update app: %v", err)
	}
	got, err := s.GetAppByID(app.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Description != "renamed demo" {
		t.Errorf("description = %q", got.Description)
	}

	if err := s.DeleteApp(app.ID); err != nil {
		t.Fatalf("delete app: %v", err)
	}
	if _, err := s.GetAppByID(app.ID); !errors.IsNotFound(err) {
		t.Errorf("expected not-found after delete, got %v", err)
	}
}

func TestCreateAppGrantsOwner(t *testing.T) {
	s := setupTestStore(t)

	owner, err := s.CreateUser("ivan", "hash")
	if err != nil {
		t.Fatal(err)
	}

	app, err := s.CreateApp("Owned", "", "ak3", "tk3", owner.ID)
	if err != nil {
		t.Fatal(err)
	}

	// The owner's all-capability grant lands in the same transaction as
	// the app row.
	g, err := s.GetGrant(app.ID, owner.ID)
	if err != nil {
		t.Fatalf("owner grant missing after create: %v", err)
	}
	if g.Mask.Mask() != perms.AllMask {
		t.Errorf("owner mask = %d, want %d", g.Mask.Mask(), perms.AllMask)
	}

	apps, err := s.GetAppsByUser(owner.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(apps) != 1 || apps[0].ID != app.ID {
		t.Errorf("owner apps = %+v", apps)
	}
}

func TestGetAppsByUserFollowsGrants(t *testing.T) {
	s := setupTestStore(t)

	owner, err := s.CreateUser("frank", "hash")
	if err != nil {
		t.Fatal(err)
	}
	guest, err := s.CreateUser("grace", "hash")
	if err != nil {
		t.Fatal(err)
	}

	app, err := s.CreateApp("Shared", "", "ak", "tk", owner.ID)
	if err != nil {
		t.Fatal(err)
	}

	// Without a grant the guest sees nothing, ownership aside.
	apps, err := s.GetAppsByUser(guest.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(apps) != 0 {
		t.Errorf("guest sees %d apps without a grant", len(apps))
	}

	viewer := perms.FromList([]perms.Capability{perms.ViewAudience})
	if err := s.UpsertGrant(app.ID, guest.ID, viewer); err != nil {
		t.Fatal(err)
	}

	apps, err = s.GetAppsByUser(guest.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(apps) != 1 || apps[0].ID != app.ID {
		t.Errorf("guest apps = %+v", apps)
	}
}

// =============================================================================
// Permission grants
// =============================================================================

func TestGrantUpsertAndDelete(t *testing.T) {
	s := setupTestStore(t)

	owner, err := s.CreateUser("heidi", "hash")
	if err != nil {
		t.Fatal(err)
	}
	app, err := s.CreateApp("Granted", "", "ak2", "tk2", owner.ID)
	if err != nil {
		t.Fatal(err)
	}

	viewer := perms.FromList([]perms.Capability{perms.ViewAudience, perms.ViewFeedback})
	if err := s.UpsertGrant(app.ID, owner.ID, viewer); err != nil {
		t.Fatalf("upsert grant: %v", err)
	}

	g, err := s.GetGrant(app.ID, owner.ID)
	if err != nil {
		t.Fatalf("get grant: %v", err)
	}
	if g.Mask.Mask() != viewer.Mask() {
		t.Errorf("mask = %d, want %d", g.Mask.Mask(), viewer.Mask())
	}

	// Upsert replaces, never merges.
	if err := s.UpsertGrant(app.ID, owner.ID, perms.All()); err != nil {
		t.Fatal(err)
	}
	g, err = s.GetGrant(app.ID, owner.ID)
	if err != nil {
		t.Fatal(err)
	}
	if g.Mask.Mask() != perms.AllMask {
		t.Errorf("mask after replace = %d, want %d", g.Mask.Mask(), perms.AllMask)
	}

	if err := s.DeleteGrant(app.ID, owner.ID); err != nil {
		t.Fatalf("delete grant: %v", err)
	}
	if _, err := s.GetGrant(app.ID, owner.ID); !errors.IsNotFound(err) {
		t.Errorf("expected not-found after delete, got %v", err)
	}
}
