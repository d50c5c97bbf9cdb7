package server

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/mstefan99/beacon/config"
	"github.com/mstefan99/beacon/internal/errors"
	"github.com/mstefan99/beacon/internal/perms"
	"github.com/mstefan99/beacon/internal/store"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	return &Server{
		cfg:    cfg,
		gate:   NewGate(cfg.Auth.RateLimit, cfg.Auth.RateWindow.Duration()),
		engine: gin.New(),
	}
}

// testStoreServer builds a server over an in-memory control store for
// tests that exercise access resolution.
func testStoreServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(store.Config{Path: ""})
	if err != nil {
		t.Fatalf("open control store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return &Server{cfg: config.Default(), store: st}
}

func appContext(t *testing.T, user *store.User, appID int64) *gin.Context {
	t.Helper()
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Params = gin.Params{{Key: "id", Value: strconv.FormatInt(appID, 10)}}
	c.Set(ctxUser, user)
	return c
}

func TestResolveAppOwnerSurvivesMissingGrant(t *testing.T) {
	s := testStoreServer(t)

	owner, err := s.store.CreateUser("owner", "hash")
	assert.NoError(t, err)
	app, err := s.store.CreateApp("Mine", "", "ak", "tk", owner.ID)
	assert.NoError(t, err)

	// Simulate a grant row lost to a partial write of an older release.
	assert.NoError(t, s.store.DeleteGrant(app.ID, owner.ID))

	resolved, grant, err := s.resolveApp(appContext(t, owner, app.ID))
	assert.NoError(t, err)
	assert.Equal(t, app.ID, resolved.ID)
	assert.Equal(t, perms.AllMask, grant.Mask(), "owner keeps full access without a grant row")
}

func TestResolveAppStrangerGets404(t *testing.T) {
	s := testStoreServer(t)

	owner, err := s.store.CreateUser("owner", "hash")
	assert.NoError(t, err)
	stranger, err := s.store.CreateUser("stranger", "hash")
	assert.NoError(t, err)
	app, err := s.store.CreateApp("Mine", "", "ak", "tk", owner.ID)
	assert.NoError(t, err)

	_, _, err = s.resolveApp(appContext(t, stranger, app.ID))
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, errors.CodeAppNotFound, errors.CodeOf(err))
}

func TestFailStatusMapping(t *testing.T) {
	s := testServer(t)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", errors.Validation(errors.CodeNoURL, "no url"), http.StatusBadRequest, "NO_URL"},
		{"unauthorized", errors.Unauthorized("sign in"), http.StatusUnauthorized, "NOT_AUTHENTICATED"},
		{"forbidden", errors.Forbidden("nope"), http.StatusForbidden, "NOT_AUTHORIZED"},
		{"not found", errors.NotFound(errors.CodeAppNotFound, "gone"), http.StatusNotFound, "APP_NOT_FOUND"},
		{"rate limited", errors.RateLimited(), http.StatusTooManyRequests, "RATE_LIMITED"},
		{"storage", errors.StorageUnavailable(assert.AnError), http.StatusServiceUnavailable, "STORAGE_ERROR"},
		{"internal", assert.AnError, http.StatusInternalServerError, "APP_ERROR"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			s.fail(c, test.err)

			assert.Equal(t, test.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), test.wantCode)
		})
	}
}

func TestFailHidesInternalDetail(t *testing.T) {
	s := testServer(t)
	s.cfg.Development = false

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	s.fail(c, assert.AnError)

	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}

func TestFilterReferrer(t *testing.T) {
	external := "https://search.example/results"
	internal := "https://myapp.example/home"
	relative := "/home"

	tests := []struct {
		name     string
		referrer *string
		origin   string
		want     *string
	}{
		{"nil referrer", nil, "https://myapp.example", nil},
		{"external kept", &external, "https://myapp.example", &external},
		{"same origin dropped", &internal, "https://myapp.example", nil},
		{"no origin header", &external, "", &external},
		{"relative kept", &relative, "https://myapp.example", &relative},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := filterReferrer(test.referrer, test.origin)
			if test.want == nil {
				assert.Nil(t, got)
			} else {
				assert.NotNil(t, got)
				assert.Equal(t, *test.want, *got)
			}
		})
	}
}

func TestGateAllowsWithinLimit(t *testing.T) {
	g := NewGate(3, time.Minute)

	assert.True(t, g.Allow("t:1.2.3.4"))
	assert.True(t, g.Allow("t:1.2.3.4"))
	assert.True(t, g.Allow("t:1.2.3.4"))
	assert.False(t, g.Allow("t:1.2.3.4"))

	// Independent keys keep independent counters.
	assert.True(t, g.Allow("t:5.6.7.8"))
	assert.True(t, g.Allow("other:1.2.3.4"))
}

func TestGateWindowReset(t *testing.T) {
	g := NewGate(1, 10*time.Millisecond)

	assert.True(t, g.Allow("k"))
	assert.False(t, g.Allow("k"))

	time.Sleep(20 * time.Millisecond)
	assert.True(t, g.Allow("k"))
}

func TestGateDisabled(t *testing.T) {
	g := NewGate(0, time.Minute)

	for i := 0; i < 100; i++ {
		assert.True(t, g.Allow("k"))
	}
}

func TestSessionTokenSources(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set(headerAPIKey, "header-token")
	assert.Equal(t, "header-token", sessionToken(c))

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.AddCookie(&http.Cookie{Name: sessionCookie, Value: "cookie-token"})
	c.Request.Header.Set(headerAPIKey, "header-token")
	assert.Equal(t, "cookie-token", sessionToken(c), "cookie wins over header")
}

func TestTimeRangeDefaults(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?start=1000&end=2000", nil)

	start, end := timeRange(c, dayLengthMs)
	assert.Equal(t, int64(1000), start)
	assert.Equal(t, int64(2000), end)

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	before := time.Now().UnixMilli()
	start, end = timeRange(c, dayLengthMs)
	after := time.Now().UnixMilli()

	assert.GreaterOrEqual(t, end, before)
	assert.LessOrEqual(t, end, after)
	assert.Equal(t, end-dayLengthMs, start)
}

func TestPeriodParam(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?period=5000", nil)
	assert.Equal(t, int64(5000), periodMs(c, dayLengthMs))

	// Absent, malformed and non-positive values fall back to the default.
	for _, query := range []string{"/", "/?period=abc", "/?period=-1", "/?period=0"} {
		c, _ = gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, query, nil)
		assert.Equal(t, dayLengthMs, periodMs(c, dayLengthMs), query)
	}
}

func TestTimeRangePeriodOverride(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?end=10000&period=4000", nil)

	start, end := timeRange(c, dayLengthMs)
	assert.Equal(t, int64(10000), end)
	assert.Equal(t, int64(6000), start)

	// An explicit start still wins over the period window.
	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?start=1000&end=10000&period=4000", nil)
	start, end = timeRange(c, dayLengthMs)
	assert.Equal(t, int64(1000), start)
	assert.Equal(t, int64(10000), end)
}

func TestMinLevel(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?level=3", nil)
	assert.Equal(t, 3, minLevel(c))

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, 0, minLevel(c))
}
