package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"savingsrate/internal/core"
	"savingsrate/internal/middleware/ratelimit"
	"savingsrate/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeComparer struct {
	calls atomic.Int32
	res   core.ComparisonResult
	err   error
	delay time.Duration
}

func (f *fakeComparer) Compare(context.Context) (core.ComparisonResult, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.res, f.err
}

type fakeWar struct {
	mu  sync.Mutex
	set map[string]bool
}

func (f *fakeWar) SetWar(_ context.Context, id string, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.set[id]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	f.set[id] = on
	return nil
}

type fakePublisher struct {
	ids []string
	err error
}

func (f *fakePublisher) PublishResult(_ context.Context, id string, _ core.ComparisonResult) error {
	f.ids = append(f.ids, id)
	return f.err
}

func sampleResult() core.ComparisonResult {
	jan := core.NewMonthKey(2024, 1)
	return core.ComparisonResult{
		Profiles: []core.ProfileSeries{
			{ProfileID: "me", Name: "Me", Self: true, Visible: true, Records: []core.RateRecord{
				{Month: jan, SavingsRate: core.DefinedRate(25), EffectiveIncome: 4000, Savings: 1000},
			}},
			{ProfileID: "rival", Name: "Rival", Visible: false, Records: []core.RateRecord{
				{Month: jan, SavingsRate: core.Undefined},
			}},
		},
		Reference: core.Overlay{Label: "US average savings", Points: []core.OverlayPoint{}},
		Failures:  []core.ProfileFailure{{ProfileID: "broken", Name: "Broken", Message: "no sheet"}},
	}
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	s := NewServer(":0", &fakeComparer{})
	defer s.Shutdown(context.Background())

	rr := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())

	rr = do(t, s, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestReady_FailingCheck(t *testing.T) {
	s := NewServer(":0", &fakeComparer{}, WithChecks(
		Check{Name: "settings", Fn: func(context.Context) error { return nil }},
		Check{Name: "amqp", Fn: func(context.Context) error { return errors.New("connection closed") }},
	))
	defer s.Shutdown(context.Background())

	rr := do(t, s, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body.Status)
	assert.Equal(t, "ok", body.Checks["settings"])
	assert.Equal(t, "connection closed", body.Checks["amqp"])
}

func TestSeries_JSONAndCache(t *testing.T) {
	c := &fakeComparer{res: sampleResult()}
	s := NewServer(":0", c)
	defer s.Shutdown(context.Background())

	rr := do(t, s, http.MethodGet, "/api/series", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	profiles := body["profiles"].([]any)
	require.Len(t, profiles, 2)
	rival := profiles[1].(map[string]any)
	rec := rival["records"].([]any)[0].(map[string]any)
	assert.Nil(t, rec["savings_rate"], "undefined rate is null")
	me := profiles[0].(map[string]any)
	assert.Equal(t, 25.0, me["records"].([]any)[0].(map[string]any)["savings_rate"])
	assert.Equal(t, "2024-01", me["records"].([]any)[0].(map[string]any)["month"])

	do(t, s, http.MethodGet, "/api/series", "")
	assert.EqualValues(t, 1, c.calls.Load(), "second read served from cache")
}

func TestSeries_VisibleFilter(t *testing.T) {
	s := NewServer(":0", &fakeComparer{res: sampleResult()})
	defer s.Shutdown(context.Background())

	rr := do(t, s, http.MethodGet, "/api/series?visible=true", "")
	var res core.ComparisonResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Len(t, res.Profiles, 1)
	assert.Equal(t, "me", res.Profiles[0].ProfileID)
}

func TestSeries_ConcurrentMissesCollapse(t *testing.T) {
	c := &fakeComparer{res: sampleResult(), delay: 50 * time.Millisecond}
	s := NewServer(":0", c)
	defer s.Shutdown(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			do(t, s, http.MethodGet, "/api/series", "")
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, c.calls.Load())
}

func TestSeries_Error(t *testing.T) {
	s := NewServer(":0", &fakeComparer{err: errors.New("settings unavailable")})
	defer s.Shutdown(context.Background())

	rr := do(t, s, http.MethodGet, "/api/series", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "settings unavailable")
	assert.Contains(t, rr.Body.String(), "request_id")
}

func TestProfileSeries(t *testing.T) {
	s := NewServer(":0", &fakeComparer{res: sampleResult()})
	defer s.Shutdown(context.Background())

	tests := []struct {
		path   string
		status int
		want   string
	}{
		{"/api/series/me", http.StatusOK, `"profile_id":"me"`},
		{"/api/series/broken", http.StatusUnprocessableEntity, `"error":"no sheet"`},
		{"/api/series/ghost", http.StatusNotFound, `unknown profile`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := do(t, s, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.status, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.want)
		})
	}
}

func TestRefresh(t *testing.T) {
	c := &fakeComparer{res: sampleResult()}
	pub := &fakePublisher{}
	s := NewServer(":0", c, WithPublisher(pub))
	defer s.Shutdown(context.Background())

	do(t, s, http.MethodGet, "/api/series", "")
	rr := do(t, s, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 2, c.calls.Load(), "refresh bypasses cache")
	require.Len(t, pub.ids, 1)
	assert.True(t, strings.HasPrefix(pub.ids[0], "req_"))

	do(t, s, http.MethodGet, "/api/series", "")
	assert.EqualValues(t, 2, c.calls.Load(), "refreshed result is cached")
}

func TestRefresh_PublishFailureStillServes(t *testing.T) {
	s := NewServer(":0", &fakeComparer{res: sampleResult()}, WithPublisher(&fakePublisher{err: errors.New("channel closed")}))
	defer s.Shutdown(context.Background())

	rr := do(t, s, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRefresh_RateLimited(t *testing.T) {
	s := NewServer(":0", &fakeComparer{res: sampleResult()}, WithRateLimit(ratelimit.Config{RequestsPerMinute: 1}))
	defer s.Shutdown(context.Background())

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/refresh", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, s, http.MethodPost, "/api/refresh", "").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := NewServer(":0", &fakeComparer{})
	defer s.Shutdown(context.Background())

	rr := do(t, s, http.MethodGet, "/api/refresh", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestSetWar(t *testing.T) {
	c := &fakeComparer{res: sampleResult()}
	war := &fakeWar{set: map[string]bool{"rival": false}}
	s := NewServer(":0", c, WithWarSetter(war))
	defer s.Shutdown(context.Background())

	do(t, s, http.MethodGet, "/api/series", "")

	rr := do(t, s, http.MethodPut, "/api/profiles/rival/war", `{"war": true}`)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.True(t, war.set["rival"])

	do(t, s, http.MethodGet, "/api/series", "")
	assert.EqualValues(t, 2, c.calls.Load(), "war change invalidates cache")

	rr = do(t, s, http.MethodPut, "/api/profiles/ghost/war", `{"war": true}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, s, http.MethodPut, "/api/profiles/rival/war", `{"on": true}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSetWar_NotRoutedWithoutStore(t *testing.T) {
	s := NewServer(":0", &fakeComparer{})
	defer s.Shutdown(context.Background())

	rr := do(t, s, http.MethodPut, "/api/profiles/rival/war", `{"war": true}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// gatedComparer holds its first run until release is closed; later runs
// return immediately with a different profile.
type gatedComparer struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newGatedComparer() *gatedComparer {
	return &gatedComparer{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedComparer) Compare(context.Context) (core.ComparisonResult, error) {
	id := "new"
	if g.calls.Add(1) == 1 {
		close(g.started)
		<-g.release
		id = "old"
	}
	return core.ComparisonResult{Profiles: []core.ProfileSeries{{ProfileID: id, Self: true, Visible: true}}}, nil
}

func profileID(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res core.ComparisonResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Len(t, res.Profiles, 1)
	return res.Profiles[0].ProfileID
}

func TestSeries_InvalidateDuringComputeIsNotCached(t *testing.T) {
	cmp := newGatedComparer()
	s := NewServer(":0", cmp)
	defer s.Shutdown(context.Background())

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() { first <- do(t, s, http.MethodGet, "/api/series", "") }()
	<-cmp.started

	s.Invalidate()
	close(cmp.release)
	assert.Equal(t, "old", profileID(t, <-first))

	assert.Equal(t, "new", profileID(t, do(t, s, http.MethodGet, "/api/series", "")))
	assert.Equal(t, int32(2), cmp.calls.Load())

	assert.Equal(t, "new", profileID(t, do(t, s, http.MethodGet, "/api/series", "")))
	assert.Equal(t, int32(2), cmp.calls.Load())
}

func TestRefresh_DoesNotJoinEarlierRun(t *testing.T) {
	cmp := newGatedComparer()
	s := NewServer(":0", cmp)
	defer s.Shutdown(context.Background())

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() { first <- do(t, s, http.MethodGet, "/api/series", "") }()
	<-cmp.started

	assert.Equal(t, "new", profileID(t, do(t, s, http.MethodPost, "/api/refresh", "")))

	close(cmp.release)
	assert.Equal(t, "old", profileID(t, <-first))

	assert.Equal(t, "new", profileID(t, do(t, s, http.MethodGet, "/api/series", "")))
	assert.Equal(t, int32(2), cmp.calls.Load())
}
