package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/playperu/wayfinder/internal/directions"
	"github.com/playperu/wayfinder/internal/handler/health"
	"github.com/playperu/wayfinder/internal/planner"
)

// stubClient answers every lookup with routes or err and counts calls.
type stubClient struct {
	routes []directions.Route
	err    error
	calls  atomic.Int32
}

func (s *stubClient) FetchRoutes(_ context.Context, _, _ string) ([]directions.Route, error) {
	s.calls.Add(1)
	return s.routes, s.err
}

func testRoutes() []directions.Route {
	return []directions.Route{
		{
			DurationSeconds: 1800,
			DistanceMeters:  16093.4,
			Summary:         "I-5 S",
			Legs:            []directions.Leg{directions.Leg(`{"summary":"I-5 S","steps":[]}`)},
			Geometry:        orb.LineString{{-122.33, 47.61}, {-122.68, 45.52}},
		},
		{
			DurationSeconds: 5400,
			DistanceMeters:  2_000_000,
			Legs:            []directions.Leg{directions.Leg(`{"summary":"US-101"}`)},
		},
	}
}

func newTestServer(t *testing.T, client directions.Client) (*Registry, http.Handler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := NewRegistry(client, NewBroker(logger), planner.NewFormatter(language.AmericanEnglish), logger)
	t.Cleanup(func() { sessions.Close() })

	checks := map[string]health.Checker{"sqlite": health.CheckFunc(func(context.Context) error { return nil })}
	srv := New(":0", logger, sessions, checks, nil, "")
	return sessions, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func createSession(t *testing.T, h http.Handler, start, destination string) SessionView {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/sessions", CreateSessionRequest{Start: start, Destination: destination})
	require.Equal(t, http.StatusCreated, rec.Code)
	return decode[SessionView](t, rec)
}

func waitForStatus(t *testing.T, h http.Handler, id, status string) SessionView {
	t.Helper()
	var v SessionView
	require.Eventually(t, func() bool {
		rec := do(t, h, http.MethodGet, "/api/sessions/"+id, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		v = decode[SessionView](t, rec)
		return v.State.Status == status
	}, time.Second, 5*time.Millisecond)
	return v
}

func TestSessionLifecycle(t *testing.T) {
	client := &stubClient{routes: testRoutes()}
	_, h := newTestServer(t, client)

	created := createSession(t, h, "Seattle", "Portland")
	assert.Equal(t, "Seattle", created.Start)
	assert.Equal(t, "Portland", created.Destination)

	v := waitForStatus(t, h, created.ID, "loaded")
	require.Len(t, v.State.Routes, 2)
	assert.Equal(t, RouteRow{
		Index:           0,
		DurationSeconds: 1800,
		DistanceMeters:  16093.4,
		Duration:        "30 min",
		Distance:        "10 mi",
		Summary:         "I-5 S",
	}, v.State.Routes[0])
	assert.Equal(t, "1 hr 30 min", v.State.Routes[1].Duration)
	assert.Equal(t, "1,242.7 mi", v.State.Routes[1].Distance)
	assert.Nil(t, v.State.Error)

	rec := do(t, h, http.MethodPost, "/api/sessions/"+created.ID+"/routes/0/select", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"page":"route","start":"Seattle","end":"Portland","directions":[{"summary":"I-5 S","steps":[]}]}`,
		rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/sessions/"+created.ID+"/back", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"page":"home","directions":{"start":"","end":"","directions":[]}}`, rec.Body.String())

	v = waitForStatus(t, h, created.ID, "idle")
	assert.Empty(t, v.Start)
	assert.Empty(t, v.Destination)
	assert.Empty(t, v.State.Routes)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestLookupGating(t *testing.T) {
	client := &stubClient{routes: testRoutes()}
	_, h := newTestServer(t, client)

	created := createSession(t, h, "", "")
	assert.Equal(t, "idle", created.State.Status)

	rec := do(t, h, http.MethodPost, "/api/sessions/"+created.ID+"/lookup", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/sessions/"+created.ID+"/start", ValueRequest{Value: "Seattle"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/sessions/"+created.ID+"/lookup", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/sessions/"+created.ID+"/destination", ValueRequest{Value: "   "})
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/sessions/"+created.ID+"/lookup", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Zero(t, client.calls.Load())

	rec = do(t, h, http.MethodPut, "/api/sessions/"+created.ID+"/destination", ValueRequest{Value: "Portland"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/sessions/"+created.ID+"/lookup", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	waitForStatus(t, h, created.ID, "loaded")
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestSelectRouteErrors(t *testing.T) {
	_, h := newTestServer(t, &stubClient{routes: testRoutes()})

	idle := createSession(t, h, "", "")
	rec := do(t, h, http.MethodPost, "/api/sessions/"+idle.ID+"/routes/0/select", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	loaded := createSession(t, h, "A", "B")
	waitForStatus(t, h, loaded.ID, "loaded")

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"index out of range", "/routes/2/select", http.StatusNotFound},
		{"negative index", "/routes/-1/select", http.StatusNotFound},
		{"non-numeric index", "/routes/first/select", http.StatusNotFound},
		{"geometry present", "/routes/0/geometry", http.StatusOK},
		{"geometry missing", "/routes/1/geometry", http.StatusNotFound},
		{"geometry out of range", "/routes/9/geometry", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			if strings.HasSuffix(tt.path, "/geometry") {
				method = http.MethodGet
			}
			rec := do(t, h, method, "/api/sessions/"+loaded.ID+tt.path, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRouteGeometry(t *testing.T) {
	_, h := newTestServer(t, &stubClient{routes: testRoutes()})
	created := createSession(t, h, "A", "B")
	waitForStatus(t, h, created.ID, "loaded")

	rec := do(t, h, http.MethodGet, "/api/sessions/"+created.ID+"/routes/0/geometry", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	var f struct {
		Type     string `json:"type"`
		Geometry struct {
			Type        string       `json:"type"`
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties map[string]any `json:"properties"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&f))
	assert.Equal(t, "Feature", f.Type)
	assert.Equal(t, "LineString", f.Geometry.Type)
	assert.Equal(t, [][2]float64{{-122.33, 47.61}, {-122.68, 45.52}}, f.Geometry.Coordinates)
	assert.Equal(t, "30 min", f.Properties["duration"])
	assert.Equal(t, "10 mi", f.Properties["distance"])
}

func TestFailedLookupView(t *testing.T) {
	client := &stubClient{err: fmt.Errorf("routing: mapbox: %w: status 503", directions.ErrTransport)}
	_, h := newTestServer(t, client)

	created := createSession(t, h, "A", "B")
	v := waitForStatus(t, h, created.ID, "failed")
	require.NotNil(t, v.State.Error)
	assert.Equal(t, "transport", v.State.Error.Kind)
	assert.Contains(t, v.State.Error.Message, "status 503")
	assert.Empty(t, v.State.Routes)

	rec := do(t, h, http.MethodPost, "/api/sessions/"+created.ID+"/routes/0/select", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUnknownAndDeletedSession(t *testing.T) {
	sessions, h := newTestServer(t, &stubClient{})

	rec := do(t, h, http.MethodGet, "/api/sessions/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	created := createSession(t, h, "", "")
	assert.Equal(t, 1, sessions.Len())

	rec = do(t, h, http.MethodDelete, "/api/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, sessions.Len())

	rec = do(t, h, http.MethodGet, "/api/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSessionBody(t *testing.T) {
	_, h := newTestServer(t, &stubClient{})

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, "empty body is allowed")

	req = httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader("{"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	_, h := newTestServer(t, &stubClient{})
	rec := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sqlite":{"status":"ok"}}`, rec.Body.String())
}

func TestEventStream(t *testing.T) {
	_, h := newTestServer(t, &stubClient{routes: testRoutes()})
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	created := createSession(t, h, "", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/sessions/"+created.ID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan [2]string, 16)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		var name string
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				events <- [2]string{name, strings.TrimPrefix(line, "data: ")}
			}
		}
	}()

	next := func() (string, string) {
		t.Helper()
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed")
			return ev[0], ev[1]
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
			return "", ""
		}
	}

	name, data := next()
	assert.Equal(t, EventState, name)
	assert.Contains(t, data, `"status":"idle"`)

	do(t, h, http.MethodPut, "/api/sessions/"+created.ID+"/start", ValueRequest{Value: "A"})
	do(t, h, http.MethodPut, "/api/sessions/"+created.ID+"/destination", ValueRequest{Value: "B"})
	rec := do(t, h, http.MethodPost, "/api/sessions/"+created.ID+"/lookup", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	name, data = next()
	assert.Equal(t, EventState, name)
	assert.Contains(t, data, `"status":"loading"`)
	name, data = next()
	assert.Equal(t, EventState, name)
	assert.Contains(t, data, `"status":"loaded"`)

	rec = do(t, h, http.MethodPost, "/api/sessions/"+created.ID+"/routes/1/select", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	name, data = next()
	assert.Equal(t, EventNavigate, name)
	assert.JSONEq(t, `{"page":"route","start":"A","end":"B","directions":[{"summary":"US-101"}]}`, data)
}

func TestLookupOnClosedSession(t *testing.T) {
	sessions, _ := newTestServer(t, &stubClient{routes: testRoutes()})
	s := sessions.Create("", "")
	s.ctrl.SetStart("A")
	s.ctrl.SetDestination("B")

	// The sweeper closes the session after the middleware resolved it.
	sessions.Delete(s.ID)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+s.ID+"/lookup", nil)
	req = req.WithContext(context.WithValue(req.Context(), ctxKeySession, s))
	rec := httptest.NewRecorder()
	handleLookup(sessions)(rec, req)

	assert.Equal(t, http.StatusGone, rec.Code)
	assert.JSONEq(t, `{"error":"session closed"}`, rec.Body.String())
}
