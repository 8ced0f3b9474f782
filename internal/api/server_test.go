package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/SoarinFerret/AttokWarden/internal/engine"
	"github.com/SoarinFerret/AttokWarden/internal/metrics"
	"github.com/SoarinFerret/AttokWarden/internal/render"
	"github.com/SoarinFerret/AttokWarden/internal/session"
	"github.com/SoarinFerret/AttokWarden/internal/state"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var kst = time.FixedZone("KST", 9*60*60)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 9, hour, minute, 0, 0, kst)
}

type fakeEngine struct {
	mu      sync.Mutex
	status  engine.Status
	view    render.View
	renders *render.Queue
	calls   []string
	err     error
	records map[string]session.Record
}

func newFakeEngine() *fakeEngine {
	a := *session.NewRecord("김도윤", at(13, 40), 90)
	b := *session.NewRecord("이서연", at(14, 20), 90)
	done := *session.NewRecord("박민준", at(12, 0), 90)
	done.Depart(at(13, 0))
	return &fakeEngine{
		status:  engine.Status{State: engine.StateRunning, Active: 2, Departed: 1},
		view:    render.NewView([]session.Record{a, b}, []session.Record{done}, at(14, 20)),
		renders: render.NewQueue(),
		records: map[string]session.Record{"김도윤": a, "박민준": done},
	}
}

func (f *fakeEngine) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeEngine) Start(context.Context) error   { return f.record("start") }
func (f *fakeEngine) Stop() error                   { return f.record("stop") }
func (f *fakeEngine) Restart(context.Context) error { return f.record("restart") }
func (f *fakeEngine) Reset()                        { _ = f.record("reset") }
func (f *fakeEngine) Status() engine.Status         { return f.status }
func (f *fakeEngine) View() render.View             { return f.view }
func (f *fakeEngine) Renders() *render.Queue        { return f.renders }

func (f *fakeEngine) Adjust(name string, delta int) (session.Record, error) {
	rec, ok := f.records[name]
	if !ok {
		return session.Record{}, state.ErrUnknownStudent
	}
	if rec.CheckedOut {
		return session.Record{}, state.ErrDeparted
	}
	rec.SetClassMinutes(rec.ClassMinutes + delta)
	return rec, nil
}

type fakeVoice struct{ on bool }

func (v *fakeVoice) Voice() bool { return v.on }
func (v *fakeVoice) ToggleVoice() bool {
	v.on = !v.on
	return v.on
}

func newTestServer(t *testing.T, eng Engine) *Server {
	reg := prometheus.NewRegistry()
	metrics.New(reg).Render("full")
	return NewServer(Options{
		Grid:           render.GridOptions{ColumnsMin: 3, ColumnsMax: 8, CardWidthPx: 240},
		InitialWidthPx: 1200,
		Gatherer:       reg,
	}, eng, &fakeVoice{on: true}, zaptest.NewLogger(t))
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	eng := newFakeEngine()
	s := newTestServer(t, eng)

	w := do(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	eng.status.State = engine.StateSuspended
	w = do(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, newFakeEngine())
	w := do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `attok_render_requests_total{mode="full"} 1`)
}

func TestBoard(t *testing.T) {
	s := newTestServer(t, newFakeEngine())

	w := do(s, http.MethodGet, "/v1/board", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp boardResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Columns)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "김도윤", resp.Rows[0][0].Name)
	assert.Equal(t, "박민준", resp.Rows[1][0].Name)
	assert.Len(t, resp.View.Active, 2)
}

func TestBoardResize(t *testing.T) {
	s := newTestServer(t, newFakeEngine())
	frames, cancel := s.Hub().Subscribe()
	defer cancel()

	w := do(s, http.MethodGet, "/v1/board?width=300", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp boardResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Columns)

	select {
	case f := <-frames:
		assert.Equal(t, render.ModeFull, f.Mode)
	default:
		t.Fatal("expected a full frame after recolumnising")
	}

	w = do(s, http.MethodGet, "/v1/board?width=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdjust(t *testing.T) {
	s := newTestServer(t, newFakeEngine())

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"extends", "/v1/students/" + url.PathEscape("김도윤") + "/adjust", `{"delta":10}`, http.StatusOK},
		{"unknown student", "/v1/students/" + url.PathEscape("없음") + "/adjust", `{"delta":10}`, http.StatusNotFound},
		{"departed", "/v1/students/" + url.PathEscape("박민준") + "/adjust", `{"delta":-10}`, http.StatusConflict},
		{"missing delta", "/v1/students/" + url.PathEscape("김도윤") + "/adjust", `{}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := do(s, http.MethodPost, "/v1/students/"+url.PathEscape("김도윤")+"/adjust", `{"delta":10}`)
	var rec session.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, 100, rec.ClassMinutes)
}

func TestEngineControl(t *testing.T) {
	eng := newFakeEngine()
	s := newTestServer(t, eng)

	for _, action := range []string{"start", "stop", "restart", "reset"} {
		w := do(s, http.MethodPost, "/v1/engine/"+action, "")
		assert.Equal(t, http.StatusOK, w.Code, action)
	}
	assert.Equal(t, []string{"start", "stop", "restart", "reset"}, eng.calls)

	eng.err = engine.ErrAlreadyRunning
	assert.Equal(t, http.StatusConflict, do(s, http.MethodPost, "/v1/engine/start", "").Code)
	eng.err = fmt.Errorf("failed to open board session: %w", context.DeadlineExceeded)
	assert.Equal(t, http.StatusBadGateway, do(s, http.MethodPost, "/v1/engine/restart", "").Code)
}

func TestToggleVoice(t *testing.T) {
	s := newTestServer(t, newFakeEngine())
	w := do(s, http.MethodPost, "/v1/voice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"voice":false}`, w.Body.String())
}

func TestControlRateLimit(t *testing.T) {
	eng := newFakeEngine()
	s := NewServer(Options{
		Grid:             render.GridOptions{ColumnsMin: 3, ColumnsMax: 8, CardWidthPx: 240},
		ControlPerMinute: 2,
		Gatherer:         prometheus.NewRegistry(),
	}, eng, &fakeVoice{}, zaptest.NewLogger(t))

	assert.Equal(t, http.StatusOK, do(s, http.MethodPost, "/v1/voice", "").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodPost, "/v1/voice", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(s, http.MethodPost, "/v1/voice", "").Code)
	// reads are not limited
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/v1/board", "").Code)
}

func TestTokenBucketRefills(t *testing.T) {
	now := at(14, 0)
	l := newTokenBucket(1, 60)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"))

	now = now.Add(time.Second)
	assert.True(t, l.allow("a"))
}

func TestPumpAndStream(t *testing.T) {
	eng := newFakeEngine()
	s := newTestServer(t, eng)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Pump(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/board/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	events := make(chan string, 8)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if name, ok := strings.CutPrefix(sc.Text(), "event:"); ok {
				events <- name
			}
		}
	}()

	next := func() string {
		select {
		case e := <-events:
			return e
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for frame")
			return ""
		}
	}
	assert.Equal(t, "full", next())

	require.Eventually(t, func() bool { return s.Hub().Len() == 1 }, 5*time.Second, 5*time.Millisecond)

	// same composition, later time: relabel only
	later := eng.view
	later.At = at(14, 21)
	eng.renders.Push(render.Request{Mode: render.ModeTimer, View: later})
	assert.Equal(t, "timer", next())

	eng.renders.Push(render.Request{Mode: render.ModeFull, View: later})
	assert.Equal(t, "full", next())
}

func TestHubCollapsesBacklog(t *testing.T) {
	h := NewHub()
	frames, cancel := h.Subscribe()
	defer cancel()

	h.Broadcast(render.Request{Mode: render.ModeFull})
	for i := 0; i < 10; i++ {
		h.Broadcast(render.Request{Mode: render.ModeTimer})
	}

	var modes []render.Mode
	for len(frames) > 0 {
		modes = append(modes, (<-frames).Mode)
	}
	require.NotEmpty(t, modes)
	assert.Contains(t, modes, render.ModeFull)
}
