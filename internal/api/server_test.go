package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banshee-data/arlabel/internal/anchor"
	"github.com/banshee-data/arlabel/internal/arsession"
	"github.com/banshee-data/arlabel/internal/config"
	"github.com/banshee-data/arlabel/internal/detect"
	"github.com/banshee-data/arlabel/internal/labeldisplay"
	"github.com/banshee-data/arlabel/internal/monitoring"
	"github.com/banshee-data/arlabel/internal/render"
	"github.com/banshee-data/arlabel/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

type fixture struct {
	server *Server
	mux    *http.ServeMux
	sim    *arsession.Simulator
	sel    *detect.Selector
	board  *labeldisplay.Board
	nodes  *render.Scene
}

func newFixture(t *testing.T, step bool) *fixture {
	t.Helper()
	cfg := config.EmptyPipelineConfig()
	nodes := render.NewScene()
	sim, err := arsession.NewSimulator(arsession.DefaultScene(), arsession.SimulatorOptions{
		Viewport:      cfg.GetViewport(),
		Orientation:   cfg.GetOrientation(),
		OnAnchorAdded: nodes.AnchorAdded,
	})
	require.NoError(t, err)
	if step {
		sim.Step()
	}

	board := labeldisplay.NewBoard(nil)
	t.Cleanup(board.Close)
	sel := detect.NewSelector(detect.SelectorConfigFromPipeline(cfg), board, nil)
	ctrl := anchor.NewController(anchor.ControllerConfigFromPipeline(cfg), sim, sel, nil)

	s := NewServer(Options{
		Controller: ctrl,
		Selector:   sel,
		Session:    sim,
		Runner:     detect.NewRunner(detect.NewReplayDetector(nil), sel, 0),
		Board:      board,
		Nodes:      nodes,
	})
	return &fixture{server: s, mux: s.ServeMux(), sim: sim, sel: sel, board: board, nodes: nodes}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

const mugDetections = `{"frame_seq": 1, "detections": [
	{"labels": [{"identifier": "mug", "confidence": 0.97}],
	 "bounding_box": {"x": 0.45, "y": 0.45, "width": 0.1, "height": 0.1}}
]}`

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

// ----------------------------------------------------------------------------
// Detections and candidate
// ----------------------------------------------------------------------------

func TestDetections_UpdatesCandidateAndLabel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	rec := f.do(t, http.MethodGet, "/api/candidate", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/detections", mugDetections)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[DetectionsResponse](t, rec)
	assert.True(t, resp.Updated)
	require.NotNil(t, resp.Candidate)
	assert.Equal(t, "mug", resp.Candidate.Label)

	rec = f.do(t, http.MethodGet, "/api/candidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mug", decode[detect.Candidate](t, rec).Label)

	rec = f.do(t, http.MethodGet, "/api/label", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mug", decode[labeldisplay.Update](t, rec).Label)
}

func TestDetections_LowConfidenceKeepsCandidate(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/detections", mugDetections).Code)

	rec := f.do(t, http.MethodPost, "/api/detections", `{"frame_seq": 2, "detections": [
		{"labels": [{"identifier": "chair", "confidence": 0.9}],
		 "bounding_box": {"x": 0, "y": 0, "width": 0.5, "height": 0.5}}
	]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[DetectionsResponse](t, rec)
	assert.False(t, resp.Updated, "0.9 is not above the threshold")
	require.NotNil(t, resp.Candidate)
	assert.Equal(t, "mug", resp.Candidate.Label)
}

func TestDetections_RejectsBadBodies(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	for _, body := range []string{
		`not json`,
		`{"frame_seq": 1, "unknown": true}`,
		`{"frame_seq": 1, "detections": [{"labels": [], "bounding_box": {"x": 0.8, "y": 0, "width": 0.5, "height": 0.1}}]}`,
	} {
		rec := f.do(t, http.MethodPost, "/api/detections", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	_, ok := f.sel.Current()
	assert.False(t, ok)
}

func TestDetections_CancelledContextIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.server = NewServer(Options{
		Controller: f.server.opts.Controller,
		Selector:   f.sel,
		Session:    f.sim,
		Context:    ctx,
	})
	f.mux = f.server.ServeMux()

	rec := f.do(t, http.MethodPost, "/api/detections", mugDetections)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[DetectionsResponse](t, rec).Updated)
}

// ----------------------------------------------------------------------------
// Tap
// ----------------------------------------------------------------------------

func TestTap_StatusCodes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/api/tap", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "no candidate yet")
	assert.Contains(t, decode[TapResponse](t, rec).Error, anchor.ErrNoCandidate.Error())

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/detections", mugDetections).Code)

	rec = f.do(t, http.MethodPost, "/api/tap", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[TapResponse](t, rec)
	require.NotNil(t, resp.Placement)
	require.NotNil(t, resp.Placement.Anchor)
	assert.Equal(t, "mug", resp.Placement.Anchor.Name)
	assert.Equal(t, anchor.StateDone, resp.Placement.State)
	pos := resp.Placement.Anchor.Transform.Position()
	assert.InDelta(t, -2, pos.Z, 1e-9)

	rec = f.do(t, http.MethodPost, "/api/tap", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "same label twice")
	resp = decode[TapResponse](t, rec)
	require.NotNil(t, resp.Placement)
	assert.Equal(t, anchor.StateClaiming, resp.Placement.AbortedAt)

	assert.Len(t, f.sim.Anchors(), 1)
	assert.Equal(t, []string{"mug"}, f.nodes.Texts())
}

func TestCandidate_ReportsPlaced(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/detections", mugDetections).Code)

	rec := f.do(t, http.MethodGet, "/api/candidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	c := decode[CandidateResponse](t, rec)
	assert.Equal(t, "mug", c.Label)
	assert.False(t, c.Placed)

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/tap", "").Code)

	rec = f.do(t, http.MethodGet, "/api/candidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[CandidateResponse](t, rec).Placed)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/reset", "").Code)
	rec = f.do(t, http.MethodGet, "/api/candidate", "")
	require.Equal(t, http.StatusOK, rec.Code, "reset keeps the candidate")
	assert.False(t, decode[CandidateResponse](t, rec).Placed, "reset clears placed labels")
}

func TestTap_NoFrame(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/detections", mugDetections).Code)

	rec := f.do(t, http.MethodPost, "/api/tap", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTap_NoSurface(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	// A box in the top-left corner maps outside the feature grid.
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/detections", `{"frame_seq": 1, "detections": [
		{"labels": [{"identifier": "lamp", "confidence": 0.99}],
		 "bounding_box": {"x": 0, "y": 0, "width": 0.02, "height": 0.02}}
	]}`).Code)

	rec := f.do(t, http.MethodPost, "/api/tap", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Empty(t, f.sim.Anchors())
}

func TestTapStatus(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusCreated},
		{&anchor.PlacementError{State: anchor.StateClaiming, Err: anchor.ErrAlreadyPlaced}, http.StatusConflict},
		{anchor.ErrNoCandidate, http.StatusConflict},
		{&anchor.PlacementError{State: anchor.StateLocating, Err: anchor.ErrNoSurface}, http.StatusUnprocessableEntity},
		{&anchor.PlacementError{State: anchor.StateTransforming, Err: anchor.ErrNoFrame}, http.StatusServiceUnavailable},
		{context.Canceled, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tapStatus(tc.err), "%v", tc.err)
	}
}

// ----------------------------------------------------------------------------
// Anchors and reset
// ----------------------------------------------------------------------------

func TestReset_ClearsAnchorsAndNodes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/detections", mugDetections).Code)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/tap", "").Code)

	rec := f.do(t, http.MethodGet, "/api/anchors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	before := decode[AnchorsResponse](t, rec)
	assert.Len(t, before.Anchors, 1)
	assert.Equal(t, []string{"mug"}, before.PlacedLabels)
	require.Len(t, before.Nodes, 1)
	assert.Equal(t, "mug", before.Nodes[0].Text)

	rec = f.do(t, http.MethodPost, "/api/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/anchors", "")
	after := decode[AnchorsResponse](t, rec)
	assert.Empty(t, after.Anchors)
	assert.Empty(t, after.PlacedLabels)
	assert.Empty(t, after.Nodes)

	// The same label can be placed again once the session restarts.
	f.sim.Step()
	rec = f.do(t, http.MethodPost, "/api/tap", "")
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// ----------------------------------------------------------------------------
// Misc
// ----------------------------------------------------------------------------

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	for _, c := range []struct{ method, path string }{
		{http.MethodGet, "/api/tap"},
		{http.MethodGet, "/api/reset"},
		{http.MethodPost, "/api/candidate"},
		{http.MethodDelete, "/api/anchors"},
		{http.MethodGet, "/api/detections"},
		{http.MethodPost, "/api/label"},
		{http.MethodPost, "/api/stats"},
		{http.MethodPost, "/api/version"},
	} {
		rec := f.do(t, c.method, c.path, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", c.method, c.path)
	}
}

func TestStatsAndVersion(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	rec := f.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, detect.RunnerStats{}, decode[detect.RunnerStats](t, rec))

	rec = f.do(t, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, version.Get(), decode[version.Info](t, rec))
}

func TestAttachAdminRoutes_ScenePlot(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	mux := http.NewServeMux()
	f.server.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/scene.png", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
}

func TestLoggingMiddleware(t *testing.T) {
	t.Parallel()
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	assert.Contains(t, statusCodeColor(200), colorBoldGreen)
	assert.Contains(t, statusCodeColor(302), colorYellow)
	assert.Contains(t, statusCodeColor(404), colorBoldRed)
	assert.Equal(t, "100", statusCodeColor(100))
}
