// Package api exposes the anchor pipeline over HTTP: taps, resets, the current
// candidate and label, the anchors placed so far and an ingress for detections
// produced by an external detector.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/arlabel/internal/anchor"
	"github.com/banshee-data/arlabel/internal/arsession"
	"github.com/banshee-data/arlabel/internal/detect"
	"github.com/banshee-data/arlabel/internal/httputil"
	"github.com/banshee-data/arlabel/internal/labeldisplay"
	"github.com/banshee-data/arlabel/internal/monitor"
	"github.com/banshee-data/arlabel/internal/monitoring"
	"github.com/banshee-data/arlabel/internal/render"
	"github.com/banshee-data/arlabel/internal/version"
	"tailscale.com/tsweb"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Session is the part of the AR session the API reads.
type Session interface {
	monitor.SceneSource
	Anchors() []arsession.Anchor
}

// Options wires a Server to the pipeline. Runner, Board and Nodes may be nil.
type Options struct {
	Controller *anchor.Controller
	Selector   *detect.Selector
	Session    Session
	Runner     *detect.Runner
	Board      *labeldisplay.Board
	Nodes      *render.Scene

	// Context bounds detections posted to the ingress; once it is cancelled
	// they no longer update the candidate. Defaults to context.Background().
	Context context.Context
}

// Server serves the pipeline API.
type Server struct {
	opts Options
	ctx  context.Context
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return &Server{opts: opts, ctx: ctx}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tap", s.tap)
	mux.HandleFunc("/api/reset", s.reset)
	mux.HandleFunc("/api/candidate", s.candidate)
	mux.HandleFunc("/api/anchors", s.anchors)
	mux.HandleFunc("/api/detections", s.detections)
	mux.HandleFunc("/api/label", s.label)
	mux.HandleFunc("/api/stats", s.stats)
	mux.HandleFunc("/api/version", s.version)
	if s.opts.Board != nil {
		mux.Handle("/api/label/stream", s.opts.Board)
	}
	return mux
}

// AttachAdminRoutes adds the scene plot to the debug mux served at /debug/.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	var nodes monitor.NodeSource
	if s.opts.Nodes != nil {
		nodes = s.opts.Nodes
	}
	debug.Handle("scene.png", "Top-down plot of feature points, camera and anchors", monitor.Handler(s.opts.Session, nodes))
}

// TapResponse is the body returned by /api/tap.
type TapResponse struct {
	Placement *anchor.Placement `json:"placement,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// tapStatus maps a placement error to its HTTP status.
func tapStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusCreated
	case errors.Is(err, anchor.ErrAlreadyPlaced), errors.Is(err, anchor.ErrNoCandidate):
		return http.StatusConflict
	case errors.Is(err, anchor.ErrNoSurface):
		return http.StatusUnprocessableEntity
	case errors.Is(err, anchor.ErrNoFrame):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) tap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	p, err := s.opts.Controller.Tap(r.Context())
	resp := TapResponse{}
	if p.ID != "" {
		resp.Placement = &p
	}
	if err != nil {
		resp.Error = err.Error()
	}
	httputil.WriteJSON(w, tapStatus(err), resp)
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.opts.Controller.Reset(r.Context()); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if s.opts.Nodes != nil {
		s.opts.Nodes.Clear()
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "reset"})
}

// CandidateResponse is the body returned by /api/candidate. Placed is true
// when a tap would be rejected because the label already has an anchor.
type CandidateResponse struct {
	detect.Candidate
	Placed bool `json:"placed"`
}

func (s *Server) candidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	c, ok := s.opts.Selector.Current()
	if !ok {
		httputil.NotFound(w, anchor.ErrNoCandidate.Error())
		return
	}
	httputil.WriteJSONOK(w, CandidateResponse{
		Candidate: c,
		Placed:    s.opts.Controller.IsPlaced(c.Label),
	})
}

// AnchorsResponse is the body returned by /api/anchors.
type AnchorsResponse struct {
	Anchors      []arsession.Anchor `json:"anchors"`
	PlacedLabels []string           `json:"placed_labels"`
	Nodes        []render.TextNode  `json:"nodes,omitempty"`
}

func (s *Server) anchors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := AnchorsResponse{
		Anchors:      s.opts.Session.Anchors(),
		PlacedLabels: s.opts.Controller.PlacedLabels(),
	}
	if resp.Anchors == nil {
		resp.Anchors = []arsession.Anchor{}
	}
	if s.opts.Nodes != nil {
		resp.Nodes = s.opts.Nodes.Nodes()
	}
	httputil.WriteJSONOK(w, resp)
}

// DetectionsRequest is the body accepted by /api/detections.
type DetectionsRequest struct {
	FrameSeq   uint64                   `json:"frame_seq"`
	Detections []detect.DetectionResult `json:"detections"`
}

// DetectionsResponse reports whether posted detections replaced the candidate.
type DetectionsResponse struct {
	Updated   bool              `json:"updated"`
	Candidate *detect.Candidate `json:"candidate,omitempty"`
}

func (s *Server) detections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req DetectionsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, "invalid detections: "+err.Error())
		return
	}
	for i, d := range req.Detections {
		if !d.BoundingBox.IsUnitBounded() {
			httputil.BadRequest(w, "detection "+strconv.Itoa(i)+": bounding_box must be normalized to [0, 1]")
			return
		}
	}

	_, updated := s.opts.Selector.Update(s.ctx, req.FrameSeq, req.Detections)
	resp := DetectionsResponse{Updated: updated}
	if c, ok := s.opts.Selector.Current(); ok {
		resp.Candidate = &c
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) label(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.opts.Board == nil {
		httputil.NotFound(w, "label display disabled")
		return
	}
	httputil.WriteJSONOK(w, s.opts.Board.Current())
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.opts.Runner == nil {
		httputil.WriteJSONOK(w, detect.RunnerStats{})
		return
	}
	httputil.WriteJSONOK(w, s.opts.Runner.Stats())
}

func (s *Server) version(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}
