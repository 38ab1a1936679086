// Package web serves the dashboard pages and the JSON planning API.
package web

import (
	"bufio"
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"sflcompanion.app/internal/farm"
	"sflcompanion.app/internal/planner"
)

// Snapshots is the provider surface the handlers need.
type Snapshots interface {
	Snapshot(ctx context.Context, id uint64) (*farm.Snapshot, error)
	Prices(ctx context.Context) (*farm.PriceBook, error)
}

type UpstreamStats struct {
	CacheHits     uint64
	CacheMisses   uint64
	CacheEntries  int
	Requests      uint64
	BodyCacheHits uint64
	Failures      uint64
}

type Options struct {
	Snapshots Snapshots
	Planner   *planner.Planner
	Logger    *log.Logger

	// Countdown serves the construction countdown socket when set.
	Countdown http.Handler
	// UpstreamStats feeds /metrics when set.
	UpstreamStats func() UpstreamStats
	// ImagesDir holds the item icons served under /images/.
	ImagesDir string
}

//go:embed templates/*.html
var templateFS embed.FS

type Server struct {
	snaps     Snapshots
	plan      *planner.Planner
	log       *log.Logger
	countdown http.Handler
	upStats   func() UpstreamStats
	images    string
	tmpl      *template.Template
	started   time.Time

	requests  atomic.Uint64
	responses [6]atomic.Uint64 // by status class, index 1..5
	plans     atomic.Uint64
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	tmpl := template.Must(template.New("").Funcs(templateFuncs(opts.Planner)).ParseFS(templateFS, "templates/*.html"))
	return &Server{
		snaps:     opts.Snapshots,
		plan:      opts.Planner,
		log:       opts.Logger,
		countdown: opts.Countdown,
		upStats:   opts.UpstreamStats,
		images:    opts.ImagesDir,
		tmpl:      tmpl,
		started:   time.Now(),
	}
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /farm", s.handleFarmForm)
	mux.HandleFunc("GET /farm/{farm_id}", s.handleDashboard)
	mux.HandleFunc("GET /api/goal_requirements/{farm_id}/{from_island}/{from_level}", s.handleGoalRequirements)
	mux.HandleFunc("GET /api/catalog", s.handleCatalog)
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	if s.countdown != nil {
		mux.Handle("GET /ws/construction/{farm_id}", s.countdown)
	}
	if s.images != "" {
		mux.Handle("GET /images/", http.StripPrefix("/images/", http.FileServer(http.Dir(s.images))))
	}
	return s.withRequestID(mux)
}

type ctxKey struct{}

// RequestID returns the id assigned to the request, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		rw.Header().Set("X-Request-ID", id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))

		s.requests.Add(1)
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if c := rec.status / 100; c >= 1 && c <= 5 {
			s.responses[c].Add(1)
		}
		s.log.Printf("req=%s %s %s %d %s", id, r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the countdown socket upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) writeJSON(rw http.ResponseWriter, r *http.Request, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		s.log.Printf("req=%s encode: %v", RequestID(r.Context()), err)
		http.Error(rw, "internal error", http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.Header().Add("Vary", "Accept-Encoding")
	if buf.Len() < 1024 || !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		rw.WriteHeader(status)
		_, _ = rw.Write(buf.Bytes())
		return
	}
	rw.Header().Set("Content-Encoding", "gzip")
	rw.WriteHeader(status)
	zw := gzip.NewWriter(rw)
	_, _ = zw.Write(buf.Bytes())
	_ = zw.Close()
}

func (s *Server) writeAPIError(rw http.ResponseWriter, r *http.Request, status int, code, msg, suggestion string) {
	s.writeJSON(rw, r, status, apiError{Error: msg, Code: code, Suggestion: suggestion})
}

func (s *Server) render(rw http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		s.log.Printf("req=%s render %s: %v", RequestID(r.Context()), name, err)
		http.Error(rw, "internal error", http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	rw.WriteHeader(status)
	_, _ = rw.Write(buf.Bytes())
}
