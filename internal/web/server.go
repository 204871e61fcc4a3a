// Package web provides the HTTP surface of the pw-dashboard daemon: the
// status page, the JSON API used by the browser and the metrics endpoint.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sweeney/pw-dashboard/internal/circle"
	"github.com/sweeney/pw-dashboard/internal/metrics"
	"github.com/sweeney/pw-dashboard/internal/mqtt"
	"github.com/sweeney/pw-dashboard/internal/schedule"
	"github.com/sweeney/pw-dashboard/internal/status"
)

// Options wires the server to the rest of the daemon.
type Options struct {
	Addr      string
	Tracker   *status.Tracker
	Devices   *circle.Editor
	Schedules *schedule.Store
	Editor    *schedule.Editor
	Commands  mqtt.Commander
	Prefix    string // command topic root

	// Reload re-reads both device documents and installs the result.
	Reload func(ctx context.Context) error

	Metrics  metrics.Collector
	Gatherer prometheus.Gatherer
	Location *time.Location // for status lines
	Log      zerolog.Logger
}

// Server serves the status page and API over HTTP.
type Server struct {
	httpServer *http.Server
	router     chi.Router

	tracker   *status.Tracker
	devices   *circle.Editor
	schedules *schedule.Store
	editor    *schedule.Editor
	commands  mqtt.Commander
	prefix    string
	reload    func(ctx context.Context) error
	metrics   metrics.Collector
	loc       *time.Location
	log       zerolog.Logger
}

// New creates a Server from opts.
func New(opts Options) *Server {
	s := &Server{
		tracker:   opts.Tracker,
		devices:   opts.Devices,
		schedules: opts.Schedules,
		editor:    opts.Editor,
		commands:  opts.Commands,
		prefix:    opts.Prefix,
		reload:    opts.Reload,
		metrics:   opts.Metrics,
		loc:       opts.Location,
		log:       opts.Log,
	}
	if s.metrics == nil {
		s.metrics = metrics.Noop()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/circles", s.handleCircles)
		r.Route("/circles/{mac}", func(r chi.Router) {
			r.Get("/status", s.handleCircleStatus)
			r.Post("/switch", s.handleCommand(mqtt.CmdSwitch))
			r.Post("/schedule", s.handleCommand(mqtt.CmdSchedule))
			r.Get("/edit", s.handleDeviceOpen)
			r.Put("/", s.handleDeviceConfirm)
		})
		r.Post("/config/reload", s.handleReload)

		r.Get("/schedules", s.handleScheduleList)
		r.Post("/schedules", s.handleScheduleCreate)
		r.Delete("/schedules/{name}", s.handleScheduleDelete)
		r.Get("/schedules/{name}.xlsx", s.handleScheduleExport)

		r.Route("/editor", func(r chi.Router) {
			r.Get("/", s.handleEditorGet)
			r.Post("/open", s.handleEditorOpen)
			r.Patch("/cells", s.handleEditorCells)
			r.Put("/description", s.handleEditorDescription)
			r.Post("/save", s.handleEditorSave)
			r.Post("/revert", s.handleEditorRevert)
			r.Post("/import", s.handleEditorImport)
			r.Get("/export.xlsx", s.handleEditorExport)
		})
	})

	s.router = r
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("starting to listen for connections")
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request served")
		})
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.Error().Err(err).Msg("render status page")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
