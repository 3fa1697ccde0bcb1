// Package web serves the overlay over HTTP: a small REST API for markers
// and the event log, and a websocket that streams board changes,
// announcements and notices to browser map clients.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/unklstewy/traffic-overlay/internal/db"
	"github.com/unklstewy/traffic-overlay/internal/surface"
	"github.com/unklstewy/traffic-overlay/pkg/config"
	"github.com/unklstewy/traffic-overlay/pkg/overlay"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
	shutdownTimeout   = 10 * time.Second
)

// MarkerLister returns the overlay's current markers.
type MarkerLister interface {
	Markers(ctx context.Context) ([]overlay.MarkerView, error)
}

// EventLog is the read side of the event store.
type EventLog interface {
	RecentEvents(ctx context.Context, limit int) ([]db.EventRecord, error)
	GetStats(ctx context.Context) (map[string]int64, error)
}

// Options configures a Server. Events and Health are optional.
type Options struct {
	Config  config.ServerConfig
	Board   *surface.Board
	Markers MarkerLister
	Hub     *Hub
	Events  EventLog
	Health  func(ctx context.Context) bool
	State   func() overlay.State
}

// Server holds the HTTP router and its dependencies.
type Server struct {
	opts     Options
	router   *chi.Mux
	upgrader websocket.Upgrader
	baseCtx  context.Context
}

// NewServer builds the router.
func NewServer(opts Options) *Server {
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}
	s := &Server{
		opts:    opts,
		router:  chi.NewRouter(),
		baseCtx: context.Background(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/markers", s.handleGetMarkers)
		r.Get("/board", s.handleGetBoard)
		r.Get("/icons", s.handleGetIcons)
		r.Get("/events", s.handleGetEvents)
		r.Get("/events/stats", s.handleGetEventStats)
	})
	r.Get("/ws", s.handleWebSocket)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	addr := net.JoinHostPort(s.opts.Config.Host, s.opts.Config.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.opts.Hub.Close()
	return httpServer.Shutdown(shutdownCtx)
}

func (s *Server) allowedOrigins() []string {
	if len(s.opts.Config.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.opts.Config.AllowedOrigins
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.allowedOrigins() {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{"status": "ok"}
	code := http.StatusOK

	if s.opts.State != nil {
		status["overlay"] = s.opts.State().String()
	}
	if s.opts.Health != nil {
		healthy := s.opts.Health(r.Context())
		status["database"] = healthy
		if !healthy {
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	respondJSON(w, code, status)
}

func (s *Server) handleGetMarkers(w http.ResponseWriter, r *http.Request) {
	markers, err := s.opts.Markers.Markers(r.Context())
	if errors.Is(err, overlay.ErrNotEnabled) {
		respondError(w, http.StatusServiceUnavailable, "overlay is not enabled")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to list markers")
		respondError(w, http.StatusInternalServerError, "failed to list markers")
		return
	}
	if markers == nil {
		markers = []overlay.MarkerView{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"markers": markers,
		"count":   len(markers),
	})
}

func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.snapshot())
}

// iconView lists an icon resource for map clients to preload.
type iconView struct {
	ID             string  `json:"id"`
	Sector         string  `json:"sector"`
	Degrees        float64 `json:"degrees"`
	Classification string  `json:"classification"`
}

func (s *Server) handleGetIcons(w http.ResponseWriter, r *http.Request) {
	icons := overlay.AllIcons()
	out := make([]iconView, 0, len(icons))
	for _, i := range icons {
		out = append(out, iconView{
			ID:             i.ID(),
			Sector:         i.Sector.String(),
			Degrees:        i.Sector.Degrees(),
			Classification: i.Classification.String(),
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"icons": out,
		"count": len(out),
	})
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	if s.opts.Events == nil {
		respondError(w, http.StatusNotFound, "event log is disabled")
		return
	}

	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxEventLimit {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	events, err := s.opts.Events.RecentEvents(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read events")
		respondError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	if events == nil {
		events = []db.EventRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleGetEventStats(w http.ResponseWriter, r *http.Request) {
	if s.opts.Events == nil {
		respondError(w, http.StatusNotFound, "event log is disabled")
		return
	}
	stats, err := s.opts.Events.GetStats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read event stats")
		respondError(w, http.StatusInternalServerError, "failed to read event stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Unable to upgrade websocket")
		return
	}
	s.opts.Hub.serve(s.baseCtx, conn, s.snapshot)
}

func (s *Server) snapshot() Message {
	msg := Message{Type: MessageSnapshot, Markers: []surface.Placed{}}
	if s.opts.Board != nil {
		msg.Markers, msg.Version = s.opts.Board.Snapshot()
	}
	return msg
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
