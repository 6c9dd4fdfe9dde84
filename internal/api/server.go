// Package api serves the beacon manager over HTTP.
//
// Routes live under /api/v1. Replies use a JSON envelope
// {"result":"ok"|"error", "data", "code", "message", "correlationId"}.
// When an auth secret is configured every route except health requires an
// HS256 bearer token.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bft-labs/beacons/pkg/beacons"
	"github.com/bft-labs/beacons/pkg/log"
)

const (
	prefix     = "/api/v1"
	healthPath = prefix + "/health"

	// slowRequest is logged at warn level.
	slowRequest = 500 * time.Millisecond
)

// Controller is the part of *beacons.Manager the API drives.
type Controller interface {
	Create(ctx context.Context, spec beacons.Spec) (beacons.BeaconInfo, error)
	Get(ctx context.Context, ref beacons.Ref) (beacons.BeaconInfo, error)
	List(ctx context.Context) ([]beacons.BeaconInfo, error)
	Save(ctx context.Context, ref beacons.Ref, start bool) (beacons.BeaconInfo, error)
	StartBeacon(ctx context.Context, ref beacons.Ref) (beacons.BeaconInfo, error)
	Pause(ctx context.Context, ref beacons.Ref) (beacons.BeaconInfo, error)
	StopBeacon(ctx context.Context, ref beacons.Ref) (beacons.BeaconInfo, error)
	Delete(ctx context.Context, ref beacons.Ref) error
	Edit(ctx context.Context, ref beacons.Ref, c beacons.Changes) (beacons.BeaconInfo, error)
	SetRadioEnabled(enabled bool) error
	RadioEnabled() bool
	Status() beacons.State
	HostState() beacons.HostState
	Subscribe(buffer int) (<-chan beacons.Event, func())
}

var _ Controller = (*beacons.Manager)(nil)

// Config configures a Server.
type Config struct {
	Addr string

	// AuthSecret enables bearer authentication when set.
	AuthSecret string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	Logger log.Logger
}

// Server is the HTTP API server.
type Server struct {
	cfg        Config
	ctrl       Controller
	verifier   *Verifier
	logger     log.Logger
	upgrader   websocket.Upgrader
	httpServer *http.Server
	startTime  time.Time
}

// NewServer creates a server for ctrl.
func NewServer(ctrl Controller, cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNoopLogger()
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	s := &Server{
		cfg:       cfg,
		ctrl:      ctrl,
		logger:    cfg.Logger,
		startTime: time.Now(),
	}
	if cfg.AuthSecret != "" {
		v, err := NewVerifier(cfg.AuthSecret)
		if err != nil {
			return nil, err
		}
		s.verifier = v
	}
	return s, nil
}

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestLogger)
	if s.verifier != nil {
		r.Use(s.verifier.requireAuth)
	}

	api := r.PathPrefix(prefix).Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/beacons", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/beacons", s.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/beacons/{ref}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/beacons/{ref}", s.handleEdit).Methods(http.MethodPatch)
	api.HandleFunc("/beacons/{ref}", s.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/beacons/{ref}/{action:start|pause|stop|save}", s.handleAction).Methods(http.MethodPost)
	api.HandleFunc("/radio", s.handleRadioGet).Methods(http.MethodGet)
	api.HandleFunc("/radio", s.handleRadioPut).Methods(http.MethodPut)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "Route not found")
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", log.String("addr", s.cfg.Addr), log.Bool("auth", s.verifier != nil))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		d := time.Since(start)
		fields := []log.Field{
			log.String("method", r.Method),
			log.String("path", r.URL.Path),
			log.Int("status", rw.statusCode),
			log.Duration("duration", d),
		}
		switch {
		case rw.statusCode >= 500:
			s.logger.Error("request failed", fields...)
		case rw.statusCode >= 400 || d > slowRequest:
			s.logger.Warn("request", fields...)
		default:
			s.logger.Debug("request", fields...)
		}
	})
}

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"manager":       s.ctrl.Status().String(),
		"host":          s.ctrl.HostState().String(),
		"radio_enabled": s.ctrl.RadioEnabled(),
		"uptime":        time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := s.ctrl.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if list == nil {
		list = []beacons.BeaconInfo{}
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var spec beacons.Spec
	if err := decode(r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	info, err := s.ctrl.Create(r.Context(), spec)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusCreated, info)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ref, ok := refOf(w, r)
	if !ok {
		return
	}
	info, err := s.ctrl.Get(r.Context(), ref)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, info)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	ref, ok := refOf(w, r)
	if !ok {
		return
	}
	var c beacons.Changes
	if err := decode(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if c.Empty() {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "no changes given")
		return
	}
	info, err := s.ctrl.Edit(r.Context(), ref, c)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, info)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ref, ok := refOf(w, r)
	if !ok {
		return
	}
	if err := s.ctrl.Delete(r.Context(), ref); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	ref, ok := refOf(w, r)
	if !ok {
		return
	}

	var (
		info beacons.BeaconInfo
		err  error
		ctx  = r.Context()
	)
	switch mux.Vars(r)["action"] {
	case "start":
		info, err = s.ctrl.StartBeacon(ctx, ref)
	case "pause":
		info, err = s.ctrl.Pause(ctx, ref)
	case "stop":
		info, err = s.ctrl.StopBeacon(ctx, ref)
	case "save":
		info, err = s.ctrl.Save(ctx, ref, r.URL.Query().Get("start") == "true")
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, info)
}

type radioBody struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleRadioGet(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]bool{"enabled": s.ctrl.RadioEnabled()})
}

func (s *Server) handleRadioPut(w http.ResponseWriter, r *http.Request) {
	var body radioBody
	if err := decode(r, &body); err != nil || body.Enabled == nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, `body must be {"enabled": bool}`)
		return
	}
	if err := s.ctrl.SetRadioEnabled(*body.Enabled); err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"enabled": s.ctrl.RadioEnabled()})
}

func refOf(w http.ResponseWriter, r *http.Request) (beacons.Ref, bool) {
	ref, err := beacons.ParseRef(mux.Vars(r)["ref"])
	if err != nil {
		writeErr(w, err)
		return beacons.Ref{}, false
	}
	return ref, true
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
