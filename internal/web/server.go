// Package web serves the operator HTTP API: open positions, breaker state,
// manual reset, trade history and Prometheus metrics.
package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/sniper/internal/domain"
	"github.com/vadiminshakov/sniper/internal/services/breaker"
	"github.com/vadiminshakov/sniper/internal/storage/history"
)

type positionReader interface {
	ActivePositions() []domain.Position
}

type breakerControl interface {
	Status() breaker.Snapshot
	Reset()
}

type historyReader interface {
	RecentPositions(ctx context.Context, limit int) ([]history.ClosedPositionRecord, error)
}

// Server exposes the operator endpoints.
type Server struct {
	Addr      string
	Positions positionReader
	Breaker   breakerControl
	History   historyReader
	Logger    *zap.Logger
}

func NewServer(addr string, positions positionReader, brk breakerControl, hist historyReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Addr: addr, Positions: positions, Breaker: brk, History: hist, Logger: logger}
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	r.HandleFunc("/breaker", s.handleBreakerStatus).Methods(http.MethodGet)
	r.HandleFunc("/breaker/reset", s.handleBreakerReset).Methods(http.MethodPost)
	r.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.Logger.Info("operator api listening", zap.String("addr", s.Addr))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic certificates via ACME
// plus an HTTP server on port 80 for HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(domains) == 0 {
		return errors.New("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Warn("acme server shutdown", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Warn("https server shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Warn("acme server", zap.Error(err))
		}
	}()

	s.Logger.Info("operator api listening with auto tls",
		zap.String("addr", s.Addr),
		zap.Strings("domains", domains))

	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	if s.Positions == nil {
		http.Error(w, "position manager not available", http.StatusServiceUnavailable)
		return
	}
	positions := s.Positions.ActivePositions()
	if positions == nil {
		positions = []domain.Position{}
	}
	s.writeJSON(w, positions)
}

func (s *Server) handleBreakerStatus(w http.ResponseWriter, _ *http.Request) {
	if s.Breaker == nil {
		http.Error(w, "breaker not available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, s.Breaker.Status())
}

func (s *Server) handleBreakerReset(w http.ResponseWriter, _ *http.Request) {
	if s.Breaker == nil {
		http.Error(w, "breaker not available", http.StatusServiceUnavailable)
		return
	}
	s.Breaker.Reset()
	s.Logger.Info("circuit breaker reset via api")
	s.writeJSON(w, s.Breaker.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		http.Error(w, "history not available", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			http.Error(w, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := s.History.RecentPositions(r.Context(), limit)
	if err != nil {
		s.Logger.Error("history query failed", zap.Error(err))
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []history.ClosedPositionRecord{}
	}
	s.writeJSON(w, records)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warn("response encode failed", zap.Error(err))
	}
}
