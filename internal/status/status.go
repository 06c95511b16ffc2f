// Package status serves the operational status surface: health, status, endpoints and metrics.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/executor"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/pipeline"
)

// EndpointSource reports connection pool state.
type EndpointSource interface {
	Snapshot() []domain.EndpointState
	Healthy() int
	IsDown() bool
}

// SlotSource reports the tracked chain position.
type SlotSource interface {
	Current() (domain.SlotState, error)
	SlotDuration() time.Duration
}

// ExecutorSource reports executor counters.
type ExecutorSource interface {
	Stats() executor.Stats
}

// PipelineSource reports pipeline counters. Optional.
type PipelineSource interface {
	Stats() pipeline.Stats
}

// Response is the JSON body of GET /status.
type Response struct {
	Status         string                 `json:"status"`
	Uptime         string                 `json:"uptime"`
	Pending        int                    `json:"pending"`
	Queued         int                    `json:"queued"`
	InFlight       int                    `json:"in_flight"`
	Slot           int64                  `json:"slot"`
	SlotDurationMS int64                  `json:"slot_duration_ms"`
	BlockhashAgeMS int64                  `json:"blockhash_age_ms"`
	BlockhashError string                 `json:"blockhash_error,omitempty"`
	PipelineDown   bool                   `json:"pipeline_down"`
	Endpoints      []domain.EndpointState `json:"endpoints"`
	Executor       executor.Stats         `json:"executor"`
	Pipeline       *pipeline.Stats        `json:"pipeline,omitempty"`
}

// Server exposes component state over HTTP.
type Server struct {
	endpoints EndpointSource
	slots     SlotSource
	exec      ExecutorSource
	pipe      PipelineSource
	logger    *zap.Logger
	started   time.Time
	now       func() time.Time
}

// NewServer creates a status server. pipe may be nil.
func NewServer(endpoints EndpointSource, slots SlotSource, exec ExecutorSource, pipe PipelineSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		endpoints: endpoints,
		slots:     slots,
		exec:      exec,
		pipe:      pipe,
		logger:    logger,
		started:   time.Now(),
		now:       time.Now,
	}
}

// Router returns the HTTP routes.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/endpoints", s.handleEndpoints).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	return r
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("status server shutdown", zap.Error(err))
		}
		return nil
	}
}

// healthy is true when at least one endpoint is healthy and the blockhash is fresh.
func (s *Server) healthy() (bool, string) {
	if s.endpoints.Healthy() == 0 {
		return false, "no healthy endpoints"
	}
	if _, err := s.slots.Current(); err != nil {
		return false, err.Error()
	}
	return true, "ok"
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ok, reason := s.healthy()
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(reason))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	st := s.exec.Stats()
	resp := Response{
		Status:         "ok",
		Uptime:         now.Sub(s.started).Round(time.Second).String(),
		Pending:        st.Pending,
		Queued:         st.Queued,
		InFlight:       st.InFlight,
		SlotDurationMS: s.slots.SlotDuration().Milliseconds(),
		PipelineDown:   s.endpoints.IsDown(),
		Endpoints:      s.endpoints.Snapshot(),
		Executor:       st,
	}
	if ok, _ := s.healthy(); !ok {
		resp.Status = "degraded"
	}

	slot, err := s.slots.Current()
	if err != nil {
		resp.BlockhashError = err.Error()
	}
	if !slot.ObservedAt.IsZero() {
		resp.Slot = slot.Slot
		resp.BlockhashAgeMS = slot.Age(now).Milliseconds()
	}
	if s.pipe != nil {
		ps := s.pipe.Stats()
		resp.Pipeline = &ps
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleEndpoints(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.endpoints.Snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	body, err := sonnet.Marshal(v)
	if err != nil {
		s.logger.Error("encode status", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
