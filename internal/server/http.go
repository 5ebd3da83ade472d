package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"AcctLedger/internal/ingestion"
	"AcctLedger/internal/observability"
	"AcctLedger/internal/query"
)

// Server is the HTTP/JSON API: query endpoints over the read models,
// admin endpoints for manual injection and maintenance, plus health
// and metrics.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	addr       string

	db      *sql.DB
	queries *query.QueryService
	admin   *ingestion.AdminIngestService
	health  *observability.HealthChecker
	metrics *observability.Metrics
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	DB            *sql.DB
	QueryService  *query.QueryService
	AdminIngest   *ingestion.AdminIngestService
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
}

func New(addr string, deps Deps) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		addr:    addr,
		db:      deps.DB,
		queries: deps.QueryService,
		admin:   deps.AdminIngest,
		health:  deps.HealthChecker,
		metrics: deps.Metrics,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if s.health != nil {
		s.router.Get("/healthz", s.health.LivenessHandler)
		s.router.Get("/readyz", s.health.ReadinessHandler)
	}
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Get("/valuation", s.handleGetValuation)
			r.Get("/positions", s.handleGetPositions)
			r.Get("/positions/rebuilt", s.handleGetRebuiltPositions)
			r.Get("/transactions", s.handleGetTransactions)
			r.Get("/cash-movements", s.handleGetCashMovements)
			r.Get("/realized-pnl", s.handleGetRealizedPnL)
			r.Post("/reconcile", s.handleReconcile)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/accounts/{accountID}/deposits", s.handleInjectDeposit)
			r.Post("/accounts/{accountID}/withdrawals", s.handleInjectWithdrawal)
			r.Post("/prices", s.handleInjectPrice)
			r.Post("/projections/rebuild", s.handleRebuildProjections)
		})
	})
}

// Start runs the HTTP server until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP server listening on %s", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// --- response helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("WARN: write response: %v", err)
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) writeError(w http.ResponseWriter, endpoint string, status int, msg string) {
	if s.metrics != nil {
		s.metrics.QueryErrors.WithLabelValues(endpoint, http.StatusText(status)).Inc()
	}
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) observe(endpoint string, start time.Time, ok bool) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	s.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
	s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
