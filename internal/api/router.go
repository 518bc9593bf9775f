package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/Harshitk-cp/concord/internal/api/handlers"
	mw "github.com/Harshitk-cp/concord/internal/api/middleware"
	"github.com/Harshitk-cp/concord/internal/config"
	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/service"
	"github.com/Harshitk-cp/concord/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Stores bundles the persistence backends the app runs on. Either the file
// or the postgres implementations satisfy it.
type Stores struct {
	Conflicts  domain.ConflictStore
	Votes      domain.VoteStore
	Evolutions domain.EvolutionStore
}

// App holds the router and the services behind it for lifecycle management.
type App struct {
	Router     *chi.Mux
	Conflicts  *service.ConflictService
	Votes      *service.VoteService
	Evolutions *service.EvolutionService
	Recorder   *service.RecorderService

	startTime time.Time
	metrics   *mw.Collector
}

// NewApp wires stores, services and handlers, and replays persisted state
// into memory. db is nil when running on the file backend; when set it backs
// the health check.
func NewApp(ctx context.Context, stores Stores, db *pgxpool.Pool, logger *zap.Logger) (*App, error) {
	policy := service.ResolutionPolicy{
		MinVotes: config.MinVotes(),
		WinRatio: config.WinRatio(),
	}

	// Services
	conflictSvc := service.NewConflictService(stores.Conflicts, policy, logger)
	voteSvc := service.NewVoteService(stores.Votes, conflictSvc, logger)
	evolutionSvc := service.NewEvolutionService(stores.Evolutions, logger)

	// Replay order matters: conflicts before votes, and both before the
	// recorder primes its dedup set.
	if err := conflictSvc.Load(ctx); err != nil {
		return nil, err
	}
	if err := voteSvc.Load(ctx); err != nil {
		return nil, err
	}
	if err := evolutionSvc.Load(ctx); err != nil {
		return nil, err
	}

	recorderSvc := service.NewRecorderService(conflictSvc, voteSvc, evolutionSvc, logger)

	// Handlers
	conflictHandler := handlers.NewConflictHandler(conflictSvc, voteSvc, recorderSvc)
	voteHandler := handlers.NewVoteHandler(voteSvc)
	evolutionHandler := handlers.NewEvolutionHandler(evolutionSvc)
	statsHandler := handlers.NewStatsHandler(conflictSvc, voteSvc, evolutionSvc)

	r := chi.NewRouter()

	app := &App{
		Router:     r,
		Conflicts:  conflictSvc,
		Votes:      voteSvc,
		Evolutions: evolutionSvc,
		Recorder:   recorderSvc,
		startTime:  time.Now(),
		metrics:    mw.NewCollector(),
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.metrics.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health
	r.Get("/health", healthHandler(db))

	// Metrics
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		// Conflicts
		r.Route("/conflicts", func(r chi.Router) {
			r.Post("/", conflictHandler.Create)
			r.Get("/", conflictHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conflictHandler.GetByID)
				r.Post("/resolve", conflictHandler.Resolve)
				r.Get("/votes", conflictHandler.Votes)
				r.Get("/tally", conflictHandler.Tally)
			})
		})

		// Votes
		r.Post("/votes", voteHandler.Submit)
		r.Get("/votes/{conflictID}/{userID}", voteHandler.GetByUser)

		// Concept evolution history
		r.Route("/concepts/{id}", func(r chi.Router) {
			r.Get("/history", evolutionHandler.History)
			r.Get("/latest", evolutionHandler.Latest)
			r.Get("/versions/{version}", evolutionHandler.Version)
			r.Post("/evolutions", evolutionHandler.Record)
		})

		// Stats
		r.Get("/stats", statsHandler.Get)
	})

	return app, nil
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)
		snap := app.metrics.Snapshot()

		response := map[string]any{
			"uptime_seconds":         uptime.Seconds(),
			"uptime_human":           uptime.Round(time.Second).String(),
			"request_count":          snap.Requests,
			"error_count":            snap.Errors,
			"requests_by_collection": snap.ByCollection,
			"goroutines":             runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure both store backends satisfy the domain interfaces at compile time.
var (
	_ domain.ConflictStore  = (*store.FileConflictStore)(nil)
	_ domain.VoteStore      = (*store.FileVoteStore)(nil)
	_ domain.EvolutionStore = (*store.FileEvolutionStore)(nil)
	_ domain.ConflictStore  = (*store.PGConflictStore)(nil)
	_ domain.VoteStore      = (*store.PGVoteStore)(nil)
	_ domain.EvolutionStore = (*store.PGEvolutionStore)(nil)
)
