package rest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/fortuna/linemate/internal/backfill"
	"github.com/fortuna/linemate/internal/logging"
	"github.com/fortuna/linemate/internal/service"
)

// Deps are the services the API exposes. Backfill is optional; without it the backfill
// routes are not registered.
type Deps struct {
	Queries  *service.QueryService
	Players  *service.PlayerService
	Pipeline *service.PipelineService
	Backfill *backfill.Service

	// PriorFor names the season a season is compared against. Defaults to the previous season.
	PriorFor func(season string) string
	// Checks are run by /health, keyed by component name.
	Checks map[string]HealthChecker
}

// Server represents the REST API server
type Server struct {
	port   string
	server *http.Server
}

// NewServer creates a new REST API server
func NewServer(port string, deps Deps, logger *zap.Logger) *Server {
	return &Server{
		port: port,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%s", port),
			Handler: NewRouter(deps, logger),
		},
	}
}

// NewRouter builds the route table with its middleware applied.
func NewRouter(deps Deps, logger *zap.Logger) http.Handler {
	logger = logging.OrNop(logger)
	handler := NewHandler(deps, logger)

	router := mux.NewRouter()
	router.Use(logging.RequestLogger(logger))

	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	// Seasons
	api.HandleFunc("/seasons/{season}/summary", handler.GetSummary).Methods("GET")
	api.HandleFunc("/seasons/{season}/correlations", handler.GetCorrelations).Methods("GET")
	api.HandleFunc("/seasons/{season}/games/query", handler.QueryGames).Methods("POST")
	api.HandleFunc("/seasons/{season}/pipeline", handler.RunPipeline).Methods("POST")
	api.HandleFunc("/seasons/{season}/runs", handler.GetRuns).Methods("GET")

	// Teams
	api.HandleFunc("/seasons/{season}/teams", handler.GetTeams).Methods("GET")
	api.HandleFunc("/seasons/{season}/teams/{team}/roster", handler.GetRoster).Methods("GET")
	api.HandleFunc("/seasons/{season}/teams/{team}/trios", handler.GetTrios).Methods("GET")
	api.HandleFunc("/seasons/{season}/teams/{team}/trios/count", handler.GetTrioCount).Methods("GET")

	// Players
	api.HandleFunc("/seasons/{season}/players/suggest", handler.SuggestPlayers).Methods("GET")
	api.HandleFunc("/seasons/{season}/players/{player}/involvement", handler.GetInvolvement).Methods("GET")

	// Backfill operations
	if deps.Backfill != nil {
		backfillHandler := NewBackfillHandler(deps.Backfill)
		api.HandleFunc("/backfill", backfillHandler.HandleBackfillRequest).Methods("POST")
		api.HandleFunc("/backfill/status", backfillHandler.HandleBackfillStatus).Methods("GET")
		api.HandleFunc("/backfill/jobs/{jobID}", backfillHandler.HandleGetJob).Methods("GET")
	}

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(logger)),
		handlers.PrintRecoveryStack(false),
	)
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	return recovery(cors(router))
}

// Start starts the REST API server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
