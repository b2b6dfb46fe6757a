package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/fortuna/linemate/internal/analysis"
	"github.com/fortuna/linemate/internal/backfill"
	"github.com/fortuna/linemate/internal/ingest/nhl"
	"github.com/fortuna/linemate/internal/service"
	"github.com/fortuna/linemate/internal/store"
)

const defaultRunsLimit = 20

// HealthChecker is anything /health can check.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	queries  *service.QueryService
	players  *service.PlayerService
	pipeline *service.PipelineService
	priorFor func(string) string
	checks   map[string]HealthChecker
	logger   *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	priorFor := deps.PriorFor
	if priorFor == nil {
		priorFor = backfill.PreviousSeason
	}
	return &Handler{
		queries:  deps.Queries,
		players:  deps.Players,
		pipeline: deps.Pipeline,
		priorFor: priorFor,
		checks:   deps.Checks,
		logger:   logger,
	}
}

// HealthCheck reports the state of every registered dependency. Any failure turns the
// response into a 503.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.HealthCheck(r.Context()); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":     state,
		"service":    "linemate",
		"components": components,
	})
}

// GetSummary handles GET /seasons/{season}/summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	season, ok := seasonParam(w, r)
	if !ok {
		return
	}

	summary, err := h.queries.Summary(r.Context(), season)
	if err != nil {
		h.fail(w, "Failed to summarise season", err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// GetCorrelations handles GET /seasons/{season}/correlations
//
// Query parameters: player (substring of either name), team, min_total, min_prior_total and
// prior (defaults to the configured comparison season).
func (h *Handler) GetCorrelations(w http.ResponseWriter, r *http.Request) {
	season, ok := seasonParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	prior := strings.TrimSpace(q.Get("prior"))
	if prior == "" {
		prior = h.priorFor(season)
	} else if !nhl.ValidSeason(prior) {
		respondError(w, http.StatusBadRequest, "Invalid prior season", nil)
		return
	}

	filter := analysis.CorrelationFilter{
		Name: q.Get("player"),
		Team: strings.ToUpper(strings.TrimSpace(q.Get("team"))),
	}
	var err error
	if filter.MinTotalCurrent, err = optionalInt(q.Get("min_total")); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid min_total", err)
		return
	}
	if filter.MinTotalPrior, err = optionalInt(q.Get("min_prior_total")); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid min_prior_total", err)
		return
	}

	rows, err := h.queries.Correlations(r.Context(), season, prior, filter)
	if err != nil {
		h.fail(w, "Failed to fetch correlations", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"season":       season,
		"prior_season": prior,
		"count":        len(rows),
		"pairs":        rows,
	})
}

type gamesQueryRequest struct {
	Conditions []analysis.GameCondition `json:"conditions"`
	RequireAll *bool                    `json:"require_all"`
}

// QueryGames handles POST /seasons/{season}/games/query
func (h *Handler) QueryGames(w http.ResponseWriter, r *http.Request) {
	season, ok := seasonParam(w, r)
	if !ok {
		return
	}

	var req gamesQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	requireAll := true
	if req.RequireAll != nil {
		requireAll = *req.RequireAll
	}

	games, err := h.queries.Games(r.Context(), season, req.Conditions, requireAll)
	if err != nil {
		h.fail(w, "Failed to query games", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"season":      season,
		"require_all": requireAll,
		"count":       len(games),
		"games":       games,
	})
}

// RunPipeline handles POST /seasons/{season}/pipeline. The run is synchronous; a run that
// fails still returns its record.
func (h *Handler) RunPipeline(w http.ResponseWriter, r *http.Request) {
	season, ok := seasonParam(w, r)
	if !ok {
		return
	}
	prior := strings.TrimSpace(r.URL.Query().Get("prior"))
	if prior == "" {
		prior = h.priorFor(season)
	}

	run, err := h.pipeline.Run(r.Context(), season, prior, service.TriggerAPI)
	if err != nil {
		status := statusFor(err)
		if errors.Is(err, service.ErrNoGameLogs) {
			status = http.StatusNotFound
		}
		respondJSON(w, status, map[string]interface{}{
			"error": err.Error(),
			"run":   run,
		})
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// GetRuns handles GET /seasons/{season}/runs
func (h *Handler) GetRuns(w http.ResponseWriter, r *http.Request) {
	season, ok := seasonParam(w, r)
	if !ok {
		return
	}
	limit, err := intParam(r.URL.Query().Get("limit"), defaultRunsLimit)
	if err != nil || limit <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	runs, err := h.pipeline.RecentRuns(r.Context(), season, limit)
	if err != nil {
		h.fail(w, "Failed to fetch pipeline runs", err)
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

// GetTeams handles GET /seasons/{season}/teams
func (h *Handler) GetTeams(w http.ResponseWriter, r *http.Request) {
	season, ok := seasonParam(w, r)
	if !ok {
		return
	}

	teams, err := h.players.Teams(r.Context(), season)
	if err != nil {
		h.fail(w, "Failed to fetch teams", err)
		return
	}
	respondJSON(w, http.StatusOK, teams)
}

// GetRoster handles GET /seasons/{season}/teams/{team}/roster
func (h *Handler) GetRoster(w http.ResponseWriter, r *http.Request) {
	season, ok := seasonParam(w, r)
	if !ok {
		return
	}
	team := mux.Vars(r)["team"]

	roster, err := h.players.Roster(r.Context(), season, team)
	if err != nil {
		h.fail(w, "Failed to fetch roster", err)
		return
	}
	if len(roster) == 0 {
		respondError(w, http.StatusNotFound, "Team not found", analysis.ErrUnknownTeam)
		return
	}
	respondJSON(w, http.StatusOK, roster)
}

// GetTrios handles GET /seasons/{season}/teams/{team}/trios?stat=&min=&limit=
func (h *Handler) GetTrios(w http.ResponseWriter, r *http.Request) {
	season, ok := seasonParam(w, r)
	if !ok {
		return
	}
	opts, err := trioOptions(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid trio parameters", err)
		return
	}
	team := mux.Vars(r)["team"]

	trios, err := h.queries.Trios(r.Context(), season, team, opts)
	if err != nil {
		h.fail(w, "Failed to rank trios", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"season": season,
		"team":   strings.ToUpper(team),
		"trios":  trios,
	})
}

// GetTrioCount handles GET /seasons/{season}/teams/{team}/trios/count?players=A,B,C
func (h *Handler) GetTrioCount(w http.ResponseWriter, r *http.Request) {
	season, ok := seasonParam(w, r)
	if !ok {
		return
	}
	opts, err := trioOptions(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid trio parameters", err)
		return
	}

	names := strings.Split(r.URL.Query().Get("players"), ",")
	if len(names) != 3 {
		respondError(w, http.StatusBadRequest, "players must name exactly three players", nil)
		return
	}
	var players [3]string
	for i, n := range names {
		players[i] = strings.TrimSpace(n)
	}
	team := mux.Vars(r)["team"]

	count, err := h.queries.TrioCount(r.Context(), season, team, players, opts)
	if err != nil {
		h.fail(w, "Failed to count trio games", err)
		return
	}
	respondJSON(w, http.StatusOK, analysis.TrioRecord{
		Team:    strings.ToUpper(team),
		Players: players,
		Count:   count,
	})
}

// SuggestPlayers handles GET /seasons/{season}/players/suggest?q=&limit=
func (h *Handler) SuggestPlayers(w http.ResponseWriter, r *http.Request) {
	season, ok := seasonParam(w, r)
	if !ok {
		return
	}
	limit, err := intParam(r.URL.Query().Get("limit"), 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	suggestions, err := h.players.Suggest(r.Context(), season, r.URL.Query().Get("q"), limit)
	if err != nil {
		h.fail(w, "Failed to suggest players", err)
		return
	}
	respondJSON(w, http.StatusOK, suggestions)
}

// GetInvolvement handles GET /seasons/{season}/players/{player}/involvement
func (h *Handler) GetInvolvement(w http.ResponseWriter, r *http.Request) {
	season, ok := seasonParam(w, r)
	if !ok {
		return
	}
	player := strings.TrimSpace(mux.Vars(r)["player"])

	summary, err := h.queries.Involvement(r.Context(), season, player)
	if err != nil {
		h.fail(w, "Failed to compute involvement", err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// fail maps err to a status and writes it. Server errors are logged.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
	}
	respondError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, analysis.ErrUnknownStat),
		errors.Is(err, analysis.ErrDuplicatePlayer),
		errors.Is(err, backfill.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, analysis.ErrRosterTooLarge):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, analysis.ErrUnknownTeam),
		errors.Is(err, analysis.ErrUnknownPlayer):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func seasonParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	season := mux.Vars(r)["season"]
	if !nhl.ValidSeason(season) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid season %q (expected e.g. 20232024)", season), nil)
		return "", false
	}
	return season, true
}

func trioOptions(r *http.Request) (analysis.TrioOptions, error) {
	q := r.URL.Query()
	var opts analysis.TrioOptions

	if s := q.Get("stat"); s != "" {
		stat, err := analysis.ParseStat(s)
		if err != nil {
			return opts, err
		}
		opts.Stat = stat
	}
	var err error
	if opts.Threshold, err = intParam(q.Get("min"), 0); err != nil {
		return opts, fmt.Errorf("min: %w", err)
	}
	if opts.Threshold < 0 {
		return opts, fmt.Errorf("min must not be negative")
	}
	if opts.Limit, err = intParam(q.Get("limit"), 0); err != nil {
		return opts, fmt.Errorf("limit: %w", err)
	}
	return opts, nil
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func optionalInt(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
