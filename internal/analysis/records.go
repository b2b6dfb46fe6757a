package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// GameRecord is one player's stat line for one game.
type GameRecord struct {
	PlayerID         int64  `json:"player_id"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	FullName         string `json:"full_name"`
	TeamAbbrev       string `json:"team_abbrev"`
	OpponentAbbrev   string `json:"opponent_abbrev"`
	GameID           int64  `json:"game_id"`
	GameDate         string `json:"game_date"`
	HomeRoadFlag     string `json:"home_road_flag"`
	Goals            int    `json:"goals"`
	Assists          int    `json:"assists"`
	Points           int    `json:"points"`
	PlusMinus        int    `json:"plus_minus"`
	PowerPlayGoals   int    `json:"power_play_goals"`
	PowerPlayPoints  int    `json:"power_play_points"`
	GameWinningGoals int    `json:"game_winning_goals"`
	Shots            int    `json:"shots"`
	Shifts           int    `json:"shifts"`
	PIM              int    `json:"pim"`
	TOI              string `json:"toi"`
	TOISeconds       int    `json:"toi_seconds"`
}

// Value returns the named statistic for this record.
func (r GameRecord) Value(stat Stat) (int, error) {
	switch stat {
	case StatGoals:
		return r.Goals, nil
	case StatAssists:
		return r.Assists, nil
	case StatPoints:
		return r.Points, nil
	case StatShots:
		return r.Shots, nil
	case StatPlusMinus:
		return r.PlusMinus, nil
	case StatPowerPlayGoals:
		return r.PowerPlayGoals, nil
	case StatPowerPlayPoints:
		return r.PowerPlayPoints, nil
	case StatGameWinningGoals:
		return r.GameWinningGoals, nil
	case StatShifts:
		return r.Shifts, nil
	case StatPIM:
		return r.PIM, nil
	case StatTOI:
		return r.TOISeconds, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStat, stat)
	}
}

// FullNameOf derives the display name used as the identity of a player downstream.
func FullNameOf(first, last string) string {
	return strings.TrimSpace(first) + " " + strings.TrimSpace(last)
}

// validate reports the first missing required field, if any.
func (r GameRecord) validate() error {
	switch {
	case r.PlayerID == 0:
		return fmt.Errorf("missing player id")
	case strings.TrimSpace(r.FirstName) == "":
		return fmt.Errorf("player %d: missing first name", r.PlayerID)
	case strings.TrimSpace(r.LastName) == "":
		return fmt.Errorf("player %d: missing last name", r.PlayerID)
	case strings.TrimSpace(r.TeamAbbrev) == "":
		return fmt.Errorf("player %d: missing team", r.PlayerID)
	case r.GameID == 0:
		return fmt.Errorf("player %d: missing game id", r.PlayerID)
	case r.GameDate == "":
		return fmt.Errorf("player %d game %d: missing game date", r.PlayerID, r.GameID)
	}

	if _, err := time.Parse(dateLayout, r.GameDate); err != nil {
		return fmt.Errorf("player %d game %d: invalid game date %q", r.PlayerID, r.GameID, r.GameDate)
	}
	return nil
}

// EntityFailure records a source entity (team roster, player log, game) that could not be fetched.
type EntityFailure struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	Err  string `json:"error"`
}

// IngestReport summarises what happened to a batch of raw rows.
type IngestReport struct {
	Accepted   int             `json:"accepted"`
	Skipped    int             `json:"skipped"`
	Duplicates int             `json:"duplicates"`
	Problems   []string        `json:"problems,omitempty"`
	Failures   []EntityFailure `json:"failures,omitempty"`
}

// maxReportedProblems bounds how many per-row problems are kept on a report.
const maxReportedProblems = 20

func (r *IngestReport) problem(msg string) {
	if len(r.Problems) < maxReportedProblems {
		r.Problems = append(r.Problems, msg)
	}
}

// Store is the immutable, indexed set of a season's GameRecords.
type Store struct {
	season  string
	records []GameRecord

	byTeam   map[string][]int
	byPlayer map[string][]int
	byGame   map[int64][]int
}

// NewStore validates and indexes rows for a season. Rows with a missing required field or a
// repeated (player, game) pair are skipped and counted on the returned report.
func NewStore(season string, rows []GameRecord) (*Store, IngestReport) {
	s := &Store{
		season:   season,
		records:  make([]GameRecord, 0, len(rows)),
		byTeam:   make(map[string][]int),
		byPlayer: make(map[string][]int),
		byGame:   make(map[int64][]int),
	}

	var report IngestReport
	type key struct{ player, game int64 }
	seen := make(map[key]struct{}, len(rows))

	for _, row := range rows {
		if err := row.validate(); err != nil {
			report.Skipped++
			report.problem(err.Error())
			continue
		}

		k := key{row.PlayerID, row.GameID}
		if _, dup := seen[k]; dup {
			report.Duplicates++
			report.problem(fmt.Sprintf("duplicate row for player %d game %d", row.PlayerID, row.GameID))
			continue
		}
		seen[k] = struct{}{}

		row.FirstName = strings.TrimSpace(row.FirstName)
		row.LastName = strings.TrimSpace(row.LastName)
		row.FullName = FullNameOf(row.FirstName, row.LastName)
		row.TeamAbbrev = strings.ToUpper(strings.TrimSpace(row.TeamAbbrev))
		if row.TOISeconds == 0 && row.TOI != "" {
			if secs, err := ParseTOI(row.TOI); err == nil {
				row.TOISeconds = secs
			}
		}

		idx := len(s.records)
		s.records = append(s.records, row)
		s.byTeam[row.TeamAbbrev] = append(s.byTeam[row.TeamAbbrev], idx)
		s.byPlayer[row.FullName] = append(s.byPlayer[row.FullName], idx)
		s.byGame[row.GameID] = append(s.byGame[row.GameID], idx)
		report.Accepted++
	}

	return s, report
}

// Season returns the season label the store was built for.
func (s *Store) Season() string {
	return s.season
}

// Len returns the number of accepted records.
func (s *Store) Len() int {
	return len(s.records)
}

// Records returns a copy of every record in ingest order.
func (s *Store) Records() []GameRecord {
	out := make([]GameRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Store) collect(idxs []int) []GameRecord {
	out := make([]GameRecord, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.records[i])
	}
	return out
}

// ByTeam returns the records whose team abbreviation matches.
func (s *Store) ByTeam(team string) []GameRecord {
	return s.collect(s.byTeam[strings.ToUpper(team)])
}

// ByPlayer returns the records for a full name.
func (s *Store) ByPlayer(fullName string) []GameRecord {
	return s.collect(s.byPlayer[fullName])
}

// ByGame returns every record for a game.
func (s *Store) ByGame(gameID int64) []GameRecord {
	return s.collect(s.byGame[gameID])
}

// WithStatAtLeast returns the records where stat >= min.
func (s *Store) WithStatAtLeast(stat Stat, min int) ([]GameRecord, error) {
	var out []GameRecord
	for _, r := range s.records {
		v, err := r.Value(stat)
		if err != nil {
			return nil, err
		}
		if v >= min {
			out = append(out, r)
		}
	}
	return out, nil
}

// HasTeam reports whether any record belongs to the team.
func (s *Store) HasTeam(team string) bool {
	_, ok := s.byTeam[strings.ToUpper(team)]
	return ok
}

// HasPlayer reports whether any record carries the full name.
func (s *Store) HasPlayer(fullName string) bool {
	_, ok := s.byPlayer[fullName]
	return ok
}

// Teams returns the distinct team abbreviations, sorted.
func (s *Store) Teams() []string {
	teams := make([]string, 0, len(s.byTeam))
	for t := range s.byTeam {
		teams = append(teams, t)
	}
	sort.Strings(teams)
	return teams
}

// Players returns the distinct full names that appear for a team, sorted.
func (s *Store) Players(team string) []string {
	seen := make(map[string]struct{})
	for _, i := range s.byTeam[strings.ToUpper(team)] {
		seen[s.records[i].FullName] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AllPlayers returns every distinct full name in the season, sorted.
func (s *Store) AllPlayers() []string {
	names := make([]string, 0, len(s.byPlayer))
	for n := range s.byPlayer {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// TeamGameCount returns the number of distinct games a team has records for.
func (s *Store) TeamGameCount(team string) int {
	games := make(map[int64]struct{})
	for _, i := range s.byTeam[strings.ToUpper(team)] {
		games[s.records[i].GameID] = struct{}{}
	}
	return len(games)
}

// SeasonTotal sums a statistic over every record of a player, regardless of team.
func (s *Store) SeasonTotal(fullName string, stat Stat) (int, error) {
	total := 0
	for _, i := range s.byPlayer[fullName] {
		v, err := s.records[i].Value(stat)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total, nil
}
