// Package csvlog reads and writes the flat CSV exchange files: per-game skater logs and the
// correlation tables derived from them.
package csvlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fortuna/linemate/internal/analysis"
)

// GameLogHeader is the column order written for game logs.
var GameLogHeader = []string{
	"PlayerID", "FirstName", "LastName", "TeamAbbrev", "GameID", "GameDate",
	"Goals", "Assists", "Points", "PlusMinus", "PowerPlayGoals", "PowerPlayPoints",
	"GameWinningGoals", "Shots", "Shifts", "PIM", "TOI", "OpponentAbbrev", "HomeRoadFlag",
}

// requiredGameLogColumns must be present in a game log header. The rest default to zero.
var requiredGameLogColumns = []string{"PlayerID", "FirstName", "LastName", "TeamAbbrev", "GameID", "GameDate"}

// ReadResult is what came out of a CSV read.
type ReadResult struct {
	Records  []analysis.GameRecord
	Skipped  int
	Problems []string
}

// ReadGameLogs reads a game log CSV. Columns are matched by header name. Rows with unparseable
// numbers are skipped and counted; field-level validation is left to analysis.NewStore.
func ReadGameLogs(r io.Reader) (*ReadResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("reading header: empty file")
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := indexHeader(header)
	for _, name := range requiredGameLogColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	result := &ReadResult{}
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			result.Skipped++
			result.Problems = append(result.Problems, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		rec, err := parseGameLogRow(cols, row)
		if err != nil {
			result.Skipped++
			result.Problems = append(result.Problems, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		result.Records = append(result.Records, rec)
	}

	return result, nil
}

func parseGameLogRow(cols map[string]int, row []string) (analysis.GameRecord, error) {
	f := fields{cols: cols, row: row}

	rec := analysis.GameRecord{
		FirstName:      f.str("FirstName"),
		LastName:       f.str("LastName"),
		TeamAbbrev:     f.str("TeamAbbrev"),
		GameDate:       f.str("GameDate"),
		TOI:            f.str("TOI"),
		OpponentAbbrev: f.str("OpponentAbbrev"),
		HomeRoadFlag:   f.str("HomeRoadFlag"),
	}
	rec.PlayerID = f.asInt64("PlayerID")
	rec.GameID = f.asInt64("GameID")
	rec.Goals = f.asInt("Goals")
	rec.Assists = f.asInt("Assists")
	rec.Points = f.asInt("Points")
	rec.PlusMinus = f.asInt("PlusMinus")
	rec.PowerPlayGoals = f.asInt("PowerPlayGoals")
	rec.PowerPlayPoints = f.asInt("PowerPlayPoints")
	rec.GameWinningGoals = f.asInt("GameWinningGoals")
	rec.Shots = f.asInt("Shots")
	rec.Shifts = f.asInt("Shifts")
	rec.PIM = f.asInt("PIM")
	if f.err != nil {
		return rec, f.err
	}

	if rec.TOI != "" {
		secs, err := analysis.ParseTOI(rec.TOI)
		if err != nil {
			return rec, err
		}
		rec.TOISeconds = secs
	}
	return rec, nil
}

// WriteGameLogs writes records with GameLogHeader.
func WriteGameLogs(w io.Writer, records []analysis.GameRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(GameLogHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.PlayerID, 10), r.FirstName, r.LastName, r.TeamAbbrev,
			strconv.FormatInt(r.GameID, 10), r.GameDate,
			strconv.Itoa(r.Goals), strconv.Itoa(r.Assists), strconv.Itoa(r.Points),
			strconv.Itoa(r.PlusMinus), strconv.Itoa(r.PowerPlayGoals), strconv.Itoa(r.PowerPlayPoints),
			strconv.Itoa(r.GameWinningGoals), strconv.Itoa(r.Shots), strconv.Itoa(r.Shifts),
			strconv.Itoa(r.PIM), r.TOI, r.OpponentAbbrev, r.HomeRoadFlag,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func indexHeader(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	return cols
}

// fields reads named cells from one row, keeping the first conversion error.
type fields struct {
	cols map[string]int
	row  []string
	err  error
}

func (f *fields) str(name string) string {
	i, ok := f.cols[name]
	if !ok || i >= len(f.row) {
		return ""
	}
	return strings.TrimSpace(f.row[i])
}

func (f *fields) asInt64(name string) int64 {
	s := f.str(name)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// pandas writes integer columns with gaps as floats
		fv, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || fv != float64(int64(fv)) {
			if f.err == nil {
				f.err = fmt.Errorf("column %s: invalid integer %q", name, s)
			}
			return 0
		}
		v = int64(fv)
	}
	return v
}

func (f *fields) asInt(name string) int {
	return int(f.asInt64(name))
}

func (f *fields) optionalInt(name string) (*int, bool) {
	if f.str(name) == "" {
		return nil, true
	}
	v := f.asInt(name)
	return &v, f.err == nil
}
