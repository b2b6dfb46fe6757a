package csvlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/fortuna/linemate/internal/analysis"
)

// CorrelationHeader is the column order of a correlation table.
var CorrelationHeader = []string{"Team", "Player A", "Player B", "Correlation", "Total Points A", "Total Points B", "pair_id"}

// JoinedHeader returns the joined table header; prior columns carry a "_<prior>" suffix.
func JoinedHeader(prior string) []string {
	h := append([]string{}, CorrelationHeader...)
	return append(h,
		"Correlation_"+prior,
		"Total Points A_"+prior,
		"Total Points B_"+prior,
	)
}

// WriteCorrelations writes one season's correlation table. Undefined coefficients are empty cells.
func WriteCorrelations(w io.Writer, records []analysis.CorrelationRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CorrelationHeader); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(correlationRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJoined writes a joined table. Pairs without a prior match leave the suffixed cells empty.
func WriteJoined(w io.Writer, prior string, records []analysis.JoinedCorrelationRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(JoinedHeader(prior)); err != nil {
		return err
	}
	for _, r := range records {
		row := correlationRow(r.CorrelationRecord)
		row = append(row, "", "", "")
		if r.PriorCorrelation != nil {
			row[7] = r.PriorCorrelation.String()
		}
		if r.PriorTotalPointsA != nil {
			row[8] = strconv.Itoa(*r.PriorTotalPointsA)
		}
		if r.PriorTotalPointsB != nil {
			row[9] = strconv.Itoa(*r.PriorTotalPointsB)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func correlationRow(r analysis.CorrelationRecord) []string {
	return []string{
		r.Team, r.PlayerA, r.PlayerB, r.Correlation.String(),
		strconv.Itoa(r.TotalPointsA), strconv.Itoa(r.TotalPointsB), r.PairID,
	}
}

// ReadCorrelations reads a correlation table, such as a prior season produced elsewhere.
// Player names are re-canonicalised and pair_id recomputed when absent.
func ReadCorrelations(r io.Reader) ([]analysis.CorrelationRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := indexHeader(header)
	for _, name := range []string{"Team", "Player A", "Player B", "Correlation"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var out []analysis.CorrelationRecord
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		f := fields{cols: cols, row: row}
		corr, err := analysis.ParseCoefficient(f.str("Correlation"))
		if err != nil {
			return nil, fmt.Errorf("line %d: correlation: %w", line, err)
		}
		a, b := analysis.CanonicalPair(f.str("Player A"), f.str("Player B"))
		rec := analysis.CorrelationRecord{
			Team:         f.str("Team"),
			PlayerA:      a,
			PlayerB:      b,
			Correlation:  corr,
			TotalPointsA: f.asInt("Total Points A"),
			TotalPointsB: f.asInt("Total Points B"),
			PairID:       f.str("pair_id"),
		}
		if f.err != nil {
			return nil, fmt.Errorf("line %d: %w", line, f.err)
		}
		if rec.PairID == "" {
			rec.PairID = analysis.PairID(a, b)
		}
		out = append(out, rec)
	}

	return out, nil
}

// ReadJoined reads a table written by WriteJoined for the given prior label.
func ReadJoined(r io.Reader, prior string) ([]analysis.JoinedCorrelationRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := indexHeader(header)
	priorCorr := "Correlation_" + prior
	if _, ok := cols[priorCorr]; !ok {
		return nil, fmt.Errorf("missing column %q", priorCorr)
	}

	var out []analysis.JoinedCorrelationRecord
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		f := fields{cols: cols, row: row}
		corr, err := analysis.ParseCoefficient(f.str("Correlation"))
		if err != nil {
			return nil, fmt.Errorf("line %d: correlation: %w", line, err)
		}
		j := analysis.JoinedCorrelationRecord{CorrelationRecord: analysis.CorrelationRecord{
			Team:         f.str("Team"),
			PlayerA:      f.str("Player A"),
			PlayerB:      f.str("Player B"),
			Correlation:  corr,
			TotalPointsA: f.asInt("Total Points A"),
			TotalPointsB: f.asInt("Total Points B"),
			PairID:       f.str("pair_id"),
		}}

		pa, _ := f.optionalInt("Total Points A_" + prior)
		pb, _ := f.optionalInt("Total Points B_" + prior)
		if f.err != nil {
			return nil, fmt.Errorf("line %d: %w", line, f.err)
		}
		if pa != nil {
			pc, err := analysis.ParseCoefficient(f.str(priorCorr))
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, priorCorr, err)
			}
			j.PriorCorrelation = &pc
			j.PriorTotalPointsA = pa
			j.PriorTotalPointsB = pb
		}
		out = append(out, j)
	}

	return out, nil
}
