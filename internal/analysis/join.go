package analysis

// JoinedCorrelationRecord is a current-season pair extended with the prior season's
// measurements for the same PairID. The prior fields are nil when the pair has no prior match.
type JoinedCorrelationRecord struct {
	CorrelationRecord
	PriorCorrelation  *Coefficient `json:"prior_correlation"`
	PriorTotalPointsA *int         `json:"prior_total_points_a"`
	PriorTotalPointsB *int         `json:"prior_total_points_b"`
}

// HasPrior reports whether the pair was matched in the prior season.
func (j JoinedCorrelationRecord) HasPrior() bool {
	return j.PriorTotalPointsA != nil
}

// JoinSeasons left-joins current onto prior by PairID. Every current pair appears exactly once,
// in input order; pairs that only exist in prior are dropped. Only the prior season's
// measurements are carried over.
func JoinSeasons(current, prior []CorrelationRecord) []JoinedCorrelationRecord {
	byPair := make(map[string]CorrelationRecord, len(prior))
	for _, p := range prior {
		if _, ok := byPair[p.PairID]; ok {
			continue
		}
		byPair[p.PairID] = p
	}

	out := make([]JoinedCorrelationRecord, 0, len(current))
	for _, c := range current {
		joined := JoinedCorrelationRecord{CorrelationRecord: c}
		if p, ok := byPair[c.PairID]; ok {
			corr := p.Correlation
			a, b := p.TotalPointsA, p.TotalPointsB
			joined.PriorCorrelation = &corr
			joined.PriorTotalPointsA = &a
			joined.PriorTotalPointsB = &b
		}
		out = append(out, joined)
	}

	return out
}
