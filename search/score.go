// Package search implements query resolution and the ranking-rule pipeline
// (§4.4): term expansion, candidate-universe narrowing, bucket-sort
// ranking, pagination, and result materialization with highlighting.
package search

// Rank is one ranking rule's verdict for a bucket of documents: its
// position among the possible outcomes that rule could produce (rank) out
// of how many outcomes were possible at all (maxRank), 1-indexed so that
// Rank == 0 stays reserved for "this document doesn't match at all" (never
// true of a document already inside the universe a rule iterates over). A
// rule that matches perfectly reports Rank == MaxRank; its worst possible
// outcome still reports Rank == 1, never 0.
type Rank struct {
	Rank    uint32
	MaxRank uint32
}

// LocalScore is this rule's own contribution in isolation, in [0, 1].
func (r Rank) LocalScore() float64 {
	if r.MaxRank == 0 {
		return 0
	}
	return float64(r.Rank) / float64(r.MaxRank)
}

// GlobalScore folds a sequence of per-rule ranks into the single relevance
// score reported as a hit's rankingScore, most-significant rule first. The
// fold is a mixed-radix positional number: each rule's rank becomes a
// "digit" whose place value is the product of every later rule's maxRank,
// so rule 1 dominates the ordering and rule 2 only breaks ties within rule
// 1's bucket, and so on — the same effect as the nested fraction
// rank_1/max_1 + rank_2/(max_1*max_2) + ... without the accumulating
// floating-point error of actually summing fractions with growing
// denominators.
func GlobalScore(details []Rank) float64 {
	rank := Rank{Rank: 1, MaxRank: 1}
	for _, inner := range details {
		rank.Rank--
		rank.Rank *= inner.MaxRank
		rank.MaxRank *= inner.MaxRank
		rank.Rank += inner.Rank
	}
	return rank.LocalScore()
}

// ScoreDetail is one ranking rule's contribution to a hit's
// showRankingScoreDetails breakdown. Sort and GeoSort rules report Rank ==
// nil since they don't participate in GlobalScore's fold (§4.4 "Sort and
// GeoSort don't contribute a rank/max_rank pair").
type ScoreDetail struct {
	RuleName string
	Rank     *Rank
	Detail   any
}

// WordsDetail backs the Words rule's ScoreDetail.Detail.
type WordsDetail struct {
	MatchingWords int
	MaxWords      int
}

// TypoDetail backs the Typo rule's ScoreDetail.Detail.
type TypoDetail struct {
	TypoCount int
	MaxTypos  int
}

// ProximityDetail backs the Proximity rule's ScoreDetail.Detail.
type ProximityDetail struct {
	Proximity    int
	MaxProximity int
}

// ExactnessMatchType classifies how fully a document's field matched the
// query verbatim (§4.4 "Exactness").
type ExactnessMatchType int

const (
	NoExactMatch ExactnessMatchType = iota
	MatchesStart
	MatchesFull
)

// ExactnessDetail backs the Exactness rule's ScoreDetail.Detail.
type ExactnessDetail struct {
	MatchType ExactnessMatchType
}
