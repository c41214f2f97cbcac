// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package canonical decides which upstream series are the same real-world work.

The engine scores an incoming upstream series against existing canonical
records and buckets the result: a high-confidence match links to the
existing work, a medium-confidence match creates a new work flagged for
human review, and a low score creates a new work silently. Wrong links are
expensive (two different works share one chapter list) while missed links
are cheap (a duplicate gets merged later), so every threshold errs toward
not linking.
*/
package canonical

import (
	"math"

	"github.com/taibuivan/rensai/internal/core/series"
	"github.com/taibuivan/rensai/pkg/textnorm"
)

// # Scoring Constants

const (
	// LinkThreshold is the minimum confidence for linking to an existing work.
	LinkThreshold = 0.85

	// ReviewThreshold is the minimum confidence at which a newly created work
	// is flagged for manual review against its best candidate.
	ReviewThreshold = 0.5

	// exactTitleScore is assigned when normalized titles match exactly.
	exactTitleScore = 0.9

	// titleWeight and creatorWeight blend the fuzzy signals.
	titleWeight   = 0.7
	creatorWeight = 0.3

	// crossFamilyPenalty scales the score when the two works' languages
	// belong to different script families. Romanization makes cross-family
	// title similarity unreliable, so it alone can never auto-link.
	crossFamilyPenalty = 0.6

	// reviewCeiling caps scores with a 2-3 year publication drift: the pair
	// can still reach review, never an automatic link.
	reviewCeiling = 0.84

	// maxYearDrift blocks any match beyond this publication-year distance.
	maxYearDrift = 3

	// candidateLimit bounds the pre-filter result set per resolution.
	candidateLimit = 50
)

// # Score Reasons

const (
	reasonExactTitle = "exact_normalized_title"
	reasonFuzzy      = "fuzzy_title_creator"
)

// Metadata is the matching signal set extracted from one upstream series.
type Metadata struct {
	Title             string
	AlternativeTitles []string
	Creators          []string
	Language          string
	PublicationYear   int
}

// Score is one candidate's match confidence with its dominant reason,
// recorded on merge events and review items.
type Score struct {
	Value  float64
	Reason string
}

// # Engine

// Engine scores and buckets canonicalization decisions. It is stateless;
// all persistence happens in the service layer.
type Engine struct{}

// NewEngine constructs the scoring engine.
func NewEngine() *Engine {
	return &Engine{}
}

/*
ScoreCandidate computes the match confidence between incoming metadata and
one existing canonical work.

Description: Exact normalized-title equality short-circuits to a high fixed
score. Otherwise the score blends character-bigram title similarity with
creator token overlap, scaled down when the two works' languages sit in
different script families; an exact title match is strong evidence in any
script and skips that penalty. The publication-year gate applies last
regardless of how the title matched (a small drift caps the score at the
review band, a large drift blocks the match entirely).
*/
func (engine *Engine) ScoreCandidate(candidate *series.Series, meta Metadata) Score {
	score := engine.titleScore(candidate, meta)

	if score.Reason == reasonFuzzy && !textnorm.SameFamily(candidate.Language, meta.Language) {
		score.Value *= crossFamilyPenalty
	}

	score = engine.applyYearGate(score, candidate.PublicationYear, meta.PublicationYear)

	score.Value = math.Min(score.Value, 1.0)
	return score
}

// titleScore computes the pre-gate similarity between the incoming metadata
// and one candidate, trying every title pair on both sides.
func (engine *Engine) titleScore(candidate *series.Series, meta Metadata) Score {
	candidateTitles := append([]string{candidate.Title}, candidate.AlternativeTitles...)
	incomingTitles := append([]string{meta.Title}, meta.AlternativeTitles...)

	best := 0.0
	for _, ct := range candidateTitles {
		normalized := textnorm.Normalize(ct)
		if normalized == "" {
			continue
		}
		for _, it := range incomingTitles {
			if normalized == textnorm.Normalize(it) {
				return Score{Value: exactTitleScore, Reason: reasonExactTitle}
			}
			if similarity := textnorm.BigramSimilarity(ct, it); similarity > best {
				best = similarity
			}
		}
	}

	creatorOverlap := creatorTokenOverlap(candidate.Creators, meta.Creators)
	return Score{
		Value:  titleWeight*best + creatorWeight*creatorOverlap,
		Reason: reasonFuzzy,
	}
}

// applyYearGate applies the publication-year drift rules. A drift of one
// year is noise (regional release lag); two to three years demotes the pair
// to review territory; more blocks the match.
func (engine *Engine) applyYearGate(score Score, candidateYear, incomingYear int) Score {
	if candidateYear == 0 || incomingYear == 0 {
		return score
	}

	drift := candidateYear - incomingYear
	if drift < 0 {
		drift = -drift
	}

	switch {
	case drift <= 1:
		return score
	case drift <= maxYearDrift:
		score.Value = math.Min(score.Value, reviewCeiling)
		score.Reason = "year_drift_review"
		return score
	default:
		return Score{Value: 0, Reason: "year_drift_blocked"}
	}
}

// creatorTokenOverlap computes the Jaccard overlap of normalized creator
// name tokens across the two credit lists.
func creatorTokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	joinedA := ""
	for _, name := range a {
		joinedA += name + " "
	}
	joinedB := ""
	for _, name := range b {
		joinedB += name + " "
	}

	return textnorm.TokenOverlap(joinedA, joinedB)
}

// # Decisions

// Action is the bucketed outcome of one resolution.
type Action string

const (
	// ActionLink attaches the upstream series to an existing canonical work.
	ActionLink Action = "link"

	// ActionCreateFlagged creates a new work and queues a review item
	// against the best near-miss candidate.
	ActionCreateFlagged Action = "create_flagged"

	// ActionCreate creates a new work with no review.
	ActionCreate Action = "create"
)

// Decision is the engine's verdict for one upstream series.
type Decision struct {
	Action Action

	// Best is the highest-scoring candidate, nil when none scored above zero.
	Best  *series.Series
	Score Score
}

/*
Decide buckets the best candidate score into an action.

Description: Candidates are scored independently; ties on the numeric score
break deterministically by candidate ID so replays of the same input always
produce the same decision.
*/
func (engine *Engine) Decide(candidates []*series.Series, meta Metadata) Decision {
	var best *series.Series
	var bestScore Score

	for _, candidate := range candidates {
		score := engine.ScoreCandidate(candidate, meta)
		if score.Value > bestScore.Value ||
			(score.Value == bestScore.Value && best != nil && candidate.ID < best.ID) {
			best = candidate
			bestScore = score
		}
	}

	switch {
	case best != nil && bestScore.Value >= LinkThreshold:
		return Decision{Action: ActionLink, Best: best, Score: bestScore}
	case best != nil && bestScore.Value >= ReviewThreshold:
		return Decision{Action: ActionCreateFlagged, Best: best, Score: bestScore}
	default:
		return Decision{Action: ActionCreate, Best: best, Score: bestScore}
	}
}

// # Merge Primary Selection

/*
DecidePrimary selects which of two works survives a merge.

Description: The ordering is total and deterministic: higher metadata rank
wins, then higher follower count, then the older row, then the smaller ID.
Running the same merge twice, or in either argument order, always yields
the same primary.
*/
func DecidePrimary(a, b *series.Series) (primary, merged *series.Series) {
	switch {
	case a.MetadataRank != b.MetadataRank:
		if a.MetadataRank > b.MetadataRank {
			return a, b
		}
		return b, a
	case a.FollowerCount != b.FollowerCount:
		if a.FollowerCount > b.FollowerCount {
			return a, b
		}
		return b, a
	case !a.CreatedAt.Equal(b.CreatedAt):
		if a.CreatedAt.Before(b.CreatedAt) {
			return a, b
		}
		return b, a
	default:
		if a.ID < b.ID {
			return a, b
		}
		return b, a
	}
}
