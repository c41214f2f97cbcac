// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package canonical

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/rensai/internal/core/series"
)

func candidate(id, title string) *series.Series {
	return &series.Series{ID: id, Title: title, Language: "en"}
}

// # Scoring

func TestScoreCandidate(t *testing.T) {
	engine := NewEngine()

	t.Run("should short-circuit on exact normalized title", func(t *testing.T) {
		existing := candidate("s-1", "The Tower of God")
		meta := Metadata{Title: "Tower of God (Official)", Language: "en"}

		score := engine.ScoreCandidate(existing, meta)

		assert.Equal(t, exactTitleScore, score.Value)
		assert.Equal(t, "exact_normalized_title", score.Reason)
	})

	t.Run("should match exact title via alternative titles", func(t *testing.T) {
		existing := candidate("s-1", "Shingeki no Kyojin")
		existing.AlternativeTitles = []string{"Attack on Titan"}
		meta := Metadata{Title: "Attack on Titan", Language: "en"}

		score := engine.ScoreCandidate(existing, meta)

		assert.Equal(t, exactTitleScore, score.Value)
	})

	t.Run("should score near-identical titles above the link threshold", func(t *testing.T) {
		existing := candidate("s-1", "The Gluttony Berserker")
		existing.Creators = []string{"Ichinoda Isshiki"}
		meta := Metadata{
			Title:    "The Glutonny Berserker",
			Creators: []string{"Ichinoda Isshiki"},
			Language: "en",
		}

		score := engine.ScoreCandidate(existing, meta)

		assert.GreaterOrEqual(t, score.Value, LinkThreshold)
		assert.Equal(t, "fuzzy_title_creator", score.Reason)
	})

	t.Run("should score unrelated titles below the review threshold", func(t *testing.T) {
		existing := candidate("s-1", "Kitchen Sorcerer")
		meta := Metadata{Title: "Galactic Mail Carrier", Language: "en"}

		score := engine.ScoreCandidate(existing, meta)

		assert.Less(t, score.Value, ReviewThreshold)
	})

	t.Run("should penalize cross-family language pairs", func(t *testing.T) {
		existing := candidate("s-1", "Solo Hunter")
		existing.Language = "ja"
		existing.Creators = []string{"Tanaka Hiro"}
		meta := Metadata{Title: "Solo Hunterz", Creators: []string{"Tanaka Hiro"}, Language: "en"}

		crossFamily := engine.ScoreCandidate(existing, meta)

		existing.Language = "en"
		sameFamily := engine.ScoreCandidate(existing, meta)

		assert.Less(t, crossFamily.Value, sameFamily.Value)
		assert.Less(t, crossFamily.Value, LinkThreshold, "cross-family similarity alone must not auto-link")
	})

	t.Run("should not penalize exact titles across language families", func(t *testing.T) {
		existing := candidate("s-1", "One Piece")
		existing.Language = "ja"
		meta := Metadata{Title: "One Piece", Language: "en"}

		score := engine.ScoreCandidate(existing, meta)

		assert.Equal(t, exactTitleScore, score.Value)
		assert.Equal(t, "exact_normalized_title", score.Reason)

		decision := engine.Decide([]*series.Series{existing}, meta)
		assert.Equal(t, ActionLink, decision.Action)
	})

	t.Run("should tolerate one year of publication drift", func(t *testing.T) {
		existing := candidate("s-1", "Moonlight Carver")
		existing.PublicationYear = 2019
		meta := Metadata{Title: "Moonlight Carver", Language: "en", PublicationYear: 2020}

		score := engine.ScoreCandidate(existing, meta)

		assert.Equal(t, exactTitleScore, score.Value)
	})

	t.Run("should cap moderate year drift below the link threshold", func(t *testing.T) {
		existing := candidate("s-1", "Moonlight Carver")
		existing.PublicationYear = 2017
		meta := Metadata{Title: "Moonlight Carver", Language: "en", PublicationYear: 2020}

		score := engine.ScoreCandidate(existing, meta)

		assert.Less(t, score.Value, LinkThreshold)
		assert.GreaterOrEqual(t, score.Value, ReviewThreshold)
	})

	t.Run("should block matches with a large year drift", func(t *testing.T) {
		existing := candidate("s-1", "Moonlight Carver")
		existing.PublicationYear = 2010
		meta := Metadata{Title: "Moonlight Carver", Language: "en", PublicationYear: 2020}

		score := engine.ScoreCandidate(existing, meta)

		assert.Zero(t, score.Value)
		assert.Equal(t, "year_drift_blocked", score.Reason)
	})

	t.Run("should ignore the year gate when either year is unknown", func(t *testing.T) {
		existing := candidate("s-1", "Moonlight Carver")
		existing.PublicationYear = 0
		meta := Metadata{Title: "Moonlight Carver", Language: "en", PublicationYear: 2020}

		score := engine.ScoreCandidate(existing, meta)

		assert.Equal(t, exactTitleScore, score.Value)
	})
}

// # Decisions

func TestDecide(t *testing.T) {
	engine := NewEngine()

	t.Run("should link above the link threshold", func(t *testing.T) {
		candidates := []*series.Series{candidate("s-1", "Iron Blooded Witch")}
		meta := Metadata{Title: "Iron-Blooded Witch", Language: "en"}

		decision := engine.Decide(candidates, meta)

		assert.Equal(t, ActionLink, decision.Action)
		require.NotNil(t, decision.Best)
		assert.Equal(t, "s-1", decision.Best.ID)
	})

	t.Run("should create silently with no plausible candidate", func(t *testing.T) {
		candidates := []*series.Series{candidate("s-1", "Kitchen Sorcerer")}
		meta := Metadata{Title: "Galactic Mail Carrier", Language: "en"}

		decision := engine.Decide(candidates, meta)

		assert.Equal(t, ActionCreate, decision.Action)
	})

	t.Run("should flag ambiguous scores for review", func(t *testing.T) {
		existing := candidate("s-1", "Moonlight Carver")
		existing.PublicationYear = 2017
		candidates := []*series.Series{existing}
		meta := Metadata{Title: "Moonlight Carver", Language: "en", PublicationYear: 2020}

		decision := engine.Decide(candidates, meta)

		assert.Equal(t, ActionCreateFlagged, decision.Action)
		require.NotNil(t, decision.Best)
		assert.Equal(t, "s-1", decision.Best.ID)
	})

	t.Run("should be deterministic regardless of candidate order", func(t *testing.T) {
		a := candidate("s-a", "Iron Blooded Witch")
		b := candidate("s-b", "Iron Blooded Witch")
		meta := Metadata{Title: "Iron Blooded Witch", Language: "en"}

		forward := engine.Decide([]*series.Series{a, b}, meta)
		reversed := engine.Decide([]*series.Series{b, a}, meta)

		require.NotNil(t, forward.Best)
		require.NotNil(t, reversed.Best)
		assert.Equal(t, forward.Best.ID, reversed.Best.ID)
	})
}

// # Merge Primary Selection

func TestDecidePrimary(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		a, b        *series.Series
		wantPrimary string
	}{
		{
			name:        "higher metadata rank wins",
			a:           &series.Series{ID: "s-a", MetadataRank: series.RankInferred},
			b:           &series.Series{ID: "s-b", MetadataRank: series.RankUserOverride},
			wantPrimary: "s-b",
		},
		{
			name:        "higher follower count breaks rank ties",
			a:           &series.Series{ID: "s-a", FollowerCount: 5000},
			b:           &series.Series{ID: "s-b", FollowerCount: 120},
			wantPrimary: "s-a",
		},
		{
			name:        "older row breaks follower ties",
			a:           &series.Series{ID: "s-a", CreatedAt: base.Add(time.Hour)},
			b:           &series.Series{ID: "s-b", CreatedAt: base},
			wantPrimary: "s-b",
		},
		{
			name:        "smaller id is the final tiebreak",
			a:           &series.Series{ID: "s-b", CreatedAt: base},
			b:           &series.Series{ID: "s-a", CreatedAt: base},
			wantPrimary: "s-a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary, merged := DecidePrimary(tt.a, tt.b)
			assert.Equal(t, tt.wantPrimary, primary.ID)
			assert.NotEqual(t, primary.ID, merged.ID)

			// Argument order must never change the outcome.
			swappedPrimary, _ := DecidePrimary(tt.b, tt.a)
			assert.Equal(t, primary.ID, swappedPrimary.ID)
		})
	}
}
