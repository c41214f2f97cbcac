// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package chapternum_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/rensai/pkg/chapternum"
)

/*
TestNormalize_NumericChapters verifies decimal parsing into the fixed-point key.
*/
func TestNormalize_NumericChapters(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		whole int64
		frac  int32
	}{
		{"plain_integer", "1", 1, 0},
		{"large_integer", "1044", 1044, 0},
		{"half_chapter", "10.5", 10, 5000},
		{"quarter_chapter", "7.25", 7, 2500},
		{"chapter_prefix", "Chapter 103", 103, 0},
		{"ch_dot_prefix", "Ch. 12", 12, 0},
		{"hash_prefix", "#42", 42, 0},
		{"episode_prefix", "Episode 3", 3, 0},
		{"padded_whitespace", "  5  ", 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := chapternum.Normalize(tt.raw)

			assert.Equal(t, chapternum.BandNumeric, key.Band)
			assert.Equal(t, tt.whole, key.Whole)
			assert.Equal(t, tt.frac, key.Frac)
		})
	}
}

/*
TestNormalize_SpecialTokens verifies the fixed out-of-band sort positions.
*/
func TestNormalize_SpecialTokens(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		band chapternum.Band
	}{
		{"prologue", "Prologue", chapternum.BandPrologue},
		{"prelude", "prelude", chapternum.BandPrologue},
		{"oneshot", "Oneshot", chapternum.BandExtra},
		{"oneshot_hyphen", "One-Shot", chapternum.BandExtra},
		{"omake", "omake", chapternum.BandExtra},
		{"extra_with_index", "Extra 2", chapternum.BandExtra},
		{"side_story", "Side Story", chapternum.BandExtra},
		{"epilogue", "Epilogue", chapternum.BandEpilogue},
		{"afterword", "Afterword", chapternum.BandEpilogue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := chapternum.Normalize(tt.raw)
			assert.Equal(t, tt.band, key.Band)
		})
	}
}

/*
TestNormalize_SpecialIndexOrdering verifies indexed specials order inside
their band.
*/
func TestNormalize_SpecialIndexOrdering(t *testing.T) {
	extra1 := chapternum.Normalize("Extra 1")
	extra2 := chapternum.Normalize("Extra 2")

	assert.True(t, extra1.Less(extra2))
}

/*
TestNormalize_BandOrdering verifies the global ordering property:
prologue < 1 < ... < extra < epilogue.
*/
func TestNormalize_BandOrdering(t *testing.T) {
	raws := []string{"Epilogue", "3", "Prologue", "Oneshot", "1", "10.5", "2"}

	keys := make([]chapternum.Key, len(raws))
	for i, raw := range raws {
		keys[i] = chapternum.Normalize(raw)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	expected := []chapternum.Key{
		chapternum.Normalize("Prologue"),
		chapternum.Normalize("1"),
		chapternum.Normalize("2"),
		chapternum.Normalize("3"),
		chapternum.Normalize("10.5"),
		chapternum.Normalize("Oneshot"),
		chapternum.Normalize("Epilogue"),
	}

	assert.Equal(t, expected, keys)
}

/*
TestNormalize_FracNeverFloats verifies fixed-point decimals stay ordered
(10.5 < 10.25 would indicate float drift).
*/
func TestNormalize_FracNeverFloats(t *testing.T) {
	a := chapternum.Normalize("10.25")
	b := chapternum.Normalize("10.5")

	assert.True(t, a.Less(b))
}

/*
TestNormalize_Fallback verifies unparseable strings get a deterministic key
in the extra band rather than failing.
*/
func TestNormalize_Fallback(t *testing.T) {
	a := chapternum.Normalize("???")
	b := chapternum.Normalize("???")

	assert.Equal(t, a, b)
	assert.Equal(t, chapternum.BandExtra, a.Band)

	// A numeric chapter always sorts before any fallback key.
	numeric := chapternum.Normalize("9999")
	assert.True(t, numeric.Less(a))
}

/*
TestKey_Compare covers the three-way comparison contract.
*/
func TestKey_Compare(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected int
	}{
		{"equal", "5", "5", 0},
		{"whole_ordering", "4", "5", -1},
		{"frac_ordering", "5.1", "5.2", -1},
		{"band_beats_whole", "9999", "Epilogue", -1},
		{"reverse", "6", "5", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := chapternum.Normalize(tt.a)
			b := chapternum.Normalize(tt.b)
			assert.Equal(t, tt.expected, a.Compare(b))
		})
	}
}
