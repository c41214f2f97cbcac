// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package postgres_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/rensai/internal/platform/postgres"
)

/*
TestLockKey_Deterministic verifies the same inputs always hash to the same key.
*/
func TestLockKey_Deterministic(t *testing.T) {
	a := postgres.LockKey(postgres.LockSeriesSource, "01923e5a-0000-7000-8000-000000000001")
	b := postgres.LockKey(postgres.LockSeriesSource, "01923e5a-0000-7000-8000-000000000001")

	assert.Equal(t, a, b)
}

/*
TestLockKey_NonNegative verifies keys fit Postgres' signed bigint domain.
*/
func TestLockKey_NonNegative(t *testing.T) {
	inputs := [][]string{
		{"a"},
		{"a", "b"},
		{""},
		{"series-with-a-much-longer-identifier-0000000001"},
	}

	for _, ids := range inputs {
		key := postgres.LockKey(postgres.LockSeries, ids...)
		assert.GreaterOrEqual(t, key, int64(0))
	}
}

/*
TestLockKey_KindNamespacing verifies different kinds never share a key for
the same identifiers.
*/
func TestLockKey_KindNamespacing(t *testing.T) {
	id := "01923e5a-0000-7000-8000-000000000001"

	seriesKey := postgres.LockKey(postgres.LockSeries, id)
	sourceKey := postgres.LockKey(postgres.LockSeriesSource, id)
	chapterKey := postgres.LockKey(postgres.LockChapter, id)

	assert.NotEqual(t, seriesKey, sourceKey)
	assert.NotEqual(t, seriesKey, chapterKey)
	assert.NotEqual(t, sourceKey, chapterKey)
}

/*
TestLockKey_IDSeparation verifies id boundaries are not ambiguous under
concatenation (["ab","c"] must differ from ["a","bc"]).
*/
func TestLockKey_IDSeparation(t *testing.T) {
	a := postgres.LockKey(postgres.LockChapter, "ab", "c")
	b := postgres.LockKey(postgres.LockChapter, "a", "bc")

	assert.NotEqual(t, a, b)
}
