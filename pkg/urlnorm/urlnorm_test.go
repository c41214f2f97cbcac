// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package urlnorm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/rensai/pkg/urlnorm"
)

/*
TestNormalize_Canonicalization covers the individual normalization rules.
*/
func TestNormalize_Canonicalization(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			"www_prefix_stripped",
			"https://www.mangadex.org/title/abc",
			"https://mangadex.org/title/abc",
		},
		{
			"trailing_slash_stripped",
			"https://mangadex.org/title/abc/",
			"https://mangadex.org/title/abc",
		},
		{
			"root_slash_kept",
			"https://mangadex.org/",
			"https://mangadex.org/",
		},
		{
			"tracking_params_removed",
			"https://mangadex.org/title/abc?utm_source=feed&utm_medium=rss",
			"https://mangadex.org/title/abc",
		},
		{
			"real_params_kept_sorted",
			"https://mangadex.org/search?page=2&lang=en",
			"https://mangadex.org/search?lang=en&page=2",
		},
		{
			"host_lowercased",
			"https://MangaDex.ORG/title/abc",
			"https://mangadex.org/title/abc",
		},
		{
			"default_port_stripped",
			"https://mangadex.org:443/title/abc",
			"https://mangadex.org/title/abc",
		},
		{
			"fragment_dropped",
			"https://mangadex.org/title/abc#comments",
			"https://mangadex.org/title/abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalized, err := urlnorm.Normalize(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, normalized)
		})
	}
}

/*
TestNormalize_Rejects verifies relative and malformed URLs fail loudly.
*/
func TestNormalize_Rejects(t *testing.T) {
	for _, raw := range []string{"", "/title/abc", "not a url at all\x7f://"} {
		_, err := urlnorm.Normalize(raw)
		assert.Error(t, err, raw)
	}
}

/*
TestHash_EquivalentURLs verifies the identity property: URLs differing only in
www prefix, trailing slash, or tracking params hash identically.
*/
func TestHash_EquivalentURLs(t *testing.T) {
	base, err := urlnorm.Hash("https://mangadex.org/title/abc")
	require.NoError(t, err)

	equivalents := []string{
		"https://www.mangadex.org/title/abc",
		"https://mangadex.org/title/abc/",
		"https://www.mangadex.org/title/abc/?utm_source=feed",
		"https://mangadex.org/title/abc#latest",
	}

	for _, raw := range equivalents {
		hash, err := urlnorm.Hash(raw)
		require.NoError(t, err)
		assert.Equal(t, base, hash, raw)
	}
}

/*
TestHash_DistinctURLs verifies different pages produce different identities.
*/
func TestHash_DistinctURLs(t *testing.T) {
	a, err := urlnorm.Hash("https://mangadex.org/title/abc")
	require.NoError(t, err)
	b, err := urlnorm.Hash("https://mangadex.org/title/xyz")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)

	// And the hash always fits a signed bigint.
	assert.GreaterOrEqual(t, a, int64(0))
	assert.GreaterOrEqual(t, b, int64(0))
}
