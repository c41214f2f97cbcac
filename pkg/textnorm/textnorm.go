// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package textnorm normalizes titles and creator names for identity matching.

Canonicalization compares works imported from independent upstreams, so the
same title must normalize identically regardless of accents, casing, bracketed
edition qualifiers ("(Official)", "[Colored]"), or filler words. The package
also provides the similarity primitives (character bigrams, token overlap)
the matching engine blends into a confidence score.
*/
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// bracketQualifier matches parenthesized/bracketed edition qualifiers.
	bracketQualifier = regexp.MustCompile(`[(\[【][^)\]】]*[)\]】]`)
	// multiSpace collapses runs of whitespace.
	multiSpace = regexp.MustCompile(`\s{2,}`)
)

// stopWords are filler tokens that carry no identity signal in titles.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true,
	"of": true, "and": true, "to": true, "in": true,
	"no": true, "wa": true, "ga": true, "ni": true, "wo": true,
}

// Normalize converts a title or creator name into its canonical compare form.
//
// # Transformation Pipeline
//
//  1. Strips bracketed qualifiers ("(Official)", "[Colored]", "【新装版】").
//  2. Normalizes to NFD and removes combining marks (é → e).
//  3. Lowercases and replaces punctuation with spaces.
//  4. Filters stop words and collapses whitespace.
func Normalize(s string) string {
	// 1. Bracket qualifiers
	s = bracketQualifier.ReplaceAllString(s, " ")

	// 2. Decompose accents
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn))
	s, _, _ = transform.String(t, s)

	// 3. Lowercase and strip punctuation
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)

	// 4. Stop words and whitespace
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, field := range fields {
		if !stopWords[field] {
			kept = append(kept, field)
		}
	}

	result := strings.Join(kept, " ")
	return multiSpace.ReplaceAllString(result, " ")
}

// Tokens returns the normalized token set of s.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// # Similarity Primitives

// BigramSimilarity computes the Sørensen–Dice coefficient over character
// bigrams of the normalized forms. Returns a value in [0, 1].
//
// Bigrams tolerate small spelling variations better than whole-token
// comparison, which matters for romanized titles ("Berserk of Gluttony" vs
// "Berserk of Glutonny").
func BigramSimilarity(a, b string) float64 {
	bigramsA := bigrams(Normalize(a))
	bigramsB := bigrams(Normalize(b))

	if len(bigramsA) == 0 || len(bigramsB) == 0 {
		if Normalize(a) == Normalize(b) && Normalize(a) != "" {
			return 1.0
		}
		return 0.0
	}

	overlap := 0
	for gram, countA := range bigramsA {
		if countB, ok := bigramsB[gram]; ok {
			overlap += min(countA, countB)
		}
	}

	totalA := 0
	for _, count := range bigramsA {
		totalA += count
	}
	totalB := 0
	for _, count := range bigramsB {
		totalB += count
	}

	return 2.0 * float64(overlap) / float64(totalA+totalB)
}

// TokenOverlap computes the Jaccard index over normalized token sets.
// Returns a value in [0, 1]. Used for creator-name comparison, where
// word order varies ("ODA Eiichiro" vs "Eiichiro Oda").
func TokenOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for token := range setA {
		if setB[token] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// # Language Families

// Family groups declared languages whose titles commonly cross-romanize.
type Family string

const (
	FamilyCJK     Family = "cjk"
	FamilyWestern Family = "western"
	FamilyOther   Family = "other"
)

// languageFamilies maps ISO 639-1 codes to their family.
var languageFamilies = map[string]Family{
	"ja": FamilyCJK, "ko": FamilyCJK, "zh": FamilyCJK,
	"en": FamilyWestern, "fr": FamilyWestern, "de": FamilyWestern,
	"es": FamilyWestern, "it": FamilyWestern, "pt": FamilyWestern,
	"pl": FamilyWestern, "nl": FamilyWestern,
}

// LanguageFamily returns the family for an ISO 639-1 code.
// Unknown and empty codes map to [FamilyOther].
func LanguageFamily(code string) Family {
	if family, ok := languageFamilies[strings.ToLower(strings.TrimSpace(code))]; ok {
		return family
	}
	return FamilyOther
}

// SameFamily reports whether two declared languages are compatible for
// matching. Unknown languages are treated as compatible with everything,
// because an absent declaration is not evidence of a mismatch.
func SameFamily(a, b string) bool {
	familyA := LanguageFamily(a)
	familyB := LanguageFamily(b)

	if familyA == FamilyOther || familyB == FamilyOther {
		return true
	}
	return familyA == familyB
}

// # Internal Helpers

// bigrams returns the character-bigram multiset of s (spaces excluded).
func bigrams(s string) map[string]int {
	runes := []rune(strings.ReplaceAll(s, " ", ""))
	grams := make(map[string]int)

	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams
}

// tokenSet returns the normalized tokens of s as a set.
func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range Tokens(s) {
		set[token] = true
	}
	return set
}

// isMn reports whether r is a Unicode non-spacing mark (e.g., accents).
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
