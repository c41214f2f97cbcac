// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package chapternum normalizes upstream chapter-number strings into sortable keys.

Upstreams publish chapter numbers as free text: "1", "10.5", "Ch. 103",
"Oneshot", "Prologue", "Extra 2". Comparing raw floats drifts; comparing raw
strings misorders. This package decomposes every number into an integer
(band, whole, frac) triple such that:

	prologue < 1 < 1.5 < 2 < ... < extra < epilogue

Numeric chapters sort numerically inside the numeric band; special tokens sort
into fixed out-of-band positions. Unparseable strings receive a minimal,
deterministic fallback key instead of failing the batch.
*/
package chapternum

import (
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
)

// # Sort Bands

// Band places a chapter key into a fixed region of the sort order.
//
// The set is closed: every key belongs to exactly one band.
type Band int16

const (
	// BandPrologue sorts before all numeric chapters.
	BandPrologue Band = -1

	// BandNumeric holds ordinary numbered chapters.
	BandNumeric Band = 0

	// BandExtra sorts after all numeric chapters (oneshots, omake, specials).
	BandExtra Band = 1

	// BandEpilogue sorts last (epilogues, afterwords).
	BandEpilogue Band = 2
)

// FracScale is the fixed-point scale of the fractional component.
// Chapter 10.5 is stored as Whole=10, Frac=5000.
const FracScale = 10000

// Key is the decomposed, integer-only sort key for one chapter number.
//
// It is never stored or compared as a float, to avoid ordering drift between
// runtimes and database round-trips.
type Key struct {
	Band  Band
	Whole int64
	Frac  int32
}

// Compare returns -1, 0, or 1 ordering k relative to other.
func (k Key) Compare(other Key) int {
	switch {
	case k.Band != other.Band:
		if k.Band < other.Band {
			return -1
		}
		return 1
	case k.Whole != other.Whole:
		if k.Whole < other.Whole {
			return -1
		}
		return 1
	case k.Frac != other.Frac:
		if k.Frac < other.Frac {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether k sorts before other.
func (k Key) Less(other Key) bool { return k.Compare(other) < 0 }

// # Token Tables

// specialBands maps recognized non-numeric tokens to their fixed bands.
var specialBands = map[string]Band{
	"prologue": BandPrologue,
	"prelude":  BandPrologue,
	"intro":    BandPrologue,

	"oneshot":   BandExtra,
	"one-shot":  BandExtra,
	"extra":     BandExtra,
	"omake":     BandExtra,
	"special":   BandExtra,
	"bonus":     BandExtra,
	"sidestory": BandExtra,

	"epilogue":   BandEpilogue,
	"afterword":  BandEpilogue,
	"postscript": BandEpilogue,
}

var (
	// chapterPrefix strips common labels before the numeric part.
	chapterPrefix = regexp.MustCompile(`^(?:chapter|chap|ch|episode|ep|#)[.\s:#]*`)
	// numberPattern extracts a decimal number anywhere in the cleaned string.
	numberPattern = regexp.MustCompile(`(\d+)(?:\.(\d+))?`)
)

// Normalize converts a raw upstream chapter-number string into a [Key].
//
// It never fails: strings that match neither a number nor a special token get
// a deterministic fallback key in the extra band (see [Fallback]).
func Normalize(raw string) Key {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = chapterPrefix.ReplaceAllString(cleaned, "")

	// 1. Special tokens. A trailing index ("extra 2") orders entries inside
	// their band.
	compact := strings.ReplaceAll(strings.ReplaceAll(cleaned, " ", ""), "_", "")
	for token, band := range specialBands {
		if strings.HasPrefix(compact, token) {
			key := Key{Band: band}
			if match := numberPattern.FindStringSubmatch(cleaned); match != nil {
				key.Whole, _ = strconv.ParseInt(match[1], 10, 64)
			}
			return key
		}
	}

	// 2. Numeric chapters.
	if match := numberPattern.FindStringSubmatch(cleaned); match != nil {
		whole, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return Fallback(raw)
		}

		key := Key{Band: BandNumeric, Whole: whole}
		if match[2] != "" {
			key.Frac = scaleFraction(match[2])
		}
		return key
	}

	// 3. Nothing recognizable.
	return Fallback(raw)
}

// Fallback produces the deterministic key for an unparseable number string.
//
// The key lands in the extra band with a hash-derived fractional component,
// so distinct unparseable strings keep a stable relative order and never
// collide with real numeric chapters.
func Fallback(raw string) Key {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(strings.ToLower(strings.TrimSpace(raw))))

	return Key{
		Band:  BandExtra,
		Whole: 0,
		Frac:  int32(hasher.Sum32() % FracScale),
	}
}

// scaleFraction converts a decimal-fraction string ("5", "25") into the
// fixed-point component ("5" → 5000, "25" → 2500). Digits beyond the scale
// precision are truncated.
func scaleFraction(digits string) int32 {
	if len(digits) > 4 {
		digits = digits[:4]
	}

	value, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}

	for i := len(digits); i < 4; i++ {
		value *= 10
	}
	return int32(value)
}
