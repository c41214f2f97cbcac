// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package urlnorm canonicalizes upstream page URLs and derives stable identities.

Two sources frequently link the same upstream page with cosmetic differences:
a "www." prefix, a trailing slash, or tracking query parameters. The ingestion
path enforces URL uniqueness across all source links, so equivalent URLs must
normalize to the same canonical form and hash.
*/
package urlnorm

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"
)

// trackingParams are query parameters that never affect page identity.
var trackingParams = map[string]bool{
	"fbclid":       true,
	"gclid":        true,
	"igshid":       true,
	"mc_cid":       true,
	"mc_eid":       true,
	"ref":          true,
	"ref_src":      true,
	"spm":          true,
	"utm_campaign": true,
	"utm_content":  true,
	"utm_medium":   true,
	"utm_source":   true,
	"utm_term":     true,
}

// Normalize returns the canonical form of an upstream URL.
//
// # Transformation Pipeline
//
//  1. Lowercases the scheme and host.
//  2. Strips a leading "www." and default ports (:80, :443).
//  3. Removes tracking query parameters and sorts the remainder.
//  4. Strips the fragment and any trailing slash (except the root path).
func Normalize(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("urlnorm: invalid URL %q: %w", raw, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("urlnorm: URL %q is not absolute", raw)
	}

	// 1-2. Scheme and host folding
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	parsed.Host = host

	// 3. Query cleanup with deterministic ordering
	if parsed.RawQuery != "" {
		values := parsed.Query()
		for param := range values {
			if trackingParams[strings.ToLower(param)] {
				values.Del(param)
			}
		}
		// Values.Encode sorts keys, giving a deterministic parameter order.
		parsed.RawQuery = values.Encode()
	}

	// 4. Fragment and trailing slash
	parsed.Fragment = ""
	if parsed.Path != "/" {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}

	return parsed.String(), nil
}

// Hash returns the stable 63-bit identity of a URL after normalization.
//
// Equivalent URLs (per [Normalize]) always hash to the same value. The result
// is masked to 63 bits so it fits a Postgres signed bigint column.
func Hash(raw string) (int64, error) {
	normalized, err := Normalize(raw)
	if err != nil {
		return 0, err
	}

	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(normalized))
	return int64(hasher.Sum64() & 0x7FFFFFFFFFFFFFFF), nil
}
