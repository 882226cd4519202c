package endpoint

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RateLimitBucket tracks one advertised rate-limit window for an endpoint.
//
// Invariants: 0 <= Count <= MaxCount, Window > 0, and WindowStart never
// moves backwards (UpdateBuckets sets it to the observation time of every
// accepted observation and drops observations older than the last one).
type RateLimitBucket struct {
	Window      time.Duration // the bucket key, e.g. 1s or 120s
	MaxCount    uint64
	Count       uint64
	WindowStart time.Time
}

// LimitPair is one (max_count, window) entry parsed from an
// "X-*-Rate-Limit" header.
type LimitPair struct {
	MaxCount uint64
	Window   time.Duration
}

// CountPair is one (count, window) entry parsed from an
// "X-*-Rate-Limit-Count" header.
type CountPair struct {
	Count  uint64
	Window time.Duration
}

// ParseRateLimitHeader parses the Riot rate-limit header grammar:
//
//	bucket := INT ":" INT
//	header := bucket ("," bucket)*
//
// The first integer is the limit (or current count, depending on which
// header it came from); the second is the window length in seconds. It
// returns pairs in (value, window) form, leaving the caller to interpret
// the first field as a limit or a count.
func ParseRateLimitHeader(header string) ([]CountPair, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}

	items := strings.Split(header, ",")
	pairs := make([]CountPair, 0, len(items))
	for _, item := range items {
		parts := strings.SplitN(item, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("endpoint: malformed rate-limit bucket %q", item)
		}

		value, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("endpoint: malformed rate-limit value %q: %w", parts[0], err)
		}
		windowSecs, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("endpoint: malformed rate-limit window %q: %w", parts[1], err)
		}
		if windowSecs == 0 {
			return nil, fmt.Errorf("endpoint: zero rate-limit window in %q", item)
		}

		pairs = append(pairs, CountPair{Count: value, Window: time.Duration(windowSecs) * time.Second})
	}
	return pairs, nil
}

// ParseLimits parses an "X-*-Rate-Limit" header into LimitPairs.
func ParseLimits(header string) ([]LimitPair, error) {
	raw, err := ParseRateLimitHeader(header)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	limits := make([]LimitPair, len(raw))
	for i, p := range raw {
		limits[i] = LimitPair{MaxCount: p.Count, Window: p.Window}
	}
	return limits, nil
}

// ParseCounts parses an "X-*-Rate-Limit-Count" header into CountPairs.
func ParseCounts(header string) ([]CountPair, error) {
	return ParseRateLimitHeader(header)
}
