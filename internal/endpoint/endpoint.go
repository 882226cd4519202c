package endpoint

import (
	"fmt"
	"time"
)

// DefaultMaxCooldown caps how large a doubled JustOffCooldown->Cooldown
// extension may grow, per spec.md's "configurable maximum, e.g. 1 hour".
const DefaultMaxCooldown = time.Hour

// NotReadyError is returned by ErrorForStatus when admission refuses a
// request because the endpoint is on cooldown. It carries a snapshot of the
// status (and, implicitly, the observation instant) so callers can compute
// CanRetry/RetryTime without racing the live Endpoint.
type NotReadyError struct {
	Id     Id
	Status Status
	Now    time.Time
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("endpoint %s not ready: %s (retry in %s)", e.Id, e.Status.Tag, e.RetryTime())
}

// CanRetry reports whether this refusal is worth retrying: true iff the
// status is Cooldown with non-zero remaining time.
func (e *NotReadyError) CanRetry() bool {
	return e.Status.Tag == StatusCooldown && e.Status.TimeLeft(e.Now) > 0
}

// RetryTime is how long the caller should wait before retrying.
func (e *NotReadyError) RetryTime() time.Duration {
	return e.Status.TimeLeft(e.Now)
}

// Endpoint is the per-node state of one region, service, or method in the
// tiered namespace. It is a pure in-memory state machine: every method here
// assumes the caller already holds whatever external lock serializes access
// (see endpointtable.Table) and performs no I/O and no locking of its own.
type Endpoint struct {
	Status     Status
	Buckets    map[time.Duration]*RateLimitBucket
	LastUpdate time.Time
}

// New constructs an Endpoint in its initial Unknown state with no bucket
// data. LastUpdate is the zero Time so any real observation is newer.
func New() *Endpoint {
	return &Endpoint{
		Status:  UnknownStatus(),
		Buckets: make(map[time.Duration]*RateLimitBucket),
	}
}

// UpdateBuckets rebuilds the bucket table from a freshly observed response.
// limits are (max_count, window) pairs from the "limit" header; counts are
// (count, window) pairs from the "count" header. observedAt is the response's
// Date header, used to linearise concurrent updates.
//
// Per spec invariant 5, an observation older than the endpoint's current
// LastUpdate is silently dropped rather than applied.
func (e *Endpoint) UpdateBuckets(limits []LimitPair, counts []CountPair, observedAt time.Time) {
	if observedAt.Before(e.LastUpdate) {
		return
	}

	e.Buckets = make(map[time.Duration]*RateLimitBucket, len(limits))
	for _, l := range limits {
		e.Buckets[l.Window] = &RateLimitBucket{
			Window:      l.Window,
			MaxCount:    l.MaxCount,
			Count:       0,
			WindowStart: observedAt,
		}
	}

	for _, c := range counts {
		bucket, ok := e.Buckets[c.Window]
		if !ok {
			// A count for a window we have no limit entry for; the server
			// headers are inconsistent for this response, skip it rather
			// than fabricate a bucket with an unknown max.
			continue
		}
		if bucket.Count > c.Count {
			// Rollover: the server's counter reset since our last look.
			bucket.WindowStart = observedAt
		}
		count := c.Count
		if count > bucket.MaxCount {
			count = bucket.MaxCount
		}
		bucket.Count = count
	}

	e.LastUpdate = observedAt
}

// UpdateStatusPreSend runs the pre-send tick: an expired Cooldown becomes a
// JustOffCooldown probe. All other states are left alone.
func (e *Endpoint) UpdateStatusPreSend(now time.Time) {
	if e.Status.Tag == StatusCooldown && e.Status.IsExpired(now) {
		e.Status = JustOffCooldownStatus(e.Status.CooldownDuration())
	}
}

// UpdateStatusOnOK applies the post-response transition for a 200 OK: from
// Unknown, Normal, or JustOffCooldown, move to Cooldown if any bucket is now
// full, else Normal.
func (e *Endpoint) UpdateStatusOnOK(now time.Time) {
	switch e.Status.Tag {
	case StatusNormal, StatusUnknown, StatusJustOffCooldown:
		if window, ok := e.shouldCooldown(); ok {
			e.Status = CooldownStatus(now, window, DefaultMaxCooldown)
		} else {
			e.Status = NormalStatus()
		}
	}
}

// UpdateStatusOn429 applies the post-response transition for a 429: only a
// JustOffCooldown probe reacts here, doubling its prior cooldown (capped at
// maxCooldown). Other states are handled by the admission layer's 429
// policy (force_cooldown across the affected tuple), not here.
func (e *Endpoint) UpdateStatusOn429(now time.Time, maxCooldown time.Duration) {
	if e.Status.Tag == StatusJustOffCooldown {
		doubled := e.Status.PrevDuration() * 2
		if doubled < e.Status.PrevDuration() {
			// overflowed; saturate
			doubled = maxCooldown
		}
		e.Status = CooldownStatus(now, doubled, maxCooldown)
	}
}

// ErrorForStatus returns nil when the endpoint currently admits a request,
// or a *NotReadyError carrying the current status when it's on Cooldown.
func (e *Endpoint) ErrorForStatus(id Id, now time.Time) error {
	if e.Status.Admissible() {
		return nil
	}
	return &NotReadyError{Id: id, Status: e.Status, Now: now}
}

// shouldCooldown scans buckets for one that is exactly full. Ties are broken
// by smallest window, matching MostLikelyCooldown's tie-break rule.
func (e *Endpoint) shouldCooldown() (time.Duration, bool) {
	found := false
	var bestWindow time.Duration
	for window, bucket := range e.Buckets {
		if bucket.Count != bucket.MaxCount {
			continue
		}
		if !found || window < bestWindow {
			bestWindow = window
			found = true
		}
	}
	return bestWindow, found
}

// MostLikelyCooldown returns the bucket with the smallest headroom
// (max_count - count), used by the admission layer to pick which endpoint
// to force into cooldown on an ambiguous 429. Ties are broken by smallest
// window. Service-tier endpoints never receive bucket data (see spec Open
// Questions), so this always returns ok=false for them.
func (e *Endpoint) MostLikelyCooldown() (window time.Duration, headroom uint64, ok bool) {
	for w, bucket := range e.Buckets {
		if bucket.MaxCount < bucket.Count {
			continue
		}
		h := bucket.MaxCount - bucket.Count
		if !ok || h < headroom || (h == headroom && w < window) {
			window, headroom, ok = w, h, true
		}
	}
	return
}

// ForceCooldown unconditionally places the endpoint into Cooldown for
// duration, regardless of its current state.
func (e *Endpoint) ForceCooldown(now time.Time, duration, maxCooldown time.Duration) {
	e.Status = CooldownStatus(now, duration, maxCooldown)
}
