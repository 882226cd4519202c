package riotapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"time"

	"go.uber.org/zap"

	"github.com/sprintleague/riftwalker/internal/breaker"
	"github.com/sprintleague/riftwalker/internal/endpoint"
	"github.com/sprintleague/riftwalker/internal/endpointtable"
)

// defaultForcedCooldown is applied across every affected endpoint on a 429
// when none of them carries any bucket information to estimate a cooldown
// from (spec.md §4.3 step 4's "every affected endpoint is in Unknown state").
const defaultForcedCooldown = 15 * time.Second

// Context is the shared, concurrency-safe handle every query and every
// crawl walker issues requests through. It owns the endpoint table, the
// HTTP client, and the transport breaker; the API credential is read-only
// after construction.
type Context struct {
	endpoints   *endpointtable.Table
	breaker     *breaker.TransportBreaker
	http        *http.Client
	apiKey      string
	log         *zap.Logger
	maxCooldown time.Duration
}

// NewContext constructs a Context ready to issue queries. httpClient may be
// nil, in which case a client with a 10-second timeout is used.
// maxCooldown <= 0 falls back to
// endpoint.DefaultMaxCooldown (the §4.1 cap on doubled cooldowns).
func NewContext(apiKey string, httpClient *http.Client, log *zap.Logger, maxCooldown time.Duration) *Context {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if maxCooldown <= 0 {
		maxCooldown = endpoint.DefaultMaxCooldown
	}
	return &Context{
		endpoints:   endpointtable.New(),
		breaker:     breaker.New(breaker.DefaultConfig(), log),
		http:        httpClient,
		apiKey:      apiKey,
		log:         log,
		maxCooldown: maxCooldown,
	}
}

// Endpoints exposes the endpoint table for status reporting (the status
// API's /status handler reads a Snapshot, never raw endpoints).
func (c *Context) Endpoints() *endpointtable.Table { return c.endpoints }

// QuerySummonerByName resolves a summoner name to a SummonerDTO.
func (c *Context) QuerySummonerByName(ctx context.Context, region endpoint.Region, name string) (*SummonerDTO, error) {
	uri := summonerByNameURI(region, name)
	return doQuery[SummonerDTO](ctx, c, region, endpoint.ServiceSummonerV4, summonerByNameMethodID(), uri)
}

// QuerySummonerByAccount resolves an encrypted account id to a SummonerDTO.
func (c *Context) QuerySummonerByAccount(ctx context.Context, region endpoint.Region, encryptedAccountID string) (*SummonerDTO, error) {
	uri := summonerByAccountURI(region, encryptedAccountID)
	return doQuery[SummonerDTO](ctx, c, region, endpoint.ServiceSummonerV4, summonerByAccountMethodID(), uri)
}

// QueryMatchlistByAccount fetches the match list for an encrypted account id.
func (c *Context) QueryMatchlistByAccount(ctx context.Context, region endpoint.Region, encryptedAccountID string) (*MatchlistDTO, error) {
	uri := matchlistByAccountURI(region, encryptedAccountID)
	return doQuery[MatchlistDTO](ctx, c, region, endpoint.ServiceMatchV4, matchlistByAccountMethodID(), uri)
}

// QueryMatchByID fetches full match details for a game id.
func (c *Context) QueryMatchByID(ctx context.Context, region endpoint.Region, matchID int64) (*MatchDTO, error) {
	uri := matchByIDURI(region, matchID)
	return doQuery[MatchDTO](ctx, c, region, endpoint.ServiceMatchV4, matchByIDMethodID(), uri)
}

// doQuery implements the five-step admission algorithm of spec.md §4.3 for
// one GET request, decoding the 2xx body as T.
func doQuery[T any](ctx context.Context, c *Context, region endpoint.Region, service endpoint.Service, methodID endpoint.Id, uri string) (*T, error) {
	regionID := endpoint.RegionID(region)
	serviceID := endpoint.ServiceID(region, service)
	affected := []endpoint.Id{regionID, serviceID, methodID}

	if !c.breaker.Allow() {
		return nil, transportError(fmt.Errorf("transport circuit open"))
	}

	eps, admissionErr := c.checkAdmission(affected)
	if admissionErr != nil {
		return nil, admissionErr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, transportError(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("X-Riot-Token", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, transportError(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()
	c.breaker.RecordSuccess()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, bodyDecodeError(fmt.Errorf("reading body: %w", err))
	}

	retryAfter, statusErr := c.observe(affected, eps, resp)
	if statusErr != nil {
		return nil, statusErr
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, tooManyRequestsError(retryAfter, fmt.Errorf("429 from %s", uri))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpStatusError(resp.StatusCode, fmt.Errorf("unexpected status from %s", uri))
	}

	var payload T
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, bodyDecodeError(fmt.Errorf("decoding %T: %w", payload, err))
	}
	if m, ok := any(&payload).(*MatchDTO); ok {
		var raw map[string]interface{}
		if err := json.Unmarshal(body, &raw); err == nil {
			m.RawBody = raw
		}
	}
	return &payload, nil
}

// checkAdmission runs step 2 of §4.3: under the table lock, tick every
// affected endpoint's pre-send transition and check admissibility. It
// returns the live endpoints (to be reused in observe, avoiding a second
// lookup) or the first non-admissible endpoint's error.
func (c *Context) checkAdmission(affected []endpoint.Id) ([]*endpoint.Endpoint, error) {
	var admissionErr error
	eps := make([]*endpoint.Endpoint, 0, len(affected))

	c.endpoints.With(func(get func(endpoint.Id) *endpoint.Endpoint) {
		now := time.Now()
		for _, id := range affected {
			ep := get(id)
			ep.UpdateStatusPreSend(now)
			if err := ep.ErrorForStatus(id, now); err != nil {
				admissionErr = err
				return
			}
			eps = append(eps, ep)
		}
	})

	if admissionErr != nil {
		return nil, admissionErr
	}
	return eps, nil
}

// observe implements step 4 of §4.3 under a freshly reacquired table lock,
// returning the dominant retry duration across affected endpoints (the
// longest remaining cooldown) for a 429 response.
func (c *Context) observe(affected []endpoint.Id, eps []*endpoint.Endpoint, resp *http.Response) (time.Duration, error) {
	var retryAfter time.Duration
	var headerErr error

	c.endpoints.With(func(get func(endpoint.Id) *endpoint.Endpoint) {
		now := time.Now()

		switch resp.StatusCode {
		case http.StatusOK:
			observedAt, err := parseObservationTime(resp.Header.Get("Date"), now)
			if err != nil {
				headerErr = headerParseError(err)
				return
			}

			for i, id := range affected {
				ep := eps[i]
				if id.IsRegion() {
					if err := applyBuckets(ep, resp.Header, "X-App-Rate-Limit", "X-App-Rate-Limit-Count", observedAt); err != nil {
						headerErr = headerParseError(err)
						return
					}
				} else if id.IsMethod() {
					if err := applyBuckets(ep, resp.Header, "X-Method-Rate-Limit", "X-Method-Rate-Limit-Count", observedAt); err != nil {
						headerErr = headerParseError(err)
						return
					}
				}
			}
			for _, ep := range eps {
				// Cooldown start is measured on the local clock, not the
				// server-reported Date header: a stale Date must never make
				// a freshly entered cooldown look already expired.
				ep.UpdateStatusOnOK(now)
			}

		case http.StatusTooManyRequests:
			for _, ep := range eps {
				ep.UpdateStatusOn429(now, c.maxCooldown)
			}

			anyCooldown := false
			for _, ep := range eps {
				if ep.Status.Tag == endpoint.StatusCooldown {
					anyCooldown = true
					break
				}
			}
			if !anyCooldown {
				bestIdx := -1
				var bestHeadroom uint64
				var bestWindow time.Duration
				for i, ep := range eps {
					window, headroom, ok := ep.MostLikelyCooldown()
					if !ok {
						continue
					}
					if bestIdx == -1 || headroom < bestHeadroom || (headroom == bestHeadroom && window < bestWindow) {
						bestIdx, bestHeadroom, bestWindow = i, headroom, window
					}
				}
				if bestIdx >= 0 {
					eps[bestIdx].ForceCooldown(now, bestWindow, c.maxCooldown)
				} else {
					for _, ep := range eps {
						ep.ForceCooldown(now, defaultForcedCooldown, c.maxCooldown)
					}
				}
			}

			for _, ep := range eps {
				if d := ep.Status.TimeLeft(now); d > retryAfter {
					retryAfter = d
				}
			}

		default:
			// Other 4xx/5xx: bucket state is left untouched.
		}
	})

	return retryAfter, headerErr
}

// parseObservationTime parses the response's RFC 2822 Date header. Falls
// back to the local clock only if the header is entirely absent, never on a
// parse error (a malformed Date header is a genuine HeaderParse failure).
func parseObservationTime(header string, fallback time.Time) (time.Time, error) {
	if header == "" {
		return fallback, nil
	}
	t, err := mail.ParseDate(header)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing Date header %q: %w", header, err)
	}
	return t, nil
}

// applyBuckets parses the limit/count header pair and folds them into ep if
// the observation is newer than what it already has (UpdateBuckets itself
// enforces the staleness check).
func applyBuckets(ep *endpoint.Endpoint, header http.Header, limitHeader, countHeader string, observedAt time.Time) error {
	limits, err := endpoint.ParseLimits(header.Get(limitHeader))
	if err != nil {
		return err
	}
	counts, err := endpoint.ParseCounts(header.Get(countHeader))
	if err != nil {
		return err
	}
	ep.UpdateBuckets(limits, counts, observedAt)
	return nil
}
