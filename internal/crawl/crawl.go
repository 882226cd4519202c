// Package crawl drives a random walk over the match-history graph,
// producing match records while sharing one admission context's rate-limit
// state across every concurrent walker.
package crawl

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sprintleague/riftwalker/internal/clockutil"
	"github.com/sprintleague/riftwalker/internal/endpoint"
	"github.com/sprintleague/riftwalker/internal/retry"
	"github.com/sprintleague/riftwalker/internal/riotapi"
	"github.com/sprintleague/riftwalker/internal/statusapi"
)

// Publisher receives crawl-progress events. *statusapi.Server satisfies
// this; it exists as its own interface so tests can drive a Driver without
// a real status server.
type Publisher interface {
	Publish(ev statusapi.Event)
}

// Querier is the subset of *riotapi.Context a walker needs. It exists so
// tests can drive the walk against a fake without an HTTP server, and so
// this package never needs to import riotapi's concrete Context beyond this
// interface boundary.
type Querier interface {
	QuerySummonerByName(ctx context.Context, region endpoint.Region, name string) (*riotapi.SummonerDTO, error)
	QueryMatchlistByAccount(ctx context.Context, region endpoint.Region, encryptedAccountID string) (*riotapi.MatchlistDTO, error)
	QueryMatchByID(ctx context.Context, region endpoint.Region, matchID int64) (*riotapi.MatchDTO, error)
}

// seenSet is the shared, mutex-protected pool of match ids every walker has
// already reserved. It is a separate lock from the endpoint table and the
// sink, per the no-nested-locks discipline: a walker never holds this lock
// while it holds the sink's.
type seenSet struct {
	mu   sync.Mutex
	seen map[int64]struct{}
}

func newSeenSet() *seenSet {
	return &seenSet{seen: make(map[int64]struct{})}
}

// reserve picks the first match id in refs not already seen, atomically
// marking it seen. Returns ok=false if every id in refs is already claimed.
func (s *seenSet) reserve(refs []riotapi.MatchReferenceDTO) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ref := range refs {
		if _, taken := s.seen[ref.GameID]; taken {
			continue
		}
		s.seen[ref.GameID] = struct{}{}
		return ref.GameID, true
	}
	return 0, false
}

// size reports how many ids have been reserved so far, for tests.
func (s *seenSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// defaultRetryAttempts is how many times a single walker call is retried
// when the error honours a retry hint (spec.md §6's retry_count parameter),
// used when Config.RetryAttempts is left at zero.
const defaultRetryAttempts = 3

// Driver coordinates N independent walkers over one shared Querier, seen
// set, and output sink.
type Driver struct {
	client Querier
	region endpoint.Region
	sink   Sink
	clock  clockutil.Clock
	log    *zap.Logger

	seen *seenSet

	retryAttempts int

	// publisher posts best-effort progress events for the status API's
	// websocket feed; nil disables publishing entirely.
	publisher Publisher

	// dispatch paces how many walkers may begin their first request per
	// second; it bounds local concurrency only and is independent of the
	// admission layer's own rate-limit tracking — see NewDriver.
	dispatch *rate.Limiter
}

// Config tunes a Driver.
type Config struct {
	Region                endpoint.Region
	Sink                  Sink
	Clock                 clockutil.Clock
	Logger                *zap.Logger
	MaxWalkerStartsPerSec float64

	// RetryAttempts overrides defaultRetryAttempts when > 0.
	RetryAttempts int

	// Publisher, if set, receives a progress event for every emitted
	// record and every walker halt/error.
	Publisher Publisher
}

// NewDriver constructs a Driver. MaxWalkerStartsPerSec <= 0 disables local
// dispatch pacing (every walker starts immediately; the admission layer's
// cooldowns are still the real backstop).
func NewDriver(client Querier, cfg Config) *Driver {
	if cfg.Clock == nil {
		cfg.Clock = clockutil.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.MaxWalkerStartsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxWalkerStartsPerSec), 1)
	}

	retryAttempts := cfg.RetryAttempts
	if retryAttempts <= 0 {
		retryAttempts = defaultRetryAttempts
	}

	return &Driver{
		client:        client,
		region:        cfg.Region,
		sink:          cfg.Sink,
		clock:         cfg.Clock,
		log:           cfg.Logger,
		seen:          newSeenSet(),
		retryAttempts: retryAttempts,
		publisher:     cfg.Publisher,
		dispatch:      limiter,
	}
}

// notify posts a best-effort progress event if a publisher is configured.
func (d *Driver) notify(walker, message string, gameID int64) {
	if d.publisher == nil {
		return
	}
	d.publisher.Publish(statusapi.Event{Walker: walker, Message: message, GameID: gameID})
}

// Run starts numWalkers concurrent walks, each seeded by seedSummonerName
// and each emitting up to numSteps records. It joins every walker and
// returns the first walker's error, if any, wrapped in a riotapi.JoinError;
// partial results already emitted to the sink are preserved regardless.
func (d *Driver) Run(ctx context.Context, seedSummonerName string, numSteps, numWalkers int) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < numWalkers; i++ {
		walkerName := fmt.Sprintf("walker-%d", i)
		g.Go(func() error {
			if d.dispatch != nil {
				if err := d.dispatch.Wait(gctx); err != nil {
					return &riotapi.JoinError{Walker: walkerName, Cause: err}
				}
			}
			if err := d.walk(gctx, walkerName, seedSummonerName, numSteps); err != nil {
				d.notify(walkerName, "failed: "+err.Error(), 0)
				return &riotapi.JoinError{Walker: walkerName, Cause: err}
			}
			return nil
		})
	}

	return g.Wait()
}

// walk implements the per-walker algorithm of spec.md §4.5.
func (d *Driver) walk(ctx context.Context, name, seedSummonerName string, numSteps int) error {
	summoner, err := retry.Do(ctx, d.clock, d.retryAttempts, func() (*riotapi.SummonerDTO, error) {
		return d.client.QuerySummonerByName(ctx, d.region, seedSummonerName)
	})
	if err != nil {
		return fmt.Errorf("resolving seed summoner: %w", err)
	}

	matchID, ok, err := d.nextMatchID(ctx, summoner.AccountID)
	if err != nil {
		return fmt.Errorf("fetching seed match list: %w", err)
	}
	if !ok {
		d.log.Info("walker halted: seed has no unseen matches", zap.String("walker", name))
		d.notify(name, "halted: seed has no unseen matches", 0)
		return nil
	}

	for i := 0; i < numSteps; i++ {
		match, err := retry.Do(ctx, d.clock, d.retryAttempts, func() (*riotapi.MatchDTO, error) {
			return d.client.QueryMatchByID(ctx, d.region, matchID)
		})
		if err != nil {
			return fmt.Errorf("fetching match %d: %w", matchID, err)
		}

		if err := d.emit(name, match); err != nil {
			return fmt.Errorf("emitting match %d: %w", matchID, err)
		}

		if i == numSteps-1 {
			break
		}

		account := randomParticipantAccount(match)
		if account == "" {
			d.log.Info("walker halted: match has no usable participants", zap.String("walker", name))
			d.notify(name, "halted: match has no usable participants", match.GameID)
			return nil
		}

		nextID, ok, err := d.nextMatchID(ctx, account)
		if err != nil {
			return fmt.Errorf("fetching next match list: %w", err)
		}
		if !ok {
			d.log.Info("walker halted: no unseen matches remain", zap.String("walker", name))
			d.notify(name, "halted: no unseen matches remain", matchID)
			return nil
		}
		matchID = nextID
	}

	return nil
}

// nextMatchID fetches accountID's match list and reserves the first unseen
// match id from it.
func (d *Driver) nextMatchID(ctx context.Context, accountID string) (int64, bool, error) {
	matchlist, err := retry.Do(ctx, d.clock, d.retryAttempts, func() (*riotapi.MatchlistDTO, error) {
		return d.client.QueryMatchlistByAccount(ctx, d.region, accountID)
	})
	if err != nil {
		return 0, false, err
	}
	id, ok := d.seen.reserve(matchlist.Matches)
	return id, ok, nil
}

func (d *Driver) emit(walker string, match *riotapi.MatchDTO) error {
	accounts := make([]string, 0, len(match.ParticipantIdentities))
	for _, pi := range match.ParticipantIdentities {
		accounts = append(accounts, pi.Player.AccountID)
	}
	if err := d.sink.Write(Record{GameID: match.GameID, ParticipantAccts: accounts}); err != nil {
		return err
	}
	d.notify(walker, "match recorded", match.GameID)
	return nil
}

// randomParticipantAccount picks a uniformly random participant's encrypted
// account id from match, or "" if it has none.
func randomParticipantAccount(match *riotapi.MatchDTO) string {
	if len(match.ParticipantIdentities) == 0 {
		return ""
	}
	idx := rand.Intn(len(match.ParticipantIdentities))
	return match.ParticipantIdentities[idx].Player.AccountID
}

// SeenCount reports how many distinct match ids have been reserved across
// every walker this Driver has run, for tests and status reporting.
func (d *Driver) SeenCount() int {
	return d.seen.size()
}
