package crawl

import (
	"context"
	"sync"
	"testing"

	"github.com/sprintleague/riftwalker/internal/endpoint"
	"github.com/sprintleague/riftwalker/internal/riotapi"
	"github.com/sprintleague/riftwalker/internal/statusapi"
)

// fakePublisher records every event handed to it, so tests can assert the
// driver actually posts progress events rather than just logging them.
type fakePublisher struct {
	mu     sync.Mutex
	events []statusapi.Event
}

func (p *fakePublisher) Publish(ev statusapi.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *fakePublisher) Events() []statusapi.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]statusapi.Event, len(p.events))
	copy(out, p.events)
	return out
}

// fakeQuerier serves canned responses keyed by summoner name / account id /
// match id, so walker tests never touch the network.
type fakeQuerier struct {
	mu sync.Mutex

	summonersByName map[string]*riotapi.SummonerDTO
	matchlists       map[string]*riotapi.MatchlistDTO
	matches          map[int64]*riotapi.MatchDTO
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		summonersByName: make(map[string]*riotapi.SummonerDTO),
		matchlists:      make(map[string]*riotapi.MatchlistDTO),
		matches:         make(map[int64]*riotapi.MatchDTO),
	}
}

func (f *fakeQuerier) QuerySummonerByName(ctx context.Context, region endpoint.Region, name string) (*riotapi.SummonerDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dto, ok := f.summonersByName[name]
	if !ok {
		return nil, &riotapi.Error{Kind: riotapi.KindHTTPStatus, StatusCode: 404}
	}
	return dto, nil
}

func (f *fakeQuerier) QueryMatchlistByAccount(ctx context.Context, region endpoint.Region, accountID string) (*riotapi.MatchlistDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dto, ok := f.matchlists[accountID]
	if !ok {
		return &riotapi.MatchlistDTO{}, nil
	}
	return dto, nil
}

func (f *fakeQuerier) QueryMatchByID(ctx context.Context, region endpoint.Region, matchID int64) (*riotapi.MatchDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dto, ok := f.matches[matchID]
	if !ok {
		return nil, &riotapi.Error{Kind: riotapi.KindHTTPStatus, StatusCode: 404}
	}
	return dto, nil
}

// S6: a walker whose seed has zero unseen matches halts cleanly and reports
// zero records; a sibling walker with real matches is unaffected.
func TestRun_HaltsCleanlyOnEmptyMatchlist(t *testing.T) {
	q := newFakeQuerier()
	q.summonersByName["empty-seed"] = &riotapi.SummonerDTO{AccountID: "acct-empty"}
	q.matchlists["acct-empty"] = &riotapi.MatchlistDTO{Matches: nil}

	q.summonersByName["active-seed"] = &riotapi.SummonerDTO{AccountID: "acct-active"}
	q.matchlists["acct-active"] = &riotapi.MatchlistDTO{
		Matches: []riotapi.MatchReferenceDTO{{GameID: 100}},
	}
	q.matches[100] = &riotapi.MatchDTO{
		GameID: 100,
		ParticipantIdentities: []riotapi.ParticipantIdentityDTO{
			{Player: riotapi.PlayerDTO{AccountID: "acct-other"}},
		},
	}
	q.matchlists["acct-other"] = &riotapi.MatchlistDTO{} // dead end after one step

	sink := NewMemorySink()
	driver := NewDriver(q, Config{Region: endpoint.RegionNA1, Sink: sink})

	err := driver.walk(context.Background(), "walker-empty", "empty-seed", 5)
	if err != nil {
		t.Fatalf("expected clean halt, got error: %v", err)
	}
	if len(sink.Records()) != 0 {
		t.Fatalf("expected zero records for an empty seed matchlist, got %d", len(sink.Records()))
	}

	err = driver.walk(context.Background(), "walker-active", "active-seed", 5)
	if err != nil {
		t.Fatalf("expected sibling walker to succeed, got error: %v", err)
	}
	recs := sink.Records()
	if len(recs) != 1 || recs[0].GameID != 100 {
		t.Fatalf("expected one record for match 100, got %+v", recs)
	}
}

// The shared seen set must contain exactly the union of reserved ids across
// walkers run one after another on the same Driver, with no duplicate
// reservation of the same id.
func TestRun_SeenSetIsSharedAcrossWalkers(t *testing.T) {
	q := newFakeQuerier()
	q.summonersByName["seed-a"] = &riotapi.SummonerDTO{AccountID: "acct-a"}
	q.summonersByName["seed-b"] = &riotapi.SummonerDTO{AccountID: "acct-b"}

	// Both walkers' first matchlist contains the SAME match id; only the
	// first walker to reserve it may claim it.
	shared := &riotapi.MatchlistDTO{Matches: []riotapi.MatchReferenceDTO{{GameID: 1}}}
	q.matchlists["acct-a"] = shared
	q.matchlists["acct-b"] = shared
	q.matches[1] = &riotapi.MatchDTO{GameID: 1}

	sink := NewMemorySink()
	driver := NewDriver(q, Config{Region: endpoint.RegionNA1, Sink: sink})

	if err := driver.Run(context.Background(), "seed-a", 1, 1); err != nil {
		t.Fatalf("walker a failed: %v", err)
	}

	// acct-b's matchlist now only yields an already-seen id, so a fresh
	// walker over seed-b must halt without emitting anything.
	if err := driver.walk(context.Background(), "walker-b", "seed-b", 1); err != nil {
		t.Fatalf("walker b failed: %v", err)
	}

	if driver.SeenCount() != 1 {
		t.Fatalf("expected exactly 1 reserved id in the shared seen set, got %d", driver.SeenCount())
	}
	if len(sink.Records()) != 1 {
		t.Fatalf("expected exactly 1 emitted record total, got %d", len(sink.Records()))
	}
}

// Every emitted record and every clean halt must post a progress event to a
// configured Publisher.
func TestWalk_PublishesProgressEvents(t *testing.T) {
	q := newFakeQuerier()
	q.summonersByName["seed"] = &riotapi.SummonerDTO{AccountID: "acct-1"}
	q.matchlists["acct-1"] = &riotapi.MatchlistDTO{Matches: []riotapi.MatchReferenceDTO{{GameID: 7}}}
	q.matches[7] = &riotapi.MatchDTO{GameID: 7}

	pub := &fakePublisher{}
	sink := NewMemorySink()
	driver := NewDriver(q, Config{Region: endpoint.RegionNA1, Sink: sink, Publisher: pub})

	if err := driver.walk(context.Background(), "walker-0", "seed", 1); err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	events := pub.Events()
	if len(events) == 0 {
		t.Fatal("expected at least one published event")
	}
	last := events[len(events)-1]
	if last.GameID != 7 || last.Walker != "walker-0" {
		t.Fatalf("unexpected event: %+v", last)
	}
}

// RetryAttempts in Config overrides the default retry count used by walker
// queries.
func TestNewDriver_RetryAttemptsOverride(t *testing.T) {
	q := newFakeQuerier()
	driver := NewDriver(q, Config{Region: endpoint.RegionNA1, Sink: NewMemorySink(), RetryAttempts: 7})
	if driver.retryAttempts != 7 {
		t.Fatalf("expected retryAttempts 7, got %d", driver.retryAttempts)
	}

	driver2 := NewDriver(q, Config{Region: endpoint.RegionNA1, Sink: NewMemorySink()})
	if driver2.retryAttempts != defaultRetryAttempts {
		t.Fatalf("expected default retryAttempts %d, got %d", defaultRetryAttempts, driver2.retryAttempts)
	}
}
