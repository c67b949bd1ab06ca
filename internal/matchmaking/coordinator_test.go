package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Mayankdaya/CodeClash-sub000/config"
	pkgErr "github.com/Mayankdaya/CodeClash-sub000/internal/errors"
	"github.com/Mayankdaya/CodeClash-sub000/internal/kafka"
	"github.com/Mayankdaya/CodeClash-sub000/internal/models"
	"github.com/Mayankdaya/CodeClash-sub000/internal/problem"
	"github.com/Mayankdaya/CodeClash-sub000/internal/repository"
	"github.com/Mayankdaya/CodeClash-sub000/internal/store"
	"github.com/Mayankdaya/CodeClash-sub000/pkg/logger"
)

type stubGenerator struct {
	mu    sync.Mutex
	calls int
	seeds []string
	// failures is the number of leading calls that fail; -1 fails forever.
	failures int
}

func (g *stubGenerator) Generate(ctx context.Context, topicID, seed string) (*problem.Problem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls++
	g.seeds = append(g.seeds, seed)
	if g.failures == -1 || g.calls <= g.failures {
		return nil, fmt.Errorf("generator unavailable (call %d)", g.calls)
	}
	return validProblem(topicID), nil
}

type captureProducer struct {
	kafka.NopProducer
	mu       sync.Mutex
	created  []kafka.MatchCreatedEvent
	started  []kafka.SessionStartedEvent
	finished []kafka.SessionFinishedEvent
	left     []kafka.QueueLeftEvent
}

func (p *captureProducer) PublishMatchCreated(_ context.Context, e kafka.MatchCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *captureProducer) PublishSessionStarted(_ context.Context, e kafka.SessionStartedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, e)
	return nil
}

func (p *captureProducer) PublishSessionFinished(_ context.Context, e kafka.SessionFinishedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = append(p.finished, e)
	return nil
}

func (p *captureProducer) PublishQueueLeft(_ context.Context, e kafka.QueueLeftEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.left = append(p.left, e)
	return nil
}

func (p *captureProducer) startedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.started)
}

func (p *captureProducer) finishedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.finished)
}

func validProblem(topicID string) *problem.Problem {
	return &problem.Problem{
		Title:       "Two Sum",
		Description: "Find two numbers adding to target.",
		Difficulty:  topicID,
		EntryPoint:  "twoSum",
		TestCases: []problem.TestCase{
			{Input: json.RawMessage(`[[2,7,11,15],9]`), Expected: json.RawMessage(`[0,1]`)},
			{Input: json.RawMessage(`[[3,2,4],6]`), Expected: json.RawMessage(`[1,2]`)},
			{Input: json.RawMessage(`[[3,3],6]`), Expected: json.RawMessage(`[0,1]`), Hidden: true},
		},
	}
}

type testEnv struct {
	st       store.Store
	queue    repository.QueueRepository
	sessions repository.SessionRepository
	presence repository.PresenceRepository
	gen      *stubGenerator
	prod     *captureProducer
	coord    *Coordinator
	q        *Queue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	l := logger.InitializeTestZapLogger()
	st := store.NewMemory()
	t.Cleanup(func() { _ = st.Close() })

	env := &testEnv{
		st:       st,
		queue:    repository.NewQueueRepository(st, l),
		sessions: repository.NewSessionRepository(st, l),
		presence: repository.NewPresenceRepository(st, l),
		gen:      &stubGenerator{},
		prod:     &captureProducer{},
	}

	env.coord = NewCoordinator(env.sessions, env.queue, env.presence, env.gen, env.prod, config.GeneratorConfig{
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
	}, l)

	env.q = NewQueue(env.queue, env.sessions, env.presence, env.coord, env.prod, config.MatchmakingConfig{
		FreshnessWindow: 120 * time.Second,
		RescanInterval:  20 * time.Millisecond,
		PresenceTTL:     time.Second,
	}, l)

	return env
}

func profile(id string) Profile {
	return Profile{UserID: id, DisplayName: "player " + id, AvatarRef: "avatars/" + id}
}

func TestCreateMatchWritesSessionBeforeAssignment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	ss, err := env.coord.CreateMatch(ctx, "arrays", profile("alice"), profile("bob"))
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if ss.Status != models.SessionStatusPending {
		t.Fatalf("status = %s, want pending", ss.Status)
	}
	if ss.Problem == nil || len(ss.Problem.TestCases) < problem.MinTestCases {
		t.Fatalf("session problem not populated: %+v", ss.Problem)
	}

	stored, err := env.sessions.Get(ctx, ss.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Participants[0].UserID != "alice" || stored.Participants[1].UserID != "bob" {
		t.Fatalf("participants = %s, %s", stored.Participants[0].UserID, stored.Participants[1].UserID)
	}

	entries, err := env.queue.ListEntries(ctx, "arrays")
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].UserID != "bob" {
		t.Fatalf("expected a single tombstone entry for bob, got %+v", entries)
	}
	if entries[0].AssignedSessionID != ss.ID {
		t.Fatalf("assignedSessionId = %q, want %q", entries[0].AssignedSessionID, ss.ID)
	}

	if len(env.prod.created) != 1 || env.prod.created[0].SessionID != ss.ID {
		t.Fatalf("match created events = %+v", env.prod.created)
	}
}

func TestCreateMatchRetriesWithFreshSeeds(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.gen.failures = 2

	if _, err := env.coord.CreateMatch(ctx, "graphs", profile("alice"), profile("bob")); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	if env.gen.calls != 3 {
		t.Fatalf("generator calls = %d, want 3", env.gen.calls)
	}
	seen := make(map[string]bool)
	for _, s := range env.gen.seeds {
		if seen[s] {
			t.Fatalf("seed %q reused across attempts", s)
		}
		seen[s] = true
	}
}

func TestCreateMatchExhaustedReleasesOpponent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.gen.failures = -1

	_, err := env.coord.CreateMatch(ctx, "graphs", profile("alice"), profile("bob"))
	if !errors.Is(err, pkgErr.ErrMatchCreation) {
		t.Fatalf("err = %v, want ErrMatchCreation", err)
	}
	if env.gen.calls != 3 {
		t.Fatalf("generator calls = %d, want 3", env.gen.calls)
	}

	entries, err := env.queue.ListEntries(ctx, "graphs")
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].UserID != "bob" {
		t.Fatalf("opponent not released back into the queue: %+v", entries)
	}
	if entries[0].IsAssigned() {
		t.Fatalf("released entry must not carry an assignment: %+v", entries[0])
	}
}

func TestMarkReadyActivatesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	ss, err := env.coord.CreateMatch(ctx, "arrays", profile("alice"), profile("bob"))
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	ss, err = env.coord.MarkReady(ctx, ss.ID, "alice")
	if err != nil {
		t.Fatalf("MarkReady alice: %v", err)
	}
	if ss.Status != models.SessionStatusPending {
		t.Fatalf("status after one ready = %s, want pending", ss.Status)
	}

	ss, err = env.coord.MarkReady(ctx, ss.ID, "bob")
	if err != nil {
		t.Fatalf("MarkReady bob: %v", err)
	}
	if ss.Status != models.SessionStatusActive {
		t.Fatalf("status = %s, want active", ss.Status)
	}
	if ss.StartedAtMillis == 0 {
		t.Fatal("startTime not recorded")
	}

	// Re-pressing ready after the start must not restart the session.
	again, err := env.coord.MarkReady(ctx, ss.ID, "bob")
	if err != nil {
		t.Fatalf("MarkReady repeat: %v", err)
	}
	if again.StartedAtMillis != ss.StartedAtMillis {
		t.Fatalf("startTime moved: %d -> %d", ss.StartedAtMillis, again.StartedAtMillis)
	}
	if env.prod.startedCount() != 1 {
		t.Fatalf("session started events = %d, want 1", env.prod.startedCount())
	}

	if _, err := env.coord.MarkReady(ctx, ss.ID, "mallory"); !errors.Is(err, pkgErr.ErrParticipantUnknown) {
		t.Fatalf("err = %v, want ErrParticipantUnknown", err)
	}
}

func TestRecordSolveKeepsFirstTimeAndBestScore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	base := time.Now()
	env.coord.now = func() time.Time { return base }

	ss, err := env.coord.CreateMatch(ctx, "arrays", profile("alice"), profile("bob"))
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	ss, err = env.coord.RecordSolve(ctx, ss.ID, "alice", 70)
	if err != nil {
		t.Fatalf("RecordSolve: %v", err)
	}
	first := ss.Participants[ss.ParticipantIndex("alice")]
	if first.Score != 70 || first.SolvedAtMillis == nil {
		t.Fatalf("first solve = %+v", first)
	}

	env.coord.now = func() time.Time { return base.Add(time.Minute) }

	ss, err = env.coord.RecordSolve(ctx, ss.ID, "alice", 50)
	if err != nil {
		t.Fatalf("RecordSolve repeat: %v", err)
	}
	p := ss.Participants[ss.ParticipantIndex("alice")]
	if p.Score != 70 {
		t.Fatalf("score lowered to %d", p.Score)
	}
	if *p.SolvedAtMillis != *first.SolvedAtMillis {
		t.Fatalf("solved timestamp rewritten: %d -> %d", *first.SolvedAtMillis, *p.SolvedAtMillis)
	}
}

func TestFinishSessionTransitions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	ss, err := env.coord.CreateMatch(ctx, "arrays", profile("alice"), profile("bob"))
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	if _, err := env.coord.FinishSession(ctx, ss.ID); !errors.Is(err, pkgErr.ErrInvalidTransition) {
		t.Fatalf("finishing a pending session: err = %v, want ErrInvalidTransition", err)
	}

	if _, err := env.coord.MarkReady(ctx, ss.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.coord.MarkReady(ctx, ss.ID, "bob"); err != nil {
		t.Fatal(err)
	}

	ss, err = env.coord.FinishSession(ctx, ss.ID)
	if err != nil {
		t.Fatalf("FinishSession: %v", err)
	}
	if ss.Status != models.SessionStatusFinished {
		t.Fatalf("status = %s, want finished", ss.Status)
	}

	// Finishing again is a no-op, not an error and not a second event.
	if _, err := env.coord.FinishSession(ctx, ss.ID); err != nil {
		t.Fatalf("FinishSession repeat: %v", err)
	}
	if env.prod.finishedCount() != 1 {
		t.Fatalf("session finished events = %d, want 1", env.prod.finishedCount())
	}
}

func TestFlagParticipantIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	ss, err := env.coord.CreateMatch(ctx, "arrays", profile("alice"), profile("bob"))
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	for i := 0; i < 2; i++ {
		ss, err = env.coord.FlagParticipant(ctx, ss.ID, "bob")
		if err != nil {
			t.Fatalf("FlagParticipant #%d: %v", i+1, err)
		}
	}
	if !ss.Participants[ss.ParticipantIndex("bob")].Flagged {
		t.Fatal("bob not flagged")
	}
	if ss.Participants[ss.ParticipantIndex("alice")].Flagged {
		t.Fatal("alice flagged")
	}
}
