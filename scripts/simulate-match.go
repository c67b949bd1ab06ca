// Simulates a full two-peer match against the in-memory store: both users
// join the queue, pair up, mark ready, and run the signaling exchange
// through real peer connections. No Redis or generator service required.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mayankdaya/CodeClash-sub000/config"
	"github.com/Mayankdaya/CodeClash-sub000/internal/kafka"
	"github.com/Mayankdaya/CodeClash-sub000/internal/matchmaking"
	"github.com/Mayankdaya/CodeClash-sub000/internal/problem"
	"github.com/Mayankdaya/CodeClash-sub000/internal/repository"
	"github.com/Mayankdaya/CodeClash-sub000/internal/rtc"
	"github.com/Mayankdaya/CodeClash-sub000/internal/store"
	pkgLog "github.com/Mayankdaya/CodeClash-sub000/pkg/logger"
)

var (
	topicID     = flag.String("topic", "arrays-hashing", "Topic to simulate on")
	linkTimeout = flag.Duration("link-timeout", 30*time.Second, "How long to wait for the peer link")
)

// cannedGenerator stands in for the external problem service.
type cannedGenerator struct{}

func (cannedGenerator) Generate(_ context.Context, topic, seed string) (*problem.Problem, error) {
	return &problem.Problem{
		Title:       "Two Sum",
		Description: fmt.Sprintf("Canned problem for %s (seed %s)", topic, seed),
		Difficulty:  "easy",
		EntryPoint:  "twoSum",
		TestCases: []problem.TestCase{
			{Input: json.RawMessage(`[[2,7,11,15],9]`), Expected: json.RawMessage(`[0,1]`)},
			{Input: json.RawMessage(`[[3,2,4],6]`), Expected: json.RawMessage(`[1,2]`)},
			{Input: json.RawMessage(`[[3,3],6]`), Expected: json.RawMessage(`[0,1]`), Hidden: true},
		},
	}, nil
}

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := pkgLog.InitializeZapLogger(pkgLog.ZapConfig{Level: "info", Mode: "development", Encoding: "console"})

	st := store.NewMemory()
	defer st.Close()

	queueRepo := repository.NewQueueRepository(st, l)
	sessionRepo := repository.NewSessionRepository(st, l)
	signalRepo := repository.NewSignalRepository(st, l)
	presenceRepo := repository.NewPresenceRepository(st, l)

	mcfg := config.MatchmakingConfig{
		FreshnessWindow: 120 * time.Second,
		RescanInterval:  time.Second,
		PresenceTTL:     10 * time.Second,
	}
	gcfg := config.GeneratorConfig{MaxAttempts: 3, RetryDelay: time.Second}
	rcfg := config.RtcConfig{SoftRestartLimit: 5, RestartDelay: 2 * time.Second}

	coord := matchmaking.NewCoordinator(sessionRepo, queueRepo, presenceRepo, cannedGenerator{}, kafka.NopProducer{}, gcfg, l)
	queue := matchmaking.NewQueue(queueRepo, sessionRepo, presenceRepo, coord, kafka.NopProducer{}, mcfg, l)

	alice := matchmaking.Profile{UserID: "alice", DisplayName: "Alice", AvatarRef: "avatars/alice"}
	bob := matchmaking.Profile{UserID: "bob", DisplayName: "Bob", AvatarRef: "avatars/bob"}

	fmt.Printf("👤 %s joins topic %q\n", alice.UserID, *topicID)
	outA, err := queue.Join(ctx, *topicID, alice)
	if err != nil {
		fmt.Printf("join failed: %v\n", err)
		os.Exit(1)
	}
	if outA.Ticket == nil {
		fmt.Println("expected alice to wait on an empty queue")
		os.Exit(1)
	}

	fmt.Printf("👤 %s joins topic %q\n", bob.UserID, *topicID)
	outB, err := queue.Join(ctx, *topicID, bob)
	if err != nil {
		fmt.Printf("join failed: %v\n", err)
		os.Exit(1)
	}
	if outB.Matched == nil {
		fmt.Println("expected bob to match alice immediately")
		os.Exit(1)
	}

	var resA *matchmaking.MatchResult
	select {
	case resA = <-outA.Ticket.Matched:
	case err := <-outA.Ticket.Err:
		fmt.Printf("alice's ticket failed: %v\n", err)
		os.Exit(1)
	case <-time.After(10 * time.Second):
		fmt.Println("alice never observed the assignment")
		os.Exit(1)
	}

	session := resA.Session
	fmt.Printf("✅ Matched: session %s, problem %q\n", session.ID, session.Problem.Title)

	if _, err := coord.MarkReady(ctx, session.ID, alice.UserID); err != nil {
		fmt.Printf("ready failed: %v\n", err)
		os.Exit(1)
	}
	ss, err := coord.MarkReady(ctx, session.ID, bob.UserID)
	if err != nil {
		fmt.Printf("ready failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Both ready, session status %q\n", ss.Status)

	mgrA := rtc.NewManager(signalRepo, rtc.NopMediaProvider{}, rcfg, l, session.ID, alice.UserID, bob.UserID)
	mgrB := rtc.NewManager(signalRepo, rtc.NopMediaProvider{}, rcfg, l, session.ID, bob.UserID, alice.UserID)

	linkCtx, cancelLink := context.WithTimeout(ctx, *linkTimeout)
	defer cancelLink()

	g, gctx := errgroup.WithContext(linkCtx)
	g.Go(func() error { return mgrA.Run(gctx) })
	g.Go(func() error { return mgrB.Run(gctx) })
	g.Go(func() error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if mgrA.State() == rtc.StateConnected && mgrB.State() == rtc.StateConnected {
					fmt.Println("✅ Peer link connected on both sides")
					mgrA.Close()
					mgrB.Close()
					return nil
				}
			}
		}
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		fmt.Printf("peer link: %v (states: %v / %v)\n", err, mgrA.State(), mgrB.State())
	}

	if _, err := coord.FinishSession(ctx, session.ID); err != nil {
		fmt.Printf("finish failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ Session finished")
}
