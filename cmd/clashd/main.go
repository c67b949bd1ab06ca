package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Mayankdaya/CodeClash-sub000/config"
	"github.com/Mayankdaya/CodeClash-sub000/internal/infra/redis"
	"github.com/Mayankdaya/CodeClash-sub000/internal/kafka"
	"github.com/Mayankdaya/CodeClash-sub000/internal/matchmaking"
	"github.com/Mayankdaya/CodeClash-sub000/internal/models"
	"github.com/Mayankdaya/CodeClash-sub000/internal/problem"
	"github.com/Mayankdaya/CodeClash-sub000/internal/repository"
	"github.com/Mayankdaya/CodeClash-sub000/internal/rtc"
	"github.com/Mayankdaya/CodeClash-sub000/internal/store"
	pkgKafka "github.com/Mayankdaya/CodeClash-sub000/pkg/kafka"
	pkgLog "github.com/Mayankdaya/CodeClash-sub000/pkg/logger"
)

func main() {
	userID := flag.String("user", "", "user id to queue as")
	displayName := flag.String("name", "", "display name (defaults to the user id)")
	avatarRef := flag.String("avatar", "", "avatar reference")
	topicID := flag.String("topic", "arrays-hashing", "topic queue to join")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: clashd -user <id> [-name <name>] [-avatar <ref>] [-topic <topic>]")
		os.Exit(1)
	}
	if *displayName == "" {
		*displayName = *userID
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	l := pkgLog.InitializeZapLogger(pkgLog.ZapConfig{
		Level:    cfg.Log.Level,
		Mode:     cfg.Log.Mode,
		Encoding: cfg.Log.Encoding,
	})

	redisCli, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		l.Fatalf(ctx, "Failed to connect to Redis: %v", err)
	}
	defer redis.Disconnect(redisCli)

	st := store.NewRedis(redisCli, cfg.Matchmaking.PresenceTTL, l)
	defer st.Close()

	var prod kafka.Producer = kafka.NopProducer{}
	if cfg.Kafka.Enabled {
		kSyncProd, err := pkgKafka.NewProducer(pkgKafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			RetryMax:     cfg.Kafka.ProducerRetryMax,
			RequiredAcks: cfg.Kafka.ProducerRequiredAcks,
		})
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka producer: %v", err)
		}
		prod = kafka.NewProducer(kSyncProd, l)
	}
	defer prod.Close()

	queueRepo := repository.NewQueueRepository(st, l)
	sessionRepo := repository.NewSessionRepository(st, l)
	signalRepo := repository.NewSignalRepository(st, l)
	presenceRepo := repository.NewPresenceRepository(st, l)

	gen := problem.NewHTTPGenerator(cfg.Generator, l)
	coord := matchmaking.NewCoordinator(sessionRepo, queueRepo, presenceRepo, gen, prod, cfg.Generator, l)
	queue := matchmaking.NewQueue(queueRepo, sessionRepo, presenceRepo, coord, prod, cfg.Matchmaking, l)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		l.Info(ctx, "Shutting down...")
		cancel()
	}()

	self := matchmaking.Profile{UserID: *userID, DisplayName: *displayName, AvatarRef: *avatarRef}

	result, err := joinAndAwait(ctx, queue, *topicID, self, l)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			l.Info(ctx, "clashd exited")
			return
		}
		l.Fatalf(ctx, "Matchmaking failed: %v", err)
	}
	l.Infof(ctx, "Matched with %s in session %s", result.Opponent.UserID, result.Session.ID)

	var media rtc.MediaProvider
	if sp, err := rtc.NewStaticProvider(self.UserID); err != nil {
		l.Warnf(ctx, "Local media unavailable, continuing without tracks: %v", err)
		media = rtc.NopMediaProvider{}
	} else {
		media = sp
	}

	mgr := rtc.NewManager(signalRepo, media, cfg.Rtc, l, result.Session.ID, self.UserID, result.Opponent.UserID)
	defer mgr.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mgr.Run(gctx)
	})
	g.Go(func() error {
		_, err := coord.MarkReady(gctx, result.Session.ID, self.UserID)
		return err
	})
	g.Go(func() error {
		return awaitSessionEnd(gctx, sessionRepo, result.Session.ID, mgr, l)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		l.Errorf(ctx, "Peer link ended: %v", err)
	}
	l.Info(ctx, "clashd exited")
}

// awaitSessionEnd closes the peer link once the session reaches finished, so
// the daemon exits when the match is over instead of holding the connection.
func awaitSessionEnd(ctx context.Context, sessions repository.SessionRepository, sessionID string, mgr *rtc.Manager, l pkgLog.Logger) error {
	updates, cancelWatch, err := sessions.WatchSession(ctx, sessionID)
	if err != nil {
		return err
	}
	defer cancelWatch()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ss, ok := <-updates:
			if !ok {
				return nil
			}
			if ss != nil && ss.Status == models.SessionStatusFinished {
				l.Infof(ctx, "Session %s finished, closing peer link", sessionID)
				mgr.Close()
				return nil
			}
		}
	}
}

func joinAndAwait(ctx context.Context, queue *matchmaking.Queue, topicID string, self matchmaking.Profile, l pkgLog.Logger) (*matchmaking.MatchResult, error) {
	out, err := queue.Join(ctx, topicID, self)
	if err != nil {
		return nil, err
	}
	if out.Matched != nil {
		return out.Matched, nil
	}

	l.Infof(ctx, "Waiting for an opponent on topic %s", topicID)
	select {
	case res := <-out.Ticket.Matched:
		return res, nil
	case err := <-out.Ticket.Err:
		return nil, err
	case <-ctx.Done():
		queue.Leave(out.Ticket)
		return nil, ctx.Err()
	}
}
