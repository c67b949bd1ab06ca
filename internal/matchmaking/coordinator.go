package matchmaking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Mayankdaya/CodeClash-sub000/config"
	pkgErr "github.com/Mayankdaya/CodeClash-sub000/internal/errors"
	"github.com/Mayankdaya/CodeClash-sub000/internal/kafka"
	"github.com/Mayankdaya/CodeClash-sub000/internal/models"
	"github.com/Mayankdaya/CodeClash-sub000/internal/problem"
	"github.com/Mayankdaya/CodeClash-sub000/internal/repository"
	"github.com/Mayankdaya/CodeClash-sub000/internal/store"
	"github.com/Mayankdaya/CodeClash-sub000/pkg/logger"
	"github.com/Mayankdaya/CodeClash-sub000/pkg/retry"
)

// Coordinator drives session creation once a pairing is decided: problem
// generation with bounded retry, the pending session write, and the targeted
// assignedSessionId notification to the opponent.
type Coordinator struct {
	sessions repository.SessionRepository
	queue    repository.QueueRepository
	presence repository.PresenceRepository
	gen      problem.Generator
	prod     kafka.Producer
	cfg      config.GeneratorConfig
	l        logger.Logger
	now      func() time.Time
}

func NewCoordinator(
	sessions repository.SessionRepository,
	queue repository.QueueRepository,
	presence repository.PresenceRepository,
	gen problem.Generator,
	prod kafka.Producer,
	cfg config.GeneratorConfig,
	l logger.Logger,
) *Coordinator {
	return &Coordinator{
		sessions: sessions,
		queue:    queue,
		presence: presence,
		gen:      gen,
		prod:     prod,
		cfg:      cfg,
		l:        l,
		now:      time.Now,
	}
}

// CreateMatch is called by the matcher after it has consumed the opponent's
// queue entry. The opponent entry is already gone, so on failure the
// opponent is put back into the queue best-effort before the fatal error is
// surfaced.
func (c *Coordinator) CreateMatch(ctx context.Context, topicID string, matcher, opponent Profile) (*models.Session, error) {
	prob, err := c.generateProblem(ctx, topicID)
	if err != nil {
		c.l.Errorf(ctx, "matchmaking.Coordinator.CreateMatch: generation exhausted for topic %s: %v", topicID, err)
		c.releaseOpponent(ctx, topicID, opponent)
		return nil, fmt.Errorf("%w: %v", pkgErr.ErrMatchCreation, err)
	}

	ss := &models.Session{
		ID:      uuid.NewString(),
		TopicID: topicID,
		Problem: prob,
		Participants: [2]models.Participant{
			matcher.participant(),
			opponent.participant(),
		},
		Status: models.SessionStatusPending,
	}

	if err := c.sessions.Create(ctx, ss); err != nil {
		c.releaseOpponent(ctx, topicID, opponent)
		return nil, fmt.Errorf("%w: %v", pkgErr.ErrMatchCreation, err)
	}

	// The session exists before the opponent is pointed at it, so a waiter
	// that observes the assignment can always resolve the session.
	if err := c.queue.AssignSession(ctx, topicID, opponent.UserID, ss.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", pkgErr.ErrMatchCreation, err)
	}

	if err := c.presence.SetState(ctx, matcher.UserID, models.PresenceInMatch); err != nil {
		c.l.Warnf(ctx, "matchmaking.Coordinator.CreateMatch: presence update: %v", err)
	}

	if err := c.prod.PublishMatchCreated(ctx, kafka.MatchCreatedEvent{
		SessionID:  ss.ID,
		TopicID:    topicID,
		MatcherID:  matcher.UserID,
		OpponentID: opponent.UserID,
	}); err != nil {
		c.l.Errorf(ctx, "matchmaking.Coordinator.CreateMatch: publish match created: %v", err)
	}

	return ss, nil
}

func (c *Coordinator) generateProblem(ctx context.Context, topicID string) (*problem.Problem, error) {
	sup := retry.NewSupervisor(retry.Policy{
		MaxAttempts: c.cfg.MaxAttempts,
		Delay:       c.cfg.RetryDelay,
	})

	var prob *problem.Problem
	err := sup.Do(ctx, func(ctx context.Context) error {
		// Fresh seed per attempt so a cached bad payload cannot be served
		// back on retry.
		p, err := c.gen.Generate(ctx, topicID, uuid.NewString())
		if err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		prob = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prob, nil
}

// releaseOpponent rewrites the consumed entry with a fresh timestamp so the
// opponent becomes discoverable again. Best-effort: the waiter's own rescan
// heals the queue if this write is lost.
func (c *Coordinator) releaseOpponent(ctx context.Context, topicID string, opponent Profile) {
	entry := &models.QueueEntry{
		UserID:         opponent.UserID,
		DisplayName:    opponent.DisplayName,
		AvatarRef:      opponent.AvatarRef,
		JoinedAtMillis: c.now().UnixMilli(),
		TopicID:        topicID,
	}
	if err := c.queue.PutEntry(ctx, entry); err != nil {
		c.l.Warnf(ctx, "matchmaking.Coordinator.releaseOpponent: %v", err)
	}
}

// MarkReady flips the caller's ready bit. Whichever participant's
// transaction observes both bits set performs the pending -> active
// transition; the store's read-modify-write guarantees it happens once.
func (c *Coordinator) MarkReady(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	var flipped bool

	ss, err := c.sessions.Mutate(ctx, sessionID, func(ss *models.Session) error {
		i := ss.ParticipantIndex(userID)
		if i < 0 {
			return pkgErr.ErrParticipantUnknown
		}

		if ss.Participants[i].Ready && ss.Status != models.SessionStatusPending {
			return store.ErrUnchanged
		}

		ss.Participants[i].Ready = true
		if ss.AllReady() && ss.Status == models.SessionStatusPending {
			ss.Status = models.SessionStatusActive
			ss.StartedAtMillis = c.now().UnixMilli()
			flipped = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if flipped {
		if err := c.prod.PublishSessionStarted(ctx, kafka.SessionStartedEvent{
			SessionID: ss.ID,
			TopicID:   ss.TopicID,
			StartedAt: time.UnixMilli(ss.StartedAtMillis),
		}); err != nil {
			c.l.Errorf(ctx, "matchmaking.Coordinator.MarkReady: publish session started: %v", err)
		}
	}

	return ss, nil
}

// RecordSolve stores the participant's score and solve time. The solve time
// is written once; later calls only raise the score.
func (c *Coordinator) RecordSolve(ctx context.Context, sessionID, userID string, score int) (*models.Session, error) {
	return c.sessions.Mutate(ctx, sessionID, func(ss *models.Session) error {
		i := ss.ParticipantIndex(userID)
		if i < 0 {
			return pkgErr.ErrParticipantUnknown
		}

		p := &ss.Participants[i]
		if p.SolvedAtMillis == nil {
			at := c.now().UnixMilli()
			p.SolvedAtMillis = &at
		}
		if score > p.Score {
			p.Score = score
		}
		return nil
	})
}

func (c *Coordinator) FlagParticipant(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	return c.sessions.Mutate(ctx, sessionID, func(ss *models.Session) error {
		i := ss.ParticipantIndex(userID)
		if i < 0 {
			return pkgErr.ErrParticipantUnknown
		}
		if ss.Participants[i].Flagged {
			return store.ErrUnchanged
		}
		ss.Participants[i].Flagged = true
		return nil
	})
}

// FinishSession moves an active session to finished. Finishing twice is a
// no-op; finishing a session that never went active is rejected.
func (c *Coordinator) FinishSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var finished bool

	ss, err := c.sessions.Mutate(ctx, sessionID, func(ss *models.Session) error {
		if ss.Status == models.SessionStatusFinished {
			return store.ErrUnchanged
		}
		if !ss.Status.CanTransitionTo(models.SessionStatusFinished) {
			return pkgErr.ErrInvalidTransition
		}
		ss.Status = models.SessionStatusFinished
		finished = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if finished {
		if err := c.prod.PublishSessionFinished(ctx, kafka.SessionFinishedEvent{
			SessionID: ss.ID,
			TopicID:   ss.TopicID,
		}); err != nil {
			c.l.Errorf(ctx, "matchmaking.Coordinator.FinishSession: publish session finished: %v", err)
		}

		for i := range ss.Participants {
			if err := c.presence.SetState(ctx, ss.Participants[i].UserID, models.PresenceAvailable); err != nil {
				c.l.Warnf(ctx, "matchmaking.Coordinator.FinishSession: presence update: %v", err)
			}
		}
	}

	return ss, nil
}
