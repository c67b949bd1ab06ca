// Package matchmaking implements the distributed per-topic queue: waiting
// users pair each other with no central lock, relying on compare-and-delete
// consumption and the older-waiter-initiates tie-break.
package matchmaking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Mayankdaya/CodeClash-sub000/config"
	"github.com/Mayankdaya/CodeClash-sub000/internal/kafka"
	"github.com/Mayankdaya/CodeClash-sub000/internal/models"
	"github.com/Mayankdaya/CodeClash-sub000/internal/repository"
	"github.com/Mayankdaya/CodeClash-sub000/internal/store"
	"github.com/Mayankdaya/CodeClash-sub000/pkg/logger"
	"github.com/Mayankdaya/CodeClash-sub000/pkg/retry"
)

type Queue struct {
	repo     repository.QueueRepository
	sessions repository.SessionRepository
	presence repository.PresenceRepository
	coord    *Coordinator
	prod     kafka.Producer
	cfg      config.MatchmakingConfig
	l        logger.Logger
	now      func() time.Time
}

func NewQueue(
	repo repository.QueueRepository,
	sessions repository.SessionRepository,
	presence repository.PresenceRepository,
	coord *Coordinator,
	prod kafka.Producer,
	cfg config.MatchmakingConfig,
	l logger.Logger,
) *Queue {
	return &Queue{
		repo:     repo,
		sessions: sessions,
		presence: presence,
		coord:    coord,
		prod:     prod,
		cfg:      cfg,
		l:        l,
		now:      time.Now,
	}
}

// Ticket represents a registered waiter. Exactly one of Matched or Err
// eventually delivers, unless the ticket is cancelled first.
type Ticket struct {
	TopicID string

	Matched <-chan *MatchResult
	Err     <-chan error

	self       Profile
	cancel     func()
	cancelOnce sync.Once
}

// Cancel withdraws the waiter. Idempotent.
func (t *Ticket) Cancel() {
	t.cancelOnce.Do(t.cancel)
}

// Join either pairs the caller immediately (caller plays matcher) or
// registers it as a waiter. Store failures surface as retryable errors; the
// caller re-joins at its next natural trigger.
func (q *Queue) Join(ctx context.Context, topicID string, self Profile) (*Outcome, error) {
	entries, err := q.repo.ListEntries(ctx, topicID)
	if err != nil {
		return nil, err
	}

	candidates := make([]repository.QueueEntryRecord, 0, len(entries))
	for i := range entries {
		e := &entries[i]

		// A prior session may have left a ghost entry for ourselves.
		if e.UserID == self.UserID {
			if err := q.repo.DeleteEntry(ctx, topicID, self.UserID); err != nil {
				q.l.Warnf(ctx, "matchmaking.Queue.Join: removing stale self entry: %v", err)
			}
			continue
		}
		if e.IsAssigned() || e.IsStale(q.now(), q.cfg.FreshnessWindow) {
			continue
		}
		candidates = append(candidates, *e)
	}

	// Oldest first: fairness, and a deterministic choice among concurrent
	// matchers.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].JoinedAtMillis < candidates[j].JoinedAtMillis
	})

	for i := range candidates {
		rec := &candidates[i]

		ok, err := q.repo.ConsumeEntry(ctx, rec)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Another matcher got there first; move to the next candidate.
			continue
		}

		opponent := Profile{UserID: rec.UserID, DisplayName: rec.DisplayName, AvatarRef: rec.AvatarRef}
		ss, err := q.coord.CreateMatch(ctx, topicID, self, opponent)
		if err != nil {
			return nil, err
		}
		return &Outcome{Matched: &MatchResult{Session: ss, Opponent: opponent}}, nil
	}

	return q.wait(ctx, topicID, self)
}

// Leave withdraws a waiting ticket; safe to call any number of times.
func (q *Queue) Leave(t *Ticket) {
	if t == nil {
		return
	}
	t.Cancel()
}

func (q *Queue) wait(ctx context.Context, topicID string, self Profile) (*Outcome, error) {
	entry := &models.QueueEntry{
		UserID:         self.UserID,
		DisplayName:    self.DisplayName,
		AvatarRef:      self.AvatarRef,
		JoinedAtMillis: q.now().UnixMilli(),
		TopicID:        topicID,
	}

	if err := q.repo.PutEntry(ctx, entry); err != nil {
		return nil, err
	}

	cleanupEntry, err := q.repo.RegisterCleanup(ctx, topicID, self.UserID)
	if err != nil {
		// Without presence-cleanup a crashed waiter is still collected by
		// the freshness window.
		q.l.Warnf(ctx, "matchmaking.Queue.wait: presence-cleanup registration: %v", err)
		cleanupEntry = func() {}
	}

	if err := q.presence.SetState(ctx, self.UserID, models.PresenceWaiting); err != nil {
		q.l.Warnf(ctx, "matchmaking.Queue.wait: presence update: %v", err)
	}
	cleanupStatus, err := q.presence.RegisterCleanup(ctx, self.UserID)
	if err != nil {
		cleanupStatus = func() {}
	}

	if err := q.prod.PublishQueueJoined(ctx, kafka.QueueJoinedEvent{
		UserID:   self.UserID,
		TopicID:  topicID,
		JoinedAt: entry.JoinedAt(),
	}); err != nil {
		q.l.Errorf(ctx, "matchmaking.Queue.wait: publish queue joined: %v", err)
	}

	// The ticket outlives the Join call; its lifetime ends at match
	// delivery, a fatal error, or Cancel.
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	matched := make(chan *MatchResult, 1)
	errs := make(chan error, 1)

	t := &Ticket{
		TopicID: topicID,
		Matched: matched,
		Err:     errs,
		self:    self,
		cancel:  cancel,
	}

	go q.waiterLoop(watchCtx, entry, cleanupEntry, cleanupStatus, matched, errs)

	return &Outcome{Ticket: t}, nil
}

// waiterLoop runs the two concurrent watches of a registered waiter: the
// subscription on its own entry (assignment arrives there) and the periodic
// re-scan that lets an older waiter initiate matching a younger one.
func (q *Queue) waiterLoop(
	ctx context.Context,
	entry *models.QueueEntry,
	cleanupEntry, cleanupStatus func(),
	matched chan<- *MatchResult,
	errs chan<- error,
) {
	watch, cancelWatch, err := q.repo.WatchEntry(ctx, entry.TopicID, entry.UserID)
	if err != nil {
		errs <- err
		q.abandon(entry, cleanupEntry, cleanupStatus, "watch_failed")
		return
	}
	defer cancelWatch()

	ticker := time.NewTicker(q.cfg.RescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.abandon(entry, cleanupEntry, cleanupStatus, "user_left")
			return

		case e, ok := <-watch:
			if !ok {
				if ctx.Err() != nil {
					// Cancellation closes the watch; same path as ctx.Done.
					q.abandon(entry, cleanupEntry, cleanupStatus, "user_left")
					return
				}
				errs <- store.ErrClosed
				q.abandon(entry, cleanupEntry, cleanupStatus, "watch_closed")
				return
			}
			if e == nil {
				// Our entry was deleted: either a matcher consumed it (the
				// assignment write follows) or cleanup fired. Keep waiting;
				// the re-scan heals a genuinely lost entry.
				continue
			}
			if e.AssignedSessionID != "" {
				q.deliverAssignment(ctx, entry, e.AssignedSessionID, cleanupEntry, cleanupStatus, matched, errs)
				return
			}

		case <-ticker.C:
			if done := q.rescan(ctx, entry, cleanupEntry, cleanupStatus, matched, errs); done {
				return
			}
		}
	}
}

// deliverAssignment resolves the session a matcher pointed us at and hands
// the result to the ticket owner.
func (q *Queue) deliverAssignment(
	ctx context.Context,
	entry *models.QueueEntry,
	sessionID string,
	cleanupEntry, cleanupStatus func(),
	matched chan<- *MatchResult,
	errs chan<- error,
) {
	// The matcher writes the session before the assignment, so this read
	// only races a store blip.
	var ss *models.Session
	sup := retry.NewSupervisor(retry.Policy{MaxAttempts: 3, Delay: 250 * time.Millisecond})
	err := sup.Do(ctx, func(ctx context.Context) error {
		var err error
		ss, err = q.sessions.Get(ctx, sessionID)
		if store.IsPermission(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		errs <- err
		q.abandon(entry, cleanupEntry, cleanupStatus, "session_lost")
		return
	}

	q.settle(entry, cleanupEntry, cleanupStatus, "matched", models.PresenceInMatch)

	opp := ss.Opponent(entry.UserID)
	result := &MatchResult{Session: ss}
	if opp != nil {
		result.Opponent = Profile{UserID: opp.UserID, DisplayName: opp.DisplayName, AvatarRef: opp.AvatarRef}
	}
	matched <- result
}

// rescan implements the tie-break for simultaneous waiters: we only turn
// matcher for candidates that joined strictly after us, so of any two
// mutually-visible waiters exactly one initiates.
func (q *Queue) rescan(
	ctx context.Context,
	entry *models.QueueEntry,
	cleanupEntry, cleanupStatus func(),
	matched chan<- *MatchResult,
	errs chan<- error,
) bool {
	entries, err := q.repo.ListEntries(ctx, entry.TopicID)
	if err != nil {
		if store.IsPermission(err) {
			// Authorization failures do not heal on their own; surface
			// them instead of retrying.
			errs <- err
			q.abandon(entry, cleanupEntry, cleanupStatus, "store_denied")
			return true
		}
		// Transient; the next tick retries.
		q.l.Warnf(ctx, "matchmaking.Queue.rescan: %v", err)
		return false
	}

	selfPresent := false
	candidates := make([]repository.QueueEntryRecord, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.UserID == entry.UserID {
			selfPresent = true
			continue
		}
		if e.IsAssigned() || e.IsStale(q.now(), q.cfg.FreshnessWindow) {
			continue
		}
		if entry.JoinedAtMillis >= e.JoinedAtMillis {
			// Younger waiters initiate nothing; the older side discovers us.
			continue
		}
		candidates = append(candidates, *e)
	}

	if !selfPresent {
		// Our entry vanished without an assignment (expiry, store hiccup).
		// Self-heal with a fresh timestamp.
		entry.JoinedAtMillis = q.now().UnixMilli()
		if err := q.repo.PutEntry(ctx, entry); err != nil {
			if store.IsPermission(err) {
				errs <- err
				q.abandon(entry, cleanupEntry, cleanupStatus, "store_denied")
				return true
			}
			q.l.Warnf(ctx, "matchmaking.Queue.rescan: self-heal: %v", err)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].JoinedAtMillis < candidates[j].JoinedAtMillis
	})

	self := Profile{UserID: entry.UserID, DisplayName: entry.DisplayName, AvatarRef: entry.AvatarRef}

	for i := range candidates {
		rec := &candidates[i]

		ok, err := q.repo.ConsumeEntry(ctx, rec)
		if err != nil {
			if store.IsPermission(err) {
				errs <- err
				q.abandon(entry, cleanupEntry, cleanupStatus, "store_denied")
				return true
			}
			q.l.Warnf(ctx, "matchmaking.Queue.rescan: consume: %v", err)
			return false
		}
		if !ok {
			continue
		}

		opponent := Profile{UserID: rec.UserID, DisplayName: rec.DisplayName, AvatarRef: rec.AvatarRef}
		ss, err := q.coord.CreateMatch(ctx, entry.TopicID, self, opponent)
		if err != nil {
			errs <- err
			q.abandon(entry, cleanupEntry, cleanupStatus, "match_failed")
			return true
		}

		q.settle(entry, cleanupEntry, cleanupStatus, "matched", models.PresenceInMatch)
		matched <- &MatchResult{Session: ss, Opponent: opponent}
		return true
	}

	return false
}

// settle removes the waiter's queue footprint after a successful pairing.
func (q *Queue) settle(entry *models.QueueEntry, cleanupEntry, cleanupStatus func(), reason string, state models.PresenceState) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.repo.DeleteEntry(ctx, entry.TopicID, entry.UserID); err != nil {
		q.l.Warnf(ctx, "matchmaking.Queue.settle: delete entry: %v", err)
	}
	cleanupEntry()
	cleanupStatus()

	if err := q.presence.SetState(ctx, entry.UserID, state); err != nil {
		q.l.Warnf(ctx, "matchmaking.Queue.settle: presence update: %v", err)
	}

	if err := q.prod.PublishQueueLeft(ctx, kafka.QueueLeftEvent{
		UserID:  entry.UserID,
		TopicID: entry.TopicID,
		Reason:  reason,
		LeftAt:  q.now(),
	}); err != nil {
		q.l.Errorf(ctx, "matchmaking.Queue.settle: publish queue left: %v", err)
	}
}

// abandon is settle for the not-matched paths.
func (q *Queue) abandon(entry *models.QueueEntry, cleanupEntry, cleanupStatus func(), reason string) {
	q.settle(entry, cleanupEntry, cleanupStatus, reason, models.PresenceAvailable)
}
