package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Mayankdaya/CodeClash-sub000/internal/models"
	"github.com/Mayankdaya/CodeClash-sub000/internal/store"
	"github.com/Mayankdaya/CodeClash-sub000/pkg/logger"
)

// QueueEntryRecord pairs a decoded entry with the exact bytes it was read
// as, so consumption can be compare-and-delete rather than read-then-delete.
type QueueEntryRecord struct {
	models.QueueEntry
	raw []byte
}

type QueueRepository interface {
	ListEntries(ctx context.Context, topicID string) ([]QueueEntryRecord, error)
	PutEntry(ctx context.Context, entry *models.QueueEntry) error
	DeleteEntry(ctx context.Context, topicID, userID string) error

	// ConsumeEntry removes the record's key only if its value is unchanged
	// since the read. A false return means another matcher consumed it.
	ConsumeEntry(ctx context.Context, rec *QueueEntryRecord) (bool, error)

	// AssignSession writes assignedSessionId onto the entry's key path as a
	// targeted update, creating a tombstone entry when the key is already
	// gone, so the waiter's subscription still observes the assignment.
	AssignSession(ctx context.Context, topicID, userID, sessionID string) error

	// WatchEntry delivers the entry each time its key is written; a delete
	// is delivered as nil.
	WatchEntry(ctx context.Context, topicID, userID string) (<-chan *models.QueueEntry, func(), error)

	// RegisterCleanup arranges for the entry to vanish when this client's
	// store connection drops.
	RegisterCleanup(ctx context.Context, topicID, userID string) (func(), error)
}

type storeQueueRepository struct {
	st store.Store
	l  logger.Logger
}

func NewQueueRepository(st store.Store, l logger.Logger) QueueRepository {
	return &storeQueueRepository{st: st, l: l}
}

func (r *storeQueueRepository) topicKey(topicID string) string {
	return fmt.Sprintf("matchmaking/%s", topicID)
}

func (r *storeQueueRepository) entryKey(topicID, userID string) string {
	return fmt.Sprintf("matchmaking/%s/%s", topicID, userID)
}

func (r *storeQueueRepository) ListEntries(ctx context.Context, topicID string) ([]QueueEntryRecord, error) {
	raw, err := r.st.List(ctx, r.topicKey(topicID))
	if err != nil {
		r.l.Errorf(ctx, "repository.storeQueueRepository.ListEntries: %v", err)
		return nil, err
	}

	out := make([]QueueEntryRecord, 0, len(raw))
	for userID, v := range raw {
		var e models.QueueEntry
		if err := json.Unmarshal(v, &e); err != nil {
			r.l.Warnf(ctx, "repository.storeQueueRepository.ListEntries: malformed entry %s/%s: %v", topicID, userID, err)
			continue
		}
		if e.UserID == "" {
			e.UserID = userID
		}
		out = append(out, QueueEntryRecord{QueueEntry: e, raw: v})
	}
	return out, nil
}

func (r *storeQueueRepository) PutEntry(ctx context.Context, entry *models.QueueEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if err := r.st.Set(ctx, r.entryKey(entry.TopicID, entry.UserID), data); err != nil {
		r.l.Errorf(ctx, "repository.storeQueueRepository.PutEntry: %v", err)
		return err
	}
	return nil
}

func (r *storeQueueRepository) DeleteEntry(ctx context.Context, topicID, userID string) error {
	if err := r.st.Delete(ctx, r.entryKey(topicID, userID)); err != nil {
		r.l.Errorf(ctx, "repository.storeQueueRepository.DeleteEntry: %v", err)
		return err
	}
	return nil
}

func (r *storeQueueRepository) ConsumeEntry(ctx context.Context, rec *QueueEntryRecord) (bool, error) {
	ok, err := r.st.CompareAndDelete(ctx, r.entryKey(rec.TopicID, rec.UserID), rec.raw)
	if err != nil {
		r.l.Errorf(ctx, "repository.storeQueueRepository.ConsumeEntry: %v", err)
		return false, err
	}
	return ok, nil
}

func (r *storeQueueRepository) AssignSession(ctx context.Context, topicID, userID, sessionID string) error {
	key := r.entryKey(topicID, userID)

	err := r.st.Update(ctx, key, func(current []byte) ([]byte, error) {
		e := models.QueueEntry{UserID: userID, TopicID: topicID}
		if current != nil {
			if err := json.Unmarshal(current, &e); err != nil {
				r.l.Warnf(ctx, "repository.storeQueueRepository.AssignSession: rewriting malformed entry %s: %v", key, err)
				e = models.QueueEntry{UserID: userID, TopicID: topicID}
			}
		}
		e.AssignedSessionID = sessionID
		return json.Marshal(e)
	})
	if err != nil {
		r.l.Errorf(ctx, "repository.storeQueueRepository.AssignSession: %v", err)
		return err
	}
	return nil
}

func (r *storeQueueRepository) WatchEntry(ctx context.Context, topicID, userID string) (<-chan *models.QueueEntry, func(), error) {
	raw, cancel, err := r.st.WatchValue(ctx, r.entryKey(topicID, userID))
	if err != nil {
		r.l.Errorf(ctx, "repository.storeQueueRepository.WatchEntry: %v", err)
		return nil, nil, err
	}

	out := make(chan *models.QueueEntry, 8)
	go func() {
		defer close(out)
		for v := range raw {
			if v == nil {
				out <- nil
				continue
			}
			var e models.QueueEntry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			out <- &e
		}
	}()
	return out, cancel, nil
}

func (r *storeQueueRepository) RegisterCleanup(ctx context.Context, topicID, userID string) (func(), error) {
	cancel, err := r.st.OnDisconnectDelete(ctx, r.entryKey(topicID, userID))
	if err != nil {
		r.l.Errorf(ctx, "repository.storeQueueRepository.RegisterCleanup: %v", err)
		return nil, err
	}
	return cancel, nil
}
