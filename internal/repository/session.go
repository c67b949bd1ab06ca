package repository

import (
	"context"
	"encoding/json"
	"fmt"

	pkgErr "github.com/Mayankdaya/CodeClash-sub000/internal/errors"
	"github.com/Mayankdaya/CodeClash-sub000/internal/models"
	"github.com/Mayankdaya/CodeClash-sub000/internal/store"
	"github.com/Mayankdaya/CodeClash-sub000/pkg/logger"
)

type SessionRepository interface {
	Create(ctx context.Context, ss *models.Session) error
	Get(ctx context.Context, sessionID string) (*models.Session, error)

	// Mutate runs fn inside a transactional read-modify-write so concurrent
	// participant updates never lose writes. fn may return
	// store.ErrUnchanged to abort without writing.
	Mutate(ctx context.Context, sessionID string, fn func(ss *models.Session) error) (*models.Session, error)

	WatchSession(ctx context.Context, sessionID string) (<-chan *models.Session, func(), error)
	Delete(ctx context.Context, sessionID string) error
}

type storeSessionRepository struct {
	st store.Store
	l  logger.Logger
}

func NewSessionRepository(st store.Store, l logger.Logger) SessionRepository {
	return &storeSessionRepository{st: st, l: l}
}

func (r *storeSessionRepository) sessionKey(sessionID string) string {
	return fmt.Sprintf("sessions/%s", sessionID)
}

func (r *storeSessionRepository) Create(ctx context.Context, ss *models.Session) error {
	data, err := json.Marshal(ss)
	if err != nil {
		return err
	}

	if err := r.st.Set(ctx, r.sessionKey(ss.ID), data); err != nil {
		r.l.Errorf(ctx, "repository.storeSessionRepository.Create: %v", err)
		return err
	}
	return nil
}

func (r *storeSessionRepository) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	data, err := r.st.Get(ctx, r.sessionKey(sessionID))
	if err == store.ErrNotFound {
		return nil, pkgErr.ErrSessionNotFound
	}
	if err != nil {
		r.l.Errorf(ctx, "repository.storeSessionRepository.Get: %v", err)
		return nil, err
	}

	var ss models.Session
	if err := json.Unmarshal(data, &ss); err != nil {
		return nil, err
	}
	ss.ID = sessionID
	return &ss, nil
}

func (r *storeSessionRepository) Mutate(ctx context.Context, sessionID string, fn func(ss *models.Session) error) (*models.Session, error) {
	var result *models.Session

	err := r.st.Update(ctx, r.sessionKey(sessionID), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, pkgErr.ErrSessionNotFound
		}

		var ss models.Session
		if err := json.Unmarshal(current, &ss); err != nil {
			return nil, err
		}
		ss.ID = sessionID

		if err := fn(&ss); err != nil {
			if err == store.ErrUnchanged {
				result = &ss
			}
			return nil, err
		}

		result = &ss
		return json.Marshal(&ss)
	})
	if err != nil {
		r.l.Errorf(ctx, "repository.storeSessionRepository.Mutate: %v", err)
		return nil, err
	}
	return result, nil
}

func (r *storeSessionRepository) WatchSession(ctx context.Context, sessionID string) (<-chan *models.Session, func(), error) {
	raw, cancel, err := r.st.WatchValue(ctx, r.sessionKey(sessionID))
	if err != nil {
		r.l.Errorf(ctx, "repository.storeSessionRepository.WatchSession: %v", err)
		return nil, nil, err
	}

	out := make(chan *models.Session, 8)
	go func() {
		defer close(out)
		for v := range raw {
			if v == nil {
				out <- nil
				continue
			}
			var ss models.Session
			if err := json.Unmarshal(v, &ss); err != nil {
				continue
			}
			ss.ID = sessionID
			out <- &ss
		}
	}()
	return out, cancel, nil
}

func (r *storeSessionRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.st.Delete(ctx, r.sessionKey(sessionID)); err != nil {
		r.l.Errorf(ctx, "repository.storeSessionRepository.Delete: %v", err)
		return err
	}
	return nil
}
