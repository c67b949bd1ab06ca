package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Mayankdaya/CodeClash-sub000/internal/models"
	"github.com/Mayankdaya/CodeClash-sub000/internal/store"
	"github.com/Mayankdaya/CodeClash-sub000/pkg/logger"
)

type PresenceRepository interface {
	SetState(ctx context.Context, userID string, state models.PresenceState) error
	RegisterCleanup(ctx context.Context, userID string) (func(), error)
}

type storePresenceRepository struct {
	st store.Store
	l  logger.Logger
}

func NewPresenceRepository(st store.Store, l logger.Logger) PresenceRepository {
	return &storePresenceRepository{st: st, l: l}
}

func (r *storePresenceRepository) statusKey(userID string) string {
	return fmt.Sprintf("status/%s", userID)
}

func (r *storePresenceRepository) SetState(ctx context.Context, userID string, state models.PresenceState) error {
	data, err := json.Marshal(models.Presence{State: state})
	if err != nil {
		return err
	}

	if err := r.st.Set(ctx, r.statusKey(userID), data); err != nil {
		r.l.Errorf(ctx, "repository.storePresenceRepository.SetState: %v", err)
		return err
	}
	return nil
}

func (r *storePresenceRepository) RegisterCleanup(ctx context.Context, userID string) (func(), error) {
	cancel, err := r.st.OnDisconnectDelete(ctx, r.statusKey(userID))
	if err != nil {
		r.l.Errorf(ctx, "repository.storePresenceRepository.RegisterCleanup: %v", err)
		return nil, err
	}
	return cancel, nil
}
