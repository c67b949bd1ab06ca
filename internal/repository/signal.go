package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/Mayankdaya/CodeClash-sub000/internal/models"
	"github.com/Mayankdaya/CodeClash-sub000/internal/store"
	"github.com/Mayankdaya/CodeClash-sub000/pkg/logger"
)

// SignalRepository owns the signaling/{sessionId}/{userId} mailboxes. Offer
// and answer publishes overwrite the whole record so the peer always
// observes a self-consistent view; candidates are streamed as ordered
// children.
type SignalRepository interface {
	PublishOffer(ctx context.Context, sessionID, userID string, sdp webrtc.SessionDescription) error
	PublishAnswer(ctx context.Context, sessionID, userID string, sdp webrtc.SessionDescription) error
	AppendCandidate(ctx context.Context, sessionID, userID string, cand models.CandidateDescriptor) error

	// WatchRecord follows the peer's offer/answer fields.
	WatchRecord(ctx context.Context, sessionID, userID string) (<-chan *models.SignalingRecord, func(), error)

	// WatchCandidates delivers the peer's candidates in publish order,
	// exactly once each.
	WatchCandidates(ctx context.Context, sessionID, userID string) (<-chan models.CandidateDescriptor, func(), error)

	DeleteRecord(ctx context.Context, sessionID, userID string) error
}

type storeSignalRepository struct {
	st store.Store
	l  logger.Logger
}

func NewSignalRepository(st store.Store, l logger.Logger) SignalRepository {
	return &storeSignalRepository{st: st, l: l}
}

func (r *storeSignalRepository) recordKey(sessionID, userID string) string {
	return fmt.Sprintf("signaling/%s/%s", sessionID, userID)
}

func (r *storeSignalRepository) candidatesKey(sessionID, userID string) string {
	return fmt.Sprintf("signaling/%s/%s/candidates", sessionID, userID)
}

func (r *storeSignalRepository) publish(ctx context.Context, sessionID, userID string, rec *models.SignalingRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if err := r.st.Set(ctx, r.recordKey(sessionID, userID), data); err != nil {
		r.l.Errorf(ctx, "repository.storeSignalRepository.publish: %v", err)
		return err
	}
	return nil
}

func (r *storeSignalRepository) PublishOffer(ctx context.Context, sessionID, userID string, sdp webrtc.SessionDescription) error {
	return r.publish(ctx, sessionID, userID, &models.SignalingRecord{Offer: &sdp})
}

func (r *storeSignalRepository) PublishAnswer(ctx context.Context, sessionID, userID string, sdp webrtc.SessionDescription) error {
	return r.publish(ctx, sessionID, userID, &models.SignalingRecord{Answer: &sdp})
}

func (r *storeSignalRepository) AppendCandidate(ctx context.Context, sessionID, userID string, cand models.CandidateDescriptor) error {
	data, err := json.Marshal(cand)
	if err != nil {
		return err
	}

	if err := r.st.PushChild(ctx, r.candidatesKey(sessionID, userID), data); err != nil {
		r.l.Errorf(ctx, "repository.storeSignalRepository.AppendCandidate: %v", err)
		return err
	}
	return nil
}

func (r *storeSignalRepository) WatchRecord(ctx context.Context, sessionID, userID string) (<-chan *models.SignalingRecord, func(), error) {
	raw, cancel, err := r.st.WatchValue(ctx, r.recordKey(sessionID, userID))
	if err != nil {
		r.l.Errorf(ctx, "repository.storeSignalRepository.WatchRecord: %v", err)
		return nil, nil, err
	}

	out := make(chan *models.SignalingRecord, 8)
	go func() {
		defer close(out)
		for v := range raw {
			if v == nil {
				out <- nil
				continue
			}
			var rec models.SignalingRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			out <- &rec
		}
	}()
	return out, cancel, nil
}

func (r *storeSignalRepository) WatchCandidates(ctx context.Context, sessionID, userID string) (<-chan models.CandidateDescriptor, func(), error) {
	raw, cancel, err := r.st.WatchChildren(ctx, r.candidatesKey(sessionID, userID))
	if err != nil {
		r.l.Errorf(ctx, "repository.storeSignalRepository.WatchCandidates: %v", err)
		return nil, nil, err
	}

	out := make(chan models.CandidateDescriptor, 32)
	go func() {
		defer close(out)
		for v := range raw {
			var cand models.CandidateDescriptor
			if err := json.Unmarshal(v, &cand); err != nil {
				continue
			}
			out <- cand
		}
	}()
	return out, cancel, nil
}

func (r *storeSignalRepository) DeleteRecord(ctx context.Context, sessionID, userID string) error {
	if err := r.st.Delete(ctx, r.candidatesKey(sessionID, userID)); err != nil {
		r.l.Errorf(ctx, "repository.storeSignalRepository.DeleteRecord: %v", err)
		return err
	}
	if err := r.st.Delete(ctx, r.recordKey(sessionID, userID)); err != nil {
		r.l.Errorf(ctx, "repository.storeSignalRepository.DeleteRecord: %v", err)
		return err
	}
	return nil
}
