package models

import "time"

// QueueEntry is one waiting user under a topic key. It is written once by its
// owner, mutated once by the matcher that assigns a session, and removed by
// consumption, leave or presence-cleanup.
type QueueEntry struct {
	UserID            string `json:"userId"`
	DisplayName       string `json:"userName"`
	AvatarRef         string `json:"userAvatar,omitempty"`
	JoinedAtMillis    int64  `json:"timestamp"`
	TopicID           string `json:"topicId"`
	AssignedSessionID string `json:"assignedSessionId,omitempty"`
}

func (e *QueueEntry) JoinedAt() time.Time {
	return time.UnixMilli(e.JoinedAtMillis)
}

// IsStale reports whether the entry is older than the freshness window and
// should be treated as abandoned.
func (e *QueueEntry) IsStale(now time.Time, window time.Duration) bool {
	return now.Sub(e.JoinedAt()) > window
}

func (e *QueueEntry) IsAssigned() bool {
	return e.AssignedSessionID != ""
}
