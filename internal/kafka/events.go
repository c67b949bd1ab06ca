package kafka

import "time"

// Events published by the matchmaking service.

type QueueJoinedEvent struct {
	UserID    string    `json:"user_id"`
	TopicID   string    `json:"topic_id"`
	JoinedAt  time.Time `json:"joined_at"`
	Timestamp time.Time `json:"timestamp"`
}

type QueueLeftEvent struct {
	UserID    string    `json:"user_id"`
	TopicID   string    `json:"topic_id"`
	Reason    string    `json:"reason"` // user_left, matched, disconnected
	LeftAt    time.Time `json:"left_at"`
	Timestamp time.Time `json:"timestamp"`
}

type MatchCreatedEvent struct {
	SessionID  string    `json:"session_id"`
	TopicID    string    `json:"topic_id"`
	MatcherID  string    `json:"matcher_id"`
	OpponentID string    `json:"opponent_id"`
	Timestamp  time.Time `json:"timestamp"`
}

type SessionStartedEvent struct {
	SessionID string    `json:"session_id"`
	TopicID   string    `json:"topic_id"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

type SessionFinishedEvent struct {
	SessionID string    `json:"session_id"`
	TopicID   string    `json:"topic_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Topic names
const (
	TopicQueueJoined     = "MATCH_QUEUE_JOINED"
	TopicQueueLeft       = "MATCH_QUEUE_LEFT"
	TopicMatchCreated    = "MATCH_CREATED"
	TopicSessionStarted  = "MATCH_SESSION_STARTED"
	TopicSessionFinished = "MATCH_SESSION_FINISHED"
)
