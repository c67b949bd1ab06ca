package models

import "github.com/Mayankdaya/CodeClash-sub000/internal/problem"

type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusActive   SessionStatus = "active"
	SessionStatusFinished SessionStatus = "finished"
)

// statusRank orders statuses so transitions can only move forward.
var statusRank = map[SessionStatus]int{
	SessionStatusPending:  0,
	SessionStatusActive:   1,
	SessionStatusFinished: 2,
}

func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	cur, ok := statusRank[s]
	if !ok {
		return false
	}
	nxt, ok := statusRank[next]
	if !ok {
		return false
	}
	return nxt == cur+1
}

type Participant struct {
	UserID         string `json:"userId"`
	DisplayName    string `json:"userName"`
	AvatarRef      string `json:"userAvatar,omitempty"`
	Score          int    `json:"score"`
	SolvedAtMillis *int64 `json:"solvedTimestamp,omitempty"`
	Ready          bool   `json:"ready"`
	Flagged        bool   `json:"flagged"`
}

// Session is the record created once a pairing is confirmed. Exactly two
// participants, status moves pending -> active -> finished and never back.
type Session struct {
	ID              string          `json:"-"`
	TopicID         string          `json:"topicId"`
	Problem         *problem.Problem `json:"problem"`
	Participants    [2]Participant  `json:"participants"`
	Status          SessionStatus   `json:"status"`
	StartedAtMillis int64           `json:"startTime,omitempty"`
}

// ParticipantIndex returns the slot of userID, or -1.
func (s *Session) ParticipantIndex(userID string) int {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return i
		}
	}
	return -1
}

func (s *Session) AllReady() bool {
	return s.Participants[0].Ready && s.Participants[1].Ready
}

// Opponent returns the other participant, or nil when userID is not in the
// session.
func (s *Session) Opponent(userID string) *Participant {
	switch s.ParticipantIndex(userID) {
	case 0:
		return &s.Participants[1]
	case 1:
		return &s.Participants[0]
	default:
		return nil
	}
}
