package matchmaking

import "github.com/Mayankdaya/CodeClash-sub000/internal/models"

type Profile struct {
	UserID      string
	DisplayName string
	AvatarRef   string
}

func (p Profile) participant() models.Participant {
	return models.Participant{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		AvatarRef:   p.AvatarRef,
	}
}

// MatchResult is delivered to both sides of a pairing.
type MatchResult struct {
	Session  *models.Session
	Opponent Profile
}

// Outcome of a Join call: exactly one of Matched or Ticket is set. Matched
// means the caller played matcher and the pairing is already done; Ticket
// means the caller is now waiting to be discovered.
type Outcome struct {
	Matched *MatchResult
	Ticket  *Ticket
}
