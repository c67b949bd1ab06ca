package models

type PresenceState string

const (
	PresenceWaiting   PresenceState = "waiting"
	PresenceInMatch   PresenceState = "in-match"
	PresenceAvailable PresenceState = "available"
)

type Presence struct {
	State PresenceState `json:"state"`
}
