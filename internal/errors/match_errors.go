package errors

import "errors"

var (
	ErrMatchCreation      = errors.New("could not create match")
	ErrSessionNotFound    = errors.New("session not found")
	ErrParticipantUnknown = errors.New("user is not a participant of this session")
	ErrInvalidTransition  = errors.New("invalid session status transition")
)
