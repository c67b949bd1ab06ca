package models

import "github.com/pion/webrtc/v4"

// SignalingRecord is the per-(session, user) mailbox in the store. Offer and
// answer are full overwrites by their owner; candidates are ordered children
// appended as they are discovered.
type SignalingRecord struct {
	Offer  *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer *webrtc.SessionDescription `json:"answer,omitempty"`
}

// CandidateDescriptor carries one network-traversal hint. Its internal
// structure is owned by the negotiation protocol; we store it opaquely.
type CandidateDescriptor = webrtc.ICECandidateInit
