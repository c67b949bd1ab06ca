package rtc

// ConnectionState is the negotiation lifecycle of one peer link. It is owned
// by the Manager's event loop and only read from outside.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateAcquiringMedia
	StateAwaitingRemoteOffer
	StateOfferSent
	StateAnswerSent
	StateNegotiating
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringMedia:
		return "acquiring_media"
	case StateAwaitingRemoteOffer:
		return "awaiting_remote_offer"
	case StateOfferSent:
		return "offer_sent"
	case StateAnswerSent:
		return "answer_sent"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
