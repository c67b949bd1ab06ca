package rtc

import (
	"github.com/pion/webrtc/v4"

	"github.com/Mayankdaya/CodeClash-sub000/config"
	"github.com/Mayankdaya/CodeClash-sub000/internal/models"
)

// mediaConn is the slice of *webrtc.PeerConnection the manager drives.
// Tests substitute a scripted implementation.
type mediaConn interface {
	CreateOffer(opts *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(opts *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate models.CandidateDescriptor) error
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	Close() error
}

var _ mediaConn = (*webrtc.PeerConnection)(nil)

type connFactory func() (mediaConn, error)

func pionFactory(cfg config.RtcConfig) connFactory {
	conf := webrtc.Configuration{}
	if len(cfg.ICEServers) > 0 {
		conf.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	return func() (mediaConn, error) {
		return webrtc.NewPeerConnection(conf)
	}
}
