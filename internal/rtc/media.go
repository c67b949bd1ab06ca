package rtc

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaProvider supplies the local capture tracks attached to a connection.
// Acquisition failure is never fatal: signaling proceeds without local
// media.
type MediaProvider interface {
	AcquireTracks(ctx context.Context) ([]webrtc.TrackLocal, error)
	Release()
}

// NopMediaProvider is used where no capture source exists.
type NopMediaProvider struct{}

func (NopMediaProvider) AcquireTracks(context.Context) ([]webrtc.TrackLocal, error) {
	return nil, nil
}

func (NopMediaProvider) Release() {}

// StaticProvider exposes one opus and one VP8 sample track fed by the
// caller, the shape a headless peer publishes.
type StaticProvider struct {
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample
}

func NewStaticProvider(streamID string) (*StaticProvider, error) {
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID,
	)
	if err != nil {
		return nil, err
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID,
	)
	if err != nil {
		return nil, err
	}
	return &StaticProvider{audio: audio, video: video}, nil
}

func (p *StaticProvider) AcquireTracks(context.Context) ([]webrtc.TrackLocal, error) {
	return []webrtc.TrackLocal{p.audio, p.video}, nil
}

func (p *StaticProvider) Release() {}

// Audio returns the writable audio track for sample injection.
func (p *StaticProvider) Audio() *webrtc.TrackLocalStaticSample { return p.audio }

// Video returns the writable video track for sample injection.
func (p *StaticProvider) Video() *webrtc.TrackLocalStaticSample { return p.video }
