package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// RemoteTrack is the track metadata the aggregator works with.
// *webrtc.TrackRemote satisfies it.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
}

var _ RemoteTrack = (*webrtc.TrackRemote)(nil)

// Stream is the aggregate handed to the render layer: one stream identifier
// plus the tracks attached to it so far.
type Stream struct {
	ID     string
	tracks []RemoteTrack
}

func (s *Stream) Tracks() []RemoteTrack {
	out := make([]RemoteTrack, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *Stream) HasVideo() bool {
	for _, t := range s.tracks {
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			return true
		}
	}
	return false
}

func (s *Stream) has(trackID string) bool {
	for _, t := range s.tracks {
		if t.ID() == trackID {
			return true
		}
	}
	return false
}

// Aggregator folds individual remote-track arrivals into a single held
// stream. Once the held stream carries video it is never replaced by a
// video-less one, only augmented.
type Aggregator struct {
	mu      sync.Mutex
	current *Stream
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Accept applies one track arrival and reports whether the aggregate
// changed.
func (a *Aggregator) Accept(t RemoteTrack) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.current

	if cur == nil {
		a.current = &Stream{ID: t.StreamID(), tracks: []RemoteTrack{t}}
		return true
	}

	if t.StreamID() == cur.ID {
		if cur.has(t.ID()) {
			return false
		}
		cur.tracks = append(cur.tracks, t)
		return true
	}

	if t.Kind() == webrtc.RTPCodecTypeVideo && !cur.HasVideo() {
		// Video takes priority over whatever audio-only stream we held.
		a.current = &Stream{ID: t.StreamID(), tracks: []RemoteTrack{t}}
		return true
	}

	// Cross-stream audio is attached rather than dropped, deduplicated by
	// track id.
	if t.Kind() == webrtc.RTPCodecTypeAudio && !cur.has(t.ID()) {
		cur.tracks = append(cur.tracks, t)
		return true
	}

	return false
}

// Current returns the held stream, nil before the first arrival.
func (a *Aggregator) Current() *Stream {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = nil
}
