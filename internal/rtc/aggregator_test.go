package rtc

import (
	"testing"

	"github.com/pion/webrtc/v4"
)

type fakeTrack struct {
	id     string
	stream string
	kind   webrtc.RTPCodecType
}

func (t fakeTrack) ID() string                { return t.id }
func (t fakeTrack) StreamID() string          { return t.stream }
func (t fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }

func audio(id, stream string) fakeTrack {
	return fakeTrack{id: id, stream: stream, kind: webrtc.RTPCodecTypeAudio}
}

func video(id, stream string) fakeTrack {
	return fakeTrack{id: id, stream: stream, kind: webrtc.RTPCodecTypeVideo}
}

func TestAggregatorAdoptsFirstStream(t *testing.T) {
	a := NewAggregator()

	if !a.Accept(audio("a1", "s1")) {
		t.Fatal("first arrival not adopted")
	}
	cur := a.Current()
	if cur == nil || cur.ID != "s1" || len(cur.Tracks()) != 1 {
		t.Fatalf("current = %+v", cur)
	}
}

func TestAggregatorVideoReplacesAudioOnlyStream(t *testing.T) {
	a := NewAggregator()
	a.Accept(audio("a1", "s1"))

	if !a.Accept(video("v1", "s2")) {
		t.Fatal("video arrival ignored")
	}
	cur := a.Current()
	if cur.ID != "s2" || !cur.HasVideo() {
		t.Fatalf("current = %+v, want video stream s2", cur)
	}
}

func TestAggregatorNeverDowngradesFromVideo(t *testing.T) {
	a := NewAggregator()
	a.Accept(video("v1", "s1"))

	// Audio from another stream attaches, never replaces.
	a.Accept(audio("a1", "s2"))
	cur := a.Current()
	if cur.ID != "s1" {
		t.Fatalf("video stream replaced by %s", cur.ID)
	}
	if !cur.HasVideo() {
		t.Fatal("video lost")
	}
	if len(cur.Tracks()) != 2 {
		t.Fatalf("tracks = %d, want audio attached", len(cur.Tracks()))
	}
}

func TestAggregatorDeduplicatesByTrackID(t *testing.T) {
	a := NewAggregator()
	a.Accept(video("v1", "s1"))
	a.Accept(audio("a1", "s1"))

	if a.Accept(audio("a1", "s1")) {
		t.Fatal("duplicate track id accepted")
	}
	if a.Accept(audio("a1", "s2")) {
		t.Fatal("duplicate track id accepted across streams")
	}
	if got := len(a.Current().Tracks()); got != 2 {
		t.Fatalf("tracks = %d, want 2", got)
	}
}

func TestAggregatorMonotonicUnderInterleavings(t *testing.T) {
	arrivals := [][]fakeTrack{
		{audio("a1", "s1"), video("v1", "s2"), audio("a2", "s3"), video("v2", "s4")},
		{video("v1", "s1"), audio("a1", "s2"), audio("a2", "s1"), video("v2", "s3")},
		{audio("a1", "s1"), audio("a2", "s2"), video("v1", "s3"), audio("a3", "s4")},
	}

	for i, seq := range arrivals {
		a := NewAggregator()
		seenVideo := false
		for _, tr := range seq {
			a.Accept(tr)
			cur := a.Current()
			if cur != nil && cur.HasVideo() {
				seenVideo = true
			}
			if seenVideo && (cur == nil || !cur.HasVideo()) {
				t.Fatalf("sequence %d: aggregate downgraded after %+v", i, tr)
			}
		}
	}
}

func TestAggregatorResetClearsStream(t *testing.T) {
	a := NewAggregator()
	a.Accept(video("v1", "s1"))
	a.Reset()
	if a.Current() != nil {
		t.Fatal("stream survived reset")
	}
}
