package rtc

import (
	"fmt"
	"testing"

	"github.com/Mayankdaya/CodeClash-sub000/internal/models"
)

func TestCandidateBufferOrderedFlush(t *testing.T) {
	var b candidateBuffer

	for i := 1; i <= 5; i++ {
		got := b.submit(models.CandidateDescriptor{Candidate: fmt.Sprintf("c%d", i)})
		if got != nil {
			t.Fatalf("candidate c%d passed through before flush", i)
		}
	}

	flushed := b.flush()
	if len(flushed) != 5 {
		t.Fatalf("flushed %d candidates, want 5", len(flushed))
	}
	for i, c := range flushed {
		if want := fmt.Sprintf("c%d", i+1); c.Candidate != want {
			t.Fatalf("position %d = %q, want %q", i, c.Candidate, want)
		}
	}

	// Post-flush submissions pass straight through.
	got := b.submit(models.CandidateDescriptor{Candidate: "late"})
	if len(got) != 1 || got[0].Candidate != "late" {
		t.Fatalf("post-flush submit = %+v", got)
	}

	// A second flush yields nothing new.
	if again := b.flush(); len(again) != 0 {
		t.Fatalf("second flush = %+v", again)
	}
}

func TestCandidateBufferReset(t *testing.T) {
	var b candidateBuffer
	b.submit(models.CandidateDescriptor{Candidate: "c1"})
	b.flush()
	b.reset()

	if got := b.submit(models.CandidateDescriptor{Candidate: "c2"}); got != nil {
		t.Fatal("buffer did not return to buffering after reset")
	}
	flushed := b.flush()
	if len(flushed) != 1 || flushed[0].Candidate != "c2" {
		t.Fatalf("flush after reset = %+v", flushed)
	}
}
