package rtc

import "github.com/Mayankdaya/CodeClash-sub000/internal/models"

// candidateBuffer holds remote candidates that arrive before the remote
// description, preserving arrival order. Once flushed, submissions pass
// straight through.
type candidateBuffer struct {
	pending []models.CandidateDescriptor
	flushed bool
}

// submit returns the candidates that may be applied now: the candidate
// itself once the buffer has flushed, nothing while still buffering.
func (b *candidateBuffer) submit(c models.CandidateDescriptor) []models.CandidateDescriptor {
	if b.flushed {
		return []models.CandidateDescriptor{c}
	}
	b.pending = append(b.pending, c)
	return nil
}

// flush releases everything buffered so far, in arrival order, and opens the
// pass-through.
func (b *candidateBuffer) flush() []models.CandidateDescriptor {
	b.flushed = true
	out := b.pending
	b.pending = nil
	return out
}

func (b *candidateBuffer) reset() {
	b.pending = nil
	b.flushed = false
}
