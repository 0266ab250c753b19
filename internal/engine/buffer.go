package engine

import (
	"time"

	"github.com/pulsekit/pulse-tuner/internal/models"
)

// eventRing is a fixed-capacity FIFO of events. Pushing into a full ring
// silently evicts the oldest entry. Not safe for concurrent use; the engine
// serialises access.
type eventRing struct {
	buf  []models.Event
	head int
	n    int
}

func newEventRing(capacity int) *eventRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &eventRing{buf: make([]models.Event, capacity)}
}

func (r *eventRing) push(ev models.Event) {
	if r.n < len(r.buf) {
		r.buf[(r.head+r.n)%len(r.buf)] = ev
		r.n++
		return
	}
	r.buf[r.head] = ev
	r.head = (r.head + 1) % len(r.buf)
}

func (r *eventRing) len() int { return r.n }

func (r *eventRing) capacity() int { return len(r.buf) }

// snapshot returns the buffered events oldest first.
func (r *eventRing) snapshot() []models.Event {
	out := make([]models.Event, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// countSince returns how many buffered events carry a timestamp at or after cutoff.
func (r *eventRing) countSince(cutoff time.Time) int {
	count := 0
	for i := 0; i < r.n; i++ {
		if !r.buf[(r.head+i)%len(r.buf)].Timestamp.Before(cutoff) {
			count++
		}
	}
	return count
}

// eachSince calls fn for every buffered event with a timestamp at or after
// cutoff, oldest first.
func (r *eventRing) eachSince(cutoff time.Time, fn func(models.Event)) {
	for i := 0; i < r.n; i++ {
		ev := r.buf[(r.head+i)%len(r.buf)]
		if ev.Timestamp.Before(cutoff) {
			continue
		}
		fn(ev)
	}
}
