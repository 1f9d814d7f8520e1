package agent

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"

	"courier_mesh/internal/domain"
)

var errUnreachable = errors.New("unreachable")

type outbox[M any] struct {
	mu   sync.Mutex
	sent map[string][]M
	down map[string]bool
}

func newOutbox[M any]() *outbox[M] {
	return &outbox[M]{sent: make(map[string][]M), down: make(map[string]bool)}
}

func (o *outbox[M]) Publish(to string, msg M) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.down[to] {
		return errUnreachable
	}
	o.sent[to] = append(o.sent[to], msg)
	return nil
}

func (o *outbox[M]) to(id string) []M {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]M, len(o.sent[id]))
	copy(out, o.sent[id])
	return out
}

func (o *outbox[M]) last(id string) (M, bool) {
	msgs := o.to(id)
	var zero M
	if len(msgs) == 0 {
		return zero, false
	}
	return msgs[len(msgs)-1], true
}

type memoryJournal struct {
	mu   sync.Mutex
	obs  []domain.Observation
	fail bool
}

func (j *memoryJournal) RecordObservation(_ context.Context, obs domain.Observation) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return errors.New("journal unavailable")
	}
	j.obs = append(j.obs, obs)
	return nil
}

func (j *memoryJournal) count(kind domain.ObservationKind) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, obs := range j.obs {
		if obs.Kind == kind {
			n++
		}
	}
	return n
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func loc(x, y float64) domain.Location {
	return domain.Location{X: x, Y: y}
}
