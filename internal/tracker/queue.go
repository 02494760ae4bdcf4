package tracker

import (
	"context"
	"sync/atomic"

	"github.com/actionsum/autotrack/internal/activity"
)

// queue is an unbounded FIFO between the signal source and the dispatch
// loop, so that a slow ledger call never stalls signal delivery.
type queue struct {
	in      chan activity.Event
	out     chan activity.Event
	pending atomic.Int64
}

func newQueue(ctx context.Context) *queue {
	q := &queue{
		in:  make(chan activity.Event),
		out: make(chan activity.Event),
	}
	go q.run(ctx)
	return q
}

func (q *queue) run(ctx context.Context) {
	defer close(q.out)

	var buf []activity.Event
	for {
		var out chan activity.Event
		var next activity.Event
		if len(buf) > 0 {
			out = q.out
			next = buf[0]
		}

		select {
		case <-ctx.Done():
			return
		case ev := <-q.in:
			buf = append(buf, ev)
			q.pending.Add(1)
		case out <- next:
			buf = buf[1:]
			q.pending.Add(-1)
		}
	}
}

// Len returns the number of events waiting for dispatch.
func (q *queue) Len() int {
	return int(q.pending.Load())
}
