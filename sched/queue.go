package sched

import (
	"sync"

	"github.com/rs/zerolog"
)

// Queue is a fixed-capacity circular buffer of pending *Job, sized to a
// power of two so index masking replaces modulo. No single-producer/
// single-consumer assumption is made; all access is mutex-protected by
// sharing the scheduler's global *sync.Mutex as the Locker behind cond, so
// a sleeper woken by Signal reacquires the same lock every other queue
// operation requires.
type Queue struct {
	arr   []*Job
	head  uint32
	tail  uint32
	count uint32
	mask  uint32

	cond        *sync.Cond
	waiterCount int

	// prev/next form a doubly-linked priority chain: at most one
	// predecessor and one successor per queue. Fallback is consumption-
	// only; producers still enqueue to whichever queue they name. Only
	// popFront follows next, and only signal propagates to prev.
	prev, next *Queue
}

func newQueue(capacity uint32, mu *sync.Mutex) *Queue {
	return &Queue{
		arr:  make([]*Job, capacity),
		mask: capacity - 1,
		cond: sync.NewCond(mu),
	}
}

// pushBack places job at head. Used for freshly enqueued work and for
// jobs resuming after a yield, which go to the back of the line.
func (q *Queue) pushBack(job *Job) {
	q.arr[q.head&q.mask] = job
	q.head++
	q.count++
}

// pushFront places job at tail-1. Used when a waiting job becomes runnable
// again, giving priority to resuming continuations over fresh work, which
// keeps pipelines draining.
func (q *Queue) pushFront(job *Job) {
	q.tail--
	q.arr[q.tail&q.mask] = job
	q.count++
}

// popFront returns the next job on q, falling back to q.next (and its own
// fallback, and so on) when q is locally empty. Returns nil once the
// whole chain is exhausted.
func (q *Queue) popFront() *Job {
	for cur := q; cur != nil; cur = cur.next {
		if cur.count > 0 {
			cur.count--
			job := cur.arr[cur.tail&cur.mask]
			cur.tail++
			return job
		}
	}
	return nil
}

// signal wakes one sleeper on q if any, then propagates to q.prev and
// repeats. A predecessor may be sleeping because its own queue is empty
// and only the fallback chain is active; new work arriving on the
// fallback must wake it too.
func (q *Queue) signal() {
	for cur := q; cur != nil; cur = cur.prev {
		if cur.waiterCount > 0 {
			cur.cond.Signal()
			cur.waiterCount--
		}
	}
}

// setFallback links primary.next = fallback and fallback.prev = primary.
// Each queue may have at most one predecessor and one successor, so
// chains are linear, never trees; re-linking an end that already has a
// link is a chain-misuse fatal precondition.
func setFallback(log zerolog.Logger, primary, fallback *Queue) {
	if primary.next != nil || fallback.prev != nil {
		fail(log, KindChainMisuse, "queue already has a fallback link on that side")
	}
	primary.next = fallback
	fallback.prev = primary
}
