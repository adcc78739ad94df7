package sched

import "sync"

// WaitBlocking lets a non-worker thread (a goroutine with no fiber of its
// own) block until group's outstanding count drops to threshold or below.
// It works by enqueuing a tiny helper job onto queue 0 whose body calls
// Job.Wait on the caller's behalf and then signals a local condition
// variable; the helper is deliberately enqueued with a nil group of its
// own, so it can never be attached to the very group it's waiting on
// (that would deadlock it against itself).
//
// Never call this from inside a running job. It blocks the calling
// goroutine outright, and if that goroutine is itself a worker's Run
// loop, nothing will ever drain the queue the helper needs to run on.
func (s *Scheduler) WaitBlocking(group *Group, threshold uint32) {
	var mu sync.Mutex
	cond := sync.NewCond(&mu)
	done := false

	helper := Descriptor{
		Name: "wait_blocking-helper",
		Func: func(job *Job, _ any, _ *uint32) {
			job.Wait(group, threshold)
			mu.Lock()
			done = true
			cond.Signal()
			mu.Unlock()
		},
		QueueIdx: 0,
	}

	s.Enqueue(helper, nil)

	mu.Lock()
	for !done {
		cond.Wait()
	}
	mu.Unlock()
}
