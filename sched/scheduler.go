package sched

import (
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Scheduler owns the queues, the job/fiber pools, the single global lock
// and the pause flag. Everything here (queues, pools, group fields, pause)
// is only ever read or mutated with mu held, except user job code itself,
// which always runs with mu released.
type Scheduler struct {
	mu     sync.Mutex
	queues []*Queue
	jobs   *jobPool
	fibers *fiberPool
	paused bool

	log   zerolog.Logger
	stats *Stats
}

// NewScheduler validates opts and builds a scheduler with opts.QueueCount
// queues, each sized to hold opts.JobCount jobs, opts.FiberCount fibers,
// and opts.JobCount job records in the free pool. A zero zerolog.Logger
// (zerolog.Nop()) is fine if the caller doesn't want scheduler logging.
//
// NewScheduler allocates its slices directly instead of sub-allocating out
// of one sized buffer; SchedulerSize is kept only as a sizing estimate for
// API parity, not because anything here sub-allocates out of it.
func NewScheduler(opts Options, log zerolog.Logger) *Scheduler {
	opts.validate(log)

	s := &Scheduler{
		log:   log,
		stats: newStats(),
	}

	s.queues = make([]*Queue, opts.QueueCount)
	for i := range s.queues {
		s.queues[i] = newQueue(opts.JobCount, &s.mu)
	}
	s.jobs = newJobPool(opts.JobCount)
	s.fibers = newFiberPool(opts.FiberCount)

	return s
}

// SchedulerSize estimates the number of bytes a faithful buffer-allocated
// port of this scheduler would need for the given sizing parameters.
// NewScheduler does not use it.
func SchedulerSize(jobCount, queueCount, fiberCount, stackSize uint32) uint64 {
	const minAlign = 16
	align := func(n uint64) uint64 { return (n + minAlign - 1) &^ (minAlign - 1) }

	ptrSize := uint64(8)
	jobRecordSize := uint64(64) // desc + bookkeeping, rough estimate

	size := align(256) // scheduler header
	size += align(uint64(queueCount) * 64)
	size += align(uint64(fiberCount) * ptrSize)
	size += align(uint64(jobCount) * ptrSize)
	size += uint64(queueCount) * align(uint64(jobCount)*ptrSize)
	size += uint64(jobCount) * align(jobRecordSize)
	size += uint64(fiberCount) * uint64(stackSize)
	return size
}

// SetQueuePriority links primary's fallback to fallback: when a worker
// running on primary finds it empty, it drains fallback too. Fallback is
// consumption-only; producers still enqueue to whichever queue they name.
// Each queue may have at most one predecessor and one successor.
func (s *Scheduler) SetQueuePriority(primary, fallback uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkQueueIdx(primary)
	s.checkQueueIdx(fallback)
	setFallback(s.log, s.queues[primary], s.queues[fallback])
}

func (s *Scheduler) checkQueueIdx(idx uint8) {
	if int(idx) >= len(s.queues) {
		fail(s.log, KindBadQueueIndex, "invalid queue index")
	}
}

// Run executes jobs continuously on the calling goroutine, standing in
// for one OS worker thread pinned to queueIdx. It only returns if Pause is
// called, or if flush is true and the queue chain runs dry. threadID is
// an opaque, caller-chosen id passed into every job dispatched here; it
// has no meaning to the scheduler beyond being handed back to job bodies.
func (s *Scheduler) Run(queueIdx uint8, flush bool, threadID uint32) {
	s.mu.Lock()
	s.checkQueueIdx(queueIdx)
	s.paused = false
	queue := s.queues[queueIdx]

	for flush || !s.paused {
		job := queue.popFront()
		if job == nil {
			if flush {
				break
			}
			queue.waiterCount++
			queue.cond.Wait()
			continue
		}

		if job.fiber == nil {
			job.fiber = s.fibers.pop()
			if job.fiber == nil {
				fail(s.log, KindPoolExhaustion, "ran out of fibers")
			}
			s.stats.FibersCreated.Inc()
		}

		status := s.switchIn(job.fiber, job, threadID)
		switch status {
		case StatusComplete, StatusAborted:
			if status == StatusAborted {
				job.fiber.started = false
				s.stats.JobsAborted.Inc()
			} else {
				s.stats.JobsCompleted.Inc()
			}
			s.fibers.push(job.fiber)
			s.stats.FibersCompleted.Inc()
			group := job.group
			s.jobs.push(job)

			if group != nil {
				group.count--
				if group.count == 0 {
					waiter := group.job
					wq := s.queues[waiter.desc.QueueIdx]
					wq.pushFront(waiter)
					wq.signal()
				}
			}
		case StatusYielding:
			tq := s.queues[job.desc.QueueIdx]
			tq.pushBack(job)
			tq.signal()
		case StatusWaiting:
			// Nothing to do; the job is held by the group it's waiting
			// on and will be re-enqueued once that group permits it.
		}
	}
	s.mu.Unlock()
}

// RunWorkers spawns n goroutines, each a Run(queueIdx, flush, i) worker
// standing in for one OS worker thread, and returns the errgroup so the
// caller can Wait() for them (e.g. after calling Pause). Run never
// returns an error, so the group only ever completes cleanly or blocks
// until paused.
func (s *Scheduler) RunWorkers(n int, queueIdx uint8, flush bool) *errgroup.Group {
	var eg errgroup.Group
	for i := 0; i < n; i++ {
		threadID := uint32(i)
		eg.Go(func() error {
			s.Run(queueIdx, flush, threadID)
			return nil
		})
	}
	return &eg
}

// Pause stops every worker's Run loop cooperatively, at the next job
// boundary (not mid-job), and broadcasts every sleeper on every queue so
// none are left parked waiting for work that will never come.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	for _, q := range s.queues {
		q.cond.Broadcast()
		q.waiterCount = 0
	}
	s.mu.Unlock()
}

// Enqueue is the single-job convenience wrapper over EnqueueBatch.
func (s *Scheduler) Enqueue(desc Descriptor, group *Group) {
	s.EnqueueBatch([]Descriptor{desc}, group)
}

// EnqueueBatch adds list to the scheduler, in list order onto each job's
// target queue. If group is non-nil its count is bumped by len(list)
// first, so a completing sibling can never observe the group as
// "finished" before every member of this batch has even been counted.
func (s *Scheduler) EnqueueBatch(list []Descriptor, group *Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueBatchLocked(list, group)
}

func (s *Scheduler) enqueueBatchLocked(list []Descriptor, group *Group) {
	if group != nil {
		s.assertGroup(group)
		group.count += uint32(len(list))
	}

	for i := range list {
		desc := list[i]
		if desc.Func == nil {
			fail(s.log, KindMissingBody, "job must have a body function")
		}
		s.checkQueueIdx(desc.QueueIdx)

		job := s.jobs.pop()
		if job == nil {
			fail(s.log, KindPoolExhaustion, "ran out of job records")
		}
		job.scheduler = s
		job.reset(desc, group)

		q := s.queues[desc.QueueIdx]
		q.pushBack(job)
		q.signal()
	}
}

// EnqueueThrottled adds at most max_count - group.count items from list,
// never allowing more than max_count jobs in group, and returns how many
// it actually enqueued (0 if group is already at or above max). It's the
// only flow-control mechanism in this package; it has no failure mode,
// just a possibly-smaller accepted count.
func (s *Scheduler) EnqueueThrottled(list []Descriptor, group *Group, max uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assertGroup(group)

	if group.count >= max {
		return 0
	}
	allowed := max - group.count
	n := uint32(len(list))
	if n > allowed {
		n = allowed
	}
	s.enqueueBatchLocked(list[:n], group)
	return int(n)
}

// Join is shorthand for enqueuing list and waiting for all of it from
// inside a running job.
func (s *Scheduler) Join(list []Descriptor, waiter *Job) {
	var group Group
	group.Init()
	s.EnqueueBatch(list, &group)
	waiter.Wait(&group, 0)
}
