package sched

import "github.com/google/uuid"

// JobFunc is a job body. job is the handle used to call Wait/Yield/
// SwitchQueue/Abort from inside the job's own execution; userData is the
// opaque pointer supplied in the Descriptor; threadID points at the
// worker thread id the job is currently running on, re-read it after any
// suspension since a resumed job may land on a different worker.
type JobFunc func(job *Job, userData any, threadID *uint32)

// Descriptor is the input to an enqueue call.
type Descriptor struct {
	// Name is optional and used only for debugging/logging. An empty Name
	// is filled in with a generated "job-<uuid>" at enqueue time so log
	// lines always have something to key on.
	Name string
	// Func is the job body. Required; enqueuing a Descriptor with a nil
	// Func is a fatal precondition violation (missing body).
	Func JobFunc
	// UserData is an optional opaque pointer, untouched by the scheduler.
	UserData any
	// QueueIdx selects which queue the job is enqueued onto.
	QueueIdx uint8
}

// Job is the internal, pool-allocated record backing one enqueue-to-
// completion cycle. Between cycles the record sits in the scheduler's
// free job pool; its identity is reusable but its contents are undefined
// until the next EnqueueBatch fills it in.
type Job struct {
	desc      Descriptor
	scheduler *Scheduler
	fiber     *Fiber
	threadID  uint32
	group     *Group
}

// Name returns the job's (possibly auto-generated) debug name.
func (j *Job) Name() string { return j.desc.Name }

func (j *Job) reset(desc Descriptor, group *Group) {
	if desc.Name == "" {
		desc.Name = "job-" + uuid.NewString()
	}
	j.desc = desc
	j.fiber = nil
	j.threadID = 0
	j.group = group
}

// Wait suspends the calling job until group's outstanding count drops to
// threshold or below. threshold = 0 is a full join; threshold = k resumes
// the caller once at most k jobs remain outstanding, which is how a
// producer throttles itself to keep a bounded pipeline full without
// overflowing it. Callable only from within a running job body.
func (j *Job) Wait(group *Group, threshold uint32) {
	s := j.scheduler
	s.mu.Lock()
	s.assertGroup(group)

	group.job = j
	group.count--
	if group.count > threshold {
		group.count -= threshold
		s.stats.Waits.Inc()
		j.fiber.suspend <- StatusWaiting
		j.threadID = <-j.fiber.resume
		// The last completing sibling woke us by pushing this job to the
		// front of its queue; restore the bias for the jobs still
		// outstanding beyond threshold.
		group.count += threshold
	}
	group.count++
	group.job = nil
	s.mu.Unlock()
}

// Yield suspends the calling job and reschedules it at the back of its
// current queue. Callable only from within a running job body.
func (j *Job) Yield() {
	s := j.scheduler
	s.mu.Lock()
	s.stats.Yields.Inc()
	j.fiber.suspend <- StatusYielding
	j.threadID = <-j.fiber.resume
	s.mu.Unlock()
}

// SwitchQueue suspends the calling job and reschedules it on a different
// queue. Callable only from within a running job body.
func (j *Job) SwitchQueue(queueIdx uint8) {
	s := j.scheduler
	s.mu.Lock()
	if int(queueIdx) >= len(s.queues) {
		s.mu.Unlock()
		fail(s.log, KindBadQueueIndex, "switch_queue: invalid queue index")
	}
	j.desc.QueueIdx = queueIdx
	s.stats.Yields.Inc()
	j.fiber.suspend <- StatusYielding
	j.threadID = <-j.fiber.resume
	s.mu.Unlock()
}

// Abort immediately ends execution of the calling job and marks it
// completed; it does not return. Callable only from within a running job
// body. Calling it from outside one is fatal in its own way, since it
// unwinds the fiber's goroutine stack via panic/recover.
func (j *Job) Abort() {
	panic(theAbortSignal)
}
