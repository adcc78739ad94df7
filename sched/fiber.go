package sched

// Status is the value a fiber hands back to the worker that switched into
// it, reported through the dispatch loop in scheduler.go.
type Status int

const (
	// StatusComplete means the job body returned normally.
	StatusComplete Status = iota
	// StatusWaiting means the job is parked on a Group and will be
	// re-enqueued when the group's outstanding count drops low enough.
	StatusWaiting
	// StatusYielding means the job wants to run again later, at the back
	// of its queue (or a different queue, for SwitchQueue).
	StatusYielding
	// StatusAborted means the job called Abort and its fiber must be
	// reinitialized before reuse.
	StatusAborted
)

// Fiber is a user-space continuation that a job body can suspend out of
// and later resume into, picking up exactly where it left off, at any call
// depth. Realized as a goroutine that never exits except on Abort, plus a
// pair of unbuffered channels used to hand control back and forth one
// value at a time: resume carries the thread id a job is running on
// (re-read after every suspension), suspend carries the Status.
//
// A Fiber is always in one of three states: sitting in the free pool,
// executing, or suspended on <-resume inside Job.Wait/Yield/SwitchQueue.
// Fibers are never freed, only recycled.
type Fiber struct {
	resume  chan uint32
	suspend chan Status

	started bool
	job     *Job
}

func newFiber() *Fiber {
	return &Fiber{
		resume:  make(chan uint32),
		suspend: make(chan Status),
	}
}

// switchIn transfers control to f, running job on it, and blocks the
// caller until the fiber suspends or completes. The first switchIn for a
// fresh or reinitialized Fiber starts its goroutine, which enters by
// running job's body. A later switchIn for a suspended job resumes
// whatever suspension point it last called, inside that call's own
// receive on f.resume; for a fiber recycled after its previous job
// completed, it is received by fiberLoop, which starts the new job's body.
// Must be called with s.mu held; the fiber unlocks it around the actual
// job-body execution and relocks before handing status back.
func (s *Scheduler) switchIn(f *Fiber, job *Job, threadID uint32) Status {
	f.job = job
	if !f.started {
		f.started = true
		go s.fiberLoop(f)
	}
	s.stats.ContextSwitches.Inc()
	f.resume <- threadID
	return <-f.suspend
}

// fiberLoop is the fiber's entry function. It dispatches one job body per
// resume until a job aborts, at which point the goroutine exits; Run marks
// the Fiber un-started so the next attach spawns a fresh goroutine.
func (s *Scheduler) fiberLoop(f *Fiber) {
	for {
		threadID := <-f.resume
		job := f.job
		job.threadID = threadID

		status := s.runJobBody(f, job)
		f.suspend <- status
		if status == StatusAborted {
			return
		}
	}
}

// runJobBody releases the scheduler lock, runs the job's user function,
// and reacquires the lock. This is the only window where job code, and
// anything it calls (Wait/Yield/SwitchQueue/Abort), runs without the
// global lock held.
func (s *Scheduler) runJobBody(f *Fiber, job *Job) (status Status) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(abortSignal); ok {
				s.mu.Lock()
				status = StatusAborted
				return
			}
			panic(r)
		}
	}()

	s.mu.Unlock()
	job.desc.Func(job, job.desc.UserData, &job.threadID)
	s.mu.Lock()
	return StatusComplete
}
