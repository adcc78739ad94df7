package sched

import "github.com/google/uuid"

const groupMagic = 0x6a6f6273 // "jobs", arbitrary non-zero tag

// Group is a caller-allocated counter tracking outstanding jobs for a
// fork/join unit or a throttled producer. Plain data: stack, struct field,
// whatever the caller likes. The scheduler only reads and writes its
// fields, never allocates or frees one.
//
// count starts at 1, not 0, so Job.Wait's unconditional decrement-then-
// check-then-increment works even on a freshly initialized, empty group
// waited on with threshold 0, with no jobs ever enqueued against it.
type Group struct {
	job   *Job
	count uint32
	magic uint32
	id    string
}

// Init must be called before a Group is used. A Group whose magic tag
// isn't set (zero value, or corrupted by misuse) is a fatal precondition
// violation the next time the scheduler touches it.
func (g *Group) Init() {
	g.job = nil
	g.count = 1
	g.magic = groupMagic
	g.id = uuid.NewString()
}

// Count reports the current internal counter: 1 plus outstanding jobs
// attributed to the group. Exposed for tests and metrics; ordinary callers
// should use Job.Wait or Scheduler.WaitBlocking instead of polling this.
func (g *Group) Count() uint32 { return g.count }

func (s *Scheduler) assertGroup(g *Group) {
	if g.magic != groupMagic {
		fail(s.log, KindGroupMisuse, "group is corrupt or uninitialized")
	}
}
