package sched

// jobPool and fiberPool are plain LIFO stacks of free slots, sized once at
// construction, so recently used items stay fresh in cache. Both are
// protected by the scheduler's single global lock like everything else in
// this package, so no internal locking of their own is needed.

type jobPool struct {
	free []*Job
}

func newJobPool(count uint32) *jobPool {
	p := &jobPool{free: make([]*Job, 0, count)}
	for i := uint32(0); i < count; i++ {
		p.free = append(p.free, &Job{})
	}
	return p
}

func (p *jobPool) pop() *Job {
	if len(p.free) == 0 {
		return nil
	}
	n := len(p.free) - 1
	job := p.free[n]
	p.free = p.free[:n]
	return job
}

func (p *jobPool) push(job *Job) {
	p.free = append(p.free, job)
}

func (p *jobPool) len() int { return len(p.free) }

type fiberPool struct {
	free []*Fiber
}

func newFiberPool(count uint32) *fiberPool {
	p := &fiberPool{free: make([]*Fiber, 0, count)}
	for i := uint32(0); i < count; i++ {
		p.free = append(p.free, newFiber())
	}
	return p
}

func (p *fiberPool) pop() *Fiber {
	if len(p.free) == 0 {
		return nil
	}
	n := len(p.free) - 1
	f := p.free[n]
	p.free = p.free[:n]
	return f
}

func (p *fiberPool) push(f *Fiber) {
	p.free = append(p.free, f)
}

func (p *fiberPool) len() int { return len(p.free) }
