package syncer

// inflight counts outstanding remote operations. It is guarded by the
// orchestrator mutex and only reports the 0->1 and 1->0 transitions.
type inflight struct {
	n    int
	idle chan struct{}
}

func newInflight() inflight {
	idle := make(chan struct{})
	close(idle)
	return inflight{idle: idle}
}

// inc reports whether the counter left zero.
func (c *inflight) inc() bool {
	c.n++
	if c.n == 1 {
		c.idle = make(chan struct{})
		return true
	}
	return false
}

// dec reports whether the counter returned to zero.
func (c *inflight) dec() bool {
	if c.n == 0 {
		return false
	}
	c.n--
	if c.n == 0 {
		close(c.idle)
		return true
	}
	return false
}

func (c *inflight) busy() bool {
	return c.n > 0
}
