package flush

// Policy marks buffers pending for flush and requests delete application.
// Its methods run under the control lock.
type Policy interface {
	// OnInsert is called after s buffered a document.
	OnInsert(c *Control, s *ThreadState)
	// OnDelete is called after a delete was buffered. s may be nil.
	OnDelete(c *Control, s *ThreadState)
	// OnUpdate is called after s buffered an update-document.
	OnUpdate(c *Control, s *ThreadState)
}

// RAMOrCountsPolicy flushes by doc count or by total RAM, and applies
// deletes by buffered delete-term count or by delete RAM.
//
// When the RAM budget is hit the largest non-pending buffer is marked, which
// need not be the caller's.
type RAMOrCountsPolicy struct {
	cfg Config
}

// NewRAMOrCountsPolicy returns a policy for cfg's triggers.
func NewRAMOrCountsPolicy(cfg Config) *RAMOrCountsPolicy {
	return &RAMOrCountsPolicy{cfg: cfg}
}

// OnDelete implements Policy.
func (p *RAMOrCountsPolicy) OnDelete(c *Control, _ *ThreadState) {
	if p.cfg.flushOnDeleteTerms() && c.NumGlobalTermDeletes() >= int64(p.cfg.MaxBufferedDeleteTerms) {
		c.SetApplyAllDeletes()
		c.logger.Debug("apply all deletes: too many delete terms",
			"terms", c.NumGlobalTermDeletes(), "max", p.cfg.MaxBufferedDeleteTerms)
	}
	if p.cfg.flushOnRAM() && c.DeleteBytes() > p.cfg.ramBufferBytes() {
		c.SetApplyAllDeletes()
		c.logger.Debug("apply all deletes: delete RAM over budget",
			"deleteBytes", c.DeleteBytes(), "limit", p.cfg.ramBufferBytes())
	}
}

// OnInsert implements Policy.
func (p *RAMOrCountsPolicy) OnInsert(c *Control, s *ThreadState) {
	switch {
	case p.cfg.flushOnDocCount() && s.NumDocs() >= p.cfg.MaxBufferedDocs:
		c.SetFlushPending(s)
	case p.cfg.flushOnRAM():
		limit := p.cfg.ramBufferBytes()
		total := c.ActiveBytes() + c.DeleteBytes()
		if total >= limit {
			largest := c.FindLargestNonPending(s)
			c.logger.Debug("flush: RAM budget reached",
				"activeBytes", c.ActiveBytes(), "deleteBytes", c.DeleteBytes(),
				"limit", limit, "state", largest.Ord())
			c.SetFlushPending(largest)
		}
	}
}

// OnUpdate implements Policy.
func (p *RAMOrCountsPolicy) OnUpdate(c *Control, s *ThreadState) {
	p.OnInsert(c, s)
	p.OnDelete(c, s)
}
