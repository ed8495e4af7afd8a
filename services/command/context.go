package command

// Status is the lifecycle of one execution context.
type Status uint8

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusTimedOut
	StatusResourceExceeded
)

func (s Status) Terminal() bool { return s >= StatusCompleted }

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	case StatusResourceExceeded:
		return "resource_exceeded"
	}
	return "?"
}

// ExecContext tracks one in-flight command's budgets and status. Exactly one
// exists at a time (single execution slot); handlers report usage through
// TrackAlloc rather than touching counters of their own.
type ExecContext struct {
	CommandID         uint8
	Op                OpKind
	Seq               uint32
	StartedAtMs       uint32
	TimeBudgetMs      uint32
	MemoryBudgetBytes uint32
	BytesUsed         uint32
	Status            Status

	// step lets multi-step handlers keep a cursor without package state.
	step uint32
	// scratch is the handler's bounded working memory; counted against the
	// memory budget when grown via Grow.
	scratch []byte
}

// TrackAlloc records handler memory usage. The engine compares the running
// total against MemoryBudgetBytes on every pass.
func (c *ExecContext) TrackAlloc(n uint32) { c.BytesUsed += n }

// Grow extends the scratch buffer and accounts for it in one place.
func (c *ExecContext) Grow(n int) []byte {
	c.TrackAlloc(uint32(n))
	c.scratch = append(c.scratch, make([]byte, n)...)
	return c.scratch
}

// ElapsedMs is wall time since the handler entered Running.
func (c *ExecContext) ElapsedMs(nowMs uint32) uint32 { return nowMs - c.StartedAtMs }

// OverTime reports whether the time budget is exhausted (strict >).
func (c *ExecContext) OverTime(nowMs uint32) bool {
	return c.ElapsedMs(nowMs) > c.TimeBudgetMs
}

// OverMemory reports whether tracked allocation exceeds the budget.
func (c *ExecContext) OverMemory() bool {
	return c.BytesUsed > c.MemoryBudgetBytes
}
