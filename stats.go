package governor

// Statistics is a point-in-time snapshot of governor counters.
//
// Fields are read independently; the snapshot is not atomic across fields.
type Statistics struct {
	// TotalOperations counts AcquirePermit attempts, successful or not.
	TotalOperations uint64 `json:"total_operations" yaml:"total_operations"`

	// ThrottledOperations counts CPU backoffs and delayed ThrottleIO calls.
	ThrottledOperations uint64 `json:"throttled_operations" yaml:"throttled_operations"`

	CurrentCPUUsage uint64 `json:"current_cpu_usage" yaml:"current_cpu_usage"`
	CurrentRAMUsage uint64 `json:"current_ram_usage" yaml:"current_ram_usage"`
	IsPaused        bool   `json:"is_paused" yaml:"is_paused"`

	// InFlight is the number of outstanding permits.
	InFlight int64 `json:"in_flight" yaml:"in_flight"`

	// Capacity is MaxConcurrentOperations, the bound on InFlight.
	Capacity int64 `json:"capacity" yaml:"capacity"`
}

// Statistics returns a snapshot of the governor's counters.
func (g *Governor) Statistics() Statistics {
	return Statistics{
		TotalOperations:     g.totalOps.Load(),
		ThrottledOperations: g.throttledOps.Load(),
		CurrentCPUUsage:     g.res.CPU(),
		CurrentRAMUsage:     g.res.RAM(),
		IsPaused:            g.pause.Paused(),
		InFlight:            g.res.InFlight(),
		Capacity:            g.res.Capacity(),
	}
}

// ResetStatistics zeroes TotalOperations and ThrottledOperations.
// CPU, RAM and pause state are left unchanged.
func (g *Governor) ResetStatistics() {
	g.totalOps.Store(0)
	g.throttledOps.Store(0)
}
