package types

// ResourceSample is a single memory/CPU reading of a running process.
// Samples are ordered by the sequence in which they were taken.
type ResourceSample struct {
	MemoryBytes uint64
	CPUPercent  float64
}

// PeakStats holds resource usage extremes and the average per-core CPU
// utilization observed over the lifetime of one test case.
type PeakStats struct {
	PeakMemoryBytes uint64
	PeakCPUPercent  float64
	AvgCPUPerCore   float64
	Samples         int
}

const bytesPerGiB = 1 << 30

// PeakMemoryGiB returns the peak resident memory in GiB
func (s PeakStats) PeakMemoryGiB() float64 {
	return float64(s.PeakMemoryBytes) / bytesPerGiB
}
