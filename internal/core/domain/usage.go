package domain

// UsageReport is the tenant-visible slice of a Redis INFO memory dump.
// Only an allow-listed set of keys survives parsing; byte-valued fields
// are carried as human-scaled strings. UsedMemory already has the
// instance's provisioning-time overhead subtracted, so the tenant never
// sees fixed process overhead as consumed quota.
type UsageReport struct {
	UsedMemory            string  `json:"used_memory,omitempty"`
	UsedMemoryRSS         string  `json:"used_memory_rss,omitempty"`
	UsedMemoryPeak        string  `json:"used_memory_peak,omitempty"`
	UsedMemoryPeakPerc    string  `json:"used_memory_peak_perc,omitempty"`
	TotalSystemMemory     string  `json:"total_system_memory,omitempty"`
	MaxMemory             string  `json:"maxmemory,omitempty"`
	MaxMemoryPolicy       string  `json:"maxmemory_policy,omitempty"`
	MemFragmentationRatio float64 `json:"mem_fragmentation_ratio,omitempty"`

	// UsedBytes is max(0, raw used_memory - overhead). RemainingBytes is
	// quota - UsedBytes and stays negative when the instance is over
	// quota; the RemainMemory string clamps at "0 B" for display.
	UsedBytes      int64  `json:"used_bytes"`
	RemainingBytes int64  `json:"remaining_bytes"`
	RemainMemory   string `json:"remain_memory"`
}
