package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/redisloft/redisloft/internal/core/domain"
)

// TenantQuotaBytes is the fixed per-tenant memory quota. The server's
// real maxmemory ceiling sits above it so the instance has headroom for
// its own bookkeeping.
const TenantQuotaBytes = 12 * 1024 * 1024

const (
	kb = 1024
	mb = kb * 1024
	gb = mb * 1024
)

// FormatBytes renders a byte count human-readable: base 1024, two
// decimals, thresholds at KB/MB/GB. Non-positive counts render as "0 B".
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	switch {
	case n >= gb:
		return fmt.Sprintf("%.2f GB", float64(n)/float64(gb))
	case n >= mb:
		return fmt.Sprintf("%.2f MB", float64(n)/float64(mb))
	case n >= kb:
		return fmt.Sprintf("%.2f KB", float64(n)/float64(kb))
	}
	return fmt.Sprintf("%d B", n)
}

// ParseUsage turns a raw INFO memory dump into a tenant-visible report.
// Keys outside the allow-list are dropped; malformed lines are skipped so
// a degraded dump still yields a partial report rather than an error.
// overheadBytes is the baseline sampled at provisioning time and is
// subtracted from the raw used_memory figure, floored at zero.
func ParseUsage(raw string, overheadBytes int64) *domain.UsageReport {
	report := &domain.UsageReport{}
	var rawUsed int64
	var haveUsed bool

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(stripNonPrintable(line))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		colon := strings.Index(line, ":")
		if colon <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])

		switch key {
		case "used_memory":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				continue
			}
			rawUsed = n
			haveUsed = true
		case "used_memory_rss":
			report.UsedMemoryRSS = formatByteValue(value)
		case "used_memory_peak":
			report.UsedMemoryPeak = formatByteValue(value)
		case "used_memory_peak_perc":
			report.UsedMemoryPeakPerc = value
		case "total_system_memory":
			report.TotalSystemMemory = formatByteValue(value)
		case "maxmemory":
			// Reported as the tenant quota, not the server's real
			// ceiling, so the tenant sees the limit that applies to them.
			report.MaxMemory = FormatBytes(TenantQuotaBytes)
		case "maxmemory_policy":
			report.MaxMemoryPolicy = value
		case "mem_fragmentation_ratio":
			if ratio, err := strconv.ParseFloat(value, 64); err == nil {
				report.MemFragmentationRatio = ratio
			}
		}
	}

	used := rawUsed - overheadBytes
	if used < 0 {
		used = 0
	}
	report.UsedBytes = used
	if haveUsed {
		report.UsedMemory = FormatBytes(used)
	}
	report.RemainingBytes = TenantQuotaBytes - used
	report.RemainMemory = FormatBytes(report.RemainingBytes)
	return report
}

func formatByteValue(value string) string {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return value
	}
	return FormatBytes(n)
}

// stripNonPrintable drops control and non-ASCII bytes; exec streams can
// carry multiplexing artifacts around the payload.
func stripNonPrintable(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 0x20 && r <= 0x7e {
			return r
		}
		return -1
	}, s)
}

// parseUsedMemory extracts the raw used_memory byte count from an INFO
// memory dump; the provisioner samples it as the instance's overhead.
func parseUsedMemory(raw string) int64 {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(stripNonPrintable(line))
		value, ok := strings.CutPrefix(line, "used_memory:")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}
