package controller

import (
	"os"
	"strconv"
	"strings"
)

// ProcLoadSampler reads the 1-minute load average from /proc/loadavg.
// There is no cross-platform way to read host load average from the Go
// standard library, and nothing in the reference stack pulls in a
// gopsutil-style dependency for it, so this stays a small, honest
// best-effort reader: on non-Linux platforms (or if the file is
// unreadable) LoadAverage1Min reports ok=false and the CPU mitigation
// simply never trips.
type ProcLoadSampler struct{}

func (ProcLoadSampler) LoadAverage1Min() (float64, bool) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, false
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
