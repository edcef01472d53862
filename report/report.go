// Package report defines the metrics/heartbeat ingress payload and its
// validation. Internal components only ever see reports that passed
// Validate; rejections never mutate stored state.
package report

import (
	"encoding/json"
	"time"
)

// CPUMetrics holds CPU utilization for one sample.
type CPUMetrics struct {
	UsagePercent float64 `json:"usage_percent"`
}

// MemoryMetrics holds memory utilization for one sample.
type MemoryMetrics struct {
	TotalMB      float64 `json:"total_mb,omitempty"`
	UsedMB       float64 `json:"used_mb,omitempty"`
	UsagePercent float64 `json:"usage_percent"`
}

// DiskMetrics holds disk utilization for one sample.
type DiskMetrics struct {
	TotalGB      float64 `json:"total_gb,omitempty"`
	UsedGB       float64 `json:"used_gb,omitempty"`
	UsagePercent float64 `json:"usage_percent"`
}

// NetworkMetrics holds cumulative network counters for one sample.
type NetworkMetrics struct {
	BytesSent     uint64 `json:"bytes_sent"`
	BytesReceived uint64 `json:"bytes_received"`
}

// Metrics is one sample of system metrics from a node.
// CPU and Memory are required at ingress; Disk and Network are optional.
type Metrics struct {
	Timestamp time.Time       `json:"timestamp,omitempty"`
	CPU       *CPUMetrics     `json:"cpu,omitempty"`
	Memory    *MemoryMetrics  `json:"memory,omitempty"`
	Disk      *DiskMetrics    `json:"disk,omitempty"`
	Network   *NetworkMetrics `json:"network,omitempty"`
}

// Heartbeat is the liveness marker sent alongside metrics. Sequence is
// monotonically increasing per node so dropped reports are detectable
// without per-beat acknowledgment.
type Heartbeat struct {
	Sequence      int64     `json:"sequence"`
	Timestamp     time.Time `json:"timestamp"`
	UptimeSeconds float64   `json:"uptime_seconds,omitempty"`
}

// Report is one agent report: metrics plus an optional heartbeat.
type Report struct {
	NodeID    string     `json:"node_id"`
	Hostname  string     `json:"hostname,omitempty"`
	Metrics   Metrics    `json:"metrics"`
	Heartbeat *Heartbeat `json:"heartbeat,omitempty"`
}

// Marshal serializes a report to JSON.
func (r *Report) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Unmarshal deserializes a report from JSON.
func Unmarshal(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
