package report

import (
	"testing"
	"time"

	fkerrors "github.com/vinayprograms/fleetkit/errors"
)

func validReport(nodeID string) *Report {
	return &Report{
		NodeID: nodeID,
		Metrics: Metrics{
			CPU:    &CPUMetrics{UsagePercent: 42.5},
			Memory: &MemoryMetrics{UsagePercent: 61.0},
		},
	}
}

func TestValidator_Accepts(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	now := time.Now()

	r := validReport("node-1")
	r.Metrics.Disk = &DiskMetrics{UsagePercent: 70}
	r.Metrics.Network = &NetworkMetrics{BytesSent: 100, BytesReceived: 200}
	r.Metrics.Timestamp = now.Add(-5 * time.Second)
	r.Heartbeat = &Heartbeat{Sequence: 3, Timestamp: now}

	if err := v.Validate(r, now); err != nil {
		t.Fatalf("Validate() error = %v, want accept", err)
	}
}

func TestValidator_Rejections(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	now := time.Now()

	tests := []struct {
		name     string
		mutate   func(*Report)
		wantCode fkerrors.ErrorCode
	}{
		{
			name:     "missing node id",
			mutate:   func(r *Report) { r.NodeID = "" },
			wantCode: fkerrors.ErrCodeMissingNodeID,
		},
		{
			name:     "missing cpu",
			mutate:   func(r *Report) { r.Metrics.CPU = nil },
			wantCode: fkerrors.ErrCodeMissingMetrics,
		},
		{
			name:     "missing memory",
			mutate:   func(r *Report) { r.Metrics.Memory = nil },
			wantCode: fkerrors.ErrCodeMissingMetrics,
		},
		{
			name:     "cpu above 100",
			mutate:   func(r *Report) { r.Metrics.CPU.UsagePercent = 140 },
			wantCode: fkerrors.ErrCodeOutOfRange,
		},
		{
			name:     "memory below 0",
			mutate:   func(r *Report) { r.Metrics.Memory.UsagePercent = -1 },
			wantCode: fkerrors.ErrCodeOutOfRange,
		},
		{
			name: "disk above 100",
			mutate: func(r *Report) {
				r.Metrics.Disk = &DiskMetrics{UsagePercent: 101}
			},
			wantCode: fkerrors.ErrCodeOutOfRange,
		},
		{
			name: "stale metrics timestamp",
			mutate: func(r *Report) {
				r.Metrics.Timestamp = now.Add(-90 * time.Second)
			},
			wantCode: fkerrors.ErrCodeStaleMetrics,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReport("node-1")
			tt.mutate(r)

			err := v.Validate(r, now)
			if err == nil {
				t.Fatal("Validate() = nil, want rejection")
			}
			if got := fkerrors.Code(err); got != tt.wantCode {
				t.Errorf("Code() = %v, want %v", got, tt.wantCode)
			}
		})
	}
}

// First failure wins: a report with both a missing node ID and out-of-range
// CPU must be rejected for the node ID.
func TestValidator_FirstFailureWins(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	r := validReport("")
	r.Metrics.CPU.UsagePercent = 400

	err := v.Validate(r, time.Now())
	if got := fkerrors.Code(err); got != fkerrors.ErrCodeMissingNodeID {
		t.Errorf("Code() = %v, want MISSING_NODE_ID", got)
	}
}

func TestValidator_StalenessIsDistinctFromValidation(t *testing.T) {
	v := NewValidator(ValidatorConfig{MetricsStaleness: 10 * time.Second})
	now := time.Now()

	r := validReport("node-1")
	r.Metrics.Timestamp = now.Add(-30 * time.Second)

	err := v.Validate(r, now)
	if !fkerrors.IsStaleness(err) {
		t.Errorf("IsStaleness() = false for %v", err)
	}
	if fkerrors.IsValidation(err) {
		t.Error("staleness rejections must not be classified as validation")
	}
}

func TestValidator_NoTimestampSkipsStalenessCheck(t *testing.T) {
	v := NewValidator(ValidatorConfig{MetricsStaleness: time.Second})

	r := validReport("node-1")
	if err := v.Validate(r, time.Now()); err != nil {
		t.Errorf("Validate() error = %v, want accept when timestamp absent", err)
	}
}

func TestReport_MarshalRoundTrip(t *testing.T) {
	r := validReport("node-9")
	r.Heartbeat = &Heartbeat{Sequence: 7, Timestamp: time.Now().UTC()}

	data, err := r.Marshal()
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	decoded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if decoded.NodeID != "node-9" {
		t.Errorf("NodeID = %q", decoded.NodeID)
	}
	if decoded.Heartbeat == nil || decoded.Heartbeat.Sequence != 7 {
		t.Errorf("Heartbeat = %+v", decoded.Heartbeat)
	}
}
