package report

import (
	"fmt"
	"time"

	fkerrors "github.com/vinayprograms/fleetkit/errors"
)

// DefaultMetricsStaleness is the default bound on metric timestamp age.
const DefaultMetricsStaleness = 60 * time.Second

// ValidatorConfig configures the ingress validator.
type ValidatorConfig struct {
	// MetricsStaleness is the maximum accepted age of a metric timestamp.
	// Default: 60 seconds.
	MetricsStaleness time.Duration
}

// DefaultValidatorConfig returns configuration with sensible defaults.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MetricsStaleness: DefaultMetricsStaleness,
	}
}

// Validator checks raw reports at ingress. It is stateless: Validate is a
// pure function of the report and the supplied clock reading.
type Validator struct {
	staleness time.Duration
}

// NewValidator creates a validator.
func NewValidator(cfg ValidatorConfig) *Validator {
	staleness := cfg.MetricsStaleness
	if staleness <= 0 {
		staleness = DefaultMetricsStaleness
	}
	return &Validator{staleness: staleness}
}

// Validate checks a report. Checks run in order and the first failure wins:
// node ID present, metrics present with CPU and memory utilization,
// utilizations within [0,100], metric timestamp within the staleness bound.
func (v *Validator) Validate(r *Report, now time.Time) error {
	if r == nil {
		return fkerrors.InvalidReport("nil report")
	}

	if r.NodeID == "" {
		return fkerrors.New(fkerrors.ErrCodeMissingNodeID, "report has no node identifier")
	}

	if r.Metrics.CPU == nil || r.Metrics.Memory == nil {
		return fkerrors.New(fkerrors.ErrCodeMissingMetrics,
			"report must include cpu and memory utilization",
			fkerrors.WithNodeID(r.NodeID))
	}

	if err := checkUtilization(r.NodeID, "cpu.usage_percent", r.Metrics.CPU.UsagePercent); err != nil {
		return err
	}
	if err := checkUtilization(r.NodeID, "memory.usage_percent", r.Metrics.Memory.UsagePercent); err != nil {
		return err
	}
	if r.Metrics.Disk != nil {
		if err := checkUtilization(r.NodeID, "disk.usage_percent", r.Metrics.Disk.UsagePercent); err != nil {
			return err
		}
	}

	if !r.Metrics.Timestamp.IsZero() {
		if age := now.Sub(r.Metrics.Timestamp); age > v.staleness {
			return fkerrors.StaleMetrics(r.NodeID, age)
		}
	}

	return nil
}

func checkUtilization(nodeID, field string, value float64) error {
	if value < 0 || value > 100 {
		return fkerrors.New(fkerrors.ErrCodeOutOfRange,
			fmt.Sprintf("%s = %.2f outside [0,100]", field, value),
			fkerrors.WithNodeID(nodeID),
			fkerrors.WithMetadata("field", field))
	}
	return nil
}
