package explain

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/fleetkit/decision"
)

// Template renders the deterministic one-line justification for a
// decision. It is a pure function of the decision's fields.
func Template(d decision.Decision) string {
	if d.InsufficientData {
		return fmt.Sprintf("node %s has too little history to judge; monitoring continues", d.NodeID)
	}

	cause := ""
	if d.RootCause != nil && d.RootCause.Label != "" {
		cause = strings.ToLower(string(d.RootCause.Label))
	}

	switch d.Kind {
	case decision.KindAutoHeal:
		return fmt.Sprintf("node %s is %s driven by %s pressure; running safe remediation %s",
			d.NodeID, lower(string(d.RiskLevel)), cause, d.HealingAction)

	case decision.KindPredictFailure:
		return fmt.Sprintf("node %s health is falling at %.1f points per sample and is projected to reach critical; flagging predicted failure",
			d.NodeID, -d.TrendVelocity)

	case decision.KindEscalate:
		if cause != "" {
			return fmt.Sprintf("node %s risk is %s with %s as the dominant factor after %d consecutive cycles; escalating for attention",
				d.NodeID, lower(string(d.RiskLevel)), cause, d.Persistence)
		}
		return fmt.Sprintf("node %s risk is %s after %d consecutive cycles; escalating for attention",
			d.NodeID, lower(string(d.RiskLevel)), d.Persistence)

	case decision.KindDeEscalate:
		return fmt.Sprintf("node %s is recovering with an %s trend; stepping attention back down",
			d.NodeID, lower(string(d.Trend)))

	default:
		if d.Degraded {
			return fmt.Sprintf("node %s needs remediation but the healing collaborator is unavailable; holding at no action", d.NodeID)
		}
		return fmt.Sprintf("node %s is %s at health %.0f; no action required",
			d.NodeID, lower(string(d.Trend)), d.HealthScore)
	}
}

func lower(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", " "))
}
