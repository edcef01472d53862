package explain

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/fleetkit/decision"
)

const systemPrompt = "You explain fleet monitoring decisions to an operator. " +
	"Reply with exactly one plain sentence. Use only the facts given; do not invent metrics."

// prompt serializes the decision facts for the phrasing provider.
func prompt(d decision.Decision) string {
	var b strings.Builder

	fmt.Fprintf(&b, "decision=%s node=%s risk=%s health=%.0f trend=%s velocity=%.2f persistence=%d confidence=%.2f",
		d.Kind, d.NodeID, d.RiskLevel, d.HealthScore, d.Trend, d.TrendVelocity, d.Persistence, d.Confidence)

	if d.RootCause != nil && d.RootCause.Label != "" {
		fmt.Fprintf(&b, " root_cause=%s", d.RootCause.Label)
	}
	if d.HealingAction != "" {
		fmt.Fprintf(&b, " healing_action=%s", d.HealingAction)
	}
	if len(d.ReasoningChain) > 0 {
		fmt.Fprintf(&b, "\nreasoning: %s", strings.Join(d.ReasoningChain, "; "))
	}

	return b.String()
}
