package gate

import (
	"fmt"

	"github.com/fatflowers/entitlement/internal/app/service/usage"
)

// UsageSource is the cached view of the usage tracker.
type UsageSource interface {
	Snapshot(userID, feature string, dailyLimit int) *usage.Snapshot
}

type UsageResult struct {
	*usage.Snapshot
	Prompt *Prompt `json:"prompt,omitempty"`
}

// CheckUsage allows a metered feature while the daily cap is not reached.
// An exhausted cap carries an upgrade prompt; the screen itself stays open.
func (g *Gate) CheckUsage(userID, feature string, dailyLimit int) *UsageResult {
	snap := g.usage.Snapshot(userID, feature, dailyLimit)
	res := &UsageResult{Snapshot: snap}
	if snap.CanUse {
		g.metrics.GateDecision(feature, "usage_allow")
	} else {
		g.metrics.GateDecision(feature, "usage_exhausted")
		res.Prompt = &Prompt{
			Title:   "Daily Limit Reached",
			Message: fmt.Sprintf("You have used all %d free %s sessions today. Upgrade to Premium for unlimited access.", dailyLimit, feature),
			Actions: []Action{
				{Text: "Later", Style: "cancel"},
				{Text: "Upgrade", Route: RouteSubscription},
			},
		}
	}
	return res
}
