package gate

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/fatflowers/entitlement/internal/app/service/subscription"
	"github.com/fatflowers/entitlement/internal/app/service/usage"
	"github.com/fatflowers/entitlement/pkg/metrics"
)

type Decision string

const (
	DecisionAllow           Decision = "allow"
	DecisionLoginRequired   Decision = "login_required"
	DecisionUpgradeRequired Decision = "upgrade_required"
	// DecisionStatusUnknown is returned while the user's status has not been
	// derived yet; callers retry after a status check instead of prompting.
	DecisionStatusUnknown Decision = "status_unknown"
)

const (
	RouteLogin        = "/(auth)/login"
	RouteSubscription = "/(tabs)/subscription"
)

type Action struct {
	Text  string `json:"text"`
	Style string `json:"style,omitempty"`
	Route string `json:"route,omitempty"`
}

// Prompt is the alert a client shows for a denied decision.
type Prompt struct {
	Title   string   `json:"title"`
	Message string   `json:"message"`
	Actions []Action `json:"actions"`
}

type Result struct {
	Feature  string   `json:"feature"`
	Allowed  bool     `json:"allowed"`
	Decision Decision `json:"decision"`
	Prompt   *Prompt  `json:"prompt,omitempty"`
}

type Options struct {
	// HidePrompt suppresses the prompt of a denied decision.
	HidePrompt bool
	// NoRedirect drops the subscription route from the upgrade prompt.
	NoRedirect bool
}

// StatusSource is the cached view of the entitlement query service.
type StatusSource interface {
	IsPremium(userID string) bool
	Current(userID string) (*subscription.Status, bool)
}

// Gate decides premium access from cached state only; it never does I/O.
type Gate struct {
	status  StatusSource
	usage   UsageSource
	metrics *metrics.Business
}

func New(status StatusSource, usage UsageSource, m *metrics.Business) *Gate {
	return &Gate{status: status, usage: usage, metrics: m}
}

func (g *Gate) CheckPremiumAccess(userID, feature string, opts Options) *Result {
	res := g.decide(userID, feature, opts)
	g.metrics.GateDecision(feature, string(res.Decision))
	return res
}

func (g *Gate) decide(userID, feature string, opts Options) *Result {
	res := &Result{Feature: feature}
	if userID == "" {
		res.Decision = DecisionLoginRequired
		if !opts.HidePrompt {
			res.Prompt = loginPrompt(feature)
		}
		return res
	}
	if _, checked := g.status.Current(userID); !checked {
		res.Decision = DecisionStatusUnknown
		return res
	}
	if g.status.IsPremium(userID) {
		res.Allowed = true
		res.Decision = DecisionAllow
		return res
	}
	res.Decision = DecisionUpgradeRequired
	if !opts.HidePrompt {
		res.Prompt = upgradePrompt(feature, !opts.NoRedirect)
	}
	return res
}

// RequirePremium runs onAuthorized only when access is allowed.
func (g *Gate) RequirePremium(userID, feature string, onAuthorized func()) *Result {
	res := g.CheckPremiumAccess(userID, feature, Options{})
	if res.Allowed && onAuthorized != nil {
		onAuthorized()
	}
	return res
}

func loginPrompt(feature string) *Prompt {
	return &Prompt{
		Title:   "Login Required",
		Message: fmt.Sprintf("Please log in to access %s", feature),
		Actions: []Action{
			{Text: "Cancel", Style: "cancel"},
			{Text: "Log In", Route: RouteLogin},
		},
	}
}

func upgradePrompt(feature string, redirect bool) *Prompt {
	upgrade := Action{Text: "Upgrade"}
	if redirect {
		upgrade.Route = RouteSubscription
	}
	return &Prompt{
		Title:   "Premium Feature",
		Message: fmt.Sprintf("%s is a premium feature. Upgrade to Premium to access this feature.", feature),
		Actions: []Action{
			{Text: "Cancel", Style: "cancel"},
			upgrade,
		},
	}
}

func newGate(s *subscription.Service, t *usage.Tracker, m *metrics.Business) *Gate {
	return New(s, t, m)
}

var Module = fx.Options(
	fx.Provide(newGate),
)
