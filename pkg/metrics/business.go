package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const businessSubsystem = "entitlement"

var MetricsBusinessProcess = &Metric{
	ID:          "bpDur",
	Name:        "bp_dur",
	Description: "process latency in milliseconds",
	Type:        TypeHistogramVec,
	Args:        []string{"type", "subtype"},
}

var purchaseEvents = &Metric{
	ID:          "purchaseEvents",
	Name:        "purchase_events_total",
	Description: "Purchase events handled by the purchase flow, partitioned by kind and outcome.",
	Type:        TypeCounterVec,
	Args:        []string{"kind", "result"},
}

var statusChecks = &Metric{
	ID:          "statusChecks",
	Name:        "status_checks_total",
	Description: "Subscription status checks, partitioned by outcome.",
	Type:        TypeCounterVec,
	Args:        []string{"result"},
}

var gateDecisions = &Metric{
	ID:          "gateDecisions",
	Name:        "gate_decisions_total",
	Description: "Feature gate decisions, partitioned by feature and decision.",
	Type:        TypeCounterVec,
	Args:        []string{"feature", "decision"},
}

var usageIncrements = &Metric{
	ID:          "usageIncrements",
	Name:        "usage_increments_total",
	Description: "Daily usage increments, partitioned by feature and outcome.",
	Type:        TypeCounterVec,
	Args:        []string{"feature", "result"},
}

// Business groups the domain counters. A nil *Business records nothing, so
// services built without metrics stay usable.
type Business struct {
	process         *prometheus.HistogramVec
	purchaseEvents  *prometheus.CounterVec
	statusChecks    *prometheus.CounterVec
	gateDecisions   *prometheus.CounterVec
	usageIncrements *prometheus.CounterVec
}

func NewBusiness(reg prometheus.Registerer, log *zap.SugaredLogger) *Business {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Business{
		process:         register(reg, MetricsBusinessProcess, businessSubsystem, log).(*prometheus.HistogramVec),
		purchaseEvents:  register(reg, purchaseEvents, businessSubsystem, log).(*prometheus.CounterVec),
		statusChecks:    register(reg, statusChecks, businessSubsystem, log).(*prometheus.CounterVec),
		gateDecisions:   register(reg, gateDecisions, businessSubsystem, log).(*prometheus.CounterVec),
		usageIncrements: register(reg, usageIncrements, businessSubsystem, log).(*prometheus.CounterVec),
	}
}

// ObserveProcess records the latency of one step, e.g. ("purchase", "validate").
func (b *Business) ObserveProcess(typ, subtype string, start time.Time) {
	if b == nil {
		return
	}
	b.process.WithLabelValues(typ, subtype).Observe(MillisecondsSince(start))
}

func (b *Business) PurchaseEvent(kind, result string) {
	if b == nil {
		return
	}
	b.purchaseEvents.WithLabelValues(kind, result).Inc()
}

func (b *Business) StatusCheck(result string) {
	if b == nil {
		return
	}
	b.statusChecks.WithLabelValues(result).Inc()
}

func (b *Business) GateDecision(feature, decision string) {
	if b == nil {
		return
	}
	b.gateDecisions.WithLabelValues(feature, decision).Inc()
}

func (b *Business) UsageIncrement(feature, result string) {
	if b == nil {
		return
	}
	b.usageIncrements.WithLabelValues(feature, result).Inc()
}

func newDefaultBusiness(log *zap.SugaredLogger) *Business {
	return NewBusiness(prometheus.DefaultRegisterer, log)
}

var Module = fx.Options(
	fx.Provide(newDefaultBusiness),
)
