package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type MetricType string

const (
	TypeCounterVec   MetricType = "counter_vec"
	TypeHistogramVec MetricType = "histogram_vec"
	TypeSummaryVec   MetricType = "summary_vec"
)

// LatencyBucketsMs covers handler and store round trips. Receipt lookups
// against the stores dominate the upper range.
var LatencyBucketsMs = []float64{
	5, 10, 25, 50, 100, 250, 500,
	1000, 2000, 5000, 10000, 30000,
}

// Metric describes one labelled collector.
type Metric struct {
	ID          string
	Name        string
	Description string
	Type        MetricType
	Args        []string
}

// NewMetric builds the collector for m under subsystem.
func NewMetric(m *Metric, subsystem string) (prometheus.Collector, error) {
	switch m.Type {
	case TypeCounterVec:
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      m.Name,
			Help:      m.Description,
		}, m.Args), nil
	case TypeHistogramVec:
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      m.Name,
			Help:      m.Description,
			Buckets:   LatencyBucketsMs,
		}, m.Args), nil
	case TypeSummaryVec:
		return prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Subsystem: subsystem,
			Name:      m.Name,
			Help:      m.Description,
		}, m.Args), nil
	}
	return nil, fmt.Errorf("metric %s: unsupported type %q", m.ID, m.Type)
}

// RefererKey is the header clients set to name the calling screen.
const RefererKey = "X-Referer"

func MillisecondsSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

// requestSize approximates the wire size of r from its request line,
// headers and declared body length.
func requestSize(r *http.Request) int {
	n := len(r.Method) + len(r.Proto) + len(r.Host)
	if r.URL != nil {
		n += len(r.URL.Path)
	}
	for name, values := range r.Header {
		n += len(name)
		for _, v := range values {
			n += len(v)
		}
	}
	if r.ContentLength > 0 {
		n += int(r.ContentLength)
	}
	return n
}
