package metrics

/* based on https://github.com/zsais/go-gin-prometheus
edits:
- log through zap
- remove push gateway and basic auth
- register against a caller supplied prometheus.Registerer
- serve the separate metrics listener with a stoppable http.Server
*/

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var reqCnt = &Metric{
	ID:          "reqCnt",
	Name:        "req_total",
	Description: "How many HTTP requests processed, partitioned by status code and HTTP method.",
	Type:        TypeCounterVec,
	Args:        []string{"code", "method", "url", "ref"}}

var reqDur = &Metric{
	ID:          "reqDur",
	Name:        "req_dur_ms",
	Description: "The HTTP request latencies in milliseconds.",
	Type:        TypeHistogramVec,
	Args:        []string{"code", "method", "url", "ref"},
}

var resSz = &Metric{
	ID:          "resSz",
	Name:        "resp_sz_bytes",
	Description: "The HTTP response sizes in bytes.",
	Type:        TypeSummaryVec,
	Args:        []string{"code", "method", "url", "ref"},
}

var reqSz = &Metric{
	ID:          "reqSz",
	Name:        "req_sz_bytes",
	Description: "The HTTP request sizes in bytes.",
	Type:        TypeSummaryVec,
	Args:        []string{"code", "method", "url", "ref"},
}

const defaultMetricPath = "/metrics"

// RequestCounterURLLabelMappingFn controls the cardinality of the "url" label,
// e.g. mapping "/api/v1/usage/practice" to its route template.
type RequestCounterURLLabelMappingFn func(c *gin.Context) string

// Prometheus holds the HTTP metrics of one gin engine.
type Prometheus struct {
	reqCnt       *prometheus.CounterVec
	reqDur       *prometheus.HistogramVec
	reqSz, resSz *prometheus.SummaryVec

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	srv        *http.Server

	MetricsPath             string
	ReqCntURLLabelMappingFn RequestCounterURLLabelMappingFn

	logger *zap.SugaredLogger
}

type NewPrometheusOptions struct {
	Subsystem               string
	MetricsPath             string
	ReqCntURLLabelMappingFn func(c *gin.Context) string
	Logger                  *zap.SugaredLogger
	// Registry defaults to the process-wide prometheus registry.
	Registry *prometheus.Registry
}

func NewPrometheus(options NewPrometheusOptions) *Prometheus {
	p := &Prometheus{
		MetricsPath:             options.MetricsPath,
		ReqCntURLLabelMappingFn: options.ReqCntURLLabelMappingFn,
		logger:                  options.Logger,
		registerer:              prometheus.DefaultRegisterer,
		gatherer:                prometheus.DefaultGatherer,
	}
	if options.Registry != nil {
		p.registerer, p.gatherer = options.Registry, options.Registry
	}
	if p.MetricsPath == "" {
		p.MetricsPath = defaultMetricPath
	}
	if p.ReqCntURLLabelMappingFn == nil {
		p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
			if fp := c.FullPath(); fp != "" {
				return fp
			}
			return c.Request.URL.Path
		}
	}
	if p.logger == nil {
		p.logger = zap.NewNop().Sugar()
	}

	p.reqCnt = register(p.registerer, reqCnt, options.Subsystem, p.logger).(*prometheus.CounterVec)
	p.reqDur = register(p.registerer, reqDur, options.Subsystem, p.logger).(*prometheus.HistogramVec)
	p.resSz = register(p.registerer, resSz, options.Subsystem, p.logger).(*prometheus.SummaryVec)
	p.reqSz = register(p.registerer, reqSz, options.Subsystem, p.logger).(*prometheus.SummaryVec)
	return p
}

// register creates the collector for m, reusing an already registered one
// with the same descriptor. Metric definitions are static, so a bad type
// panics.
func register(reg prometheus.Registerer, m *Metric, subsystem string, log *zap.SugaredLogger) prometheus.Collector {
	c, err := NewMetric(m, subsystem)
	if err != nil {
		panic(err)
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		log.Errorf("%s could not be registered in Prometheus, err=%v", m.Name, err)
	}
	return c
}

func (p *Prometheus) handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

// Use adds the middleware to e and exposes the metrics path on e itself.
func (p *Prometheus) Use(e *gin.Engine) {
	e.Use(p.HandlerFunc())
	e.GET(p.MetricsPath, gin.WrapH(p.handler()))
}

// UseWithListener adds the middleware to e and serves the metrics path on a
// separate address, keeping scrapes out of the access log.
func (p *Prometheus) UseWithListener(e *gin.Engine, addr string) {
	e.Use(p.HandlerFunc())
	mux := http.NewServeMux()
	mux.Handle(p.MetricsPath, p.handler())
	p.srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := p.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Errorf("metrics server error: %v", err)
		}
	}()
}

// Shutdown stops the listener started by UseWithListener.
func (p *Prometheus) Shutdown(ctx context.Context) error {
	if p.srv == nil {
		return nil
	}
	return p.srv.Shutdown(ctx)
}

// HandlerFunc defines handler function for middleware
func (p *Prometheus) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == p.MetricsPath {
			c.Next()
			return
		}

		start := time.Now()
		reqSz := requestSize(c.Request)

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		elapsed := MillisecondsSince(start)
		resSz := float64(c.Writer.Size())
		url := p.ReqCntURLLabelMappingFn(c)
		ref := c.Request.Header.Get(RefererKey)

		p.reqDur.WithLabelValues(status, c.Request.Method, url, ref).Observe(elapsed)
		p.reqCnt.WithLabelValues(status, c.Request.Method, url, ref).Inc()
		p.reqSz.WithLabelValues(status, c.Request.Method, url, ref).Observe(float64(reqSz))
		p.resSz.WithLabelValues(status, c.Request.Method, url, ref).Observe(resSz)
	}
}
