package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage names used by the report workflow.
const (
	StageExtract = "extract"
	StageAnalyze = "analyze"
)

// Registry holds every collector exported by the service.
var Registry = prometheus.NewRegistry()

var (
	reportsUploaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reports_uploaded_total",
		Help: "Total reports accepted by the upload endpoint",
	})

	stageTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_stage_total",
		Help: "Report workflow stage events by outcome",
	}, []string{"stage", "outcome"})

	stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "report_stage_duration_seconds",
		Help:    "Duration of report workflow stages",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"stage"})

	jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_jobs_total",
		Help: "Queue jobs handled by workers by outcome",
	}, []string{"outcome"})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	marketCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketdata_cache_total",
		Help: "Market data cache lookups by result",
	}, []string{"result"})

	marketUpstream = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketdata_upstream_requests_total",
		Help: "Market data provider calls by function and outcome",
	}, []string{"function", "outcome"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		reportsUploaded,
		stageTotal,
		stageDuration,
		jobsTotal,
		httpRequests,
		httpDuration,
		marketCache,
		marketUpstream,
	)
}

// IncReportUploaded increments the upload counter.
func IncReportUploaded() {
	reportsUploaded.Inc()
}

// IncStage records a workflow stage event ("started", "completed", "failed", "skipped").
func IncStage(stage, outcome string) {
	stageTotal.WithLabelValues(stage, outcome).Inc()
}

// ObserveStageDuration records how long a stage ran.
func ObserveStageDuration(stage string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IncJob records a worker job outcome ("received", "completed", "failed", "deleted_unrecoverable").
func IncJob(outcome string) {
	jobsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// IncMarketCache records a market data cache hit or miss.
func IncMarketCache(hit bool) {
	if hit {
		marketCache.WithLabelValues("hit").Inc()
		return
	}
	marketCache.WithLabelValues("miss").Inc()
}

// IncMarketUpstream records a market data provider call.
func IncMarketUpstream(function, outcome string) {
	marketUpstream.WithLabelValues(function, outcome).Inc()
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}
