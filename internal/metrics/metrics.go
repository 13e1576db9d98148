// Package metrics exposes MindMate's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/MindMate/internal/intervention"
	"github.com/BTreeMap/MindMate/internal/models"
)

// Namespace prefixes every metric name.
const Namespace = "mindmate"

// Collector holds the metric vectors on a private registry.
type Collector struct {
	registry *prometheus.Registry

	Assessments         *prometheus.CounterVec
	AssessmentDuration  prometheus.Histogram
	AssessmentScore     prometheus.Histogram
	Extractors          *prometheus.CounterVec
	Interventions       *prometheus.CounterVec
	Jobs                *prometheus.CounterVec
	JobDuration         *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates a Collector with its own registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		Assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "risk_assessments_total",
			Help:      "Total risk assessments by level, method and scoring status",
		}, []string{"level", "method", "status"}),
		AssessmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "risk_assessment_duration_seconds",
			Help:      "Duration of risk assessments in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		AssessmentScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "risk_score",
			Help:      "Distribution of assessed risk scores",
			Buckets:   []float64{0.2, 0.4, 0.6, 0.8, 1.0},
		}),
		Extractors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "feature_extractions_total",
			Help:      "Feature extractor runs by extractor and status",
		}, []string{"extractor", "status"}),
		Interventions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "interventions_total",
			Help:      "Executed interventions by level and status",
		}, []string{"level", "status"}),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "jobs_total",
			Help:      "Background job executions by kind and result",
		}, []string{"kind", "result"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of background jobs in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status_code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	reg.MustRegister(
		c.Assessments, c.AssessmentDuration, c.AssessmentScore, c.Extractors,
		c.Interventions, c.Jobs, c.JobDuration,
		c.HTTPRequestsTotal, c.HTTPRequestDuration,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ExtractorCompleted implements pipeline.Observer.
func (c *Collector) ExtractorCompleted(name string, out models.Outcome) {
	c.Extractors.WithLabelValues(name, string(out.Status)).Inc()
}

// AssessmentCompleted implements pipeline.Observer.
func (c *Collector) AssessmentCompleted(a models.RiskAssessment, scoring models.Outcome, elapsed time.Duration) {
	c.Assessments.WithLabelValues(string(a.Level), string(a.Method), string(scoring.Status)).Inc()
	c.AssessmentDuration.Observe(elapsed.Seconds())
	c.AssessmentScore.Observe(a.Score)
}

// InterventionCompleted implements pipeline.Observer.
func (c *Collector) InterventionCompleted(level models.RiskLevel, res intervention.Result, err error) {
	status := string(res.Outcome.Status)
	if err != nil && status == "" {
		status = string(models.OutcomeFailed)
	}
	c.Interventions.WithLabelValues(string(level), status).Inc()
}

// ObserveJob matches store.JobObserver.
func (c *Collector) ObserveJob(kind string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Jobs.WithLabelValues(kind, result).Inc()
	c.JobDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	c.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	c.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
