// Package metrics exposes run outcomes as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bgricker/matrixrun/internal/report"
	"github.com/bgricker/matrixrun/internal/runner"
)

const namespace = "matrixrun"

// Collector records instance and step outcomes. It implements runner.Observer.
type Collector struct {
	registry  *prometheus.Registry
	running   prometheus.Gauge
	instances *prometheus.CounterVec
	steps     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	runs      *prometheus.CounterVec
	webhooks  *prometheus.CounterVec
}

var _ runner.Observer = (*Collector)(nil)

// New creates a collector on its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instances_running",
			Help:      "Job instances currently executing.",
		}),
		instances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_total",
			Help:      "Finished job instances by workflow, job and status.",
		}, []string{"workflow", "job", "status"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Finished steps by status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "instance_duration_seconds",
			Help:      "Wall-clock duration of job instances.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14),
		}, []string{"workflow", "job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished pipeline runs by event kind and status.",
		}, []string{"event", "status"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook deliveries by event and outcome.",
		}, []string{"event", "outcome"}),
	}
	c.registry.MustRegister(
		c.running, c.instances, c.steps, c.duration, c.runs, c.webhooks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry for tests and custom handlers.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) InstanceStarted(runner.Instance) {
	c.running.Inc()
}

func (c *Collector) StepFinished(_ runner.Instance, step report.StepResult) {
	c.steps.WithLabelValues(step.Status).Inc()
}

func (c *Collector) InstanceFinished(inst runner.Instance, res report.InstanceResult) {
	c.running.Dec()
	c.instances.WithLabelValues(workflowLabel(inst), inst.Job.RawID, res.Status).Inc()
	c.duration.WithLabelValues(workflowLabel(inst), inst.Job.RawID).Observe(res.Duration.Seconds())
}

// RunFinished records the overall outcome of a run.
func (c *Collector) RunFinished(run report.Run) {
	kind := run.Event.Kind
	if kind == "" {
		kind = "manual"
	}
	c.runs.WithLabelValues(kind, run.Status).Inc()
}

// WebhookDelivery records how a webhook delivery was handled.
func (c *Collector) WebhookDelivery(event, outcome string) {
	c.webhooks.WithLabelValues(event, outcome).Inc()
}

func workflowLabel(inst runner.Instance) string {
	if inst.Workflow.Name != "" {
		return inst.Workflow.Name
	}
	return inst.Workflow.Path
}
