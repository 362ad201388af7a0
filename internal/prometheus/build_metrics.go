// Package prometheus collects the metrics of a single build. The build is
// a batch job, so the metrics are written once to a file for the
// node_exporter textfile collector instead of being served.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/osbuild/dualboot-images/pkg/partcopy"
)

const namespace = "dualboot"

const buildSubsystem = "build"

type BuildMetrics struct {
	registry *prometheus.Registry

	Duration      prometheus.Gauge
	Success       prometheus.Gauge
	LastSuccess   prometheus.Gauge
	Partitions    *prometheus.GaugeVec
	CopiedBytes   *prometheus.GaugeVec
	ReleaseErrors prometheus.Gauge
}

// NewBuildMetrics registers the build metrics on a fresh registry. Every
// metric carries the layout name as a constant label.
func NewBuildMetrics(layout string) *BuildMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"layout": layout}

	return &BuildMetrics{
		registry: reg,
		Duration: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "duration_seconds",
			Namespace:   namespace,
			Subsystem:   buildSubsystem,
			Help:        "Duration of the last build.",
			ConstLabels: labels,
		}),
		Success: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "success",
			Namespace:   namespace,
			Subsystem:   buildSubsystem,
			Help:        "1 if the last build succeeded, 0 otherwise.",
			ConstLabels: labels,
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "last_success_timestamp_seconds",
			Namespace:   namespace,
			Subsystem:   buildSubsystem,
			Help:        "Unix time the last successful build finished.",
			ConstLabels: labels,
		}),
		Partitions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "partitions",
			Namespace:   namespace,
			Subsystem:   buildSubsystem,
			Help:        "Partitions of the last build by copy status.",
			ConstLabels: labels,
		}, []string{"status"}),
		CopiedBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "copied_bytes",
			Namespace:   namespace,
			Subsystem:   buildSubsystem,
			Help:        "Bytes written to each partition of the last build.",
			ConstLabels: labels,
		}, []string{"partition"}),
		ReleaseErrors: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "release_errors",
			Namespace:   namespace,
			Subsystem:   buildSubsystem,
			Help:        "Loop devices that could not be released.",
			ConstLabels: labels,
		}),
	}
}

// Observe records a finished build. The report is nil if the build
// stopped before any partition was copied.
func (m *BuildMetrics) Observe(report *partcopy.Report, started, finished time.Time, err error) {
	m.Duration.Set(finished.Sub(started).Seconds())
	if err == nil {
		m.Success.Set(1)
		m.LastSuccess.Set(float64(finished.Unix()))
	} else {
		m.Success.Set(0)
	}

	for _, status := range []partcopy.Status{partcopy.STATUS_COPIED, partcopy.STATUS_SKIPPED, partcopy.STATUS_FAILED} {
		m.Partitions.WithLabelValues(status.String()).Set(0)
	}
	if report == nil {
		return
	}
	for _, o := range report.Outcomes {
		m.Partitions.WithLabelValues(o.Status.String()).Inc()
		if o.Status == partcopy.STATUS_COPIED {
			m.CopiedBytes.WithLabelValues(strconv.Itoa(o.ID)).Set(float64(o.Bytes))
		}
	}
	m.ReleaseErrors.Set(float64(len(report.ReleaseErrors)))
}

// WriteTextfile writes all metrics to path, atomically replacing it.
func (m *BuildMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
