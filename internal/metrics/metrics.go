package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "buildhive"
	subsystem = "aws_connections"
)

var (
	// Form Metrics
	FormOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "form_operations_total",
		Help:      "Count of form operations (submit, test, rotate) by outcome.",
	}, []string{"operation", "status"})

	FormOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "form_operation_duration_seconds",
		Help:      "Time taken for a form operation round trip to the host.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// Data Source Metrics
	DataSourceRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "data_source_refreshes_total",
		Help:      "Count of remote data source refreshes by outcome.",
	}, []string{"source", "status"})

	// Host API Metrics
	PageConfigParseFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "page_config_parse_failures_total",
		Help:      "Count of edit pages whose embedded configuration could not be parsed.",
	})
)

// OperationStatus maps an operation error to a metric label value.
func OperationStatus(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
