package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/convtest/types"
)

const (
	MetricsNamespace = "convtest"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	casesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cases_total",
		Help:      "Count of classified test cases",
	}, []string{
		"run_id",
		"name",
		"result",
		"category",
	})

	casePeakMemory = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "case_peak_memory_bytes",
		Help:      "Peak resident memory of a test case subprocess",
	}, []string{
		"name",
	})

	casePeakCPU = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "case_peak_cpu_percent",
		Help:      "Peak CPU percentage of a test case subprocess",
	}, []string{
		"name",
	})

	caseAvgCPUPerCore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "case_avg_cpu_per_core_percent",
		Help:      "Average per-core CPU utilization of a test case subprocess",
	}, []string{
		"name",
	})

	caseDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "case_duration_seconds",
		Help:      "Wall clock duration of a test case",
	}, []string{
		"name",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of a test run",
	}, []string{
		"run_id",
		"result",
	})

	runCases = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_cases",
		Help:      "Number of test cases per run by counter",
	}, []string{
		"run_id",
		"counter",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of a test run",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordCase records the outcome and resource usage of one test case
func RecordCase(runID string, name string, result types.TestStatus, category types.FailureCategory, stats types.PeakStats, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordCase - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "cases_total",
			"run_id", runID,
			"name", name,
			"result", result,
			"category", category)
	}
	casesTotal.WithLabelValues(runID, name, string(result), string(category)).Inc()
	casePeakMemory.WithLabelValues(name).Set(float64(stats.PeakMemoryBytes))
	casePeakCPU.WithLabelValues(name).Set(stats.PeakCPUPercent)
	caseAvgCPUPerCore.WithLabelValues(name).Set(stats.AvgCPUPerCore)
	caseDuration.WithLabelValues(name).Set(duration.Seconds())
}

// RecordRun records the aggregate counters of a finished run
func RecordRun(summary *types.RunSummary) {
	if summary == nil {
		return
	}
	runResults.WithLabelValues(summary.RunID, string(summary.Status())).Set(1)
	runCases.WithLabelValues(summary.RunID, "total").Add(float64(summary.Total))
	runCases.WithLabelValues(summary.RunID, "executed").Add(float64(summary.Executed))
	runCases.WithLabelValues(summary.RunID, "skipped").Add(float64(summary.Skipped))
	runCases.WithLabelValues(summary.RunID, "failed").Add(float64(summary.Failed))
	runCases.WithLabelValues(summary.RunID, "errored").Add(float64(summary.Errored))
	runDuration.WithLabelValues(summary.RunID).Set(summary.Duration.Seconds())
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
