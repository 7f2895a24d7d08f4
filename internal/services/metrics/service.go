// Package metrics writes run metrics for the node_exporter textfile collector.
package metrics

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

const namespace = "nb27_backup"

// Run describes one finished dump or restore run.
type Run struct {
	Operation string
	Start     time.Time
	Duration  time.Duration
	Bytes     int64
	ExitCode  int
}

// Service defines the interface for metrics output.
type Service interface {
	Record(run Run) error
}

// Impl implements the metrics Service interface.
type Impl struct {
	path   string
	logger zerolog.Logger
}

// New creates a metrics writer. An empty path disables output.
func New(logger zerolog.Logger, path string) *Impl {
	return &Impl{path: path, logger: logger}
}

// PathFor returns the textfile for an operation. Each operation gets its own
// file so a restore never overwrites the series of the last dump.
func PathFor(path, operation string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".prom"
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + "_" + operation + ext
}

// Record writes the gauges of one run. The last success timestamp survives
// failed runs.
func (s *Impl) Record(run Run) error {
	if s.path == "" {
		return nil
	}

	path := PathFor(s.path, run.Operation)
	lastSuccess := previousSuccess(path)
	if run.ExitCode == 0 {
		lastSuccess = float64(run.Start.Add(run.Duration).Unix())
	}

	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"operation": run.Operation}
	factory := promauto.With(reg)

	factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished.",
	}, []string{"operation"}).With(labels).Set(float64(run.Start.Add(run.Duration).Unix()))

	if lastSuccess > 0 {
		factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the last successful run finished.",
		}, []string{"operation"}).With(labels).Set(lastSuccess)
	}

	factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "duration_seconds",
		Help:      "Duration of the last run.",
	}, []string{"operation"}).With(labels).Set(run.Duration.Seconds())

	factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "artifact_bytes",
		Help:      "Size of the dump artifact written or restored by the last run.",
	}, []string{"operation"}).With(labels).Set(float64(run.Bytes))

	factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "exit_code",
		Help:      "Exit code of the last run.",
	}, []string{"operation"}).With(labels).Set(float64(run.ExitCode))

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}

	s.logger.Debug().Str("path", path).Str("operation", run.Operation).Msg("metrics written")
	return nil
}

// previousSuccess reads the last success timestamp from an earlier textfile.
func previousSuccess(path string) float64 {
	f, err := os.Open(path) //nolint:gosec // path is controlled by caller
	if err != nil {
		return 0
	}
	defer func() { _ = f.Close() }()

	prefix := namespace + "_last_success_timestamp_seconds"
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		fields := strings.Fields(line)
		v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err == nil {
			return v
		}
	}
	return 0
}
