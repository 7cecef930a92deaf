package research

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce     sync.Once
	sessionsStarted otelmetric.Int64Counter
	sessionsEnded   otelmetric.Int64Counter
	runsFinished    otelmetric.Int64Counter
	runRetries      otelmetric.Int64Counter
	runDuration     otelmetric.Float64Histogram
)

func initMetrics() {
	meter := otel.Meter("deepresearch/internal/research")
	var err error
	sessionsStarted, err = meter.Int64Counter(
		"research_sessions_started_total",
		otelmetric.WithDescription("Research sessions launched"),
	)
	if err != nil {
		log.Printf("research metrics init: research_sessions_started_total: %v", err)
	}
	sessionsEnded, err = meter.Int64Counter(
		"research_sessions_ended_total",
		otelmetric.WithDescription("Research sessions finished, by outcome"),
	)
	if err != nil {
		log.Printf("research metrics init: research_sessions_ended_total: %v", err)
	}
	runsFinished, err = meter.Int64Counter(
		"research_runs_total",
		otelmetric.WithDescription("Agent runs reaching a terminal status"),
	)
	if err != nil {
		log.Printf("research metrics init: research_runs_total: %v", err)
	}
	runRetries, err = meter.Int64Counter(
		"research_run_retries_total",
		otelmetric.WithDescription("Failed runs retried after correction"),
	)
	if err != nil {
		log.Printf("research metrics init: research_run_retries_total: %v", err)
	}
	runDuration, err = meter.Float64Histogram(
		"research_run_duration_seconds",
		otelmetric.WithDescription("Wall time from run creation to terminal status"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		log.Printf("research metrics init: research_run_duration_seconds: %v", err)
	}
}

func recordSessionStarted(ctx context.Context) {
	metricsOnce.Do(initMetrics)
	if sessionsStarted != nil {
		sessionsStarted.Add(ctx, 1)
	}
}

func recordSessionEnded(ctx context.Context, outcome Outcome) {
	metricsOnce.Do(initMetrics)
	if sessionsEnded != nil {
		sessionsEnded.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", string(outcome))))
	}
}

func recordRun(ctx context.Context, status string, seconds float64) {
	metricsOnce.Do(initMetrics)
	attrs := otelmetric.WithAttributes(attribute.String("status", status))
	if runsFinished != nil {
		runsFinished.Add(ctx, 1, attrs)
	}
	if runDuration != nil {
		runDuration.Record(ctx, seconds, attrs)
	}
}

func recordRetry(ctx context.Context) {
	metricsOnce.Do(initMetrics)
	if runRetries != nil {
		runRetries.Add(ctx, 1)
	}
}
