// Package observability exposes run, tool, and model call metrics through
// OpenTelemetry with a Prometheus exporter.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Config configures the metrics endpoint.
type Config struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Port == 0 {
		c.Port = 9090
	}
}

// Metrics records run, tool, and LLM measurements. The zero value (or a nil
// pointer) records nothing, so callers never branch on whether metrics are
// enabled.
type Metrics struct {
	runDuration   metric.Float64Histogram
	runsTotal     metric.Int64Counter
	runErrors     metric.Int64Counter
	runSteps      metric.Int64Counter
	toolDuration  metric.Float64Histogram
	toolCalls     metric.Int64Counter
	toolErrors    metric.Int64Counter
	breakerOpens  metric.Int64Counter
	llmDuration   metric.Float64Histogram
	llmTokensUsed metric.Int64Counter
	llmErrors     metric.Int64Counter
}

// Init builds the Prometheus-backed meter and instruments. When disabled it
// returns an inert Metrics.
func Init(cfg Config) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("observability: creating prometheus exporter: %w", err)
	}
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)).Meter("strider")

	m := &Metrics{}
	for _, inst := range []struct {
		hist *metric.Float64Histogram
		name string
		desc string
	}{
		{&m.runDuration, "strider_run_duration_seconds", "Run duration in seconds"},
		{&m.toolDuration, "strider_tool_execution_duration_seconds", "Tool execution duration in seconds"},
		{&m.llmDuration, "strider_llm_request_duration_seconds", "LLM request duration in seconds"},
	} {
		*inst.hist, err = meter.Float64Histogram(inst.name, metric.WithDescription(inst.desc))
		if err != nil {
			return nil, fmt.Errorf("observability: creating %s: %w", inst.name, err)
		}
	}
	for _, inst := range []struct {
		counter *metric.Int64Counter
		name    string
		desc    string
	}{
		{&m.runsTotal, "strider_runs_total", "Total runs started"},
		{&m.runErrors, "strider_run_errors_total", "Total runs ending in error"},
		{&m.runSteps, "strider_run_steps_total", "Total reasoning steps executed"},
		{&m.toolCalls, "strider_tool_calls_total", "Total tool call attempts"},
		{&m.toolErrors, "strider_tool_errors_total", "Total failed tool call attempts"},
		{&m.breakerOpens, "strider_breaker_short_circuits_total", "Total calls answered by an open circuit breaker"},
		{&m.llmTokensUsed, "strider_llm_tokens_used_total", "Total tokens reported by the model provider"},
		{&m.llmErrors, "strider_llm_errors_total", "Total failed model requests"},
	} {
		*inst.counter, err = meter.Int64Counter(inst.name, metric.WithDescription(inst.desc))
		if err != nil {
			return nil, fmt.Errorf("observability: creating %s: %w", inst.name, err)
		}
	}
	return m, nil
}

// Serve exposes /metrics on the configured port. Blocks; run in a goroutine.
func Serve(cfg Config) error {
	if !cfg.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", cfg.Port), mux)
}

// RecordRun records one completed run.
func (m *Metrics) RecordRun(ctx context.Context, duration time.Duration, steps int, err error) {
	if m == nil || m.runsTotal == nil {
		return
	}
	m.runDuration.Record(ctx, duration.Seconds())
	m.runsTotal.Add(ctx, 1)
	m.runSteps.Add(ctx, int64(steps))
	if err != nil {
		m.runErrors.Add(ctx, 1)
	}
}

// RecordToolExecution records one tool call attempt.
func (m *Metrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, success, shortCircuited bool) {
	if m == nil || m.toolCalls == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	m.toolCalls.Add(ctx, 1, attrs)
	if !success {
		m.toolErrors.Add(ctx, 1, attrs)
	}
	if shortCircuited {
		m.breakerOpens.Add(ctx, 1, attrs)
	}
}

// RecordLLMCall records one model request.
func (m *Metrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, tokens int, err error) {
	if m == nil || m.llmDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	if tokens > 0 {
		m.llmTokensUsed.Add(ctx, int64(tokens), attrs)
	}
	if err != nil {
		m.llmErrors.Add(ctx, 1, attrs)
	}
}
