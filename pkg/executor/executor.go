// Package executor dispatches tool call intents with bounded concurrency,
// per-call timeouts, retries, and per-tool circuit breaking. Failures of the
// observation class never escape as errors; they come back as textual
// observations for the model. Only unknown-tool and schema failures abort.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/striderhq/strider/pkg/protocol"
	"github.com/striderhq/strider/pkg/tools"
)

// Config controls the executor.
type Config struct {
	// Concurrency bounds simultaneous tool executions process-wide.
	Concurrency int64

	// PerTool optionally bounds individual tools below the global ceiling.
	PerTool map[string]int64

	// DefaultTimeout applies to tools that do not declare their own.
	DefaultTimeout time.Duration

	Retry   RetryConfig
	Breaker BreakerConfig
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = 8
	}
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	if c.Retry == (RetryConfig{}) {
		c.Retry = DefaultRetryConfig()
	}
	if c.Breaker == (BreakerConfig{}) {
		c.Breaker = DefaultBreakerConfig()
	}
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("executor: concurrency must be positive")
	}
	for tool, limit := range c.PerTool {
		if limit <= 0 {
			return fmt.Errorf("executor: per-tool limit for %s must be positive", tool)
		}
	}
	return c.Breaker.Validate()
}

// CallEventType distinguishes dispatch from resolution.
type CallEventType string

const (
	CallDispatched CallEventType = "tool_call"
	CallResolved   CallEventType = "tool_result"
)

// CallEvent is emitted on every attempt, including attempts answered by an
// open breaker without running the tool.
type CallEvent struct {
	Type           CallEventType
	ToolCall       *protocol.ToolCall
	Attempt        int
	Success        bool
	Error          string
	Latency        time.Duration
	ShortCircuited bool
}

// EventSink receives call events. May be nil.
type EventSink func(CallEvent)

// Executor runs tool call intents. One instance is shared by all concurrent
// runs so that breaker state and concurrency ceilings are process-wide.
type Executor struct {
	config   *Config
	registry *tools.Registry
	breakers *BreakerRegistry

	global *semaphore.Weighted

	mu      sync.Mutex
	perTool map[string]*semaphore.Weighted
}

// New creates an executor over a populated tool registry.
func New(config *Config, registry *tools.Registry) (*Executor, error) {
	if config == nil {
		return nil, fmt.Errorf("executor: config cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("executor: tool registry cannot be nil")
	}
	return &Executor{
		config:   config,
		registry: registry,
		breakers: NewBreakerRegistry(config.Breaker),
		global:   semaphore.NewWeighted(config.Concurrency),
		perTool:  make(map[string]*semaphore.Weighted),
	}, nil
}

// Breakers exposes the breaker registry for inspection.
func (e *Executor) Breakers() *BreakerRegistry {
	return e.breakers
}

func (e *Executor) toolSemaphore(name string) *semaphore.Weighted {
	limit, ok := e.config.PerTool[name]
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	sem, ok := e.perTool[name]
	if !ok {
		sem = semaphore.NewWeighted(limit)
		e.perTool[name] = sem
	}
	return sem
}

// Execute resolves one intent. The returned error is non-nil only for fatal
// classes (unknown tool, schema violation) and cancellation; every other
// failure is reported inside the observation.
func (e *Executor) Execute(ctx context.Context, call *protocol.ToolCall, sink EventSink) (protocol.Observation, error) {
	started := time.Now()
	obs := protocol.Observation{ToolCall: call}

	tool, err := e.registry.GetTool(call.Name)
	if err != nil {
		return obs, err
	}
	spec := tool.Spec()
	if err := tools.ValidateArgs(spec, call.Arguments); err != nil {
		return obs, err
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = e.config.DefaultTimeout
	}
	retry := e.config.Retry
	if spec.MaxRetries >= 0 {
		retry.MaxRetries = spec.MaxRetries
	}

	if err := e.global.Acquire(ctx, 1); err != nil {
		return e.resolveContextErr(obs, err)
	}
	defer e.global.Release(1)
	if sem := e.toolSemaphore(call.Name); sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return e.resolveContextErr(obs, err)
		}
		defer sem.Release(1)
	}

	var result *tools.ToolResult
	r := &retryer{config: retry}
	retries, err := r.do(ctx, func(attempt int) error {
		if allowErr := e.breakers.Allow(call.Name); allowErr != nil {
			return allowErr
		}

		emit(sink, CallEvent{Type: CallDispatched, ToolCall: call, Attempt: attempt})
		attemptStart := time.Now()

		res, attemptErr := e.runAttempt(ctx, tool, call, timeout)
		e.breakers.Record(call.Name, attemptErr == nil)

		emit(sink, CallEvent{
			Type:     CallResolved,
			ToolCall: call,
			Attempt:  attempt,
			Success:  attemptErr == nil,
			Error:    errString(attemptErr),
			Latency:  time.Since(attemptStart),
		})

		if attemptErr != nil {
			return attemptErr
		}
		result = res
		return nil
	})

	obs.Retries = retries
	obs.Latency = time.Since(started)

	if err == nil {
		obs.Success = true
		obs.Content = result.Content
		return obs, nil
	}

	// An open breaker resolves the call without running the tool; account
	// for it as its own dispatch/resolution pair.
	if open, ok := asCircuitOpen(err); ok {
		obs.ShortCircuited = true
		emit(sink, CallEvent{Type: CallDispatched, ToolCall: call, Attempt: retries, ShortCircuited: true})
		emit(sink, CallEvent{
			Type:           CallResolved,
			ToolCall:       call,
			Attempt:        retries,
			Error:          open.Error(),
			Latency:        time.Since(started),
			ShortCircuited: true,
		})
	}

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return e.resolveContextErr(obs, err)
	}

	obs.Content = fmt.Sprintf("Tool %s failed: %v", call.Name, err)
	slog.Debug("tool call failed", "tool", call.Name, "retries", retries, "error", err)
	return obs, nil
}

// resolveContextErr turns a blown step budget into a synthetic timeout
// observation for the abandoned call; cancellation stays an error so the
// controller can stop the run.
func (e *Executor) resolveContextErr(obs protocol.Observation, err error) (protocol.Observation, error) {
	if errors.Is(err, context.DeadlineExceeded) {
		obs.Content = fmt.Sprintf("Tool %s abandoned: step time budget expired before the call resolved", obs.ToolCall.Name)
		return obs, nil
	}
	return obs, err
}

// runAttempt runs a single attempt under its own deadline. The tool runs in
// a goroutine so a hung implementation cannot block resolution; its late
// result is discarded.
func (e *Executor) runAttempt(ctx context.Context, tool tools.Tool, call *protocol.ToolCall, timeout time.Duration) (*tools.ToolResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *tools.ToolResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := tool.Execute(attemptCtx, call.Arguments)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		// A tool surfacing the attempt deadline itself is still a timeout.
		if out.err != nil && ctx.Err() == nil && errors.Is(out.err, context.DeadlineExceeded) {
			return nil, &ToolTimeoutError{Tool: call.Name, Timeout: timeout}
		}
		return out.result, out.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ToolTimeoutError{Tool: call.Name, Timeout: timeout}
	}
}

// ExecuteBatch resolves a set of intents issued in one step. Calls run in
// parallel under the concurrency ceilings, but observations come back in
// issue order so the transcript is reproducible regardless of scheduling.
// The first fatal error aborts the batch result.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []*protocol.ToolCall, sink EventSink) ([]protocol.Observation, error) {
	observations := make([]protocol.Observation, len(calls))
	errs := make([]error, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call *protocol.ToolCall) {
			defer wg.Done()
			observations[i], errs[i] = e.Execute(ctx, call, sink)
		}(i, call)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return observations, err
		}
	}
	return observations, nil
}

func emit(sink EventSink, event CallEvent) {
	if sink != nil {
		sink(event)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func asCircuitOpen(err error) (*CircuitOpenError, bool) {
	var open *CircuitOpenError
	if errors.As(err, &open) {
		return open, true
	}
	return nil, false
}
