// Package runner drives the reason/act/observe loop: it streams model output
// through the selected parsing strategy, dispatches intents to the executor,
// feeds observations back in issue order, and emits a typed event stream.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/striderhq/strider/pkg/executor"
	"github.com/striderhq/strider/pkg/llms"
	"github.com/striderhq/strider/pkg/observability"
	"github.com/striderhq/strider/pkg/protocol"
	"github.com/striderhq/strider/pkg/strategies"
	"github.com/striderhq/strider/pkg/tools"
)

// Config controls the step loop.
type Config struct {
	// Strategy is the default parsing convention.
	Strategy string

	// MaxSteps is the ceiling on tool dispatch cycles per run.
	MaxSteps int

	// StepTimeout is the wall-clock budget of one dispatch batch; calls
	// still pending when it expires get synthetic timeout observations.
	StepTimeout time.Duration

	// CancelGrace is how long in-flight calls may finish after the run is
	// cancelled before their results are discarded.
	CancelGrace time.Duration

	// MaxObservationTokens bounds each observation fed back to the model.
	MaxObservationTokens int

	// TokenizerModel selects the tiktoken encoding for truncation.
	TokenizerModel string
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = "structured"
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = 10
	}
	if c.StepTimeout == 0 {
		c.StepTimeout = 60 * time.Second
	}
	if c.CancelGrace == 0 {
		c.CancelGrace = 3 * time.Second
	}
	if c.MaxObservationTokens == 0 {
		c.MaxObservationTokens = 2000
	}
	if c.TokenizerModel == "" {
		c.TokenizerModel = "gpt-4o"
	}
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.MaxSteps <= 0 {
		return fmt.Errorf("runner: max_steps must be positive")
	}
	if c.StepTimeout <= 0 {
		return fmt.Errorf("runner: step_timeout must be positive")
	}
	return nil
}

// Request starts one run.
type Request struct {
	SessionID string
	History   []*protocol.Message

	// Strategy and MaxSteps override the runner defaults when set.
	Strategy string
	MaxSteps int
}

// Run is a handle on one in-flight run: its ordered event stream and its
// cancellation switch.
type Run struct {
	events chan Event
	cancel context.CancelFunc
	state  *ConversationState
	done   chan struct{}
}

// Events returns the ordered event stream. The channel closes after the
// complete event; the consumer must drain it.
func (r *Run) Events() <-chan Event {
	return r.events
}

// Cancel requests cooperative cancellation.
func (r *Run) Cancel() {
	r.cancel()
}

// Wait blocks until the run has emitted its complete event.
func (r *Run) Wait() {
	<-r.done
}

// State returns the run's conversation state.
func (r *Run) State() *ConversationState {
	return r.state
}

// Runner executes runs. One Runner serves many concurrent runs; they share
// only the executor's breaker state and concurrency ceilings.
type Runner struct {
	config   *Config
	provider llms.Provider
	exec     *executor.Executor
	registry *tools.Registry
	metrics  *observability.Metrics
	counter  *TokenCounter
}

// New creates a Runner.
func New(config *Config, provider llms.Provider, exec *executor.Executor, registry *tools.Registry, metrics *observability.Metrics) (*Runner, error) {
	if config == nil {
		return nil, fmt.Errorf("runner: config cannot be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("runner: llm provider cannot be nil")
	}
	if exec == nil || registry == nil {
		return nil, fmt.Errorf("runner: executor and tool registry are required")
	}
	return &Runner{
		config:   config,
		provider: provider,
		exec:     exec,
		registry: registry,
		metrics:  metrics,
		counter:  NewTokenCounter(config.TokenizerModel),
	}, nil
}

// Start launches a run and returns its handle. The loop runs until a final
// answer, a fatal error, or cancellation.
func (r *Runner) Start(ctx context.Context, req Request) (*Run, error) {
	strategyName := req.Strategy
	if strategyName == "" {
		strategyName = r.config.Strategy
	}
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = r.config.MaxSteps
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	strategy, err := strategies.New(strategyName, r.registry.Specs())
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		events: make(chan Event, 64),
		cancel: cancel,
		state:  NewConversationState(sessionID, req.History),
		done:   make(chan struct{}),
	}
	go r.loop(runCtx, run, strategy, maxSteps)
	return run, nil
}

func (r *Runner) emit(run *Run, event Event) {
	event.SessionID = run.state.SessionID()
	event.Timestamp = time.Now()
	run.events <- event
}

func (r *Runner) loop(ctx context.Context, run *Run, strategy strategies.Strategy, maxSteps int) {
	started := time.Now()
	state := run.state
	var runErr error

	defer func() {
		r.metrics.RecordRun(context.Background(), time.Since(started), len(state.Steps()), runErr)
		r.emit(run, Event{Type: EventComplete, Data: map[string]interface{}{
			"status": string(state.Status()),
		}})
		close(run.events)
		close(run.done)
	}()

	specs := r.registry.Specs()
	if len(specs) > 0 {
		state.AppendMessage(&protocol.Message{
			Role:    protocol.RoleSystem,
			Content: strategy.FormatToolPrompt(specs),
		})
	}
	var defs []llms.ToolDefinition
	if strategy.NativeToolCalls() {
		defs = toolDefinitions(specs)
	}

	r.emit(run, Event{Type: EventStatus, Content: "running", Data: map[string]interface{}{
		"strategy": strategy.Name(),
	}})

	dispatches := 0
	for step := 1; ; step++ {
		if ctx.Err() != nil {
			runErr = r.finishCancelled(run, "thinking")
			return
		}

		// THINKING
		r.emit(run, Event{Type: EventStatus, Step: step, Content: "thinking"})
		raw, nativeCalls, err := r.think(ctx, run, step, defs)
		if err != nil {
			if ctx.Err() != nil {
				runErr = r.finishCancelled(run, "thinking")
				return
			}
			runErr = r.finishError(run, step, CodeProviderError, err)
			return
		}

		result, err := r.interpret(strategy, raw, nativeCalls)
		if err != nil {
			var pe *strategies.ParseError
			if errors.As(err, &pe) {
				// Soft fallback: the turn could not be decoded, so the
				// prose itself becomes the answer.
				slog.Warn("parse failed, falling back to final answer",
					"session", state.SessionID(), "step", step, "error", pe)
				r.finalize(run, step, strings.TrimSpace(raw), map[string]interface{}{
					"parse_fallback": true,
				})
				return
			}
			runErr = r.finishError(run, step, fatalCode(err), err)
			return
		}

		if result.Final != nil {
			state.AppendMessage(&protocol.Message{
				Role:    protocol.RoleAssistant,
				Content: result.Final.Content,
			})
			r.finalize(run, step, result.Final.Content, nil)
			return
		}

		// Step budget gates dispatch cycles, not thinking: when the model
		// still wants tools past the ceiling, the run is forced final with
		// the best partial content available.
		if dispatches >= maxSteps {
			budget := &StepBudgetExceededError{Limit: maxSteps}
			slog.Info("step budget exhausted, forcing final answer",
				"session", state.SessionID(), "step", step, "limit", maxSteps)
			content := strings.TrimSpace(result.Reasoning)
			if content == "" {
				content = strings.TrimSpace(raw)
			}
			state.AppendMessage(&protocol.Message{Role: protocol.RoleAssistant, Content: content})
			r.finalize(run, step, content, map[string]interface{}{
				"truncated": true,
				"reason":    budget.Error(),
			})
			return
		}

		// TOOL_DISPATCH
		record := StepRecord{
			Index:     step,
			Reasoning: result.Reasoning,
			Intents:   result.ToolCalls,
			StartedAt: time.Now(),
		}
		r.emit(run, Event{Type: EventStatus, Step: step, Content: "dispatching_tools",
			Data: map[string]interface{}{"count": len(result.ToolCalls)}})

		observations, execErr := r.dispatch(ctx, run, step, result.ToolCalls)
		dispatches++

		if execErr != nil {
			if ctx.Err() != nil {
				runErr = r.finishCancelled(run, "tool_dispatch")
				return
			}
			runErr = r.finishError(run, step, fatalCode(execErr), execErr)
			return
		}

		// OBSERVING: feed results back in issue order.
		state.AppendMessage(&protocol.Message{
			Role:      protocol.RoleAssistant,
			Content:   raw,
			ToolCalls: result.ToolCalls,
		})
		for i := range observations {
			r.truncateObservation(&observations[i])
			state.AppendMessage(&protocol.Message{
				Role:       protocol.RoleTool,
				Content:    strategy.FormatObservation(observations[i]),
				ToolCallID: observations[i].ToolCall.ID,
				Name:       observations[i].ToolCall.Name,
			})
		}

		record.Observations = observations
		record.CompletedAt = time.Now()
		state.AppendStep(record)
	}
}

// think streams one model turn, emitting incremental reasoning events, and
// returns the accumulated text plus any native tool calls.
func (r *Runner) think(ctx context.Context, run *Run, step int, defs []llms.ToolDefinition) (string, []*protocol.ToolCall, error) {
	turnStart := time.Now()
	stream, err := r.provider.GenerateStreaming(ctx, run.state.Messages(), defs)
	if err != nil {
		r.metrics.RecordLLMCall(ctx, r.provider.Name(), time.Since(turnStart), 0, err)
		return "", nil, err
	}

	var text strings.Builder
	var nativeCalls []*protocol.ToolCall
	for chunk := range stream {
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			r.emit(run, Event{Type: EventReasoning, Step: step, Content: chunk.Text})
		}
		if chunk.ToolCall != nil {
			nativeCalls = append(nativeCalls, chunk.ToolCall)
		}
	}
	r.metrics.RecordLLMCall(ctx, r.provider.Name(), time.Since(turnStart), r.counter.Count(text.String()), nil)

	if ctx.Err() != nil {
		return text.String(), nativeCalls, ctx.Err()
	}
	return text.String(), nativeCalls, nil
}

// interpret resolves the turn into intents or a final answer, preferring the
// provider's native tool call channel when it produced anything.
func (r *Runner) interpret(strategy strategies.Strategy, raw string, nativeCalls []*protocol.ToolCall) (*strategies.ParseResult, error) {
	if len(nativeCalls) > 0 {
		for _, call := range nativeCalls {
			if _, err := r.registry.GetTool(call.Name); err != nil {
				return nil, err
			}
		}
		return &strategies.ParseResult{Reasoning: raw, ToolCalls: nativeCalls}, nil
	}
	return strategy.Parse(raw)
}

// dispatch runs one batch under the step's wall-clock budget. Cancellation
// is cooperative: after the run context trips, in-flight calls get
// CancelGrace to resolve before the batch context is cut.
func (r *Runner) dispatch(ctx context.Context, run *Run, step int, calls []*protocol.ToolCall) ([]protocol.Observation, error) {
	stepCtx, stepCancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.StepTimeout)
	defer stepCancel()

	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go func() {
		select {
		case <-ctx.Done():
			timer := time.NewTimer(r.config.CancelGrace)
			defer timer.Stop()
			select {
			case <-timer.C:
				stepCancel()
			case <-watchdogDone:
			}
		case <-watchdogDone:
		}
	}()

	sink := func(ev executor.CallEvent) {
		switch ev.Type {
		case executor.CallDispatched:
			r.emit(run, Event{Type: EventToolCall, Step: step, ToolCall: ev.ToolCall,
				Data: map[string]interface{}{
					"attempt":         ev.Attempt,
					"short_circuited": ev.ShortCircuited,
				}})
		case executor.CallResolved:
			r.metrics.RecordToolExecution(stepCtx, ev.ToolCall.Name, ev.Latency, ev.Success, ev.ShortCircuited)
			data := map[string]interface{}{
				"attempt":         ev.Attempt,
				"success":         ev.Success,
				"latency_ms":      ev.Latency.Milliseconds(),
				"short_circuited": ev.ShortCircuited,
			}
			if ev.Error != "" {
				data["error"] = ev.Error
			}
			r.emit(run, Event{Type: EventToolResult, Step: step, ToolCall: ev.ToolCall, Data: data})
		}
	}

	return r.exec.ExecuteBatch(stepCtx, calls, sink)
}

func (r *Runner) truncateObservation(obs *protocol.Observation) {
	truncated, cut := r.counter.Truncate(obs.Content, r.config.MaxObservationTokens)
	if cut {
		obs.Content = truncated + "\n[observation truncated]"
	}
}

func (r *Runner) finalize(run *Run, step int, content string, data map[string]interface{}) {
	run.state.SetStatus(StatusFinal)
	if content != "" {
		r.emit(run, Event{Type: EventContent, Step: step, Content: content})
	}
	r.emit(run, Event{Type: EventFinalAnswer, Step: step, Content: content, Data: data})
}

func (r *Runner) finishError(run *Run, step int, code string, err error) error {
	run.state.SetStatus(StatusError)
	slog.Error("run failed", "session", run.state.SessionID(), "step", step, "code", code, "error", err)
	r.emit(run, Event{Type: EventError, Step: step, Content: err.Error(),
		Data: map[string]interface{}{"code": code}})
	return err
}

func (r *Runner) finishCancelled(run *Run, stage string) error {
	run.state.SetStatus(StatusCancelled)
	err := &CancellationError{Stage: stage}
	r.emit(run, Event{Type: EventStatus, Content: "cancelled",
		Data: map[string]interface{}{"code": CodeCancelled, "stage": stage}})
	return err
}

func fatalCode(err error) string {
	var unknown *tools.UnknownToolError
	if errors.As(err, &unknown) {
		return CodeUnknownTool
	}
	var schema *tools.SchemaValidationError
	if errors.As(err, &schema) {
		return CodeSchemaValidation
	}
	return CodeInternal
}

func toolDefinitions(specs []tools.ToolSpec) []llms.ToolDefinition {
	defs := make([]llms.ToolDefinition, 0, len(specs))
	for _, spec := range specs {
		defs = append(defs, llms.ToolDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.Parameters,
		})
	}
	return defs
}
