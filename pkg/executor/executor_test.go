package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/striderhq/strider/pkg/protocol"
	"github.com/striderhq/strider/pkg/tools"
)

// fakeTool fails transiently failures times, then succeeds.
type fakeTool struct {
	name     string
	failures int32
	delay    time.Duration
	spec     tools.ToolSpec

	calls       int32
	inFlight    int32
	maxInFlight int32
}

func newFakeTool(name string, failures int) *fakeTool {
	return &fakeTool{
		name:     name,
		failures: int32(failures),
		spec: tools.ToolSpec{
			Name:       name,
			MaxRetries: -1,
		},
	}
}

func (f *fakeTool) Spec() tools.ToolSpec {
	return f.spec
}

func (f *fakeTool) Execute(ctx context.Context, args map[string]interface{}) (*tools.ToolResult, error) {
	current := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&f.maxInFlight)
		if current <= seen || atomic.CompareAndSwapInt32(&f.maxInFlight, seen, current) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	call := atomic.AddInt32(&f.calls, 1)
	if call <= atomic.LoadInt32(&f.failures) {
		return nil, NewTransient(f.name, fmt.Errorf("attempt %d flaked", call))
	}
	return &tools.ToolResult{Content: fmt.Sprintf("%s ok", f.name)}, nil
}

func fastConfig() *Config {
	cfg := &Config{
		Concurrency:    8,
		DefaultTimeout: time.Second,
		Retry: RetryConfig{
			MaxRetries:   2,
			BaseDelay:    time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			JitterFactor: 0,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 100,
			Window:           time.Minute,
			Cooldown:         time.Minute,
			CooldownFactor:   2,
		},
	}
	return cfg
}

func newTestExecutor(t *testing.T, cfg *Config, toolList ...tools.Tool) *Executor {
	t.Helper()
	registry := tools.NewRegistry()
	for _, tool := range toolList {
		require.NoError(t, registry.RegisterTool(tool))
	}
	exec, err := New(cfg, registry)
	require.NoError(t, err)
	return exec
}

func TestExecuteSuccessFirstAttempt(t *testing.T) {
	tool := newFakeTool("echo", 0)
	exec := newTestExecutor(t, fastConfig(), tool)

	obs, err := exec.Execute(context.Background(), protocol.NewToolCall("echo", nil, ""), nil)
	require.NoError(t, err)
	assert.True(t, obs.Success)
	assert.Equal(t, "echo ok", obs.Content)
	assert.Equal(t, 0, obs.Retries)
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	tool := newFakeTool("flaky", 2)
	exec := newTestExecutor(t, fastConfig(), tool)

	var events []CallEvent
	var mu sync.Mutex
	sink := func(ev CallEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}

	obs, err := exec.Execute(context.Background(), protocol.NewToolCall("flaky", nil, ""), sink)
	require.NoError(t, err)
	assert.True(t, obs.Success)
	assert.Equal(t, 2, obs.Retries)

	// a dispatch/resolution pair per attempt
	assert.Len(t, events, 6)
	assert.Equal(t, CallDispatched, events[0].Type)
	assert.Equal(t, CallResolved, events[1].Type)
	assert.False(t, events[1].Success)
	assert.True(t, events[5].Success)
}

func TestExecuteExhaustedRetriesBecomeObservation(t *testing.T) {
	tool := newFakeTool("flaky", 10)
	exec := newTestExecutor(t, fastConfig(), tool)

	obs, err := exec.Execute(context.Background(), protocol.NewToolCall("flaky", nil, ""), nil)
	require.NoError(t, err)
	assert.False(t, obs.Success)
	assert.Contains(t, obs.Content, "Tool flaky failed")
	assert.Equal(t, 2, obs.Retries)
}

func TestExecuteTimeoutIsRetriedThenObserved(t *testing.T) {
	tool := newFakeTool("slow", 0)
	tool.delay = 200 * time.Millisecond
	tool.spec.Timeout = 10 * time.Millisecond
	cfg := fastConfig()
	cfg.Retry.MaxRetries = 1
	exec := newTestExecutor(t, cfg, tool)

	obs, err := exec.Execute(context.Background(), protocol.NewToolCall("slow", nil, ""), nil)
	require.NoError(t, err)
	assert.False(t, obs.Success)
	assert.Contains(t, obs.Content, "timed out")
}

func TestExecuteUnknownToolIsFatal(t *testing.T) {
	exec := newTestExecutor(t, fastConfig(), newFakeTool("echo", 0))

	_, err := exec.Execute(context.Background(), protocol.NewToolCall("nope", nil, ""), nil)
	var unknown *tools.UnknownToolError
	require.True(t, errors.As(err, &unknown))
	assert.True(t, tools.IsFatal(err))
}

func TestExecuteSchemaViolationIsFatal(t *testing.T) {
	tool := newFakeTool("typed", 0)
	tool.spec.Parameters = map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"n": map[string]interface{}{"type": "integer"},
		},
		"required": []interface{}{"n"},
	}
	exec := newTestExecutor(t, fastConfig(), tool)

	_, err := exec.Execute(context.Background(), protocol.NewToolCall("typed", map[string]interface{}{}, ""), nil)
	var schema *tools.SchemaValidationError
	require.True(t, errors.As(err, &schema))
	assert.Equal(t, int32(0), atomic.LoadInt32(&tool.calls))
}

func TestBreakerShortCircuitsWithoutInvokingTool(t *testing.T) {
	tool := newFakeTool("broken", 1000)
	cfg := fastConfig()
	cfg.Retry.MaxRetries = 0
	cfg.Breaker.FailureThreshold = 2
	exec := newTestExecutor(t, cfg, tool)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		obs, err := exec.Execute(ctx, protocol.NewToolCall("broken", nil, ""), nil)
		require.NoError(t, err)
		assert.False(t, obs.Success)
	}
	assert.Equal(t, BreakerOpen, exec.Breakers().State("broken"))

	callsBefore := atomic.LoadInt32(&tool.calls)
	var events []CallEvent
	obs, err := exec.Execute(ctx, protocol.NewToolCall("broken", nil, ""), func(ev CallEvent) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	assert.False(t, obs.Success)
	assert.True(t, obs.ShortCircuited)
	assert.Contains(t, obs.Content, "circuit open")
	assert.Equal(t, callsBefore, atomic.LoadInt32(&tool.calls))

	// short-circuited attempts still emit their event pair
	require.Len(t, events, 2)
	assert.True(t, events[0].ShortCircuited)
	assert.True(t, events[1].ShortCircuited)
}

func TestExecuteBatchIssueOrder(t *testing.T) {
	fast := newFakeTool("fast", 0)
	slow := newFakeTool("slow", 0)
	slow.delay = 50 * time.Millisecond
	exec := newTestExecutor(t, fastConfig(), fast, slow)

	calls := []*protocol.ToolCall{
		protocol.NewToolCall("slow", nil, ""),
		protocol.NewToolCall("fast", nil, ""),
		protocol.NewToolCall("slow", nil, ""),
	}
	observations, err := exec.ExecuteBatch(context.Background(), calls, nil)
	require.NoError(t, err)
	require.Len(t, observations, 3)

	// resolution order differs, observation order matches issue order
	for i, obs := range observations {
		assert.Equal(t, calls[i].ID, obs.ToolCall.ID)
	}
}

func TestExecuteBatchHonorsConcurrencyCeiling(t *testing.T) {
	tool := newFakeTool("busy", 0)
	tool.delay = 30 * time.Millisecond
	cfg := fastConfig()
	cfg.Concurrency = 2
	exec := newTestExecutor(t, cfg, tool)

	calls := make([]*protocol.ToolCall, 5)
	for i := range calls {
		calls[i] = protocol.NewToolCall("busy", nil, "")
	}
	observations, err := exec.ExecuteBatch(context.Background(), calls, nil)
	require.NoError(t, err)
	require.Len(t, observations, 5)
	for _, obs := range observations {
		assert.True(t, obs.Success)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&tool.maxInFlight), int32(2))
}

func TestPerToolSemaphore(t *testing.T) {
	tool := newFakeTool("hot", 0)
	tool.delay = 30 * time.Millisecond
	cfg := fastConfig()
	cfg.PerTool = map[string]int64{"hot": 1}
	exec := newTestExecutor(t, cfg, tool)

	calls := []*protocol.ToolCall{
		protocol.NewToolCall("hot", nil, ""),
		protocol.NewToolCall("hot", nil, ""),
		protocol.NewToolCall("hot", nil, ""),
	}
	_, err := exec.ExecuteBatch(context.Background(), calls, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tool.maxInFlight))
}

func TestStepDeadlineProducesSyntheticTimeoutObservation(t *testing.T) {
	tool := newFakeTool("hang", 0)
	tool.delay = time.Second
	cfg := fastConfig()
	exec := newTestExecutor(t, cfg, tool)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	obs, err := exec.Execute(ctx, protocol.NewToolCall("hang", nil, ""), nil)
	require.NoError(t, err)
	assert.False(t, obs.Success)
	assert.Contains(t, obs.Content, "abandoned")
}

func TestCancellationPropagates(t *testing.T) {
	tool := newFakeTool("hang", 0)
	tool.delay = time.Second
	exec := newTestExecutor(t, fastConfig(), tool)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := exec.Execute(ctx, protocol.NewToolCall("hang", nil, ""), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
