package llms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/striderhq/strider/pkg/protocol"
)

func testProvider(t *testing.T, baseURL string) *OpenAIProvider {
	t.Helper()
	cfg := &Config{BaseURL: baseURL, APIKey: "test-key"}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	provider, err := NewOpenAIProvider(cfg)
	require.NoError(t, err)
	return provider
}

func TestGenerate(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		fmt.Fprint(w, `{
			"choices": [{"message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
			"usage": {"total_tokens": 17}
		}`)
	}))
	defer server.Close()

	provider := testProvider(t, server.URL)
	resp, err := provider.Generate(context.Background(), []*protocol.Message{
		{Role: protocol.RoleUser, Content: "hi"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, 17, resp.TokensUsed)
	assert.Equal(t, "stop", resp.FinishReason)

	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
	assert.False(t, captured.Stream)
}

func TestGenerateDecodesToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"choices": [{"message": {"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function",
					"function": {"name": "search", "arguments": "{\"query\": \"gophers\"}"}}]},
				"finish_reason": "tool_calls"}]
		}`)
	}))
	defer server.Close()

	provider := testProvider(t, server.URL)
	resp, err := provider.Generate(context.Background(), []*protocol.Message{
		{Role: protocol.RoleUser, Content: "hi"},
	}, nil)
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "search", resp.ToolCalls[0].Name)
	assert.Equal(t, map[string]interface{}{"query": "gophers"}, resp.ToolCalls[0].Arguments)
}

func TestGenerateSendsToolDefinitionsAndHistory(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		fmt.Fprint(w, `{"choices": [{"message": {"role": "assistant", "content": "ok"}}]}`)
	}))
	defer server.Close()

	provider := testProvider(t, server.URL)
	messages := []*protocol.Message{
		{Role: protocol.RoleAssistant, ToolCalls: []*protocol.ToolCall{
			{ID: "call_1", Name: "search", Arguments: map[string]interface{}{"query": "x"}},
		}},
		{Role: protocol.RoleTool, Content: "result text", ToolCallID: "call_1", Name: "search"},
	}
	defs := []ToolDefinition{{Name: "search", Description: "find things",
		Parameters: map[string]interface{}{"type": "object"}}}

	_, err := provider.Generate(context.Background(), messages, defs)
	require.NoError(t, err)

	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "search", captured.Tools[0].Function.Name)

	require.Len(t, captured.Messages, 2)
	require.Len(t, captured.Messages[0].ToolCalls, 1)
	assert.JSONEq(t, `{"query": "x"}`, captured.Messages[0].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "call_1", captured.Messages[1].ToolCallID)
}

func TestGenerateEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": []}`)
	}))
	defer server.Close()

	provider := testProvider(t, server.URL)
	_, err := provider.Generate(context.Background(), []*protocol.Message{
		{Role: protocol.RoleUser, Content: "hi"},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty choices")
}

func sseBody(events ...string) string {
	var out string
	for _, e := range events {
		out += "data: " + e + "\n\n"
	}
	return out + "data: [DONE]\n\n"
}

func TestGenerateStreamingText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody(
			`{"choices": [{"delta": {"content": "hel"}}]}`,
			`{"choices": [{"delta": {"content": "lo"}}]}`,
		))
	}))
	defer server.Close()

	provider := testProvider(t, server.URL)
	stream, err := provider.GenerateStreaming(context.Background(), []*protocol.Message{
		{Role: protocol.RoleUser, Content: "hi"},
	}, nil)
	require.NoError(t, err)

	var text string
	for chunk := range stream {
		text += chunk.Text
	}
	assert.Equal(t, "hello", text)
}

func TestGenerateStreamingAssemblesFragmentedToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody(
			`{"choices": [{"delta": {"tool_calls": [{"index": 0, "id": "call_1", "function": {"name": "search", "arguments": "{\"que"}}]}}]}`,
			`{"choices": [{"delta": {"tool_calls": [{"index": 0, "function": {"arguments": "ry\": \"go\"}"}}]}}]}`,
		))
	}))
	defer server.Close()

	provider := testProvider(t, server.URL)
	stream, err := provider.GenerateStreaming(context.Background(), []*protocol.Message{
		{Role: protocol.RoleUser, Content: "hi"},
	}, nil)
	require.NoError(t, err)

	var calls []*protocol.ToolCall
	for chunk := range stream {
		if chunk.ToolCall != nil {
			calls = append(calls, chunk.ToolCall)
		}
	}
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "search", calls[0].Name)
	assert.Equal(t, map[string]interface{}{"query": "go"}, calls[0].Arguments)
}

func TestGenerateStreamingDropsMalformedToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody(
			`{"choices": [{"delta": {"tool_calls": [{"index": 0, "id": "call_1", "function": {"name": "search", "arguments": "{not json"}}]}}]}`,
			`{"choices": [{"delta": {"content": "prose instead"}}]}`,
		))
	}))
	defer server.Close()

	provider := testProvider(t, server.URL)
	stream, err := provider.GenerateStreaming(context.Background(), []*protocol.Message{
		{Role: protocol.RoleUser, Content: "hi"},
	}, nil)
	require.NoError(t, err)

	var text string
	var calls int
	for chunk := range stream {
		text += chunk.Text
		if chunk.ToolCall != nil {
			calls++
		}
	}
	assert.Equal(t, "prose instead", text)
	assert.Equal(t, 0, calls)
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	assert.Error(t, cfg.Validate())

	cfg.APIKey = "k"
	assert.NoError(t, cfg.Validate())

	cfg.Temperature = 3
	assert.Error(t, cfg.Validate())
}
