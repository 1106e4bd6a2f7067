package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/striderhq/strider/pkg/httpclient"
	"github.com/striderhq/strider/pkg/protocol"
)

// Config configures an OpenAI-compatible chat completion provider.
type Config struct {
	Name        string  `yaml:"name"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 120
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("llm %q: api_key is required", c.Name)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("llm %q: temperature must be in [0, 2]", c.Name)
	}
	return nil
}

// OpenAIProvider speaks the OpenAI chat completions protocol, which is also
// the de facto API of most self-hosted inference servers.
type OpenAIProvider struct {
	config *Config
	client *httpclient.Client
}

// NewOpenAIProvider creates a provider from config. The config must already
// have defaults applied and be validated.
func NewOpenAIProvider(config *Config) (*OpenAIProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("llms: config cannot be nil")
	}
	return &OpenAIProvider{
		config: config,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{
				Timeout: time.Duration(config.Timeout) * time.Second,
			}),
		),
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return p.config.Name
}

// Wire types for the chat completions endpoint.

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type chatToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		Parameters  map[string]interface{} `json:"parameters"`
	} `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (p *OpenAIProvider) buildRequest(messages []*protocol.Message, tools []ToolDefinition, stream bool) *chatRequest {
	req := &chatRequest{
		Model:       p.config.Model,
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
		Stream:      stream,
	}

	for _, m := range messages {
		cm := chatMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			cm.ToolCalls = append(cm.ToolCalls, chatToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: chatFunction{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		req.Messages = append(req.Messages, cm)
	}

	for _, t := range tools {
		ct := chatTool{Type: "function"}
		ct.Function.Name = t.Name
		ct.Function.Description = t.Description
		ct.Function.Parameters = t.Parameters
		req.Tools = append(req.Tools, ct)
	}

	return req
}

func (p *OpenAIProvider) post(ctx context.Context, req *chatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, NewProviderError(p.config.Name, "marshal", "encoding request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.config.BaseURL, "/")+"/chat/completions",
		bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError(p.config.Name, "request", "building request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if resp != nil {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, NewProviderError(p.config.Name, "generate",
				fmt.Sprintf("API error: %s", strings.TrimSpace(string(data))), err)
		}
		return nil, NewProviderError(p.config.Name, "generate", "request failed", err)
	}
	return resp, nil
}

// Generate produces one complete turn.
func (p *OpenAIProvider) Generate(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition) (*Response, error) {
	resp, err := p.post(ctx, p.buildRequest(messages, tools, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, NewProviderError(p.config.Name, "generate", "decoding response", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, NewProviderError(p.config.Name, "generate", "empty choices in response", nil)
	}

	choice := parsed.Choices[0]
	out := &Response{
		Text:         choice.Message.Content,
		TokensUsed:   parsed.Usage.TotalTokens,
		FinishReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		args := make(map[string]interface{})
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, NewProviderError(p.config.Name, "generate",
					fmt.Sprintf("malformed tool call arguments for %s", tc.Function.Name), err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, &protocol.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
			RawSpan:   tc.Function.Arguments,
		})
	}
	return out, nil
}

// GenerateStreaming produces one turn as a stream of chunks over SSE.
func (p *OpenAIProvider) GenerateStreaming(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	resp, err := p.post(ctx, p.buildRequest(messages, tools, true))
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		// Tool call deltas arrive fragmented across chunks, keyed by index.
		type partialCall struct {
			id   string
			name string
			args strings.Builder
		}
		partials := make(map[int]*partialCall)

		flush := func() {
			for i := 0; i < len(partials); i++ {
				pc := partials[i]
				if pc == nil || pc.name == "" {
					continue
				}
				args := make(map[string]interface{})
				raw := pc.args.String()
				if raw != "" {
					if err := json.Unmarshal([]byte(raw), &args); err != nil {
						slog.Warn("dropping malformed streamed tool call",
							"provider", p.config.Name, "tool", pc.name, "error", err)
						continue
					}
				}
				select {
				case out <- StreamChunk{ToolCall: &protocol.ToolCall{
					ID:        pc.id,
					Name:      pc.name,
					Arguments: args,
					RawSpan:   raw,
				}}:
				case <-ctx.Done():
				}
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}

			var chunk chatStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				slog.Debug("skipping unparseable stream chunk", "provider", p.config.Name, "error", err)
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta

			if delta.Content != "" {
				select {
				case out <- StreamChunk{Text: delta.Content}:
				case <-ctx.Done():
					return
				}
			}
			for _, tc := range delta.ToolCalls {
				pc := partials[tc.Index]
				if pc == nil {
					pc = &partialCall{}
					partials[tc.Index] = pc
				}
				if tc.ID != "" {
					pc.id = tc.ID
				}
				if tc.Function.Name != "" {
					pc.name = tc.Function.Name
				}
				pc.args.WriteString(tc.Function.Arguments)
			}
		}
		flush()
	}()
	return out, nil
}
