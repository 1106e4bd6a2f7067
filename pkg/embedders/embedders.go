// Package embedders provides text embedding providers for the dense
// retrieval path.
package embedders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/striderhq/strider/pkg/httpclient"
)

// Embedder converts text into a dense vector.
type Embedder interface {
	// Embed embeds a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the configured embedding dimension.
	Dimension() int
}

// Config configures an OpenAI-compatible embeddings endpoint.
type Config struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.Dimension == 0 {
		c.Dimension = 1536
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("embedder: api_key is required")
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("embedder: dimension must be positive")
	}
	return nil
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	config *Config
	client *httpclient.Client
}

// NewOpenAIEmbedder creates an embedder from validated config.
func NewOpenAIEmbedder(config *Config) (*OpenAIEmbedder, error) {
	if config == nil {
		return nil, fmt.Errorf("embedders: config cannot be nil")
	}
	return &OpenAIEmbedder{
		config: config,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{
				Timeout: time.Duration(config.Timeout) * time.Second,
			}),
		),
	}, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.config.Dimension
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.config.Model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("embedder: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(e.config.BaseURL, "/")+"/embeddings",
		bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedder: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		if resp != nil {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, fmt.Errorf("embedder: API error: %s: %w", strings.TrimSpace(string(data)), err)
		}
		return nil, fmt.Errorf("embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedder: decoding response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedder: empty embedding response")
	}

	vec := parsed.Data[0].Embedding
	if e.config.Dimension > 0 && len(vec) != e.config.Dimension {
		return nil, fmt.Errorf("embedder: got %d dimensions, expected %d", len(vec), e.config.Dimension)
	}
	return vec, nil
}
