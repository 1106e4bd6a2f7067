// Package strider is a tool orchestration engine: a step-controlled
// reasoning loop over pluggable model output strategies, a concurrent tool
// executor with retries and circuit breaking, and hybrid dense/sparse
// retrieval fused with reciprocal rank fusion.
//
// # Quick Start
//
// Install Strider:
//
//	go install github.com/striderhq/strider/cmd/strider@latest
//
// Create a configuration file:
//
//	llm:
//	  model: "gpt-4o-mini"
//	  api_key: "${OPENAI_API_KEY}"
//
//	embedder:
//	  api_key: "${OPENAI_API_KEY}"
//
//	vector_store:
//	  type: "chromem"
//
//	runner:
//	  strategy: "structured"
//	  max_steps: 10
//
// Index some content and ask a question:
//
//	strider index --id doc1-c1 --source doc1 --session s1 --content "..."
//	strider ask --session s1 "what does doc1 say about retries?"
//
// # Architecture
//
// The engine is composed of independent packages:
//
//   - pkg/runner: the step loop (thinking, tool dispatch, observing) with a
//     typed event stream, step budgets, and cooperative cancellation
//   - pkg/strategies: parsing strategies that turn raw model output into tool
//     call intents or a final answer (structured JSON, ReAct, channels)
//   - pkg/executor: bounded-concurrency tool execution with per-call
//     timeouts, exponential backoff retries, and per-tool circuit breakers
//   - pkg/fusion: reciprocal rank fusion over a dense vector store and an
//     SQLite FTS5 keyword index
//   - pkg/tools: the tool registry, JSON schema generation and validation,
//     and the built-in hybrid search tool
//   - pkg/llms, pkg/embedders, pkg/databases: OpenAI-compatible providers
//     and the Qdrant/chromem vector store backends
//
// Each package is usable on its own; cmd/strider wires them into a CLI.
//
// Note: the sparse index requires the sqlite_fts5 build tag:
//
//	go build -tags sqlite_fts5 ./...
package strider
