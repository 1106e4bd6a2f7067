// Command strider runs tool-augmented reasoning loops over a hybrid
// retrieval index.
//
// Usage:
//
//	strider ask "what does the design doc say about retries?"
//	strider index --id doc1-c3 --source doc1 --session s1 --content "..."
//	strider search "retry policy" --session s1
//	strider validate --config strider.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/striderhq/strider"
	"github.com/striderhq/strider/pkg/config"
	"github.com/striderhq/strider/pkg/databases"
	"github.com/striderhq/strider/pkg/embedders"
	"github.com/striderhq/strider/pkg/executor"
	"github.com/striderhq/strider/pkg/fusion"
	"github.com/striderhq/strider/pkg/llms"
	"github.com/striderhq/strider/pkg/logger"
	"github.com/striderhq/strider/pkg/observability"
	"github.com/striderhq/strider/pkg/protocol"
	"github.com/striderhq/strider/pkg/runner"
	"github.com/striderhq/strider/pkg/sparse"
	"github.com/striderhq/strider/pkg/tools"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Ask      AskCmd      `cmd:"" help:"Run a question through the reasoning loop."`
	Index    IndexCmd    `cmd:"" help:"Index a chunk into both retrieval backends."`
	Search   SearchCmd   `cmd:"" help:"Run a hybrid retrieval query."`
	Validate ValidateCmd `cmd:"" help:"Validate the configuration file."`

	Config    string `short:"c" help:"Path to config file." default:"strider.yaml" type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (text or json)." default:"text"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(strider.GetVersion())
	return nil
}

// ValidateCmd loads and validates the config, reporting problems.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if _, err := config.Load(cli.Config); err != nil {
		return err
	}
	fmt.Println("configuration is valid")
	return nil
}

// stack is the assembled runtime shared by the commands.
type stack struct {
	cfg      *config.Config
	embedder embedders.Embedder
	vectors  databases.Provider
	sparseix *sparse.Index
	engine   *fusion.Engine
	registry *tools.Registry
	exec     *executor.Executor
	runner   *runner.Runner
	metrics  *observability.Metrics
}

func buildStack(cli *CLI) (*stack, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, err
	}

	logOut := os.Stderr
	if cli.LogFile != "" {
		// Held open for the life of the process.
		file, _, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			return nil, err
		}
		logOut = file
	}
	logger.Init(logger.ParseLevel(cli.LogLevel), logOut, cli.LogFormat)

	metrics, err := observability.Init(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	if cfg.Metrics.Enabled {
		go func() {
			if err := observability.Serve(cfg.Metrics); err != nil {
				slog.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	embedder, err := embedders.NewOpenAIEmbedder(&cfg.Embedder)
	if err != nil {
		return nil, err
	}

	var vectors databases.Provider
	switch cfg.VectorStore.Type {
	case "qdrant":
		vectors, err = databases.NewQdrantProvider(&cfg.VectorStore.Qdrant)
	default:
		vectors, err = databases.NewChromemProvider(&cfg.VectorStore.Chromem)
	}
	if err != nil {
		return nil, err
	}

	sparseix, err := sparse.NewIndex(&cfg.Sparse)
	if err != nil {
		return nil, err
	}

	engine, err := fusion.NewEngine(&cfg.Fusion, embedder, vectors, sparseix)
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry()
	searchTool, err := tools.NewSearchTool(engine)
	if err != nil {
		return nil, err
	}
	if err := registry.RegisterTool(searchTool); err != nil {
		return nil, err
	}

	exec, err := executor.New(cfg.Executor.Build(), registry)
	if err != nil {
		return nil, err
	}

	provider, err := llms.NewOpenAIProvider(&cfg.LLM)
	if err != nil {
		return nil, err
	}

	run, err := runner.New(cfg.Runner.Build(), provider, exec, registry, metrics)
	if err != nil {
		return nil, err
	}

	return &stack{
		cfg:      cfg,
		embedder: embedder,
		vectors:  vectors,
		sparseix: sparseix,
		engine:   engine,
		registry: registry,
		exec:     exec,
		runner:   run,
		metrics:  metrics,
	}, nil
}

func (s *stack) close() {
	if err := s.vectors.Close(); err != nil {
		slog.Warn("closing vector store", "error", err)
	}
	if err := s.sparseix.Close(); err != nil {
		slog.Warn("closing sparse index", "error", err)
	}
}

// AskCmd runs one reasoning loop and streams events to stdout.
type AskCmd struct {
	Question []string `arg:"" help:"The question to answer."`
	Session  string   `help:"Session ID scoping retrieval."`
	Strategy string   `help:"Parsing strategy (structured, react, channels)."`
	MaxSteps int      `name:"max-steps" help:"Override the step budget."`
	Verbose  bool     `short:"v" help:"Print tool call events."`
}

func (c *AskCmd) Run(cli *CLI) error {
	s, err := buildStack(cli)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	run, err := s.runner.Start(ctx, runner.Request{
		SessionID: c.Session,
		Strategy:  c.Strategy,
		MaxSteps:  c.MaxSteps,
		History: []*protocol.Message{{
			Role:    protocol.RoleUser,
			Content: strings.Join(c.Question, " "),
		}},
	})
	if err != nil {
		return err
	}

	go func() {
		<-sigCh
		slog.Info("cancelling run")
		run.Cancel()
	}()

	for event := range run.Events() {
		switch event.Type {
		case runner.EventReasoning:
			if c.Verbose {
				fmt.Print(event.Content)
			}
		case runner.EventToolCall:
			if c.Verbose {
				fmt.Printf("\n-> %s(%v)\n", event.ToolCall.Name, event.ToolCall.Arguments)
			}
		case runner.EventToolResult:
			if c.Verbose {
				fmt.Printf("<- %s ok=%v\n", event.ToolCall.Name, event.Data["success"])
			}
		case runner.EventFinalAnswer:
			fmt.Printf("\n%s\n", event.Content)
			if event.Data["truncated"] == true {
				fmt.Fprintf(os.Stderr, "(truncated: %v)\n", event.Data["reason"])
			}
		case runner.EventError:
			fmt.Fprintf(os.Stderr, "error [%v]: %s\n", event.Data["code"], event.Content)
		}
	}
	return nil
}

// IndexCmd writes one chunk into the dense and sparse backends. Real corpora
// come from the ingestion pipeline; this is for smoke tests and demos.
type IndexCmd struct {
	ID      string `required:"" help:"Globally unique chunk ID."`
	Source  string `required:"" help:"Source document ID."`
	Session string `help:"Session ID the chunk belongs to."`
	Content string `required:"" help:"Chunk text."`
}

func (c *IndexCmd) Run(cli *CLI) error {
	s, err := buildStack(cli)
	if err != nil {
		return err
	}
	defer s.close()
	ctx := context.Background()

	vector, err := s.embedder.Embed(ctx, c.Content)
	if err != nil {
		return err
	}
	err = s.vectors.Upsert(ctx, s.cfg.Fusion.Collection, c.ID, vector, map[string]interface{}{
		"content":    c.Content,
		"source_id":  c.Source,
		"session_id": c.Session,
	})
	if err != nil {
		return err
	}
	err = s.sparseix.Add(ctx, sparse.Chunk{
		ID:        c.ID,
		SourceID:  c.Source,
		SessionID: c.Session,
		Content:   c.Content,
	})
	if err != nil {
		return err
	}
	fmt.Printf("indexed chunk %s\n", c.ID)
	return nil
}

// SearchCmd runs hybrid retrieval directly, bypassing the loop.
type SearchCmd struct {
	Query   []string `arg:"" help:"Query text."`
	Session string   `help:"Session ID scoping retrieval."`
	Sources []string `help:"Source ID allowlist."`
}

func (c *SearchCmd) Run(cli *CLI) error {
	s, err := buildStack(cli)
	if err != nil {
		return err
	}
	defer s.close()

	results, err := s.engine.Search(context.Background(), strings.Join(c.Query, " "), fusion.Scope{
		SessionID: c.Session,
		SourceIDs: c.Sources,
	})
	if err != nil {
		return err
	}
	for i, r := range results {
		fmt.Printf("%2d. %s  fused=%.4f dense_rank=%d sparse_rank=%d\n    %s\n",
			i+1, r.ChunkID, r.FusedScore, r.DenseRank, r.SparseRank, firstLine(r.Content))
	}
	return nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("strider"),
		kong.Description("Tool-augmented reasoning over hybrid retrieval."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "strider: %v\n", err)
		os.Exit(1)
	}
}
