// Command searchagentd serves the retrieval agent over a websocket
// gateway.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/seekerworks/searchagent/action"
	"github.com/seekerworks/searchagent/config"
	"github.com/seekerworks/searchagent/decision"
	"github.com/seekerworks/searchagent/engine"
	"github.com/seekerworks/searchagent/ingest"
	"github.com/seekerworks/searchagent/llm"
	"github.com/seekerworks/searchagent/memory"
	embcache "github.com/seekerworks/searchagent/memory/embedder/cache"
	embmock "github.com/seekerworks/searchagent/memory/embedder/mock"
	embopenai "github.com/seekerworks/searchagent/memory/embedder/openai"
	"github.com/seekerworks/searchagent/memory/store/chromem"
	"github.com/seekerworks/searchagent/memory/store/flat"
	"github.com/seekerworks/searchagent/perception"
	"github.com/seekerworks/searchagent/server"
	"github.com/seekerworks/searchagent/tools"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "searchagentd",
		Short:         "Conversational retrieval agent daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the websocket gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	root.AddCommand(serve)
	return root
}

func run(ctx context.Context, cfg config.Config) error {
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mem, err := buildMemory(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer mem.Close()

	client, err := buildLLM(cfg.LLM)
	if err != nil {
		return err
	}

	ingester, err := ingest.New(ingest.Config{
		Dir:          cfg.Ingest.Dir,
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
		Logger:       log,
	}, mem)
	if err != nil {
		return err
	}
	if indexed, skipped, err := ingester.Run(ctx); err != nil {
		log.Error().Err(err).Msg("startup ingest failed")
	} else if indexed > 0 || skipped > 0 {
		log.Info().Int("indexed", indexed).Int("skipped", skipped).Msg("startup ingest done")
	}
	if cfg.Ingest.Watch {
		go func() {
			if err := ingester.Watch(ctx); err != nil {
				log.Error().Err(err).Msg("document watcher stopped")
			}
		}()
	}

	registry := action.NewRegistry()
	httpClient := &http.Client{Timeout: 30 * time.Second}
	toolSet := append(tools.MathTools(),
		tools.WebSearchTool(httpClient),
		tools.FetchURLTool(httpClient, ingester),
		tools.OpenURLTool(),
		tools.SearchDocumentsTool(mem),
		tools.ProcessDocumentsTool(ingester),
	)
	if err := registry.Register(toolSet...); err != nil {
		return err
	}

	eng := engine.New(
		perception.New(client, log),
		mem,
		decision.New(client, log),
		action.NewExecutor(registry, log),
		registry,
		engine.Config{
			MaxIterations:   cfg.Agent.MaxIterations,
			DecisionRetries: cfg.Agent.DecisionRetries,
			HistoryWindow:   cfg.Agent.HistoryWindow,
			RetrieveK:       cfg.Agent.RetrieveK,
			CheckpointEvery: cfg.Agent.CheckpointEvery,
		},
		log,
	)

	srv := server.New(server.Config{Addr: cfg.Server.Addr}, eng, mem, log)
	return srv.Run(ctx)
}

func newLogger(cfg config.LoggingConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	var out = os.Stderr
	logger := zerolog.New(out)
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out})
	}
	return logger.Level(level).With().Timestamp().Logger(), nil
}

func buildLLM(cfg config.LLMConfig) (llm.Client, error) {
	switch cfg.Provider {
	case "openai":
		return llm.NewOpenAI(llm.OpenAIConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
		}), nil
	case "anthropic":
		model := cfg.Model
		if model == "" || model == "gpt-4o-mini" {
			model = "claude-sonnet-4-5"
		}
		return llm.NewAnthropic(llm.AnthropicConfig{
			APIKey: cfg.APIKey,
			Model:  model,
		}), nil
	case "mock":
		return llm.Static{Reply: "FINAL_ANSWER: mock provider is configured; no model is available."}, nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

func buildMemory(ctx context.Context, cfg config.Config, log zerolog.Logger) (*memory.Manager, error) {
	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	var store memory.Store
	switch cfg.Memory.Backend {
	case "flat":
		store, err = flat.New(flat.Config{
			Dir:        cfg.Memory.Dir,
			Dimensions: cfg.Memory.Dimensions,
			Metric:     flat.Metric(cfg.Memory.Metric),
			Logger:     log,
		})
	case "chromem":
		store, err = chromem.New(chromem.Config{
			Dir:    cfg.Memory.Dir,
			Logger: log,
		})
	default:
		err = fmt.Errorf("unknown memory backend %q", cfg.Memory.Backend)
	}
	if err != nil {
		return nil, err
	}

	var opts []memory.ManagerOption
	if cfg.Memory.SaveOnAdd {
		opts = append(opts, memory.WithSaveOnAdd())
	}
	mem := memory.NewManager(store, embedder, log, opts...)

	// A corrupt index is fatal at startup; a missing one is just an
	// empty store.
	if err := mem.Load(ctx); err != nil {
		return nil, fmt.Errorf("load memory store: %w", err)
	}
	log.Info().Int("items", mem.Count()).Str("backend", cfg.Memory.Backend).Msg("memory store ready")
	return mem, nil
}

func buildEmbedder(cfg config.Config) (memory.Embedder, error) {
	var inner memory.Embedder
	switch cfg.Memory.Embedder {
	case "openai":
		baseURL := cfg.Memory.EmbeddingBaseURL
		if baseURL == "" {
			baseURL = cfg.LLM.BaseURL
		}
		inner = embopenai.New(embopenai.Config{
			BaseURL:    baseURL,
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.Memory.EmbeddingModel,
			Dimensions: cfg.Memory.Dimensions,
		})
	case "mock":
		inner = embmock.New(cfg.Memory.Dimensions)
	case "onnx":
		embedder, err := newONNXEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		inner = embedder
	default:
		return nil, fmt.Errorf("unknown embedder %q", cfg.Memory.Embedder)
	}

	cached, err := embcache.New(inner, cfg.Memory.CacheBytes)
	if err != nil {
		return nil, err
	}
	return cached, nil
}
