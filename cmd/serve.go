package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/badreddinehallia/veille/internal/api"
	"github.com/badreddinehallia/veille/internal/client"
	"github.com/badreddinehallia/veille/internal/config"
	"github.com/badreddinehallia/veille/internal/conversation"
	"github.com/badreddinehallia/veille/internal/llm"
	"github.com/badreddinehallia/veille/internal/log"
	"github.com/badreddinehallia/veille/internal/postgres"
	"github.com/badreddinehallia/veille/internal/rag"
	"github.com/badreddinehallia/veille/internal/rapport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides configuration)")
	serveCmd.Flags().Bool("debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	debug, _ := cmd.Flags().GetBool("debug")
	logger := log.New(log.Config{Level: logLevel(debug), JSON: true})

	addr := cfg.HTTPAddr
	if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
		addr = flagAddr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting veille", "version", AppVersion, "config", cfg)

	pool, err := postgres.NewPool(ctx, cfg.PostgresURL())
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	defer pool.Close()

	model := llm.NewClient(llm.Config{
		APIKey:         cfg.OpenAIAPIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		ChatModel:      cfg.ChatModel,
		EmbeddingModel: cfg.EmbeddingModel,
		RatePerSecond:  cfg.LLMRatePerSecond,
	}, logger)

	clients := client.New(pool, logger)
	conversations := conversation.New(pool, logger)
	chunks := rapport.New(pool, logger)

	pipeline := rag.New(model, model, clients, conversations, chunks, rag.Options{
		MatchThreshold: cfg.MatchThreshold,
		MatchCount:     int32(cfg.MatchCount),
		MaxSources:     cfg.MaxSources,
		HistoryLimit:   int32(cfg.HistoryLimit),
		ModelName:      cfg.ChatModel,
	}, logger)

	server, err := api.NewServer(api.ServerConfig{
		Pipeline:      pipeline,
		Conversations: conversations,
		DB:            pool,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	return server.Run(ctx, addr)
}

func logLevel(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
