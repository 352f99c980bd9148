// Command nova-server is the Nova chat backend: account management, JWT
// auth, conversation storage, and LLM-backed chat with SSE streaming.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/novabot/nova/internal/auth"
	"github.com/novabot/nova/internal/config"
	"github.com/novabot/nova/internal/observe"
	"github.com/novabot/nova/internal/server"
	"github.com/novabot/nova/internal/store"
	"github.com/novabot/nova/pkg/provider/llm"
	"github.com/novabot/nova/pkg/provider/llm/anyllm"
)

const defaultListenAddr = ":8000"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Secrets referenced as ${NAME} in the config file may live in a .env.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "nova-server: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "nova-server: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "nova-server"})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	st, err := openStore(ctx, cfg.Server.PostgresDSN)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		return 1
	}
	defer st.Close()

	if cfg.Server.JWTSecret == "" {
		slog.Error("server.jwt_secret is required")
		return 1
	}
	mgr, err := auth.NewManager(cfg.Server.JWTSecret)
	if err != nil {
		slog.Error("failed to create auth manager", "err", err)
		return 1
	}

	gw, err := buildGateway(cfg.Server.LLM)
	if err != nil {
		slog.Error("failed to create LLM providers", "err", err)
		return 1
	}

	srv, err := server.New(server.Config{
		Store:             st,
		Auth:              mgr,
		Gateway:           gw,
		RequestsPerMinute: cfg.Server.RateLimitPerMinute,
		AllowOrigins:      cfg.Server.AllowOrigins,
		Logger:            logger,
		Metrics:           observe.DefaultMetrics(),
	})
	if err != nil {
		slog.Error("failed to create server", "err", err)
		return 1
	}

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(addr)
	}()
	slog.Info("nova server listening", "addr", addr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", "err", err)
			return 1
		}
		return 0
	}

	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// openStore connects to PostgreSQL when a DSN is configured and falls back to
// the in-memory store otherwise.
func openStore(ctx context.Context, dsn string) (store.Store, error) {
	if dsn == "" {
		slog.Warn("server.postgres_dsn is empty; using volatile in-memory store")
		return store.NewMemory(), nil
	}
	return store.NewPostgres(ctx, dsn)
}

// buildGateway creates one provider per configured model family.
func buildGateway(cfg config.LLMConfig) (*server.Gateway, error) {
	var openaiP, geminiP llm.Provider

	if cfg.OpenAIAPIKey != "" {
		p, err := anyllm.NewOpenAI(server.DefaultModel, anyllmlib.WithAPIKey(cfg.OpenAIAPIKey))
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		openaiP = p
		slog.Info("provider created", "kind", "llm", "name", "openai")
	}
	if cfg.GeminiAPIKey != "" {
		p, err := anyllm.NewGemini("gemini-2.5-flash", anyllmlib.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		geminiP = p
		slog.Info("provider created", "kind", "llm", "name", "gemini")
	}

	return server.NewGateway(openaiP, geminiP, cfg.DefaultModel), nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
