// Command nova-voice is the Nova voice assistant: it captures microphone
// audio, transcribes it with Deepgram, and answers wake-phrase commands
// through the Nova chat backend, speaking replies aloud.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gordonklaus/portaudio"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/novabot/nova/internal/assistant"
	"github.com/novabot/nova/internal/audio"
	"github.com/novabot/nova/internal/backend"
	"github.com/novabot/nova/internal/command"
	"github.com/novabot/nova/internal/config"
	"github.com/novabot/nova/internal/listen"
	"github.com/novabot/nova/internal/observe"
	"github.com/novabot/nova/internal/resilience"
	"github.com/novabot/nova/internal/speech"
	"github.com/novabot/nova/pkg/provider/stt"
	"github.com/novabot/nova/pkg/provider/stt/deepgram"
	"github.com/novabot/nova/pkg/provider/tts"
	"github.com/novabot/nova/pkg/provider/tts/espeak"
	ttsopenai "github.com/novabot/nova/pkg/provider/tts/openai"
)

const defaultBackendURL = "http://localhost:8000"

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
			fmt.Fprintf(os.Stderr, "nova-voice: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "nova-voice: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Voice.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := portaudio.Initialize(); err != nil {
		slog.Error("failed to initialise audio", "err", err)
		return 1
	}
	defer portaudio.Terminate()

	// ── Metrics ───────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "nova-voice"})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() { _ = otelShutdown(context.Background()) }()
	metrics := observe.DefaultMetrics()
	if addr := cfg.Voice.MetricsAddr; addr != "" {
		go serveMetrics(addr)
	}

	// ── Speech to text ────────────────────────────────────────────────────────
	if cfg.Voice.STT.APIKey == "" {
		slog.Error("voice.stt.api_key is required")
		return 1
	}
	var sttOpts []deepgram.Option
	if cfg.Voice.STT.Model != "" {
		sttOpts = append(sttOpts, deepgram.WithModel(cfg.Voice.STT.Model))
	}
	if cfg.Voice.STT.Language != "" {
		sttOpts = append(sttOpts, deepgram.WithLanguage(cfg.Voice.STT.Language))
	}
	if cfg.Voice.STT.SampleRate > 0 {
		sttOpts = append(sttOpts, deepgram.WithSampleRate(cfg.Voice.STT.SampleRate))
	}
	transcriber, err := deepgram.New(cfg.Voice.STT.APIKey, sttOpts...)
	if err != nil {
		slog.Error("failed to create STT provider", "err", err)
		return 1
	}

	capture := audio.NewCapture(audio.CaptureConfig{
		SampleRate: cfg.Voice.STT.SampleRate,
		Metrics:    metrics,
	})
	channel := listen.New(transcriber, capture.Frames(), listen.Config{
		Stream:  streamConfig(cfg.Voice.STT),
		Metrics: metrics,
	})

	// ── Text to speech ────────────────────────────────────────────────────────
	voice, err := buildVoice(cfg.Voice.TTS)
	if err != nil {
		slog.Error("failed to create TTS provider", "err", err)
		return 1
	}
	speaker := speech.New(voice, &audio.Player{}, speech.Config{
		Voice:   cfg.Voice.TTS.Voice,
		Speed:   cfg.Voice.TTS.Speed,
		Metrics: metrics,
	})

	// ── Backend session ───────────────────────────────────────────────────────
	baseURL := cfg.Voice.Backend.BaseURL
	if baseURL == "" {
		baseURL = defaultBackendURL
	}
	var clientOpts []backend.Option
	if cfg.Voice.Model != "" {
		clientOpts = append(clientOpts, backend.WithModel(cfg.Voice.Model))
	}
	client := backend.New(baseURL, cfg.Voice.Backend.Email, cfg.Voice.Backend.Password, clientOpts...)

	if err := client.Login(ctx); err != nil {
		slog.Error("backend login failed", "err", err)
		return 1
	}
	if _, err := client.EnsureConversation(ctx); err != nil {
		slog.Error("failed to open conversation", "err", err)
		return 1
	}
	slog.Info("backend session established", "base_url", baseURL)

	// ── Pipeline ──────────────────────────────────────────────────────────────
	if err := capture.Start(ctx); err != nil {
		slog.Error("failed to start audio capture", "err", err)
		return 1
	}
	defer capture.Stop()

	channel.Start(ctx)
	defer channel.Stop()

	speaker.Start(ctx)
	defer speaker.Stop()

	controller := assistant.New(channel.Transcripts(), command.New(), speaker, client, assistant.Config{
		WakePhrase: cfg.Voice.WakePhrase,
		Model:      cfg.Voice.Model,
	})

	if err := speaker.Speak("Voice assistant is ready."); err != nil {
		slog.Warn("startup announcement failed", "err", err)
	}

	if err := controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("assistant error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// serveMetrics exposes the Prometheus scrape endpoint for the voice pipeline.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics endpoint failed", "err", err)
	}
}

// streamConfig maps the STT config section onto the recognition stream.
// Punctuation, smart formatting, and ~300ms endpointing are always on; the
// command router matches on formatted text and the assistant relies on
// endpointing to close utterances promptly.
func streamConfig(cfg config.STTConfig) stt.StreamConfig {
	return stt.StreamConfig{
		SampleRate:     cfg.SampleRate,
		Channels:       1,
		Language:       cfg.Language,
		InterimResults: true,
		Punctuate:      true,
		SmartFormat:    true,
		EndpointingMs:  300,
	}
}

// buildVoice creates the speech synthesis chain. OpenAI serves as the primary
// engine with espeak as an offline fallback; without an API key espeak runs
// alone.
func buildVoice(cfg config.TTSConfig) (tts.Provider, error) {
	var espeakOpts []espeak.Option
	if cfg.Voice != "" {
		espeakOpts = append(espeakOpts, espeak.WithVoice(cfg.Voice))
	}

	if cfg.Provider == "espeak" || cfg.APIKey == "" {
		if cfg.Provider != "espeak" {
			slog.Warn("voice.tts.api_key is empty; falling back to espeak")
		}
		return espeak.New(espeakOpts...), nil
	}

	var opts []ttsopenai.Option
	if cfg.Voice != "" {
		opts = append(opts, ttsopenai.WithVoice(cfg.Voice))
	}
	if cfg.Speed != 0 {
		opts = append(opts, ttsopenai.WithSpeed(cfg.Speed))
	}
	primary, err := ttsopenai.New(cfg.APIKey, opts...)
	if err != nil {
		return nil, err
	}

	chain := resilience.NewTTSFallback(primary, "openai", resilience.FallbackConfig{})
	chain.AddFallback("espeak", espeak.New(espeakOpts...))
	return chain, nil
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
