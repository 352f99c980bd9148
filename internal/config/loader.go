package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidTTSProviders lists the known speech synthesis backends. Used by
// [Validate] to warn about unrecognised provider names.
var ValidTTSProviders = []string{"openai", "espeak"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${NAME} references
// from the environment, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Voice.LogLevel != "" && !cfg.Voice.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("voice.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Voice.LogLevel))
	}
	if cfg.Server.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit_per_minute %d must not be negative", cfg.Server.RateLimitPerMinute))
	}
	if cfg.Voice.STT.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("voice.stt.sample_rate %d must not be negative", cfg.Voice.STT.SampleRate))
	}
	if s := cfg.Voice.TTS.Speed; s != 0 && (s < 0.25 || s > 4.0) {
		errs = append(errs, fmt.Errorf("voice.tts.speed %.2f is out of range [0.25, 4.0]", s))
	}

	// Availability warnings. These do not fail validation: one config file
	// may serve both binaries and only fill in the half it needs.
	if cfg.Server.JWTSecret == "" {
		slog.Warn("server.jwt_secret is empty; the server will refuse to start without it")
	}
	if cfg.Server.LLM.OpenAIAPIKey == "" && cfg.Server.LLM.GeminiAPIKey == "" {
		slog.Warn("no LLM API keys configured; chat requests will fail")
	}
	if cfg.Voice.Backend.Email == "" || cfg.Voice.Backend.Password == "" {
		slog.Warn("voice.backend credentials are incomplete; the assistant will not be able to log in")
	}
	if name := cfg.Voice.TTS.Provider; name != "" && !slices.Contains(ValidTTSProviders, name) {
		slog.Warn("unknown TTS provider — may be a typo",
			"name", name,
			"known", ValidTTSProviders,
		)
	}

	return errors.Join(errs...)
}
