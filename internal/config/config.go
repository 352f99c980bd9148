// Package config provides the YAML configuration schema and loader shared by
// the Nova server and voice assistant binaries.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader]. Values of the form ${NAME} are
// expanded from the environment, so secrets can stay out of the file itself.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Voice  VoiceConfig  `yaml:"voice"`
}

// ServerConfig holds settings for the nova-server backend.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// PostgresDSN is the PostgreSQL connection string. When empty the server
	// falls back to a volatile in-memory store.
	PostgresDSN string `yaml:"postgres_dsn"`

	// JWTSecret signs access and refresh tokens. Required to run the server.
	JWTSecret string `yaml:"jwt_secret"`

	// AllowOrigins lists CORS origins. Empty allows any origin.
	AllowOrigins []string `yaml:"allow_origins"`

	// RateLimitPerMinute caps chat sends per user per minute. Zero uses the
	// server default.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`

	LLM LLMConfig `yaml:"llm"`
}

// LLMConfig holds credentials and defaults for the chat model providers.
type LLMConfig struct {
	OpenAIAPIKey string `yaml:"openai_api_key"`
	GeminiAPIKey string `yaml:"gemini_api_key"`

	// DefaultModel is used when a request names no model (e.g., "gpt-4o-mini").
	DefaultModel string `yaml:"default_model"`
}

// VoiceConfig holds settings for the nova-voice assistant.
type VoiceConfig struct {
	// WakePhrase activates the assistant when heard (default "hey nova").
	WakePhrase string `yaml:"wake_phrase"`

	// Model is the chat model the assistant starts with.
	Model string `yaml:"model"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr, when set (e.g., ":9091"), serves Prometheus metrics for
	// the voice pipeline on that address.
	MetricsAddr string `yaml:"metrics_addr"`

	Backend BackendConfig `yaml:"backend"`
	STT     STTConfig     `yaml:"stt"`
	TTS     TTSConfig     `yaml:"tts"`
}

// BackendConfig tells the voice assistant how to reach and authenticate
// against the Nova chat backend.
type BackendConfig struct {
	// BaseURL is the backend root (e.g., "http://localhost:8000").
	BaseURL string `yaml:"base_url"`

	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// STTConfig configures the Deepgram speech-to-text stream.
type STTConfig struct {
	APIKey string `yaml:"api_key"`

	// Model selects the Deepgram model (e.g., "nova-2").
	Model string `yaml:"model"`

	// Language is a BCP-47 tag such as "en-US".
	Language string `yaml:"language"`

	// SampleRate is the capture rate in Hz. Zero uses the audio default.
	SampleRate int `yaml:"sample_rate"`
}

// TTSConfig configures speech synthesis.
type TTSConfig struct {
	// Provider selects the synthesis backend: "openai" or "espeak".
	Provider string `yaml:"provider"`

	APIKey string `yaml:"api_key"`

	// Voice is the provider-specific voice name.
	Voice string `yaml:"voice"`

	// Speed adjusts speaking rate in the range [0.25, 4.0]. 0 means default.
	Speed float64 `yaml:"speed"`
}
