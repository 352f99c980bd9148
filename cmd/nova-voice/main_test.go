package main

import (
	"testing"

	"github.com/novabot/nova/internal/config"
)

func TestStreamConfigRecognitionFlags(t *testing.T) {
	got := streamConfig(config.STTConfig{
		SampleRate: 16000,
		Language:   "en",
	})

	if got.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", got.SampleRate)
	}
	if got.Channels != 1 {
		t.Errorf("Channels = %d, want 1", got.Channels)
	}
	if got.Language != "en" {
		t.Errorf("Language = %q, want en", got.Language)
	}
	if !got.InterimResults {
		t.Error("InterimResults must be on")
	}
	if !got.Punctuate {
		t.Error("Punctuate must be on")
	}
	if !got.SmartFormat {
		t.Error("SmartFormat must be on")
	}
	if got.EndpointingMs != 300 {
		t.Errorf("EndpointingMs = %d, want 300", got.EndpointingMs)
	}
}
