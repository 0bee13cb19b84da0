package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Audio.SilenceWindow != 10*time.Second {
		t.Errorf("Expected 10s silence window, got %v", cfg.Audio.SilenceWindow)
	}
	if cfg.Audio.NoiseThreshold != 0.8 {
		t.Errorf("Expected 0.8 noise threshold, got %v", cfg.Audio.NoiseThreshold)
	}
	if cfg.Proctor.InitialDelay != 5*time.Second {
		t.Errorf("Expected 5s initial camera delay, got %v", cfg.Proctor.InitialDelay)
	}
	if cfg.Proctor.MinDelay != 3*time.Second || cfg.Proctor.MaxDelay != 20*time.Second {
		t.Errorf("Unexpected camera delay bounds: %v..%v", cfg.Proctor.MinDelay, cfg.Proctor.MaxDelay)
	}
	if cfg.Session.SubscribeTimeout != 5*time.Minute {
		t.Errorf("Expected 5m subscribe timeout, got %v", cfg.Session.SubscribeTimeout)
	}
	if cfg.STT.Model != "nova-2" {
		t.Errorf("Unexpected STT model %q", cfg.STT.Model)
	}
	if cfg.Interview.QuestionCount != 10 {
		t.Errorf("Expected 10 questions, got %d", cfg.Interview.QuestionCount)
	}
}

func TestLoadCreatesConfigFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr == "" {
		t.Error("Expected a server address from defaults")
	}
}
