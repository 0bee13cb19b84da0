// Package config provides configuration management for MockView.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	TTS       TTSConfig       `mapstructure:"tts"`
	STT       STTConfig       `mapstructure:"stt"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Proctor   ProctorConfig   `mapstructure:"proctor"`
	Session   SessionConfig   `mapstructure:"session"`
	Server    ServerConfig    `mapstructure:"server"`
	Interview InterviewConfig `mapstructure:"interview"`
}

// LLMConfig configures the text generation collaborator.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// TTSConfig configures speech synthesis.
type TTSConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	VoiceID     string        `mapstructure:"voice_id"`
	ModelID     string        `mapstructure:"model_id"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// STTConfig configures streaming speech recognition.
type STTConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	Language       string `mapstructure:"language"`
	SampleRate     int    `mapstructure:"sample_rate"`
	InterimResults bool   `mapstructure:"interim_results"`
}

// AudioConfig configures voice-level sensing and silence detection.
type AudioConfig struct {
	VoiceThreshold  float64       `mapstructure:"voice_threshold"`
	NoiseThreshold  float64       `mapstructure:"noise_threshold"`
	SmoothingFrames int           `mapstructure:"smoothing_frames"`
	SilenceWindow   time.Duration `mapstructure:"silence_window"`
}

// ProctorConfig configures the compliance monitor.
type ProctorConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MinDelay     time.Duration `mapstructure:"min_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	HiddenDelay  time.Duration `mapstructure:"hidden_delay"`
	AnalyzerURL  string        `mapstructure:"analyzer_url"`
}

// SessionConfig configures the server-mediated capture registry.
type SessionConfig struct {
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	SubscribeTimeout time.Duration `mapstructure:"subscribe_timeout"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// InterviewConfig configures interview flow parameters.
type InterviewConfig struct {
	QuestionCount     int     `mapstructure:"question_count"`
	ListenCountdown   int     `mapstructure:"listen_countdown"`
	MicPassThreshold  int     `mapstructure:"mic_pass_threshold"`
	MicLevelThreshold float64 `mapstructure:"mic_level_threshold"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			Timeout:     30 * time.Second,
			MaxAttempts: 3,
		},
		TTS: TTSConfig{
			VoiceID:     "21m00Tcm4TlvDq8ikWAM",
			ModelID:     "eleven_multilingual_v2",
			Timeout:     30 * time.Second,
			MaxAttempts: 3,
		},
		STT: STTConfig{
			Model:          "nova-2",
			Language:       "en-US",
			SampleRate:     16000,
			InterimResults: true,
		},
		Audio: AudioConfig{
			VoiceThreshold:  0.012,
			NoiseThreshold:  0.8,
			SmoothingFrames: 5,
			SilenceWindow:   10 * time.Second,
		},
		Proctor: ProctorConfig{
			InitialDelay: 5 * time.Second,
			MinDelay:     3 * time.Second,
			MaxDelay:     20 * time.Second,
			HiddenDelay:  10 * time.Second,
		},
		Session: SessionConfig{
			IdleTimeout:      2 * time.Minute,
			SubscribeTimeout: 5 * time.Minute,
			SweepInterval:    30 * time.Second,
		},
		Server: ServerConfig{
			Addr: ":8085",
		},
		Interview: InterviewConfig{
			QuestionCount:     10,
			ListenCountdown:   3,
			MicPassThreshold:  20,
			MicLevelThreshold: 0.12,
		},
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".mockview")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("MOCKVIEW")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// No config file yet, persist the defaults.
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to ~/.mockview/config.yaml.
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".mockview")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return err
	}

	viper.Set("llm", cfg.LLM)
	viper.Set("tts", cfg.TTS)
	viper.Set("stt", cfg.STT)
	viper.Set("audio", cfg.Audio)
	viper.Set("proctor", cfg.Proctor)
	viper.Set("session", cfg.Session)
	viper.Set("server", cfg.Server)
	viper.Set("interview", cfg.Interview)

	return viper.WriteConfigAs(filepath.Join(configDir, "config.yaml"))
}
