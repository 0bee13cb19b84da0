// System TTS fallback using the host speech synthesizer command.
// Used when the primary synthesis backend is unreachable so the
// interview can keep speaking with local voices.
package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

// SystemProvider implements TTS via the platform synthesizer binary
// ('say' on macOS, 'espeak' elsewhere when installed).
type SystemProvider struct {
	logger zerolog.Logger
	config *SystemConfig
}

// SystemConfig holds system TTS configuration.
type SystemConfig struct {
	Voice string `json:"voice"` // platform voice name
	Rate  int    `json:"rate"`  // words per minute
}

// DefaultSystemConfig returns sensible defaults.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		Voice: "Daniel",
		Rate:  175,
	}
}

// NewSystemProvider creates a system TTS provider.
func NewSystemProvider(logger zerolog.Logger, config *SystemConfig) *SystemProvider {
	if config == nil {
		config = DefaultSystemConfig()
	}
	return &SystemProvider{
		logger: logger.With().Str("provider", "system-tts").Logger(),
		config: config,
	}
}

// Name returns the provider identifier.
func (p *SystemProvider) Name() string {
	return "system"
}

func (p *SystemProvider) binary() string {
	if runtime.GOOS == "darwin" {
		return "say"
	}
	return "espeak"
}

// IsAvailable reports whether the synthesizer binary exists on PATH.
func (p *SystemProvider) IsAvailable() bool {
	_, err := exec.LookPath(p.binary())
	return err == nil
}

// Synthesize renders text to a temporary audio file via the system
// synthesizer and returns its bytes.
func (p *SystemProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if !p.IsAvailable() {
		return nil, ErrProviderUnavailable
	}
	if req.Text == "" {
		return nil, ErrTextEmpty
	}

	startTime := time.Now()

	tmpDir, err := os.MkdirTemp("", "mockview-tts")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outPath := filepath.Join(tmpDir, "utterance.wav")

	var cmd *exec.Cmd
	if runtime.GOOS == "darwin" {
		cmd = exec.CommandContext(ctx, "say",
			"-v", p.config.Voice,
			"-r", fmt.Sprintf("%d", p.config.Rate),
			"-o", outPath,
			"--data-format=LEF32@22050",
			req.Text,
		)
	} else {
		cmd = exec.CommandContext(ctx, "espeak",
			"-s", fmt.Sprintf("%d", p.config.Rate),
			"-w", outPath,
			req.Text,
		)
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("system synthesizer: %w: %s", err, string(out))
	}

	audio, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read synthesized audio: %w", err)
	}

	p.logger.Info().Int("audioBytes", len(audio)).Dur("took", time.Since(startTime)).Msg("System synthesis complete")

	return &SynthesizeResponse{
		Audio:          audio,
		ContentType:    "audio/wav",
		SampleRate:     22050,
		ProcessingTime: time.Since(startTime),
		Provider:       p.Name(),
	}, nil
}

// Health checks if the synthesizer binary is present.
func (p *SystemProvider) Health(ctx context.Context) error {
	if !p.IsAvailable() {
		return ErrProviderUnavailable
	}
	return nil
}
