package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io/v1/text-to-speech"

// ElevenLabsProvider implements TTS using the ElevenLabs HTTP API.
type ElevenLabsProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
	config  *ElevenLabsConfig
}

// ElevenLabsConfig holds ElevenLabs TTS configuration.
type ElevenLabsConfig struct {
	APIKey  string        `json:"api_key"`
	VoiceID string        `json:"voice_id"`
	ModelID string        `json:"model_id"`
	Timeout time.Duration `json:"timeout"`
}

// DefaultElevenLabsConfig returns sensible defaults.
func DefaultElevenLabsConfig() *ElevenLabsConfig {
	return &ElevenLabsConfig{
		VoiceID: "21m00Tcm4TlvDq8ikWAM", // Rachel
		ModelID: "eleven_multilingual_v2",
		Timeout: 30 * time.Second,
	}
}

// NewElevenLabsProvider creates a new ElevenLabs TTS provider.
func NewElevenLabsProvider(logger zerolog.Logger, config *ElevenLabsConfig) *ElevenLabsProvider {
	if config == nil {
		config = DefaultElevenLabsConfig()
	}

	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ELEVENLABS_API_KEY")
	}

	return &ElevenLabsProvider{
		apiKey:  apiKey,
		baseURL: elevenLabsBaseURL,
		client:  &http.Client{Timeout: config.Timeout},
		logger:  logger.With().Str("provider", "elevenlabs").Logger(),
		config:  config,
	}
}

// Name returns the provider identifier.
func (p *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

// SetBaseURL overrides the API endpoint, used by tests.
func (p *ElevenLabsProvider) SetBaseURL(url string) {
	p.baseURL = url
}

type elevenLabsRequest struct {
	Text          string             `json:"text"`
	ModelID       string             `json:"model_id"`
	VoiceSettings map[string]float64 `json:"voice_settings,omitempty"`
}

// Synthesize converts text to audio bytes.
func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if p.apiKey == "" {
		return nil, ErrProviderUnavailable
	}
	if req.Text == "" {
		return nil, ErrTextEmpty
	}

	startTime := time.Now()

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = p.config.VoiceID
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:    req.Text,
		ModelID: p.config.ModelID,
		VoiceSettings: map[string]float64{
			"stability":        0.75,
			"similarity_boost": 0.7,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", p.baseURL, voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	p.logger.Debug().Str("voice", voiceID).Int("textLen", len(req.Text)).Msg("Sending TTS request")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// The backend returns a human-readable message; surface it verbatim.
		errBody, _ := io.ReadAll(resp.Body)
		p.logger.Error().Int("status", resp.StatusCode).Str("body", string(errBody)).Msg("TTS request failed")
		return nil, fmt.Errorf("synthesis failed with status %d: %s", resp.StatusCode, string(errBody))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	p.logger.Info().Int("audioBytes", len(audio)).Dur("took", time.Since(startTime)).Msg("Synthesis complete")

	return &SynthesizeResponse{
		Audio:          audio,
		ContentType:    contentType,
		SampleRate:     44100,
		ProcessingTime: time.Since(startTime),
		Provider:       p.Name(),
	}, nil
}

// Health checks if the provider is configured.
func (p *ElevenLabsProvider) Health(ctx context.Context) error {
	if p.apiKey == "" {
		return ErrProviderUnavailable
	}
	return nil
}
