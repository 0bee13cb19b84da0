// Package tts provides text-to-speech synthesis providers for MockView.
package tts

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrProviderUnavailable = errors.New("TTS provider unavailable")
	ErrTextEmpty           = errors.New("text is empty")
	ErrTimeout             = errors.New("synthesis timeout")
)

// Provider is the interface all TTS providers must implement.
type Provider interface {
	// Name returns the provider identifier (e.g., "elevenlabs", "system")
	Name() string

	// Synthesize converts text to audio
	Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error)

	// Health checks if the provider is available
	Health(ctx context.Context) error
}

// SynthesizeRequest represents a synthesis request.
type SynthesizeRequest struct {
	Text    string  `json:"text"`
	VoiceID string  `json:"voice_id,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
}

// SynthesizeResponse represents a synthesis result.
type SynthesizeResponse struct {
	Audio          []byte        `json:"-"`               // raw audio data
	ContentType    string        `json:"content_type"`    // e.g. audio/mpeg
	SampleRate     int           `json:"sample_rate"`     // sample rate in Hz
	ProcessingTime time.Duration `json:"processing_time"` // how long synthesis took
	Provider       string        `json:"provider"`        // provider name
}
