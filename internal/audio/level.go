// Package audio provides PCM level analysis for the capture pipeline.
package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// LevelConfig tunes the voice-level sensor.
type LevelConfig struct {
	// VoiceThreshold is the smoothed RMS (0..1) above which a frame
	// counts as voice activity.
	VoiceThreshold float64
	// SmoothingFrames is the size of the moving-average window.
	SmoothingFrames int
	// BitsPerSample of the incoming PCM: 8, 16 or 32.
	BitsPerSample int
}

// DefaultLevelConfig returns settings tuned for 16kHz/16-bit mic input.
func DefaultLevelConfig() LevelConfig {
	return LevelConfig{
		VoiceThreshold:  0.012,
		SmoothingFrames: 5,
		BitsPerSample:   16,
	}
}

// Level is the result of analyzing one PCM frame.
type Level struct {
	RMS      float64   // raw RMS of this frame, 0..1
	Smoothed float64   // moving average over the window
	Voice    bool      // smoothed level above the voice threshold
	At       time.Time // frame timestamp
}

// LevelSensor computes a smoothed RMS voice level from raw PCM frames
// and tracks the last moment voice activity was observed.
type LevelSensor struct {
	cfg LevelConfig

	mu          sync.Mutex
	window      []float64
	lastVoiceAt time.Time
}

// NewLevelSensor creates a sensor. A nil config uses defaults.
func NewLevelSensor(cfg *LevelConfig) *LevelSensor {
	c := DefaultLevelConfig()
	if cfg != nil {
		c = *cfg
	}
	if c.SmoothingFrames <= 0 {
		c.SmoothingFrames = 1
	}
	switch c.BitsPerSample {
	case 8, 16, 32:
	default:
		c.BitsPerSample = 16
	}
	return &LevelSensor{cfg: c}
}

// Process analyzes one frame of little-endian PCM stamped at ts.
func (s *LevelSensor) Process(frame []byte, ts time.Time) Level {
	rms := s.rms(frame)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.window = append(s.window, rms)
	if len(s.window) > s.cfg.SmoothingFrames {
		s.window = s.window[1:]
	}
	var sum float64
	for _, v := range s.window {
		sum += v
	}
	smoothed := sum / float64(len(s.window))

	voice := smoothed >= s.cfg.VoiceThreshold
	if voice {
		s.lastVoiceAt = ts
	}
	return Level{RMS: rms, Smoothed: smoothed, Voice: voice, At: ts}
}

// LastVoiceAt returns the timestamp of the most recent voice-active
// frame, or the zero time if none has been seen.
func (s *LevelSensor) LastVoiceAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastVoiceAt
}

// Reset clears the smoothing window and activity timestamp.
func (s *LevelSensor) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = nil
	s.lastVoiceAt = time.Time{}
}

// rms normalizes samples to -1..1 before computing the root mean
// square, so the threshold is independent of bit depth.
func (s *LevelSensor) rms(frame []byte) float64 {
	var sum float64
	var n int

	switch s.cfg.BitsPerSample {
	case 16:
		for i := 0; i+1 < len(frame); i += 2 {
			sample := int16(binary.LittleEndian.Uint16(frame[i:]))
			v := float64(sample) / 32768.0
			sum += v * v
			n++
		}
	case 32:
		for i := 0; i+3 < len(frame); i += 4 {
			sample := int32(binary.LittleEndian.Uint32(frame[i:]))
			v := float64(sample) / 2147483648.0
			sum += v * v
			n++
		}
	case 8:
		for _, b := range frame {
			v := (float64(b) - 128.0) / 128.0
			sum += v * v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}
