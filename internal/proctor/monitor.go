// Package proctor watches the interview for compliance violations on
// two independent channels: ambient audio noise and periodic camera
// frame analysis.
package proctor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mockview/mockview/internal/bus"
	"github.com/mockview/mockview/internal/config"
)

// Violation categories reported by the monitor.
const (
	CategoryHighNoise        = "high_noise"
	CategoryExplicitContent  = "explicit_content"
	CategoryMultiplePeople   = "multiple_people"
	CategorySuspiciousObject = "suspicious_object"
	CategoryNoFace           = "no_face"
	CategoryRapidMovement    = "rapid_movement"
	CategoryAnalysisError    = "analysis_error"
)

// Channels a violation can originate from.
const (
	ChannelAudio  = "audio"
	ChannelCamera = "camera"
)

// Violation is one recorded compliance event. The log grows until it
// is explicitly cleared.
type Violation struct {
	ID          string            `json:"id"`
	Channel     string            `json:"channel"`
	Category    string            `json:"category"`
	Severity    string            `json:"severity"` // "low", "medium", "high"
	Description string            `json:"description"`
	Timestamp   time.Time         `json:"timestamp"`
	Details     map[string]string `json:"details,omitempty"`
}

// Finding is one violation detected in a camera frame.
type Finding struct {
	Category    string            `json:"category"`
	Severity    string            `json:"severity"`
	Description string            `json:"description"`
	Details     map[string]string `json:"details,omitempty"`
}

// FrameSource captures camera frames on demand.
type FrameSource interface {
	CaptureFrame(ctx context.Context) ([]byte, error)
}

// FrameAnalyzer inspects a frame for violations.
type FrameAnalyzer interface {
	Analyze(ctx context.Context, frame []byte) ([]Finding, error)
}

// Monitor runs the two compliance channels. The audio channel is fed
// level samples by the capture pipeline; the camera channel schedules
// itself on an adaptive interval.
type Monitor struct {
	cfg      config.ProctorConfig
	frames   FrameSource
	analyzer FrameAnalyzer
	events   *bus.EventBus
	logger   zerolog.Logger
	now      func() time.Time
	sleep    func(context.Context, time.Duration)

	mu         sync.Mutex
	violations []Violation
	noiseLatch bool
	hidden     bool

	cameraOn     bool
	cameraCancel context.CancelFunc
	generation   uint64
}

// NewMonitor wires a monitor. frames, analyzer and events may be nil;
// without frames+analyzer the camera channel cannot start.
func NewMonitor(cfg config.ProctorConfig, frames FrameSource, analyzer FrameAnalyzer, events *bus.EventBus, logger zerolog.Logger) *Monitor {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 5 * time.Second
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 3 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 20 * time.Second
	}
	if cfg.HiddenDelay <= 0 {
		cfg.HiddenDelay = 10 * time.Second
	}
	return &Monitor{
		cfg:      cfg,
		frames:   frames,
		analyzer: analyzer,
		events:   events,
		logger:   logger.With().Str("component", "proctor").Logger(),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// SetClock overrides the wall clock, used by tests.
func (m *Monitor) SetClock(now func() time.Time) { m.now = now }

// ProcessAudioLevel feeds one ambient level sample (0..1) to the audio
// channel. Crossing the noise threshold records one violation and
// latches until the level falls back below it.
func (m *Monitor) ProcessAudioLevel(level, threshold float64) {
	m.mu.Lock()
	if level >= threshold {
		if m.noiseLatch {
			m.mu.Unlock()
			return
		}
		m.noiseLatch = true
		m.mu.Unlock()
		m.record(Violation{
			Channel:     ChannelAudio,
			Category:    CategoryHighNoise,
			Severity:    "medium",
			Description: "Sustained high background noise detected",
		})
		return
	}
	m.noiseLatch = false
	m.mu.Unlock()
}

// SetPageHidden marks whether the interview page is visible. While
// hidden, camera checks slow to at least the hidden delay.
func (m *Monitor) SetPageHidden(hidden bool) {
	m.mu.Lock()
	m.hidden = hidden
	m.mu.Unlock()
}

// StartCamera begins the adaptive frame-analysis loop. Starting an
// already-running channel is a no-op.
func (m *Monitor) StartCamera() {
	m.mu.Lock()
	if m.cameraOn || m.frames == nil || m.analyzer == nil {
		m.mu.Unlock()
		return
	}
	m.cameraOn = true
	m.generation++
	gen := m.generation
	ctx, cancel := context.WithCancel(context.Background())
	m.cameraCancel = cancel
	m.mu.Unlock()

	m.publish(bus.EventTypeProctorStarted, nil)
	go m.cameraLoop(ctx, gen)
}

// StopCamera halts the frame-analysis loop. Idempotent. Results from
// checks already in flight are discarded.
func (m *Monitor) StopCamera() {
	m.mu.Lock()
	if !m.cameraOn {
		m.mu.Unlock()
		return
	}
	m.cameraOn = false
	m.generation++
	if m.cameraCancel != nil {
		m.cameraCancel()
		m.cameraCancel = nil
	}
	m.mu.Unlock()

	m.publish(bus.EventTypeProctorStopped, nil)
}

// Violations returns a copy of the violation log.
func (m *Monitor) Violations() []Violation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Violation, len(m.violations))
	copy(out, m.violations)
	return out
}

// ClearViolations empties the violation log. Violations never expire
// on their own.
func (m *Monitor) ClearViolations() {
	m.mu.Lock()
	m.violations = nil
	m.mu.Unlock()
	m.logger.Info().Msg("Violation log cleared")
}

// cameraLoop runs one frame check, reschedules itself with the
// adjusted delay, and repeats until cancelled.
func (m *Monitor) cameraLoop(ctx context.Context, gen uint64) {
	delay := m.cfg.InitialDelay
	for {
		m.sleep(ctx, m.effectiveDelay(delay))
		if ctx.Err() != nil {
			return
		}

		ok := m.checkFrame(ctx, gen)
		if ctx.Err() != nil {
			return
		}
		delay = nextDelay(m.cfg, delay, ok)
	}
}

// effectiveDelay applies the hidden-page minimum.
func (m *Monitor) effectiveDelay(delay time.Duration) time.Duration {
	m.mu.Lock()
	hidden := m.hidden
	m.mu.Unlock()
	if hidden && delay < m.cfg.HiddenDelay {
		return m.cfg.HiddenDelay
	}
	return delay
}

// checkFrame captures and analyzes one frame. It reports whether the
// check succeeded so the loop can adjust its cadence.
func (m *Monitor) checkFrame(ctx context.Context, gen uint64) bool {
	frame, err := m.frames.CaptureFrame(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Frame capture failed")
		return false
	}

	findings, analyzeErr := m.analyzer.Analyze(ctx, frame)

	// A stop or restart while the analysis was in flight invalidates
	// the result.
	m.mu.Lock()
	stale := gen != m.generation
	m.mu.Unlock()
	if stale {
		return true
	}

	if analyzeErr != nil {
		m.logger.Warn().Err(analyzeErr).Msg("Frame analysis failed")
		m.record(Violation{
			Channel:     ChannelCamera,
			Category:    CategoryAnalysisError,
			Severity:    "low",
			Description: "Frame analysis failed: " + analyzeErr.Error(),
		})
		return false
	}

	for _, f := range findings {
		m.record(Violation{
			Channel:     ChannelCamera,
			Category:    f.Category,
			Severity:    f.Severity,
			Description: f.Description,
			Details:     f.Details,
		})
	}
	return true
}

// nextDelay computes the camera cadence after one check: back off by
// half again on failure up to the cap, tighten by a tenth on success
// down to the floor.
func nextDelay(cfg config.ProctorConfig, current time.Duration, ok bool) time.Duration {
	if ok {
		next := time.Duration(float64(current) * 0.9)
		if next < cfg.MinDelay {
			next = cfg.MinDelay
		}
		return next
	}
	next := time.Duration(float64(current) * 1.5)
	if next > cfg.MaxDelay {
		next = cfg.MaxDelay
	}
	return next
}

func (m *Monitor) record(v Violation) {
	v.ID = uuid.NewString()
	v.Timestamp = m.now()

	m.mu.Lock()
	m.violations = append(m.violations, v)
	m.mu.Unlock()

	m.logger.Warn().Str("category", v.Category).Str("severity", v.Severity).
		Msg("Compliance violation recorded")
	m.publish(bus.EventTypeViolation, map[string]any{
		"id":       v.ID,
		"channel":  v.Channel,
		"category": v.Category,
		"severity": v.Severity,
	})
}

func (m *Monitor) publish(t bus.EventType, data map[string]any) {
	if m.events != nil {
		m.events.Publish(bus.Event{Type: t, Data: data})
	}
}

func sleepCtx(ctx context.Context, dur time.Duration) {
	if dur <= 0 {
		return
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
