// Package capture runs one spoken-answer recording span: it owns the
// microphone, streams audio into a recognizer, accumulates finalized
// transcript segments, and stops itself after a long silence.
package capture

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockview/mockview/internal/audio"
	"github.com/mockview/mockview/internal/bus"
	"github.com/mockview/mockview/internal/config"
	"github.com/mockview/mockview/internal/media"
	"github.com/mockview/mockview/internal/stt"
)

// ErrBusy is returned by Start while a capture span is running.
var ErrBusy = errors.New("capture already in progress")

// Handlers receive capture output. OnAutoStop and OnTranscript fire
// after the microphone has been released, OnTranscript exactly once
// per span.
type Handlers struct {
	OnPartial    func(text string)
	OnTranscript func(text string)
	OnLevel      func(level audio.Level)
	OnAutoStop   func()
	OnError      func(err error)
}

// RecognizerFactory builds a fresh recognizer for each capture span.
type RecognizerFactory func() stt.Recognizer

// Controller is the speech capture controller. All methods are safe
// for concurrent use.
type Controller struct {
	newRecognizer RecognizerFactory
	devices       *media.Registry
	events        *bus.EventBus
	silenceWindow time.Duration
	levelCfg      audio.LevelConfig
	logger        zerolog.Logger
	now           func() time.Time

	mu         sync.Mutex
	generation uint64
	running    bool
	stopped    bool
	recognizer stt.Recognizer
	sensor     *audio.LevelSensor
	mic        *media.Handle
	handlers   Handlers
	startedAt  time.Time

	finals      []string
	partial     string
	autoStopped bool
}

// NewController wires a controller. events may be nil.
func NewController(factory RecognizerFactory, devices *media.Registry, events *bus.EventBus, cfg config.AudioConfig, logger zerolog.Logger) *Controller {
	silence := cfg.SilenceWindow
	if silence <= 0 {
		silence = 10 * time.Second
	}
	return &Controller{
		newRecognizer: factory,
		devices:       devices,
		events:        events,
		silenceWindow: silence,
		levelCfg: audio.LevelConfig{
			VoiceThreshold:  cfg.VoiceThreshold,
			SmoothingFrames: cfg.SmoothingFrames,
			BitsPerSample:   16,
		},
		logger: logger.With().Str("component", "capture").Logger(),
		now:    time.Now,
	}
}

// SetClock overrides the wall clock, used by tests.
func (c *Controller) SetClock(now func() time.Time) { c.now = now }

// Running reports whether a capture span is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Start begins a capture span. A second Start while one is running
// returns ErrBusy.
func (c *Controller) Start(handlers Handlers) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrBusy
	}

	mic, err := c.devices.Acquire(media.Microphone, "capture")
	if err != nil {
		c.mu.Unlock()
		return err
	}

	c.generation++
	gen := c.generation
	rec := c.newRecognizer()

	c.running = true
	c.stopped = false
	c.autoStopped = false
	c.recognizer = rec
	c.mic = mic
	c.handlers = handlers
	c.sensor = audio.NewLevelSensor(&c.levelCfg)
	c.startedAt = c.now()
	c.finals = nil
	c.partial = ""
	c.mu.Unlock()

	err = rec.Start(stt.Handlers{
		OnSegment: func(seg stt.Segment) { c.onSegment(gen, seg) },
		OnError:   func(err error) { c.onRecognizerError(gen, err) },
		OnEnd:     func() { c.complete(gen) },
	})
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.recognizer = nil
		c.mu.Unlock()
		mic.Release()
		return err
	}

	c.publish(bus.EventTypeCaptureStarted, nil)
	c.logger.Info().Msg("Capture started")
	return nil
}

// ProcessAudio feeds one PCM frame stamped at ts into the span: the
// recognizer gets the bytes, the level sensor gets a tick, and the
// silence window is evaluated. Frames arriving outside a span are
// dropped.
func (c *Controller) ProcessAudio(frame []byte, ts time.Time) {
	c.mu.Lock()
	if !c.running || c.stopped {
		c.mu.Unlock()
		return
	}
	gen := c.generation
	rec := c.recognizer
	sensor := c.sensor
	h := c.handlers
	started := c.startedAt
	c.mu.Unlock()

	if err := rec.SendAudio(frame); err != nil {
		c.logger.Warn().Err(err).Msg("Dropped audio frame")
	}

	level := sensor.Process(frame, ts)
	if h.OnLevel != nil {
		h.OnLevel(level)
	}

	// Silence is measured from the last voice activity, or from span
	// start if no voice has been heard yet.
	ref := sensor.LastVoiceAt()
	if ref.IsZero() {
		ref = started
	}
	if ts.Sub(ref) >= c.silenceWindow {
		c.autoStop(gen)
	}
}

// Stop ends the span. Idempotent; calling it after the span ended is
// a no-op. The final transcript is delivered via OnTranscript once the
// recognizer drains.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running || c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	rec := c.recognizer
	c.mu.Unlock()

	if err := rec.Finish(); err != nil {
		// Stream is already gone; complete with what we have.
		c.complete(c.currentGen())
	}
}

func (c *Controller) autoStop(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.autoStopped || c.stopped {
		c.mu.Unlock()
		return
	}
	c.autoStopped = true
	c.mu.Unlock()

	c.logger.Info().Dur("window", c.silenceWindow).Msg("Silence window elapsed, stopping capture")
	c.publish(bus.EventTypeCaptureAutoStop, nil)
	c.Stop()
}

func (c *Controller) onSegment(gen uint64, seg stt.Segment) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	if seg.Final {
		c.finals = append(c.finals, seg.Text)
		c.partial = ""
	} else {
		c.partial = seg.Text
	}
	h := c.handlers
	c.mu.Unlock()

	if seg.Final {
		c.publish(bus.EventTypeTranscript, map[string]any{"text": seg.Text})
	} else {
		c.publish(bus.EventTypePartial, map[string]any{"text": seg.Text})
		if h.OnPartial != nil {
			h.OnPartial(seg.Text)
		}
	}
}

func (c *Controller) onRecognizerError(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	h := c.handlers
	c.mu.Unlock()

	if errors.Is(err, stt.ErrNoSpeech) {
		c.logger.Info().Msg("Capture ended without speech")
		return
	}
	c.logger.Error().Err(err).Msg("Recognition error")
	if h.OnError != nil {
		h.OnError(err)
	}
}

// complete tears the span down exactly once: close the recognizer,
// release the microphone, then deliver the assembled transcript.
func (c *Controller) complete(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.stopped = true
	rec := c.recognizer
	mic := c.mic
	h := c.handlers
	auto := c.autoStopped
	transcript := assembleTranscript(c.finals, c.partial)
	c.recognizer = nil
	c.mic = nil
	c.mu.Unlock()

	if rec != nil {
		_ = rec.Close()
	}
	if mic != nil {
		mic.Release()
	}

	c.publish(bus.EventTypeCaptureStopped, map[string]any{"transcript": transcript})
	c.logger.Info().Int("length", len(transcript)).Msg("Capture stopped")
	if auto && h.OnAutoStop != nil {
		h.OnAutoStop()
	}
	if h.OnTranscript != nil {
		h.OnTranscript(transcript)
	}
}

// Transcript returns the text assembled so far in the current or most
// recent span.
func (c *Controller) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return assembleTranscript(c.finals, c.partial)
}

func (c *Controller) currentGen() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Controller) publish(t bus.EventType, data map[string]any) {
	if c.events != nil {
		c.events.Publish(bus.Event{Type: t, Data: data})
	}
}

// assembleTranscript joins finalized segments and any trailing partial
// into the answer text.
func assembleTranscript(finals []string, partial string) string {
	parts := make([]string, 0, len(finals)+1)
	for _, f := range finals {
		if f != "" {
			parts = append(parts, f)
		}
	}
	if partial != "" {
		parts = append(parts, partial)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
