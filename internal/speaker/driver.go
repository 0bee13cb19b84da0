// Package speaker drives spoken output: it turns text into a viseme
// timeline plus synthesized audio, publishes playback state to the
// avatar cell, and reports utterance completion to whoever asked.
package speaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockview/mockview/internal/avatar"
	"github.com/mockview/mockview/internal/bus"
	"github.com/mockview/mockview/internal/lipsync"
	"github.com/mockview/mockview/internal/tts"
)

// Player renders synthesized audio. Play blocks until playback
// finishes or ctx is cancelled. onAmplitude, when non-nil, receives
// the smoothed output amplitude (0..1) at roughly 60Hz while audio is
// audible.
type Player interface {
	Play(ctx context.Context, audio []byte, contentType string, onAmplitude func(float64)) error
}

// Config controls synthesis retry behavior.
type Config struct {
	MaxAttempts int // synthesis attempts against the primary provider
	Backoffs    []time.Duration
	Speed       float64
}

// DefaultConfig returns the retry schedule used in production: three
// attempts with 300ms then 800ms between them.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Backoffs:    []time.Duration{300 * time.Millisecond, 800 * time.Millisecond},
		Speed:       1.0,
	}
}

// Driver is the speech output driver. One utterance is in flight at a
// time; Speak during an utterance is ignored and Stop cancels it.
type Driver struct {
	primary  tts.Provider
	fallback tts.Provider // optional system synthesizer
	player   Player       // optional; nil forces the wall-clock path
	state    *avatar.State
	events   *bus.EventBus
	cfg      Config
	logger   zerolog.Logger

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	speaking   bool
	lastError  string

	sleep func(context.Context, time.Duration) // injectable for tests
	now   func() time.Time
}

// NewDriver wires a driver. fallback, player and events may be nil.
func NewDriver(primary tts.Provider, fallback tts.Provider, player Player, state *avatar.State, events *bus.EventBus, cfg Config, logger zerolog.Logger) *Driver {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}
	return &Driver{
		primary:  primary,
		fallback: fallback,
		player:   player,
		state:    state,
		events:   events,
		cfg:      cfg,
		logger:   logger.With().Str("component", "speaker").Logger(),
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

// Speaking reports whether an utterance is currently in flight.
func (d *Driver) Speaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speaking
}

// LastError returns the synthesis failure message for the most recent
// utterance, verbatim from the failing provider, or empty if audio
// was produced.
func (d *Driver) LastError() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastError
}

// Speak starts speaking text and returns immediately. While an
// utterance is in flight further Speak calls are no-ops. onComplete is
// invoked exactly once when the utterance finishes on its own; it is
// not invoked if the utterance is cancelled by Stop. The viseme
// timeline is installed before any audio work so the mouth animates
// even when every synthesis path fails.
func (d *Driver) Speak(text string, onComplete func()) error {
	if text == "" {
		return tts.ErrTextEmpty
	}

	d.mu.Lock()
	if d.speaking {
		d.mu.Unlock()
		return nil
	}
	d.generation++
	gen := d.generation
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.speaking = true
	d.lastError = ""
	d.mu.Unlock()

	visemes := lipsync.Generate(text)

	go d.run(ctx, gen, text, visemes, onComplete)
	return nil
}

// Stop cancels the in-flight utterance, if any. The superseded
// utterance's onComplete does not fire. Stop is idempotent.
func (d *Driver) Stop() {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.generation++
	d.speaking = false
	d.mu.Unlock()

	d.state.EndPlayback()
	d.publish(bus.EventTypePlaybackStopped, nil)
}

func (d *Driver) run(ctx context.Context, gen uint64, text string, visemes []lipsync.Viseme, onComplete func()) {
	audio, contentType, err := d.synthesize(ctx, text)

	var elapsed time.Duration
	if err == nil && d.player != nil {
		d.state.BeginPlayback(visemes, false)
		d.publish(bus.EventTypePlaybackStarted, map[string]any{"wallClock": false})

		playStart := d.now()
		playErr := d.player.Play(ctx, audio, contentType, d.state.SetAmplitude)
		if playErr == nil {
			d.finish(gen, onComplete)
			return
		}
		if ctx.Err() != nil {
			return
		}
		elapsed = d.now().Sub(playStart)
		d.logger.Warn().Err(playErr).Msg("Audio playback failed, falling back to wall clock")
	} else if err != nil {
		if ctx.Err() != nil {
			return
		}
		d.mu.Lock()
		d.lastError = err.Error()
		d.mu.Unlock()
		d.logger.Warn().Err(err).Msg("All synthesis paths failed, using wall-clock timeline")
	}

	// Wall-clock fallback: animate the timeline against real time so
	// the utterance still completes after its natural duration. Time
	// already spent in audio playback counts toward that duration.
	d.state.BeginPlayback(visemes, true)
	d.publish(bus.EventTypePlaybackStarted, map[string]any{"wallClock": true})

	total := time.Duration(lipsync.TotalDuration(visemes)*float64(time.Second)) - elapsed
	if total < 0 {
		total = 0
	}
	d.sleep(ctx, total)
	if ctx.Err() != nil {
		return
	}
	d.finish(gen, onComplete)
}

// synthesize runs the primary provider with retry, then the fallback.
func (d *Driver) synthesize(ctx context.Context, text string) ([]byte, string, error) {
	req := &tts.SynthesizeRequest{Text: text, Speed: d.cfg.Speed}

	var lastErr error
	if d.primary != nil {
		for attempt := 0; attempt < d.cfg.MaxAttempts; attempt++ {
			if attempt > 0 {
				idx := attempt - 1
				if idx >= len(d.cfg.Backoffs) {
					idx = len(d.cfg.Backoffs) - 1
				}
				d.sleep(ctx, d.cfg.Backoffs[idx])
			}
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			resp, err := d.primary.Synthesize(ctx, req)
			if err == nil {
				return resp.Audio, resp.ContentType, nil
			}
			lastErr = err
			d.logger.Warn().Err(err).Int("attempt", attempt+1).
				Str("provider", d.primary.Name()).Msg("Synthesis attempt failed")
		}
	}

	if d.fallback != nil {
		resp, err := d.fallback.Synthesize(ctx, req)
		if err == nil {
			return resp.Audio, resp.ContentType, nil
		}
		lastErr = err
		d.logger.Warn().Err(err).Str("provider", d.fallback.Name()).
			Msg("Fallback synthesis failed")
	}

	if lastErr == nil {
		lastErr = tts.ErrProviderUnavailable
	}
	return nil, "", fmt.Errorf("speech synthesis failed: %w", lastErr)
}

// finish fires completion exactly once for the given generation. A
// stale generation means the utterance was superseded and must stay
// silent.
func (d *Driver) finish(gen uint64, onComplete func()) {
	d.mu.Lock()
	if gen != d.generation {
		d.mu.Unlock()
		return
	}
	d.speaking = false
	d.cancel = nil
	d.mu.Unlock()

	d.state.EndPlayback()
	d.publish(bus.EventTypeUtteranceDone, nil)
	if onComplete != nil {
		onComplete()
	}
}

func (d *Driver) publish(t bus.EventType, data map[string]any) {
	if d.events != nil {
		d.events.Publish(bus.Event{Type: t, Data: data})
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
