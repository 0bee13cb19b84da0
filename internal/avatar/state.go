// Package avatar holds the shared playback/animation state consumed by
// the renderer. The speech output driver is the only writer; everything
// else (renderer, UI, tests) reads. The cell is created at session
// start and reset at session end.
package avatar

import (
	"sync"
	"time"

	"github.com/mockview/mockview/internal/lipsync"
)

// PlaybackState is a snapshot of the current utterance playback.
type PlaybackState struct {
	IsPlaying     bool      `json:"isPlaying"`
	StartTime     time.Time `json:"startTime"`
	UsesWallClock bool      `json:"usesWallClock"` // no audio, timeline driven by wall clock
	Amplitude     float64   `json:"amplitude"`     // live speech amplitude 0..1
}

// FrameSample is what the renderer consumes each frame.
type FrameSample struct {
	Shape     string  `json:"shape"`
	Weight    float64 `json:"weight"`
	Amplitude float64 `json:"amplitude"`
	Speaking  bool    `json:"speaking"`
}

// State is the single-writer/multi-reader playback cell.
type State struct {
	mu       sync.RWMutex
	playback PlaybackState
	visemes  []lipsync.Viseme

	now func() time.Time // injectable clock
}

// NewState creates an idle playback cell.
func NewState() *State {
	return &State{now: time.Now}
}

// SetClock overrides the wall clock, used by tests.
func (s *State) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// BeginPlayback installs a new viseme timeline and marks playback live.
// Starting new playback replaces whatever state was live before.
func (s *State) BeginPlayback(visemes []lipsync.Viseme, usesWallClock bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.visemes = visemes
	s.playback = PlaybackState{
		IsPlaying:     true,
		StartTime:     s.now(),
		UsesWallClock: usesWallClock,
	}
	if usesWallClock {
		// no amplitude sensor without audio; hold a speaking baseline
		s.playback.Amplitude = 0.6
	}
}

// SetAmplitude publishes the smoothed live amplitude for the current
// playback. Ignored when nothing is playing.
func (s *State) SetAmplitude(a float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playback.IsPlaying {
		return
	}
	if a < 0 {
		a = 0
	}
	if a > 1 {
		a = 1
	}
	s.playback.Amplitude = a
}

// EndPlayback clears playback state and discards the timeline.
func (s *State) EndPlayback() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.playback = PlaybackState{}
	s.visemes = nil
}

// Reset returns the cell to its initial idle state.
func (s *State) Reset() {
	s.EndPlayback()
}

// Playback returns the current playback snapshot.
func (s *State) Playback() PlaybackState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playback
}

// Timeline returns the active viseme timeline (read-only by contract).
func (s *State) Timeline() []lipsync.Viseme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visemes
}

// Sample returns the renderer-facing frame sample for the current wall
// time: the viseme whose interval contains now, plus live amplitude.
func (s *State) Sample() FrameSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.playback.IsPlaying || len(s.visemes) == 0 {
		return FrameSample{Shape: lipsync.ShapeMouthClose}
	}

	elapsed := s.now().Sub(s.playback.StartTime).Seconds()
	v, ok := lipsync.SampleAt(s.visemes, elapsed)
	if !ok {
		return FrameSample{
			Shape:     lipsync.ShapeMouthClose,
			Amplitude: s.playback.Amplitude,
			Speaking:  true,
		}
	}
	return FrameSample{
		Shape:     v.Shape,
		Weight:    v.Weight,
		Amplitude: s.playback.Amplitude,
		Speaking:  true,
	}
}
