package avatar

import (
	"testing"
	"time"

	"github.com/mockview/mockview/internal/lipsync"
)

func TestSampleFollowsTimeline(t *testing.T) {
	state := NewState()
	base := time.Now()
	now := base
	state.SetClock(func() time.Time { return now })

	visemes := lipsync.Generate("ok")
	state.BeginPlayback(visemes, false)
	state.SetAmplitude(0.3)

	now = base.Add(time.Duration(visemes[0].Duration/2*1000) * time.Millisecond)
	sample := state.Sample()
	if !sample.Speaking {
		t.Fatal("Expected speaking sample during playback")
	}
	if sample.Shape != visemes[0].Shape {
		t.Errorf("Expected shape %s, got %s", visemes[0].Shape, sample.Shape)
	}
	if sample.Amplitude != 0.3 {
		t.Errorf("Expected amplitude 0.3, got %.2f", sample.Amplitude)
	}
}

func TestSampleIdle(t *testing.T) {
	state := NewState()

	sample := state.Sample()
	if sample.Speaking {
		t.Error("Expected idle sample before playback")
	}
	if sample.Shape != lipsync.ShapeMouthClose {
		t.Errorf("Expected closed mouth at idle, got %s", sample.Shape)
	}
}

func TestAmplitudeClampedAndIgnoredWhenIdle(t *testing.T) {
	state := NewState()

	state.SetAmplitude(0.9)
	if got := state.Playback().Amplitude; got != 0 {
		t.Errorf("Expected amplitude ignored while idle, got %.2f", got)
	}

	state.BeginPlayback(lipsync.Generate("a"), false)
	state.SetAmplitude(1.7)
	if got := state.Playback().Amplitude; got != 1 {
		t.Errorf("Expected amplitude clamped to 1, got %.2f", got)
	}
	state.SetAmplitude(-0.2)
	if got := state.Playback().Amplitude; got != 0 {
		t.Errorf("Expected amplitude clamped to 0, got %.2f", got)
	}
}

func TestWallClockPlaybackBaseline(t *testing.T) {
	state := NewState()
	state.BeginPlayback(lipsync.Generate("hello"), true)

	pb := state.Playback()
	if !pb.UsesWallClock {
		t.Error("Expected wall-clock playback")
	}
	if pb.Amplitude == 0 {
		t.Error("Expected a non-zero speaking baseline without audio")
	}
}

func TestEndPlaybackClears(t *testing.T) {
	state := NewState()
	state.BeginPlayback(lipsync.Generate("done"), false)
	state.EndPlayback()

	if state.Playback().IsPlaying {
		t.Error("Expected playback stopped")
	}
	if state.Timeline() != nil {
		t.Error("Expected timeline discarded")
	}
}
