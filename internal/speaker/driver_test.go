package speaker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockview/mockview/internal/avatar"
	"github.com/mockview/mockview/internal/lipsync"
	"github.com/mockview/mockview/internal/tts"
)

type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	failures int       // fail this many calls before succeeding
	block    chan bool // when set, Synthesize waits for ctx
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Synthesize(ctx context.Context, req *tts.SynthesizeRequest) (*tts.SynthesizeResponse, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.block != nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if call <= f.failures {
		return nil, errors.New("synthesis failed with status 500")
	}
	return &tts.SynthesizeResponse{Audio: []byte{1, 2, 3}, ContentType: "audio/mpeg"}, nil
}

func (f *fakeProvider) Health(ctx context.Context) error { return nil }

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestDriver(primary, fallback tts.Provider) *Driver {
	d := NewDriver(primary, fallback, nil, avatar.NewState(), nil, DefaultConfig(), zerolog.Nop())
	d.sleep = func(context.Context, time.Duration) {}
	return d
}

func TestCompletionFiresExactlyOnceWhenAllAttemptsFail(t *testing.T) {
	provider := &fakeProvider{failures: 99}
	driver := newTestDriver(provider, nil)

	var completions int32
	done := make(chan struct{})
	err := driver.Speak("hello there", func() {
		atomic.AddInt32(&completions, 1)
		close(done)
	})
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Utterance never completed")
	}
	time.Sleep(50 * time.Millisecond)

	if got := atomic.LoadInt32(&completions); got != 1 {
		t.Errorf("Expected exactly one completion, got %d", got)
	}
	if got := provider.callCount(); got != 3 {
		t.Errorf("Expected 3 synthesis attempts, got %d", got)
	}
	if msg := driver.LastError(); !strings.Contains(msg, "synthesis failed with status 500") {
		t.Errorf("Expected last failure message surfaced verbatim, got %q", msg)
	}
}

func TestSpeakWhileSpeakingIsNoOp(t *testing.T) {
	provider := &fakeProvider{block: make(chan bool)}
	driver := newTestDriver(provider, nil)

	if err := driver.Speak("first utterance", nil); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if err := driver.Speak("second utterance", nil); err != nil {
		t.Fatalf("Second Speak should be a silent no-op, got %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := provider.callCount(); got != 1 {
		t.Errorf("Expected the in-flight utterance untouched, got %d synthesis calls", got)
	}
	driver.Stop()
}

func TestRetryBackoffSchedule(t *testing.T) {
	provider := &fakeProvider{failures: 99}
	driver := NewDriver(provider, nil, nil, avatar.NewState(), nil, DefaultConfig(), zerolog.Nop())

	var mu sync.Mutex
	var waits []time.Duration
	driver.sleep = func(_ context.Context, d time.Duration) {
		mu.Lock()
		waits = append(waits, d)
		mu.Unlock()
	}

	done := make(chan struct{})
	if err := driver.Speak("hi", func() { close(done) }); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Utterance never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(waits) < 2 {
		t.Fatalf("Expected at least two backoff waits, got %d", len(waits))
	}
	if waits[0] != 300*time.Millisecond || waits[1] != 800*time.Millisecond {
		t.Errorf("Expected 300ms then 800ms backoff, got %v then %v", waits[0], waits[1])
	}
}

func TestFallbackProviderUsed(t *testing.T) {
	primary := &fakeProvider{failures: 99}
	fallback := &fakeProvider{}
	driver := newTestDriver(primary, fallback)

	done := make(chan struct{})
	if err := driver.Speak("hello", func() { close(done) }); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Utterance never completed")
	}

	if fallback.callCount() != 1 {
		t.Errorf("Expected one fallback call, got %d", fallback.callCount())
	}
}

func TestStopSuppressesCompletion(t *testing.T) {
	provider := &fakeProvider{block: make(chan bool)}
	driver := newTestDriver(provider, nil)

	var completions int32
	if err := driver.Speak("hello", func() { atomic.AddInt32(&completions, 1) }); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if !driver.Speaking() {
		t.Fatal("Expected driver to be speaking")
	}

	driver.Stop()
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&completions); got != 0 {
		t.Errorf("Expected no completion after Stop, got %d", got)
	}
	if driver.Speaking() {
		t.Error("Expected driver idle after Stop")
	}
}

type failingPlayer struct {
	beforeFail func()
}

func (p *failingPlayer) Play(ctx context.Context, audio []byte, contentType string, onAmplitude func(float64)) error {
	if p.beforeFail != nil {
		p.beforeFail()
	}
	return errors.New("audio device lost")
}

func TestPlaybackFailureResumesWallClockFromElapsed(t *testing.T) {
	var offset int64
	player := &failingPlayer{beforeFail: func() {
		atomic.StoreInt64(&offset, int64(400*time.Millisecond))
	}}

	driver := NewDriver(&fakeProvider{}, nil, player, avatar.NewState(), nil, DefaultConfig(), zerolog.Nop())
	base := time.Now()
	driver.now = func() time.Time { return base.Add(time.Duration(atomic.LoadInt64(&offset))) }

	var mu sync.Mutex
	var waits []time.Duration
	driver.sleep = func(_ context.Context, d time.Duration) {
		mu.Lock()
		waits = append(waits, d)
		mu.Unlock()
	}

	text := "hello there"
	done := make(chan struct{})
	if err := driver.Speak(text, func() { close(done) }); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Utterance never completed")
	}

	total := time.Duration(lipsync.TotalDuration(lipsync.Generate(text)) * float64(time.Second))
	want := total - 400*time.Millisecond

	mu.Lock()
	defer mu.Unlock()
	if len(waits) != 1 {
		t.Fatalf("Expected one wall-clock wait, got %v", waits)
	}
	if waits[0] != want {
		t.Errorf("Expected remaining duration %v, got %v", want, waits[0])
	}
}

func TestEmptyTextRejected(t *testing.T) {
	driver := newTestDriver(&fakeProvider{}, nil)

	if err := driver.Speak("", nil); !errors.Is(err, tts.ErrTextEmpty) {
		t.Errorf("Expected ErrTextEmpty, got %v", err)
	}
}
