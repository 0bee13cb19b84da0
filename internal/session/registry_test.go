package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockview/mockview/internal/config"
	"github.com/mockview/mockview/internal/stt"
)

type fakeRecognizer struct {
	mu       sync.Mutex
	handlers stt.Handlers
	chunks   int
	finished bool
	closed   bool
}

func (f *fakeRecognizer) Start(h stt.Handlers) error {
	f.mu.Lock()
	f.handlers = h
	f.mu.Unlock()
	return nil
}

func (f *fakeRecognizer) SendAudio(chunk []byte) error {
	f.mu.Lock()
	f.chunks++
	f.mu.Unlock()
	return nil
}

func (f *fakeRecognizer) Finish() error {
	f.mu.Lock()
	if f.finished {
		f.mu.Unlock()
		return nil
	}
	f.finished = true
	h := f.handlers
	f.mu.Unlock()
	if h.OnEnd != nil {
		h.OnEnd()
	}
	return nil
}

func (f *fakeRecognizer) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeRecognizer) emit(text string, final bool) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	h.OnSegment(stt.Segment{Text: text, Final: final})
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		IdleTimeout:      2 * time.Minute,
		SubscribeTimeout: 5 * time.Minute,
		SweepInterval:    30 * time.Second,
	}
}

func newTestRegistry(rec *fakeRecognizer) *Registry {
	return NewRegistry(testSessionConfig(), func() stt.Recognizer { return rec }, nil, zerolog.Nop())
}

func TestUnknownSessionNotFound(t *testing.T) {
	reg := newTestRegistry(&fakeRecognizer{})

	if _, err := reg.Get("no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := reg.PushAudio("no-such-id", []byte{1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound from PushAudio, got %v", err)
	}
	if reg.Count() != 0 {
		t.Error("Lookups must not create sessions")
	}
}

func TestSessionLifecycle(t *testing.T) {
	rec := &fakeRecognizer{}
	reg := newTestRegistry(rec)

	sess, err := reg.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("Expected a session id")
	}
	if reg.Count() != 1 {
		t.Errorf("Expected 1 session, got %d", reg.Count())
	}

	if err := reg.PushAudio(sess.ID, []byte{1, 2, 3}); err != nil {
		t.Fatalf("PushAudio failed: %v", err)
	}

	rec.emit("hello", false)
	rec.emit("hello world", true)
	if err := reg.Stop(sess.ID); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	var types []string
	for ev := range sess.Events() {
		types = append(types, ev.Type)
	}
	want := []string{"partial", "transcript", "end"}
	if len(types) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], types[i])
		}
	}

	if reg.Count() != 0 {
		t.Errorf("Expected session removed after end, got %d", reg.Count())
	}
	if !rec.closed {
		t.Error("Expected recognizer closed")
	}
}

func TestStopIdempotentAfterEnd(t *testing.T) {
	rec := &fakeRecognizer{}
	reg := newTestRegistry(rec)

	sess, err := reg.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := reg.Stop(sess.ID); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if reg.Count() != 0 {
		t.Fatalf("Expected session removed after stop, got %d", reg.Count())
	}
	// The first stop tore the session down; stopping again is a
	// silent no-op.
	if err := reg.Stop(sess.ID); err != nil {
		t.Errorf("Expected nil on second stop, got %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	rec := &fakeRecognizer{}
	reg := newTestRegistry(rec)

	sess, err := reg.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := reg.Close(sess.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Second close of an already-removed session is a silent no-op and
	// must not panic or double-close the channel.
	if err := reg.Close(sess.ID); err != nil {
		t.Errorf("Expected nil on second close, got %v", err)
	}

	count := 0
	for range sess.Events() {
		count++
	}
	if count != 1 {
		t.Errorf("Expected a single terminal event, got %d", count)
	}
}

func TestHardTimeoutClosesSession(t *testing.T) {
	rec := &fakeRecognizer{}
	cfg := testSessionConfig()
	cfg.SubscribeTimeout = 30 * time.Millisecond
	reg := NewRegistry(cfg, func() stt.Recognizer { return rec }, nil, zerolog.Nop())

	sess, err := reg.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				if reg.Count() != 0 {
					t.Errorf("Expected session removed after hard timeout")
				}
				return
			}
			if ev.Type != "end" {
				t.Errorf("Expected end event, got %s", ev.Type)
			}
		case <-deadline:
			t.Fatal("Session never closed after hard timeout")
		}
	}
}

func TestIdleSweep(t *testing.T) {
	rec := &fakeRecognizer{}
	reg := newTestRegistry(rec)

	now := time.Now()
	reg.SetClock(func() time.Time { return now })

	sess, err := reg.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Still fresh: the sweep keeps it.
	reg.sweep()
	if reg.Count() != 1 {
		t.Fatal("Expected fresh session to survive the sweep")
	}

	now = now.Add(3 * time.Minute)
	reg.sweep()
	if reg.Count() != 0 {
		t.Error("Expected idle session reaped")
	}
	if _, ok := <-sess.Events(); ok {
		// terminal end event is acceptable; channel must close after
		if _, ok := <-sess.Events(); ok {
			t.Error("Expected channel closed after reap")
		}
	}
}
