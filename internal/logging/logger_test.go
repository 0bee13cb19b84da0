package logging

import (
	"os"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := New(&Config{
		LogDir:     t.TempDir(),
		Level:      "debug",
		MaxHistory: 5,
		Console:    false,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestHistoryRing(t *testing.T) {
	l := newTestLogger(t)

	log := l.Component("test")
	for i := 0; i < 8; i++ {
		log.Info().Int("i", i).Msg("entry")
	}

	all := l.History(0)
	if len(all) != 5 {
		t.Errorf("Expected history capped at 5, got %d", len(all))
	}

	two := l.History(2)
	if len(two) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(two))
	}
}

func TestLevelFiltering(t *testing.T) {
	l, err := New(&Config{LogDir: t.TempDir(), Level: "warn", MaxHistory: 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer l.Close()

	log := l.Zerolog()
	log.Debug().Msg("hidden")
	log.Warn().Msg("shown")

	for _, e := range l.History(0) {
		if e.Message == "hidden" {
			t.Error("Expected debug entry filtered out")
		}
	}
}

func TestFileOutput(t *testing.T) {
	l := newTestLogger(t)

	log := l.Component("capture")
	log.Info().Msg("capture started for answer")

	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "capture started for answer") {
		t.Error("Expected message in log file")
	}
	if !strings.Contains(string(data), `"component":"capture"`) {
		t.Error("Expected component tag in log file")
	}
}

func TestOnLogCallback(t *testing.T) {
	l := newTestLogger(t)

	got := make(chan Entry, 1)
	l.SetOnLog(func(e Entry) { got <- e })

	zl := l.Zerolog()
	zl.Error().Msg("something failed")

	select {
	case e := <-got:
		if e.Level != "error" || e.Message != "something failed" {
			t.Errorf("Unexpected entry %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("Callback never fired")
	}
}
