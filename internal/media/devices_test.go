package media

import "testing"

func TestExclusiveAcquire(t *testing.T) {
	reg := NewRegistry()

	mic, err := reg.Acquire(Microphone, "capture")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !reg.Held(Microphone) {
		t.Error("Expected microphone marked held")
	}

	if _, err := reg.Acquire(Microphone, "devicecheck"); err == nil {
		t.Error("Expected second acquire to fail while held")
	}

	// The camera is independent of the microphone.
	cam, err := reg.Acquire(Camera, "proctor")
	if err != nil {
		t.Fatalf("Camera acquire failed: %v", err)
	}
	cam.Release()
	mic.Release()

	if reg.Held(Microphone) || reg.Held(Camera) {
		t.Error("Expected all devices released")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	reg := NewRegistry()

	mic, err := reg.Acquire(Microphone, "capture")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	mic.Release()

	// A second acquire takes fresh ownership; a stale Release from the
	// first handle must not revoke it.
	mic2, err := reg.Acquire(Microphone, "devicecheck")
	if err != nil {
		t.Fatalf("Reacquire failed: %v", err)
	}
	mic.Release()

	if !reg.Held(Microphone) {
		t.Error("Stale release revoked the new owner")
	}
	if mic2.Owner() != "devicecheck" {
		t.Errorf("Unexpected owner %s", mic2.Owner())
	}
	mic2.Release()
}
