package interview

import "sync"

// DeviceCheck tracks microphone and camera readiness before the
// interview starts. The mic passes after a run of consecutive level
// ticks above the voice threshold; any quiet tick resets the run.
type DeviceCheck struct {
	threshold float64
	required  int

	mu          sync.Mutex
	consecutive int
	micPassed   bool
	cameraReady bool
}

// NewDeviceCheck creates a check requiring the given consecutive
// above-threshold ticks.
func NewDeviceCheck(threshold float64, required int) *DeviceCheck {
	if required <= 0 {
		required = 20
	}
	return &DeviceCheck{threshold: threshold, required: required}
}

// MicTick feeds one smoothed level sample and reports whether the mic
// check has passed. Once passed it stays passed.
func (d *DeviceCheck) MicTick(level float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.micPassed {
		return true
	}
	if level >= d.threshold {
		d.consecutive++
		if d.consecutive >= d.required {
			d.micPassed = true
		}
	} else {
		d.consecutive = 0
	}
	return d.micPassed
}

// SetCameraReady records whether the camera produced a usable frame.
func (d *DeviceCheck) SetCameraReady(ready bool) {
	d.mu.Lock()
	d.cameraReady = ready
	d.mu.Unlock()
}

// Passed reports whether both devices are ready.
func (d *DeviceCheck) Passed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.micPassed && d.cameraReady
}

// MicPassed reports whether the microphone check alone has passed.
func (d *DeviceCheck) MicPassed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.micPassed
}
