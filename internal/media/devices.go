// Package media tracks exclusive ownership of capture devices so the
// microphone and camera are never opened by two components at once.
package media

import (
	"fmt"
	"sync"
)

// Kind names a capture device.
type Kind string

const (
	Microphone Kind = "microphone"
	Camera     Kind = "camera"
)

// Handle is an exclusive claim on a device. Release returns the
// device to the registry and is safe to call more than once.
type Handle struct {
	kind     Kind
	owner    string
	registry *Registry

	once sync.Once
}

// Kind returns the device this handle claims.
func (h *Handle) Kind() Kind { return h.kind }

// Owner returns the component name that acquired the handle.
func (h *Handle) Owner() string { return h.owner }

// Release returns the device. Idempotent.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.registry.release(h.kind)
	})
}

// Registry hands out exclusive device handles.
type Registry struct {
	mu     sync.Mutex
	owners map[Kind]string
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{owners: make(map[Kind]string)}
}

// Acquire claims a device for owner. It fails if the device is
// already held.
func (r *Registry) Acquire(kind Kind, owner string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, held := r.owners[kind]; held {
		return nil, fmt.Errorf("%s already in use by %s", kind, holder)
	}
	r.owners[kind] = owner
	return &Handle{kind: kind, owner: owner, registry: r}, nil
}

// Held reports whether a device is currently claimed.
func (r *Registry) Held(kind Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, held := r.owners[kind]
	return held
}

func (r *Registry) release(kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners, kind)
}
