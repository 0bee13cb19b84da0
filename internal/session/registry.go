// Package session manages server-mediated capture sessions: uuid-keyed
// recognition streams whose results fan out to subscribers over an
// event channel.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mockview/mockview/internal/bus"
	"github.com/mockview/mockview/internal/config"
	"github.com/mockview/mockview/internal/stt"
)

// ErrNotFound is returned for operations on an unknown session id.
// Lookups never create sessions implicitly.
var ErrNotFound = errors.New("session not found")

// Event is one item on a session's event stream.
type Event struct {
	Type  string `json:"type"` // "partial", "transcript", "error", "end"
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// Session is one live recognition stream. Its Events channel is closed
// exactly once, when the stream ends, errors, or hits the subscribe
// hard timeout.
type Session struct {
	ID        string
	CreatedAt time.Time

	rec    stt.Recognizer
	events chan Event

	mu         sync.Mutex
	closed     bool
	lastActive time.Time

	closeOnce sync.Once
	hardTimer *time.Timer
}

// Events returns the session's event stream.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// send queues an event, dropping it if the subscriber is slow or the
// session already closed.
func (s *Session) send(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}

// close delivers a terminal event and closes the channel exactly once.
func (s *Session) close(terminal *Event) {
	s.closeOnce.Do(func() {
		if s.hardTimer != nil {
			s.hardTimer.Stop()
		}
		s.mu.Lock()
		if terminal != nil {
			select {
			case s.events <- *terminal:
			default:
			}
		}
		s.closed = true
		close(s.events)
		s.mu.Unlock()
		_ = s.rec.Close()
	})
}

// RecognizerFactory builds a recognizer for a new session.
type RecognizerFactory func() stt.Recognizer

// Registry is the concurrent session map plus its idle sweeper.
type Registry struct {
	cfg     config.SessionConfig
	factory RecognizerFactory
	events  *bus.EventBus
	logger  zerolog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session

	sweepStop chan struct{}
	sweepOnce sync.Once
}

// NewRegistry creates a registry. events may be nil.
func NewRegistry(cfg config.SessionConfig, factory RecognizerFactory, events *bus.EventBus, logger zerolog.Logger) *Registry {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = 5 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	return &Registry{
		cfg:       cfg,
		factory:   factory,
		events:    events,
		logger:    logger.With().Str("component", "session").Logger(),
		now:       time.Now,
		sessions:  make(map[string]*Session),
		sweepStop: make(chan struct{}),
	}
}

// SetClock overrides the wall clock, used by tests.
func (r *Registry) SetClock(now func() time.Time) { r.now = now }

// Create opens a new recognition session and returns it. The session
// is force-closed after the subscribe hard timeout regardless of
// activity.
func (r *Registry) Create() (*Session, error) {
	id := uuid.NewString()
	sess := &Session{
		ID:        id,
		CreatedAt: r.now(),
		rec:       r.factory(),
		events:    make(chan Event, 64),
	}
	sess.lastActive = sess.CreatedAt

	err := sess.rec.Start(stt.Handlers{
		OnSegment: func(seg stt.Segment) {
			sess.touch(r.now())
			if seg.Final {
				sess.send(Event{Type: "transcript", Text: seg.Text})
			} else {
				sess.send(Event{Type: "partial", Text: seg.Text})
			}
		},
		OnError: func(err error) {
			if errors.Is(err, stt.ErrNoSpeech) {
				return
			}
			sess.send(Event{Type: "error", Error: err.Error()})
		},
		OnEnd: func() {
			r.remove(id)
			sess.close(&Event{Type: "end"})
		},
	})
	if err != nil {
		return nil, err
	}

	sess.hardTimer = time.AfterFunc(r.cfg.SubscribeTimeout, func() {
		r.logger.Warn().Str("session", id).Msg("Session hit hard timeout")
		r.remove(id)
		sess.close(&Event{Type: "end"})
	})

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	r.publish(bus.EventTypeSessionCreated, map[string]any{"id": id})
	r.logger.Info().Str("session", id).Msg("Session created")
	return sess, nil
}

// Get returns an existing session or ErrNotFound.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// PushAudio forwards one audio chunk into the session's recognizer.
func (r *Registry) PushAudio(id string, chunk []byte) error {
	sess, err := r.Get(id)
	if err != nil {
		return err
	}
	sess.touch(r.now())
	return sess.rec.SendAudio(chunk)
}

// Stop signals end-of-audio: pending results drain, then the session
// ends and its channel closes. Stop is terminal and idempotent;
// stopping an id that has already ended is a silent no-op.
func (r *Registry) Stop(id string) error {
	sess, err := r.Get(id)
	if err != nil {
		return nil
	}
	if err := sess.rec.Finish(); err != nil {
		r.remove(id)
		sess.close(&Event{Type: "end"})
	}
	return nil
}

// Close force-closes a session. Idempotent; closing an id that no
// longer exists is a silent no-op.
func (r *Registry) Close(id string) error {
	sess, err := r.Get(id)
	if err != nil {
		return nil
	}
	r.remove(id)
	sess.close(&Event{Type: "end"})
	return nil
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// StartSweeper reaps idle sessions periodically until StopSweeper.
func (r *Registry) StartSweeper() {
	go func() {
		ticker := time.NewTicker(r.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.sweepStop:
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

// StopSweeper halts the sweeper. Idempotent.
func (r *Registry) StopSweeper() {
	r.sweepOnce.Do(func() { close(r.sweepStop) })
}

func (r *Registry) sweep() {
	cutoff := r.now().Add(-r.cfg.IdleTimeout)

	r.mu.Lock()
	var stale []*Session
	for id, sess := range r.sessions {
		if sess.idleSince().Before(cutoff) {
			stale = append(stale, sess)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, sess := range stale {
		r.logger.Info().Str("session", sess.ID).Msg("Reaping idle session")
		sess.close(&Event{Type: "end"})
		r.publish(bus.EventTypeSessionClosed, map[string]any{"id": sess.ID, "reason": "idle"})
	}
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	_, existed := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if existed {
		r.publish(bus.EventTypeSessionClosed, map[string]any{"id": id})
	}
}

func (r *Registry) publish(t bus.EventType, data map[string]any) {
	if r.events != nil {
		r.events.Publish(bus.Event{Type: t, Data: data})
	}
}
