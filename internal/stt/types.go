// Package stt provides streaming speech-to-text recognition.
package stt

import "errors"

// Errors returned by recognizers.
var (
	// ErrNoSpeech means recognition ended without hearing anything.
	// Callers treat it as a benign outcome, not a failure.
	ErrNoSpeech = errors.New("no speech detected")

	// ErrNotConnected means audio was sent before Start or after Close.
	ErrNotConnected = errors.New("recognizer not connected")
)

// Segment is one piece of recognized speech. Interim segments revise
// each other; a final segment is stable and will not change.
type Segment struct {
	Text       string  `json:"text"`
	Final      bool    `json:"final"`
	Confidence float64 `json:"confidence"`
}

// Handlers receive recognition output. All callbacks are invoked from
// the recognizer's read goroutine; OnEnd fires exactly once after the
// last segment, whether the stream ended cleanly or not.
type Handlers struct {
	OnSegment func(Segment)
	OnError   func(error)
	OnEnd     func()
}

// Recognizer is a continuous speech recognition session. One session
// handles one capture span: Start, a stream of SendAudio calls, then
// Finish (drain pending results) or Close (abandon).
type Recognizer interface {
	Start(handlers Handlers) error
	SendAudio(chunk []byte) error
	Finish() error
	Close() error
}
