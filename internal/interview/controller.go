// Package interview implements the turn controller: the state machine
// that walks a candidate through role selection, device check, a
// spoken question/answer loop, and final feedback.
package interview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockview/mockview/internal/audio"
	"github.com/mockview/mockview/internal/bus"
	"github.com/mockview/mockview/internal/capture"
	"github.com/mockview/mockview/internal/config"
	"github.com/mockview/mockview/internal/llm"
)

const closingUtterance = "That was the last question. Thank you for your time; I'll prepare your feedback now."

// greeting opens the first question, naming the candidate and the
// number of questions ahead.
func greeting(name string, count int) string {
	if name == "" {
		name = "candidate"
	}
	return fmt.Sprintf("Hello %s, and welcome to your mock interview. I will ask you %d questions. Let's begin. ", name, count)
}

// Speaker is the speech output surface the controller drives.
type Speaker interface {
	Speak(text string, onComplete func()) error
	Stop()
}

// Capturer records one spoken answer per capture span.
type Capturer interface {
	Start(handlers capture.Handlers) error
	Stop()
}

// Generator produces questions and feedback.
type Generator interface {
	GenerateQuestions(ctx context.Context, role string, count int) ([]llm.Question, error)
	GenerateStream(ctx context.Context, prompt string, onChunk func(string)) (string, error)
}

// Controller is the turn controller. All exported methods are safe
// for concurrent use.
type Controller struct {
	speaker Speaker
	capture Capturer
	gen     Generator
	events  *bus.EventBus
	cfg     config.InterviewConfig
	logger  zerolog.Logger
	sleep   func(context.Context, time.Duration)
	check   *DeviceCheck

	levelHook func(audio.Level)

	mu         sync.Mutex
	screen     Screen
	turnState  TurnState
	candidate  string
	role       string
	agreed     bool
	turns      []Turn
	index      int // current question; saturates at len(turns)
	lastSpoken int // highest question index spoken, -1 initially
	stopAsked  bool
	closing    bool
	feedback   string
	lastError  string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController wires a controller at the welcome screen.
func NewController(sp Speaker, rec Capturer, gen Generator, events *bus.EventBus, cfg config.InterviewConfig, logger zerolog.Logger) *Controller {
	if cfg.QuestionCount <= 0 {
		cfg.QuestionCount = 10
	}
	if cfg.MicLevelThreshold <= 0 {
		cfg.MicLevelThreshold = 0.12
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		speaker:    sp,
		capture:    rec,
		gen:        gen,
		events:     events,
		cfg:        cfg,
		logger:     logger.With().Str("component", "interview").Logger(),
		sleep:      sleepCtx,
		check:      NewDeviceCheck(cfg.MicLevelThreshold, cfg.MicPassThreshold),
		screen:     ScreenWelcome,
		turnState:  TurnIdle,
		lastSpoken: -1,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetLevelHook registers a callback for voice-level ticks observed
// while listening to an answer. Call it before the interview starts.
func (c *Controller) SetLevelHook(fn func(audio.Level)) {
	c.mu.Lock()
	c.levelHook = fn
	c.mu.Unlock()
}

// Screen returns the current flow screen.
func (c *Controller) Screen() Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen
}

// TurnState returns the current turn state.
func (c *Controller) TurnState() TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turnState
}

// Turns returns a copy of the question/answer list.
func (c *Controller) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// CurrentIndex returns the active question index. It never exceeds
// the number of questions.
func (c *Controller) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Feedback returns the generated feedback text, empty until the
// feedback screen is reached.
func (c *Controller) Feedback() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feedback
}

// LastError returns the message of the most recent flow error, as the
// failing collaborator reported it.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Begin moves from the welcome screen to role selection.
func (c *Controller) Begin() {
	c.setScreen(ScreenWelcome, ScreenRoleSelection)
}

// SetCandidate records the candidate's name for the greeting.
func (c *Controller) SetCandidate(name string) {
	c.mu.Lock()
	c.candidate = name
	c.mu.Unlock()
}

// Acknowledge records that the candidate accepted the pre-interview
// notes. StartInterview requires it.
func (c *Controller) Acknowledge() {
	c.mu.Lock()
	c.agreed = true
	c.mu.Unlock()
}

// SelectRole records the role and moves to the device check.
func (c *Controller) SelectRole(role string) error {
	c.mu.Lock()
	if c.screen != ScreenRoleSelection {
		c.mu.Unlock()
		return fmt.Errorf("cannot select role from screen %q", c.screen)
	}
	c.role = role
	c.lastError = ""
	c.mu.Unlock()

	c.setScreen(ScreenRoleSelection, ScreenDeviceCheck)
	return nil
}

// DeviceCheckTick feeds one mic level sample from the device check
// screen. When both devices are ready the flow advances to the
// pre-interview notes.
func (c *Controller) DeviceCheckTick(level float64) {
	c.check.MicTick(level)
	if c.check.Passed() {
		c.DeviceCheckPassed()
	}
}

// SetCameraReady records camera readiness during the device check.
func (c *Controller) SetCameraReady(ready bool) {
	c.check.SetCameraReady(ready)
	if c.check.Passed() {
		c.DeviceCheckPassed()
	}
}

// DeviceCheckStatus reports mic and overall device-check readiness.
func (c *Controller) DeviceCheckStatus() (micPassed, passed bool) {
	return c.check.MicPassed(), c.check.Passed()
}

// DeviceCheckPassed moves past the device check to the pre-interview
// notes.
func (c *Controller) DeviceCheckPassed() {
	c.setScreen(ScreenDeviceCheck, ScreenPreNotes)
}

// StartInterview generates the question set and, on success, asks the
// first question. On failure the flow returns to role selection and
// LastError carries the generator's message verbatim.
func (c *Controller) StartInterview() error {
	c.mu.Lock()
	if c.screen != ScreenPreNotes {
		c.mu.Unlock()
		return fmt.Errorf("cannot start interview from screen %q", c.screen)
	}
	if !c.agreed {
		c.mu.Unlock()
		return fmt.Errorf("pre-interview notes not acknowledged")
	}
	role := c.role
	c.mu.Unlock()

	c.setScreen(ScreenPreNotes, ScreenGeneratingQuestions)

	go func() {
		questions, err := c.gen.GenerateQuestions(c.ctx, role, c.cfg.QuestionCount)
		if err != nil {
			c.logger.Error().Err(err).Msg("Question generation failed")
			c.mu.Lock()
			c.lastError = err.Error()
			c.screen = ScreenRoleSelection
			c.mu.Unlock()
			c.publishScreen(ScreenRoleSelection)
			return
		}

		c.mu.Lock()
		c.turns = make([]Turn, len(questions))
		for i, q := range questions {
			c.turns[i] = Turn{Question: q.Question, ExpectedAnswer: q.ExpectedAnswer}
		}
		c.index = 0
		c.lastSpoken = -1
		c.closing = false
		c.screen = ScreenInterviewing
		c.mu.Unlock()

		c.publishScreen(ScreenInterviewing)
		c.askCurrent()
	}()
	return nil
}

// askCurrent speaks the question at the current index. The last-spoken
// guard makes it idempotent: repeated calls for the same index speak
// once.
func (c *Controller) askCurrent() {
	c.mu.Lock()
	if c.screen != ScreenInterviewing || c.index >= len(c.turns) {
		c.mu.Unlock()
		return
	}
	if c.lastSpoken == c.index {
		c.mu.Unlock()
		return
	}
	idx := c.index
	c.lastSpoken = idx
	c.turnState = TurnAsking
	text := c.turns[idx].Question
	if idx == 0 {
		text = greeting(c.candidate, len(c.turns)) + text
	}
	c.mu.Unlock()

	c.publishTurnState(TurnAsking)
	c.publish(bus.EventTypeQuestionAsked, map[string]any{"index": idx})
	c.logger.Info().Int("index", idx).Msg("Asking question")

	if err := c.speaker.Speak(text, func() { c.listen(idx) }); err != nil {
		c.logger.Error().Err(err).Msg("Failed to speak question")
		// Speech never started; listen anyway so the turn can proceed.
		c.listen(idx)
	}
}

// listen opens the capture span for the answer to question idx, after
// the countdown.
func (c *Controller) listen(idx int) {
	c.mu.Lock()
	if c.screen != ScreenInterviewing || c.index != idx {
		c.mu.Unlock()
		return
	}
	c.turnState = TurnListening
	c.stopAsked = false
	c.mu.Unlock()

	c.publishTurnState(TurnListening)

	go func() {
		countdown := c.cfg.ListenCountdown
		for i := countdown; i > 0; i-- {
			c.publish(bus.EventTypeTurnStateChanged, map[string]any{"countdown": i})
			c.sleep(c.ctx, time.Second)
			if c.ctx.Err() != nil {
				return
			}
		}

		c.mu.Lock()
		stopAsked := c.stopAsked
		onLevel := c.levelHook
		c.mu.Unlock()

		// The candidate ended the turn during the countdown; skip the
		// capture span and record an empty answer.
		if stopAsked {
			c.answer(idx, "")
			return
		}

		err := c.capture.Start(capture.Handlers{
			OnTranscript: func(text string) { c.answer(idx, text) },
			OnLevel:      onLevel,
		})
		if err != nil {
			c.logger.Error().Err(err).Msg("Failed to start capture")
			c.answer(idx, "")
		}
	}()
}

// answer records the transcript for question idx and advances. A
// failed transcription arrives as an empty string and the interview
// still moves on. Stale completions for an index already advanced
// past are ignored.
func (c *Controller) answer(idx int, text string) {
	c.mu.Lock()
	if c.screen != ScreenInterviewing || c.index != idx {
		c.mu.Unlock()
		return
	}
	c.turns[idx].UserAnswer = text
	c.turnState = TurnProcessing

	// Saturating advance: the index never runs past the question list.
	if c.index < len(c.turns) {
		c.index++
	}
	done := c.index >= len(c.turns)
	c.mu.Unlock()

	c.publishTurnState(TurnProcessing)
	c.publish(bus.EventTypeAnswerRecorded, map[string]any{"index": idx, "length": len(text)})
	c.logger.Info().Int("index", idx).Int("length", len(text)).Msg("Answer recorded")

	if done {
		c.finishInterview()
		return
	}
	c.askCurrent()
}

// finishInterview speaks the closing utterance and starts feedback
// generation. Both happen at most once.
func (c *Controller) finishInterview() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.turnState = TurnIdle
	c.mu.Unlock()

	c.publishTurnState(TurnIdle)
	if err := c.speaker.Speak(closingUtterance, c.generateFeedback); err != nil {
		c.logger.Warn().Err(err).Msg("Closing utterance failed")
		c.generateFeedback()
	}
}

func (c *Controller) generateFeedback() {
	c.mu.Lock()
	if c.screen != ScreenInterviewing {
		c.mu.Unlock()
		return
	}
	c.screen = ScreenGeneratingFeedback
	role := c.role
	answers := make([]llm.Answer, len(c.turns))
	for i, t := range c.turns {
		answers[i] = llm.Answer{Question: t.Question, UserAnswer: t.UserAnswer}
	}
	c.mu.Unlock()

	c.publishScreen(ScreenGeneratingFeedback)

	go func() {
		text, err := c.gen.GenerateStream(c.ctx, llm.FeedbackPrompt(role, answers), func(chunk string) {
			c.publish(bus.EventTypeFeedbackChunk, map[string]any{"text": chunk})
		})
		if err != nil {
			c.logger.Error().Err(err).Msg("Feedback generation failed")
			c.mu.Lock()
			c.lastError = err.Error()
			c.mu.Unlock()
			if text == "" {
				text = "Feedback could not be generated for this session."
			}
		}

		c.mu.Lock()
		c.feedback = text
		c.screen = ScreenFeedbackDisplay
		c.mu.Unlock()
		c.publishScreen(ScreenFeedbackDisplay)
	}()
}

// StopAnswer ends the current listening turn early. The answer is
// whatever has been transcribed so far; during the countdown, before
// capture opens, it is empty. Outside of listening it does nothing.
func (c *Controller) StopAnswer() {
	c.mu.Lock()
	listening := c.turnState == TurnListening
	if listening {
		c.stopAsked = true
	}
	c.mu.Unlock()
	if !listening {
		return
	}
	c.capture.Stop()
}

// Stop aborts the flow: speech and capture halt and no further turn
// transitions occur.
func (c *Controller) Stop() {
	c.cancel()
	c.speaker.Stop()
	c.capture.Stop()
}

func (c *Controller) setScreen(from, to Screen) {
	c.mu.Lock()
	if c.screen != from {
		c.mu.Unlock()
		return
	}
	c.screen = to
	c.mu.Unlock()
	c.publishScreen(to)
}

func (c *Controller) publishScreen(s Screen) {
	c.publish(bus.EventTypeScreenChanged, map[string]any{"screen": string(s)})
}

func (c *Controller) publishTurnState(s TurnState) {
	c.publish(bus.EventTypeTurnStateChanged, map[string]any{"state": string(s)})
}

func (c *Controller) publish(t bus.EventType, data map[string]any) {
	if c.events != nil {
		c.events.Publish(bus.Event{Type: t, Data: data})
	}
}

func sleepCtx(ctx context.Context, dur time.Duration) {
	if dur <= 0 {
		return
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
