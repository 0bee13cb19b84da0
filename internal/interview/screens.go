package interview

// Screen identifies the current step of the interview flow.
type Screen string

const (
	ScreenWelcome             Screen = "welcome"
	ScreenRoleSelection       Screen = "role_selection"
	ScreenDeviceCheck         Screen = "device_check"
	ScreenPreNotes            Screen = "pre_notes"
	ScreenGeneratingQuestions Screen = "generating_questions"
	ScreenInterviewing        Screen = "interviewing"
	ScreenGeneratingFeedback  Screen = "generating_feedback"
	ScreenFeedbackDisplay     Screen = "feedback_display"
)

// TurnState identifies where the current question/answer turn stands.
type TurnState string

const (
	TurnIdle       TurnState = "idle"
	TurnAsking     TurnState = "asking_question"
	TurnListening  TurnState = "listening_to_answer"
	TurnProcessing TurnState = "processing_answer"
)

// Turn is one question/answer pair.
type Turn struct {
	Question       string `json:"question"`
	ExpectedAnswer string `json:"expectedAnswer"`
	UserAnswer     string `json:"userAnswer"`
}
