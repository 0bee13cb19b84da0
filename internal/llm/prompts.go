package llm

import (
	"fmt"
	"strings"
)

// Answer pairs a question with what the candidate said.
type Answer struct {
	Question   string
	UserAnswer string
}

// QuestionsPrompt builds the prompt for generating an interview
// question set for a role.
func QuestionsPrompt(role string, count int) string {
	return fmt.Sprintf(`You are an experienced technical interviewer. Generate %d spoken interview questions for a candidate applying for the role of %s.

Questions should be answerable verbally in one to two minutes, ordered from warm-up to harder, and must not require writing code.

Respond with only a JSON object in this exact shape:
{"questions":[{"question":"...","expectedAnswer":"a concise model answer"}]}`, count, role)
}

// FeedbackPrompt builds the prompt for end-of-interview feedback from
// the recorded answers.
func FeedbackPrompt(role string, answers []Answer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an experienced interviewer who just finished a mock interview for the role of %s. Review the transcript and give the candidate constructive feedback.\n\n", role)

	for i, a := range answers {
		fmt.Fprintf(&b, "Q%d: %s\n", i+1, a.Question)
		answer := a.UserAnswer
		if strings.TrimSpace(answer) == "" {
			answer = "(no answer given)"
		}
		fmt.Fprintf(&b, "A%d: %s\n\n", i+1, answer)
	}

	b.WriteString("Give overall feedback in plain prose: strengths first, then specific areas to improve, then one concrete suggestion per weak answer. Keep it encouraging and under 400 words.")
	return b.String()
}
