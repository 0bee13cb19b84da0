package interview

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TranscriptExport is the JSON export of a finished interview.
type TranscriptExport struct {
	Role       string    `json:"role"`
	ExportedAt time.Time `json:"exportedAt"`
	Turns      []Turn    `json:"turns"`
	Feedback   string    `json:"feedback,omitempty"`
}

// ExportJSON returns the interview transcript as indented JSON.
func (c *Controller) ExportJSON() ([]byte, error) {
	c.mu.Lock()
	export := TranscriptExport{
		Role:       c.role,
		ExportedAt: time.Now(),
		Turns:      make([]Turn, len(c.turns)),
		Feedback:   c.feedback,
	}
	copy(export.Turns, c.turns)
	c.mu.Unlock()

	return json.MarshalIndent(export, "", "  ")
}

// ExportText returns the interview transcript as plain text.
func (c *Controller) ExportText() string {
	c.mu.Lock()
	role := c.role
	turns := make([]Turn, len(c.turns))
	copy(turns, c.turns)
	feedback := c.feedback
	c.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Mock Interview Transcript\nRole: %s\n\n", role)
	for i, t := range turns {
		fmt.Fprintf(&b, "Q%d: %s\n", i+1, t.Question)
		answer := t.UserAnswer
		if strings.TrimSpace(answer) == "" {
			answer = "(no answer)"
		}
		fmt.Fprintf(&b, "A%d: %s\n\n", i+1, answer)
	}
	if feedback != "" {
		fmt.Fprintf(&b, "Feedback:\n%s\n", feedback)
	}
	return b.String()
}
