package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// handleEvents streams a session's recognition events as SSE until
// the session's channel closes.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	sess, err := s.deps.Registry.Get(c.Params("id"))
	if err != nil {
		return s.sessionError(err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	events := sess.Events()
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		for ev := range events {
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			if err := w.Flush(); err != nil {
				// Subscriber went away; drain nothing further.
				return
			}
		}
	}))
	return nil
}

// SSEEvent is one parsed server-sent event.
type SSEEvent struct {
	Event string
	Data  string
}

// ReadSSE parses a server-sent event stream, invoking handle for each
// event until the stream ends. Used by clients and tests.
func ReadSSE(r io.Reader, handle func(SSEEvent)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var current SSEEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if current.Data != "" {
				handle(current)
			}
			current = SSEEvent{}
		case strings.HasPrefix(line, "event:"):
			current.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if current.Data != "" {
				current.Data += "\n"
			}
			current.Data += data
		}
	}
	if current.Data != "" {
		handle(current)
	}
	return scanner.Err()
}
