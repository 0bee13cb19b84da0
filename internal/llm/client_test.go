package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockview/mockview/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(config.LLMConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1",
		Model:   "gpt-4o-mini",
	}, zerolog.Nop())
	client.sleep = func(context.Context, time.Duration) {}
	return client, srv
}

func completionBody(content string) []byte {
	body, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	})
	return body
}

func TestGenerateSuccess(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionBody("a thoughtful answer"))
	})

	got, err := client.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "a thoughtful answer", got)
}

func TestGenerateRetriesExactlyThreeTimes(t *testing.T) {
	var requests int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusInternalServerError)
	})

	_, err := client.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
}

func TestGenerateRecoversOnSecondAttempt(t *testing.T) {
	var requests int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionBody("recovered"))
	})

	got, err := client.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestGenerateQuestionsParsesWrappedJSON(t *testing.T) {
	reply := "Sure, here are your questions:\n```json\n" +
		`{"questions":[{"question":"What is a goroutine?","expectedAnswer":"A lightweight thread managed by the Go runtime."}]}` +
		"\n```"
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionBody(reply))
	})

	questions, err := client.GenerateQuestions(context.Background(), "Backend Engineer", 1)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "What is a goroutine?", questions[0].Question)
	assert.NotEmpty(t, questions[0].ExpectedAnswer)
}

func TestGenerateQuestionsNoJSON(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionBody("I cannot help with that."))
	})

	_, err := client.GenerateQuestions(context.Background(), "Backend Engineer", 1)
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestExtractJSONBlock(t *testing.T) {
	block, err := extractJSONBlock(`prose {"a":1} trailing`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, block)

	_, err = extractJSONBlock("no json here")
	assert.ErrorIs(t, err, ErrNoJSON)

	block, err = extractJSONBlock(`{"outer":{"inner":2}}`)
	require.NoError(t, err)
	assert.Equal(t, `{"outer":{"inner":2}}`, block)
}

func TestFeedbackPromptIncludesAnswers(t *testing.T) {
	prompt := FeedbackPrompt("Data Engineer", []Answer{
		{Question: "Explain ETL.", UserAnswer: "Extract, transform, load."},
		{Question: "What is a DAG?", UserAnswer: ""},
	})

	assert.Contains(t, prompt, "Data Engineer")
	assert.Contains(t, prompt, "Explain ETL.")
	assert.Contains(t, prompt, "Extract, transform, load.")
	assert.Contains(t, prompt, "(no answer given)")
}
