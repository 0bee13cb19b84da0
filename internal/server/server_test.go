package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockview/mockview/internal/config"
	"github.com/mockview/mockview/internal/session"
	"github.com/mockview/mockview/internal/stt"
)

type fakeRecognizer struct {
	mu       sync.Mutex
	handlers stt.Handlers
	chunks   int
}

func (f *fakeRecognizer) Start(h stt.Handlers) error {
	f.mu.Lock()
	f.handlers = h
	f.mu.Unlock()
	return nil
}

func (f *fakeRecognizer) SendAudio(chunk []byte) error {
	f.mu.Lock()
	f.chunks++
	f.mu.Unlock()
	return nil
}

func (f *fakeRecognizer) Finish() error {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	if h.OnEnd != nil {
		h.OnEnd()
	}
	return nil
}

func (f *fakeRecognizer) Close() error { return nil }

func (f *fakeRecognizer) chunkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunks
}

func newTestServer(t *testing.T) (*Server, *fakeRecognizer) {
	t.Helper()
	rec := &fakeRecognizer{}
	registry := session.NewRegistry(config.SessionConfig{
		IdleTimeout:      time.Minute,
		SubscribeTimeout: time.Minute,
		SweepInterval:    time.Minute,
	}, func() stt.Recognizer { return rec }, nil, zerolog.Nop())

	srv := New(config.ServerConfig{Addr: ":0"}, Deps{Registry: registry}, zerolog.Nop())
	return srv, rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestViolationsEmptyWithoutMonitor(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/proctor/violations", nil)
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(body))
}

func TestUnknownSessionReturns404(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/stt/deadbeef/chunk", bytes.NewReader([]byte{1, 2}))
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Stop is terminal and idempotent: an id that no longer exists is
	// a silent no-op.
	req = httptest.NewRequest(http.MethodPost, "/api/stt/deadbeef/stop", nil)
	resp, err = srv.App().Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestSessionRoundTrip(t *testing.T) {
	srv, rec := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/stt/start", nil)
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ID)

	chunkReq := httptest.NewRequest(http.MethodPost, "/api/stt/"+created.ID+"/chunk", bytes.NewReader(make([]byte, 320)))
	chunkResp, err := srv.App().Test(chunkReq)
	require.NoError(t, err)
	chunkResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, chunkResp.StatusCode)
	assert.Equal(t, 1, rec.chunkCount())

	stopReq := httptest.NewRequest(http.MethodPost, "/api/stt/"+created.ID+"/stop", nil)
	stopResp, err := srv.App().Test(stopReq)
	require.NoError(t, err)
	stopResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, stopResp.StatusCode)
}

func TestEmptyChunkRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/stt/start", nil)
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	chunkReq := httptest.NewRequest(http.MethodPost, "/api/stt/"+created.ID+"/chunk", nil)
	chunkResp, err := srv.App().Test(chunkReq)
	require.NoError(t, err)
	chunkResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, chunkResp.StatusCode)
}

func TestInterviewRoutesAbsentWithoutController(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/interview/state", nil)
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReadSSE(t *testing.T) {
	stream := "event: partial\ndata: {\"type\":\"partial\",\"text\":\"hel\"}\n\n" +
		"event: transcript\ndata: {\"type\":\"transcript\",\"text\":\"hello\"}\n\n" +
		"event: end\ndata: {\"type\":\"end\"}\n\n"

	var events []SSEEvent
	err := ReadSSE(strings.NewReader(stream), func(ev SSEEvent) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "partial", events[0].Event)
	assert.Contains(t, events[1].Data, "hello")
	assert.Equal(t, "end", events[2].Event)
}

func TestReadSSEMultilineData(t *testing.T) {
	stream := "data: line one\ndata: line two\n\n"

	var events []SSEEvent
	require.NoError(t, ReadSSE(strings.NewReader(stream), func(ev SSEEvent) {
		events = append(events, ev)
	}))
	require.Len(t, events, 1)
	assert.Equal(t, "line one\nline two", events[0].Data)
}
