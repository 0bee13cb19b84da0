package stt

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mockview/mockview/internal/config"
)

const defaultStreamURL = "wss://api.deepgram.com/v1/listen"

// StreamingRecognizer is a websocket streaming recognizer backed by
// Deepgram's live transcription API. One instance serves one capture
// span; create a new one for each Start.
type StreamingRecognizer struct {
	cfg       config.STTConfig
	streamURL string
	logger    zerolog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers Handlers
	started  bool
	closed   bool
	sawText  bool
	ended    bool

	done chan struct{}
}

// deepgramResult is the subset of the live API response we consume.
type deepgramResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// NewStreamingRecognizer builds a recognizer from config. The API key
// falls back to the DEEPGRAM_API_KEY environment variable.
func NewStreamingRecognizer(cfg config.STTConfig, logger zerolog.Logger) *StreamingRecognizer {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	return &StreamingRecognizer{
		cfg:       cfg,
		streamURL: defaultStreamURL,
		logger:    logger.With().Str("component", "stt").Str("provider", "deepgram").Logger(),
		done:      make(chan struct{}),
	}
}

// SetStreamURL overrides the websocket endpoint, used by tests.
func (r *StreamingRecognizer) SetStreamURL(u string) { r.streamURL = u }

// Start opens the websocket and begins the read loop.
func (r *StreamingRecognizer) Start(handlers Handlers) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("recognizer already started")
	}

	q := url.Values{}
	q.Set("model", r.cfg.Model)
	q.Set("language", r.cfg.Language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(r.cfg.SampleRate))
	q.Set("interim_results", strconv.FormatBool(r.cfg.InterimResults))

	header := http.Header{}
	if r.cfg.APIKey != "" {
		header.Set("Authorization", "Token "+r.cfg.APIKey)
	}

	conn, _, err := websocket.DefaultDialer.Dial(r.streamURL+"?"+q.Encode(), header)
	if err != nil {
		return fmt.Errorf("failed to connect to speech service: %w", err)
	}

	r.conn = conn
	r.handlers = handlers
	r.started = true

	go r.readLoop(conn)
	go r.keepAlive(conn)

	r.logger.Info().Str("model", r.cfg.Model).Msg("Streaming recognition started")
	return nil
}

// SendAudio forwards one chunk of PCM to the service.
func (r *StreamingRecognizer) SendAudio(chunk []byte) error {
	r.mu.Lock()
	conn := r.conn
	closed := r.closed
	r.mu.Unlock()

	if conn == nil || closed {
		return ErrNotConnected
	}
	return conn.WriteMessage(websocket.BinaryMessage, chunk)
}

// Finish tells the service no more audio is coming. Pending results
// still arrive; OnEnd fires when the stream drains.
func (r *StreamingRecognizer) Finish() error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteJSON(map[string]string{"type": "CloseStream"})
}

// Close tears the connection down immediately. Idempotent.
func (r *StreamingRecognizer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	conn := r.conn
	r.mu.Unlock()

	close(r.done)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (r *StreamingRecognizer) readLoop(conn *websocket.Conn) {
	defer r.end()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			closed := r.closed
			h := r.handlers
			r.mu.Unlock()
			if !closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure) && h.OnError != nil {
				h.OnError(fmt.Errorf("speech stream read failed: %w", err))
			}
			return
		}

		var result deepgramResult
		if err := json.Unmarshal(data, &result); err != nil {
			r.logger.Warn().Err(err).Msg("Unparseable message from speech service")
			continue
		}
		if result.Type != "Results" || len(result.Channel.Alternatives) == 0 {
			continue
		}

		alt := result.Channel.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}

		r.mu.Lock()
		r.sawText = true
		h := r.handlers
		r.mu.Unlock()

		if h.OnSegment != nil {
			h.OnSegment(Segment{
				Text:       alt.Transcript,
				Final:      result.IsFinal,
				Confidence: alt.Confidence,
			})
		}
	}
}

// end fires OnEnd exactly once when the read loop exits.
func (r *StreamingRecognizer) end() {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return
	}
	r.ended = true
	h := r.handlers
	sawText := r.sawText
	r.mu.Unlock()

	if !sawText && h.OnError != nil {
		h.OnError(ErrNoSpeech)
	}
	if h.OnEnd != nil {
		h.OnEnd()
	}
}

// keepAlive pings the service so long silences don't drop the socket.
func (r *StreamingRecognizer) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]string{"type": "KeepAlive"}); err != nil {
				return
			}
		}
	}
}
