package proctor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPAnalyzer sends camera frames to an external vision service for
// violation screening.
type HTTPAnalyzer struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPAnalyzer creates an analyzer against the given endpoint.
func NewHTTPAnalyzer(url string, logger zerolog.Logger) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger.With().Str("component", "proctor").Str("provider", "vision").Logger(),
	}
}

type analyzeRequest struct {
	Image string `json:"image"` // base64-encoded JPEG
}

type analyzeResponse struct {
	Violations []Finding `json:"violations"`
}

// Analyze posts the frame and returns the service's findings.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, frame []byte) ([]Finding, error) {
	body, err := json.Marshal(analyzeRequest{
		Image: base64.StdEncoding.EncodeToString(frame),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("frame analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("frame analysis returned status %d", resp.StatusCode)
	}

	var parsed analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}
	return parsed.Violations, nil
}
