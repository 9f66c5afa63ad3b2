package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/utils"
)

const (
	defaultMaxRetries = 10
	defaultRetryDelay = time.Second
	defaultTimeout    = 2 * time.Minute
)

// ErrExhaustedRetries is returned when every attempt hit a rate limit.
var ErrExhaustedRetries = errors.New("maximum retries exceeded, could not complete the request")

// ErrResponseShape is returned when a successful response does not carry the
// expected candidates/content/parts envelope.
var ErrResponseShape = errors.New("unexpected response structure")

// UpstreamError carries a terminal non-2xx, non-429 response from the API.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.StatusCode, e.Body)
}

// Config configures the generative API client. Endpoint and APIKey are
// required, everything else has defaults matching the service limits.
type Config struct {
	Endpoint    string
	APIKey      string
	Temperature float64
	MaxRetries  int
	RetryDelay  time.Duration
	Timeout     time.Duration
}

// Client sends prompts to a Gemini-style generateContent endpoint. Requests
// that hit a rate limit are retried with a fixed delay; any other failure is
// terminal for the attempt.
type Client struct {
	endpoint    string
	apiKey      string
	temperature float64
	maxRetries  int
	retryDelay  time.Duration
	httpClient  *http.Client
	logger      *zap.Logger
}

type request struct {
	GenerationConfig generationConfig `json:"generation_config"`
	Contents         []content        `json:"contents"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type response struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("gemini endpoint is required")
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		endpoint:    endpoint,
		apiKey:      apiKey,
		temperature: cfg.Temperature,
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}, nil
}

// Generate sends the prompt and returns the first candidate's text with the
// markdown emphasis marker stripped. Rate-limited attempts are repeated up to
// the configured maximum before failing with ErrExhaustedRetries.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(request{
		GenerationConfig: generationConfig{Temperature: c.temperature},
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		text, retryable, err := c.attempt(ctx, body)
		if err == nil {
			return text, nil
		}

		if !retryable {
			return "", err
		}

		c.logger.Debug("rate limited by the api",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", c.maxRetries),
			zap.Duration("delay", c.retryDelay),
		)

		if err := utils.WaitFor(ctx, c.retryDelay); err != nil {
			return "", err
		}
	}

	return "", ErrExhaustedRetries
}

// attempt performs a single request. The second return value reports whether
// the failure was a rate limit and the call may be retried.
func (c *Client) attempt(ctx context.Context, body []byte) (string, bool, error) {
	url := fmt.Sprintf("%s?key=%s", c.endpoint, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", true, errors.New("rate limited")
	case resp.StatusCode != http.StatusOK:
		return "", false, &UpstreamError{StatusCode: resp.StatusCode, Body: string(payload)}
	}

	var parsed response
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrResponseShape, err)
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", false, ErrResponseShape
	}

	text := parsed.Candidates[0].Content.Parts[0].Text

	// The model decorates answers with markdown emphasis. Strip it for
	// plain-text reports.
	return strings.ReplaceAll(text, "*", ""), false, nil
}
