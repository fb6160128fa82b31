// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teradata-labs/promptmgr/pkg/prompts"
)

// Default OpenAI source settings.
// The API key falls back to the OPENAI_API_KEY environment variable.
const (
	DefaultOpenAIBaseURL    = "https://api.openai.com/v1"
	DefaultOpenAITimeout    = 30 * time.Second
	DefaultOpenAIMaxRetries = 3
)

// OpenAISource fetches hosted prompts through the Responses API.
//
// Params: id (alias prompt_id, required), version.
// Options: requests_per_second (client-side rate limit, default unlimited).
type OpenAISource struct {
	apiKey     string
	baseURL    string
	maxRetries int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	// initialInterval is the first retry delay; doubled on every attempt.
	initialInterval time.Duration
}

// NewOpenAISource creates the source. A missing API key is reported on fetch.
func NewOpenAISource(cfg prompts.SourceConfig, o Options) (*OpenAISource, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOpenAITimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultOpenAIMaxRetries
	}

	s := &OpenAISource{
		apiKey:          cfg.APIKey,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries:      cfg.MaxRetries,
		httpClient:      o.HTTPClient,
		logger:          o.Logger,
		initialInterval: time.Second,
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	if v := cfg.Option("requests_per_second", ""); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps <= 0 {
			return nil, &prompts.ConfigError{Field: "options.requests_per_second", Reason: fmt.Sprintf("must be a positive number, got %q", v)}
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	if v := cfg.Option("retry_interval", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, &prompts.ConfigError{Field: "options.retry_interval", Reason: fmt.Sprintf("must be a positive duration, got %q", v)}
		}
		s.initialInterval = d
	}
	return s, nil
}

// ValidateParams requires an id and an API key.
func (s *OpenAISource) ValidateParams(params prompts.Params) error {
	if _, err := requireParam(params, "id", "prompt_id"); err != nil {
		return err
	}
	if s.apiKey == "" {
		return notConfigured("OpenAI API key not set (PROMPT_MANAGER_OPENAI_API_KEY or OPENAI_API_KEY)")
	}
	return nil
}

type responsesRequest struct {
	Prompt promptReference `json:"prompt"`
}

type promptReference struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

// Fetch retrieves the prompt text, retrying rate limits, server errors and
// transport failures with exponential backoff.
func (s *OpenAISource) Fetch(ctx context.Context, params prompts.Params) (string, error) {
	if err := s.ValidateParams(params); err != nil {
		return "", err
	}
	ref := promptReference{ID: params.Get("id", "prompt_id"), Version: params.Get("version")}

	body, err := json.Marshal(responsesRequest{Prompt: ref})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialInterval
	b.Multiplier = 2

	attempt := 0
	operation := func() (string, error) {
		attempt++
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return "", backoff.Permanent(err)
			}
		}
		return s.fetchOnce(ctx, ref, body)
	}

	text, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.maxRetries)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.logger.Warn("OpenAI prompt request failed, retrying",
				zap.String("prompt_id", ref.ID),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		}))
	if err != nil {
		return "", err
	}
	return text, nil
}

// fetchOnce performs one request. Errors that must not be retried are
// wrapped with backoff.Permanent.
func (s *OpenAISource) fetchOnce(ctx context.Context, ref promptReference, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("X-Client-Request-Id", uuid.NewString())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return "", backoff.Permanent(notFound("OpenAI prompt %s", ref.ID))
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr := fmt.Errorf("OpenAI rate limit exceeded: %s", apiErrorMessage(respBody))
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return "", errors.Join(apiErr, backoff.RetryAfter(secs))
		}
		return "", apiErr
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("OpenAI server error (status %d): %s", resp.StatusCode, apiErrorMessage(respBody))
	default:
		return "", backoff.Permanent(fmt.Errorf("OpenAI API error (status %d): %s", resp.StatusCode, apiErrorMessage(respBody)))
	}

	text, err := extractResponseText(respBody)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	if strings.TrimSpace(text) == "" {
		return "", backoff.Permanent(notFound("OpenAI prompt %s has empty content", ref.ID))
	}
	return text, nil
}

// extractResponseText reads instructions[0].content[0].text, falling back to
// a string "instructions", then "content", "text" and "output_text".
func extractResponseText(body []byte) (string, error) {
	var resp struct {
		Instructions json.RawMessage `json:"instructions"`
		Content      json.RawMessage `json:"content"`
		Text         json.RawMessage `json:"text"`
		OutputText   string          `json:"output_text"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse OpenAI response: %w", err)
	}

	if text := instructionText(resp.Instructions); text != "" {
		return text, nil
	}
	for _, raw := range []json.RawMessage{resp.Content, resp.Text} {
		var s string
		if len(raw) > 0 && json.Unmarshal(raw, &s) == nil && s != "" {
			return s, nil
		}
	}
	if resp.OutputText != "" {
		return resp.OutputText, nil
	}
	return "", errors.New("failed to parse OpenAI response: unexpected response structure")
}

func instructionText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	var messages []struct {
		Content json.RawMessage `json:"content"`
	}
	if json.Unmarshal(raw, &messages) != nil || len(messages) == 0 {
		return ""
	}
	content := messages[0].Content
	if json.Unmarshal(content, &s) == nil {
		return s
	}
	var parts []struct {
		Text string `json:"text"`
	}
	if json.Unmarshal(content, &parts) != nil || len(parts) == 0 {
		return ""
	}
	return parts[0].Text
}

// apiErrorMessage extracts error.message from an API error body.
func apiErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
