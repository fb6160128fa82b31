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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"
	sseretry "gopkg.in/cenkalti/backoff.v1"

	"github.com/teradata-labs/promptmgr/pkg/prompts"
)

// Default HTTP source settings.
const (
	DefaultHTTPTimeout    = 10 * time.Second
	DefaultHTTPMaxRetries = 3
)

// HTTPSource fetches prompts from a REST service:
//
//	GET {base_url}/prompts/{id}?version={version}
//
// JSON responses are decoded like local JSON files (option or param "field",
// default "prompt"); any other content type is returned as trimmed text.
// Bodies with Content-Encoding zstd are decompressed.
//
// Options:
//   - events_url: SSE endpoint announcing prompt changes, enables Watch
//   - compression: "zstd" to advertise zstd support
//   - field: default document field
type HTTPSource struct {
	baseURL     string
	apiKey      string
	eventsURL   string
	field       string
	acceptZstd  bool
	maxRetries  int
	httpClient  *http.Client
	logger      *zap.Logger
	retryPeriod time.Duration
}

// NewHTTPSource creates the source. BaseURL is required.
func NewHTTPSource(cfg prompts.SourceConfig, o Options) (*HTTPSource, error) {
	if cfg.BaseURL == "" {
		return nil, &prompts.ConfigError{Field: "base_url", Reason: "http source requires base_url"}
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, &prompts.ConfigError{Field: "base_url", Reason: err.Error()}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultHTTPMaxRetries
	}

	s := &HTTPSource{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		eventsURL:   cfg.Option("events_url", ""),
		field:       cfg.Option("field", ""),
		acceptZstd:  strings.EqualFold(cfg.Option("compression", ""), "zstd"),
		maxRetries:  cfg.MaxRetries,
		httpClient:  o.HTTPClient,
		logger:      o.Logger,
		retryPeriod: 500 * time.Millisecond,
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if v := cfg.Option("retry_interval", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, &prompts.ConfigError{Field: "options.retry_interval", Reason: fmt.Sprintf("must be a positive duration, got %q", v)}
		}
		s.retryPeriod = d
	}
	return s, nil
}

// ValidateParams requires an id.
func (s *HTTPSource) ValidateParams(params prompts.Params) error {
	_, err := requireParam(params, "id")
	return err
}

// Fetch retrieves one prompt, retrying 5xx responses and transport errors.
func (s *HTTPSource) Fetch(ctx context.Context, params prompts.Params) (string, error) {
	id, err := requireParam(params, "id")
	if err != nil {
		return "", err
	}

	endpoint := s.baseURL + "/prompts/" + url.PathEscape(id)
	if v := params.Get("version"); v != "" {
		endpoint += "?" + url.Values{"version": {v}}.Encode()
	}
	field := params.Get("field")
	if field == "" {
		field = s.field
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryPeriod

	return backoff.Retry(ctx, func() (string, error) {
		return s.fetchOnce(ctx, endpoint, id, field)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.maxRetries)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.logger.Warn("prompt request failed, retrying", zap.String("id", id), zap.Duration("wait", wait), zap.Error(err))
		}))
}

func (s *HTTPSource) fetchOnce(ctx context.Context, endpoint, id, field string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json, text/plain;q=0.9, */*;q=0.5")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	if s.acceptZstd {
		req.Header.Set("Accept-Encoding", "zstd")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return "", backoff.Permanent(notFound("prompt %s", id))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("prompt service error (status %d)", resp.StatusCode)
	default:
		return "", backoff.Permanent(fmt.Errorf("prompt service error (status %d): %s", resp.StatusCode, apiErrorMessage(body)))
	}

	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "zstd") || isZstdFrame(body) {
		if body, err = zstdDecoder.DecodeAll(body, nil); err != nil {
			return "", backoff.Permanent(fmt.Errorf("failed to decompress response: %w", err))
		}
	}

	format := FormatText
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		switch {
		case mt == "application/json" || strings.HasSuffix(mt, "+json"):
			format = FormatJSON
		case strings.Contains(mt, "yaml"):
			format = FormatYAML
		case mt == "text/markdown":
			format = FormatMarkdown
		}
	}

	text, err := decodeDocument(body, format, field)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	return text, nil
}

// changeEvent is the payload of an SSE change notification.
type changeEvent struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

// Watch subscribes to the events_url SSE stream.
func (s *HTTPSource) Watch(ctx context.Context) (<-chan prompts.Change, error) {
	if s.eventsURL == "" {
		return nil, notConfigured("http source needs options.events_url to watch")
	}

	client := sse.NewClient(s.eventsURL)
	if s.apiKey != "" {
		client.Headers["Authorization"] = "Bearer " + s.apiKey
	}
	// Reconnects stop once ctx is done.
	client.ReconnectStrategy = sseretry.WithContext(sseretry.NewExponentialBackOff(), ctx)
	client.OnDisconnect(func(c *sse.Client) {
		s.logger.Warn("prompt event stream disconnected", zap.String("url", s.eventsURL))
	})

	ch := make(chan prompts.Change, 10)
	go func() {
		defer close(ch)

		err := client.SubscribeWithContext(ctx, "", func(msg *sse.Event) {
			change := parseChangeEvent(msg)
			select {
			case ch <- change:
			case <-ctx.Done():
			}
		})
		if err != nil && ctx.Err() == nil {
			s.logger.Warn("prompt event subscription ended", zap.String("url", s.eventsURL), zap.Error(err))
			select {
			case ch <- prompts.Change{Action: "error", Err: err, Timestamp: time.Now()}:
			case <-ctx.Done():
			}
		}
	}()

	s.logger.Debug("subscribed to prompt events", zap.String("url", s.eventsURL))
	return ch, nil
}

func parseChangeEvent(msg *sse.Event) prompts.Change {
	change := prompts.Change{Action: "modified", Timestamp: time.Now()}
	if e := string(msg.Event); e != "" && e != "message" {
		change.Action = e
	}

	var ev changeEvent
	if err := json.Unmarshal(msg.Data, &ev); err == nil {
		change.Key = ev.ID
		if ev.Action != "" {
			change.Action = ev.Action
		}
	} else {
		change.Key = strings.TrimSpace(string(msg.Data))
	}
	return change
}
