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
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/promptmgr/pkg/prompts"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc, opts map[string]string) *OpenAISource {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	if opts == nil {
		opts = map[string]string{}
	}
	if _, ok := opts["retry_interval"]; !ok {
		opts["retry_interval"] = "1ms"
	}
	s, err := NewOpenAISource(prompts.SourceConfig{
		APIKey:     "sk-test",
		BaseURL:    server.URL + "/v1",
		MaxRetries: 3,
		Options:    opts,
	}, Options{})
	require.NoError(t, err)
	return s
}

func TestOpenAISource_Fetch(t *testing.T) {
	var gotBody map[string]map[string]string
	s := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/responses", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Client-Request-Id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "resp_1",
			"instructions": [{"type": "message", "role": "developer", "content": [{"type": "input_text", "text": "You are {role}."}]}]
		}`))
	}, nil)

	got, err := s.Fetch(context.Background(), prompts.Params{"prompt_id": "pmpt_123", "version": "2"})
	require.NoError(t, err)
	assert.Equal(t, "You are {role}.", got)
	assert.Equal(t, map[string]string{"id": "pmpt_123", "version": "2"}, gotBody["prompt"])
}

func TestExtractResponseText(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
		wantErr  bool
	}{
		{"instructions parts", `{"instructions":[{"content":[{"text":"A"}]}]}`, "A", false},
		{"instructions string content", `{"instructions":[{"content":"B"}]}`, "B", false},
		{"instructions string", `{"instructions":"C"}`, "C", false},
		{"content fallback", `{"content":"D"}`, "D", false},
		{"text fallback", `{"text":"E"}`, "E", false},
		{"output_text fallback", `{"output_text":"F"}`, "F", false},
		{"unexpected shape", `{"other":1}`, "", true},
		{"invalid json", `nope`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractResponseText([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestOpenAISource_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	s := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"instructions":"finally"}`))
	}, nil)

	got, err := s.Fetch(context.Background(), prompts.Params{"id": "pmpt_1"})
	require.NoError(t, err)
	assert.Equal(t, "finally", got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAISource_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	s := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, nil)

	_, err := s.Fetch(context.Background(), prompts.Params{"id": "pmpt_1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAISource_NotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	s := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"No prompt found"}}`))
	}, nil)

	_, err := s.Fetch(context.Background(), prompts.Params{"id": "pmpt_missing"})
	assert.ErrorIs(t, err, prompts.ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAISource_AuthErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	s := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	}, nil)

	_, err := s.Fetch(context.Background(), prompts.Params{"id": "pmpt_1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect API key provided")
	assert.NotContains(t, err.Error(), "sk-test")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAISource_EmptyContentIsNotFound(t *testing.T) {
	s := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"instructions":"   "}`))
	}, nil)

	_, err := s.Fetch(context.Background(), prompts.Params{"id": "pmpt_1"})
	assert.ErrorIs(t, err, prompts.ErrNotFound)
}

func TestOpenAISource_MissingKeyAndParams(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	s, err := NewOpenAISource(prompts.SourceConfig{}, Options{})
	require.NoError(t, err)

	err = s.ValidateParams(prompts.Params{"id": "pmpt_1"})
	assert.ErrorIs(t, err, prompts.ErrSourceNotConfigured)

	_, err = s.Fetch(context.Background(), prompts.Params{"id": "pmpt_1"})
	assert.ErrorIs(t, err, prompts.ErrSourceNotConfigured)

	err = s.ValidateParams(prompts.Params{})
	assert.ErrorContains(t, err, `"id"`)
}

func TestOpenAISource_EnvKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	s, err := NewOpenAISource(prompts.SourceConfig{}, Options{})
	require.NoError(t, err)
	assert.NoError(t, s.ValidateParams(prompts.Params{"id": "pmpt_1"}))
}

func TestNewOpenAISource_InvalidOptions(t *testing.T) {
	_, err := NewOpenAISource(prompts.SourceConfig{Options: map[string]string{"requests_per_second": "-1"}}, Options{})
	var cfgErr *prompts.ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = NewOpenAISource(prompts.SourceConfig{Options: map[string]string{"retry_interval": "soon"}}, Options{})
	assert.ErrorAs(t, err, &cfgErr)
}

func TestOpenAISource_RateLimiter(t *testing.T) {
	s := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"instructions":"ok"}`))
	}, map[string]string{"requests_per_second": "1000"})
	require.NotNil(t, s.limiter)

	for i := 0; i < 3; i++ {
		got, err := s.Fetch(context.Background(), prompts.Params{"id": "pmpt_1"})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Fetch(ctx, prompts.Params{"id": "pmpt_1"})
	assert.ErrorIs(t, err, context.Canceled)
}
