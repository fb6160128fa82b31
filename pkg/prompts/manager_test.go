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
package prompts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockSource serves prompts from a map and counts fetches.
type mockSource struct {
	mu         sync.Mutex
	fetchCalls int
	prompts    map[string]string // id -> template
	err        error
	lastParams Params
}

func newMockSource() *mockSource {
	return &mockSource{prompts: make(map[string]string)}
}

func (m *mockSource) Fetch(ctx context.Context, params Params) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls++
	m.lastParams = params

	if m.err != nil {
		return "", m.err
	}
	id := params["id"]
	if v := params["version"]; v != "" {
		id = id + "@" + v
	}
	text, ok := m.prompts[id]
	if !ok {
		return "", fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return text, nil
}

func (m *mockSource) addPrompt(id, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts[id] = text
}

func (m *mockSource) setError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockSource) getCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls
}

func newTestManager(t *testing.T, cfg Config, src Source, opts ...Option) *Manager {
	t.Helper()
	registry := NewSourceRegistry()
	if err := registry.Register("mock", src); err != nil {
		t.Fatalf("register: %v", err)
	}
	m, err := NewManager(context.Background(), cfg, registry, opts...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func spec(name, id string) PromptSpec {
	return PromptSpec{Name: name, Source: "mock", Params: Params{"id": id}}
}

func TestManager_GetRendersTemplate(t *testing.T) {
	src := newMockSource()
	src.addPrompt("greet", "Hello {name}")
	m := newTestManager(t, Config{Prompts: []PromptSpec{spec("greeting", "greet")}}, src)

	got, err := m.Get(context.Background(), "greeting", Vars{"name": "World"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "Hello World" {
		t.Errorf("expected 'Hello World', got %q", got)
	}

	_, err = m.Get(context.Background(), "greeting", nil)
	var missing *MissingVariableError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingVariableError, got %v", err)
	}
	if missing.Prompt != "greeting" {
		t.Errorf("expected prompt name on error, got %q", missing.Prompt)
	}
}

func TestManager_CacheHitSkipsSource(t *testing.T) {
	src := newMockSource()
	src.addPrompt("greet", "Hello {name}")
	m := newTestManager(t, Config{Prompts: []PromptSpec{spec("greeting", "greet")}}, src)
	ctx := context.Background()

	first, err := m.Get(ctx, "greeting", Vars{"name": "World"})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		got, err := m.Get(ctx, "greeting", Vars{"name": "World"})
		if err != nil {
			t.Fatal(err)
		}
		if got != first {
			t.Fatalf("expected identical output, got %q vs %q", got, first)
		}
	}

	if calls := src.getCallCount(); calls != 1 {
		t.Errorf("expected 1 fetch, got %d", calls)
	}

	// Different variables render from the same cached template.
	got, _ := m.Get(ctx, "greeting", Vars{"name": "Ann"})
	if got != "Hello Ann" {
		t.Errorf("expected 'Hello Ann', got %q", got)
	}
	if calls := src.getCallCount(); calls != 1 {
		t.Errorf("expected still 1 fetch, got %d", calls)
	}

	stats := m.Stats()
	if stats.Hits != 11 || stats.Misses != 1 {
		t.Errorf("expected 11 hits and 1 miss, got %+v", stats)
	}
}

func TestManager_TTLPrecedence(t *testing.T) {
	clock := newFakeClock()
	src := newMockSource()
	src.addPrompt("a", "A")
	src.addPrompt("b", "B")
	src.addPrompt("c", "C")

	short := spec("short", "a")
	short.CacheTTL = TTL(10 * time.Second)
	never := spec("never", "b")
	never.CacheTTL = TTL(0)
	global := spec("global", "c")

	m := newTestManager(t, Config{
		Prompts:  []PromptSpec{short, never, global},
		CacheTTL: TTL(time.Minute),
	}, src, WithCache(NewCache(WithClock(clock.Now))))
	ctx := context.Background()

	get := func(name string) {
		t.Helper()
		if _, err := m.Get(ctx, name, nil); err != nil {
			t.Fatalf("Get(%s): %v", name, err)
		}
	}

	// cache_ttl=0 refetches every time.
	for i := 0; i < 3; i++ {
		get("never")
	}
	if calls := src.getCallCount(); calls != 3 {
		t.Fatalf("expected 3 fetches for ttl=0, got %d", calls)
	}

	get("short")
	get("global")
	if calls := src.getCallCount(); calls != 5 {
		t.Fatalf("expected 5 fetches, got %d", calls)
	}

	// Per-prompt TTL overrides the global default.
	clock.Advance(15 * time.Second)
	get("short")
	get("global")
	if calls := src.getCallCount(); calls != 6 {
		t.Errorf("expected only the short prompt to refetch, got %d fetches", calls)
	}

	clock.Advance(time.Minute)
	get("global")
	if calls := src.getCallCount(); calls != 7 {
		t.Errorf("expected the global prompt to refetch after a minute, got %d fetches", calls)
	}
}

func TestManager_DefaultTTLAndDisableCache(t *testing.T) {
	clock := newFakeClock()
	src := newMockSource()
	src.addPrompt("a", "A")
	m := newTestManager(t, Config{Prompts: []PromptSpec{spec("p", "a")}}, src,
		WithCache(NewCache(WithClock(clock.Now))))
	ctx := context.Background()

	_, _ = m.Get(ctx, "p", nil)
	clock.Advance(DefaultCacheTTL - time.Second)
	_, _ = m.Get(ctx, "p", nil)
	if calls := src.getCallCount(); calls != 1 {
		t.Errorf("expected default TTL to hold, got %d fetches", calls)
	}
	clock.Advance(time.Second)
	_, _ = m.Get(ctx, "p", nil)
	if calls := src.getCallCount(); calls != 2 {
		t.Errorf("expected refetch after default TTL, got %d fetches", calls)
	}

	src2 := newMockSource()
	src2.addPrompt("a", "A")
	disabled := newTestManager(t, Config{Prompts: []PromptSpec{spec("p", "a")}, DisableCache: true}, src2)
	for i := 0; i < 3; i++ {
		_, _ = disabled.Get(ctx, "p", nil)
	}
	if calls := src2.getCallCount(); calls != 3 {
		t.Errorf("expected disabled cache to refetch, got %d fetches", calls)
	}
}

func TestManager_ClearCache(t *testing.T) {
	src := newMockSource()
	src.addPrompt("a", "A")
	src.addPrompt("b", "B")
	m := newTestManager(t, Config{Prompts: []PromptSpec{spec("pa", "a"), spec("pb", "b")}}, src)
	ctx := context.Background()

	_, _ = m.Get(ctx, "pa", nil)
	_, _ = m.Get(ctx, "pb", nil)

	m.ClearCache("pa")
	_, _ = m.Get(ctx, "pa", nil)
	_, _ = m.Get(ctx, "pb", nil)
	if calls := src.getCallCount(); calls != 3 {
		t.Errorf("expected only pa to refetch, got %d fetches", calls)
	}

	m.ClearCache()
	_, _ = m.Get(ctx, "pa", nil)
	_, _ = m.Get(ctx, "pb", nil)
	if calls := src.getCallCount(); calls != 5 {
		t.Errorf("expected both to refetch after full clear, got %d fetches", calls)
	}
}

func TestManager_UnknownPrompt(t *testing.T) {
	m := newTestManager(t, Config{}, newMockSource())
	ctx := context.Background()

	_, err := m.Get(ctx, "missing_prompt", nil)
	var notFound *PromptNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected PromptNotFoundError, got %v", err)
	}
	if notFound.Name != "missing_prompt" {
		t.Errorf("expected name on error, got %q", notFound.Name)
	}

	got, err := m.Get(ctx, "missing_prompt", nil, WithDefault("X"))
	if err != nil {
		t.Fatalf("expected default, got error %v", err)
	}
	if got != "X" {
		t.Errorf("expected 'X', got %q", got)
	}

	// Defaults are templates too.
	got, err = m.Get(ctx, "missing_prompt", Vars{"who": "you"}, WithDefault("Hi {who}"))
	if err != nil || got != "Hi you" {
		t.Errorf("expected rendered default, got %q (%v)", got, err)
	}
}

func TestManager_FetchFailureFallsBackToDefault(t *testing.T) {
	src := newMockSource()
	src.setError(errors.New("connection refused"))
	m := newTestManager(t, Config{Prompts: []PromptSpec{spec("p", "a")}}, src)
	ctx := context.Background()

	got, err := m.Get(ctx, "p", nil, WithDefault("fallback"))
	if err != nil {
		t.Fatalf("expected fallback, got %v", err)
	}
	if got != "fallback" {
		t.Errorf("expected 'fallback', got %q", got)
	}

	_, err = m.Get(ctx, "p", nil)
	var fetchErr *SourceFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected SourceFetchError, got %v", err)
	}
	if fetchErr.Prompt != "p" || fetchErr.Source != "mock" {
		t.Errorf("unexpected error fields: %+v", fetchErr)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected cause in message, got %q", err.Error())
	}

	// Failed fetches are not cached.
	src.setError(nil)
	src.addPrompt("a", "recovered")
	got, err = m.Get(ctx, "p", nil)
	if err != nil || got != "recovered" {
		t.Errorf("expected recovery, got %q (%v)", got, err)
	}
}

func TestManager_NotFoundSentinelUnwraps(t *testing.T) {
	m := newTestManager(t, Config{Prompts: []PromptSpec{spec("p", "absent")}}, newMockSource())

	_, err := m.Get(context.Background(), "p", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected errors.Is(err, ErrNotFound), got %v", err)
	}
}

func TestManager_UnknownSource(t *testing.T) {
	cfg := Config{Prompts: []PromptSpec{{Name: "p", Source: "nowhere"}}}
	m := newTestManager(t, cfg, newMockSource())
	ctx := context.Background()

	_, err := m.Get(ctx, "p", nil)
	var unknown *UnknownSourceError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownSourceError, got %v", err)
	}
	if unknown.Source != "nowhere" || unknown.Prompt != "p" {
		t.Errorf("unexpected error fields: %+v", unknown)
	}

	got, err := m.Get(ctx, "p", nil, WithDefault("d"))
	if err != nil || got != "d" {
		t.Errorf("expected default for unknown source, got %q (%v)", got, err)
	}
}

func TestManager_RenderErrorIgnoresDefault(t *testing.T) {
	src := newMockSource()
	src.addPrompt("a", "needs {thing}")
	m := newTestManager(t, Config{Prompts: []PromptSpec{spec("p", "a")}}, src)

	_, err := m.Get(context.Background(), "p", nil, WithDefault("fallback"))
	var missing *MissingVariableError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingVariableError even with default, got %v", err)
	}
}

func TestManager_WithVersion(t *testing.T) {
	src := newMockSource()
	src.addPrompt("a", "latest")
	src.addPrompt("a@2", "version two")
	m := newTestManager(t, Config{Prompts: []PromptSpec{spec("p", "a")}}, src)
	ctx := context.Background()

	latest, _ := m.Get(ctx, "p", nil)
	v2, err := m.Get(ctx, "p", nil, WithVersion("2"))
	if err != nil {
		t.Fatal(err)
	}
	if latest != "latest" || v2 != "version two" {
		t.Errorf("unexpected results: latest=%q v2=%q", latest, v2)
	}

	_, _ = m.Get(ctx, "p", nil, WithVersion("2"))
	if calls := src.getCallCount(); calls != 2 {
		t.Errorf("expected versioned entry to be cached separately, got %d fetches", calls)
	}

	m.ClearCache("p")
	_, _ = m.Get(ctx, "p", nil, WithVersion("2"))
	if calls := src.getCallCount(); calls != 3 {
		t.Errorf("expected ClearCache to drop versioned entries, got %d fetches", calls)
	}
}

func TestManager_ParamsNotShared(t *testing.T) {
	src := newMockSource()
	src.addPrompt("a", "A")
	params := Params{"id": "a"}
	m := newTestManager(t, Config{Prompts: []PromptSpec{{Name: "p", Source: "MOCK", Params: params}}}, src)

	params["id"] = "mutated"
	_, err := m.Get(context.Background(), "p", nil, WithVersion("1"), WithDefault("x"))
	if err != nil {
		t.Fatal(err)
	}
	if src.lastParams["id"] != "a" {
		t.Errorf("expected config params to be copied, got %v", src.lastParams)
	}
	if src.lastParams["version"] != "1" {
		t.Errorf("expected version param, got %v", src.lastParams)
	}

	spec, ok := m.Spec("p")
	if !ok {
		t.Fatal("expected spec")
	}
	spec.Params["id"] = "changed"
	again, _ := m.Spec("p")
	if again.Params["id"] != "a" {
		t.Error("Spec must return a copy")
	}
}

func TestManager_ListAndExists(t *testing.T) {
	m := newTestManager(t, Config{Prompts: []PromptSpec{spec("b", "b"), spec("a", "a")}}, newMockSource())

	list := m.List()
	if len(list) != 2 || list[0] != "a" || list[1] != "b" {
		t.Errorf("expected sorted [a b], got %v", list)
	}
	if !m.Exists("a") || m.Exists("c") {
		t.Error("Exists returned wrong result")
	}
}

func TestNewManager_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty name", Config{Prompts: []PromptSpec{{Source: "mock"}}}},
		{"missing source", Config{Prompts: []PromptSpec{{Name: "p"}}}},
		{"duplicate", Config{Prompts: []PromptSpec{spec("p", "a"), spec("p", "b")}}},
		{"reserved separator", Config{Prompts: []PromptSpec{spec("p@1", "a")}}},
		{"negative prompt ttl", Config{Prompts: []PromptSpec{{Name: "p", Source: "mock", CacheTTL: TTL(-time.Second)}}}},
		{"negative global ttl", Config{CacheTTL: TTL(-time.Second)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(context.Background(), tt.cfg, NewSourceRegistry())
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected ConfigError, got %v", err)
			}
		})
	}

	if _, err := NewManager(context.Background(), Config{}, nil); err == nil {
		t.Error("expected error for nil registry")
	}
}

func TestManager_ConcurrentGets(t *testing.T) {
	src := newMockSource()
	src.addPrompt("a", "Hello {name}")
	m := newTestManager(t, Config{Prompts: []PromptSpec{spec("p", "a")}}, src)
	ctx := context.Background()

	// Warm the cache so every concurrent call is a hit.
	if _, err := m.Get(ctx, "p", Vars{"name": "x"}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("user%d", i)
			got, err := m.Get(ctx, "p", Vars{"name": name})
			if err != nil {
				t.Errorf("Get failed: %v", err)
				return
			}
			if got != "Hello "+name {
				t.Errorf("expected 'Hello %s', got %q", name, got)
			}
		}(i)
	}
	wg.Wait()

	if calls := src.getCallCount(); calls != 1 {
		t.Errorf("expected 1 fetch, got %d", calls)
	}
}

func TestManager_Close(t *testing.T) {
	closer := &closingSource{}
	registry := NewSourceRegistry()
	if err := registry.Register("c", closer); err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(context.Background(), Config{Prompts: []PromptSpec{{Name: "p", Source: "c"}}}, registry)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if closer.closed != 1 {
		t.Errorf("expected source closed once, got %d", closer.closed)
	}
	if _, err := m.Get(context.Background(), "p", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

type closingSource struct {
	closed int
}

func (c *closingSource) Fetch(ctx context.Context, params Params) (string, error) {
	return "x", nil
}

func (c *closingSource) Close() error {
	c.closed++
	return nil
}

// blockingSource holds its first fetch until release is closed. Later fetches
// return the current text immediately.
type blockingSource struct {
	mu      sync.Mutex
	text    string
	calls   int
	started chan struct{}
	release chan struct{}
}

func newBlockingSource(text string) *blockingSource {
	return &blockingSource{text: text, started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingSource) Fetch(ctx context.Context, params Params) (string, error) {
	b.mu.Lock()
	b.calls++
	text, first := b.text, b.calls == 1
	b.mu.Unlock()

	if !first {
		return text, nil
	}
	close(b.started)
	select {
	case <-b.release:
		return text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *blockingSource) setText(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
}

func (b *blockingSource) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func TestManager_ClearCacheDuringFetch(t *testing.T) {
	src := newBlockingSource("v1")
	m := newTestManager(t, Config{Prompts: []PromptSpec{spec("p", "a")}}, src)
	ctx := context.Background()

	first := make(chan string, 1)
	go func() {
		got, _ := m.Raw(ctx, "p")
		first <- got
	}()
	<-src.started

	src.setText("v2")
	m.ClearCache()

	// A miss after the clear starts its own fetch instead of joining the old one.
	got, err := m.Raw(ctx, "p")
	if err != nil {
		t.Fatalf("Raw failed: %v", err)
	}
	if got != "v2" {
		t.Errorf("expected 'v2' after clear, got %q", got)
	}

	close(src.release)
	select {
	case got := <-first:
		if got != "v1" {
			t.Errorf("expected in-flight caller to get 'v1', got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for in-flight fetch")
	}

	// The pre-clear result must not overwrite the cache.
	got, err = m.Raw(ctx, "p")
	if err != nil {
		t.Fatalf("Raw failed: %v", err)
	}
	if got != "v2" {
		t.Errorf("expected cached 'v2', got %q", got)
	}
	if calls := src.callCount(); calls != 2 {
		t.Errorf("expected 2 fetches, got %d", calls)
	}
}

func TestManager_SharedFetchSurvivesCallerCancel(t *testing.T) {
	src := newBlockingSource("shared")
	m := newTestManager(t, Config{Prompts: []PromptSpec{spec("p", "a")}}, src)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	errA := make(chan error, 1)
	go func() {
		_, err := m.Raw(ctxA, "p")
		errA <- err
	}()
	<-src.started

	resB := make(chan string, 1)
	errB := make(chan error, 1)
	go func() {
		got, err := m.Raw(context.Background(), "p")
		resB <- got
		errB <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected cancelled caller to see context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(src.release)
	select {
	case got := <-resB:
		if err := <-errB; err != nil {
			t.Fatalf("expected live caller to succeed, got %v", err)
		}
		if got != "shared" {
			t.Errorf("expected 'shared', got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live caller did not return")
	}

	if calls := src.callCount(); calls != 1 {
		t.Errorf("expected one shared fetch, got %d", calls)
	}
}
