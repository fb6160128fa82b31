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
	"sync"
	"time"

	"go.uber.org/zap"
)

// Watch subscribes to every source that implements Watcher and is used by at
// least one prompt. Each change invalidates the cached templates of that
// source's prompts and is then forwarded on the returned channel.
//
// The channel is closed when ctx is done or every source stops watching.
// Sources whose watch is not configured (ErrSourceNotConfigured) are skipped.
// Returns ErrWatchUnsupported when no source can watch.
func (m *Manager) Watch(ctx context.Context) (<-chan Change, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	type subscription struct {
		source string
		ch     <-chan Change
	}
	var subs []subscription

	wctx, cancel := context.WithCancel(ctx)
	for _, source := range m.registry.Names() {
		if len(m.promptsForSource(source)) == 0 {
			continue
		}
		src, err := m.registry.Resolve(source)
		if err != nil {
			continue
		}
		w, ok := src.(Watcher)
		if !ok {
			continue
		}
		ch, err := w.Watch(wctx)
		if errors.Is(err, ErrSourceNotConfigured) {
			m.logger.Warn("prompt source cannot be watched, skipping",
				zap.String("source", source), zap.Error(err))
			continue
		}
		if err != nil {
			cancel()
			return nil, fmt.Errorf("watch source %s: %w", source, err)
		}
		subs = append(subs, subscription{source: source, ch: ch})
	}
	if len(subs) == 0 {
		cancel()
		return nil, ErrWatchUnsupported
	}

	out := make(chan Change)
	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.forwardChanges(wctx, sub.source, sub.ch, out)
		}()
	}
	go func() {
		wg.Wait()
		cancel()
		close(out)
	}()

	m.logger.Info("watching prompt sources", zap.Int("sources", len(subs)))
	return out, nil
}

func (m *Manager) forwardChanges(ctx context.Context, source string, in <-chan Change, out chan<- Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-in:
			if !ok {
				return
			}

			change.Source = source
			if change.Timestamp.IsZero() {
				change.Timestamp = time.Now()
			}
			if change.Action != "error" {
				change.Prompts = m.promptsForSource(source)
				m.ClearCache(change.Prompts...)
				m.logger.Debug("prompt source changed",
					zap.String("source", source),
					zap.String("key", change.Key),
					zap.String("action", change.Action),
					zap.Strings("invalidated", change.Prompts))
			} else {
				m.logger.Warn("prompt source watch error", zap.String("source", source), zap.Error(change.Err))
			}

			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}
}
