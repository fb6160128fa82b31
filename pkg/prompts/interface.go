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

import "context"

// Source fetches the raw text of a prompt.
//
// Implementations must be safe for concurrent use. A missing prompt should be
// reported with an error wrapping ErrNotFound.
type Source interface {
	Fetch(ctx context.Context, params Params) (string, error)
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc func(ctx context.Context, params Params) (string, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context, params Params) (string, error) {
	return f(ctx, params)
}

// ParamValidator is implemented by sources that can check params without
// fetching. Used by ValidateConfig.
type ParamValidator interface {
	ValidateParams(params Params) error
}

// Watcher is implemented by sources that can report changes.
//
// The returned channel is closed when ctx is done or the source stops watching.
type Watcher interface {
	Watch(ctx context.Context) (<-chan Change, error)
}
