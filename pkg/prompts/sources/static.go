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
	"maps"
	"sort"

	"github.com/teradata-labs/promptmgr/pkg/prompts"
)

// StaticSource serves prompts declared inline. Each option is id -> text;
// versioned texts use the key "id@version".
type StaticSource struct {
	prompts map[string]string
}

// NewStaticSource copies cfg.Options.
func NewStaticSource(cfg prompts.SourceConfig) *StaticSource {
	return &StaticSource{prompts: maps.Clone(cfg.Options)}
}

// Fetch returns the text for params["id"].
func (s *StaticSource) Fetch(ctx context.Context, params prompts.Params) (string, error) {
	id, err := requireParam(params, "id")
	if err != nil {
		return "", err
	}
	if v := params.Get("version"); v != "" {
		if text, ok := s.prompts[id+"@"+v]; ok {
			return text, nil
		}
		return "", notFound("static prompt %s version %s", id, v)
	}
	text, ok := s.prompts[id]
	if !ok {
		return "", notFound("static prompt %s", id)
	}
	return text, nil
}

// ValidateParams requires an id that exists.
func (s *StaticSource) ValidateParams(params prompts.Params) error {
	id, err := requireParam(params, "id")
	if err != nil {
		return err
	}
	if _, ok := s.prompts[id]; !ok {
		return notFound("static prompt %s", id)
	}
	return nil
}

// IDs returns the declared prompt ids, sorted.
func (s *StaticSource) IDs() []string {
	ids := make([]string, 0, len(s.prompts))
	for id := range s.prompts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
