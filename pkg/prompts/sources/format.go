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
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

// Document formats understood by file-like sources.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
)

// DefaultField is the document field holding the prompt text.
const DefaultField = "prompt"

const zstdExt = ".zst"

// probeExtensions are tried in order when a path has no extension.
var probeExtensions = []string{".txt", ".text", ".md", ".json", ".yaml", ".yml"}

// zstdDecoder is shared; DecodeAll is safe for concurrent use.
var zstdDecoder, _ = zstd.NewReader(nil)

// formatFromPath infers a format from the extension, ignoring a trailing .zst.
func formatFromPath(path string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSuffix(path, zstdExt)))
	switch ext {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".md", ".markdown":
		return FormatMarkdown
	default:
		return FormatText
	}
}

// normalizeFormat maps user-facing aliases to a format constant.
func normalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "":
		return "", nil
	case "text", "txt", "plain":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
}

// maybeDecompress inflates zstd data. Compressed input is detected by the
// .zst suffix or the zstd frame magic.
func maybeDecompress(name string, data []byte) ([]byte, error) {
	if !strings.HasSuffix(strings.ToLower(name), zstdExt) && !isZstdFrame(data) {
		return data, nil
	}
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", name, err)
	}
	return out, nil
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

func isZstdFrame(data []byte) bool {
	return bytes.HasPrefix(data, zstdMagic)
}

// decodeDocument extracts prompt text from data.
//
// Text is trimmed. Markdown has its YAML frontmatter removed. JSON and YAML
// documents may be a bare string or a mapping; for a mapping the value at
// field is returned. When field was not requested explicitly and the mapping
// has no "prompt" key, the whole document is returned re-serialized.
func decodeDocument(data []byte, format, field string) (string, error) {
	explicitField := field != ""
	if field == "" {
		field = DefaultField
	}

	switch format {
	case FormatJSON:
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return "", fmt.Errorf("invalid JSON prompt document: %w", err)
		}
		return extractField(doc, field, explicitField, func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		})

	case FormatYAML:
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return "", fmt.Errorf("invalid YAML prompt document: %w", err)
		}
		return extractField(doc, field, explicitField, yaml.Marshal)

	case FormatMarkdown:
		_, body := splitFrontmatter(string(data))
		return strings.TrimSpace(body), nil

	default:
		return strings.TrimSpace(string(data)), nil
	}
}

func extractField(doc any, field string, explicit bool, marshal func(any) ([]byte, error)) (string, error) {
	switch v := doc.(type) {
	case string:
		return v, nil
	case map[string]any:
		if raw, ok := v[field]; ok {
			s, ok := raw.(string)
			if !ok {
				return "", fmt.Errorf("field %q is %T, not a string", field, raw)
			}
			return s, nil
		}
		if explicit {
			return "", fmt.Errorf("field %q not found in prompt document", field)
		}
	case nil:
		return "", fmt.Errorf("empty prompt document")
	}

	out, err := marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to serialize prompt document: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// splitFrontmatter separates a leading "---" YAML block from the body.
func splitFrontmatter(content string) (frontmatter, body string) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		return "", content
	}
	rest := normalized[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", content
	}
	frontmatter = rest[:end]
	body = strings.TrimPrefix(rest[end+len("\n---"):], "\n")
	return frontmatter, body
}
