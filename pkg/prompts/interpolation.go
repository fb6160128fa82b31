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
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// placeholderPattern matches escaped braces first so "{{name}}" renders as "{name}".
var placeholderPattern = regexp.MustCompile(`\{\{|\}\}|\{([A-Za-z_][A-Za-z0-9_.\-]*)\}`)

// Renderer substitutes variables into templates.
type Renderer struct {
	// Sanitize escapes values and strips prompt-injection markers before
	// substitution. Off by default.
	Sanitize bool
}

// Render performs plain variable substitution.
//
// Uses {name} placeholders; "{{" and "}}" produce literal braces.
//
// Example:
//
//	text, err := Render("You are a {role} agent for {backend}", Vars{
//	    "role":    "SQL",
//	    "backend": "Teradata",
//	})
//	// text == "You are a SQL agent for Teradata"
func Render(template string, vars Vars) (string, error) {
	return Renderer{}.Render(template, vars)
}

// Render substitutes every placeholder in template.
//
// All placeholders must have a value. Otherwise a *MissingVariableError naming
// every missing variable is returned and nothing is substituted.
func (r Renderer) Render(template string, vars Vars) (string, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(template, -1)
	if len(matches) == 0 {
		return template, nil
	}

	var missing []string
	seen := make(map[string]bool)
	var b strings.Builder
	b.Grow(len(template))
	last := 0

	for _, m := range matches {
		b.WriteString(template[last:m[0]])
		last = m[1]

		token := template[m[0]:m[1]]
		switch token {
		case "{{":
			b.WriteByte('{')
			continue
		case "}}":
			b.WriteByte('}')
			continue
		}

		name := template[m[2]:m[3]]
		value, ok := vars[name]
		if !ok {
			if !seen[name] {
				seen[name] = true
				missing = append(missing, name)
			}
			continue
		}
		b.WriteString(r.format(value))
	}
	b.WriteString(template[last:])

	if len(missing) > 0 {
		return "", &MissingVariableError{Variables: missing}
	}
	return b.String(), nil
}

// Placeholders lists the distinct variable names a template needs, in
// first-occurrence order.
func Placeholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if m[1] == "" || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}

func (r Renderer) format(value any) string {
	if r.Sanitize {
		return escapeValue(value)
	}
	switch v := value.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	default:
		return fmt.Sprint(v)
	}
}

// escapeValue converts a value to string and escapes it to prevent injection.
func escapeValue(value any) string {
	switch v := value.(type) {
	case string:
		return escapeString(v)
	case int, int64, int32, float64, float32:
		return fmt.Sprintf("%v", v)
	case bool:
		return fmt.Sprintf("%t", v)
	case []string:
		escaped := make([]string, len(v))
		for i, s := range v {
			escaped[i] = escapeString(s)
		}
		return strings.Join(escaped, ", ")
	default:
		return escapeString(fmt.Sprint(v))
	}
}

// escapeString strips control characters, escapes markup and blanks out
// common prompt-injection delimiters.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}

	// Newlines become spaces so a value cannot open a new prompt section.
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(s)

	s = html.EscapeString(s)

	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != ' ' {
			continue
		}
		result.WriteRune(r)
	}
	s = sanitizePromptInjection(result.String())

	return strings.Join(strings.Fields(s), " ")
}

var injectionPatterns = []string{
	"### Instruction:",
	"### Response:",
	"```",
	"###",
	"---",
	"System:",
	"Assistant:",
	"Human:",
	"[INST]",
	"[/INST]",
	"<|im_start|>",
	"<|im_end|>",
}

// sanitizePromptInjection replaces role markers and delimiters with spaces.
func sanitizePromptInjection(s string) string {
	for _, pattern := range injectionPatterns {
		s = strings.ReplaceAll(s, pattern, strings.Repeat(" ", len(pattern)))
	}
	return s
}
