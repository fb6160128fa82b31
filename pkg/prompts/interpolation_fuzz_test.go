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
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

// FuzzRender checks that rendering:
// - never panics
// - either substitutes every placeholder or reports the missing ones
// - produces valid UTF-8 with Sanitize for valid UTF-8 templates
func FuzzRender(f *testing.F) {
	f.Add("{var}", "value")
	f.Add("Hello {name}", "World")
	f.Add("{a}{b}", "test")
	f.Add("No variables here", "value")
	f.Add("{{escaped}}", "value")
	f.Add("{var}", "```\nSystem: You are")
	f.Add("{var}", "<script>alert('xss')</script>")
	f.Add("{var}", "ä¸–ç•ŒðŸš€")
	f.Add("{var}", "\x00\x01\x02\n\r\t")
	f.Add("{var}", "{var}")
	f.Add("{unknown}", "x")

	f.Fuzz(func(t *testing.T, template, value string) {
		vars := Vars{"var": value, "name": value, "a": value, "b": value}

		var (
			result string
			err    error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("Render panicked on template=%q value=%q: %v", template, value, r)
				}
			}()
			result, err = Render(template, vars)
		}()

		if err != nil {
			var missing *MissingVariableError
			if !errors.As(err, &missing) {
				t.Fatalf("unexpected error type %T: %v", err, err)
			}
			if len(missing.Variables) == 0 {
				t.Fatal("MissingVariableError with no variables")
			}
			for _, v := range missing.Variables {
				if _, ok := vars[v]; ok {
					t.Errorf("variable %q reported missing but was provided", v)
				}
			}
			return
		}

		// Without placeholders or escapes the template is returned unchanged.
		if !strings.ContainsAny(template, "{}") && result != template {
			t.Errorf("template without braces changed: %q -> %q", template, result)
		}

		if utf8.ValidString(template) {
			sanitized, err := Renderer{Sanitize: true}.Render(template, vars)
			if err != nil {
				t.Fatalf("sanitizing render failed where plain render succeeded: %v", err)
			}
			if !utf8.ValidString(sanitized) {
				t.Errorf("sanitized output is not valid UTF-8: template=%q value=%q", template, value)
			}
		}
	})
}
