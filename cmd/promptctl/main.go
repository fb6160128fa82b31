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

// Command promptctl fetches, renders and validates prompts managed by promptmgr.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/teradata-labs/promptmgr/internal/log"
)

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		log.Error("command failed", zap.Error(err))
	}
	_ = log.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
