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
package sqlitedriver

import (
	"database/sql"
	"slices"

	"modernc.org/sqlite"
)

// DriverName is the database/sql name used by the sql prompt source.
const DriverName = "sqlite3"

func init() {
	if !slices.Contains(sql.Drivers(), DriverName) {
		sql.Register(DriverName, &sqlite.Driver{})
	}
}
