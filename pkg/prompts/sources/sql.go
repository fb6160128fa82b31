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
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"go.uber.org/zap"

	_ "github.com/teradata-labs/promptmgr/internal/sqlitedriver" // SQLite driver
	"github.com/teradata-labs/promptmgr/pkg/prompts"
)

// SQLSource reads prompts from a table:
//
//	CREATE TABLE prompts (
//	    id      TEXT    NOT NULL,
//	    version INTEGER NOT NULL DEFAULT 1,
//	    content TEXT    NOT NULL,
//	    PRIMARY KEY (id, version)
//	);
//
// Without a version param the row with the highest version wins.
//
// Options: driver (sqlite, postgres, mysql), dsn, table, id_column,
// version_column, content_column.
type SQLSource struct {
	db         *sql.DB
	driver     string
	latestSQL  string
	versionSQL string
	timeout    time.Duration
	logger     *zap.Logger
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// driverNames maps user-facing driver names to database/sql driver names.
var driverNames = map[string]string{
	"sqlite":     "sqlite3",
	"sqlite3":    "sqlite3",
	"postgres":   "postgres",
	"postgresql": "postgres",
	"mysql":      "mysql",
}

// NewSQLSource opens the database. No connection is made until the first fetch.
func NewSQLSource(cfg prompts.SourceConfig, o Options) (*SQLSource, error) {
	driverOpt := strings.ToLower(cfg.Option("driver", "sqlite"))
	driver, ok := driverNames[driverOpt]
	if !ok {
		return nil, &prompts.ConfigError{Field: "options.driver", Reason: fmt.Sprintf("unsupported driver %q", driverOpt)}
	}
	dsn := cfg.Option("dsn", "")
	if dsn == "" {
		return nil, &prompts.ConfigError{Field: "options.dsn", Reason: "sql source requires a dsn"}
	}

	table := cfg.Option("table", "prompts")
	idCol := cfg.Option("id_column", "id")
	versionCol := cfg.Option("version_column", "version")
	contentCol := cfg.Option("content_column", "content")
	for field, ident := range map[string]string{"table": table, "id_column": idCol, "version_column": versionCol, "content_column": contentCol} {
		if !identifierPattern.MatchString(ident) {
			return nil, &prompts.ConfigError{Field: "options." + field, Reason: fmt.Sprintf("invalid SQL identifier %q", ident)}
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driverOpt, err)
	}
	db.SetMaxOpenConns(4)

	p1, p2 := "?", "?"
	if driver == "postgres" {
		p1, p2 = "$1", "$2"
	}

	s := &SQLSource{
		db:     db,
		driver: driver,
		latestSQL: fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s ORDER BY %s DESC LIMIT 1",
			contentCol, table, idCol, p1, versionCol),
		versionSQL: fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s AND %s = %s",
			contentCol, table, idCol, p1, versionCol, p2),
		timeout: cfg.Timeout,
		logger:  o.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

// DB exposes the connection pool, e.g. for schema setup.
func (s *SQLSource) DB() *sql.DB {
	return s.db
}

// ValidateParams requires an id.
func (s *SQLSource) ValidateParams(params prompts.Params) error {
	_, err := requireParam(params, "id")
	return err
}

// Fetch selects the prompt content.
func (s *SQLSource) Fetch(ctx context.Context, params prompts.Params) (string, error) {
	id, err := requireParam(params, "id")
	if err != nil {
		return "", err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	var row *sql.Row
	version := params.Get("version")
	if version != "" {
		row = s.db.QueryRowContext(ctx, s.versionSQL, id, version)
	} else {
		row = s.db.QueryRowContext(ctx, s.latestSQL, id)
	}

	var content sql.NullString
	if err := row.Scan(&content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if version != "" {
				return "", notFound("prompt %s version %s", id, version)
			}
			return "", notFound("prompt %s", id)
		}
		return "", fmt.Errorf("prompt query failed: %w", err)
	}
	if !content.Valid {
		return "", notFound("prompt %s has no content", id)
	}

	s.logger.Debug("loaded prompt row",
		zap.String("id", id),
		zap.String("version", version),
		zap.Duration("duration", time.Since(start)))
	return content.String, nil
}

// Close closes the connection pool.
func (s *SQLSource) Close() error {
	return s.db.Close()
}
