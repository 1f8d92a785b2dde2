package crdb

import (
	"context"
	_ "embed"
	"strings"

	"github.com/cockroachdb/errors"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema applies the idempotent bootstrap DDL.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "apply schema: %.60s", stmt)
		}
	}
	return nil
}
