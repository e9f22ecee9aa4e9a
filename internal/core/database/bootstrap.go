package database

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed scripts/initdb.sql
var initSQL string

// Bootstrap creates the vector extension and the schema if missing.
// Safe to run on every startup.
func (s *PgStore) Bootstrap(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, initSQL); err != nil {
		return fmt.Errorf("database: bootstrap: %w", err)
	}
	s.log.Info("database schema ready")
	return nil
}
