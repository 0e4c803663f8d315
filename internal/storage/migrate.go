package storage

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"ticket-checkout/internal/logger"
)

//go:embed schema.sql
var schemaSQL string

// Statements splits a migration script into individual statements.
func Statements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// Migrate applies the embedded schema, or script when it is non-empty.
func Migrate(ctx context.Context, db bun.IDB, script string, log *logger.Logger) error {
	if script == "" {
		script = schemaSQL
	}
	stmts := Statements(script)
	log.LogDatabase("MIGRATE", "mysql", fmt.Sprintf("Applying %d statements", len(stmts)))

	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d failed: %w", i+1, err)
		}
	}

	log.LogDatabase("SUCCESS", "mysql", "Schema ready")
	return nil
}
