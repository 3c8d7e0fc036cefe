package db

import (
	"context"

	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema applies the embedded DDL. Every statement is idempotent so
// this is safe to run on each startup.
func EnsureSchema(ctx context.Context, q Querier) error {
	_, err := q.Exec(ctx, schemaSQL)
	return err
}
