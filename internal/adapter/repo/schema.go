package repo

import (
	"context"
	"fmt"

	"genstudio/internal/infra"
	"genstudio/internal/sqlinline"
)

// EnsureSchema creates the job and image tables when they are missing.
func EnsureSchema(ctx context.Context, db infra.SQLExecutor) error {
	for _, stmt := range sqlinline.Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
