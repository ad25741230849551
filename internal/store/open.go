package store

import (
	"context"
	"fmt"
	"strings"
)

// Open returns the job store named by driver along with its close func.
func Open(ctx context.Context, driver, dsn string) (JobStore, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "memory":
		return NewMemoryJobStore(), func() error { return nil }, nil
	case "postgres":
		pg, err := NewPostgresJobStore(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}
