package warehouse

import (
	"context"
	"fmt"

	"ticklake/internal/config"
)

// Open returns the warehouse selected by cfg.Warehouse.Backend.
func Open(ctx context.Context, cfg *config.Config) (Warehouse, error) {
	switch cfg.Warehouse.Backend {
	case "parquet":
		return NewParquetWarehouse(cfg.Storage.DataDir, cfg.Warehouse.Dataset), nil
	case "postgres":
		pool, err := Connect(ctx, cfg.Warehouse.Postgres)
		if err != nil {
			return nil, err
		}
		return NewPostgresWarehouse(pool), nil
	default:
		return nil, fmt.Errorf("unknown warehouse backend %q", cfg.Warehouse.Backend)
	}
}
