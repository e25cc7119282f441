package store

import (
	"context"
	"fmt"
)

// DriverMemory selects the in-process store.
const DriverMemory = "memory"

// Open returns the Store for driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite, DriverPostgres:
		return OpenSQL(ctx, driver, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", driver)
	}
}
