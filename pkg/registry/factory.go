package registry

import (
	"fmt"
	"os"
)

// Store backends selectable via REGISTRY_STORE.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// NewStoreFromEnv builds the store named by REGISTRY_STORE. SQLite is the
// default; its path comes from REGISTRY_SQLITE_PATH (default
// jobproof-registry.db), Postgres from REGISTRY_POSTGRES_DSN.
func NewStoreFromEnv() (Store, error) {
	switch backend := os.Getenv("REGISTRY_STORE"); backend {
	case StoreMemory:
		return NewMemoryStore(), nil
	case StoreSQLite, "":
		path := os.Getenv("REGISTRY_SQLITE_PATH")
		if path == "" {
			path = "jobproof-registry.db"
		}
		return OpenSQLiteStore(path)
	case StorePostgres:
		dsn := os.Getenv("REGISTRY_POSTGRES_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("registry: REGISTRY_STORE=postgres needs REGISTRY_POSTGRES_DSN")
		}
		return OpenPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("registry: unknown REGISTRY_STORE %q", backend)
	}
}
