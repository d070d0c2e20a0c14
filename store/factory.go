package store

import "fmt"

// Open creates the store bundle for the configured backend.
func Open(backend Backend, dsn string) (*Stores, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryStores(), nil
	case BackendSQLite, BackendPostgres:
		return OpenSQL(backend, dsn)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
