package kv

import (
	"fmt"
	"log/slog"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendFile   = "file"
)

// ValidBackends lists the accepted backend names.
var ValidBackends = []string{BackendMemory, BackendSQLite, BackendBadger, BackendFile}

// Open opens the named backend at path.
// logger is only used by backends that produce their own logs.
func Open(backend, path string, logger *slog.Logger) (Store, error) {
	switch backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendBadger:
		cfg := DefaultBadgerConfig(path)
		cfg.Logger = logger
		return OpenBadger(cfg)
	case BackendFile:
		return OpenFile(path)
	default:
		return nil, fmt.Errorf("unknown backend %q: must be one of %v", backend, ValidBackends)
	}
}
