package kv

import (
	"fmt"
	"os"
)

// Backend drivers.
const (
	DriverMemory = "memory"
	DriverFS     = "fs"
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Drivers lists every supported driver name.
var Drivers = []string{DriverMemory, DriverFS, DriverSQLite, DriverBadger}

// Open constructs the backend named by driver. The returned close function
// releases any underlying resources and is never nil.
func Open(driver, path string) (Backend, func() error, error) {
	noop := func() error { return nil }
	switch driver {
	case DriverMemory:
		return NewMemory(), noop, nil
	case DriverFS:
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, nil, fmt.Errorf("kv: create ledger dir: %w", err)
		}
		f, err := NewFS(path)
		if err != nil {
			return nil, nil, err
		}
		return f, noop, nil
	case DriverSQLite:
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case DriverBadger:
		b, err := OpenBadger(path)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	default:
		return nil, nil, fmt.Errorf("kv: unknown driver %q", driver)
	}
}
