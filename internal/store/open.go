package store

import (
	"fmt"

	"cipherchat/internal/domain"
)

// Open returns the KVStore selected by driver: "file" (default), "sqlite"
// or "memory". Only the file backend can be sealed; a passphrase with any
// other driver is an error.
func Open(driver, path, passphrase string) (domain.KVStore, error) {
	if passphrase != "" && driver != "" && driver != "file" {
		return nil, fmt.Errorf("storage driver %q does not support a passphrase", driver)
	}
	switch driver {
	case "", "file":
		return OpenFileKV(path, passphrase)
	case "sqlite":
		return OpenSQLiteKV(path)
	case "memory":
		return NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q (want file, sqlite or memory)", driver)
	}
}
