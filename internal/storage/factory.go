// factory.go implements the storage backend registry, mapping backend names
// (local, s3, azure, gcs) to constructors selected by storage.default_backend.
package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aragroup/ara-platform/internal/config"
)

// FactoryFunc builds a backend from the application configuration.
type FactoryFunc func(*config.Config) (Storage, error)

var factories = make(map[string]FactoryFunc)

// Register registers a storage backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStorage creates the backend named by cfg.Storage.DefaultBackend.
func NewStorage(cfg *config.Config) (Storage, error) {
	factory, ok := factories[cfg.Storage.DefaultBackend]
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend %q (registered: %s)",
			cfg.Storage.DefaultBackend, strings.Join(Backends(), ", "))
	}

	s, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.Storage.DefaultBackend, err)
	}
	return s, nil
}
