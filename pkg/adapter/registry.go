package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/leapstack-labs/medallion/pkg/core"
)

// Factory builds an unconnected adapter. A nil logger means discard.
type Factory func(*slog.Logger) Adapter

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds an adapter factory to the registry.
// Called by adapter implementations in their init() functions;
// registering the same name twice panics.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("adapter: Register called twice for %q", name))
	}
	registry[name] = factory
}

// Get retrieves an adapter factory by name.
func Get(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// NewAdapter creates a new adapter instance based on config type.
func NewAdapter(cfg core.AdapterConfig, logger *slog.Logger) (Adapter, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("adapter type not specified")
	}

	factory, ok := Get(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{
			Type:      cfg.Type,
			Available: ListAdapters(),
		}
	}
	return factory(logger), nil
}

// Open creates an adapter for cfg and connects it.
// The caller owns the returned adapter and must Close it.
func Open(ctx context.Context, cfg core.AdapterConfig, logger *slog.Logger) (Adapter, error) {
	a, err := NewAdapter(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.Connect(ctx, cfg); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to connect %s adapter: %w", cfg.Type, err), a.Close())
	}
	return a, nil
}

// ListAdapters returns all registered adapter names (sorted).
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if an adapter type is registered.
func IsRegistered(name string) bool {
	_, ok := Get(name)
	return ok
}

// UnknownAdapterError is returned when an unknown adapter type is requested.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown adapter type %q\nAvailable adapters: %v\nHint: Check your target.type in medallion.yaml", e.Type, e.Available)
}
