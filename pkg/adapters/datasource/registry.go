package datasource

import (
	"context"
	"sync"

	"github.com/ekaya-inc/text2sql/pkg/config"
)

// AdapterInfo describes a registered sandbox adapter.
type AdapterInfo struct {
	Engine      string `json:"engine"`       // "postgres", "mssql"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string `json:"description"`
}

// AdapterRegistration contains info plus the factory for creating the adapter.
type AdapterRegistration struct {
	Info    AdapterInfo
	Factory func(ctx context.Context, cfg *config.SandboxConfig) (Explainer, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Engine] = reg
}

// RegisteredEngines returns info for all registered adapters.
// Used by the doctor command to report which sandbox engines are available.
func RegisteredEngines() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	return result
}

// GetFactory returns the factory for a sandbox engine.
// Returns nil if the engine is not registered.
func GetFactory(engine string) func(ctx context.Context, cfg *config.SandboxConfig) (Explainer, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[engine]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if a sandbox engine is available.
func IsRegistered(engine string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[engine]
	return ok
}
