package wasmheap

import (
	"go.uber.org/zap"

	"github.com/wippyai/otapi-bridge/marshal"
)

// DefaultMemoryLimitPages caps guest memory at 64MB.
const DefaultMemoryLimitPages = 1024

// Config holds configuration for heap creation
type Config struct {
	// Schema defaults to marshal.Default.
	Schema *marshal.Schema

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// ModuleName names the guest instance inside the wazero runtime.
	// Defaults to "otapi-heap".
	ModuleName string

	// MemoryLimitPages sets the maximum guest memory in pages (64KB each).
	// 0 means DefaultMemoryLimitPages. 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32
}

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.Schema == nil {
		out.Schema = marshal.Default
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	if out.ModuleName == "" {
		out.ModuleName = "otapi-heap"
	}
	if out.MemoryLimitPages == 0 {
		out.MemoryLimitPages = DefaultMemoryLimitPages
	}
	return out
}
