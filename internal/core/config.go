package core

// EngineConfig holds the engine-level settings a runtime is created with.
type EngineConfig struct {
	MemoryLimitMB int // per-runtime heap limit, 0 for the engine default
}
