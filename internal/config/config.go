package config

import "strconv"

// Orchestrator holds the environment-driven configuration for the
// container-orchestration service.
type Orchestrator struct {
	ListenAddr       string
	RegistryURL      string
	EngineURL        string // fallback used when registry discovery fails
	MaxExecutionSecs int64
	MaxMemoryBytes   int64
	MaxCPUShares     int64
}

// MustLoadOrchestrator loads Orchestrator config from the environment.
func MustLoadOrchestrator() Orchestrator {
	return Orchestrator{
		ListenAddr:       getenv("LISTEN_ADDR", ":3000"),
		RegistryURL:      getenv("REGISTRY_URL", "http://registry:3003"),
		EngineURL:        getenv("ENGINE_URL", ""),
		MaxExecutionSecs: parseInt64(getenv("MAX_EXECUTION_TIME", "30"), 30),
		MaxMemoryBytes:   parseInt64(getenv("MAX_MEMORY", "536870912"), 536870912),
		MaxCPUShares:     parseInt64(getenv("MAX_CPU_SHARES", "512"), 512),
	}
}

func parseInt64(s string, fallback int64) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
