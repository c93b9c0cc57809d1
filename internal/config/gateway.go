package config

// Gateway holds the environment-driven configuration for the REPL front
// service.
type Gateway struct {
	ListenAddr        string
	RegistryURL       string
	OrchestratorURL   string // fallback used when registry discovery fails
	MaxCodeBytes      int
	MaxDependencies   int
	RateLimitPerMin   float64
	RateLimitBurst    float64
	RateLimitIdleMins int
}

// MustLoadGateway loads Gateway config from the environment.
func MustLoadGateway() Gateway {
	return Gateway{
		ListenAddr:        getenv("LISTEN_ADDR", ":3002"),
		RegistryURL:       getenv("REGISTRY_URL", "http://registry:3003"),
		OrchestratorURL:   getenv("ORCHESTRATOR_URL", ""),
		MaxCodeBytes:      int(parseInt64(getenv("MAX_CODE_SIZE", "1048576"), 1048576)),
		MaxDependencies:   int(parseInt64(getenv("MAX_DEPENDENCIES", "20"), 20)),
		RateLimitPerMin:   float64(parseInt64(getenv("RATE_LIMIT_PER_MIN", "60"), 60)),
		RateLimitBurst:    float64(parseInt64(getenv("RATE_LIMIT_BURST", "10"), 10)),
		RateLimitIdleMins: int(parseInt64(getenv("RATE_LIMIT_IDLE_MINUTES", "10"), 10)),
	}
}
