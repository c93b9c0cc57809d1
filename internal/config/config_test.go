package config

import "testing"

func TestGetenvFallback(t *testing.T) {
	t.Setenv("REPLFLEET_TEST_KEY", "")
	if got := getenv("REPLFLEET_TEST_KEY_UNSET", "default"); got != "default" {
		t.Fatalf("getenv() = %q, want %q", got, "default")
	}

	t.Setenv("REPLFLEET_TEST_KEY", "value")
	if got := getenv("REPLFLEET_TEST_KEY", "default"); got != "value" {
		t.Fatalf("getenv() = %q, want %q", got, "value")
	}
}

func TestParseInt64FallsBackOnInvalidOrNonPositive(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		fallback int64
		want     int64
	}{
		{"30", 99, 30},
		{"not-a-number", 99, 99},
		{"0", 99, 99},
		{"-5", 99, 99},
	}

	for _, tt := range cases {
		if got := parseInt64(tt.in, tt.fallback); got != tt.want {
			t.Errorf("parseInt64(%q, %d) = %d, want %d", tt.in, tt.fallback, got, tt.want)
		}
	}
}

func TestMustLoadOrchestratorDefaults(t *testing.T) {
	t.Parallel()

	cfg := MustLoadOrchestrator()
	if cfg.ListenAddr == "" {
		t.Fatal("MustLoadOrchestrator().ListenAddr is empty")
	}
	if cfg.MaxExecutionSecs <= 0 {
		t.Fatalf("MustLoadOrchestrator().MaxExecutionSecs = %d, want > 0", cfg.MaxExecutionSecs)
	}
}

func TestMustLoadGatewayDefaults(t *testing.T) {
	t.Parallel()

	cfg := MustLoadGateway()
	if cfg.RateLimitPerMin <= 0 {
		t.Fatalf("MustLoadGateway().RateLimitPerMin = %v, want > 0", cfg.RateLimitPerMin)
	}
	if cfg.MaxDependencies <= 0 {
		t.Fatalf("MustLoadGateway().MaxDependencies = %d, want > 0", cfg.MaxDependencies)
	}
}

func TestMustLoadRegistryDefaults(t *testing.T) {
	t.Parallel()

	cfg := MustLoadRegistry()
	if len(cfg.StoreEndpoints) == 0 {
		t.Fatal("MustLoadRegistry().StoreEndpoints is empty")
	}
	if cfg.LeaseTTLSecs <= 0 {
		t.Fatalf("MustLoadRegistry().LeaseTTLSecs = %d, want > 0", cfg.LeaseTTLSecs)
	}
}
