package config

import (
	"os"
	"strconv"
)

// Env holds the recognized environment variables from spec §6. It is read
// once at process start via FromEnviron; components take an Env value
// explicitly rather than calling os.Getenv scattered through the codebase.
type Env struct {
	RunBase               string
	ClaudeStepEngineMode  string
	GeminiStub            bool
	SelftestSkipSteps     []string
	SelftestForceDegraded bool
	StrictSDKCheck        bool
	MetricsEndpoint       string
	LogsEndpoint          string
	TraceEndpoint         string

	// TransportRateLimitPerMinute caps transport.Execute invocations per
	// step engine (spec §5 budget enforcement); 0 means unlimited.
	TransportRateLimitPerMinute int
}

// FromEnviron reads the table of environment variables in spec §6.
func FromEnviron() Env {
	return Env{
		RunBase:               envOr("RUN_BASE", "./runs"),
		ClaudeStepEngineMode:  envOr("SWARM_CLAUDE_STEP_ENGINE_MODE", "stub"),
		GeminiStub:            os.Getenv("SWARM_GEMINI_STUB") != "",
		SelftestSkipSteps:     splitNonEmpty(os.Getenv("SELFTEST_SKIP_STEPS")),
		SelftestForceDegraded: os.Getenv("SELFTEST_FORCE_DEGRADED") != "",
		StrictSDKCheck:        os.Getenv("SWARM_STRICT_SDK_CHECK") != "",
		MetricsEndpoint:       os.Getenv("METRICS_ENDPOINT"),
		LogsEndpoint:          os.Getenv("LOGS_ENDPOINT"),
		TraceEndpoint:         os.Getenv("TRACE_ENDPOINT"),

		TransportRateLimitPerMinute: intEnv("SWARM_TRANSPORT_RATE_LIMIT_PER_MINUTE"),
	}
}

// intEnv parses an integer flag; unset or malformed values fall back to 0.
func intEnv(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// boolEnv parses "1"/"true" style flags; unset or unparseable values fall
// back to false to keep the harness behavior deterministic when misconfigured.
func boolEnv(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return false
	}
	return v
}
