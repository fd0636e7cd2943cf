package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds all configurable timeout values.
// These values can be customized via environment variables.
type Timeouts struct {
	ScriptMaxWait     time.Duration // Upper bound on a single in-guest script execution
	OperationPoll     time.Duration // Poll interval for long-running platform operations
	ReadinessAttempts int           // Attempts for the guest readiness probe
	ReadinessInterval time.Duration // Delay between guest readiness probes
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - KUBEVAPP_TIMEOUT_SCRIPT (default: 10m)
//   - KUBEVAPP_OPERATION_POLL (default: 5s)
//   - KUBEVAPP_READINESS_ATTEMPTS (default: 30)
//   - KUBEVAPP_READINESS_INTERVAL (default: 2s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		ScriptMaxWait:     parseDuration("KUBEVAPP_TIMEOUT_SCRIPT", 10*time.Minute),
		OperationPoll:     parseDuration("KUBEVAPP_OPERATION_POLL", 5*time.Second),
		ReadinessAttempts: parseInt("KUBEVAPP_READINESS_ATTEMPTS", 30),
		ReadinessInterval: parseDuration("KUBEVAPP_READINESS_INTERVAL", 2*time.Second),
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}
