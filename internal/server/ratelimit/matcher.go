package ratelimit

import (
	"strings"
)

// MatchEndpoint returns the configuration whose method and pattern match
// the request, or nil. The health check is never limited.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	if path == "/health" {
		return &EndpointConfig{Pattern: "/health", Method: method}
	}
	for i := range configs {
		config := &configs[i]
		if config.Method == method && matchPattern(config.Pattern, path) {
			return config
		}
	}
	return nil
}

func matchPattern(pattern, path string) bool {
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != "*" && want[i] != got[i] {
			return false
		}
	}
	return true
}
