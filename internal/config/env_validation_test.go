package config

import (
	"os"
	"testing"
)

// Load validates the merged configuration itself, so a rejected value may
// surface either from Load or from a later Validate call.

func TestLoad_ValidatesOTLPEndpoint(t *testing.T) {
	defer os.Unsetenv("OBSERVABILITY_OTLP_ENDPOINT")

	// Invalid hostnames with command injection attempts
	invalidHosts := []string{
		"localhost; rm -rf /",
		"localhost\nmalicious",
		"localhost$(whoami)",
	}

	for _, host := range invalidHosts {
		t.Run(host, func(t *testing.T) {
			os.Setenv("OBSERVABILITY_OTLP_ENDPOINT", host)
			cfg, err := Load()
			if err == nil {
				err = cfg.Validate()
			}
			if err == nil {
				t.Errorf("Expected validation error for malicious host: %s", host)
			}
		})
	}
}

func TestLoad_ValidatesCronDBPath(t *testing.T) {
	defer os.Unsetenv("CRON_DB_PATH")

	// Paths with traversal attempts
	invalidPaths := []string{
		"../../../etc/passwd",
		"/data/../../../etc/passwd",
	}

	for _, path := range invalidPaths {
		t.Run(path, func(t *testing.T) {
			os.Setenv("CRON_DB_PATH", path)
			cfg, err := Load()
			if err == nil {
				err = cfg.Validate()
			}
			if err == nil {
				t.Errorf("Expected validation error for path traversal: %s", path)
			}
		})
	}
}

func TestLoad_ValidatesLLMEndpoint(t *testing.T) {
	defer os.Unsetenv("LLM_ENDPOINT")

	// Invalid URLs
	invalidURLs := []string{
		"javascript:alert(1)",
		"file:///etc/passwd",
		"ftp://malicious.com",
	}

	for _, url := range invalidURLs {
		t.Run(url, func(t *testing.T) {
			os.Setenv("LLM_ENDPOINT", url)
			cfg, err := Load()
			if err == nil {
				err = cfg.Validate()
			}
			if err == nil {
				t.Errorf("Expected validation error for invalid URL: %s", url)
			}
		})
	}
}

func TestLoad_AllowsValidConfig(t *testing.T) {
	defer os.Unsetenv("OBSERVABILITY_OTLP_ENDPOINT")
	defer os.Unsetenv("CRON_DB_PATH")
	defer os.Unsetenv("LLM_ENDPOINT")

	os.Setenv("OBSERVABILITY_OTLP_ENDPOINT", "localhost")
	os.Setenv("CRON_DB_PATH", "/data/cron.db")
	os.Setenv("LLM_ENDPOINT", "http://localhost:8080")
	
	cfg, loadErr := Load()
	if loadErr != nil {
		t.Fatalf("Load failed: %v", loadErr)
	}
	err := cfg.Validate()
	if err != nil {
		t.Errorf("Valid configuration rejected: %v", err)
	}
}
