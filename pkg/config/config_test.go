package config

import "testing"

func fakeEnv(values map[string]string) func(string) string {
	return func(name string) string { return values[name] }
}

func TestFromArgsDefaults(t *testing.T) {
	cfg, err := FromArgs([]string{"proxycache", "9090"}, fakeEnv(nil))
	if err != nil {
		t.Fatalf("FromArgs() error = %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.MaxClients != 400 {
		t.Errorf("MaxClients = %d, want 400", cfg.MaxClients)
	}
	if cfg.CacheMaxTotalBytes != 200*1024*1024 {
		t.Errorf("CacheMaxTotalBytes = %d, want 200MiB", cfg.CacheMaxTotalBytes)
	}
	if cfg.MetricsPort != 0 {
		t.Errorf("MetricsPort = %d, want 0 (disabled by default)", cfg.MetricsPort)
	}
}

func TestFromArgsWrongArity(t *testing.T) {
	tests := [][]string{
		{"proxycache"},
		{"proxycache", "9090", "extra"},
	}

	for _, args := range tests {
		_, err := FromArgs(args, fakeEnv(nil))
		if err == nil {
			t.Errorf("FromArgs(%v) expected a UsageError, got nil", args)
		}
		if _, ok := err.(*UsageError); !ok {
			t.Errorf("FromArgs(%v) error = %T, want *UsageError", args, err)
		}
	}
}

func TestFromArgsInvalidPort(t *testing.T) {
	tests := []string{"not-a-port", "-1", "0", "99999"}

	for _, port := range tests {
		_, err := FromArgs([]string{"proxycache", port}, fakeEnv(nil))
		if err == nil {
			t.Errorf("FromArgs port=%q expected error, got nil", port)
		}
	}
}

func TestFromArgsEnvOverrides(t *testing.T) {
	env := fakeEnv(map[string]string{
		"PROXY_MAX_CLIENTS":             "50",
		"PROXY_CACHE_MAX_TOTAL_BYTES":   "1024",
		"PROXY_CACHE_MAX_ELEMENT_BYTES": "256",
		"PROXY_METRICS_PORT":            "9100",
	})

	cfg, err := FromArgs([]string{"proxycache", "8080"}, env)
	if err != nil {
		t.Fatalf("FromArgs() error = %v", err)
	}
	if cfg.MaxClients != 50 {
		t.Errorf("MaxClients = %d, want 50", cfg.MaxClients)
	}
	if cfg.CacheMaxTotalBytes != 1024 {
		t.Errorf("CacheMaxTotalBytes = %d, want 1024", cfg.CacheMaxTotalBytes)
	}
	if cfg.CacheMaxElementBytes != 256 {
		t.Errorf("CacheMaxElementBytes = %d, want 256", cfg.CacheMaxElementBytes)
	}
	if cfg.MetricsPort != 9100 {
		t.Errorf("MetricsPort = %d, want 9100", cfg.MetricsPort)
	}
}

func TestFromArgsEnvOverrideIgnoredWhenUnparseable(t *testing.T) {
	env := fakeEnv(map[string]string{"PROXY_MAX_CLIENTS": "not-a-number"})

	cfg, err := FromArgs([]string{"proxycache", "8080"}, env)
	if err != nil {
		t.Fatalf("FromArgs() error = %v", err)
	}
	if cfg.MaxClients != 400 {
		t.Errorf("MaxClients = %d, want default 400 when override is unparseable", cfg.MaxClients)
	}
}
