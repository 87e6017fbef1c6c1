package config

import "testing"

func TestValidateDefaults(t *testing.T) {
	cfg := &Config{
		Addr: ":8080", DBPath: "chat.db",
		BusCapacity: 32, MaxGuests: 64, MaxUsers: 128, QueueCapacity: 32,
		LogLevel: "info", LogFormat: "json",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := Config{
		Addr: ":8080", DBPath: "chat.db",
		BusCapacity: 32, MaxGuests: 64, MaxUsers: 128, QueueCapacity: 32,
		LogLevel: "info", LogFormat: "json",
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Addr = "" }},
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"zero bus capacity", func(c *Config) { c.BusCapacity = 0 }},
		{"negative max guests", func(c *Config) { c.MaxGuests = -1 }},
		{"zero max users", func(c *Config) { c.MaxUsers = 0 }},
		{"zero queue capacity", func(c *Config) { c.QueueCapacity = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected an error for %s", tc.name)
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr == "" || cfg.DBPath == "" {
		t.Fatalf("expected non-empty defaults, got %#v", cfg)
	}
	if cfg.BusCapacity != 32 || cfg.MaxGuests != 64 || cfg.MaxUsers != 128 {
		t.Fatalf("expected spec capacity defaults, got %#v", cfg)
	}
}
