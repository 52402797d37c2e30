package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("session.signing_secret", "session-secret")
	configViper.Set("admin.signing_secret", "admin-secret")
	configViper.Set("admin.accounts", map[string]string{" Lead@Campus.EDU ": "$2a$10$hash"})

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.DatabaseDriver != DatabaseDriverSQLite {
		t.Fatalf("unexpected driver %q", cfg.DatabaseDriver)
	}
	if cfg.LeaderboardCacheTTL != 60*time.Second {
		t.Fatalf("unexpected leaderboard ttl %s", cfg.LeaderboardCacheTTL)
	}
	if cfg.AdminTokenTTL != time.Hour {
		t.Fatalf("unexpected admin ttl %s", cfg.AdminTokenTTL)
	}
	if cfg.AdminAccounts["lead@campus.edu"] != "$2a$10$hash" {
		t.Fatalf("expected normalized admin account, got %#v", cfg.AdminAccounts)
	}
	if cfg.Cloudinary.Enabled() {
		t.Fatalf("cloudinary should be disabled without credentials")
	}
}

func TestLoadRejectsMissingSecrets(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(values map[string]any)
	}{
		{name: "session-secret", setup: func(values map[string]any) { delete(values, "session.signing_secret") }},
		{name: "admin-secret", setup: func(values map[string]any) { delete(values, "admin.signing_secret") }},
		{name: "driver", setup: func(values map[string]any) { values["database.driver"] = "oracle" }},
		{name: "dsn", setup: func(values map[string]any) { values["database.dsn"] = " " }},
		{name: "rate", setup: func(values map[string]any) { values["ratelimit.login_per_minute"] = 0 }},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			values := map[string]any{
				"session.signing_secret": "session-secret",
				"admin.signing_secret":   "admin-secret",
			}
			testCase.setup(values)

			configViper := NewViper()
			for key, value := range values {
				configViper.Set(key, value)
			}
			if _, err := Load(configViper); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadStorageIgnoresServerSecrets(t *testing.T) {
	configViper := NewViper()
	configViper.Set("database.driver", "MySQL")
	configViper.Set("database.dsn", "user:pass@tcp(localhost:3306)/ambassador")
	configViper.Set("cache.redis_address", " localhost:6379 ")

	cfg, err := LoadStorage(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabaseDriver != DatabaseDriverMySQL {
		t.Fatalf("expected mysql driver, got %q", cfg.DatabaseDriver)
	}
	if cfg.RedisAddress != "localhost:6379" {
		t.Fatalf("expected trimmed redis address, got %q", cfg.RedisAddress)
	}
}
