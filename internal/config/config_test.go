package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ALLOWED_ORIGIN", "DATABASE_URL", "REDIS_ADDR", "DEFAULT_TENANT",
		"REPORT_CACHE_TTL_SECONDS", "QUERY_TIMEOUT_SECONDS", "AUTH_SECRET", "ACCESS_TOKEN_TTL_MINUTES",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.DefaultTenant != "default" {
		t.Errorf("DefaultTenant = %q", cfg.DefaultTenant)
	}
	if cfg.ReportCacheTTL != 300*time.Second {
		t.Errorf("ReportCacheTTL = %s", cfg.ReportCacheTTL)
	}
	if cfg.QueryTimeout != 5*time.Second {
		t.Errorf("QueryTimeout = %s", cfg.QueryTimeout)
	}
	if cfg.AccessTokenTTL != 480*time.Minute {
		t.Errorf("AccessTokenTTL = %s", cfg.AccessTokenTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "60")
	t.Setenv("QUERY_TIMEOUT_SECONDS", "2")
	t.Setenv("DEFAULT_TENANT", "mainbranch")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.ReportCacheTTL != time.Minute {
		t.Errorf("ReportCacheTTL = %s", cfg.ReportCacheTTL)
	}
	if cfg.QueryTimeout != 2*time.Second {
		t.Errorf("QueryTimeout = %s", cfg.QueryTimeout)
	}
	if cfg.DefaultTenant != "mainbranch" {
		t.Errorf("DefaultTenant = %q", cfg.DefaultTenant)
	}
}

func TestLoadIgnoresUnparsableInts(t *testing.T) {
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.ReportCacheTTL != 300*time.Second {
		t.Errorf("ReportCacheTTL = %s, want the 300s default", cfg.ReportCacheTTL)
	}
}
