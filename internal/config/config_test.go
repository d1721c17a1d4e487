package config

import (
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTH0_URL", "https://tenant.auth0.example")
	t.Setenv("AUTH0_CLIENT_ID", "client-id")
	t.Setenv("AUTH0_CLIENT_SECRET", "client-secret")
	t.Setenv("AUTH0_CONNECTION", "Username-Password-Authentication")
	t.Setenv("MSSQL_SERVER", "db.internal:1433")
	t.Setenv("MSSQL_DATABASE", "clients")
	t.Setenv("MSSQL_USERNAME", "sync")
	t.Setenv("MSSQL_PASSWORD", "sync-pw")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.MaxRetries != 3 {
		t.Fatalf("expected default max retries 3, got %d", cfg.MaxRetries)
	}
	if cfg.BackoffFactor != 2 {
		t.Fatalf("expected default backoff factor 2, got %d", cfg.BackoffFactor)
	}
	if cfg.IgnoreUsers != "admin" {
		t.Fatalf("expected default ignore list, got %q", cfg.IgnoreUsers)
	}
	if cfg.Table != "[clients].[users_mock]" {
		t.Fatalf("expected default table, got %q", cfg.Table)
	}
	if cfg.UserLimit != 0 {
		t.Fatalf("expected unlimited roster by default, got %d", cfg.UserLimit)
	}
	if cfg.RolePrefix != "superset_" {
		t.Fatalf("expected default role prefix, got %q", cfg.RolePrefix)
	}
	if cfg.DryRun {
		t.Fatalf("expected dry run off by default")
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level, got %q", cfg.LogLevel)
	}
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTH0_MAX_RETRIES", "5")
	t.Setenv("AUTH0_BACKOFF_FACTOR", "3")
	t.Setenv("CLIENT_IGNORE_USERS", "admin,ops@example.com")
	t.Setenv("SYNC_USER_LIMIT", "10")
	t.Setenv("SYNC_DRY_RUN", "true")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.MaxRetries != 5 {
		t.Fatalf("expected max retries override, got %d", cfg.MaxRetries)
	}
	if cfg.BackoffFactor != 3 {
		t.Fatalf("expected backoff override, got %d", cfg.BackoffFactor)
	}
	if cfg.IgnoreUsers != "admin,ops@example.com" {
		t.Fatalf("expected ignore list override, got %q", cfg.IgnoreUsers)
	}
	if cfg.UserLimit != 10 {
		t.Fatalf("expected user limit override, got %d", cfg.UserLimit)
	}
	if !cfg.DryRun {
		t.Fatalf("expected dry run override")
	}
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTH0_CLIENT_SECRET", "")

	_, err := Load(NewViper())
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	if !strings.Contains(err.Error(), "auth0.client_secret") {
		t.Fatalf("expected error to name the missing key, got %v", err)
	}
}

func TestLoadRejectsInvalidRetryEnvelope(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTH0_MAX_RETRIES", "0")

	if _, err := Load(NewViper()); err == nil {
		t.Fatalf("expected validation failure for zero retries")
	}
}
