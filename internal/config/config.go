package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultIgnoreUsers   = "admin"
	defaultMaxRetries    = 3
	defaultBackoffFactor = 2
	defaultTable         = "[clients].[users_mock]"
	defaultRolePrefix    = "superset_"
	defaultLogLevel      = "info"
)

// envBindings maps viper keys onto the exact environment variable
// names the deployment already uses. The Auth0 and MSSQL names predate
// this tool and must not change.
var envBindings = map[string]string{
	"auth0.url":           "AUTH0_URL",
	"auth0.client_id":     "AUTH0_CLIENT_ID",
	"auth0.client_secret": "AUTH0_CLIENT_SECRET",
	"auth0.connection":    "AUTH0_CONNECTION",
	"auth0.max_retries":   "AUTH0_MAX_RETRIES",
	"auth0.backoff":       "AUTH0_BACKOFF_FACTOR",
	"mssql.server":        "MSSQL_SERVER",
	"mssql.database":      "MSSQL_DATABASE",
	"mssql.username":      "MSSQL_USERNAME",
	"mssql.password":      "MSSQL_PASSWORD",
	"sync.ignore_users":   "CLIENT_IGNORE_USERS",
	"sync.table":          "SYNC_TABLE",
	"sync.user_limit":     "SYNC_USER_LIMIT",
	"sync.role_prefix":    "SYNC_ROLE_PREFIX",
	"sync.concurrency":    "SYNC_CONCURRENCY",
	"sync.dry_run":        "SYNC_DRY_RUN",
	"log.level":           "LOG_LEVEL",
}

// AppConfig captures runtime configuration for one sync run.
type AppConfig struct {
	Auth0URL          string
	Auth0ClientID     string
	Auth0ClientSecret string
	Auth0Connection   string
	MaxRetries        int
	BackoffFactor     int
	MSSQLServer       string
	MSSQLDatabase     string
	MSSQLUsername     string
	MSSQLPassword     string
	IgnoreUsers       string
	Table             string
	UserLimit         int
	RolePrefix        string
	Concurrency       int
	DryRun            bool
	LogLevel          string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	for key, env := range envBindings {
		_ = configViper.BindEnv(key, env)
	}

	configViper.SetDefault("auth0.max_retries", defaultMaxRetries)
	configViper.SetDefault("auth0.backoff", defaultBackoffFactor)
	configViper.SetDefault("sync.ignore_users", defaultIgnoreUsers)
	configViper.SetDefault("sync.table", defaultTable)
	configViper.SetDefault("sync.user_limit", 0)
	configViper.SetDefault("sync.role_prefix", defaultRolePrefix)
	configViper.SetDefault("sync.concurrency", 0)
	configViper.SetDefault("sync.dry_run", false)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		Auth0URL:          configViper.GetString("auth0.url"),
		Auth0ClientID:     configViper.GetString("auth0.client_id"),
		Auth0ClientSecret: configViper.GetString("auth0.client_secret"),
		Auth0Connection:   configViper.GetString("auth0.connection"),
		MaxRetries:        configViper.GetInt("auth0.max_retries"),
		BackoffFactor:     configViper.GetInt("auth0.backoff"),
		MSSQLServer:       configViper.GetString("mssql.server"),
		MSSQLDatabase:     configViper.GetString("mssql.database"),
		MSSQLUsername:     configViper.GetString("mssql.username"),
		MSSQLPassword:     configViper.GetString("mssql.password"),
		IgnoreUsers:       configViper.GetString("sync.ignore_users"),
		Table:             configViper.GetString("sync.table"),
		UserLimit:         configViper.GetInt("sync.user_limit"),
		RolePrefix:        configViper.GetString("sync.role_prefix"),
		Concurrency:       configViper.GetInt("sync.concurrency"),
		DryRun:            configViper.GetBool("sync.dry_run"),
		LogLevel:          configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	required := []struct {
		value string
		name  string
	}{
		{c.Auth0URL, "auth0.url"},
		{c.Auth0ClientID, "auth0.client_id"},
		{c.Auth0ClientSecret, "auth0.client_secret"},
		{c.Auth0Connection, "auth0.connection"},
		{c.MSSQLServer, "mssql.server"},
		{c.MSSQLDatabase, "mssql.database"},
		{c.MSSQLUsername, "mssql.username"},
		{c.MSSQLPassword, "mssql.password"},
		{c.Table, "sync.table"},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%s is required", field.name)
		}
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("auth0.max_retries must be at least 1")
	}
	if c.BackoffFactor < 1 {
		return fmt.Errorf("auth0.backoff must be at least 1")
	}
	if c.UserLimit < 0 {
		return fmt.Errorf("sync.user_limit must not be negative")
	}
	return nil
}
