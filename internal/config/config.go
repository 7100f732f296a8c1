// Package config defines the global configuration structure for the planguard
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved from the OS environment, with an optional .env file for
// local development. Any missing required value or invalid format causes the
// application to fail immediately on startup.
package config

import (
	"time"

	"planguard/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the planguard service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// TenantID identifies the tenant instance this service guards. It is
	// the default tenant for scheduled syncs; check requests may name any
	// tenant explicitly.
	TenantID string `envconfig:"TENANT_ID" validate:"required"`

	// Domain Configurations
	Server    ServerConfig
	Authority AuthorityConfig
	Cache     CacheConfig
	Database  DatabaseConfig
	Ops       OpsConfig
	Jobs      JobsConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// AuthorityConfig holds the connection parameters for the remote plan
// authority that owns subscription truth.
type AuthorityConfig struct {
	// URL is the full endpoint for the limits lookup, e.g.
	// https://master.example.com/api/subscription/limits
	URL string `envconfig:"AUTHORITY_URL" validate:"required,url"`

	// Timeout bounds a single limits fetch. A fetch either completes or
	// times out; there is no retry inside the client.
	Timeout time.Duration `envconfig:"AUTHORITY_TIMEOUT" default:"10s"`

	UserAgent string `envconfig:"AUTHORITY_USER_AGENT" default:"Planguard/1.0"`
}

// CacheConfig tunes the in-process snapshot cache.
type CacheConfig struct {
	// TTL is how long a fetched snapshot is served without consulting the
	// authority again.
	TTL time.Duration `envconfig:"CACHE_TTL" default:"1h" validate:"gt=0"`

	// EmergencyTTL is the short re-check interval applied to fail-closed
	// emergency snapshots, so a recovered authority is picked up promptly
	// without hammering a down one.
	EmergencyTTL time.Duration `envconfig:"CACHE_EMERGENCY_TTL" default:"60s" validate:"gt=0"`

	// MaxTenants bounds the number of cached tenant entries.
	MaxTenants int `envconfig:"CACHE_MAX_TENANTS" default:"1024" validate:"gt=0"`
}

// DatabaseConfig holds the tenant database connection used for usage
// counters and the snapshot mirror. When URL is empty, both are disabled and
// callers must supply usage counts in check requests.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"4"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// OpsConfig secures the debugging surface (refresh, cached-snapshot view).
type OpsConfig struct {
	// Secret gates the ops endpoints via the X-Planguard-Secret header.
	// Empty disables the ops surface entirely.
	Secret SecretString `envconfig:"OPS_SECRET"`
}

// JobsConfig holds cron expressions for the scheduled maintenance jobs.
type JobsConfig struct {
	// SyncSchedule pre-warms the default tenant's limits cache on a cron
	// schedule. Empty disables the job.
	SyncSchedule string `envconfig:"SYNC_SCHEDULE" default:"5 0 * * *"`

	// CounterPurgeSchedule removes stale daily email-counter rows.
	CounterPurgeSchedule string `envconfig:"COUNTER_PURGE_SCHEDULE" default:"30 0 * * *"`

	// CounterRetention is how far back email counter rows are kept.
	CounterRetention time.Duration `envconfig:"COUNTER_RETENTION" default:"168h"`
}

// BuildInfo carries compile-time version metadata.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}
