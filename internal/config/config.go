package config

import (
	"context"
	"time"
)

// ListenerConfig holds the network settings for the HTTP listener.
type ListenerConfig struct {
	Port              int
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// Config holds all configuration for the chat service.
type Config struct {
	// Mode controls security behavior: "prod" (default) or "testing".
	// In testing mode, bearer tokens are accepted verbatim as user IDs.
	Mode string

	// Database
	DBURL string

	// Datastore backend type
	DatastoreType string // "mongo" or "memory"

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// Database pool sizing.
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Provisioning cache backend type
	CacheType string // "redis" or "none"

	// Redis
	RedisURL string

	// How long a provisioned-user mark stays fresh in the cache.
	ProvisionCacheTTL time.Duration

	// Inference backend type
	InferenceType string // "huggingface" or "echo"

	// HuggingFace inference router.
	HFAPIKey    string
	HFModel     string
	HFRouterURL string

	// Timeout applied to each upstream inference request.
	InferenceTimeout time.Duration

	// OIDC
	OIDCIssuer       string
	OIDCDiscoveryURL string

	// Comma-separated key=value pairs added as constant labels to all metrics.
	MetricsLabels string

	// HTTP listener
	Listener ListenerConfig

	// CORS
	CORSEnabled bool
	CORSOrigins string

	// Maximum request body size in bytes.
	MaxBodySize int64

	// Graceful shutdown drain timeout in seconds.
	DrainTimeout int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Mode:                    ModeProd,
		DatastoreType:           "mongo",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,
		CacheType:               "none",
		ProvisionCacheTTL:       5 * time.Minute,
		InferenceType:           "huggingface",
		HFModel:                 "deepseek/deepseek-v3-0324",
		HFRouterURL:             "https://router.huggingface.co/novita/v3/openai",
		InferenceTimeout:        60 * time.Second,
		Listener: ListenerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
		},
		MaxBodySize:  1 << 20,
		DrainTimeout: 30,
	}
}
