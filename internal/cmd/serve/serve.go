package serve

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chatstack/chat-service/internal/config"
	registrycache "github.com/chatstack/chat-service/internal/registry/cache"
	registryinference "github.com/chatstack/chat-service/internal/registry/inference"
	registrystore "github.com/chatstack/chat-service/internal/registry/store"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/chatstack/chat-service/internal/plugin/cache/noop"
	_ "github.com/chatstack/chat-service/internal/plugin/cache/redis"
	_ "github.com/chatstack/chat-service/internal/plugin/inference/echo"
	_ "github.com/chatstack/chat-service/internal/plugin/inference/huggingface"
	_ "github.com/chatstack/chat-service/internal/plugin/route/system"
	_ "github.com/chatstack/chat-service/internal/plugin/store/memory"
	_ "github.com/chatstack/chat-service/internal/plugin/store/mongo"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the chat service HTTP server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "mode",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_MODE"),
			Destination: &cfg.Mode,
			Value:       cfg.Mode,
			Usage:       "Security mode (prod|testing); testing mode accepts bearer tokens as user IDs",
		},
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port (0 = OS-assigned random port)",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.Int64Flag{
			Name:        "max-body-size",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_MAX_BODY_SIZE"),
			Destination: &cfg.MaxBodySize,
			Value:       cfg.MaxBodySize,
			Usage:       "Maximum request body size in bytes",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Graceful shutdown drain timeout in seconds",
		},
		&cli.BoolFlag{
			Name:        "cors-enabled",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_CORS_ENABLED"),
			Destination: &cfg.CORSEnabled,
			Usage:       "Enable CORS handling",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_SERVICE_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated allowed CORS origins; empty allows any origin",
		},

		// ── Database ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHAT_SERVICE_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Backend store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHAT_SERVICE_DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Database connection URL",
		},
		&cli.BoolFlag{
			Name:        "datastore-migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHAT_SERVICE_DATASTORE_MIGRATE_AT_START"),
			Destination: &cfg.DatastoreMigrateAtStart,
			Value:       cfg.DatastoreMigrateAtStart,
			Usage:       "Run datastore migrations on startup",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHAT_SERVICE_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHAT_SERVICE_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},

		// ── Cache ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHAT_SERVICE_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Provisioning cache backend (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHAT_SERVICE_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL",
		},
		&cli.DurationFlag{
			Name:        "provision-cache-ttl",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHAT_SERVICE_PROVISION_CACHE_TTL"),
			Destination: &cfg.ProvisionCacheTTL,
			Value:       cfg.ProvisionCacheTTL,
			Usage:       "How long a provisioned-user mark stays fresh",
		},

		// ── Inference ─────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "inference-kind",
			Category:    "Inference:",
			Sources:     cli.EnvVars("CHAT_SERVICE_INFERENCE_KIND"),
			Destination: &cfg.InferenceType,
			Value:       cfg.InferenceType,
			Usage:       "Inference backend (" + strings.Join(registryinference.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "hf-api-key",
			Category:    "Inference:",
			Sources:     cli.EnvVars("CHAT_SERVICE_HF_API_KEY", "HF_API_KEY"),
			Destination: &cfg.HFAPIKey,
			Usage:       "HuggingFace API key",
		},
		&cli.StringFlag{
			Name:        "hf-model",
			Category:    "Inference:",
			Sources:     cli.EnvVars("CHAT_SERVICE_HF_MODEL"),
			Destination: &cfg.HFModel,
			Value:       cfg.HFModel,
			Usage:       "Model identifier sent to the inference router",
		},
		&cli.StringFlag{
			Name:        "hf-router-url",
			Category:    "Inference:",
			Sources:     cli.EnvVars("CHAT_SERVICE_HF_ROUTER_URL"),
			Destination: &cfg.HFRouterURL,
			Value:       cfg.HFRouterURL,
			Usage:       "Base URL of the OpenAI-compatible inference router",
		},
		&cli.DurationFlag{
			Name:        "inference-timeout",
			Category:    "Inference:",
			Sources:     cli.EnvVars("CHAT_SERVICE_INFERENCE_TIMEOUT"),
			Destination: &cfg.InferenceTimeout,
			Value:       cfg.InferenceTimeout,
			Usage:       "Timeout applied to each upstream inference request",
		},

		// ── Authorization ─────────────────────────────────────────
		&cli.StringFlag{
			Name:        "oidc-issuer",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("CHAT_SERVICE_OIDC_ISSUER"),
			Destination: &cfg.OIDCIssuer,
			Usage:       "OIDC issuer URL (enables OIDC auth)",
		},
		&cli.StringFlag{
			Name:        "oidc-discovery-url",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("CHAT_SERVICE_OIDC_DISCOVERY_URL"),
			Destination: &cfg.OIDCDiscoveryURL,
			Usage:       "OIDC discovery URL (internal URL when issuer is not directly reachable)",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("CHAT_SERVICE_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       "service=chat-service",
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}
