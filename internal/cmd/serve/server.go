package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/charmbracelet/log"
	internalchat "github.com/chatstack/chat-service/internal/chat"
	"github.com/chatstack/chat-service/internal/config"
	"github.com/chatstack/chat-service/internal/identity"
	routechat "github.com/chatstack/chat-service/internal/plugin/route/chat"
	"github.com/chatstack/chat-service/internal/plugin/route/conversations"
	routesystem "github.com/chatstack/chat-service/internal/plugin/route/system"
	"github.com/chatstack/chat-service/internal/plugin/route/users"
	storemetrics "github.com/chatstack/chat-service/internal/plugin/store/metrics"
	registrycache "github.com/chatstack/chat-service/internal/registry/cache"
	registryinference "github.com/chatstack/chat-service/internal/registry/inference"
	registrymigrate "github.com/chatstack/chat-service/internal/registry/migrate"
	registryroute "github.com/chatstack/chat-service/internal/registry/route"
	registrystore "github.com/chatstack/chat-service/internal/registry/store"
	"github.com/chatstack/chat-service/internal/security"
	"github.com/gin-gonic/gin"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config *config.Config
	Store  registrystore.ConversationStore
	Router *gin.Engine
	// Port is the port actually bound, useful when cfg.Listener.Port is 0.
	Port int

	httpServer *http.Server
}

// Shutdown gracefully shuts down the server and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if closeErr := s.Store.Close(ctx); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// StartServer initializes all subsystems and starts the HTTP server.
// Use cfg.Listener.Port=0 for a random port; the bound port is Server.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting chat service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
		"inference", cfg.InferenceType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	// Run migrations
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	// Initialize the provisioning cache; fall back to the noop cache so a
	// misconfigured redis never keeps the service from starting.
	var provisionCache registrycache.ProvisionCache
	if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
	} else if provisionCache, err = cacheLoader(ctx); err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
		provisionCache = nil
	}
	if provisionCache == nil {
		noopLoader, err := registrycache.Select("none")
		if err != nil {
			return nil, err
		}
		if provisionCache, err = noopLoader(ctx); err != nil {
			return nil, err
		}
	}

	// Initialize store
	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	// Initialize inference client
	inferenceLoader, err := registryinference.Select(cfg.InferenceType)
	if err != nil {
		return nil, err
	}
	llm, err := inferenceLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize inference client: %w", err)
	}
	log.Info("Inference client ready", "kind", cfg.InferenceType, "model", llm.ModelName())

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	// Mount main route plugins on the main router.
	for _, loader := range registryroute.MainRouteLoaders() {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}

	// Create the shared token resolver and auth middleware. Provisioning runs
	// on every authenticated request, throttled by the cache.
	resolver := security.NewTokenResolver(cfg)
	provisioner := identity.NewProvisioner(store, provisionCache, cfg.ProvisionCacheTTL)
	auth := security.AuthMiddleware(resolver, provisioner.EnsureProvisioned)
	optionalAuth := security.OptionalAuthMiddleware(resolver, provisioner.EnsureProvisioned)

	// Mount API routes
	orch := internalchat.NewOrchestrator(store, llm)
	routechat.MountRoutes(router, orch, optionalAuth)
	conversations.MountRoutes(router, store, auth)
	users.MountRoutes(router, store, auth)

	// Mount management route plugins on the main router.
	for _, loader := range registryroute.ManagementRouteLoaders() {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load management routes: %w", err)
		}
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Listener.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", cfg.Listener.Port, err)
	}
	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: cfg.Listener.ReadHeaderTimeout,
	}
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "err", err)
		}
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	log.Info("Server listening", "port", port)

	routesystem.MarkReady()
	return &Server{
		Config:     cfg,
		Store:      store,
		Router:     router,
		Port:       port,
		httpServer: httpServer,
	}, nil
}
