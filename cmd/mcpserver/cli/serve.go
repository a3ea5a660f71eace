package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	redis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	jsonrpc "github.com/mutablelogic/mcp-streamhttp"
	"github.com/mutablelogic/mcp-streamhttp/capabilities"
	"github.com/mutablelogic/mcp-streamhttp/config"
	"github.com/mutablelogic/mcp-streamhttp/eventstore"
	"github.com/mutablelogic/mcp-streamhttp/internal/metrics"
	"github.com/mutablelogic/mcp-streamhttp/mcperror"
	"github.com/mutablelogic/mcp-streamhttp/middleware"
	"github.com/mutablelogic/mcp-streamhttp/rpc"
	"github.com/mutablelogic/mcp-streamhttp/session"
	"github.com/mutablelogic/mcp-streamhttp/stream"
	"github.com/mutablelogic/mcp-streamhttp/transport/httpmcp"
	authstore "github.com/mutablelogic/mcp-streamhttp/transport/server/auth"
	"github.com/mutablelogic/mcp-streamhttp/transport/server/http/sse"
)

var configPath string

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to a TOML config file (defaults applied when omitted)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Streamable HTTP transport server",
	RunE:  runServe,
}

// serverInfo names this runtime in the initialize handshake response.
type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := jsonrpc.NewStdLogger(nil)

	eventStore, closeStore, err := newEventStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("construct event store: %w", err)
	}
	defer closeStore()

	sessionStore, err := newSessionStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("construct session store: %w", err)
	}

	mgr := stream.NewManager(eventStore, stream.WithBufferSize(cfg.Session.EventBufferSize))
	dispatcher := rpc.NewDispatcher()

	capOpts := capabilities.Options{
		ResourcesSubscribe: cfg.Session.ResourcesSubscribe,
		Logging:            cfg.Session.Logging,
	}
	dispatcher.Register("initialize", newInitializeHandler(dispatcher, capOpts))

	var mw []middleware.Middleware
	var grantStore authstore.Store
	if cfg.Auth.Enabled {
		grantStore, err = newAuthStore(cfg)
		if err != nil {
			return fmt.Errorf("construct auth store: %w", err)
		}
		mw = append(mw, &middleware.AuthMiddleware{Store: grantStore, GrantID: middleware.GrantIDFromContext})
	}
	if cfg.RateLimit.Enabled {
		mw = append(mw, middleware.NewRateLimitMiddleware(cfg.RateLimit.Burst, cfg.RateLimit.RefillPerSecond))
	}
	chain := middleware.NewChain(mw...)

	mcpOpts := []httpmcp.Option{
		httpmcp.WithURI(cfg.Server.URI),
		httpmcp.WithSessionTTL(cfg.Session.TTL.Duration()),
		httpmcp.WithKeepaliveInterval(cfg.Session.KeepaliveInterval.Duration()),
		httpmcp.WithEventBufferSize(cfg.Session.EventBufferSize),
		httpmcp.WithStrictLifecycle(cfg.Session.StrictLifecycle),
		httpmcp.WithResourcesSubscribe(cfg.Session.ResourcesSubscribe),
		httpmcp.WithLogging(cfg.Session.Logging),
		httpmcp.WithSessionStore(sessionStore),
		httpmcp.WithCORS(httpmcp.CORSOptions{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowCredentials: cfg.CORS.AllowCredentials,
			UseTopDomain:     cfg.CORS.UseTopDomain,
		}),
	}
	if cfg.Auth.Enabled {
		authCookie := &httpmcp.BFFCookie{Name: cfg.Auth.CookieName, Path: "/", HTTPOnly: true, Secure: true}
		mcpOpts = append(mcpOpts,
			httpmcp.WithAuthStore(grantStore),
			httpmcp.WithAuthCookie(authCookie),
			httpmcp.WithRehydrateOnHandshake(true),
			httpmcp.WithLogoutAllPath("/logout"),
		)
	}
	mcpHandler := httpmcp.New(dispatcher, mgr, chain, mcpOpts...)

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)
	router.Use(chimw.Timeout(5 * time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.Server.EnableMetrics {
		router.Handle("/metrics", metrics.Handler())
	}
	router.Handle(cfg.Server.URI, mcpHandler)
	if cfg.Server.EnableLegacySSE {
		legacy := sse.New(session.NewRegistry(session.WithTTL(cfg.Session.TTL.Duration()), session.WithStore(sessionStore)), mgr, dispatcher)
		router.Handle("/sse", legacy)
		router.Post("/message", legacy.ServeHTTP)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Errorf("mcpserver listening on %s (uri=%s)", addr, cfg.Server.URI)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go runSweeper(ctx, session.NewRegistry(session.WithTTL(cfg.Session.TTL.Duration()), session.WithStore(sessionStore)))

	return http.ListenAndServe(addr, router)
}

// newInitializeHandler returns the JSON-RPC handler for "initialize": it
// negotiates a protocol version and reports the same truthful capability
// snapshot the transport handler already stored on the session.
func newInitializeHandler(dispatcher *rpc.Dispatcher, opts capabilities.Options) rpc.Handler {
	return func(ctx context.Context, method string, params json.RawMessage) (interface{}, *mcperror.Error) {
		var body struct {
			ProtocolVersion string `json:"protocolVersion"`
		}
		_ = json.Unmarshal(params, &body)
		version := body.ProtocolVersion
		if version == "" {
			version = "2025-06-18"
		}
		return map[string]interface{}{
			"protocolVersion": version,
			"capabilities":    capabilities.Compute(dispatcher, opts),
			"serverInfo":      serverInfo{Name: "mcpserver", Version: "dev"},
		}, nil
	}
}

// runSweeper periodically expires sessions past their TTL, since no HTTP
// request path naturally calls Registry.Sweep.
func runSweeper(ctx context.Context, registry *session.Registry) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = registry.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func newEventStore(cfg config.StorageConfig) (eventstore.Store, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendSQLite:
		store, err := eventstore.NewSQLiteStore(cfg.SQLite.Path)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		return eventstore.NewRedisStore(rdb, "mcp:events:"), func() { _ = rdb.Close() }, nil
	case config.BackendPostgres, config.BackendDynamo:
		return nil, noop, fmt.Errorf("storage backend %q is documented but not vendored (no driver in the dependency pack)", cfg.Backend)
	default:
		return eventstore.NewMemoryStore(), noop, nil
	}
}

// newAuthStore constructs the durable BFF grant store backing AuthMiddleware
// and the handshake rehydrate/logout-all flow. Grant TTLs follow the session
// TTL rather than a separate config knob, since a grant outliving its
// session has no purpose in this transport-only deployment.
func newAuthStore(cfg config.Config) (authstore.Store, error) {
	idleTTL := cfg.Session.TTL.Duration()
	maxTTL := 24 * idleTTL
	rotateGrace := 30 * time.Second
	switch cfg.Auth.Backend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Storage.Redis.Addr, Password: cfg.Storage.Redis.Password, DB: cfg.Storage.Redis.DB})
		return authstore.NewRedisStore(rdb, "mcp:grant:", idleTTL, maxTTL, rotateGrace), nil
	case config.BackendPostgres, config.BackendDynamo:
		return nil, fmt.Errorf("auth backend %q is documented but not vendored (no driver in the dependency pack)", cfg.Auth.Backend)
	default:
		return authstore.NewMemoryStore(idleTTL, maxTTL, rotateGrace), nil
	}
}

func newSessionStore(cfg config.StorageConfig) (session.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return session.NewSQLiteStore(cfg.SQLite.Path)
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		return session.NewRedisStore(rdb, "mcp:session:"), nil
	case config.BackendPostgres, config.BackendDynamo:
		return nil, fmt.Errorf("storage backend %q is documented but not vendored (no driver in the dependency pack)", cfg.Backend)
	default:
		return session.NewMemoryStore(), nil
	}
}
