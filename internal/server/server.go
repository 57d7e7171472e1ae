package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/lifecycle-gateway/internal/config"
	"github.com/tjfontaine/lifecycle-gateway/internal/interceptor"
	"github.com/tjfontaine/lifecycle-gateway/internal/metrics"
	"github.com/tjfontaine/lifecycle-gateway/internal/pipeline"
)

// Stage orders within the lifecycle chain. Host stages that establish
// identity run before the interceptor so it can observe their results.
const (
	consumerStageOrder    = 10
	interceptorStageOrder = 100
)

type Server struct {
	Router *chi.Mux
	Port   int
	Chain  *pipeline.Chain
	logger *slog.Logger
	http   *http.Server
}

// New builds the gateway router: global middleware, health and metrics
// endpoints, and one reverse proxy per configured route wrapped by the
// lifecycle chain. m may be nil when metrics are disabled.
func New(cfg *config.Config, logger *slog.Logger, plugin *interceptor.Plugin, m *metrics.Metrics) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(middleware.Recoverer)
	if cfg.Server.RequestTimeout > 0 {
		r.Use(TimeoutMiddleware(cfg.Server.RequestTimeout))
	}

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "lifecycle-gateway")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if m != nil && cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, m.Handler())
	}

	chain := pipeline.NewChain(logger)
	pipeline.Register(chain, "consumer", consumerStageOrder, ConsumerStage(cfg.ConsumerHeader))
	plugin.Register(chain, interceptorStageOrder)

	for _, route := range cfg.Routes {
		proxy, err := NewReverseProxy(route, logger)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", route.Name, err)
		}
		h := chain.Handler(route.Name, proxy)
		prefix := trimPrefix(route.PathPrefix)
		r.Handle(prefix, h)
		r.Handle(joinWildcard(prefix), h)
		logger.Debug("route mounted",
			slog.String("route", route.Name),
			slog.String("path_prefix", route.PathPrefix),
			slog.String("upstream", route.Upstream),
		)
	}

	return &Server{
		Router: r,
		Port:   cfg.Server.Port,
		Chain:  chain,
		logger: logger,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// trimPrefix drops trailing slashes so "/users/" mounts like "/users".
func trimPrefix(prefix string) string {
	if trimmed := strings.TrimRight(prefix, "/"); trimmed != "" {
		return trimmed
	}
	return "/"
}

func joinWildcard(prefix string) string {
	if prefix == "/" {
		return "/*"
	}
	return prefix + "/*"
}

// Start serves until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		slog.Int("port", s.Port),
		slog.Any("stages", s.Chain.Stages()),
	)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests,
// so their log phase still runs.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
