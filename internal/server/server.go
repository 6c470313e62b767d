// ABOUTME: Server orchestrator that wires config, security pipeline, tool
// ABOUTME: registry, and the selected transport, and manages their lifecycle.

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/insightfinder/mcp-server/internal/auth"
	"github.com/insightfinder/mcp-server/internal/config"
	"github.com/insightfinder/mcp-server/internal/insightfinder"
	"github.com/insightfinder/mcp-server/internal/mcp"
	"github.com/insightfinder/mcp-server/internal/ratelimit"
	"github.com/insightfinder/mcp-server/internal/sse"
	"github.com/insightfinder/mcp-server/internal/tools"
	"github.com/insightfinder/mcp-server/internal/validate"
)

const shutdownTimeout = 5 * time.Second

// Server ties the tool registry, security pipeline, and transports
// together.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	dispatcher *mcp.Dispatcher
	limiter    *ratelimit.Limiter
	manager    *sse.Manager
	httpServer *http.Server
}

// New builds a fully wired Server from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := insightfinder.NewClient(cfg.InsightFinder.APIURL, logger)

	registry := mcp.NewRegistry()
	if err := tools.RegisterAll(registry, client, logger); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	limits := validate.Limits{
		MaxPayloadSize:  cfg.Limits.MaxPayloadSize,
		MaxStringLength: cfg.Limits.MaxStringLength,
	}
	dispatcher := mcp.NewDispatcher(registry, limits, logger)

	limiter := ratelimit.New(cfg.Limits.MaxRequestsPerMinute, cfg.Limits.RateLimitEnabled, logger)
	manager := sse.NewManager(cfg.SSE.MaxConnections, cfg.SSE.QueueSize, cfg.SSE.HeartbeatInterval, logger)

	s := &Server{
		cfg:        cfg,
		logger:     logger.With("component", "server"),
		dispatcher: dispatcher,
		limiter:    limiter,
		manager:    manager,
	}

	if cfg.Server.Transport == config.TransportHTTP {
		authenticator, err := auth.FromConfig(&cfg.Auth, logger)
		if err != nil {
			limiter.Close()
			manager.Close()
			return nil, fmt.Errorf("configuring authentication: %w", err)
		}
		allowList, err := auth.ParseAllowList(cfg.Auth.IPWhitelist)
		if err != nil {
			limiter.Close()
			manager.Close()
			return nil, err
		}
		middleware := auth.NewMiddleware(authenticator, allowList, limiter, cfg.Auth.TrustProxyHeaders, logger)
		api := newHTTPAPI(cfg, dispatcher, manager, middleware, logger)
		s.httpServer = &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           api.router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return s, nil
}

// Run serves the configured transport until ctx is canceled or the
// transport fails.
func (s *Server) Run(ctx context.Context) error {
	defer s.limiter.Close()
	defer s.manager.Close()

	switch s.cfg.Server.Transport {
	case config.TransportStdio:
		return s.runStdio(ctx)
	case config.TransportHTTP:
		return s.runHTTP(ctx)
	default:
		return fmt.Errorf("unknown transport: %q", s.cfg.Server.Transport)
	}
}

func (s *Server) runStdio(ctx context.Context) error {
	var tenant *insightfinder.Credential
	if s.cfg.InsightFinder.LicenseKey != "" && s.cfg.InsightFinder.UserName != "" {
		tenant = &insightfinder.Credential{
			LicenseKey: s.cfg.InsightFinder.LicenseKey,
			UserName:   s.cfg.InsightFinder.UserName,
			APIURL:     s.cfg.InsightFinder.APIURL,
		}
	} else {
		s.logger.Warn("no default tenant configured, tool calls will be rejected")
	}

	limits := validate.Limits{
		MaxPayloadSize:  s.cfg.Limits.MaxPayloadSize,
		MaxStringLength: s.cfg.Limits.MaxStringLength,
	}
	stdio := mcp.NewStdioServer(s.dispatcher, limits, tenant, os.Stdin, os.Stdout, s.logger)

	s.logger.Info("serving on stdio")
	err := stdio.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) runHTTP(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down")
		// The run context is already canceled; shutdown gets its own.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
