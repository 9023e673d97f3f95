// ABOUTME: Gateway orchestrator that hosts a bot over HTTP and exposes gRPC health
// ABOUTME: Wires storage, state, adapter, middleware, skills, and server lifecycle from config

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/2389/coven-botkit/internal/adapter"
	"github.com/2389/coven-botkit/internal/auth"
	"github.com/2389/coven-botkit/internal/config"
	"github.com/2389/coven-botkit/internal/pipeline"
	"github.com/2389/coven-botkit/internal/skills"
	"github.com/2389/coven-botkit/internal/state"
	"github.com/2389/coven-botkit/internal/storage"
	"github.com/2389/coven-botkit/internal/telemetry"
	"github.com/2389/coven-botkit/internal/transcript"
)

// HealthService is the gRPC health service name reported by the gateway.
const HealthService = "coven.botkit"

// Gateway errors
var (
	ErrNilConfig     = errors.New("config cannot be nil")
	ErrNilBotFactory = errors.New("bot factory cannot be nil")
)

// Services are the components a bot can use.
type Services struct {
	Storage           storage.Storage
	UserState         *state.BotState
	ConversationState *state.BotState
	PrivateState      *state.BotState
	Adapter           *adapter.Adapter
	Skills            *skills.Registry
	Transcripts       transcript.Store
	Logger            *slog.Logger
}

// BotFactory builds the bot handler once the services exist.
type BotFactory func(svc *Services) (pipeline.Handler, error)

// Gateway hosts a bot.
type Gateway struct {
	config     *config.Config
	services   *Services
	bot        pipeline.Handler
	adapter    *adapter.Adapter
	skills     *skills.Handler
	verifier   auth.TokenVerifier
	limiter    *conversationLimiter
	metrics    *prometheus.Registry
	tracing    *telemetry.Provider
	grpcServer *grpc.Server
	health     *health.Server
	httpServer *http.Server
	closers    []namedCloser
	logger     *slog.Logger
}

type namedCloser struct {
	name  string
	close func() error
}

// New builds a gateway from cfg. The bot is created by newBot with the
// gateway's services.
func New(ctx context.Context, cfg *config.Config, newBot BotFactory, logger *slog.Logger) (*Gateway, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if newBot == nil {
		return nil, ErrNilBotFactory
	}
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		config: cfg,
		logger: logger.With("component", "gateway"),
	}
	if err := g.init(ctx, newBot, logger); err != nil {
		g.closeAll()
		return nil, err
	}
	return g, nil
}

func (g *Gateway) init(ctx context.Context, newBot BotFactory, logger *slog.Logger) error {
	cfg := g.config

	tracing, err := telemetry.Init(ctx, telemetry.TracingOptions{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
	}, logger)
	if err != nil {
		return err
	}
	g.tracing = tracing
	g.addCloser("tracing", func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tracing.Shutdown(shutdownCtx)
	})

	store, closeStore, err := openStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	g.addCloser("storage", closeStore)

	svc := &Services{Storage: store, Logger: logger}
	if svc.UserState, err = state.NewUserState(store); err != nil {
		return err
	}
	if svc.ConversationState, err = state.NewConversationState(store); err != nil {
		return err
	}
	if svc.PrivateState, err = state.NewPrivateConversationState(store); err != nil {
		return err
	}
	if svc.Skills, err = skills.NewRegistry(store); err != nil {
		return err
	}
	if svc.Transcripts, err = g.openTranscripts(); err != nil {
		return err
	}

	credentials, err := newCredentials(cfg.Bot)
	if err != nil {
		return err
	}
	var tokens adapter.TokenSource
	opts := []adapter.Option{
		adapter.WithLogger(logger),
		adapter.WithOAuthScope(cfg.Bot.OAuthScope),
		adapter.WithOnTurnError(adapter.DefaultOnTurnError(logger)),
	}
	if credentials != nil {
		tokens = credentials
		opts = append(opts, adapter.WithCredentials(credentials))
	}
	connector := adapter.NewHTTPConnector(tokens, adapter.WithConnectorLogger(logger))
	if svc.Adapter, err = adapter.New(connector, opts...); err != nil {
		return err
	}
	g.adapter = svc.Adapter
	g.addCloser("adapter", svc.Adapter.Close)
	g.services = svc

	middleware, err := g.buildMiddleware(logger)
	if err != nil {
		return err
	}
	g.adapter.Use(middleware...)

	if g.bot, err = newBot(svc); err != nil {
		return fmt.Errorf("creating bot: %w", err)
	}
	if g.skills, err = skills.NewHandler(g.adapter, g.bot, svc.Skills, logger); err != nil {
		return err
	}

	if cfg.Auth.JWTSecret != "" {
		var verifierOpts []auth.VerifierOption
		if cfg.Auth.Issuer != "" {
			verifierOpts = append(verifierOpts, auth.WithIssuer(cfg.Auth.Issuer))
		}
		if cfg.Auth.Audience != "" {
			verifierOpts = append(verifierOpts, auth.WithAudience(cfg.Auth.Audience))
		}
		g.verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret), verifierOpts...)
	} else {
		g.logger.Warn("auth disabled - no jwt_secret configured")
	}

	g.limiter = newConversationLimiter(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)
	g.addCloser("rate limiter", func() error {
		g.limiter.Close()
		return nil
	})

	g.health = health.NewServer()
	g.grpcServer = grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	healthpb.RegisterHealthServer(g.grpcServer, g.health)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Services returns the components shared with the bot.
func (g *Gateway) Services() *Services {
	return g.services
}

// Handler returns the HTTP handler serving the bot endpoints.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	authMiddleware := auth.HTTPAuthMiddleware(g.verifier, g.logger)

	mux.Handle("POST /api/messages", authMiddleware(http.HandlerFunc(g.handleMessages)))
	mux.Handle("POST /api/skills/v3/conversations/{conversationId}/activities", authMiddleware(http.HandlerFunc(g.handleSkillSend)))
	mux.Handle("POST /api/skills/v3/conversations/{conversationId}/activities/{activityId}", authMiddleware(http.HandlerFunc(g.handleSkillReply)))
	mux.Handle("PUT /api/skills/v3/conversations/{conversationId}/activities/{activityId}", authMiddleware(http.HandlerFunc(g.handleSkillUpdate)))
	mux.Handle("DELETE /api/skills/v3/conversations/{conversationId}/activities/{activityId}", authMiddleware(http.HandlerFunc(g.handleSkillDelete)))

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	if g.metrics != nil {
		mux.Handle("GET "+g.config.Metrics.Path, metricsHandler(g.metrics))
	}
	return mux
}

func (g *Gateway) setupListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"grpc_addr", g.config.Server.GRPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
	)

	if g.config.Server.GRPCAddr != "" {
		grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		if grpcLn != nil {
			_ = grpcLn.Close()
		}
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	return grpcLn, httpLn, nil
}

func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	if grpcLn != nil {
		go func() {
			g.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
			if err := g.grpcServer.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run serves until ctx is canceled or a server fails, then shuts down.
func (g *Gateway) Run(ctx context.Context) error {
	grpcListener, httpListener, err := g.setupListeners()
	if err != nil {
		return err
	}

	g.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	g.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)

	errCh := g.startServers(grpcListener, httpListener)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.config.Server.ShutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// Shutdown stops the servers and releases every component.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	g.health.Shutdown()
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	g.shutdownGRPCServer(ctx)

	if err := g.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (g *Gateway) addCloser(name string, fn func() error) {
	g.closers = append(g.closers, namedCloser{name: name, close: fn})
}

// closeAll closes components in reverse order of creation.
func (g *Gateway) closeAll() error {
	var errs []error
	for i := len(g.closers) - 1; i >= 0; i-- {
		c := g.closers[i]
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("%s close: %w", c.name, err))
		}
	}
	g.closers = nil
	return errors.Join(errs...)
}
