// ABOUTME: Builds the gateway's storage, transcript store, credentials, and middleware stack
// ABOUTME: Each component is chosen and configured from its config section

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/2389/coven-botkit/internal/adapter"
	"github.com/2389/coven-botkit/internal/auth"
	"github.com/2389/coven-botkit/internal/config"
	"github.com/2389/coven-botkit/internal/inspect"
	"github.com/2389/coven-botkit/internal/pipeline"
	"github.com/2389/coven-botkit/internal/state"
	"github.com/2389/coven-botkit/internal/storage"
	"github.com/2389/coven-botkit/internal/telemetry"
	"github.com/2389/coven-botkit/internal/transcript"
)

// openStorage creates the state storage for the configured driver.
func openStorage(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Storage, func() error, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := storage.NewSQLiteStorage(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing storage: %w", err)
		}
		logger.Info("using sqlite storage", "path", cfg.Path)
		return s, s.Close, nil
	case config.DriverRedis:
		s, err := storage.NewRedisStorage(ctx, storage.RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("initializing storage: %w", err)
		}
		logger.Info("using redis storage", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		return s, s.Close, nil
	default:
		logger.Warn("using in-memory storage, state is lost on restart")
		return storage.NewMemoryStorage(), func() error { return nil }, nil
	}
}

func (g *Gateway) openTranscripts() (transcript.Store, error) {
	cfg := g.config.Transcript
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Path == "" {
		return transcript.NewMemoryStore(), nil
	}
	s, err := transcript.NewSQLiteStore(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing transcript store: %w", err)
	}
	g.addCloser("transcripts", s.Close)
	return s, nil
}

// newCredentials returns the outbound token cache, or nil when the bot has no
// password to sign with.
func newCredentials(cfg config.BotConfig) (*adapter.CredentialCache, error) {
	if cfg.AppPassword == "" {
		return nil, nil
	}
	signer := auth.NewJWTVerifier([]byte(cfg.AppPassword))
	return adapter.NewCredentialCache(
		cfg.AppID,
		adapter.JWTMint(signer, adapter.DefaultTokenLifetime),
		adapter.DefaultCredentialTTL,
		adapter.DefaultCredentialSize,
	)
}

// buildMiddleware assembles the turn pipeline in order: tracing, metrics,
// dedupe, inspection, transcript, typing, speak, markdown, auto-save.
func (g *Gateway) buildMiddleware(logger *slog.Logger) ([]pipeline.Middleware, error) {
	cfg := g.config
	svc := g.services

	middleware := []pipeline.Middleware{
		telemetry.NewTracing(otel.GetTracerProvider()),
	}

	if cfg.Metrics.Enabled {
		g.metrics = prometheus.NewRegistry()
		g.metrics.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		middleware = append(middleware, telemetry.NewMetrics(cfg.Metrics.Namespace, g.metrics))
	}

	if cfg.Dedupe.Enabled {
		d := pipeline.NewDedupe(cfg.Dedupe.TTL, cfg.Dedupe.MaxSize, logger)
		g.addCloser("dedupe", func() error {
			d.Close()
			return nil
		})
		middleware = append(middleware, d)
	}

	if cfg.Logging.Level == "debug" {
		inspector, err := inspect.NewInterceptor(
			inspect.NewLogInspector(logger, svc.UserState, svc.ConversationState),
			logger,
		)
		if err != nil {
			return nil, err
		}
		middleware = append(middleware, inspector)
	}

	if svc.Transcripts != nil {
		tl, err := transcript.NewLogger(svc.Transcripts, logger)
		if err != nil {
			return nil, err
		}
		middleware = append(middleware, tl)
	}

	if cfg.Typing.Enabled {
		typing, err := pipeline.NewShowTyping(cfg.Typing.Delay, cfg.Typing.Period, logger)
		if err != nil {
			return nil, err
		}
		middleware = append(middleware, typing)
	}

	if cfg.Bot.SpeakVoice != "" {
		middleware = append(middleware, pipeline.NewSetSpeak(cfg.Bot.SpeakVoice, true))
	}
	if len(cfg.Bot.MarkdownChannels) > 0 {
		middleware = append(middleware, pipeline.NewMarkdown(cfg.Bot.MarkdownChannels...))
	}

	middleware = append(middleware, state.AutoSave(svc.UserState, svc.ConversationState, svc.PrivateState))
	return middleware, nil
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
