package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/fitsync/internal/adapter/marketplace"
	"github.com/xiaot623/gogo/fitsync/internal/config"
	"github.com/xiaot623/gogo/fitsync/internal/metrics"
	"github.com/xiaot623/gogo/fitsync/internal/observability"
	"github.com/xiaot623/gogo/fitsync/internal/poll"
	"github.com/xiaot623/gogo/fitsync/internal/policy"
	store "github.com/xiaot623/gogo/fitsync/internal/repository"
	"github.com/xiaot623/gogo/fitsync/internal/service"
)

// App is the fully wired sync engine for one command invocation.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Engine  *service.Engine

	store *store.SQLiteStore
}

// Close stops every poll job and releases the state database.
func (a *App) Close() {
	a.Engine.Close()
	if err := a.store.Close(); err != nil {
		a.Logger.Warn("close state store", zap.Error(err))
	}
	_ = a.Logger.Sync()
}

// NewApp builds the engine from cfg and restores the persisted session.
// A nil api selects the backend named by cfg.APIURL.
func NewApp(ctx context.Context, cfg *config.Config, api service.API) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	if api == nil {
		api, err = marketplace.NewFromURL(cfg.APIURL, cfg.APITimeout, cfg.APIRPS, cfg.APIBurst, logger)
		if err != nil {
			return nil, err
		}
	}

	st, err := store.NewSQLiteStore(cfg.StateDSN)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load access policy: %w", err)
	}

	m := metrics.New()
	session := service.NewSessionStore(api, st, policyEngine, logger)
	thread := service.NewThreadSync(api, session, m, logger)
	engine := service.NewEngine(
		session,
		service.NewConversationIndex(api, session, logger),
		thread,
		service.NewSendCoordinator(api, session, thread, m, logger),
		poll.NewScheduler(logger, m),
		service.EngineOptions{
			ConversationInterval: cfg.ConversationPollInterval,
			ThreadInterval:       cfg.ThreadPollInterval,
		},
		logger,
	)

	app := &App{Config: cfg, Logger: logger, Metrics: m, Engine: engine, store: st}
	if err := session.Initialize(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// openApp loads the configuration, applies the persistent flag overrides and
// builds the App.
func openApp(cmd *cobra.Command) (*App, error) {
	cfg := config.Load()
	if v, _ := cmd.Flags().GetString("api-url"); v != "" {
		cfg.APIURL = v
	}
	if v, _ := cmd.Flags().GetString("state"); v != "" {
		cfg.StateDSN = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	return NewApp(cmd.Context(), cfg, apiFrom(cmd))
}

type apiKey struct{}

// apiFrom returns a backend injected into the command context, if any.
func apiFrom(cmd *cobra.Command) service.API {
	if cmd.Context() == nil {
		return nil
	}
	api, _ := cmd.Context().Value(apiKey{}).(service.API)
	return api
}

// WithAPI returns a context that makes commands use api instead of dialing
// the configured backend.
func WithAPI(ctx context.Context, api service.API) context.Context {
	return context.WithValue(ctx, apiKey{}, api)
}
