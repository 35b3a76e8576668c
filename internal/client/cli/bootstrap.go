package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/lecom/internal/client/api"
	"github.com/dmitrijs2005/lecom/internal/client/client"
	"github.com/dmitrijs2005/lecom/internal/client/config"
	"github.com/dmitrijs2005/lecom/internal/client/credentials"
	"github.com/dmitrijs2005/lecom/internal/client/migrations"
	"github.com/dmitrijs2005/lecom/internal/client/realtime"
	"github.com/dmitrijs2005/lecom/internal/client/refresh"
	"github.com/dmitrijs2005/lecom/internal/client/services"
	"github.com/dmitrijs2005/lecom/internal/logging"
	"github.com/dmitrijs2005/lecom/internal/metrics"
)

// Bootstrap assembles the client stack described by cfg: credential store,
// refresh coordinator, request pipeline, realtime manager and services.
// The returned cleanup closes the realtime session and the credentials
// database.
func Bootstrap(ctx context.Context, cfg *config.Config, logger logging.Logger, m *metrics.Metrics) (*App, func() error, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	store, db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() error {
		if db == nil {
			return nil
		}
		return db.Close()
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	refresher := refresh.NewHTTPRefresher(cfg.RefreshEndpoint(), httpClient)
	coordinator := refresh.NewCoordinator(store, refresher,
		refresh.WithTimeout(cfg.RequestTimeout),
		refresh.WithLogger(logger),
		refresh.WithMetrics(m),
	)

	pipeline, err := client.New(cfg.APIBaseURL, store, coordinator,
		client.WithHTTPClient(httpClient),
		client.WithTimeout(cfg.RequestTimeout),
		client.WithLogger(logger),
		client.WithMetrics(m),
	)
	if err != nil {
		_ = closeDB()
		return nil, nil, err
	}

	hubURL, err := cfg.HubEndpoint()
	if err != nil {
		_ = closeDB()
		return nil, nil, err
	}
	manager := realtime.NewManager(realtime.NewWSTransportFactory(realtime.WSConfig{
		URL:     hubURL,
		Token:   func() string { return store.Get().AccessToken },
		Logger:  logger,
		Metrics: m,
	}), realtime.WithLogger(logger), realtime.WithMetrics(m))

	endpoints := api.New(pipeline)
	app := NewApp(Deps{
		Auth:   services.NewAuthService(endpoints.Auth, store, manager, logger),
		Chat:   services.NewChatService(endpoints.Chat, manager, logger),
		API:    endpoints,
		Sender: pipeline,
		Logger: logger,
	})

	cleanup := func() error {
		return errors.Join(manager.Close(), closeDB())
	}
	return app, cleanup, nil
}

// openStore returns the encrypted SQLite store when a vault passphrase is
// configured and an in-memory store otherwise. db is nil for the latter.
func openStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (credentials.Store, *sql.DB, error) {
	if cfg.VaultPassphrase == "" {
		return credentials.NewMemoryStore(), nil, nil
	}

	db, err := migrations.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open credentials db: %w", err)
	}
	store, err := credentials.OpenPersistentStore(ctx, db, []byte(cfg.VaultPassphrase), logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("open credentials store: %w", err)
	}
	return store, db, nil
}
