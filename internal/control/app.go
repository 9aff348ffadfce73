// Package control wires configuration into a running backstop service.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/vietddude/backstop/internal/core/config"
	"github.com/vietddude/backstop/internal/core/identity"
	"github.com/vietddude/backstop/internal/core/worker"
	redisclient "github.com/vietddude/backstop/internal/infra/redis"
	"github.com/vietddude/backstop/internal/infra/storage"
	"github.com/vietddude/backstop/internal/infra/storage/memory"
	"github.com/vietddude/backstop/internal/infra/upstream"
	"github.com/vietddude/backstop/internal/response"
	"github.com/vietddude/backstop/internal/response/render"
	"github.com/vietddude/backstop/internal/server"
)

// App is the main application struct that manages the service lifecycle.
type App struct {
	cfg         *config.AppConfig
	identity    *identity.Cell
	boundary    *response.Boundary
	journal     storage.JournalRepository
	upstreams   []*upstream.Client
	server      *server.Server
	pruner      *worker.Pruner
	redisClient *redisclient.Client
	log         *slog.Logger
}

// NewApp creates an App with all dependencies initialized.
func NewApp(cfg *config.AppConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "backstop")

	// 1. Failure journal
	var journal storage.JournalRepository
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		journal = redisclient.NewJournalRepo(redisClient, cfg.Journal.Prefix, cfg.Journal.TTL)
		log.Info("Using Redis failure journal", "prefix", cfg.Journal.Prefix, "ttl", cfg.Journal.TTL)
	} else {
		journal = memory.NewJournalRepo(cfg.Journal.Capacity)
		log.Info("Using in-memory failure journal", "capacity", cfg.Journal.Capacity)
	}

	// 2. Error boundary
	cell := identity.NewCell(cfg.Server.Name)
	boundary := response.NewBoundary(response.BoundaryConfig{
		Logger:    logger,
		Renderers: render.NewRegistry(render.DefaultTemplates()),
		Assembler: response.NewAssembler(cell),
		Journal:   journal,
	})

	// 3. Upstreams
	policy := cfg.Retry.Policy()
	upstreams := make([]*upstream.Client, 0, len(cfg.Upstreams))
	for _, u := range cfg.Upstreams {
		c, err := upstream.NewClient(u, policy, logger)
		if err != nil {
			if redisClient != nil {
				redisClient.Close()
			}
			return nil, err
		}
		upstreams = append(upstreams, c)
	}

	// 4. HTTP server
	srv := server.New(server.Config{
		Port:            cfg.Server.Port,
		Identity:        cell,
		InstanceID:      cfg.Server.InstanceID,
		PrincipalHeader: cfg.Server.PrincipalHeader,
		SupportURL:      cfg.Server.SupportURL,
	}, boundary, journal, upstreams, logger)

	return &App{
		cfg:         cfg,
		identity:    cell,
		boundary:    boundary,
		journal:     journal,
		upstreams:   upstreams,
		server:      srv,
		pruner:      worker.NewPruner(cfg.Journal.TTL, journal, logger),
		redisClient: redisClient,
		log:         log,
	}, nil
}

// Handler returns the HTTP handler served by the app.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Start starts the HTTP server and the journal pruner in the background.
func (a *App) Start(ctx context.Context) error {
	go a.pruner.Start(ctx)

	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()
	a.log.Info("Backstop started",
		"port", a.cfg.Server.Port,
		"instance", a.cfg.Server.InstanceID,
		"upstreams", len(a.upstreams),
	)
	return nil
}

// Reload applies the settings that can change without a restart.
func (a *App) Reload(cfg *config.AppConfig) {
	if cfg.Server.Name != a.identity.Load() {
		a.log.Info("Server name changed", "from", a.identity.Load(), "to", cfg.Server.Name)
	}
	a.identity.Store(cfg.Server.Name)
}

// ServerName returns the name advertised in error responses.
func (a *App) ServerName() string {
	return a.identity.Load()
}

// Stop gracefully shuts the app down.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping Backstop...")

	err := a.server.Stop(ctx)

	for _, c := range a.upstreams {
		c.Close()
	}

	// Close Redis
	if a.redisClient != nil {
		if cerr := a.redisClient.Close(); cerr != nil {
			a.log.Warn("Failed to close Redis", "error", cerr)
		}
	}
	return err
}

// Probe fetches rawURL under the configured retry policy. A failed fetch is
// rendered exactly as the server would render it for accept.
func (a *App) Probe(ctx context.Context, rawURL, accept string) (response.Response, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		return response.Response{}, fmt.Errorf("invalid url %q", rawURL)
	}

	client, err := upstream.NewClient(upstream.Config{
		Name: target.Host,
		URL:  (&url.URL{Scheme: target.Scheme, Host: target.Host}).String(),
	}, a.cfg.Retry.Policy(), a.log)
	if err != nil {
		return response.Response{}, err
	}
	defer client.Close()

	cid := uuid.NewString()
	header := http.Header{}
	header.Set(server.CIDHeader, cid)
	if accept != "" {
		header.Set("Accept", accept)
	}

	res, ferr := client.Get(ctx, target.Path, target.RawQuery, header)
	if ferr == nil {
		return response.Response{
			Status:  res.Status,
			Headers: map[string]string{"content-type": res.Header.Get("Content-Type")},
			Body:    res.Body,
		}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return response.Response{}, err
	}
	req.Header = header
	rctx := response.WithServiceID(req.Context(), a.identity.Load())
	rctx = response.WithInstanceID(rctx, a.cfg.Server.InstanceID)
	return a.boundary.Respond(req.WithContext(rctx), ferr), nil
}
