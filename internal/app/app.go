package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/atelier/internal/catalog"
	"github.com/aussiebroadwan/atelier/internal/permissions"
	"github.com/aussiebroadwan/atelier/internal/session"
	"github.com/aussiebroadwan/atelier/internal/storage/sqlite"
	"github.com/aussiebroadwan/atelier/internal/storefront"
	"github.com/aussiebroadwan/atelier/pkg/cryptox"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
	"github.com/aussiebroadwan/atelier/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application holds the client-side object graph: durable storage, the
// API client and the stores built on top of it.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store *sqlite.Store

	Client      *shopsdk.Client
	Session     *session.Manager
	Permissions *permissions.Store
	Categories  *catalog.Categories
	Shop        *catalog.Shop
	Storefront  *storefront.Page

	// Redirects receives the route the user should be sent to after a
	// logout or an unrecoverable expiry.
	Redirects chan string
}

// Option configures an Application.
type Option func(*options)

type options struct {
	logOutput io.Writer
	logger    *slog.Logger
}

// WithLogOutput sends logs to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithLogger replaces the configured logger entirely.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates an Application with all dependencies initialized. Restoring
// a stored session is left to Open.
func New(cfg Config, opts ...Option) (*Application, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slogx.New(slogx.Config{
			Service: "atelier",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  o.logOutput,
		})
	}

	app := &Application{
		cfg:       cfg,
		logger:    logger,
		Redirects: make(chan string, 1),
	}

	if err := app.initStorage(); err != nil {
		return nil, err
	}
	app.initClient()
	return app, nil
}

// initStorage opens the sealed sqlite credential store, creating the
// master key on first run.
func (app *Application) initStorage() error {
	key, err := cryptox.LoadOrCreateKey(app.cfg.MasterKeyPath)
	if err != nil {
		return fmt.Errorf("failed to load master key: %w", err)
	}
	sealer, err := cryptox.NewSealer(key)
	if err != nil {
		return fmt.Errorf("failed to create sealer: %w", err)
	}

	if err := ensureDir(app.cfg.StorePath); err != nil {
		return err
	}
	store, err := sqlite.Open(fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", app.cfg.StorePath), sealer)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	app.store = store
	app.logger.Debug("credential store ready", "path", app.cfg.StorePath)
	return nil
}

func (app *Application) initClient() {
	clientOpts := []shopsdk.Option{
		shopsdk.WithStorage(app.store),
		shopsdk.WithTimeout(app.cfg.Timeout),
		shopsdk.WithLogger(app.logger),
	}
	if app.cfg.RateLimit > 0 {
		clientOpts = append(clientOpts, shopsdk.WithRateLimit(app.cfg.RateLimit, app.cfg.RateBurst))
	}
	app.Client = shopsdk.NewClient(app.cfg.APIURL, clientOpts...)

	app.Session = session.New(app.Client, app.logger,
		session.WithCheckInterval(app.cfg.CheckInterval),
		session.WithRedirectHandler(app.redirect),
	)
	app.Permissions = permissions.New(permissions.FromClient(app.Client), app.logger)
	app.Categories = catalog.NewCategories(app.Client.Categories,
		catalog.WithSnapshots(app.store),
		catalog.WithLogger(app.logger),
	)
	app.Shop = catalog.NewShop(app.Client.Products, app.cfg.ShopTTL)
	app.Storefront = storefront.NewPage(app.Client, app.Categories)
}

// redirect never blocks; only the latest route matters.
func (app *Application) redirect(route string) {
	select {
	case app.Redirects <- route:
	default:
	}
}

// Open restores the stored session and loads the user's permissions.
// Permissions follow every later user change.
func (app *Application) Open(ctx context.Context) error {
	app.Session.OnChange(app.Permissions.Follow(context.WithoutCancel(ctx)))
	if err := app.Session.Init(ctx); err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}
	app.logger.Debug("session restored", "status", app.Session.Status())
	return nil
}

// Start begins background session checks. Close stops them.
func (app *Application) Start(ctx context.Context) {
	app.Session.Start(ctx)
}

func (app *Application) Config() Config { return app.cfg }

func (app *Application) Logger() *slog.Logger { return app.logger }

// Close stops background work and releases storage.
func (app *Application) Close() error {
	app.Session.Close()

	var errs []error
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.logger.Error("error closing credential store", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
