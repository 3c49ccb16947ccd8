package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/proimagery/ferdi-app-sub000/internal/buddies"
	"github.com/proimagery/ferdi-app-sub000/internal/catalog"
	"github.com/proimagery/ferdi-app-sub000/internal/clock"
	"github.com/proimagery/ferdi-app-sub000/internal/config"
	"github.com/proimagery/ferdi-app-sub000/internal/db"
	"github.com/proimagery/ferdi-app-sub000/internal/dispatch"
	"github.com/proimagery/ferdi-app-sub000/internal/handlers"
	"github.com/proimagery/ferdi-app-sub000/internal/kvstore"
	"github.com/proimagery/ferdi-app-sub000/internal/logging"
	"github.com/proimagery/ferdi-app-sub000/internal/middleware"
	"github.com/proimagery/ferdi-app-sub000/internal/notify"
	"github.com/proimagery/ferdi-app-sub000/internal/providers"
	"github.com/proimagery/ferdi-app-sub000/internal/repositories"
	"github.com/proimagery/ferdi-app-sub000/internal/respcache"
	"github.com/proimagery/ferdi-app-sub000/internal/stores"
	"github.com/proimagery/ferdi-app-sub000/internal/tokens"
)

const (
	providerTimeout = 20 * time.Second

	searchRequestsPerWindow = 30
	searchWindow            = time.Minute
	searchBurst             = 10
	searchVisitorTTL        = 10 * time.Minute
)

// remoteStores groups the repository ports for one storage backend.
type remoteStores struct {
	trips     repositories.TripRepository
	budgets   repositories.BudgetRepository
	visited   repositories.VisitedCityRepository
	completed repositories.CompletedCountryRepository
	catalog   repositories.CountryCatalogRepository
	edges     repositories.BuddyRepository
	profiles  repositories.ProfileRepository
	feed      repositories.BuddyChangeFeed
}

// newRemoteStores returns Postgres adapters over pool, or a shared in-memory
// backend seeded with the bundled country snapshot when pool is nil.
func newRemoteStores(ctx context.Context, pool db.Pool, logger *slog.Logger) (remoteStores, error) {
	if pool == nil {
		mem := repositories.NewMemory()
		countries, err := catalog.Bundled()
		if err != nil {
			return remoteStores{}, err
		}
		if err := mem.UpsertCountries(ctx, countries); err != nil {
			return remoteStores{}, fmt.Errorf("seed memory catalog: %w", err)
		}
		return remoteStores{
			trips:     mem,
			budgets:   mem,
			visited:   mem,
			completed: mem,
			catalog:   mem,
			edges:     mem,
			profiles:  mem,
			feed:      mem,
		}, nil
	}

	return remoteStores{
		trips:     repositories.NewPostgresTripRepository(pool),
		budgets:   repositories.NewPostgresBudgetRepository(pool),
		visited:   repositories.NewPostgresVisitedCityRepository(pool),
		completed: repositories.NewPostgresCompletedCountryRepository(pool),
		catalog:   repositories.NewPostgresCountryCatalog(pool),
		edges:     repositories.NewPostgresBuddyRepository(pool),
		profiles:  repositories.NewPostgresProfileRepository(pool),
		feed:      repositories.NewPostgresBuddyChangeFeed(pool, logger),
	}, nil
}

// openCache opens the on-disk key-value store, or an in-memory one when no
// cache directory is configured.
func openCache(cfg config.Config) (kvstore.Store, error) {
	if cfg.CacheDir == "" {
		return kvstore.NewMemory(), nil
	}
	store, err := kvstore.OpenLevelDB(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("open cache dir %s: %w", cfg.CacheDir, err)
	}
	return store, nil
}

func newCatalogLoader(cfg config.Config, remote remoteStores, store kvstore.Store, logger *slog.Logger) *catalog.Loader {
	return catalog.NewLoader(catalog.FetcherFunc(remote.catalog.ListCountries), store, cfg.Environment,
		catalog.WithMaxAge(cfg.CatalogMaxAge),
		catalog.WithLogger(logger),
	)
}

// services holds every long-lived component of a serving process.
type services struct {
	deps     handlers.Dependencies
	remote   remoteStores
	session  *stores.Session
	buddies  *buddies.Synchronizer
	notifier *notify.Recorder
	logger   *slog.Logger
}

// start loads the session and begins following buddy changes. Load failures
// leave the affected collections empty and are only logged.
func (rt *services) start(ctx context.Context) {
	ctx = logging.WithUser(ctx, rt.deps.UserID)
	if err := rt.session.Load(ctx); err != nil {
		rt.logger.Warn("initial session load incomplete", "error", err)
	}
	if rt.buddies == nil {
		return
	}
	if err := rt.buddies.Refresh(ctx); err != nil {
		rt.logger.Warn("initial buddy refresh failed", "error", err)
	}
	go func() {
		if err := rt.buddies.Watch(ctx, rt.remote.feed); err != nil && !errors.Is(err, context.Canceled) {
			rt.logger.Warn("buddy watch stopped", "error", err)
		}
	}()
}

func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (*services, func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}

	remote, err := newRemoteStores(ctx, pool, logger)
	if err != nil {
		return nil, nil, err
	}

	store, err := openCache(cfg)
	if err != nil {
		return nil, nil, err
	}

	httpClient := &http.Client{Timeout: providerTimeout}
	cache := respcache.New(store, cfg.Environment, clock.System{}, logger)
	tokenManager := tokens.NewManager(
		tokens.NewOAuthSource(cfg.Travel.TokenURL, cfg.Travel.ClientID, cfg.Travel.ClientSecret, httpClient),
		clock.System{},
	)
	// A non-positive rate disables throttling and the burst is ignored.
	travel := providers.NewTravel(cfg.Travel.BaseURL, httpClient, tokenManager, cache,
		providers.NewThrottle(float64(cfg.Travel.RequestsPerSecond), cfg.Travel.Burst))
	places := providers.NewPlaces(cfg.Places.BaseURL, cfg.Places.APIKey, httpClient, cache,
		providers.NewThrottle(float64(cfg.Places.RequestsPerSecond), cfg.Places.Burst))

	dispatcher := dispatch.New(dispatch.Config{QueueSize: cfg.DispatchQueue, Workers: cfg.DispatchWorkers}, logger)
	session := stores.NewSession(stores.Repositories{
		Trips:              remote.trips,
		Budgets:            remote.budgets,
		VisitedCities:      remote.visited,
		CompletedCountries: remote.completed,
	}, stores.Options{
		UserID:   cfg.UserID,
		Executor: dispatcher,
		Logger:   logger,
	})

	recorder := notify.NewRecorder(notify.LogNotifier{Logger: logger})

	rt := &services{
		remote:   remote,
		session:  session,
		notifier: recorder,
		logger:   logger,
		deps: handlers.Dependencies{
			Environment:        cfg.Environment,
			UserID:             cfg.UserID,
			Catalog:            newCatalogLoader(cfg, remote, store, logger),
			Trips:              session.Trips,
			Budgets:            session.Budgets,
			BudgetsForTrip:     session.Budgets.ForTrip,
			VisitedCities:      session.VisitedCities,
			CompletedCountries: session.CompletedCountries,
			Notifications:      recorder,
			Travel:             travel,
			Places:             places,
			SearchLimiter:      middleware.NewIPRateLimiter(searchRequestsPerWindow, searchWindow, searchBurst, searchVisitorTTL, clock.System{}),
		},
	}

	if !cfg.Guest() {
		rt.buddies = buddies.New(buddies.Config{
			UserID:   cfg.UserID,
			Edges:    remote.edges,
			Profiles: remote.profiles,
			Notifier: recorder,
			Logger:   logger,
		})
		rt.deps.Buddies = rt.buddies
	}

	cleanup := func(ctx context.Context) error {
		var errs []error
		if err := dispatcher.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain dispatcher: %w", err))
		}
		session.Close()
		if rt.buddies != nil {
			rt.buddies.Close()
		}
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
		return errors.Join(errs...)
	}

	return rt, cleanup, nil
}
