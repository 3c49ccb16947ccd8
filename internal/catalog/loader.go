package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/proimagery/ferdi-app-sub000/internal/clock"
	"github.com/proimagery/ferdi-app-sub000/internal/kvstore"
	"github.com/proimagery/ferdi-app-sub000/internal/logging"
	"github.com/proimagery/ferdi-app-sub000/internal/models"
)

// Source reports which tier satisfied a Load.
type Source string

const (
	SourceCache      Source = "cache"
	SourceNetwork    Source = "network"
	SourceStaleCache Source = "stale_cache"
	SourceFallback   Source = "fallback"
)

// Outdated reports whether callers should flag the data as possibly out of date.
func (s Source) Outdated() bool {
	return s == SourceStaleCache || s == SourceFallback
}

// DefaultMaxAge is how long a cached catalog is served without a network fetch.
const DefaultMaxAge = 24 * time.Hour

var errEmptyCatalog = errors.New("catalog: network returned no countries")

// Fetcher retrieves the full country catalog from the network.
type Fetcher interface {
	FetchCountries(ctx context.Context) ([]models.Country, error)
}

// FetcherFunc adapts a function, such as a repository method, to Fetcher.
type FetcherFunc func(ctx context.Context) ([]models.Country, error)

func (f FetcherFunc) FetchCountries(ctx context.Context) ([]models.Country, error) { return f(ctx) }

type snapshot struct {
	Countries []models.Country `json:"countries"`
	WrittenAt time.Time        `json:"writtenAt"`
}

// Loader serves the country catalog through cache, network, stale cache and
// bundled snapshot, strictly in that order.
type Loader struct {
	fetcher  Fetcher
	store    kvstore.Store
	env      string
	key      string
	maxAge   time.Duration
	clock    clock.Clock
	fallback func() ([]models.Country, error)
	logger   *slog.Logger
}

// LoaderOption customises a Loader.
type LoaderOption func(*Loader)

// WithMaxAge overrides DefaultMaxAge.
func WithMaxAge(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d > 0 {
			l.maxAge = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(c clock.Clock) LoaderOption {
	return func(l *Loader) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithFallback overrides the bundled snapshot.
func WithFallback(fn func() ([]models.Country, error)) LoaderOption {
	return func(l *Loader) {
		if fn != nil {
			l.fallback = fn
		}
	}
}

// WithLogger overrides slog.Default.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader constructs a Loader persisting into store under the environment tag.
func NewLoader(fetcher Fetcher, store kvstore.Store, environment string, opts ...LoaderOption) *Loader {
	l := &Loader{
		fetcher:  fetcher,
		store:    store,
		env:      environment,
		key:      kvstore.Namespace{Purpose: "refdata", Environment: environment}.Key("countries"),
		maxAge:   DefaultMaxAge,
		clock:    clock.System{},
		fallback: Bundled,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the catalog and the tier it came from. The only error is a
// failure to decode the bundled snapshot.
func (l *Loader) Load(ctx context.Context, forceRefresh bool) ([]models.Country, Source, error) {
	if logging.FromContext(ctx) == slog.Default() {
		ctx = logging.WithLogger(ctx, l.logger)
	}
	ctx, span := logging.StartSpan(ctx, "catalog.load")
	defer span.End()
	logger := logging.FromContext(ctx)

	cached, haveCache := l.readCache(ctx)

	if !forceRefresh && haveCache && l.clock.Now().Sub(cached.WrittenAt) <= l.maxAge {
		return cached.Countries, SourceCache, nil
	}

	countries, err := l.fetch(ctx)
	if err == nil {
		l.writeCache(ctx, countries)
		return countries, SourceNetwork, nil
	}
	logger.Warn("country catalog network fetch failed", "error", err)

	if haveCache {
		return cached.Countries, SourceStaleCache, nil
	}

	countries, err = l.fallback()
	if err != nil {
		span.Fail(err)
		return nil, "", err
	}
	return countries, SourceFallback, nil
}

// ResetCache drops the persisted catalog so the next Load goes to the network.
func (l *Loader) ResetCache(ctx context.Context) error {
	if err := l.store.Delete(ctx, l.key); err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		return fmt.Errorf("reset country cache: %w", err)
	}
	return nil
}

func (l *Loader) fetch(ctx context.Context) ([]models.Country, error) {
	if l.fetcher == nil {
		return nil, errors.New("catalog: no network fetcher configured")
	}
	countries, err := l.fetcher.FetchCountries(ctx)
	if err != nil {
		return nil, err
	}
	if len(countries) == 0 {
		return nil, errEmptyCatalog
	}
	return countries, nil
}

func (l *Loader) readCache(ctx context.Context) (snapshot, bool) {
	raw, err := l.store.Get(ctx, l.key)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			logging.FromContext(ctx).Warn("country cache read failed", "error", err)
		}
		return snapshot{}, false
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil || len(snap.Countries) == 0 {
		logging.FromContext(ctx).Warn("ignoring unreadable country cache", "error", err)
		return snapshot{}, false
	}
	return snap, true
}

func (l *Loader) writeCache(ctx context.Context, countries []models.Country) {
	raw, err := json.Marshal(snapshot{Countries: countries, WrittenAt: l.clock.Now()})
	if err != nil {
		logging.FromContext(ctx).Warn("encode country cache", "error", err)
		return
	}
	if err := l.store.Put(ctx, l.key, raw); err != nil {
		logging.FromContext(ctx).Warn("country cache write failed", "error", err)
	}
}
