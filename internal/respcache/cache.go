package respcache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/proimagery/ferdi-app-sub000/internal/clock"
	"github.com/proimagery/ferdi-app-sub000/internal/kvstore"
	"github.com/proimagery/ferdi-app-sub000/internal/logging"
)

// Purpose is the key namespace purpose for provider responses.
const Purpose = "respcache"

// Descriptor identifies an idempotent read request against a provider.
type Descriptor struct {
	Domain string
	Path   string
	Params map[string]string
}

// Canonical renders the request path with its parameters sorted by name, so
// logically identical requests produce the same string regardless of the
// order parameters were supplied in.
func (d Descriptor) Canonical() string {
	names := make([]string, 0, len(d.Params))
	for name := range d.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(d.Path)
	b.WriteByte('?')
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(d.Params[name])
	}
	return b.String()
}

type entry struct {
	Payload   json.RawMessage `json:"payload"`
	WrittenAt time.Time       `json:"writtenAt"`
}

// Cache is a best-effort TTL cache for provider responses. Storage failures
// are treated as misses and never surface to callers.
type Cache struct {
	store  kvstore.Store
	ns     kvstore.Namespace
	clock  clock.Clock
	logger *slog.Logger
}

// New returns a cache writing into store under the given environment tag.
func New(store kvstore.Store, environment string, clk clock.Clock, logger *slog.Logger) *Cache {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:  store,
		ns:     kvstore.Namespace{Purpose: Purpose, Environment: environment},
		clock:  clk,
		logger: logger,
	}
}

// Key derives the storage key for d.
func (c *Cache) Key(d Descriptor) string {
	sum := blake2b.Sum256([]byte(d.Canonical()))
	return c.ns.Key(d.Domain, hex.EncodeToString(sum[:]))
}

// Get returns the cached payload when it is no older than ttl. Expired
// entries are purged.
func (c *Cache) Get(ctx context.Context, d Descriptor, ttl time.Duration) ([]byte, bool) {
	key := c.Key(d)
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			c.log(ctx).Warn("response cache read failed", "domain", d.Domain, "error", err)
		}
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log(ctx).Warn("discarding corrupt response cache entry", "domain", d.Domain, "error", err)
		_ = c.store.Delete(ctx, key)
		return nil, false
	}

	if c.clock.Now().Sub(e.WrittenAt) > ttl {
		if err := c.store.Delete(ctx, key); err != nil {
			c.log(ctx).Warn("purge expired response failed", "domain", d.Domain, "error", err)
		}
		return nil, false
	}

	return e.Payload, true
}

// Put stores payload for d. Failures are logged and swallowed.
func (c *Cache) Put(ctx context.Context, d Descriptor, payload []byte) {
	raw, err := json.Marshal(entry{Payload: json.RawMessage(payload), WrittenAt: c.clock.Now()})
	if err != nil {
		c.log(ctx).Warn("encode response cache entry", "domain", d.Domain, "error", err)
		return
	}
	if err := c.store.Put(ctx, c.Key(d), raw); err != nil {
		c.log(ctx).Warn("response cache write failed", "domain", d.Domain, "error", err)
	}
}

// Clear drops every entry of a logical domain, or of the whole environment
// when domain is empty.
func (c *Cache) Clear(ctx context.Context, domain string) {
	prefix := c.ns.Prefix()
	if domain != "" {
		prefix = c.ns.Key(domain) + ":"
	}
	if err := c.store.DeletePrefix(ctx, prefix); err != nil {
		c.log(ctx).Warn("response cache clear failed", "domain", domain, "error", err)
	}
}

// Fetch returns the cached payload for d, or calls fetch and stores its
// result. Errors from fetch are returned and never cached.
func (c *Cache) Fetch(ctx context.Context, d Descriptor, ttl time.Duration, fetch func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if payload, ok := c.Get(ctx, d, ttl); ok {
		return payload, nil
	}

	payload, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if !json.Valid(payload) {
		return payload, nil
	}

	c.Put(ctx, d, payload)
	return payload, nil
}

func (c *Cache) log(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != slog.Default() {
		return logger
	}
	return c.logger
}
