package respcache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/proimagery/ferdi-app-sub000/internal/clock"
	"github.com/proimagery/ferdi-app-sub000/internal/kvstore"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type brokenStore struct{ kvstore.Store }

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk unavailable")
}

func (brokenStore) Put(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func newTestCache(store kvstore.Store, clk clock.Clock) *Cache {
	return New(store, "test", clk, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestKeyIgnoresParameterOrder(t *testing.T) {
	c := newTestCache(kvstore.NewMemory(), clock.System{})

	a := Descriptor{Domain: "flights", Path: "/v2/shopping/flight-offers", Params: map[string]string{}}
	a.Params["originLocationCode"] = "SFO"
	a.Params["destinationLocationCode"] = "NRT"
	a.Params["adults"] = "1"

	b := Descriptor{Domain: "flights", Path: "/v2/shopping/flight-offers", Params: map[string]string{}}
	b.Params["adults"] = "1"
	b.Params["destinationLocationCode"] = "NRT"
	b.Params["originLocationCode"] = "SFO"

	if c.Key(a) != c.Key(b) {
		t.Fatalf("expected identical keys got %q and %q", c.Key(a), c.Key(b))
	}

	b.Params["adults"] = "2"
	if c.Key(a) == c.Key(b) {
		t.Fatal("expected different parameters to produce different keys")
	}
}

func TestKeyNamespacedByEnvironment(t *testing.T) {
	store := kvstore.NewMemory()
	d := Descriptor{Domain: "airports", Path: "/v1/reference-data/locations", Params: map[string]string{"keyword": "TOK"}}

	testCache := New(store, "test", clock.System{}, nil)
	prodCache := New(store, "production", clock.System{}, nil)

	testCache.Put(context.Background(), d, []byte(`{"data":[]}`))
	if _, ok := prodCache.Get(context.Background(), d, time.Hour); ok {
		t.Fatal("expected entries not to leak across environments")
	}
}

func TestGetRespectsTTLBoundary(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := kvstore.NewMemory()
	c := newTestCache(store, clk)
	d := Descriptor{Domain: "flights", Path: "/offers", Params: map[string]string{"q": "x"}}

	c.Put(context.Background(), d, []byte(`{"price":100}`))

	clk.now = clk.now.Add(time.Hour)
	payload, ok := c.Get(context.Background(), d, time.Hour)
	if !ok {
		t.Fatal("expected hit at exactly ttl")
	}
	if string(payload) != `{"price":100}` {
		t.Fatalf("unexpected payload %s", payload)
	}

	clk.now = clk.now.Add(time.Nanosecond)
	if _, ok := c.Get(context.Background(), d, time.Hour); ok {
		t.Fatal("expected miss after ttl")
	}
	if _, err := store.Get(context.Background(), c.Key(d)); !errors.Is(err, kvstore.ErrNotFound) {
		t.Fatalf("expected expired entry to be purged got %v", err)
	}
}

func TestFetchDoesNotCacheErrors(t *testing.T) {
	c := newTestCache(kvstore.NewMemory(), clock.System{})
	d := Descriptor{Domain: "hotels", Path: "/hotels", Params: map[string]string{"city": "PAR"}}
	calls := 0

	failing := func(context.Context) ([]byte, error) {
		calls++
		return nil, errors.New("rate limited")
	}
	if _, err := c.Fetch(context.Background(), d, time.Hour, failing); err == nil {
		t.Fatal("expected error")
	}

	ok := func(context.Context) ([]byte, error) {
		calls++
		return []byte(`{"data":[1]}`), nil
	}
	for i := 0; i < 2; i++ {
		payload, err := c.Fetch(context.Background(), d, time.Hour, ok)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if string(payload) != `{"data":[1]}` {
			t.Fatalf("unexpected payload %s", payload)
		}
	}

	if calls != 2 {
		t.Fatalf("expected error call plus one successful call got %d", calls)
	}
}

func TestClearRemovesOnlyDomain(t *testing.T) {
	c := newTestCache(kvstore.NewMemory(), clock.System{})
	flights := Descriptor{Domain: "flights", Path: "/offers"}
	hotels := Descriptor{Domain: "hotels", Path: "/offers"}

	c.Put(context.Background(), flights, []byte(`1`))
	c.Put(context.Background(), hotels, []byte(`2`))

	c.Clear(context.Background(), "flights")

	if _, ok := c.Get(context.Background(), flights, time.Hour); ok {
		t.Fatal("expected flights entry cleared")
	}
	if _, ok := c.Get(context.Background(), hotels, time.Hour); !ok {
		t.Fatal("expected hotels entry retained")
	}
}

func TestStorageFailuresAreMisses(t *testing.T) {
	c := newTestCache(brokenStore{Store: kvstore.NewMemory()}, clock.System{})
	d := Descriptor{Domain: "photos", Path: "/photo"}

	c.Put(context.Background(), d, []byte(`{}`))
	if _, ok := c.Get(context.Background(), d, time.Hour); ok {
		t.Fatal("expected miss from broken store")
	}

	payload, err := c.Fetch(context.Background(), d, time.Hour, func(context.Context) ([]byte, error) {
		return []byte(`{"ok":true}`), nil
	})
	if err != nil {
		t.Fatalf("expected fetch to succeed despite cache failures: %v", err)
	}
	if string(payload) != `{"ok":true}` {
		t.Fatalf("unexpected payload %s", payload)
	}
}

func TestCorruptEntryIsMiss(t *testing.T) {
	store := kvstore.NewMemory()
	c := newTestCache(store, clock.System{})
	d := Descriptor{Domain: "flights", Path: "/offers"}

	_ = store.Put(context.Background(), c.Key(d), []byte("not json"))
	if _, ok := c.Get(context.Background(), d, time.Hour); ok {
		t.Fatal("expected corrupt entry to be treated as miss")
	}
}
