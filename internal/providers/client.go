// Package providers wraps the external travel and places HTTP APIs. Every
// read goes through the response cache; callers never reach the network
// directly.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/proimagery/ferdi-app-sub000/internal/logging"
	"github.com/proimagery/ferdi-app-sub000/internal/respcache"
)

var (
	// ErrUnauthorized indicates the provider rejected our credential.
	ErrUnauthorized = errors.New("providers: unauthorized")

	// errNoData marks a non-success response. It never reaches callers and is
	// never cached.
	errNoData = errors.New("providers: no data")
)

const maxResponseBytes = 8 << 20

// Result is a provider payload split into its top-level item list.
type Result struct {
	Items []json.RawMessage
}

// Empty reports whether the provider returned nothing usable.
func (r Result) Empty() bool { return len(r.Items) == 0 }

type transport struct {
	baseURL  string
	client   *http.Client
	cache    *respcache.Cache
	throttle *Throttle
}

func newTransport(baseURL string, client *http.Client, cache *respcache.Cache, throttle *Throttle) transport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return transport{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		cache:    cache,
		throttle: throttle,
	}
}

// cached resolves d through the response cache. Non-success responses come
// back as an empty Result with a nil error.
func (t transport) cached(ctx context.Context, d respcache.Descriptor, ttl time.Duration, field string, call func(ctx context.Context) ([]byte, error)) (Result, error) {
	payload, err := t.cache.Fetch(ctx, d, ttl, func(ctx context.Context) ([]byte, error) {
		if err := t.throttle.Wait(ctx, d.Domain); err != nil {
			return nil, err
		}
		return call(ctx)
	})
	if errors.Is(err, errNoData) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return decodeItems(payload, field)
}

func (t transport) endpoint(path string, params map[string]string) string {
	u := t.baseURL + path
	if len(params) == 0 {
		return u
	}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return u + "?" + q.Encode()
}

// do executes req and returns the body of a 2xx response.
func (t transport) do(req *http.Request) ([]byte, error) {
	logger := logging.FromContext(req.Context())

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		logger.Warn("provider returned non-success status", "path", req.URL.Path, "status", resp.StatusCode)
		return nil, errNoData
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL.Path, err)
	}
	if !json.Valid(body) {
		logger.Warn("provider returned invalid json", "path", req.URL.Path)
		return nil, errNoData
	}
	return body, nil
}

func decodeItems(payload []byte, field string) (Result, error) {
	if field == "" {
		return Result{Items: []json.RawMessage{json.RawMessage(payload)}}, nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return Result{}, fmt.Errorf("decode provider payload: %w", err)
	}
	raw, ok := envelope[field]
	if !ok || string(raw) == "null" {
		return Result{}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		// single-object payloads are returned as one item
		return Result{Items: []json.RawMessage{raw}}, nil
	}
	return Result{Items: items}, nil
}
