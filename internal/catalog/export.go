package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Publisher stores an exported snapshot and returns its location.
type Publisher interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

// ExportKey is the object key of the exported snapshot for an environment.
func ExportKey(environment string) string {
	return fmt.Sprintf("catalog/%s/countries.json", environment)
}

// Export publishes the catalog in the bundled snapshot format so it can
// replace data/countries.json in a later build. Snapshots that did not come
// from the network or a fresh cache are refused.
func (l *Loader) Export(ctx context.Context, pub Publisher) (string, error) {
	countries, src, err := l.Load(ctx, true)
	if err != nil {
		return "", err
	}
	if src.Outdated() {
		return "", fmt.Errorf("catalog: refusing to export %s data", src)
	}

	body, err := json.MarshalIndent(countries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode catalog: %w", err)
	}

	location, err := pub.Put(ctx, ExportKey(l.env), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("publish catalog: %w", err)
	}
	return location, nil
}
