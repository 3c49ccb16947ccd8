// Package tokens caches the short-lived bearer credential used for the
// authenticated travel provider.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/proimagery/ferdi-app-sub000/internal/clock"
)

// SafetyMargin is the minimum remaining lifetime a token must have to be
// handed out.
const SafetyMargin = 60 * time.Second

// ErrEmptyToken is returned when a Source yields a blank credential.
var ErrEmptyToken = errors.New("tokens: source returned empty token")

// Source obtains a fresh token and its absolute expiry.
type Source interface {
	Token(ctx context.Context) (value string, expiresAt time.Time, err error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (string, time.Time, error)

func (f SourceFunc) Token(ctx context.Context) (string, time.Time, error) { return f(ctx) }

// Manager hands out a cached token, fetching a new one lazily when the cached
// value is within SafetyMargin of expiry. Construct one per provider at
// process start and share it.
type Manager struct {
	source Source
	clock  clock.Clock

	mu        sync.Mutex
	value     string
	expiresAt time.Time
}

// NewManager returns a Manager backed by source.
func NewManager(source Source, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.System{}
	}
	return &Manager{source: source, clock: clk}
}

// Token returns a credential with more than SafetyMargin of life left.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.value != "" && m.clock.Now().Before(m.expiresAt.Add(-SafetyMargin)) {
		return m.value, nil
	}

	value, expiresAt, err := m.source.Token(ctx)
	if err == nil && value == "" {
		err = ErrEmptyToken
	}
	if err != nil {
		m.reset()
		return "", fmt.Errorf("refresh token: %w", err)
	}

	m.value = value
	m.expiresAt = expiresAt
	return value, nil
}

// Invalidate discards the cached token so the next call fetches from scratch.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

func (m *Manager) reset() {
	m.value = ""
	m.expiresAt = time.Time{}
}
