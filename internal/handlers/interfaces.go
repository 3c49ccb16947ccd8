package handlers

import (
	"context"
	"time"

	"github.com/proimagery/ferdi-app-sub000/internal/buddies"
	"github.com/proimagery/ferdi-app-sub000/internal/catalog"
	"github.com/proimagery/ferdi-app-sub000/internal/models"
	"github.com/proimagery/ferdi-app-sub000/internal/providers"
)

// CatalogService serves the tiered country catalog.
type CatalogService interface {
	Load(ctx context.Context, forceRefresh bool) ([]models.Country, catalog.Source, error)
	ResetCache(ctx context.Context) error
}

// Collection is an optimistic, locally held record list.
type Collection[T any] interface {
	Items() []T
	Create(ctx context.Context, item T) (string, error)
	Update(ctx context.Context, index int, item T) error
	Delete(ctx context.Context, index int) error
	IndexOf(id string) int
}

// BuddyService manages the signed-in user's buddy relationships.
type BuddyService interface {
	State() buddies.View
	Send(ctx context.Context, counterpart string) error
	Accept(ctx context.Context, counterpart string) error
	Reject(ctx context.Context, counterpart string) error
	Cancel(ctx context.Context, counterpart string) error
	Remove(ctx context.Context, counterpart string) error
	SetHighlighted(ctx context.Context, counterpart string, highlighted bool) error
	Refresh(ctx context.Context) error
}

// NotificationLog exposes delivered notifications to the presentation layer.
type NotificationLog interface {
	Notifications() []string
	Badge() int
}

// TravelSearch is the cached flight, hotel and activity provider.
type TravelSearch interface {
	Airports(ctx context.Context, keyword string) (providers.Result, error)
	FlightOffers(ctx context.Context, q providers.FlightQuery) (providers.Result, error)
	HotelOffers(ctx context.Context, q providers.HotelQuery) (providers.Result, error)
	HotelSentiments(ctx context.Context, hotelIDs []string) (providers.Result, error)
	Activities(ctx context.Context, latitude, longitude float64, radiusKM int) (providers.Result, error)
	MarketInsights(ctx context.Context, originCity string, period time.Time) (providers.Result, error)
	ClearCache(ctx context.Context, domain string)
}

// PlaceSearch is the cached place search provider.
type PlaceSearch interface {
	SearchText(ctx context.Context, query string) (providers.Result, error)
	PhotoURL(ctx context.Context, photoName string, maxWidth int) (string, error)
}
