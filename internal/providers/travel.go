package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/proimagery/ferdi-app-sub000/internal/respcache"
)

// Cache lifetimes for travel provider domains.
const (
	AirportTTL        = 24 * time.Hour
	FlightOffersTTL   = time.Hour
	HotelOffersTTL    = time.Hour
	HotelSentimentTTL = 7 * 24 * time.Hour
	ActivitiesTTL     = 24 * time.Hour
	MarketInsightsTTL = 24 * time.Hour
)

// TokenSource hands out bearer credentials and drops them when rejected.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Travel is the OAuth2-authenticated flight, hotel and activity search API.
type Travel struct {
	transport
	tokens TokenSource
}

// NewTravel constructs a Travel client. cache and tokens are the process-wide
// instances.
func NewTravel(baseURL string, client *http.Client, tokens TokenSource, cache *respcache.Cache, throttle *Throttle) *Travel {
	return &Travel{transport: newTransport(baseURL, client, cache, throttle), tokens: tokens}
}

// FlightQuery describes a one-way flight offer search.
type FlightQuery struct {
	Origin        string
	Destination   string
	DepartureDate time.Time
	Adults        int
	Currency      string
}

// HotelQuery describes a hotel offer search over known hotel ids.
type HotelQuery struct {
	HotelIDs []string
	CheckIn  time.Time
	CheckOut time.Time
	Adults   int
}

// Airports looks up airports and cities matching keyword.
func (t *Travel) Airports(ctx context.Context, keyword string) (Result, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return Result{}, nil
	}
	return t.get(ctx, "airports", "/v1/reference-data/locations", map[string]string{
		"subType": "AIRPORT,CITY",
		"keyword": strings.ToUpper(keyword),
	}, AirportTTL)
}

// FlightOffers searches priced flight offers.
func (t *Travel) FlightOffers(ctx context.Context, q FlightQuery) (Result, error) {
	if q.Origin == "" || q.Destination == "" || q.DepartureDate.IsZero() {
		return Result{}, errors.New("flight search requires origin, destination and departure date")
	}
	params := map[string]string{
		"originLocationCode":      strings.ToUpper(q.Origin),
		"destinationLocationCode": strings.ToUpper(q.Destination),
		"departureDate":           q.DepartureDate.Format(time.DateOnly),
		"adults":                  strconv.Itoa(max(q.Adults, 1)),
		"max":                     "20",
	}
	if q.Currency != "" {
		params["currencyCode"] = strings.ToUpper(q.Currency)
	}
	return t.get(ctx, "flights", "/v2/shopping/flight-offers", params, FlightOffersTTL)
}

// HotelOffers searches room offers for the given hotels.
func (t *Travel) HotelOffers(ctx context.Context, q HotelQuery) (Result, error) {
	if len(q.HotelIDs) == 0 {
		return Result{}, nil
	}
	params := map[string]string{
		"hotelIds": strings.Join(q.HotelIDs, ","),
		"adults":   strconv.Itoa(max(q.Adults, 1)),
	}
	if !q.CheckIn.IsZero() {
		params["checkInDate"] = q.CheckIn.Format(time.DateOnly)
	}
	if !q.CheckOut.IsZero() {
		params["checkOutDate"] = q.CheckOut.Format(time.DateOnly)
	}
	return t.get(ctx, "hotels", "/v3/shopping/hotel-offers", params, HotelOffersTTL)
}

// HotelSentiments fetches review sentiment scores for hotels.
func (t *Travel) HotelSentiments(ctx context.Context, hotelIDs []string) (Result, error) {
	if len(hotelIDs) == 0 {
		return Result{}, nil
	}
	return t.get(ctx, "hotel-sentiments", "/v2/e-reputation/hotel-sentiments", map[string]string{
		"hotelIds": strings.Join(hotelIDs, ","),
	}, HotelSentimentTTL)
}

// Activities lists tours and activities around a coordinate.
func (t *Travel) Activities(ctx context.Context, latitude, longitude float64, radiusKM int) (Result, error) {
	return t.get(ctx, "activities", "/v1/shopping/activities", map[string]string{
		"latitude":  strconv.FormatFloat(latitude, 'f', 4, 64),
		"longitude": strconv.FormatFloat(longitude, 'f', 4, 64),
		"radius":    strconv.Itoa(max(radiusKM, 1)),
	}, ActivitiesTTL)
}

// MarketInsights returns the most travelled destinations from a city in a
// given month.
func (t *Travel) MarketInsights(ctx context.Context, originCity string, period time.Time) (Result, error) {
	if originCity == "" {
		return Result{}, nil
	}
	return t.get(ctx, "market-insights", "/v1/travel/analytics/air-traffic/traveled", map[string]string{
		"originCityCode": strings.ToUpper(originCity),
		"period":         period.Format("2006-01"),
	}, MarketInsightsTTL)
}

// ClearCache drops cached travel responses for one domain, or all when empty.
func (t *Travel) ClearCache(ctx context.Context, domain string) {
	t.cache.Clear(ctx, domain)
}

func (t *Travel) get(ctx context.Context, domain, path string, params map[string]string, ttl time.Duration) (Result, error) {
	d := respcache.Descriptor{Domain: domain, Path: path, Params: params}
	return t.cached(ctx, d, ttl, "data", func(ctx context.Context) ([]byte, error) {
		token, err := t.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("travel credential: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint(path, params), nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		body, err := t.do(req)
		if errors.Is(err, ErrUnauthorized) {
			t.tokens.Invalidate()
		}
		return body, err
	})
}
