package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/proimagery/ferdi-app-sub000/internal/respcache"
)

const (
	PlaceSearchTTL = 24 * time.Hour
	PlacePhotoTTL  = 7 * 24 * time.Hour
)

const placesFieldMask = "places.id,places.displayName,places.formattedAddress,places.location,places.rating,places.photos"

// Places is the API-key authenticated place search and photo API.
type Places struct {
	transport
	apiKey string
}

// NewPlaces constructs a Places client.
func NewPlaces(baseURL, apiKey string, client *http.Client, cache *respcache.Cache, throttle *Throttle) *Places {
	return &Places{transport: newTransport(baseURL, client, cache, throttle), apiKey: apiKey}
}

// SearchText finds places matching a free-text query.
func (p *Places) SearchText(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, nil
	}
	const path = "/v1/places:searchText"
	d := respcache.Descriptor{Domain: "places", Path: path, Params: map[string]string{"textQuery": query}}

	return p.cached(ctx, d, PlaceSearchTTL, "places", func(ctx context.Context) ([]byte, error) {
		body, err := json.Marshal(map[string]string{"textQuery": query})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(path, nil), bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Goog-FieldMask", placesFieldMask)
		p.authorize(req)
		return p.do(req)
	})
}

// PhotoURL resolves a photo resource name into a servable URI. It returns ""
// when the provider has nothing for the photo.
func (p *Places) PhotoURL(ctx context.Context, photoName string, maxWidth int) (string, error) {
	photoName = strings.Trim(photoName, "/ ")
	if photoName == "" {
		return "", nil
	}
	path := "/v1/" + photoName + "/media"
	params := map[string]string{
		"maxWidthPx":       strconv.Itoa(max(maxWidth, 1)),
		"skipHttpRedirect": "true",
	}
	d := respcache.Descriptor{Domain: "photos", Path: path, Params: params}

	res, err := p.cached(ctx, d, PlacePhotoTTL, "", func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(path, params), nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		p.authorize(req)
		return p.do(req)
	})
	if err != nil || res.Empty() {
		return "", err
	}

	var media struct {
		PhotoURI string `json:"photoUri"`
	}
	if err := json.Unmarshal(res.Items[0], &media); err != nil {
		return "", fmt.Errorf("decode photo media: %w", err)
	}
	return media.PhotoURI, nil
}

func (p *Places) authorize(req *http.Request) {
	req.Header.Set("X-Goog-Api-Key", p.apiKey)
}
