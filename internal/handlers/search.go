package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/proimagery/ferdi-app-sub000/internal/providers"
)

const dateLayout = "2006-01-02"

// SearchHandler exposes provider searches. Provider failures other than a
// rejected credential come back as empty results.
type SearchHandler struct {
	Travel TravelSearch
	Places PlaceSearch
}

type searchResponse struct {
	Items []json.RawMessage `json:"items"`
}

// Routes mounts the search endpoints under the current prefix.
func (h SearchHandler) Routes(r chi.Router) {
	r.Get("/airports", h.Airports)
	r.Get("/flights", h.Flights)
	r.Get("/hotels", h.Hotels)
	r.Get("/hotels/sentiments", h.HotelSentiments)
	r.Get("/activities", h.Activities)
	r.Get("/insights", h.MarketInsights)
	r.Get("/places", h.SearchPlaces)
	r.Get("/places/photo", h.PlacePhoto)
	r.Delete("/cache/{domain}", h.ClearCache)
}

// Airports handles GET /api/v1/search/airports?keyword=.
func (h SearchHandler) Airports(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		respondMessage(r.Context(), w, http.StatusBadRequest, "keyword is required")
		return
	}
	res, err := h.Travel.Airports(r.Context(), keyword)
	h.respondResult(w, r, res, err)
}

// Flights handles GET /api/v1/search/flights.
func (h SearchHandler) Flights(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := time.Parse(dateLayout, q.Get("date"))
	if err != nil || q.Get("origin") == "" || q.Get("destination") == "" {
		respondMessage(r.Context(), w, http.StatusBadRequest, "origin, destination and date (YYYY-MM-DD) are required")
		return
	}
	res, err := h.Travel.FlightOffers(r.Context(), providers.FlightQuery{
		Origin:        strings.ToUpper(q.Get("origin")),
		Destination:   strings.ToUpper(q.Get("destination")),
		DepartureDate: date,
		Adults:        queryInt(q.Get("adults"), 1),
		Currency:      q.Get("currency"),
	})
	h.respondResult(w, r, res, err)
}

// Hotels handles GET /api/v1/search/hotels.
func (h SearchHandler) Hotels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	checkIn, inErr := time.Parse(dateLayout, q.Get("checkIn"))
	checkOut, outErr := time.Parse(dateLayout, q.Get("checkOut"))
	ids := splitList(q.Get("hotelIds"))
	if inErr != nil || outErr != nil || len(ids) == 0 {
		respondMessage(r.Context(), w, http.StatusBadRequest, "hotelIds, checkIn and checkOut are required")
		return
	}
	res, err := h.Travel.HotelOffers(r.Context(), providers.HotelQuery{
		HotelIDs: ids,
		CheckIn:  checkIn,
		CheckOut: checkOut,
		Adults:   queryInt(q.Get("adults"), 1),
	})
	h.respondResult(w, r, res, err)
}

// HotelSentiments handles GET /api/v1/search/hotels/sentiments?hotelIds=.
func (h SearchHandler) HotelSentiments(w http.ResponseWriter, r *http.Request) {
	ids := splitList(r.URL.Query().Get("hotelIds"))
	if len(ids) == 0 {
		respondMessage(r.Context(), w, http.StatusBadRequest, "hotelIds is required")
		return
	}
	res, err := h.Travel.HotelSentiments(r.Context(), ids)
	h.respondResult(w, r, res, err)
}

// Activities handles GET /api/v1/search/activities?lat=&lon=&radius=.
func (h SearchHandler) Activities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		respondMessage(r.Context(), w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	res, err := h.Travel.Activities(r.Context(), lat, lon, queryInt(q.Get("radius"), 1))
	h.respondResult(w, r, res, err)
}

// MarketInsights handles GET /api/v1/search/insights?city=&period=YYYY-MM.
func (h SearchHandler) MarketInsights(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period, err := time.Parse("2006-01", q.Get("period"))
	if err != nil || q.Get("city") == "" {
		respondMessage(r.Context(), w, http.StatusBadRequest, "city and period (YYYY-MM) are required")
		return
	}
	res, err := h.Travel.MarketInsights(r.Context(), strings.ToUpper(q.Get("city")), period)
	h.respondResult(w, r, res, err)
}

// SearchPlaces handles GET /api/v1/search/places?q=.
func (h SearchHandler) SearchPlaces(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondMessage(r.Context(), w, http.StatusBadRequest, "q is required")
		return
	}
	res, err := h.Places.SearchText(r.Context(), query)
	h.respondResult(w, r, res, err)
}

// PlacePhoto handles GET /api/v1/search/places/photo?name=&maxWidth=.
func (h SearchHandler) PlacePhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		respondMessage(ctx, w, http.StatusBadRequest, "name is required")
		return
	}
	uri, err := h.Places.PhotoURL(ctx, name, queryInt(r.URL.Query().Get("maxWidth"), 800))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"photoUri": uri})
}

// ClearCache handles DELETE /api/v1/search/cache/{domain}.
func (h SearchHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.Travel.ClearCache(r.Context(), chi.URLParam(r, "domain"))
	w.WriteHeader(http.StatusNoContent)
}

func (h SearchHandler) respondResult(w http.ResponseWriter, r *http.Request, res providers.Result, err error) {
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	items := res.Items
	if items == nil {
		items = []json.RawMessage{}
	}
	respondJSON(r.Context(), w, http.StatusOK, searchResponse{Items: items})
}

func queryInt(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
