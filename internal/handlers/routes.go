package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/proimagery/ferdi-app-sub000/internal/middleware"
	"github.com/proimagery/ferdi-app-sub000/internal/models"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Environment string
	UserID      string

	Catalog            CatalogService
	Trips              Collection[models.Trip]
	Budgets            Collection[models.Budget]
	BudgetsForTrip     func(tripID string) []models.Budget
	VisitedCities      Collection[models.VisitedCity]
	CompletedCountries Collection[models.CompletedCountry]
	Buddies            BuddyService
	Notifications      NotificationLog
	Travel             TravelSearch
	Places             PlaceSearch

	SearchLimiter middleware.RateLimiter
}

// NewRouter wires HTTP handlers into a chi router. Routes whose dependency
// is missing are not mounted.
func NewRouter(deps Dependencies, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger, deps.UserID))

	health := HealthHandler{Environment: deps.Environment, Guest: deps.UserID == ""}
	r.Get("/healthz", health.Handle)

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Catalog != nil {
			countries := CountryHandler{Catalog: deps.Catalog}
			r.Get("/countries", countries.List)
			r.Delete("/countries/cache", countries.Reset)
		}

		if deps.Trips != nil {
			r.Route("/trips", func(r chi.Router) {
				CollectionHandler[models.Trip]{Name: "trip", Store: deps.Trips}.Routes(r)
				if deps.BudgetsForTrip != nil {
					r.Get("/{id}/budgets", tripBudgets(deps.BudgetsForTrip))
				}
			})
		}
		if deps.Budgets != nil {
			r.Route("/budgets", CollectionHandler[models.Budget]{Name: "budget", Store: deps.Budgets}.Routes)
		}
		if deps.VisitedCities != nil {
			r.Route("/visited-cities", CollectionHandler[models.VisitedCity]{Name: "visited city", Store: deps.VisitedCities}.Routes)
		}
		if deps.CompletedCountries != nil {
			r.Route("/completed-countries", CollectionHandler[models.CompletedCountry]{Name: "completed country", Store: deps.CompletedCountries}.Routes)
		}

		buddies := BuddyHandler{Buddies: deps.Buddies, Notifications: deps.Notifications}
		r.Route("/buddies", buddies.Routes)
		r.Get("/notifications", buddies.NotificationList)

		if deps.Travel != nil && deps.Places != nil {
			r.Route("/search", func(r chi.Router) {
				r.Use(middleware.RateLimit(deps.SearchLimiter, "search"))
				SearchHandler{Travel: deps.Travel, Places: deps.Places}.Routes(r)
			})
		}
	})

	return r
}

func tripBudgets(forTrip func(string) []models.Budget) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		budgets := forTrip(chi.URLParam(r, "id"))
		if budgets == nil {
			budgets = []models.Budget{}
		}
		respondJSON(r.Context(), w, http.StatusOK, map[string]any{"items": budgets})
	}
}
