package repositories

import (
	"context"

	"github.com/proimagery/ferdi-app-sub000/internal/models"
)

// VisitedCityRepository defines remote persistence for visited cities.
type VisitedCityRepository interface {
	ListVisitedCities(ctx context.Context, userID string) ([]models.VisitedCity, error)
	InsertVisitedCity(ctx context.Context, userID string, city models.VisitedCity) (string, error)
	UpdateVisitedCity(ctx context.Context, userID string, city models.VisitedCity) error
	DeleteVisitedCity(ctx context.Context, userID, cityID string) error
}

// CompletedCountryRepository defines remote persistence for completed countries.
type CompletedCountryRepository interface {
	ListCompletedCountries(ctx context.Context, userID string) ([]models.CompletedCountry, error)
	InsertCompletedCountry(ctx context.Context, userID string, country models.CompletedCountry) (string, error)
	UpdateCompletedCountry(ctx context.Context, userID string, country models.CompletedCountry) error
	DeleteCompletedCountry(ctx context.Context, userID, countryID string) error
}

// CountryCatalogRepository serves the shared reference country table.
type CountryCatalogRepository interface {
	ListCountries(ctx context.Context) ([]models.Country, error)
	UpsertCountries(ctx context.Context, countries []models.Country) error
}
