package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/proimagery/ferdi-app-sub000/internal/models"
)

//go:embed data/countries.json
var bundledCountries []byte

// Bundled returns the country snapshot compiled into the binary.
func Bundled() ([]models.Country, error) {
	var countries []models.Country
	if err := json.Unmarshal(bundledCountries, &countries); err != nil {
		return nil, fmt.Errorf("decode bundled countries: %w", err)
	}
	return countries, nil
}
