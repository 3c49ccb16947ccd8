package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/proimagery/ferdi-app-sub000/internal/db"
	"github.com/proimagery/ferdi-app-sub000/internal/models"
)

// mapPgError translates constraint and input errors to repository sentinels.
func mapPgError(err error, action string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrConflict
		case "23503", "22P02":
			return ErrNotFound
		}
	}
	return fmt.Errorf("%s: %w", action, err)
}

func parseDecimal(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// PostgresTripRepository provides PostgreSQL-backed persistence for trips.
type PostgresTripRepository struct {
	pool db.Pool
}

// NewPostgresTripRepository constructs a trip repository backed by PostgreSQL.
func NewPostgresTripRepository(pool db.Pool) *PostgresTripRepository {
	return &PostgresTripRepository{pool: pool}
}

// ListTrips returns the user's trips with stops ordered by position.
func (r *PostgresTripRepository) ListTrips(ctx context.Context, userID string) ([]models.Trip, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id::text, name, total_budget::text
        FROM trips
        WHERE user_id = $1
        ORDER BY created_at, id
    `, userID)
	if err != nil {
		return nil, mapPgError(err, "query trips")
	}

	var (
		trips []models.Trip
		ids   []string
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			trip   models.Trip
			budget string
		)
		if err := rows.Scan(&trip.ID, &trip.Name, &budget); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trip.TotalBudget = parseDecimal(budget)
		index[trip.ID] = len(trips)
		ids = append(ids, trip.ID)
		trips = append(trips, trip)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trips: %w", err)
	}
	if len(trips) == 0 {
		return trips, nil
	}

	stopRows, err := conn.Query(ctx, `
        SELECT trip_id::text, country, start_date, end_date, position
        FROM trip_stops
        WHERE trip_id = ANY($1::uuid[])
        ORDER BY trip_id, position
    `, ids)
	if err != nil {
		return nil, fmt.Errorf("query trip stops: %w", err)
	}
	defer stopRows.Close()

	for stopRows.Next() {
		var (
			tripID string
			stop   models.Stop
		)
		if err := stopRows.Scan(&tripID, &stop.Country, &stop.StartDate, &stop.EndDate, &stop.Position); err != nil {
			return nil, fmt.Errorf("scan trip stop: %w", err)
		}
		if i, ok := index[tripID]; ok {
			trips[i].Stops = append(trips[i].Stops, stop)
		}
	}
	if err := stopRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trip stops: %w", err)
	}

	return trips, nil
}

// InsertTrip stores a new trip with its stops in one transaction.
func (r *PostgresTripRepository) InsertTrip(ctx context.Context, userID string, trip models.Trip) (string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var id string
	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
            INSERT INTO trips (user_id, name, total_budget)
            VALUES ($1, $2, $3::numeric)
            RETURNING id::text
        `, userID, trip.Name, trip.TotalBudget.String()).Scan(&id); err != nil {
			return mapPgError(err, "insert trip")
		}
		return insertStops(ctx, tx, id, trip.Stops)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateTrip writes the trip row only.
func (r *PostgresTripRepository) UpdateTrip(ctx context.Context, userID string, trip models.Trip) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return updateTripRow(ctx, conn, userID, trip)
}

// ReplaceStops deletes every stop of the user's trip and inserts stops.
func (r *PostgresTripRepository) ReplaceStops(ctx context.Context, userID, tripID string, stops []models.Stop) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var owned bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM trips WHERE id = $1 AND user_id = $2)`, tripID, userID).Scan(&owned); err != nil {
		return mapPgError(err, "check trip owner")
	}
	if !owned {
		return ErrNotFound
	}

	if _, err := conn.Exec(ctx, `
        DELETE FROM trip_stops
        WHERE trip_id = $1 AND trip_id IN (SELECT id FROM trips WHERE user_id = $2)
    `, tripID, userID); err != nil {
		return mapPgError(err, "delete trip stops")
	}
	return insertStops(ctx, conn, tripID, stops)
}

// UpdateTripWithStops updates the trip row and replaces its stops in a single
// transaction.
func (r *PostgresTripRepository) UpdateTripWithStops(ctx context.Context, userID string, trip models.Trip) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if err := updateTripRow(ctx, tx, userID, trip); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM trip_stops WHERE trip_id = $1`, trip.ID); err != nil {
			return mapPgError(err, "delete trip stops")
		}
		return insertStops(ctx, tx, trip.ID, trip.Stops)
	})
}

// DeleteTrip removes the trip; stops cascade.
func (r *PostgresTripRepository) DeleteTrip(ctx context.Context, userID, tripID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM trips WHERE id = $1 AND user_id = $2`, tripID, userID)
	if err != nil {
		return mapPgError(err, "delete trip")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func updateTripRow(ctx context.Context, q execer, userID string, trip models.Trip) error {
	tag, err := q.Exec(ctx, `
        UPDATE trips
        SET name = $3, total_budget = $4::numeric, updated_at = NOW()
        WHERE id = $1 AND user_id = $2
    `, trip.ID, userID, trip.Name, trip.TotalBudget.String())
	if err != nil {
		return mapPgError(err, "update trip")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func insertStops(ctx context.Context, q execer, tripID string, stops []models.Stop) error {
	for i, stop := range stops {
		if _, err := q.Exec(ctx, `
            INSERT INTO trip_stops (trip_id, country, start_date, end_date, position)
            VALUES ($1, $2, $3, $4, $5)
        `, tripID, stop.Country, stop.StartDate, stop.EndDate, i); err != nil {
			return mapPgError(err, "insert trip stop")
		}
	}
	return nil
}

// PostgresBudgetRepository provides PostgreSQL-backed persistence for budgets.
type PostgresBudgetRepository struct {
	pool db.Pool
}

// NewPostgresBudgetRepository constructs a budget repository backed by PostgreSQL.
func NewPostgresBudgetRepository(pool db.Pool) *PostgresBudgetRepository {
	return &PostgresBudgetRepository{pool: pool}
}

// ListBudgets returns the user's budgets. Rows without a data payload are
// reconstructed from the legacy flat columns.
func (r *PostgresBudgetRepository) ListBudgets(ctx context.Context, userID string) ([]models.Budget, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id::text, trip_id::text, data, name, currency, total_amount::text, spent_amount::text
        FROM budgets
        WHERE user_id = $1
        ORDER BY created_at, id
    `, userID)
	if err != nil {
		return nil, mapPgError(err, "query budgets")
	}
	defer rows.Close()

	var budgets []models.Budget
	for rows.Next() {
		var (
			row    legacyBudgetRow
			budget models.Budget
		)
		if err := rows.Scan(&budget.ID, &budget.TripID, &row.Data, &row.Name, &row.Currency, &row.Total, &row.Spent); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		budget.Payload, err = row.payload()
		if err != nil {
			return nil, fmt.Errorf("decode budget %s: %w", budget.ID, err)
		}
		budgets = append(budgets, budget)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}

	return budgets, nil
}

type legacyBudgetRow struct {
	Data     []byte
	Name     *string
	Currency *string
	Total    *string
	Spent    *string
}

func (r legacyBudgetRow) payload() (models.BudgetPayload, error) {
	var p models.BudgetPayload
	if len(r.Data) > 0 && string(r.Data) != "null" {
		err := json.Unmarshal(r.Data, &p)
		return p, err
	}
	if r.Name != nil {
		p.Name = *r.Name
	}
	if r.Currency != nil {
		p.Currency = *r.Currency
	}
	if r.Total != nil {
		p.Total = parseDecimal(*r.Total)
	}
	if r.Spent != nil {
		p.Spent = parseDecimal(*r.Spent)
	}
	return p, nil
}

// InsertBudget stores a budget in the normalized shape.
func (r *PostgresBudgetRepository) InsertBudget(ctx context.Context, userID string, budget models.Budget) (string, error) {
	data, err := json.Marshal(budget.Payload)
	if err != nil {
		return "", fmt.Errorf("encode budget: %w", err)
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var id string
	if err := conn.QueryRow(ctx, `
        INSERT INTO budgets (user_id, trip_id, data)
        VALUES ($1, $2, $3)
        RETURNING id::text
    `, userID, budget.TripID, data).Scan(&id); err != nil {
		return "", mapPgError(err, "insert budget")
	}
	return id, nil
}

// UpdateBudget rewrites the budget payload, migrating legacy rows to the
// normalized shape.
func (r *PostgresBudgetRepository) UpdateBudget(ctx context.Context, userID string, budget models.Budget) error {
	data, err := json.Marshal(budget.Payload)
	if err != nil {
		return fmt.Errorf("encode budget: %w", err)
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE budgets
        SET trip_id = $3, data = $4, name = NULL, currency = NULL, total_amount = NULL, spent_amount = NULL
        WHERE id = $1 AND user_id = $2
    `, budget.ID, userID, budget.TripID, data)
	if err != nil {
		return mapPgError(err, "update budget")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBudget removes a budget.
func (r *PostgresBudgetRepository) DeleteBudget(ctx context.Context, userID, budgetID string) error {
	return deleteOwned(ctx, r.pool, "budgets", userID, budgetID)
}

// PostgresVisitedCityRepository provides PostgreSQL-backed persistence for visited cities.
type PostgresVisitedCityRepository struct {
	pool db.Pool
}

// NewPostgresVisitedCityRepository constructs a visited city repository.
func NewPostgresVisitedCityRepository(pool db.Pool) *PostgresVisitedCityRepository {
	return &PostgresVisitedCityRepository{pool: pool}
}

func (r *PostgresVisitedCityRepository) ListVisitedCities(ctx context.Context, userID string) ([]models.VisitedCity, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id::text, city, country, visited_on
        FROM visited_cities
        WHERE user_id = $1
        ORDER BY created_at, id
    `, userID)
	if err != nil {
		return nil, mapPgError(err, "query visited cities")
	}
	defer rows.Close()

	var cities []models.VisitedCity
	for rows.Next() {
		var c models.VisitedCity
		if err := rows.Scan(&c.ID, &c.City, &c.Country, &c.VisitedOn); err != nil {
			return nil, fmt.Errorf("scan visited city: %w", err)
		}
		cities = append(cities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visited cities: %w", err)
	}
	return cities, nil
}

func (r *PostgresVisitedCityRepository) InsertVisitedCity(ctx context.Context, userID string, city models.VisitedCity) (string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var id string
	if err := conn.QueryRow(ctx, `
        INSERT INTO visited_cities (user_id, city, country, visited_on)
        VALUES ($1, $2, $3, $4)
        RETURNING id::text
    `, userID, city.City, city.Country, city.VisitedOn).Scan(&id); err != nil {
		return "", mapPgError(err, "insert visited city")
	}
	return id, nil
}

func (r *PostgresVisitedCityRepository) UpdateVisitedCity(ctx context.Context, userID string, city models.VisitedCity) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE visited_cities
        SET city = $3, country = $4, visited_on = $5
        WHERE id = $1 AND user_id = $2
    `, city.ID, userID, city.City, city.Country, city.VisitedOn)
	if err != nil {
		return mapPgError(err, "update visited city")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresVisitedCityRepository) DeleteVisitedCity(ctx context.Context, userID, cityID string) error {
	return deleteOwned(ctx, r.pool, "visited_cities", userID, cityID)
}

// PostgresCompletedCountryRepository provides PostgreSQL-backed persistence for completed countries.
type PostgresCompletedCountryRepository struct {
	pool db.Pool
}

// NewPostgresCompletedCountryRepository constructs a completed country repository.
func NewPostgresCompletedCountryRepository(pool db.Pool) *PostgresCompletedCountryRepository {
	return &PostgresCompletedCountryRepository{pool: pool}
}

func (r *PostgresCompletedCountryRepository) ListCompletedCountries(ctx context.Context, userID string) ([]models.CompletedCountry, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id::text, country, completed_on
        FROM completed_countries
        WHERE user_id = $1
        ORDER BY created_at, id
    `, userID)
	if err != nil {
		return nil, mapPgError(err, "query completed countries")
	}
	defer rows.Close()

	var countries []models.CompletedCountry
	for rows.Next() {
		var c models.CompletedCountry
		if err := rows.Scan(&c.ID, &c.Country, &c.CompletedOn); err != nil {
			return nil, fmt.Errorf("scan completed country: %w", err)
		}
		countries = append(countries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed countries: %w", err)
	}
	return countries, nil
}

func (r *PostgresCompletedCountryRepository) InsertCompletedCountry(ctx context.Context, userID string, country models.CompletedCountry) (string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var id string
	if err := conn.QueryRow(ctx, `
        INSERT INTO completed_countries (user_id, country, completed_on)
        VALUES ($1, $2, $3)
        RETURNING id::text
    `, userID, country.Country, country.CompletedOn).Scan(&id); err != nil {
		return "", mapPgError(err, "insert completed country")
	}
	return id, nil
}

func (r *PostgresCompletedCountryRepository) UpdateCompletedCountry(ctx context.Context, userID string, country models.CompletedCountry) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE completed_countries
        SET country = $3, completed_on = $4
        WHERE id = $1 AND user_id = $2
    `, country.ID, userID, country.Country, country.CompletedOn)
	if err != nil {
		return mapPgError(err, "update completed country")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresCompletedCountryRepository) DeleteCompletedCountry(ctx context.Context, userID, countryID string) error {
	return deleteOwned(ctx, r.pool, "completed_countries", userID, countryID)
}

// deleteOwned removes a row scoped by id and user. table is always a
// package constant.
func deleteOwned(ctx context.Context, pool db.Pool, table, userID, id string) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return mapPgError(err, "delete from "+table)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PostgresCountryCatalog serves the shared country reference table.
type PostgresCountryCatalog struct {
	pool db.Pool
}

// NewPostgresCountryCatalog constructs a catalog backed by PostgreSQL.
func NewPostgresCountryCatalog(pool db.Pool) *PostgresCountryCatalog {
	return &PostgresCountryCatalog{pool: pool}
}

func (r *PostgresCountryCatalog) ListCountries(ctx context.Context) ([]models.Country, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT code, name, region, capital, currency, latitude, longitude
        FROM country_catalog
        ORDER BY name
    `)
	if err != nil {
		return nil, fmt.Errorf("query country catalog: %w", err)
	}
	defer rows.Close()

	var countries []models.Country
	for rows.Next() {
		var c models.Country
		if err := rows.Scan(&c.Code, &c.Name, &c.Region, &c.Capital, &c.Currency, &c.Latitude, &c.Longitude); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		countries = append(countries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate country catalog: %w", err)
	}
	return countries, nil
}

// UpsertCountries inserts or refreshes catalog rows in one batch.
func (r *PostgresCountryCatalog) UpsertCountries(ctx context.Context, countries []models.Country) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	batch := &pgx.Batch{}
	for _, c := range countries {
		batch.Queue(`
            INSERT INTO country_catalog (code, name, region, capital, currency, latitude, longitude, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
            ON CONFLICT (code)
            DO UPDATE SET name = EXCLUDED.name, region = EXCLUDED.region, capital = EXCLUDED.capital,
                currency = EXCLUDED.currency, latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
                updated_at = EXCLUDED.updated_at
        `, c.Code, c.Name, c.Region, c.Capital, c.Currency, c.Latitude, c.Longitude)
	}

	results := conn.SendBatch(ctx, batch)
	for range countries {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("upsert country: %w", err)
		}
	}
	return results.Close()
}

var _ TripRepository = (*PostgresTripRepository)(nil)
var _ AtomicTripWriter = (*PostgresTripRepository)(nil)
var _ BudgetRepository = (*PostgresBudgetRepository)(nil)
var _ VisitedCityRepository = (*PostgresVisitedCityRepository)(nil)
var _ CompletedCountryRepository = (*PostgresCompletedCountryRepository)(nil)
var _ CountryCatalogRepository = (*PostgresCountryCatalog)(nil)
