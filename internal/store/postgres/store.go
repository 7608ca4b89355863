// Package postgres provides the Postgres-backed relational store for
// locations and foods.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/foodycrawl/foodycrawl/internal/config"
	"github.com/foodycrawl/foodycrawl/internal/foody"
	"github.com/foodycrawl/foodycrawl/internal/retry"
)

// querier is the pool subset the store needs; pgxmock satisfies it in tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists crawl output. Every upsert runs in its own implicit
// transaction; a mid-batch crash loses no prior progress.
type Store struct {
	pool querier
}

// Connect dials Postgres with a bounded retry loop: the database container
// often comes up after the service does. Fatal after the attempts run out.
func Connect(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	policy := retry.NewPolicy(cfg.ConnectAttempts, cfg.ConnectBackoff, 4*cfg.ConnectBackoff)
	var lastErr error
	for attempt := 0; attempt < cfg.ConnectAttempts; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				logger.Info("connected to postgres")
				return &Store{pool: pool}, nil
			}
			pool.Close()
		}
		lastErr = err
		logger.Warn("postgres connection failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", cfg.ConnectAttempts),
			zap.Error(err),
		)
		if attempt+1 < cfg.ConnectAttempts {
			if sleepErr := policy.Sleep(ctx, attempt); sleepErr != nil {
				return nil, fmt.Errorf("connect postgres: %w", sleepErr)
			}
		}
	}
	return nil, fmt.Errorf("connect postgres after %d attempts: %w", cfg.ConnectAttempts, lastErr)
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool querier) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS locations (
	id BIGINT PRIMARY KEY,
	city_id BIGINT UNIQUE NOT NULL,
	country_id BIGINT NOT NULL,
	name TEXT NOT NULL,
	country_name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS foods (
	id BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	categories TEXT[] NOT NULL DEFAULT '{}',
	cuisines TEXT[] NOT NULL DEFAULT '{}',
	address TEXT NOT NULL DEFAULT '',
	rating_avg DOUBLE PRECISION,
	rating_total_review BIGINT,
	image_url TEXT NOT NULL DEFAULT '',
	is_open BOOLEAN NOT NULL DEFAULT TRUE,
	city_id BIGINT NOT NULL REFERENCES locations (city_id)
);
CREATE INDEX IF NOT EXISTS idx_foods_city_id ON foods (city_id);
`

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// UpsertLocation inserts or replaces a location row keyed on id.
func (s *Store) UpsertLocation(ctx context.Context, loc foody.Location) error {
	query := `
INSERT INTO locations (id, city_id, country_id, name, country_name)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	city_id = EXCLUDED.city_id,
	country_id = EXCLUDED.country_id,
	name = EXCLUDED.name,
	country_name = EXCLUDED.country_name`
	if _, err := s.pool.Exec(ctx, query, loc.ID, loc.CityID, loc.CountryID, loc.Name, loc.CountryName); err != nil {
		return fmt.Errorf("upsert location %d: %w", loc.ID, err)
	}
	return nil
}

// UpsertFood inserts or replaces a food row keyed on id.
func (s *Store) UpsertFood(ctx context.Context, f foody.Food) error {
	query := `
INSERT INTO foods (id, name, categories, cuisines, address, rating_avg, rating_total_review, image_url, is_open, city_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	categories = EXCLUDED.categories,
	cuisines = EXCLUDED.cuisines,
	address = EXCLUDED.address,
	rating_avg = EXCLUDED.rating_avg,
	rating_total_review = EXCLUDED.rating_total_review,
	image_url = EXCLUDED.image_url,
	is_open = EXCLUDED.is_open,
	city_id = EXCLUDED.city_id`
	_, err := s.pool.Exec(ctx, query,
		f.ID,
		f.Name,
		[]string(f.Categories),
		[]string(f.Cuisines),
		f.Address,
		f.RatingAvg,
		f.RatingTotalReview,
		f.ImageURL,
		f.IsOpen,
		f.CityID,
	)
	if err != nil {
		return fmt.Errorf("upsert food %d: %w", f.ID, err)
	}
	return nil
}

// LocationExists reports whether a location row with the city id is present.
func (s *Store) LocationExists(ctx context.Context, cityID int) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM locations WHERE city_id = $1`, cityID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check location %d: %w", cityID, err)
	}
	return true, nil
}

// ListLocations returns every location ordered by city id.
func (s *Store) ListLocations(ctx context.Context) ([]foody.Location, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, city_id, country_id, name, country_name
FROM locations
ORDER BY city_id`)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var locations []foody.Location
	for rows.Next() {
		var loc foody.Location
		if err := rows.Scan(&loc.ID, &loc.CityID, &loc.CountryID, &loc.Name, &loc.CountryName); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locations: %w", err)
	}
	return locations, nil
}

// FoodFilter narrows and paginates the food listing.
type FoodFilter struct {
	Query    string
	CityID   int
	Page     int
	PageSize int
}

func (f FoodFilter) clauses() (string, []any) {
	var conds []string
	var args []any
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if f.CityID > 0 {
		args = append(args, f.CityID)
		conds = append(conds, fmt.Sprintf("city_id = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// SearchFoods returns one page of foods matching the filter and the total count.
func (s *Store) SearchFoods(ctx context.Context, filter FoodFilter) ([]foody.Food, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	where, args := filter.clauses()

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM foods"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count foods: %w", err)
	}

	pageArgs := append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)
	query := fmt.Sprintf(`
SELECT id, name, categories, cuisines, address, rating_avg, rating_total_review, image_url, is_open, city_id
FROM foods%s
ORDER BY id
LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)

	rows, err := s.pool.Query(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("search foods: %w", err)
	}
	defer rows.Close()

	var foods []foody.Food
	for rows.Next() {
		var food foody.Food
		var categories, cuisines []string
		if err := rows.Scan(
			&food.ID,
			&food.Name,
			&categories,
			&cuisines,
			&food.Address,
			&food.RatingAvg,
			&food.RatingTotalReview,
			&food.ImageURL,
			&food.IsOpen,
			&food.CityID,
		); err != nil {
			return nil, 0, fmt.Errorf("scan food: %w", err)
		}
		food.Categories = categories
		food.Cuisines = cuisines
		foods = append(foods, food)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate foods: %w", err)
	}
	return foods, total, nil
}
