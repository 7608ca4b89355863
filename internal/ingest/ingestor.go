// Package ingest loads landed batch files into the relational store.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/foodycrawl/foodycrawl/internal/foody"
	"github.com/foodycrawl/foodycrawl/internal/metrics"
)

// Store is the persistence surface the ingestor writes to.
type Store interface {
	UpsertLocation(ctx context.Context, loc foody.Location) error
	UpsertFood(ctx context.Context, f foody.Food) error
	LocationExists(ctx context.Context, cityID int) (bool, error)
}

// Ingestor parses one landing-zone file at a time and upserts its records.
// Re-ingesting a file is a no-op state-wise: every write is an upsert by id.
type Ingestor struct {
	store  Store
	logger *zap.Logger
}

// New builds an Ingestor.
func New(store Store, logger *zap.Logger) *Ingestor {
	return &Ingestor{store: store, logger: logger}
}

// IngestFile processes one batch file. Unreadable or unparsable files abort
// that file only; record-level problems skip the record and keep going.
// Locations commit before any food is considered so that foods in the same
// file can reference cities it introduced.
func (i *Ingestor) IngestFile(ctx context.Context, path string) error {
	name := filepath.Base(path)

	raw, err := os.ReadFile(path)
	if err != nil {
		metrics.FileIngested("read_error")
		return fmt.Errorf("read landing file %s: %w", name, err)
	}
	locations, foods, err := splitBatch(raw)
	if err != nil {
		metrics.FileIngested("parse_error")
		return fmt.Errorf("parse landing file %s: %w", name, err)
	}
	i.logger.Info("ingesting landing file",
		zap.String("file", name),
		zap.Int("locations", len(locations)),
		zap.Int("foods", len(foods)),
	)

	for idx, rec := range locations {
		i.ingestLocation(ctx, name, idx, rec)
	}
	for idx, rec := range foods {
		i.ingestFood(ctx, name, idx, rec)
	}

	metrics.FileIngested("ok")
	i.logger.Info("landing file ingested", zap.String("file", name))
	return nil
}

func (i *Ingestor) ingestLocation(ctx context.Context, file string, idx int, rec json.RawMessage) {
	loc, err := coerceLocation(rec)
	if err != nil {
		metrics.RecordIngested("locations", "skipped_invalid")
		i.logger.Warn("skipping invalid location record",
			zap.String("file", file), zap.Int("index", idx), zap.Error(err))
		return
	}
	if err := i.store.UpsertLocation(ctx, loc); err != nil {
		metrics.RecordIngested("locations", "store_error")
		i.logger.Warn("skipping location after store failure",
			zap.String("file", file), zap.Int("city_id", loc.CityID), zap.Error(err))
		return
	}
	metrics.RecordIngested("locations", "upserted")
	i.logger.Debug("upserted location", zap.Int("city_id", loc.CityID))
}

func (i *Ingestor) ingestFood(ctx context.Context, file string, idx int, rec json.RawMessage) {
	food, err := coerceFood(rec)
	if err != nil {
		metrics.RecordIngested("foods", "skipped_invalid")
		i.logger.Warn("skipping invalid food record",
			zap.String("file", file), zap.Int("index", idx), zap.Error(err))
		return
	}
	exists, err := i.store.LocationExists(ctx, food.CityID)
	if err != nil {
		metrics.RecordIngested("foods", "store_error")
		i.logger.Warn("skipping food after city lookup failure",
			zap.String("file", file), zap.Int("city_id", food.CityID), zap.Error(err))
		return
	}
	if !exists {
		metrics.RecordIngested("foods", "skipped_missing_city")
		i.logger.Warn("city not found in locations table, skipping food",
			zap.String("file", file), zap.Int("city_id", food.CityID), zap.Int("food_id", food.ID))
		return
	}
	if err := i.store.UpsertFood(ctx, food); err != nil {
		metrics.RecordIngested("foods", "store_error")
		i.logger.Warn("skipping food after store failure",
			zap.String("file", file), zap.Int("food_id", food.ID), zap.Error(err))
		return
	}
	metrics.RecordIngested("foods", "upserted")
	i.logger.Debug("upserted food", zap.Int("food_id", food.ID))
}

// splitBatch accepts either the combined {locations,foods} object or the
// deprecated bare food array and returns raw records so one malformed record
// cannot abort the rest of the file.
func splitBatch(raw []byte) (locations, foods []json.RawMessage, err error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, nil, fmt.Errorf("empty file")
	}
	switch trimmed[0] {
	case '{':
		var batch struct {
			Locations []json.RawMessage `json:"locations"`
			Foods     []json.RawMessage `json:"foods"`
		}
		if err := json.Unmarshal(raw, &batch); err != nil {
			return nil, nil, fmt.Errorf("decode combined batch: %w", err)
		}
		return batch.Locations, batch.Foods, nil
	case '[':
		// Legacy shape: a bare list of food records.
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, nil, fmt.Errorf("decode legacy batch: %w", err)
		}
		return nil, items, nil
	default:
		return nil, nil, fmt.Errorf("unrecognized batch shape")
	}
}

func coerceLocation(rec json.RawMessage) (foody.Location, error) {
	var loc foody.Location
	if err := json.Unmarshal(rec, &loc); err != nil {
		return foody.Location{}, &foody.ValidationError{Record: "location", Reason: err.Error()}
	}
	if loc.CityID == 0 {
		return foody.Location{}, &foody.ValidationError{Record: "location", Reason: "missing city_id"}
	}
	if loc.Name == "" {
		return foody.Location{}, &foody.ValidationError{Record: "location", Reason: "missing name"}
	}
	if loc.ID == 0 {
		// The crawl writes locations without a separate id; the city id is
		// the natural identity.
		loc.ID = loc.CityID
	}
	return loc, nil
}

func coerceFood(rec json.RawMessage) (foody.Food, error) {
	var food foody.Food
	if err := json.Unmarshal(rec, &food); err != nil {
		return foody.Food{}, &foody.ValidationError{Record: "food", Reason: err.Error()}
	}
	if food.Name == "" {
		return foody.Food{}, &foody.ValidationError{Record: "food", Reason: "missing name"}
	}
	if food.CityID == 0 {
		return foody.Food{}, &foody.ValidationError{Record: "food", Reason: "missing city_id"}
	}
	if food.Categories == nil {
		food.Categories = foody.StringList{}
	}
	if food.Cuisines == nil {
		food.Cuisines = foody.StringList{}
	}
	if food.ID == 0 {
		food.ID = foody.SynthesizeFoodID(food.Name, food.Address, food.CityID)
	}
	return food, nil
}
