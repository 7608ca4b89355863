// Package crawl sequences the three upstream stages and lands the result.
package crawl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/foodycrawl/foodycrawl/internal/foody"
	"github.com/foodycrawl/foodycrawl/internal/metrics"
)

// Upstream is the vendor API surface the orchestrator drives.
type Upstream interface {
	FetchLocations(ctx context.Context) ([]foody.Location, error)
	FetchBrowsingIDs(ctx context.Context, cityID int) (foody.BrowsingIDs, error)
	FetchBrowsingInfos(ctx context.Context, req foody.BrowsingInfosRequest) ([]foody.Food, error)
}

// Sink lands a finished batch.
type Sink interface {
	WriteBatch(ctx context.Context, batch foody.Batch, unixNano int64) (string, error)
}

// Clock supplies the time-derived filename suffix.
type Clock interface {
	Now() time.Time
}

// Summary reports what a full (or locations-only) run produced.
type Summary struct {
	Filename       string `json:"filename,omitempty"`
	TotalCities    int    `json:"total_cities"`
	TotalLocations int    `json:"total_locations"`
	TotalFoods     int    `json:"total_foods"`
	SkippedCities  int    `json:"skipped_cities,omitempty"`
}

// CitySummary reports a single-city run.
type CitySummary struct {
	Filename             string `json:"filename,omitempty"`
	CityID               int    `json:"city_id"`
	TotalDeliveryIDs     int    `json:"total_delivery_ids"`
	ProcessedDeliveryIDs int    `json:"processed_delivery_ids"`
	TotalFoods           int    `json:"total_foods"`
}

// Orchestrator runs the crawl pipeline sequentially. Throttling lives in the
// upstream client's pacer, so no stage runs calls in parallel.
type Orchestrator struct {
	upstream      Upstream
	sink          Sink
	clock         Clock
	maxIDsPerCity int
	logger        *zap.Logger
}

// New builds an Orchestrator. maxIDsPerCity caps fan-out from one oversized city.
func New(upstream Upstream, sink Sink, clock Clock, maxIDsPerCity int, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		upstream:      upstream,
		sink:          sink,
		clock:         clock,
		maxIDsPerCity: maxIDsPerCity,
		logger:        logger,
	}
}

// FullCrawl runs locations -> per-city browsing-ids -> browsing-infos and
// lands one combined batch. Only the locations stage is fatal; a failed city
// or a failed browsing-infos request is logged and skipped.
func (o *Orchestrator) FullCrawl(ctx context.Context) (Summary, error) {
	locations, err := o.upstream.FetchLocations(ctx)
	if err != nil {
		metrics.CrawlRun("error")
		return Summary{}, fmt.Errorf("locations stage: %w", err)
	}
	o.logger.Info("locations stage complete", zap.Int("cities", len(locations)))

	var summary Summary
	summary.TotalCities = len(locations)
	summary.TotalLocations = len(locations)

	requests := make([]foody.BrowsingInfosRequest, 0, len(locations)*o.maxIDsPerCity)
	for _, loc := range locations {
		ids, err := o.upstream.FetchBrowsingIDs(ctx, loc.CityID)
		if err != nil {
			o.logger.Warn("skipping city after browsing-ids failure",
				zap.Int("city_id", loc.CityID),
				zap.Error(err),
			)
			summary.SkippedCities++
			continue
		}
		requests = append(requests, o.buildRequests(ids)...)
	}
	o.logger.Info("browsing-ids stage complete",
		zap.Int("requests", len(requests)),
		zap.Int("skipped_cities", summary.SkippedCities),
	)

	foods := o.collectFoods(ctx, requests)
	summary.TotalFoods = len(foods)

	filename, err := o.land(ctx, foody.Batch{Locations: locations, Foods: foods})
	if err != nil {
		// The crawl itself succeeded; surface a partial failure to the caller.
		metrics.CrawlRun("land_error")
		return summary, err
	}
	summary.Filename = filename

	metrics.CrawlRun("success")
	metrics.FoodsCrawled(summary.TotalFoods)
	o.logger.Info("full crawl complete",
		zap.String("file", filename),
		zap.Int("cities", summary.TotalCities),
		zap.Int("foods", summary.TotalFoods),
	)
	return summary, nil
}

// CrawlCity runs browsing-ids + browsing-infos for one city and lands a batch
// with foods only. The browsing-ids failure is fatal here: the caller asked
// for exactly this city.
func (o *Orchestrator) CrawlCity(ctx context.Context, cityID int) (CitySummary, error) {
	ids, err := o.upstream.FetchBrowsingIDs(ctx, cityID)
	if err != nil {
		return CitySummary{CityID: cityID}, fmt.Errorf("browsing-ids for city %d: %w", cityID, err)
	}
	requests := o.buildRequests(ids)
	foods := o.collectFoods(ctx, requests)

	summary := CitySummary{
		CityID:               cityID,
		TotalDeliveryIDs:     len(ids.DeliveryIDs),
		ProcessedDeliveryIDs: len(requests),
		TotalFoods:           len(foods),
	}

	filename, err := o.land(ctx, foody.Batch{Foods: foods})
	if err != nil {
		return summary, err
	}
	summary.Filename = filename
	metrics.FoodsCrawled(len(foods))
	return summary, nil
}

// CrawlLocations fetches and lands the location listing alone.
func (o *Orchestrator) CrawlLocations(ctx context.Context) (Summary, error) {
	locations, err := o.upstream.FetchLocations(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("locations stage: %w", err)
	}
	summary := Summary{TotalCities: len(locations), TotalLocations: len(locations)}
	filename, err := o.land(ctx, foody.Batch{Locations: locations})
	if err != nil {
		return summary, err
	}
	summary.Filename = filename
	return summary, nil
}

// BrowsingIDs proxies one browsing-ids call for the debugging endpoint.
func (o *Orchestrator) BrowsingIDs(ctx context.Context, cityID int) (foody.BrowsingIDs, error) {
	ids, err := o.upstream.FetchBrowsingIDs(ctx, cityID)
	if err != nil {
		return ids, fmt.Errorf("browsing-ids for city %d: %w", cityID, err)
	}
	return ids, nil
}

// buildRequests truncates a city's delivery ids to the fan-out cap and builds
// one singleton request per id.
func (o *Orchestrator) buildRequests(ids foody.BrowsingIDs) []foody.BrowsingInfosRequest {
	deliveryIDs := ids.DeliveryIDs
	if len(deliveryIDs) > o.maxIDsPerCity {
		o.logger.Info("capping delivery ids for city",
			zap.Int("city_id", ids.CityID),
			zap.Int("total", len(deliveryIDs)),
			zap.Int("cap", o.maxIDsPerCity),
		)
		deliveryIDs = deliveryIDs[:o.maxIDsPerCity]
	}
	requests := make([]foody.BrowsingInfosRequest, 0, len(deliveryIDs))
	for _, id := range deliveryIDs {
		requests = append(requests, foody.NewBrowsingInfosRequest(id, ids.CityID))
	}
	return requests
}

// collectFoods processes requests sequentially; a failed request contributes
// zero foods and does not abort the batch.
func (o *Orchestrator) collectFoods(ctx context.Context, requests []foody.BrowsingInfosRequest) []foody.Food {
	foods := make([]foody.Food, 0, len(requests))
	for _, req := range requests {
		items, err := o.upstream.FetchBrowsingInfos(ctx, req)
		if err != nil {
			o.logger.Warn("skipping browsing-infos request",
				zap.Ints("delivery_ids", req.DeliveryIDs),
				zap.Int("city_id", req.CityID),
				zap.Error(err),
			)
			continue
		}
		foods = append(foods, items...)
	}
	return foods
}

func (o *Orchestrator) land(ctx context.Context, batch foody.Batch) (string, error) {
	filename, err := o.sink.WriteBatch(ctx, batch, o.clock.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("land batch: %w", err)
	}
	return filename, nil
}
