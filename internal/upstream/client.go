// Package upstream implements the client for the Foody/DeliveryNow vendor API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/foodycrawl/foodycrawl/internal/config"
	"github.com/foodycrawl/foodycrawl/internal/foody"
	"github.com/foodycrawl/foodycrawl/internal/metrics"
	"github.com/foodycrawl/foodycrawl/internal/ratelimit"
	"github.com/foodycrawl/foodycrawl/internal/retry"
)

// Endpoint names used in errors, logs and metrics.
const (
	EndpointLocations     = "locations"
	EndpointBrowsingIDs   = "browsing_ids"
	EndpointBrowsingInfos = "browsing_infos"
)

// The vendor rejects requests without its app headers; this set mirrors what
// the web client sends.
var foodyHeaders = map[string]string{
	"Content-Type":          "application/json",
	"User-Agent":            "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36",
	"x-foody-api-version":   "1",
	"x-foody-app-type":      "1004",
	"x-foody-client-id":     "",
	"x-foody-client-type":   "1",
	"x-foody-client-version": "1",
}

// Client issues paced, retried requests against the three vendor endpoints.
type Client struct {
	http   *http.Client
	cfg    config.UpstreamConfig
	pacer  *ratelimit.Pacer
	policy *retry.Policy
	logger *zap.Logger
}

// NewClient builds a Client. The pacer is shared across all endpoints so the
// combined request rate stays inside the upstream's informal limit.
func NewClient(cfg config.UpstreamConfig, pacer *ratelimit.Pacer, policy *retry.Policy, logger *zap.Logger) *Client {
	if policy == nil {
		policy = retry.Default()
	}
	return &Client{
		http:   &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		pacer:  pacer,
		policy: policy,
		logger: logger,
	}
}

// FetchLocations lists every city the vendor serves.
func (c *Client) FetchLocations(ctx context.Context) ([]foody.Location, error) {
	var resp popupLocationResponse
	if err := c.call(ctx, EndpointLocations, http.MethodGet, c.cfg.LocationsURL, nil, &resp); err != nil {
		return nil, err
	}
	locations := make([]foody.Location, 0, len(resp.AllLocations))
	for _, raw := range resp.AllLocations {
		locations = append(locations, foody.Location{
			ID:          raw.ID,
			CityID:      raw.ID,
			CountryID:   raw.CountryID,
			Name:        raw.Name,
			CountryName: raw.CountryName,
		})
	}
	return locations, nil
}

// FetchBrowsingIDs lists the delivery ids available in a city. Transport
// failures are returned alongside an empty-id result so the orchestrator can
// skip one city without aborting the run.
func (c *Client) FetchBrowsingIDs(ctx context.Context, cityID int) (foody.BrowsingIDs, error) {
	payload := map[string]any{
		"sort_type":         foody.DefaultSortType,
		"city_id":           cityID,
		"root_category":     foody.DefaultRootCategory,
		"root_category_ids": []int{foody.DefaultRootCategory},
	}
	var resp browsingIDsResponse
	if err := c.call(ctx, EndpointBrowsingIDs, http.MethodPost, c.cfg.BrowsingIDsURL, payload, &resp); err != nil {
		return foody.BrowsingIDs{CityID: cityID}, err
	}
	return foody.BrowsingIDs{CityID: cityID, DeliveryIDs: resp.Reply.DeliveryIDs}, nil
}

// FetchBrowsingInfos resolves one browsing-infos request into Food records.
func (c *Client) FetchBrowsingInfos(ctx context.Context, req foody.BrowsingInfosRequest) ([]foody.Food, error) {
	var resp browsingInfosResponse
	if err := c.call(ctx, EndpointBrowsingInfos, http.MethodPost, c.cfg.BrowsingInfosURL, req, &resp); err != nil {
		return nil, err
	}
	foods := make([]foody.Food, 0, len(resp.Reply.DeliveryInfos))
	for _, info := range resp.Reply.DeliveryInfos {
		food := foody.Food{
			Name:       info.Name,
			Categories: info.Categories,
			Cuisines:   info.Cuisines,
			Address:    info.Address,
			ImageURL:   pickPhoto(info.Photos),
			IsOpen:     info.IsOpen,
			CityID:     info.CityID,
		}
		if info.Rating != nil {
			food.RatingAvg = info.Rating.Avg
			food.RatingTotalReview = info.Rating.TotalReview
		}
		foods = append(foods, food)
	}
	return foods, nil
}

// call runs one paced, retried request and decodes the body into out.
func (c *Client) call(ctx context.Context, endpoint, method, url string, payload, out any) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return &foody.UpstreamError{Endpoint: endpoint, Err: fmt.Errorf("encode payload: %w", err)}
		}
		body = encoded
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := c.pacer.Wait(ctx); err != nil {
			return &foody.UpstreamError{Endpoint: endpoint, Err: err}
		}
		raw, err := c.do(ctx, method, url, body)
		if err == nil {
			if decodeErr := json.Unmarshal(raw, out); decodeErr != nil {
				metrics.UpstreamRequest(endpoint, "shape_error")
				return &foody.UpstreamError{
					Endpoint: endpoint,
					Err:      fmt.Errorf("%w: %v", foody.ErrUpstreamShape, decodeErr),
				}
			}
			metrics.UpstreamRequest(endpoint, "ok")
			return nil
		}
		lastErr = err
		if !c.policy.ShouldRetry(err, attempt+1) {
			break
		}
		c.logger.Warn("upstream call failed, retrying",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if sleepErr := c.policy.Sleep(ctx, attempt); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}
	metrics.UpstreamRequest(endpoint, "transport_error")
	return &foody.UpstreamError{
		Endpoint: endpoint,
		Err:      fmt.Errorf("%w: %v", foody.ErrUpstreamTransport, lastErr),
	}
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range foodyHeaders {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d after %v", resp.StatusCode, time.Since(start).Round(time.Millisecond))
	}
	return raw, nil
}

// pickPhoto selects the 240x240 variant, the size the listing UI uses.
// Returns empty when no variant matches.
func pickPhoto(photos []photo) string {
	for _, p := range photos {
		if p.Width == 240 && p.Height == 240 {
			return p.Value
		}
	}
	return ""
}

type popupLocationResponse struct {
	AllLocations []struct {
		ID          int    `json:"Id"`
		CountryID   int    `json:"CountryId"`
		Name        string `json:"Name"`
		CountryName string `json:"CountryName"`
	} `json:"AllLocations"`
}

type browsingIDsResponse struct {
	Reply struct {
		DeliveryIDs []int `json:"delivery_ids"`
	} `json:"reply"`
}

type browsingInfosResponse struct {
	Reply struct {
		DeliveryInfos []deliveryInfo `json:"delivery_infos"`
	} `json:"reply"`
}

type deliveryInfo struct {
	Name       string           `json:"name"`
	Categories foody.StringList `json:"categories"`
	Cuisines   foody.StringList `json:"cuisines"`
	Address    string           `json:"address"`
	Rating     *struct {
		Avg         *float64 `json:"avg"`
		TotalReview *int     `json:"total_review"`
	} `json:"rating"`
	IsOpen bool    `json:"is_open"`
	CityID int     `json:"city_id"`
	Photos []photo `json:"photos"`
}

type photo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Value  string `json:"value"`
}
