// Package foody defines the domain records shared by the crawl and ingest pipelines.
package foody

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
)

// Location is one city listing from the upstream location endpoint.
// Identity is CityID; re-crawling the same city replaces the row.
type Location struct {
	ID          int    `json:"id,omitempty"`
	CityID      int    `json:"city_id"`
	CountryID   int    `json:"country_id"`
	Name        string `json:"name"`
	CountryName string `json:"country_name"`
}

// Food is one restaurant listing from the browsing-infos endpoint.
// RatingAvg and RatingTotalReview stay nil when upstream omits them;
// "unrated" and "rated zero" are different facts.
type Food struct {
	ID                int        `json:"id,omitempty"`
	Name              string     `json:"name"`
	Categories        StringList `json:"categories"`
	Cuisines          StringList `json:"cuisines"`
	Address           string     `json:"address"`
	RatingAvg         *float64   `json:"rating_avg"`
	RatingTotalReview *int       `json:"rating_total_review"`
	ImageURL          string     `json:"image_url"`
	IsOpen            bool       `json:"is_open"`
	CityID            int        `json:"city_id"`
}

// Batch is the landing-zone file payload: everything one crawl run produced.
type Batch struct {
	Locations []Location `json:"locations"`
	Foods     []Food     `json:"foods"`
}

// BrowsingIDs is the result of one browsing-ids call for a city.
type BrowsingIDs struct {
	CityID      int   `json:"city_id"`
	DeliveryIDs []int `json:"delivery_ids"`
}

// Upstream payload defaults observed on gappapi.deliverynow.vn.
const (
	DefaultSortType     = 2
	DefaultRootCategory = 1000000
)

// BrowsingInfosRequest is the fan-out unit for the browsing-infos endpoint.
// The endpoint accepts a list of delivery ids but the orchestrator issues
// singleton requests, matching what the upstream tolerates.
type BrowsingInfosRequest struct {
	DeliveryIDs     []int `json:"delivery_ids"`
	CityID          int   `json:"city_id"`
	SortType        int   `json:"sort_type"`
	RootCategory    int   `json:"root_category"`
	RootCategoryIDs []int `json:"root_category_ids"`
}

// NewBrowsingInfosRequest builds a request for a single delivery id with the
// upstream defaults filled in. Callers never construct the struct directly.
func NewBrowsingInfosRequest(deliveryID, cityID int) BrowsingInfosRequest {
	return BrowsingInfosRequest{
		DeliveryIDs:     []int{deliveryID},
		CityID:          cityID,
		SortType:        DefaultSortType,
		RootCategory:    DefaultRootCategory,
		RootCategoryIDs: []int{DefaultRootCategory},
	}
}

// StringList is a []string that tolerates sloppy landing-zone values: a bare
// string becomes a one-element list, and anything that is neither a string nor
// a list of strings becomes empty.
type StringList []string

// UnmarshalJSON implements lenient decoding for StringList.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*l = items
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	*l = StringList{}
	return nil
}

// SynthesizeFoodID derives a stable positive id from a food's content for
// records the upstream returned without one. Content-derived so re-ingesting
// the same record hits the same row instead of a fresh random one.
func SynthesizeFoodID(name, address string, cityID int) int {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s|%s|%d", name, address, cityID)
	return int(h.Sum32() & 0x7fffffff)
}
