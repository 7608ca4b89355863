package crawl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/foodycrawl/foodycrawl/internal/foody"
)

type fakeUpstream struct {
	locations     []foody.Location
	locationsErr  error
	browsingIDs   map[int][]int
	failCities    map[int]bool
	foodsPerID    map[int][]foody.Food
	failInfos     map[int]bool
	infoRequests  []foody.BrowsingInfosRequest
	browsingCalls []int
}

func (f *fakeUpstream) FetchLocations(context.Context) ([]foody.Location, error) {
	return f.locations, f.locationsErr
}

func (f *fakeUpstream) FetchBrowsingIDs(_ context.Context, cityID int) (foody.BrowsingIDs, error) {
	f.browsingCalls = append(f.browsingCalls, cityID)
	if f.failCities[cityID] {
		return foody.BrowsingIDs{CityID: cityID}, errors.New("upstream down")
	}
	return foody.BrowsingIDs{CityID: cityID, DeliveryIDs: f.browsingIDs[cityID]}, nil
}

func (f *fakeUpstream) FetchBrowsingInfos(_ context.Context, req foody.BrowsingInfosRequest) ([]foody.Food, error) {
	f.infoRequests = append(f.infoRequests, req)
	id := req.DeliveryIDs[0]
	if f.failInfos[id] {
		return nil, errors.New("request blocked")
	}
	return f.foodsPerID[id], nil
}

type fakeSink struct {
	batches []foody.Batch
	err     error
}

func (s *fakeSink) WriteBatch(_ context.Context, batch foody.Batch, unixNano int64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.batches = append(s.batches, batch)
	return "foody_combined_data_1.json", nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func city(id int) foody.Location {
	return foody.Location{ID: id, CityID: id, CountryID: 86, Name: "city", CountryName: "Việt Nam"}
}

func newOrchestrator(up *fakeUpstream, sink *fakeSink, cap int) *Orchestrator {
	return New(up, sink, fixedClock{t: time.Unix(1700000000, 0)}, cap, zap.NewNop())
}

func TestFullCrawlHappyPath(t *testing.T) {
	t.Parallel()

	up := &fakeUpstream{
		locations:   []foody.Location{city(217)},
		browsingIDs: map[int][]int{217: {1, 2, 3}},
		foodsPerID: map[int][]foody.Food{
			1: {{Name: "a", CityID: 217}},
			2: {{Name: "b", CityID: 217}},
			3: {{Name: "c", CityID: 217}},
		},
	}
	sink := &fakeSink{}

	summary, err := newOrchestrator(up, sink, 50).FullCrawl(context.Background())
	require.NoError(t, err)
	require.Equal(t, "foody_combined_data_1.json", summary.Filename)
	require.Equal(t, 1, summary.TotalCities)
	require.Equal(t, 1, summary.TotalLocations)
	require.Equal(t, 3, summary.TotalFoods)
	require.Zero(t, summary.SkippedCities)

	require.Len(t, sink.batches, 1)
	require.Len(t, sink.batches[0].Locations, 1)
	require.Len(t, sink.batches[0].Foods, 3)

	// Singleton request per delivery id.
	require.Len(t, up.infoRequests, 3)
	for i, req := range up.infoRequests {
		require.Equal(t, []int{i + 1}, req.DeliveryIDs)
		require.Equal(t, 217, req.CityID)
	}
}

func TestFullCrawlFailsWhenLocationsStageFails(t *testing.T) {
	t.Parallel()

	up := &fakeUpstream{locationsErr: errors.New("blocked")}
	_, err := newOrchestrator(up, &fakeSink{}, 50).FullCrawl(context.Background())
	require.Error(t, err)
	require.Empty(t, up.browsingCalls)
}

func TestFullCrawlZeroCitiesIsValid(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	summary, err := newOrchestrator(&fakeUpstream{}, sink, 50).FullCrawl(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.TotalCities)
	require.Len(t, sink.batches, 1)
}

func TestFullCrawlSkipsFailedCities(t *testing.T) {
	t.Parallel()

	up := &fakeUpstream{
		locations:   []foody.Location{city(217), city(218), city(219)},
		browsingIDs: map[int][]int{217: {1}, 219: {2}},
		failCities:  map[int]bool{218: true},
		foodsPerID: map[int][]foody.Food{
			1: {{Name: "a", CityID: 217}},
			2: {{Name: "b", CityID: 219}},
		},
	}
	sink := &fakeSink{}

	summary, err := newOrchestrator(up, sink, 50).FullCrawl(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, summary.TotalCities)
	require.Equal(t, 1, summary.SkippedCities)
	require.Equal(t, 2, summary.TotalFoods)
	require.Equal(t, []int{217, 218, 219}, up.browsingCalls, "city order preserved, failures isolated")
}

func TestFullCrawlCapsFanOutPerCity(t *testing.T) {
	t.Parallel()

	ids := make([]int, 120)
	for i := range ids {
		ids[i] = i + 1
	}
	up := &fakeUpstream{
		locations:   []foody.Location{city(217)},
		browsingIDs: map[int][]int{217: ids},
	}

	_, err := newOrchestrator(up, &fakeSink{}, 50).FullCrawl(context.Background())
	require.NoError(t, err)
	require.Len(t, up.infoRequests, 50)
	require.Equal(t, []int{1}, up.infoRequests[0].DeliveryIDs)
	require.Equal(t, []int{50}, up.infoRequests[49].DeliveryIDs)
}

func TestFullCrawlToleratesFailedInfoRequests(t *testing.T) {
	t.Parallel()

	up := &fakeUpstream{
		locations:   []foody.Location{city(217)},
		browsingIDs: map[int][]int{217: {1, 2}},
		failInfos:   map[int]bool{1: true},
		foodsPerID:  map[int][]foody.Food{2: {{Name: "b", CityID: 217}}},
	}
	sink := &fakeSink{}

	summary, err := newOrchestrator(up, sink, 50).FullCrawl(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.TotalFoods)
}

func TestFullCrawlSurfacesLandFailure(t *testing.T) {
	t.Parallel()

	up := &fakeUpstream{
		locations:   []foody.Location{city(217)},
		browsingIDs: map[int][]int{217: {1}},
		foodsPerID:  map[int][]foody.Food{1: {{Name: "a", CityID: 217}}},
	}
	sink := &fakeSink{err: errors.New("disk full")}

	summary, err := newOrchestrator(up, sink, 50).FullCrawl(context.Background())
	require.Error(t, err)
	// Crawl counts survive even though landing failed.
	require.Equal(t, 1, summary.TotalFoods)
	require.Empty(t, summary.Filename)
}

func TestCrawlCity(t *testing.T) {
	t.Parallel()

	ids := make([]int, 60)
	for i := range ids {
		ids[i] = i + 1
	}
	up := &fakeUpstream{
		browsingIDs: map[int][]int{218: ids},
		foodsPerID:  map[int][]foody.Food{1: {{Name: "a", CityID: 218}}},
	}
	sink := &fakeSink{}

	summary, err := newOrchestrator(up, sink, 50).CrawlCity(context.Background(), 218)
	require.NoError(t, err)
	require.Equal(t, 218, summary.CityID)
	require.Equal(t, 60, summary.TotalDeliveryIDs)
	require.Equal(t, 50, summary.ProcessedDeliveryIDs)
	require.Equal(t, 1, summary.TotalFoods)
	require.Len(t, sink.batches, 1)
	require.Empty(t, sink.batches[0].Locations)
}

func TestCrawlCityFailsWhenBrowsingIDsFail(t *testing.T) {
	t.Parallel()

	up := &fakeUpstream{failCities: map[int]bool{218: true}}
	_, err := newOrchestrator(up, &fakeSink{}, 50).CrawlCity(context.Background(), 218)
	require.Error(t, err)
}

func TestCrawlLocations(t *testing.T) {
	t.Parallel()

	up := &fakeUpstream{locations: []foody.Location{city(217), city(218)}}
	sink := &fakeSink{}

	summary, err := newOrchestrator(up, sink, 50).CrawlLocations(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.TotalLocations)
	require.Len(t, sink.batches, 1)
	require.Len(t, sink.batches[0].Locations, 2)
	require.Empty(t, sink.batches[0].Foods)
}
