package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/foodycrawl/foodycrawl/internal/foody"
)

// memStore is an in-memory Store for exercising ingestion semantics.
type memStore struct {
	locations map[int]foody.Location // keyed by id
	cities    map[int]bool
	foods     map[int]foody.Food
	failCity  int // UpsertFood fails for this city id
}

func newMemStore() *memStore {
	return &memStore{
		locations: map[int]foody.Location{},
		cities:    map[int]bool{},
		foods:     map[int]foody.Food{},
	}
}

func (m *memStore) UpsertLocation(_ context.Context, loc foody.Location) error {
	m.locations[loc.ID] = loc
	m.cities[loc.CityID] = true
	return nil
}

func (m *memStore) UpsertFood(_ context.Context, f foody.Food) error {
	if m.failCity != 0 && f.CityID == m.failCity {
		return assert.AnError
	}
	m.foods[f.ID] = f
	return nil
}

func (m *memStore) LocationExists(_ context.Context, cityID int) (bool, error) {
	return m.cities[cityID], nil
}

func writeLandingFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "foody_combined_data_1.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

const combinedFixture = `{
  "locations": [
    {"city_id": 218, "country_id": 4, "name": "TP. HCM", "country_name": "Vietnam"}
  ],
  "foods": [
    {"id": 1, "name": "Pho Thin", "categories": ["Noodles"], "cuisines": ["Vietnamese"],
     "address": "13 Lo Duc", "rating_avg": 4.5, "rating_total_review": 120,
     "image_url": "https://img.example/1.jpg", "is_open": true, "city_id": 218},
    {"id": 2, "name": "Banh Mi Huynh Hoa", "categories": "Sandwiches", "cuisines": [],
     "address": "26 Le Thi Rieng", "rating_avg": null, "rating_total_review": null,
     "image_url": "", "is_open": false, "city_id": 218},
    {"id": 3, "name": "Com Tam Ba Ghien", "categories": ["Rice"], "cuisines": ["Vietnamese"],
     "address": "84 Dang Van Ngu", "rating_avg": 4.2, "rating_total_review": 88,
     "image_url": "", "is_open": true, "city_id": 218}
  ]
}`

func TestIngestFileCombinedBatch(t *testing.T) {
	store := newMemStore()
	ing := New(store, zap.NewNop())

	path := writeLandingFile(t, combinedFixture)
	require.NoError(t, ing.IngestFile(context.Background(), path))

	assert.Len(t, store.locations, 1)
	assert.Len(t, store.foods, 3)

	// Location id defaults to the city id when the record carries none.
	loc, ok := store.locations[218]
	require.True(t, ok)
	assert.Equal(t, 218, loc.CityID)
	assert.Equal(t, "TP. HCM", loc.Name)

	// Nullable ratings survive ingestion as nil, not zero.
	require.NotNil(t, store.foods[1].RatingAvg)
	assert.InDelta(t, 4.5, *store.foods[1].RatingAvg, 1e-9)
	assert.Nil(t, store.foods[2].RatingAvg)
	assert.Nil(t, store.foods[2].RatingTotalReview)

	// Lenient string-list coercion: bare string wraps into a one-element list.
	assert.Equal(t, foody.StringList{"Sandwiches"}, store.foods[2].Categories)
}

func TestIngestFileIsIdempotent(t *testing.T) {
	store := newMemStore()
	ing := New(store, zap.NewNop())

	path := writeLandingFile(t, combinedFixture)
	require.NoError(t, ing.IngestFile(context.Background(), path))
	require.NoError(t, ing.IngestFile(context.Background(), path))

	assert.Len(t, store.locations, 1)
	assert.Len(t, store.foods, 3)
}

func TestIngestFileSkipsFoodWithUnknownCity(t *testing.T) {
	store := newMemStore()
	ing := New(store, zap.NewNop())

	path := writeLandingFile(t, `{
	  "locations": [{"city_id": 218, "country_id": 4, "name": "TP. HCM", "country_name": "Vietnam"}],
	  "foods": [
	    {"id": 1, "name": "Pho Thin", "address": "13 Lo Duc", "is_open": true, "city_id": 999},
	    {"id": 2, "name": "Banh Mi Huynh Hoa", "address": "26 Le Thi Rieng", "is_open": false, "city_id": 218}
	  ]
	}`)
	require.NoError(t, ing.IngestFile(context.Background(), path))

	// The unknown-city record is skipped; the rest of the file still lands.
	assert.Len(t, store.foods, 1)
	_, ok := store.foods[2]
	assert.True(t, ok)
}

func TestIngestFileSkipsInvalidRecords(t *testing.T) {
	store := newMemStore()
	store.cities[218] = true
	ing := New(store, zap.NewNop())

	path := writeLandingFile(t, `{
	  "locations": [
	    {"country_id": 4, "name": "No City", "country_name": "Vietnam"},
	    {"city_id": 217, "country_id": 4, "country_name": "Vietnam"}
	  ],
	  "foods": [
	    {"id": 1, "address": "13 Lo Duc", "city_id": 218},
	    {"id": 2, "name": "OK Record", "address": "1 Street", "city_id": 218},
	    {"id": 3, "name": "Bad Rating", "rating_avg": "high", "city_id": 218}
	  ]
	}`)
	require.NoError(t, ing.IngestFile(context.Background(), path))

	// Missing city_id and missing name drop the location records.
	assert.Empty(t, store.locations)
	// Missing name and a wrong-typed field drop those food records only.
	assert.Len(t, store.foods, 1)
	assert.Equal(t, "OK Record", store.foods[2].Name)
}

func TestIngestFileLegacyBareArray(t *testing.T) {
	store := newMemStore()
	store.cities[218] = true
	ing := New(store, zap.NewNop())

	path := writeLandingFile(t, `[
	  {"id": 7, "name": "Legacy Food", "categories": ["Rice"], "address": "1 Street", "city_id": 218}
	]`)
	require.NoError(t, ing.IngestFile(context.Background(), path))

	assert.Len(t, store.foods, 1)
	assert.Equal(t, "Legacy Food", store.foods[7].Name)
}

func TestIngestFileSynthesizesMissingFoodID(t *testing.T) {
	store := newMemStore()
	store.cities[218] = true
	ing := New(store, zap.NewNop())

	path := writeLandingFile(t, `{
	  "foods": [{"name": "No ID Stall", "address": "5 Alley", "city_id": 218}]
	}`)
	require.NoError(t, ing.IngestFile(context.Background(), path))

	want := foody.SynthesizeFoodID("No ID Stall", "5 Alley", 218)
	_, ok := store.foods[want]
	assert.True(t, ok)
}

func TestIngestFileUnparsableAborts(t *testing.T) {
	store := newMemStore()
	ing := New(store, zap.NewNop())

	path := writeLandingFile(t, `{"locations": [`)
	err := ing.IngestFile(context.Background(), path)
	require.Error(t, err)
	assert.Empty(t, store.locations)
	assert.Empty(t, store.foods)
}

func TestIngestFileMissingFile(t *testing.T) {
	ing := New(newMemStore(), zap.NewNop())
	err := ing.IngestFile(context.Background(), filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestIngestFileContinuesPastStoreFailure(t *testing.T) {
	store := newMemStore()
	store.cities[217] = true
	store.cities[218] = true
	store.failCity = 217
	ing := New(store, zap.NewNop())

	path := writeLandingFile(t, `{
	  "foods": [
	    {"id": 1, "name": "Fails", "address": "x", "city_id": 217},
	    {"id": 2, "name": "Lands", "address": "y", "city_id": 218}
	  ]
	}`)
	require.NoError(t, ing.IngestFile(context.Background(), path))

	assert.Len(t, store.foods, 1)
	assert.Equal(t, "Lands", store.foods[2].Name)
}
