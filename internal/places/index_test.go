package places

import (
	"fmt"
	"testing"

	"github.com/amaydixit11/locvault/internal/core"
)

var downtownSF = core.Location{Lat: 37.7749, Lon: -122.4194}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewDefaultIndex("")
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestDefaultIndexLoaded(t *testing.T) {
	idx := newTestIndex(t)
	if idx.Count() != 14 {
		t.Errorf("expected 14 places, got %d", idx.Count())
	}
}

func TestSearchNearby(t *testing.T) {
	idx := newTestIndex(t)

	hits, err := idx.Search("coffee", downtownSF, SearchOptions{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected coffee places near downtown SF")
	}

	for i, h := range hits {
		if h.ID == "nyc-001" {
			t.Error("New York place should be outside the radius")
		}
		if h.DistanceMeters > 2000 {
			t.Errorf("%s is %.0fm away, outside 2km", h.Name, h.DistanceMeters)
		}
		if i > 0 && hits[i-1].DistanceMeters > h.DistanceMeters {
			t.Error("hits should be ordered nearest first")
		}
	}
}

func TestSearchRadiusOverride(t *testing.T) {
	idx := newTestIndex(t)

	wide, err := idx.Search("park", downtownSF, SearchOptions{Radius: "10km"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	narrow, err := idx.Search("park", downtownSF, SearchOptions{Radius: "300m"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	if len(wide) <= len(narrow) {
		t.Errorf("wider radius should find more parks: wide=%d narrow=%d", len(wide), len(narrow))
	}

	found := false
	for _, h := range wide {
		if h.ID == "sf-012" {
			found = true
		}
	}
	if !found {
		t.Error("Golden Gate Park should be within 10km")
	}
}

func TestSearchLimit(t *testing.T) {
	idx := newTestIndex(t)

	hits, err := idx.Search("coffee", downtownSF, SearchOptions{Limit: 1})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("expected 1 hit, got %d", len(hits))
	}
}

func TestSearchNoMatch(t *testing.T) {
	idx := newTestIndex(t)

	hits, err := idx.Search("submarine", downtownSF, SearchOptions{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestSearchInvalidInput(t *testing.T) {
	idx := newTestIndex(t)

	if _, err := idx.Search("  ", downtownSF, SearchOptions{}); err == nil {
		t.Error("empty query should fail")
	}
	if _, err := idx.Search("coffee", core.Location{Lat: 91}, SearchOptions{}); err == nil {
		t.Error("invalid center should fail")
	}
}

func TestAddRejectsInvalidPlace(t *testing.T) {
	idx, err := NewIndex("1km")
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	defer idx.Close()

	if err := idx.Add(Place{Name: "no id"}); err == nil {
		t.Error("place without id should be rejected")
	}
	if err := idx.Add(Place{ID: "x", Location: core.Location{Lon: 200}}); err == nil {
		t.Error("place with invalid location should be rejected")
	}
	if idx.Count() != 0 {
		t.Errorf("nothing should be indexed, got %d", idx.Count())
	}
}

func TestLoadJSON(t *testing.T) {
	idx, _ := NewIndex("1km")
	defer idx.Close()

	err := idx.LoadJSON([]byte(`[{"id":"a","name":"Corner Bookshop","category":"books","location":{"lat":10,"lon":10}}]`))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	hits, err := idx.Search("bookshop", core.Location{Lat: 10, Lon: 10.001}, SearchOptions{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "a" {
		t.Errorf("expected the bookshop, got %+v", hits)
	}

	if err := idx.LoadJSON([]byte(`{"not":"an array"}`)); err == nil {
		t.Error("non-array JSON should fail")
	}
}

func TestSearchNearestSurvivesLimit(t *testing.T) {
	idx, _ := NewIndex("50km")
	defer idx.Close()

	center := core.Location{Lat: 10, Lon: 10}
	places := []Place{{
		ID:       "nearest",
		Name:     "Quiet Corner Bookshop Reading Room and Tea Garden",
		Category: "books",
		Location: core.Location{Lat: 10, Lon: 10.0005},
	}}
	for n := 1; n <= 12; n++ {
		places = append(places, Place{
			ID:       fmt.Sprintf("far-%02d", n),
			Name:     "Bookshop",
			Category: "books",
			Location: core.Location{Lat: 10 + float64(n)*0.01, Lon: 10},
		})
	}
	if err := idx.Add(places...); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	hits, err := idx.Search("bookshop", center, SearchOptions{Limit: 2})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "nearest" || hits[1].ID != "far-01" {
		t.Errorf("expected nearest then far-01, got %s, %s", hits[0].ID, hits[1].ID)
	}
	// ~55m east and ~1.1km north
	if hits[0].DistanceMeters < 40 || hits[0].DistanceMeters > 70 {
		t.Errorf("nearest distance = %.1fm", hits[0].DistanceMeters)
	}
	if hits[1].DistanceMeters < 1050 || hits[1].DistanceMeters > 1160 {
		t.Errorf("far-01 distance = %.1fm", hits[1].DistanceMeters)
	}
}
