// Package places provides nearby place search using Bleve.
package places

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/amaydixit11/locvault/internal/core"
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/geo"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
)

//go:embed default_places.json
var defaultPlaces []byte

// DefaultRadius is the search radius when none is configured
const DefaultRadius = "2km"

// Place is one searchable point of interest
type Place struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Category string        `json:"category"`
	Address  string        `json:"address,omitempty"`
	Location core.Location `json:"location"`
}

// Hit is a place matched by a search, with its distance from the searcher
type Hit struct {
	Place
	DistanceMeters float64 `json:"distance_m"`
	Score          float64 `json:"score"`
}

// Result is the document produced by one owner search.
// This is what gets sealed and handed to viewers.
type Result struct {
	Query       string        `json:"query"`
	Owner       core.Location `json:"owner"`
	Places      []Hit         `json:"places"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Index wraps an in-memory Bleve index of places
type Index struct {
	index  bleve.Index
	radius string

	mu     sync.RWMutex
	places map[string]Place
}

// NewIndex creates an empty in-memory index.
// radius is a Bleve distance string such as "2km" or "500m".
func NewIndex(radius string) (*Index, error) {
	if radius == "" {
		radius = DefaultRadius
	}

	mapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Name and category - full text searchable
	nameField := bleve.NewTextFieldMapping()
	nameField.Analyzer = "standard"
	docMapping.AddFieldMappingsAt("name", nameField)

	categoryField := bleve.NewTextFieldMapping()
	categoryField.Analyzer = "standard"
	docMapping.AddFieldMappingsAt("category", categoryField)

	addressField := bleve.NewTextFieldMapping()
	addressField.Analyzer = "standard"
	docMapping.AddFieldMappingsAt("address", addressField)

	docMapping.AddFieldMappingsAt("location", bleve.NewGeoPointFieldMapping())

	mapping.DefaultMapping = docMapping

	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &Index{
		index:  idx,
		radius: radius,
		places: make(map[string]Place),
	}, nil
}

// NewDefaultIndex creates an index seeded with the bundled places
func NewDefaultIndex(radius string) (*Index, error) {
	idx, err := NewIndex(radius)
	if err != nil {
		return nil, err
	}
	if err := idx.LoadJSON(defaultPlaces); err != nil {
		idx.Close()
		return nil, err
	}
	return idx, nil
}

// LoadFile indexes places from a JSON array or, for .csv paths, a CSV file
func (i *Index) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read places file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return i.LoadCSV(bytes.NewReader(data))
	}
	return i.LoadJSON(data)
}

// LoadJSON indexes a JSON array of places
func (i *Index) LoadJSON(data []byte) error {
	var places []Place
	if err := json.Unmarshal(data, &places); err != nil {
		return fmt.Errorf("failed to parse places: %w", err)
	}
	return i.Add(places...)
}

// Add indexes places in one batch, replacing any with the same ID
func (i *Index) Add(places ...Place) error {
	batch := i.index.NewBatch()
	for _, p := range places {
		if p.ID == "" {
			return fmt.Errorf("place %q has no id", p.Name)
		}
		if err := p.Location.Validate(); err != nil {
			return fmt.Errorf("place %s: %w", p.ID, err)
		}
		if err := batch.Index(p.ID, document(p)); err != nil {
			return fmt.Errorf("failed to index place %s: %w", p.ID, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index places: %w", err)
	}

	i.mu.Lock()
	for _, p := range places {
		i.places[p.ID] = p
	}
	i.mu.Unlock()
	return nil
}

func document(p Place) map[string]interface{} {
	return map[string]interface{}{
		"name":     p.Name,
		"category": p.Category,
		"address":  p.Address,
		"location": map[string]interface{}{
			"lat": p.Location.Lat,
			"lon": p.Location.Lon,
		},
	}
}

// Count returns the number of indexed places
func (i *Index) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.places)
}

// SearchOptions configures a nearby search
type SearchOptions struct {
	Radius string // Overrides the index radius
	Limit  int    // Max results (default 20)
}

// Search finds places matching text within the radius of center,
// nearest first. Ties are broken by place ID.
func (i *Index) Search(text string, center core.Location, opts SearchOptions) ([]Hit, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if err := center.Validate(); err != nil {
		return nil, err
	}

	radius := opts.Radius
	if radius == "" {
		radius = i.radius
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	match := bleve.NewMatchQuery(text)
	match.SetFuzziness(1)

	near := bleve.NewGeoDistanceQuery(center.Lon, center.Lat, radius)
	near.SetField("location")

	q := bleve.NewConjunctionQuery([]query.Query{match, near}...)

	byDistance, err := search.NewSortGeoDistance("location", "m", center.Lon, center.Lat, false)
	if err != nil {
		return nil, fmt.Errorf("invalid distance sort: %w", err)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.SortByCustom(search.SortOrder{byDistance, &search.SortDocID{}})
	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		p, ok := i.places[h.ID]
		if !ok {
			continue
		}
		hits = append(hits, Hit{
			Place:          p,
			DistanceMeters: distance(h, center, p.Location),
			Score:          h.Score,
		})
	}
	return hits, nil
}

// distance reads the meters bleve sorted the hit by
func distance(h *search.DocumentMatch, center, to core.Location) float64 {
	if len(h.DecodedSort) > 0 {
		if d, err := strconv.ParseFloat(h.DecodedSort[0], 64); err == nil {
			return d
		}
	}
	return geo.Haversin(center.Lon, center.Lat, to.Lon, to.Lat) * 1000
}

// Close closes the index
func (i *Index) Close() error {
	return i.index.Close()
}
