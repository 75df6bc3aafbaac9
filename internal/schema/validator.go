// Package schema checks location documents against JSON Schemas before
// they are sealed.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Kind names a document shape
type Kind string

const (
	KindLocation     Kind = "location"
	KindSearchResult Kind = "search_result"
)

// locationURL is where the search result schema finds the location schema
const locationURL = "https://locvault.local/schema/location.json"

// Error lists every problem found in one document
type Error struct {
	Kind     Kind
	Problems []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s document: %s", e.Kind, strings.Join(e.Problems, "; "))
}

// Registry holds the compiled schema of each kind
type Registry struct {
	schemas map[Kind]*gojsonschema.Schema
}

// NewRegistry compiles the location and search result schemas
func NewRegistry() (*Registry, error) {
	location, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(LocationSchema))
	if err != nil {
		return nil, fmt.Errorf("location schema: %w", err)
	}

	// Search results point at the location schema for every coordinate
	sl := gojsonschema.NewSchemaLoader()
	if err := sl.AddSchema(locationURL, gojsonschema.NewBytesLoader(LocationSchema)); err != nil {
		return nil, fmt.Errorf("location schema: %w", err)
	}
	result, err := sl.Compile(gojsonschema.NewBytesLoader(SearchResultSchema))
	if err != nil {
		return nil, fmt.Errorf("search result schema: %w", err)
	}

	return &Registry{schemas: map[Kind]*gojsonschema.Schema{
		KindLocation:     location,
		KindSearchResult: result,
	}}, nil
}

// NewDefaultRegistry is NewRegistry for the bundled schemas, which always compile
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return r
}

// Validate checks raw JSON against the schema of kind.
// It returns *Error when the document does not conform.
func (r *Registry) Validate(kind Kind, doc []byte) error {
	s, ok := r.schemas[kind]
	if !ok {
		return fmt.Errorf("no schema for %q", kind)
	}

	res, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return &Error{Kind: kind, Problems: []string{err.Error()}}
	}
	if res.Valid() {
		return nil
	}

	problems := make([]string, len(res.Errors()))
	for i, e := range res.Errors() {
		problems[i] = e.Field() + ": " + e.Description()
	}
	return &Error{Kind: kind, Problems: problems}
}

// ValidateValue encodes v as JSON and validates it
func (r *Registry) ValidateValue(kind Kind, v interface{}) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return &Error{Kind: kind, Problems: []string{err.Error()}}
	}
	return r.Validate(kind, doc)
}

// LocationSchema is a bare WGS84 coordinate pair
var LocationSchema = []byte(`{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["lat", "lon"],
	"properties": {
		"lat": {"type": "number", "minimum": -90, "maximum": 90},
		"lon": {"type": "number", "minimum": -180, "maximum": 180}
	}
}`)

// SearchResultSchema is the document sealed for viewers after an owner search
var SearchResultSchema = []byte(`{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["query", "owner", "places", "generated_at"],
	"properties": {
		"query": {"type": "string", "minLength": 1},
		"owner": {"$ref": "` + locationURL + `"},
		"generated_at": {"type": "string", "format": "date-time"},
		"places": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "name", "location", "distance_m"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"name": {"type": "string"},
					"category": {"type": "string"},
					"address": {"type": "string"},
					"location": {"$ref": "` + locationURL + `"},
					"distance_m": {"type": "number", "minimum": 0},
					"score": {"type": "number"}
				}
			}
		}
	}
}`)
