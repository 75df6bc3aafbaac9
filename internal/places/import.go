package places

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/amaydixit11/locvault/internal/core"
)

// ReadCSV parses places from CSV with a header row.
// Columns are matched by name: id, name, category, address, lat, lon.
// Rows without an id get a random one.
func ReadCSV(r io.Reader) ([]Place, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	indices := make(map[string]int)
	for i, col := range header {
		indices[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"name", "lat", "lon"} {
		if _, ok := indices[col]; !ok {
			return nil, fmt.Errorf("missing %q column", col)
		}
	}

	field := func(record []string, col string) string {
		if idx, ok := indices[col]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	var places []Place
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		lat, err := strconv.ParseFloat(field(record, "lat"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid lat: %w", line, err)
		}
		lon, err := strconv.ParseFloat(field(record, "lon"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid lon: %w", line, err)
		}

		p := Place{
			ID:       field(record, "id"),
			Name:     field(record, "name"),
			Category: field(record, "category"),
			Address:  field(record, "address"),
			Location: core.Location{Lat: lat, Lon: lon},
		}
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		places = append(places, p)
	}

	return places, nil
}

// LoadCSV indexes places read from CSV
func (i *Index) LoadCSV(r io.Reader) error {
	places, err := ReadCSV(r)
	if err != nil {
		return fmt.Errorf("failed to parse places: %w", err)
	}
	return i.Add(places...)
}
