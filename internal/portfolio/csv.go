package portfolio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	idColumns        = []string{"id", "well_id", "api", "source_id"}
	latColumns       = []string{"latitude", "lat"}
	lonColumns       = []string{"longitude", "lon", "lng"}
	emissionKeywords = []string{"emission", "ch4", "methane", "flux", "rate", "kgph", "kgh"}
)

// LoadCSV reads sources from a CSV file with a header row.
func LoadCSV(path string) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sources file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses sources and validates them. Column names are matched
// case-insensitively; the emission column is the first header containing
// one of the usual emission keywords. A missing id column falls back to the
// row number.
func ReadCSV(r io.Reader) ([]Source, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	idCol := findColumn(header, idColumns)
	latCol := findColumn(header, latColumns)
	lonCol := findColumn(header, lonColumns)
	emCol := findKeywordColumn(header, emissionKeywords)
	if latCol < 0 || lonCol < 0 || emCol < 0 {
		return nil, fmt.Errorf("%w: header %v lacks latitude, longitude or emission column", ErrInvalidSource, header)
	}

	var sources []Source
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", row, err)
		}

		s := Source{ID: strconv.Itoa(row)}
		if idCol >= 0 {
			s.ID = strings.TrimSpace(rec[idCol])
		}
		if s.Latitude, err = parseFloat(rec[latCol]); err != nil {
			return nil, fmt.Errorf("%w: row %d latitude: %v", ErrInvalidSource, row, err)
		}
		if s.Longitude, err = parseFloat(rec[lonCol]); err != nil {
			return nil, fmt.Errorf("%w: row %d longitude: %v", ErrInvalidSource, row, err)
		}
		if s.EmissionKgh, err = parseFloat(rec[emCol]); err != nil {
			return nil, fmt.Errorf("%w: row %d emission: %v", ErrInvalidSource, row, err)
		}
		sources = append(sources, s)
	}

	if err := Validate(sources); err != nil {
		return nil, err
	}
	return sources, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func findColumn(header []string, names []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, n := range names {
			if h == n {
				return i
			}
		}
	}
	return -1
}

func findKeywordColumn(header []string, keywords []string) int {
	for i, h := range header {
		h = strings.ToLower(h)
		for _, k := range keywords {
			if strings.Contains(h, k) {
				return i
			}
		}
	}
	return -1
}

// ReadColumn returns the raw cells of the first column whose header
// matches one of names, case-insensitively.
func ReadColumn(r io.Reader, names ...string) ([]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := findColumn(header, names)
	if col < 0 {
		return nil, fmt.Errorf("no column named any of %v in %v", names, header)
	}

	var cells []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return cells, nil
		}
		if err != nil {
			return nil, err
		}
		if col < len(rec) {
			cells = append(cells, rec[col])
		}
	}
}
