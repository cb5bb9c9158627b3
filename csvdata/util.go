package csvdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// missing cell markers read as NaN
var naValues = map[string]bool{"na": true, "nan": true, "null": true}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty cell")
	}
	if naValues[strings.ToLower(s)] {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// CountRows returns the number of data rows of a CSV file, header excluded.
func CountRows(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("read header of %s: %w", path, err)
	}
	n := 0
	for {
		_, err := reader.Read()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
		n++
	}
}

// AutoFind returns the first of patterns matching at least one file.
func AutoFind(patterns []string) (string, error) {
	for _, pattern := range patterns {
		if matches, err := filepath.Glob(pattern); err == nil && len(matches) > 0 {
			return pattern, nil
		}
	}
	return "", fmt.Errorf("no CSV files found for %s", strings.Join(patterns, ", "))
}

// FindCSV returns the first CSV file of dir in lexical order.
func FindCSV(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no CSV files found in %s", dir)
	}
	return matches[0], nil
}

// expectedRows sums CountRows over paths, ignoring unreadable files.
func expectedRows(paths []string) int {
	total := 0
	for _, p := range paths {
		if n, err := CountRows(p); err == nil {
			total += n
		}
	}
	return total
}
