// Package upsert merges new rows into an existing sheet grid by key.
package upsert

import (
	"errors"
	"fmt"
	"strings"
)

// KeySeparator joins key column values into a composite key.
const KeySeparator = "::"

var (
	ErrMissingHeader     = errors.New("upsert mode requires a header row")
	ErrMissingKeyColumns = errors.New("upsert mode requires keyColumns to be defined")
	ErrKeyColumnNotFound = errors.New("upsert key column not found in header")
)

// Apply returns the grid that results from upserting rows into existing.
// Row 0 of the result is always header. Existing rows whose key matches an
// incoming row are replaced in place; rows with new keys are appended in
// input order. Incoming rows with an empty key are dropped. Neither existing
// nor rows is modified.
func Apply(existing [][]any, header []string, rows [][]any, keyColumns []string) ([][]any, error) {
	if len(header) == 0 {
		return nil, ErrMissingHeader
	}
	indexes, err := keyIndexes(header, keyColumns)
	if err != nil {
		return nil, err
	}

	grid := make([][]any, 0, len(existing)+len(rows)+1)
	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	grid = append(grid, headerRow)
	for i := 1; i < len(existing); i++ {
		grid = append(grid, existing[i])
	}

	positions := make(map[string]int, len(grid))
	for i := 1; i < len(grid); i++ {
		if key := buildKey(grid[i], indexes); key != "" {
			positions[key] = i
		}
	}

	for _, row := range rows {
		key := buildKey(row, indexes)
		if key == "" {
			continue
		}
		if pos, ok := positions[key]; ok {
			grid[pos] = row
			continue
		}
		grid = append(grid, row)
		positions[key] = len(grid) - 1
	}

	return grid, nil
}

func keyIndexes(header, keyColumns []string) ([]int, error) {
	if len(keyColumns) == 0 {
		return nil, ErrMissingKeyColumns
	}
	indexes := make([]int, len(keyColumns))
	for i, col := range keyColumns {
		idx := -1
		for j, h := range header {
			if h == col {
				idx = j
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrKeyColumnNotFound, col)
		}
		indexes[i] = idx
	}
	return indexes, nil
}

// buildKey returns "" when every key cell is blank.
func buildKey(row []any, indexes []int) string {
	parts := make([]string, len(indexes))
	blank := true
	for i, idx := range indexes {
		if idx < len(row) && row[idx] != nil {
			parts[i] = fmt.Sprint(row[idx])
		}
		if parts[i] != "" {
			blank = false
		}
	}
	if blank {
		return ""
	}
	return strings.Join(parts, KeySeparator)
}
