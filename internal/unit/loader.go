package unit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envPlaceholder = regexp.MustCompile(`(?i)\$\{env:([A-Z0-9_]+)\}`)

// File is the on-disk layout of a units file.
type File struct {
	Sheets []*SyncUnit `json:"sheets" yaml:"sheets"`
}

// LoadFile reads sync units from a JSON or YAML file. ${env:NAME}
// placeholders are replaced with the value of the environment variable
// before parsing; unset variables become empty strings.
func LoadFile(filename string) ([]*SyncUnit, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read units file: %w", err)
	}
	data = ExpandEnv(data, os.Getenv)

	var file File
	switch filepath.Ext(filename) {
	case ".json":
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse JSON units file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse YAML units file: %w", err)
		}
	}

	for i, u := range file.Sheets {
		if u == nil {
			return nil, fmt.Errorf("sheet definition at index %d must be an object", i)
		}
	}
	return file.Sheets, nil
}

// ExpandEnv substitutes ${env:NAME} placeholders using lookup.
func ExpandEnv(data []byte, lookup func(string) string) []byte {
	return envPlaceholder.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envPlaceholder.FindSubmatch(m)[1]
		return []byte(lookup(string(name)))
	})
}
