package config

import (
	"errors"
	"fmt"
)

const (
	HistoryMemory = "memory"
	HistoryMongo  = "mongo"
)

// HistoryConfig selects where run records are kept.
type HistoryConfig struct {
	Backend string       `yaml:"backend"` // memory or mongo
	Limit   int          `yaml:"limit"`   // records kept per unit in memory
	Mongo   MongoHistory `yaml:"mongo"`
}

// MongoHistory is the MongoDB run history location.
type MongoHistory struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Backend: HistoryMemory,
		Limit:   50,
		Mongo: MongoHistory{
			Database:   "sheetsync",
			Collection: "sync_runs",
		},
	}
}

func (c *HistoryConfig) ApplyDefaults() {
	defaults := DefaultHistoryConfig()
	if c.Backend == "" {
		c.Backend = defaults.Backend
	}
	if c.Limit <= 0 {
		c.Limit = defaults.Limit
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = defaults.Mongo.Database
	}
	if c.Mongo.Collection == "" {
		c.Mongo.Collection = defaults.Mongo.Collection
	}
}

// ApplyEnvOverrides switches to the mongo backend when HISTORY_MONGO_URI is set.
func (c *HistoryConfig) ApplyEnvOverrides() {
	var uri string
	envString("HISTORY_MONGO_URI", &uri)
	if uri != "" {
		c.Mongo.URI = uri
		c.Backend = HistoryMongo
	}
	envString("HISTORY_MONGO_DB", &c.Mongo.Database)
	envInt("HISTORY_LIMIT", &c.Limit)
}

func (c *HistoryConfig) ResolvePaths(_ string) {}

func (c *HistoryConfig) Validate() error {
	switch c.Backend {
	case HistoryMemory:
	case HistoryMongo:
		if c.Mongo.URI == "" {
			return errors.New("history.mongo.uri is required for the mongo backend")
		}
	default:
		return fmt.Errorf("history.backend must be '%s' or '%s', got '%s'", HistoryMemory, HistoryMongo, c.Backend)
	}
	if c.Limit <= 0 {
		return errors.New("history.limit must be positive")
	}
	return nil
}
