package config

// ServiceConfig defines the configuration lifecycle every section follows.
type ServiceConfig interface {
	// ApplyDefaults fills zero values with defaults.
	ApplyDefaults()

	// ApplyEnvOverrides applies environment variable overrides.
	ApplyEnvOverrides()

	// ResolvePaths resolves relative paths. configDir is the directory the
	// config files were read from.
	ResolvePaths(configDir string)

	// Validate returns an error if the section is invalid.
	Validate() error
}

// ApplyServiceConfigs runs the lifecycle on each section in order and stops
// at the first validation error.
func ApplyServiceConfigs(configDir string, configs ...ServiceConfig) error {
	for _, cfg := range configs {
		cfg.ApplyDefaults()
		cfg.ApplyEnvOverrides()
		cfg.ResolvePaths(configDir)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	return nil
}
