// Config loading for the cascade CLI. The chain definition (entity types,
// fields, ordering, levels) lives in config.yaml alongside the backend
// selection and is unmarshaled through Viper into the declared-schema types.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/cascade/pkg/chain"
	"github.com/mesh-intelligence/cascade/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyBackend = "backend"

	defaultBackend = types.BackendSQLite
)

// chainConfig is the full config.yaml shape.
type chainConfig struct {
	Backend            string         `mapstructure:"backend"`
	DataDir            string         `mapstructure:"data_dir"`
	AutoCreateDefaults bool           `mapstructure:"auto_create_defaults"`
	Entities           []entityConfig `mapstructure:"entities"`
	Chain              []levelConfig  `mapstructure:"chain"`
}

type entityConfig struct {
	Name    string        `mapstructure:"name"`
	OrderBy []string      `mapstructure:"order_by"`
	Fields  []fieldConfig `mapstructure:"fields"`
}

type fieldConfig struct {
	Name     string `mapstructure:"name"`
	Type     string `mapstructure:"type"`
	Target   string `mapstructure:"target"`
	Unique   bool   `mapstructure:"unique"`
	Required bool   `mapstructure:"required"`
	MaxLen   int    `mapstructure:"max_len"`
}

type levelConfig struct {
	Type     string `mapstructure:"type"`
	Relation string `mapstructure:"relation"`
}

// defaultConfigYAML is the content written to config.yaml on first run.
// It declares a small library chain as a working starting point.
const defaultConfigYAML = `# Cascade CLI configuration

# Backend selection: sqlite or memory
backend: sqlite

# Data directory (optional; overridable by --data-dir flag)
# data_dir:

# Fill empty child slots with new unsaved default records
auto_create_defaults: false

# Declared entity types
entities:
  - name: author
    order_by: [name]
    fields:
      - name: name
        type: text
        required: true
  - name: book
    order_by: [title]
    fields:
      - name: title
        type: text
        required: true
      - name: authors
        type: refset
        target: author
  - name: chapter
    order_by: [number]
    fields:
      - name: title
        type: text
      - name: number
        type: integer
      - name: book
        type: ref
        target: book

# Chain levels, parent to child. relation overrides first-match resolution.
chain:
  - type: author
  - type: book
  - type: chapter
`

// loadConfig reads config.yaml from the resolved config directory using
// Viper. It creates the config directory and a default config.yaml on first
// run. A missing config.yaml is not an error.
func loadConfig(configDir string) (*chainConfig, error) {
	if err := ensureConfigDir(configDir); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, defaultBackend)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg chainConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ensureConfigDir creates the config directory if it does not exist.
func ensureConfigDir(configDir string) error {
	return os.MkdirAll(configDir, 0o755)
}

// ensureDefaultConfigFile creates a default config.yaml if the file does not
// exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// buildSchema converts the config's entity declarations into a validated
// Schema.
func (c *chainConfig) buildSchema() (*types.Schema, error) {
	entityTypes := make([]*types.EntityType, 0, len(c.Entities))
	for _, e := range c.Entities {
		fields := make([]types.Field, 0, len(e.Fields))
		for _, f := range e.Fields {
			fields = append(fields, types.Field{
				Name:     f.Name,
				Type:     f.Type,
				Target:   f.Target,
				Unique:   f.Unique,
				Required: f.Required,
				MaxLen:   f.MaxLen,
			})
		}
		entityTypes = append(entityTypes, &types.EntityType{
			Name:    e.Name,
			Fields:  fields,
			OrderBy: e.OrderBy,
		})
	}
	return types.NewSchema(entityTypes...)
}

// buildLevels converts the config's chain declaration into chain levels.
func (c *chainConfig) buildLevels() []chain.Level {
	levels := make([]chain.Level, 0, len(c.Chain))
	for _, l := range c.Chain {
		levels = append(levels, chain.Level{Type: l.Type, Relation: l.Relation})
	}
	return levels
}
