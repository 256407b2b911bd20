package types

import "errors"

// Config holds backend selection and parameters for Store.Attach.
type Config struct {
	Backend            string `json:"backend" yaml:"backend"`
	DataDir            string `json:"data_dir" yaml:"data_dir"`
	AutoCreateDefaults bool   `json:"auto_create_defaults" yaml:"auto_create_defaults"`
}

// Supported backend names.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config validation errors.
var (
	ErrBackendEmpty   = errors.New("backend must not be empty")
	ErrBackendUnknown = errors.New("unknown backend")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendMemory: true,
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel
// error from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	return nil
}
