// Package config loads the scan/import/resolver daemon settings from a
// YAML file: gopkg.in/yaml.v2 for parsing, github.com/creasty/defaults
// for zero-value fill-in, and github.com/go-playground/validator/v10
// for field constraints.
package config

import (
	"errors"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

// Config is the nexthop-tracking daemon's full runtime configuration.
type Config struct {
	// ScanIntervalSeconds is the periodic nexthop-scan interval,
	// equivalent to `bgp scan-time <5-60>`.
	ScanIntervalSeconds int `yaml:"scan-interval" description:"Nexthop scan interval in seconds" default:"60" validate:"min=5,max=60"`

	// ImportIntervalSeconds is the periodic static-route import-check
	// interval. bgp_import_interval itself carries no [5,60] bound,
	// only that it be positive.
	ImportIntervalSeconds int `yaml:"import-interval" description:"Static route import-check interval in seconds" default:"60" validate:"min=1"`

	// ResolverSocket is the Unix domain socket of the routing service
	// the resolver client dials, the ZEBRA_SERV_PATH analogue.
	ResolverSocket string `yaml:"resolver-socket" description:"Unix socket path of the routing service" validate:"required"`

	// ImportCheck mirrors BGP_FLAG_IMPORT_CHECK: when true, IPv4
	// unicast static routes are revalidated against the routing
	// service instead of being forced valid.
	ImportCheck bool `yaml:"import-check" description:"Revalidate static routes against the routing service" default:"false"`
}

// ScanInterval returns ScanIntervalSeconds as a time.Duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

// ImportInterval returns ImportIntervalSeconds as a time.Duration.
func (c *Config) ImportInterval() time.Duration {
	return time.Duration(c.ImportIntervalSeconds) * time.Second
}

// Load reads and validates a configuration file at path.
func Load(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadBytes(blob)
}

// LoadBytes parses, defaults, and validates a configuration document.
func LoadBytes(blob []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(blob, &cfg); err != nil {
		return nil, errors.New("yaml unmarshal: " + err.Error())
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.New("defaults: " + err.Error())
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, errors.New("validation: " + err.Error())
	}

	return &cfg, nil
}
