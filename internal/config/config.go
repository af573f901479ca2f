// Package config loads the optional .mdpack.yaml settings file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ezerfernandes/mdpack/internal/bundle"
	"github.com/ezerfernandes/mdpack/internal/textfile"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read from the working directory when --config is not given.
const DefaultPath = ".mdpack.yaml"

// Config holds the settings a file can provide. Command-line flags that are
// set explicitly take precedence.
type Config struct {
	// Atomic is nil when the file does not say; writes are atomic then.
	Atomic    *bool    `yaml:"atomic"`
	Confine   bool     `yaml:"confine"`
	Include   []string `yaml:"include"`
	Exclude   []string `yaml:"exclude"`
	Exec      string   `yaml:"exec"`
	Encodings []string `yaml:"encodings"`
	Quiet     bool     `yaml:"quiet"`
	NoColor   bool     `yaml:"no_color"`

	location string
}

// Load reads and validates the file at path. A missing file yields an error
// wrapping fs.ErrNotExist; an empty file yields the zero Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cfg.location = path

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

func parse(data []byte) (*Config, error) {
	var cfg Config

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	return &cfg, nil
}

// Validate checks that encoding names are known and glob patterns compile.
func (c *Config) Validate() error {
	if _, err := textfile.LookupAll(c.Encodings); err != nil {
		return err
	}

	if _, err := bundle.NewFilter(c.Include, c.Exclude); err != nil {
		return err
	}

	return nil
}

// Location is the path the configuration was loaded from, empty for the
// built-in defaults.
func (c *Config) Location() string {
	return c.location
}

// AtomicWrites reports whether extracted files are written atomically.
func (c *Config) AtomicWrites() bool {
	return c.Atomic == nil || *c.Atomic
}

// EncodingList resolves Encodings, falling back to the default order.
func (c *Config) EncodingList() ([]textfile.Encoding, error) {
	if len(c.Encodings) == 0 {
		return textfile.DefaultEncodings(), nil
	}

	return textfile.LookupAll(c.Encodings)
}
