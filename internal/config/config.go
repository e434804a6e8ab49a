// Package config loads the optional portreaper configuration file.
//
// The file supplies defaults for flags the operator does not want to
// repeat on every invocation: the default target port, the grace
// period, protected ports. Both YAML and JSONC (JSON with comments)
// formats are supported, selected by file extension; JSONC files are
// stripped of comments with github.com/tidwall/jsonc before parsing
// with the standard encoding/json.
//
// Search order:
//  1. $PORTREAPER_CONFIG (must exist when set)
//  2. ~/.config/portreaper/config.{yaml,yml,jsonc,json}
//
// No file found means built-in defaults — a config file is never
// required. CLI flags always override config values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/portreaper/internal/model"
)

// DefaultPort is the built-in target port when neither the command line
// nor a config file supplies one. 8000 is the port the original
// utility had compiled in.
const DefaultPort = 8000

// DefaultGracePeriod is the built-in grace period between the graceful
// signal and forceful escalation.
const DefaultGracePeriod = Duration(5 * time.Second)

// envConfigPath is the environment variable naming an explicit config
// file location.
const envConfigPath = "PORTREAPER_CONFIG"

// searchNames are the candidate file names probed under
// ~/.config/portreaper/, in preference order.
var searchNames = []string{
	"config.yaml",
	"config.yml",
	"config.jsonc",
	"config.json",
}

// Duration is a time.Duration that unmarshals from human-readable
// strings ("5s", "1m30s") in both YAML and JSON config files.
type Duration time.Duration

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the human-readable duration form.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML parses a duration string from a YAML scalar.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalJSON parses a duration string from a JSON string value.
func (d *Duration) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("duration must be a string like \"5s\"")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds the file-configurable defaults for portreaper.
// Zero values mean "not set in the file"; Load fills them with the
// built-in defaults after parsing.
type Config struct {
	// DefaultPort is the port reaped when no port argument is given.
	DefaultPort int `yaml:"defaultPort" json:"defaultPort"`

	// GracePeriod is the time an occupant gets between the graceful
	// signal and forceful escalation.
	GracePeriod Duration `yaml:"gracePeriod" json:"gracePeriod"`

	// Protocol selects tcp or udp. Defaults to tcp.
	Protocol string `yaml:"protocol" json:"protocol"`

	// Force skips the graceful signal by default. The --force flag
	// can still be set per invocation either way.
	Force bool `yaml:"force" json:"force"`

	// Docker enables container-aware reaping by default.
	Docker bool `yaml:"docker" json:"docker"`

	// ProtectedPorts are refused by every reap, before any signal.
	// Typical entries: 22 (sshd), the database you forgot is precious.
	ProtectedPorts []int `yaml:"protectedPorts" json:"protectedPorts"`
}

// Default returns the built-in configuration used when no config file
// exists.
func Default() *Config {
	return &Config{
		DefaultPort: DefaultPort,
		GracePeriod: DefaultGracePeriod,
		Protocol:    model.ProtocolTCP.String(),
	}
}

// Load locates, parses, and validates the configuration.
//
// explicitPath comes from the --config flag; when non-empty the file
// must exist and parse. Otherwise $PORTREAPER_CONFIG is consulted, then
// the standard search paths. When nothing is found, the built-in
// defaults are returned with a nil error.
func Load(explicitPath string) (*Config, error) {
	path := explicitPath
	if path == "" {
		path = os.Getenv(envConfigPath)
	}

	if path != "" {
		return LoadFile(path)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		// No resolvable home directory — nothing to search, defaults apply.
		return Default(), nil
	}

	dir := filepath.Join(home, ".config", "portreaper")
	for _, name := range searchNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return LoadFile(candidate)
		}
	}

	return Default(), nil
}

// LoadFile parses and validates a single config file. The format is
// chosen by extension: .yaml/.yml use the YAML parser, .json/.jsonc are
// comment-stripped and parsed as JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case ".json", ".jsonc":
		// Strip // and /* */ comments and trailing commas first; the
		// remainder is plain JSON.
		cleanJSON := jsonc.ToJSON(data)
		if err := json.Unmarshal(cleanJSON, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q (use .yaml, .yml, .json, or .jsonc)", filepath.Ext(path))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks field values after parsing. A file that names an
// unreapable default port or an unknown protocol is rejected as a whole
// rather than silently corrected.
func (c *Config) Validate() error {
	if err := model.ValidatePort(c.DefaultPort); err != nil {
		return fmt.Errorf("defaultPort: %w", err)
	}
	if _, err := model.ParseProtocol(c.Protocol); err != nil {
		return err
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("gracePeriod must not be negative")
	}
	for _, p := range c.ProtectedPorts {
		if err := model.ValidatePort(p); err != nil {
			return fmt.Errorf("protectedPorts: %w", err)
		}
	}
	return nil
}
