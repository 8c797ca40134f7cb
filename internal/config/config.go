// Package config loads the minter configuration from the process environment,
// optionally layered over a YAML file with ${VAR} substitution.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/dskow/newtoken/internal/grant"
	"gopkg.in/yaml.v3"
)

// Environment variable names read by the minter.
const (
	EnvDeviceID   = "DEVICE_ID"
	EnvJWTIssuer  = "JWT_ISSUER"
	EnvJWTSubject = "JWT_SUBJECT"
	EnvJWTSecret  = "JWT_SECRET"
)

// requiredEnv lists the required variables in the order they are reported.
var requiredEnv = []string{EnvDeviceID, EnvJWTIssuer, EnvJWTSubject, EnvJWTSecret}

// minSecretBytes is the HS256 key size recommended by RFC 7518 section 3.2.
const minSecretBytes = 32

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Config is the complete minter configuration.
type Config struct {
	DeviceID string        `yaml:"device_id" json:"device_id"`
	JWT      JWTConfig     `yaml:"jwt" json:"jwt"`
	Logging  LoggingConfig `yaml:"logging" json:"logging"`
	Metrics  MetricsConfig `yaml:"metrics" json:"metrics"`

	// Warnings holds non-fatal issues found while loading.
	Warnings []string `yaml:"-" json:"-"`
}

// JWTConfig holds the claim values and the signing secret.
type JWTConfig struct {
	Issuer  string `yaml:"issuer" json:"issuer"`
	Subject string `yaml:"subject" json:"subject"`
	Secret  string `yaml:"secret" json:"-"`
}

// LoggingConfig controls where and how diagnostics are written. Standard
// output is never a valid destination: it carries the token.
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`             // debug, info, warn, error; default: info
	Format     string `yaml:"format" json:"format"`           // json or text; default: json
	Output     string `yaml:"output" json:"output"`           // "stderr" or a file path; default: stderr
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"` // rotate the log file past this size; default: 10
	MaxBackups int    `yaml:"max_backups" json:"max_backups"` // rotated files to keep; default: 3
}

// ToFile reports whether logs go to a file rather than stderr.
func (l LoggingConfig) ToFile() bool {
	return l.Output != "stderr"
}

// MetricsConfig holds batch-job metrics settings.
type MetricsConfig struct {
	// Textfile is the node_exporter textfile collector path. Empty disables
	// metrics.
	Textfile string `yaml:"textfile" json:"textfile"`
}

// Enabled reports whether metrics should be written.
func (m MetricsConfig) Enabled() bool {
	return m.Textfile != ""
}

// ValidLogLevels are the accepted logging.level values.
var ValidLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidLogFormats are the accepted logging.format values.
var ValidLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// ConfigurationError reports missing or unusable configuration. Missing
// lists absent variables; Err describes any other problem.
type ConfigurationError struct {
	Missing []string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("invalid configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns in s with the corresponding
// variable from lookup. Unknown variables are left in place.
func expandEnvVars(s string, lookup LookupFunc) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		key := match[2 : len(match)-1]
		if val, ok := lookup(key); ok {
			return val
		}
		return match
	})
}

// Load builds the configuration. With an empty path only the environment
// is read; otherwise the YAML file at path is parsed first and the
// environment overrides it.
func Load(path string, lookup LookupFunc) (*Config, error) {
	if path == "" {
		return build(&Config{}, lookup, nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("reading config file: %w", err)}
	}
	return LoadFromBytes(data, lookup)
}

// LoadFromBytes parses configuration from raw YAML bytes and applies the
// environment on top. ${VAR} references are expanded inside scalar values
// after parsing, so substituted text is never read as YAML. Useful for
// testing.
func LoadFromBytes(data []byte, lookup LookupFunc) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("parsing config: %w", err)}
	}

	var cfg Config
	if root.Kind != 0 {
		expandNode(&root, lookup)
		if err := root.Decode(&cfg); err != nil {
			return nil, &ConfigurationError{Err: fmt.Errorf("parsing config: %w", err)}
		}
	}
	return build(&cfg, lookup, dropUnresolved(&cfg))
}

// expandNode expands ${VAR} references in the scalar values under n. Mapping
// keys and aliases are left alone.
func expandNode(n *yaml.Node, lookup LookupFunc) {
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			expandNode(c, lookup)
		}
	case yaml.MappingNode:
		for i := 1; i < len(n.Content); i += 2 {
			expandNode(n.Content[i], lookup)
		}
	case yaml.ScalarNode:
		if !envVarRe.MatchString(n.Value) {
			return
		}
		n.Value = expandEnvVars(n.Value, lookup)
		// Plain scalars re-resolve so numeric values still decode into int
		// fields, but a substitution never turns into null.
		if n.Style&(yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle) == 0 {
			n.Tag = ""
			if n.ShortTag() == "!!null" {
				n.Tag = "!!str"
			}
		}
	}
}

func build(cfg *Config, lookup LookupFunc, warnings []string) (*Config, error) {
	applyEnv(cfg, lookup)
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	cfg.Warnings = append(warnings, collectWarnings(cfg)...)
	return cfg, nil
}

// dropUnresolved clears required file values that still hold a ${VAR}
// reference, so they count as absent unless the environment supplies them.
func dropUnresolved(cfg *Config) []string {
	var warnings []string
	fields := []struct {
		name string
		dst  *string
	}{
		{"device_id", &cfg.DeviceID},
		{"jwt.issuer", &cfg.JWT.Issuer},
		{"jwt.subject", &cfg.JWT.Subject},
		{"jwt.secret", &cfg.JWT.Secret},
	}
	for _, f := range fields {
		if envVarRe.MatchString(*f.dst) {
			*f.dst = ""
			warnings = append(warnings, f.name+" contains unresolved environment variable")
		}
	}
	return warnings
}

// applyEnv overrides file values with non-empty environment variables.
func applyEnv(cfg *Config, lookup LookupFunc) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&cfg.DeviceID, EnvDeviceID)
	set(&cfg.JWT.Issuer, EnvJWTIssuer)
	set(&cfg.JWT.Subject, EnvJWTSubject)
	set(&cfg.JWT.Secret, EnvJWTSecret)
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 10
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}
}

func validate(cfg *Config) error {
	var missing []string
	values := map[string]string{
		EnvDeviceID:   cfg.DeviceID,
		EnvJWTIssuer:  cfg.JWT.Issuer,
		EnvJWTSubject: cfg.JWT.Subject,
		EnvJWTSecret:  cfg.JWT.Secret,
	}
	for _, key := range requiredEnv {
		if values[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}

	if err := grant.ValidateDeviceID(cfg.DeviceID); err != nil {
		return &ConfigurationError{Err: fmt.Errorf("%s: %w", EnvDeviceID, err)}
	}

	if !ValidLogLevels[cfg.Logging.Level] {
		return invalid("logging.level must be one of debug, info, warn, error; got %q", cfg.Logging.Level)
	}
	if !ValidLogFormats[cfg.Logging.Format] {
		return invalid("logging.format must be json or text; got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output == "stdout" {
		return invalid("logging.output cannot be stdout, it is reserved for the token")
	}
	if cfg.Logging.ToFile() {
		if cfg.Logging.MaxSizeMB < 1 {
			return invalid("logging.max_size_mb must be positive when output is a file path")
		}
		if cfg.Logging.MaxBackups < 0 {
			return invalid("logging.max_backups must be non-negative")
		}
	}

	return nil
}

func invalid(format string, args ...any) error {
	return &ConfigurationError{Err: fmt.Errorf(format, args...)}
}

func collectWarnings(cfg *Config) []string {
	var warnings []string
	if len(cfg.JWT.Secret) < minSecretBytes {
		warnings = append(warnings, fmt.Sprintf("jwt secret is shorter than %d bytes", minSecretBytes))
	}
	if envVarRe.MatchString(cfg.Metrics.Textfile) {
		warnings = append(warnings, "metrics.textfile contains unresolved environment variable")
	}
	if envVarRe.MatchString(cfg.Logging.Output) {
		warnings = append(warnings, "logging.output contains unresolved environment variable")
	}
	return warnings
}

// IsMissing reports whether err is a ConfigurationError for absent values.
func IsMissing(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce) && len(ce.Missing) > 0
}
