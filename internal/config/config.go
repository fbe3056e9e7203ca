package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied to fields left empty in the configuration file. The
// commit message is deliberately not defaulted here: an empty message lets
// the engines pick one that fits the flow they are running.
const (
	DefaultRemoteName    = "origin"
	DefaultCommitMessage = "Initial commit"
	DefaultIgnoreFile    = ".gitignore"
	DefaultTimeout       = 30 * time.Second
	DefaultFetchDepth    = 1
)

// Duration wraps time.Duration so YAML values like "45s" or "2m" parse
// naturally.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped standard-library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the complete git-onboard configuration
type Config struct {
	Project ProjectConfig `yaml:"project"`
	Remote  RemoteConfig  `yaml:"remote"`
	Commit  CommitConfig  `yaml:"commit"`
	Ignore  IgnoreConfig  `yaml:"ignore"`
	Network NetworkConfig `yaml:"network"`
	Auth    AuthConfig    `yaml:"auth"`
}

// ProjectConfig configures the local project directory
type ProjectConfig struct {
	Path string `yaml:"path"`
}

// RemoteConfig configures the target Git remote
type RemoteConfig struct {
	URL    string `yaml:"url"`
	Name   string `yaml:"name"`
	Branch string `yaml:"branch"`
}

// CommitConfig configures how recovered changes are committed
type CommitConfig struct {
	Message string `yaml:"message"`
}

// IgnoreConfig configures the ignore file and extra patterns
type IgnoreConfig struct {
	File     string   `yaml:"file"`
	Patterns []string `yaml:"patterns"`
}

// NetworkConfig configures remote operation behavior
type NetworkConfig struct {
	Timeout    Duration `yaml:"timeout"`
	FetchDepth int      `yaml:"fetch_depth"`
}

// AuthConfig configures Git authentication
type AuthConfig struct {
	SSHKeyFile     string `yaml:"ssh_key_file"`
	HTTPSTokenFile string `yaml:"https_token_file"`
}

// Default returns a configuration with every field at its built-in default.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand environment variables in string fields
	cfg.expandEnv()

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadIfPresent reads the configuration file when it exists and falls back
// to built-in defaults when it does not. Used for the default config path,
// which is optional; an explicitly requested file goes through Load and
// fails loudly.
func LoadIfPresent(path string) (*Config, error) {
	if _, err := os.Stat(os.ExpandEnv(path)); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Project.Path = os.ExpandEnv(c.Project.Path)
	c.Remote.URL = os.ExpandEnv(c.Remote.URL)
	c.Remote.Name = os.ExpandEnv(c.Remote.Name)
	c.Remote.Branch = os.ExpandEnv(c.Remote.Branch)
	c.Commit.Message = os.ExpandEnv(c.Commit.Message)
	c.Ignore.File = os.ExpandEnv(c.Ignore.File)
	c.Auth.SSHKeyFile = os.ExpandEnv(c.Auth.SSHKeyFile)
	c.Auth.HTTPSTokenFile = os.ExpandEnv(c.Auth.HTTPSTokenFile)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Project.Path == "" {
		c.Project.Path = "."
	}
	if c.Remote.Name == "" {
		c.Remote.Name = DefaultRemoteName
	}
	if c.Ignore.File == "" {
		c.Ignore.File = DefaultIgnoreFile
	}
	if c.Network.Timeout == 0 {
		c.Network.Timeout = Duration(DefaultTimeout)
	}
	if c.Network.FetchDepth == 0 {
		c.Network.FetchDepth = DefaultFetchDepth
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Project.Path == "" {
		return fmt.Errorf("project.path is required")
	}
	if c.Remote.Name == "" {
		return fmt.Errorf("remote.name is required")
	}
	if c.Network.Timeout <= 0 {
		return fmt.Errorf("network.timeout must be positive")
	}
	if c.Network.FetchDepth < 1 {
		return fmt.Errorf("network.fetch_depth must be at least 1")
	}

	// Validate auth: only one auth method may be configured
	if c.Auth.SSHKeyFile != "" && c.Auth.HTTPSTokenFile != "" {
		return fmt.Errorf("auth: only one of ssh_key_file or https_token_file may be set")
	}

	// Validate auth: credentials make no sense without a remote
	if c.AuthMethod() != "none" && !c.HasRemote() {
		return fmt.Errorf("auth is configured but remote.url is empty")
	}

	// Validate auth: when auth is configured, the URL scheme must match
	if c.Auth.SSHKeyFile != "" && !c.IsSSH() {
		return fmt.Errorf("auth.ssh_key_file is set but remote.url does not use an SSH scheme (git@ or ssh://)")
	}
	if c.Auth.HTTPSTokenFile != "" && !c.IsHTTPS() {
		return fmt.Errorf("auth.https_token_file is set but remote.url does not use HTTPS scheme")
	}

	return nil
}

// AbsProjectPath returns the project directory as an absolute path.
func (c *Config) AbsProjectPath() (string, error) {
	abs, err := filepath.Abs(c.Project.Path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project path %s: %w", c.Project.Path, err)
	}
	return abs, nil
}

// HasRemote returns true when a remote URL is configured.
func (c *Config) HasRemote() bool {
	return c.Remote.URL != ""
}

// AuthMethod returns a description of the configured auth method
func (c *Config) AuthMethod() string {
	if c.Auth.SSHKeyFile != "" {
		return "ssh"
	}
	if c.Auth.HTTPSTokenFile != "" {
		return "https"
	}
	return "none"
}

// IsHTTPS returns true if the remote URL uses HTTPS
func (c *Config) IsHTTPS() bool {
	return strings.HasPrefix(c.Remote.URL, "https://")
}

// IsSSH returns true if the remote URL uses SSH
func (c *Config) IsSSH() bool {
	return strings.HasPrefix(c.Remote.URL, "git@") || strings.HasPrefix(c.Remote.URL, "ssh://")
}
