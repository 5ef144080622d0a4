package config

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/roomclient/internal/errors"
)

const (
	// ConfigFileName is the name of the JSON configuration file.
	ConfigFileName = "roomctl.json"

	// YAMLFileName is the name of the YAML configuration file. It is only
	// used when ConfigFileName is absent.
	YAMLFileName = "roomctl.yaml"

	// DefaultCallTimeout bounds a single call to the room service.
	DefaultCallTimeout = "10s"

	// DefaultHTTPAddr is the inspection server address.
	DefaultHTTPAddr = "127.0.0.1:7070"

	// DefaultArchiveInterval is the snapshot upload debounce.
	DefaultArchiveInterval = "5s"

	// DefaultArchivePrefix is the object key prefix for snapshots.
	DefaultArchivePrefix = "rooms/"
)

// Config represents a roomctl configuration file.
type Config struct {
	// URL is the websocket endpoint of the room service.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Room is the id of the room to join.
	Room string `json:"room,omitempty" yaml:"room,omitempty"`

	// Resource is the resource name requested on connect. Empty means a
	// random name is generated per run.
	Resource string `json:"resource,omitempty" yaml:"resource,omitempty"`

	// CallTimeout bounds each call to the room service (Go duration).
	CallTimeout string `json:"callTimeout,omitempty" yaml:"callTimeout,omitempty"`

	// HTTP configures the inspection server.
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Archive configures snapshot uploads.
	Archive ArchiveConfig `json:"archive" yaml:"archive"`

	// Log configures logging.
	Log LogConfig `json:"log" yaml:"log"`

	// configPath is the path to the config file (not serialized).
	configPath string
}

// HTTPConfig configures the inspection server started by roomctl watch.
type HTTPConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	// ReadOnly disables the write endpoints.
	ReadOnly bool `json:"readOnly,omitempty" yaml:"readOnly,omitempty"`
}

// ArchiveConfig configures the S3 snapshot archive.
type ArchiveConfig struct {
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// Endpoint overrides the S3 endpoint, for S3-compatible stores.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// Interval is the minimum time between uploads (Go duration).
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		CallTimeout: DefaultCallTimeout,
		HTTP: HTTPConfig{
			Addr:     DefaultHTTPAddr,
			ReadOnly: true,
		},
		Archive: ArchiveConfig{
			Prefix:   DefaultArchivePrefix,
			Interval: DefaultArchiveInterval,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the specified directory. It looks for
// roomctl.json first and roomctl.yaml second.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); err != nil {
		if yamlPath := filepath.Join(dir, YAMLFileName); fileExists(yamlPath) {
			path = yamlPath
		}
	}
	return LoadFile(path)
}

// LoadFile reads configuration from the specified file path. Files ending
// in .yaml or .yml are parsed as YAML; anything else as JSON with comments.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("R120").
				WithDetail("No " + filepath.Base(path) + " found in " + filepath.Dir(path)).
				WithSuggestion("Run 'roomctl init' or pass --url and --room")
		}
		return nil, errors.New("R100").Wrap(err)
	}

	cfg := New()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	}
	if err != nil {
		return nil, errors.New("R100").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithSuggestion("Check the file syntax")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path, in YAML when the
// path ends in .yaml or .yml and in indented JSON otherwise.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.New("R100").Wrap(err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("R100").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.CallTimeout == "" {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.Archive.Interval == "" {
		c.Archive.Interval = DefaultArchiveInterval
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// ApplyEnv overrides values from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set("ROOMCTL_URL", &c.URL)
	set("ROOMCTL_ROOM", &c.Room)
	set("ROOMCTL_RESOURCE", &c.Resource)
	set("ROOMCTL_LOG_LEVEL", &c.Log.Level)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("R101").
			WithDetail("url is not set").
			WithSuggestion("Set \"url\" in " + ConfigFileName + " or pass --url")
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return errors.New("R102").
			WithDetail(c.URL + " is not a ws:// or wss:// URL")
	}
	if c.Room == "" {
		return errors.New("R101").
			WithDetail("room is not set").
			WithSuggestion("Set \"room\" in " + ConfigFileName + " or pass --room")
	}
	for name, v := range map[string]string{
		"callTimeout":      c.CallTimeout,
		"archive.interval": c.Archive.Interval,
	} {
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			return errors.New("R103").
				WithDetail(name + ": " + strconv.Quote(v) + " is not a positive duration")
		}
	}
	if _, ok := parseLevel(c.Log.Level); !ok {
		return errors.New("R104").WithDetail(strconv.Quote(c.Log.Level) + " is not a log level")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.Newf(errors.CategoryConfig, "log format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// CallTimeoutDuration returns CallTimeout parsed, or the default.
func (c *Config) CallTimeoutDuration() time.Duration {
	return durationOr(c.CallTimeout, DefaultCallTimeout)
}

// ArchiveInterval returns Archive.Interval parsed, or the default.
func (c *Config) ArchiveInterval() time.Duration {
	return durationOr(c.Archive.Interval, DefaultArchiveInterval)
}

// LogLevel returns the configured slog level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	l, _ := parseLevel(c.Log.Level)
	return l
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	return fileExists(filepath.Join(dir, ConfigFileName)) ||
		fileExists(filepath.Join(dir, YAMLFileName))
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing a config file, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("R120").
				WithDetail("No " + ConfigFileName + " or " + YAMLFileName + " found in " + startDir + " or any parent directory").
				WithSuggestion("Run 'roomctl init' or pass --url and --room")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func durationOr(v, def string) time.Duration {
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(def)
	return d
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
