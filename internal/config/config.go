// Package config manages proofmode configuration
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
)

const (
	fileName  = "config.json"
	envPrefix = "PROOFMODE"

	// DefaultPassphrase matches the passphrase used by mobile clients that
	// never asked the user for one.
	DefaultPassphrase = "password"

	// DefaultListenAddr keeps the API on the loopback interface.
	DefaultListenAddr = "127.0.0.1:8081"
)

// SigningConfig configures the signing identity and content credentials.
type SigningConfig struct {
	Passphrase           string `json:"passphrase" mapstructure:"passphrase"`
	IdentityName         string `json:"identity_name" mapstructure:"identity_name"`
	IdentityURI          string `json:"identity_uri" mapstructure:"identity_uri"`
	AllowMachineLearning bool   `json:"allow_machine_learning" mapstructure:"allow_machine_learning"`
	C2PATool             string `json:"c2patool,omitempty" mapstructure:"c2patool"`
}

// RemoteStorageConfig describes an S3-compatible mirror for proof bundles.
type RemoteStorageConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	AccessKey string `json:"access_key" mapstructure:"access_key"`
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	Region    string `json:"region,omitempty" mapstructure:"region"`
	UseSSL    bool   `json:"use_ssl" mapstructure:"use_ssl"`
}

// Validate checks that every required field is set when the mirror is enabled.
func (r RemoteStorageConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	var missing []string
	for name, value := range map[string]string{
		"endpoint":   r.Endpoint,
		"access_key": r.AccessKey,
		"secret_key": r.SecretKey,
		"bucket":     r.Bucket,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: remote storage missing %s", apperrors.ErrConfig, strings.Join(missing, ", "))
	}
	return nil
}

// StorageConfig configures where proof bundles are written.
type StorageConfig struct {
	Root   string              `json:"root" mapstructure:"root"`
	Remote RemoteStorageConfig `json:"remote" mapstructure:"remote"`
}

// NotaryProvider defines a remote notarization endpoint.
type NotaryProvider struct {
	Name    string            `json:"name" mapstructure:"name"`
	Type    string            `json:"type" mapstructure:"type"` // "opentimestamps" or "http"
	URL     string            `json:"url" mapstructure:"url"`
	APIKey  string            `json:"api_key,omitempty" mapstructure:"api_key"`
	Headers map[string]string `json:"headers,omitempty" mapstructure:"headers"`
	Enabled bool              `json:"enabled" mapstructure:"enabled"`
}

// NotarizationConfig configures the notarization fan-out.
type NotarizationConfig struct {
	ConnectivityURL   string           `json:"connectivity_url" mapstructure:"connectivity_url"`
	TimeoutSeconds    int              `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	RequestsPerMinute int              `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	Providers         []NotaryProvider `json:"providers,omitempty" mapstructure:"providers"`
}

// LocationConfig is a fixed position reported for every proof, for
// installations without a GPS receiver.
type LocationConfig struct {
	Enabled   bool    `json:"enabled" mapstructure:"enabled"`
	Latitude  float64 `json:"latitude" mapstructure:"latitude"`
	Longitude float64 `json:"longitude" mapstructure:"longitude"`
	Altitude  float64 `json:"altitude" mapstructure:"altitude"`
	Accuracy  float64 `json:"accuracy" mapstructure:"accuracy"`
	Provider  string  `json:"provider" mapstructure:"provider"`
}

// RateLimitConfig limits API requests per client IP.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `json:"burst" mapstructure:"burst"`
	// TrustProxy keys clients by X-Forwarded-For instead of the peer address.
	TrustProxy bool `json:"trust_proxy" mapstructure:"trust_proxy"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level       string `json:"level" mapstructure:"level"`
	JSON        bool   `json:"json" mapstructure:"json"`
	Development bool   `json:"development" mapstructure:"development"`
}

// Config represents the proofmode configuration
type Config struct {
	// Feature flags
	ProofEnabled     bool `json:"proof_enabled" mapstructure:"proof_enabled"`
	IncludeDeviceIDs bool `json:"include_device_ids" mapstructure:"include_device_ids"`
	IncludeLocation  bool `json:"include_location" mapstructure:"include_location"`
	IncludeNetwork   bool `json:"include_network" mapstructure:"include_network"`
	AutoNotarize     bool `json:"auto_notarize" mapstructure:"auto_notarize"`
	EmbedCredentials bool `json:"embed_credentials" mapstructure:"embed_credentials"`

	Signing      SigningConfig      `json:"signing" mapstructure:"signing"`
	Storage      StorageConfig      `json:"storage" mapstructure:"storage"`
	Notarization NotarizationConfig `json:"notarization" mapstructure:"notarization"`
	Location     LocationConfig     `json:"location" mapstructure:"location"`

	// API settings
	ListenAddr string          `json:"listen_addr,omitempty" mapstructure:"listen_addr"`
	RateLimit  RateLimitConfig `json:"rate_limit" mapstructure:"rate_limit"`

	// ImportRoots are the directories the API may import files from.
	ImportRoots []string `json:"import_roots,omitempty" mapstructure:"import_roots"`

	Log LogConfig `json:"log" mapstructure:"log"`

	// Paths (not serialized)
	ConfigDir string `json:"-" mapstructure:"-"`
}

// DefaultConfigDir returns the default config directory
func DefaultConfigDir() string {
	if dir := os.Getenv(envPrefix + "_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".proofmode")
}

// Default returns the configuration written by `proofmode init`.
func Default(configDir string) *Config {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return &Config{
		ProofEnabled:     true,
		IncludeDeviceIDs: false,
		IncludeLocation:  true,
		IncludeNetwork:   true,
		AutoNotarize:     true,
		EmbedCredentials: false,
		Signing: SigningConfig{
			Passphrase:   DefaultPassphrase,
			IdentityName: "ProofMode User",
		},
		Storage: StorageConfig{
			Root: configDir,
		},
		Notarization: NotarizationConfig{
			ConnectivityURL:   "https://alice.btc.calendar.opentimestamps.org",
			TimeoutSeconds:    30,
			RequestsPerMinute: 30,
			Providers: []NotaryProvider{
				{
					Name:    "opentimestamps",
					Type:    "opentimestamps",
					URL:     "https://alice.btc.calendar.opentimestamps.org",
					Enabled: true,
				},
			},
		},
		ListenAddr: DefaultListenAddr,
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Log: LogConfig{
			Level: "info",
		},
		ConfigDir: configDir,
	}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("proof_enabled", d.ProofEnabled)
	v.SetDefault("include_device_ids", d.IncludeDeviceIDs)
	v.SetDefault("include_location", d.IncludeLocation)
	v.SetDefault("include_network", d.IncludeNetwork)
	v.SetDefault("auto_notarize", d.AutoNotarize)
	v.SetDefault("embed_credentials", d.EmbedCredentials)

	v.SetDefault("signing.passphrase", d.Signing.Passphrase)
	v.SetDefault("signing.identity_name", d.Signing.IdentityName)
	v.SetDefault("signing.identity_uri", d.Signing.IdentityURI)
	v.SetDefault("signing.allow_machine_learning", d.Signing.AllowMachineLearning)
	v.SetDefault("signing.c2patool", d.Signing.C2PATool)

	v.SetDefault("storage.root", d.Storage.Root)
	v.SetDefault("storage.remote.enabled", false)
	v.SetDefault("storage.remote.endpoint", "")
	v.SetDefault("storage.remote.access_key", "")
	v.SetDefault("storage.remote.secret_key", "")
	v.SetDefault("storage.remote.bucket", "")
	v.SetDefault("storage.remote.region", "")
	v.SetDefault("storage.remote.use_ssl", true)

	v.SetDefault("notarization.connectivity_url", d.Notarization.ConnectivityURL)
	v.SetDefault("notarization.timeout_seconds", d.Notarization.TimeoutSeconds)
	v.SetDefault("notarization.requests_per_minute", d.Notarization.RequestsPerMinute)

	v.SetDefault("location.enabled", false)
	v.SetDefault("location.latitude", 0.0)
	v.SetDefault("location.longitude", 0.0)
	v.SetDefault("location.altitude", 0.0)
	v.SetDefault("location.accuracy", 0.0)
	v.SetDefault("location.provider", "static")

	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("import_roots", []string{})
	v.SetDefault("rate_limit.requests_per_second", d.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)
	v.SetDefault("rate_limit.trust_proxy", false)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", false)
	v.SetDefault("log.development", false)
}

// Load loads configuration from the config directory. Values in the file can
// be overridden with PROOFMODE_* environment variables, e.g.
// PROOFMODE_STORAGE_REMOTE_SECRET_KEY.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	configPath := filepath.Join(configDir, fileName)
	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ErrNotInitialized
		}
		return nil, err
	}

	v := viper.New()
	setDefaults(v, Default(configDir))
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", apperrors.ErrConfig, configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", apperrors.ErrConfig, configPath, err)
	}

	cfg.ConfigDir = configDir
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = configDir
	}
	return &cfg, nil
}

// Exists checks if a config exists
func Exists(configDir string) bool {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	_, err := os.Stat(filepath.Join(configDir, fileName))
	return err == nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	if c.ConfigDir == "" {
		c.ConfigDir = DefaultConfigDir()
	}

	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(c.ConfigDir, fileName), data, 0600)
}

// IdentityDir is where the signing identity lives.
func (c *Config) IdentityDir() string {
	return filepath.Join(c.ConfigDir, "identity")
}

// Passphrase returns the signing passphrase, falling back to the default.
func (c *Config) Passphrase() string {
	if c.Signing.Passphrase == "" {
		return DefaultPassphrase
	}
	return c.Signing.Passphrase
}
