// Package config provides configuration loading and management for the exposure sync engine.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/proxtrace/exposure-sync/internal/daybucket"
	"github.com/proxtrace/exposure-sync/internal/telemetry"
)

const (
	// StorageTypeMemory keeps all state in process memory
	StorageTypeMemory = "memory"

	// StorageTypeFile keeps state in JSON files under Storage.Path
	StorageTypeFile = "file"

	// StorageTypeSQLite keeps state in a SQLite database file under Storage.Path
	StorageTypeSQLite = "sqlite"

	// StorageTypeBadger keeps state in a Badger key-value store under Storage.Path
	StorageTypeBadger = "badger"

	// StorageTypeDatabase keeps state in PostgreSQL
	StorageTypeDatabase = "database"
)

const (
	// EngineFixture decodes match evidence embedded in batch bodies
	EngineFixture = "fixture"

	// EngineRemote delegates matching to an engine service over HTTP
	EngineRemote = "remote"
)

const (
	// MinSyncsPerDay is the lowest accepted scheduler cadence
	MinSyncsPerDay = 1
	// MaxSyncsPerDay is the highest accepted scheduler cadence
	MaxSyncsPerDay = 6
	// DefaultSyncsPerDay is used when no cadence is configured
	DefaultSyncsPerDay = 1

	// MinMatchingCallsPerDay is the lowest accepted matching budget
	MinMatchingCallsPerDay = 1
	// MaxMatchingCallsPerDay is the platform limit on matching engine calls per 24 hours
	MaxMatchingCallsPerDay = 20

	// DefaultLookbackDays bounds how far back a sync cycle fetches batches
	DefaultLookbackDays = 10
	// DefaultDaysToConsider bounds how old an exposure may be to count
	DefaultDaysToConsider = 10
	// DefaultDaysToKeep is the retention of exposure days
	DefaultDaysToKeep = 21

	// DefaultAttenuationThresholdLow is the upper bound in dB of the low attenuation bucket
	DefaultAttenuationThresholdLow = 50
	// DefaultAttenuationThresholdMedium is the upper bound in dB of the medium attenuation bucket
	DefaultAttenuationThresholdMedium = 55
	// DefaultAttenuationFactorLow weighs minutes in the low attenuation bucket
	DefaultAttenuationFactorLow = 1.0
	// DefaultAttenuationFactorMedium weighs minutes in the medium attenuation bucket
	DefaultAttenuationFactorMedium = 0.5
	// DefaultMinDurationForExposure is the weighted minutes needed for an exposure
	DefaultMinDurationForExposure = 15

	// DefaultSyncGracePeriod is how long failures stay silent after the last success
	DefaultSyncGracePeriod = 24 * time.Hour
	// DefaultNotificationGracePeriod is how long a surfaced error waits before it is notified
	DefaultNotificationGracePeriod = 5 * time.Minute

	// DefaultBackendTimeout is the per-request timeout towards the publishing backend
	DefaultBackendTimeout = 30 * time.Second
	// DefaultMaxClockSkew is the accepted difference between device and backend clocks
	DefaultMaxClockSkew = 10 * time.Minute

	// DefaultStoragePath is the data directory for on-disk storage types
	DefaultStoragePath = "./data"
)

// EnvPrefix is the prefix of environment variables read by the CLI
const EnvPrefix = "EXPOSURE_SYNC"

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; filepath.EvalSymlinks also cleans the path.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Backend   BackendConfig     `yaml:"backend"`
	Matching  MatchingConfig    `yaml:"matching"`
	Sync      SyncConfig        `yaml:"sync"`
	Exposure  ExposureConfig    `yaml:"exposure"`
	Errors    ErrorsConfig      `yaml:"errors"`
	Calendar  CalendarConfig    `yaml:"calendar"`
	History   HistoryConfig     `yaml:"history"`
	Report    ReportConfig      `yaml:"report"`
	Storage   StorageConfig     `yaml:"storage"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// BackendConfig describes the publishing backend
type BackendConfig struct {
	// BucketBaseURL is the root URL; batches are fetched from {BucketBaseURL}/bucket/{dayTimestamp}
	BucketBaseURL string `yaml:"bucketBaseURL"`

	// ReportBaseURL is the root URL keys are uploaded to
	ReportBaseURL string `yaml:"reportBaseURL,omitempty"`

	// Timeout is the per-request timeout, e.g. "30s"
	Timeout string `yaml:"timeout,omitempty"`

	// UserAgent overrides the User-Agent header
	UserAgent string `yaml:"userAgent,omitempty"`

	// MaxClockSkew is the accepted difference between the backend Date header and the device clock.
	// "0" disables the check.
	MaxClockSkew string `yaml:"maxClockSkew,omitempty"`

	// SignaturePublicKeyFile is a PEM encoded ECDSA public key used to verify batch signatures
	SignaturePublicKeyFile string `yaml:"signaturePublicKeyFile,omitempty"`

	// TLS configures the client transport
	TLS *TLSConfig `yaml:"tls,omitempty"`
}

// TLSConfig configures mutual TLS towards the backend
type TLSConfig struct {
	// HTTP2 forces an HTTP/2 transport
	HTTP2 bool `yaml:"http2,omitempty"`

	CertFile string `yaml:"certFile,omitempty"`
	KeyFile  string `yaml:"keyFile,omitempty"`
	CAFile   string `yaml:"caFile,omitempty"`
}

// MatchingConfig configures the matching engine and the exposure policy
type MatchingConfig struct {
	// Engine selects the engine implementation: fixture or remote
	Engine string `yaml:"engine,omitempty"`

	// Endpoint is the base URL of a remote engine
	Endpoint string `yaml:"endpoint,omitempty"`

	AttenuationThresholdLow    int `yaml:"attenuationThresholdLow,omitempty"`
	AttenuationThresholdMedium int `yaml:"attenuationThresholdMedium,omitempty"`

	// The factors and the minimum duration accept an explicit 0; nil means the default
	AttenuationFactorLow    *float64 `yaml:"attenuationFactorLow,omitempty"`
	AttenuationFactorMedium *float64 `yaml:"attenuationFactorMedium,omitempty"`

	// MinDurationForExposure is the weighted number of minutes needed for an exposure day
	MinDurationForExposure *int `yaml:"minDurationForExposure,omitempty"`
}

// SyncConfig configures the sync cadence and matching budget
type SyncConfig struct {
	SyncsPerDay         int `yaml:"syncsPerDay,omitempty"`
	MatchingCallsPerDay int `yaml:"matchingCallsPerDay,omitempty"`
	LookbackDays        int `yaml:"lookbackDays,omitempty"`
}

// ExposureConfig configures exposure evaluation windows
type ExposureConfig struct {
	DaysToConsider int `yaml:"daysToConsider,omitempty"`
	DaysToKeep     int `yaml:"daysToKeep,omitempty"`
}

// ErrorsConfig configures when failures surface to the user
type ErrorsConfig struct {
	SyncGracePeriod         string `yaml:"syncGracePeriod,omitempty"`
	NotificationGracePeriod string `yaml:"notificationGracePeriod,omitempty"`
}

// CalendarConfig selects the timezone days are computed in
type CalendarConfig struct {
	// Timezone is an IANA zone name; empty uses the host timezone
	Timezone string `yaml:"timezone,omitempty"`
}

// HistoryConfig configures the diagnostic history log
type HistoryConfig struct {
	// DevHistory also records scheduler starts
	DevHistory bool `yaml:"devHistory,omitempty"`
}

// ReportConfig configures key uploads
type ReportConfig struct {
	// WithFederationGateway asks the backend to share the keys with federated backends.
	// Unset leaves the decision to the backend.
	WithFederationGateway *bool `yaml:"withFederationGateway,omitempty"`
}

// StorageConfig selects where state is persisted
type StorageConfig struct {
	// Type is one of memory, file, sqlite, badger or database
	Type string `yaml:"type,omitempty"`

	// Path is the data directory for file, sqlite and badger storage
	Path string `yaml:"path,omitempty"`

	// Database configures PostgreSQL storage
	Database *DatabaseConfig `yaml:"database,omitempty"`
}

// DatabaseConfig defines PostgreSQL connection settings
type DatabaseConfig struct {
	// Host is the database server hostname
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// EXPOSURE_SYNC_DATABASE_PASSWORD is used when unset.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the minimum number of idle connections kept in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum amount of time a connection may be reused (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// DatabasePasswordEnv is the environment variable consulted for the database password
const DatabasePasswordEnv = "EXPOSURE_SYNC_DATABASE_PASSWORD"

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from the EXPOSURE_SYNC_DATABASE_PASSWORD environment variable
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		data, err := os.ReadFile(filepath.Clean(d.PasswordFile))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(DatabasePasswordEnv); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s environment variable", DatabasePasswordEnv,
	)
}

// GetConnectionString builds a PostgreSQL connection string with the password URL-escaped
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	), nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and clamps, and validates the result
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.ApplyDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with every default applied and no backend configured
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset values and clamps bounded values into range
func (c *Config) ApplyDefaults() {
	if c.Matching.Engine == "" {
		c.Matching.Engine = EngineFixture
	}
	if c.Matching.AttenuationThresholdLow == 0 {
		c.Matching.AttenuationThresholdLow = DefaultAttenuationThresholdLow
	}
	if c.Matching.AttenuationThresholdMedium == 0 {
		c.Matching.AttenuationThresholdMedium = DefaultAttenuationThresholdMedium
	}

	c.Sync.SyncsPerDay = clamp("sync.syncsPerDay", c.Sync.SyncsPerDay,
		DefaultSyncsPerDay, MinSyncsPerDay, MaxSyncsPerDay)
	c.Sync.MatchingCallsPerDay = clamp("sync.matchingCallsPerDay", c.Sync.MatchingCallsPerDay,
		MaxMatchingCallsPerDay, MinMatchingCallsPerDay, MaxMatchingCallsPerDay)
	if c.Sync.LookbackDays == 0 {
		c.Sync.LookbackDays = DefaultLookbackDays
	}

	if c.Exposure.DaysToConsider == 0 {
		c.Exposure.DaysToConsider = DefaultDaysToConsider
	}
	if c.Exposure.DaysToKeep == 0 {
		c.Exposure.DaysToKeep = DefaultDaysToKeep
	}

	if c.Storage.Type == "" {
		c.Storage.Type = StorageTypeFile
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath
	}
}

// clamp returns def for an unset value and otherwise forces v into [lo, hi]
func clamp(name string, v, def, lo, hi int) int {
	switch {
	case v == 0:
		return def
	case v < lo:
		slog.Warn("Configuration value below minimum, clamping", "key", name, "value", v, "min", lo)
		return lo
	case v > hi:
		slog.Warn("Configuration value above maximum, clamping", "key", name, "value", v, "max", hi)
		return hi
	}
	return v
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	if c.Backend.BucketBaseURL == "" {
		errs = append(errs, fmt.Errorf("backend.bucketBaseURL is required"))
	} else if err := validateURL(c.Backend.BucketBaseURL); err != nil {
		errs = append(errs, fmt.Errorf("backend.bucketBaseURL: %w", err))
	}
	if c.Backend.ReportBaseURL != "" {
		if err := validateURL(c.Backend.ReportBaseURL); err != nil {
			errs = append(errs, fmt.Errorf("backend.reportBaseURL: %w", err))
		}
	}
	for key, value := range map[string]string{
		"backend.timeout":                c.Backend.Timeout,
		"backend.maxClockSkew":           c.Backend.MaxClockSkew,
		"errors.syncGracePeriod":         c.Errors.SyncGracePeriod,
		"errors.notificationGracePeriod": c.Errors.NotificationGracePeriod,
	} {
		if err := validateDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if tls := c.Backend.TLS; tls != nil && (tls.CertFile == "") != (tls.KeyFile == "") {
		errs = append(errs, fmt.Errorf("backend.tls: certFile and keyFile must be set together"))
	}

	switch c.Matching.Engine {
	case EngineFixture:
	case EngineRemote:
		if err := validateURL(c.Matching.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("matching.endpoint: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("matching.engine must be one of %q or %q, got %q",
			EngineFixture, EngineRemote, c.Matching.Engine))
	}
	if c.Matching.AttenuationThresholdLow > c.Matching.AttenuationThresholdMedium {
		errs = append(errs, fmt.Errorf("matching.attenuationThresholdLow must not exceed attenuationThresholdMedium"))
	}
	if c.Matching.GetAttenuationFactorLow() < 0 || c.Matching.GetAttenuationFactorMedium() < 0 {
		errs = append(errs, fmt.Errorf("matching attenuation factors must not be negative"))
	}
	if c.Matching.GetMinDurationForExposure() < 0 {
		errs = append(errs, fmt.Errorf("matching.minDurationForExposure must not be negative"))
	}

	if c.Sync.LookbackDays < 1 {
		errs = append(errs, fmt.Errorf("sync.lookbackDays must be positive"))
	}
	if c.Exposure.DaysToConsider < 0 {
		errs = append(errs, fmt.Errorf("exposure.daysToConsider must not be negative"))
	}
	if c.Exposure.DaysToKeep < 1 {
		errs = append(errs, fmt.Errorf("exposure.daysToKeep must be positive"))
	}

	if _, err := daybucket.LoadCalendar(c.Calendar.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("calendar.timezone: %w", err))
	}

	if err := c.Storage.validate(); err != nil {
		errs = append(errs, err)
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

func (s *StorageConfig) validate() error {
	switch s.Type {
	case StorageTypeMemory, StorageTypeFile, StorageTypeSQLite, StorageTypeBadger:
		return nil
	case StorageTypeDatabase:
		if s.Database == nil {
			return fmt.Errorf("storage.database is required for storage type %q", StorageTypeDatabase)
		}
		if s.Database.Host == "" || s.Database.Database == "" || s.Database.User == "" {
			return fmt.Errorf("storage.database requires host, user and database")
		}
		return validateDuration(s.Database.ConnMaxLifetime)
	default:
		return fmt.Errorf("storage.type %q is not supported", s.Type)
	}
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func validateDuration(raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	return nil
}

// parseDuration returns def when raw is empty; raw was validated on load
func parseDuration(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

// GetTimeout returns the backend request timeout
func (b *BackendConfig) GetTimeout() time.Duration {
	return parseDuration(b.Timeout, DefaultBackendTimeout)
}

// GetAttenuationFactorLow returns the weight of minutes in the low attenuation bucket
func (m *MatchingConfig) GetAttenuationFactorLow() float64 {
	if m.AttenuationFactorLow == nil {
		return DefaultAttenuationFactorLow
	}
	return *m.AttenuationFactorLow
}

// GetAttenuationFactorMedium returns the weight of minutes in the medium attenuation bucket
func (m *MatchingConfig) GetAttenuationFactorMedium() float64 {
	if m.AttenuationFactorMedium == nil {
		return DefaultAttenuationFactorMedium
	}
	return *m.AttenuationFactorMedium
}

// GetMinDurationForExposure returns the weighted minutes needed for an exposure day
func (m *MatchingConfig) GetMinDurationForExposure() int {
	if m.MinDurationForExposure == nil {
		return DefaultMinDurationForExposure
	}
	return *m.MinDurationForExposure
}

// GetMaxClockSkew returns the accepted clock skew; zero disables the check
func (b *BackendConfig) GetMaxClockSkew() time.Duration {
	return parseDuration(b.MaxClockSkew, DefaultMaxClockSkew)
}

// GetSyncGracePeriod returns how long failures stay silent after the last success
func (e *ErrorsConfig) GetSyncGracePeriod() time.Duration {
	return parseDuration(e.SyncGracePeriod, DefaultSyncGracePeriod)
}

// GetNotificationGracePeriod returns how long a surfaced error waits before notification
func (e *ErrorsConfig) GetNotificationGracePeriod() time.Duration {
	return parseDuration(e.NotificationGracePeriod, DefaultNotificationGracePeriod)
}

// GetCalendar returns the calendar for the configured timezone
func (c *CalendarConfig) GetCalendar() daybucket.Calendar {
	cal, err := daybucket.LoadCalendar(c.Timezone)
	if err != nil {
		return daybucket.NewCalendar(nil)
	}
	return cal
}

// SyncInterval returns the scheduler period derived from SyncsPerDay
func (s *SyncConfig) SyncInterval() time.Duration {
	n := s.SyncsPerDay
	if n < MinSyncsPerDay {
		n = MinSyncsPerDay
	}
	return 24 * time.Hour / time.Duration(n)
}

// GetConnMaxLifetime returns the parsed connection lifetime, zero when unset
func (d *DatabaseConfig) GetConnMaxLifetime() time.Duration {
	return parseDuration(d.ConnMaxLifetime, 0)
}
