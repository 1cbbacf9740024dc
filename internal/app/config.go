package app

import (
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/captorfm/gqlbroker/internal/broker"
	"github.com/captorfm/gqlbroker/internal/observability"
	"github.com/captorfm/gqlbroker/internal/tokenstore"
)

// LogFormat is the encoding of stderr logs.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// StorageKind names a token persistence backend.
type StorageKind string

const (
	StorageFile    StorageKind = "file"
	StorageEnv     StorageKind = "env"
	StorageKeyring StorageKind = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat           = LogFormatText
	DefaultConfigTelemetryExporter   = observability.ExporterNone
	DefaultConfigEnvironment         = "prod"
	DefaultConfigBaseURL             = "captor.se"
	DefaultConfigTokenURL            = "https://auth.captor.se/token"
	DefaultConfigTokenTimeout        = 10 * time.Second
	DefaultConfigAuthStorage         = StorageFile
	DefaultConfigAuthFileName        = ".captor_streamlit"
	DefaultConfigKeyringService      = "captor-gqlbroker"
	DefaultConfigLoginPort           = 6789
	DefaultConfigLoginTimeout        = 5 * time.Minute
	DefaultConfigConnectivityAddress = "8.8.8.8:53"
	DefaultConfigConnectivityTimeout = 3 * time.Second
	DefaultConfigGraphQLTimeout      = 10 * time.Second
)

// TelemetryConfig selects where log records are exported.
type TelemetryConfig struct {
	Exporter observability.Exporter `json:"exporter" validate:"oneof=none stdout otlpgrpc otlphttp"`
}

// AuthConfig describes where tokens are persisted. Only the field matching
// Storage is used.
type AuthConfig struct {
	Storage StorageKind `json:"storage" validate:"required,oneof=file env keyring"`

	File        string `json:"file,omitempty"`
	EnvKey      string `json:"env_key,omitempty"`
	KeyringUser string `json:"keyring_user,omitempty"`
}

func (a *AuthConfig) applyDefaults() error {
	if a.Storage == "" {
		a.Storage = DefaultConfigAuthStorage
	}

	switch a.Storage {
	case StorageFile:
		if a.File != "" {
			return nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
		}
		a.File = filepath.Join(home, DefaultConfigAuthFileName)
	case StorageKeyring:
		if a.KeyringUser != "" {
			return nil
		}
		current, err := user.Current()
		if err != nil {
			return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
		}
		a.KeyringUser = current.Username
	}
	// env_key has no default
	return nil
}

func (a *AuthConfig) validate() error {
	var missing string
	switch {
	case a.Storage == StorageFile && a.File == "":
		missing = "auth.file"
	case a.Storage == StorageEnv && a.EnvKey == "":
		missing = "auth.env_key"
	case a.Storage == StorageKeyring && a.KeyringUser == "":
		missing = "auth.keyring_user"
	}
	if missing != "" {
		return fmt.Errorf("%s required for %s storage", missing, a.Storage)
	}
	return nil
}

// NewTokenStore builds the backend selected by Storage.
func (a *AuthConfig) NewTokenStore() (tokenstore.TokenStore, error) {
	switch a.Storage {
	case StorageFile:
		return tokenstore.NewFileStore(a.File)
	case StorageEnv:
		return tokenstore.NewEnvStore(a.EnvKey)
	case StorageKeyring:
		return tokenstore.NewKeyringStore(DefaultConfigKeyringService, a.KeyringUser)
	}
	return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
}

// LoginConfig holds interactive login settings.
type LoginConfig struct {
	// Port of the callback listener. An explicit 0 picks a free port.
	Port *uint16 `json:"port"`

	// Timeout for the browser callback. Negative waits until cancelled.
	Timeout time.Duration `json:"timeout"`

	ConnectivityAddress string        `json:"connectivity_address" validate:"hostname_port"`
	ConnectivityTimeout time.Duration `json:"connectivity_timeout" validate:"gt=0"`
}

// GraphQLConfig holds query settings.
type GraphQLConfig struct {
	Timeout time.Duration `json:"timeout" validate:"gt=0"`
}

// Config is the complete runtime configuration of the captor CLI.
type Config struct {
	LogLevel  slog.Level      `json:"log_level"`
	LogFormat LogFormat       `json:"log_format" validate:"oneof=text json"`
	Telemetry TelemetryConfig `json:"telemetry"`

	// Environment is the audience tokens are requested for.
	Environment string `json:"environment" validate:"required,oneof=prod test"`

	// BaseURL is the apex domain hosting the portal and the API.
	BaseURL  string `json:"base_url" validate:"required,hostname_rfc1123"`
	TokenURL string `json:"token_url" validate:"required,url"`

	// TokenTimeout bounds one credential exchange against TokenURL.
	TokenTimeout time.Duration `json:"token_timeout" validate:"gt=0"`

	Auth    AuthConfig    `json:"auth"`
	Login   LoginConfig   `json:"login"`
	GraphQL GraphQLConfig `json:"graphql"`
}

// Default returns a Config holding only defaults.
func Default() (*Config, error) {
	var cfg Config
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills every zero-valued field. A negative Login.Timeout is
// kept as is.
func (c *Config) ApplyDefaults() error {
	setDefault(&c.LogFormat, DefaultConfigLogFormat)
	setDefault(&c.Telemetry.Exporter, DefaultConfigTelemetryExporter)
	setDefault(&c.Environment, DefaultConfigEnvironment)
	setDefault(&c.BaseURL, DefaultConfigBaseURL)
	setDefault(&c.TokenURL, DefaultConfigTokenURL)
	setDefault(&c.TokenTimeout, DefaultConfigTokenTimeout)
	if c.Login.Port == nil {
		c.Login.Port = lo.ToPtr(uint16(DefaultConfigLoginPort))
	}
	setDefault(&c.Login.Timeout, DefaultConfigLoginTimeout)
	setDefault(&c.Login.ConnectivityAddress, DefaultConfigConnectivityAddress)
	setDefault(&c.Login.ConnectivityTimeout, DefaultConfigConnectivityTimeout)
	setDefault(&c.GraphQL.Timeout, DefaultConfigGraphQLTimeout)

	return c.Auth.applyDefaults()
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// Validate checks struct tags, then the storage-specific settings.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	return c.Auth.validate()
}

// GraphQLURL returns the API endpoint for the configured environment,
// e.g. https://api.captor.se/graphql or https://testapi.captor.se/graphql.
func (c *Config) GraphQLURL() string {
	return fmt.Sprintf("https://%sapi.%s/graphql", broker.EnvironmentPrefix(c.Environment), c.BaseURL)
}

// BrokerConfig maps the login settings onto broker.Config.
func (c *Config) BrokerConfig() broker.Config {
	return broker.Config{
		BaseHost:            c.BaseURL,
		Port:                int(lo.FromPtr(c.Login.Port)),
		CallbackTimeout:     max(c.Login.Timeout, 0),
		ConnectivityAddress: c.Login.ConnectivityAddress,
		ConnectivityTimeout: c.Login.ConnectivityTimeout,
	}
}
