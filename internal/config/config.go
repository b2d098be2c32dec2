// Package config defines the server configuration, loaded from an HCL
// file.
package config

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/hashicorp-forge/quill/pkg/keygen"
)

// Config is the top-level server configuration.
type Config struct {
	Server    *Server    `hcl:"server,block"`
	Database  *Database  `hcl:"database,block"`
	Documents *Documents `hcl:"documents,block"`
	Tokens    *Tokens    `hcl:"tokens,block"`
	Webhooks  *Webhooks  `hcl:"webhooks,block"`
	Render    *Render    `hcl:"render,block"`
}

// Server configures the HTTP listener.
type Server struct {
	// Addr is the listen address, host:port.
	Addr string `hcl:"addr,optional"`

	// BaseURL is the externally reachable URL of this server, used when
	// building absolute document URLs.
	BaseURL string `hcl:"base_url,optional"`

	// MaxDocumentSize caps the request body size in bytes for document
	// writes. Zero disables the cap.
	MaxDocumentSize int64 `hcl:"max_document_size,optional"`

	// RateLimit throttles mutating requests. Absent means no limiting.
	RateLimit *RateLimit `hcl:"rate_limit,block"`
}

// RateLimit configures throttling of document writes per client.
type RateLimit struct {
	// Requests is how many mutating requests a client may make per
	// window. Zero disables limiting.
	Requests int `hcl:"requests,optional"`

	// Window is the limiting window as a duration string.
	Window string `hcl:"window,optional"`

	window time.Duration
}

// Database configures the storage backend.
type Database struct {
	// Driver selects the backend, "sqlite" or "postgres".
	Driver string `hcl:"driver,optional"`

	// Path is the sqlite database file.
	Path string `hcl:"path,optional"`

	// Postgres connection settings.
	Host     string `hcl:"host,optional"`
	Port     int    `hcl:"port,optional"`
	User     string `hcl:"user,optional"`
	Password string `hcl:"password,optional"`
	DBName   string `hcl:"dbname,optional"`
	SSLMode  string `hcl:"sslmode,optional"`
}

// Documents configures document behavior.
type Documents struct {
	// KeyLength is the length of generated document keys.
	KeyLength int `hcl:"key_length,optional"`

	// MaxKeyAttempts bounds key generation retries on collision.
	MaxKeyAttempts int `hcl:"max_key_attempts,optional"`

	// PublicRead controls whether reads require a token. Defaults to
	// true: anyone holding a document key may read it.
	PublicRead *bool `hcl:"public_read,optional"`

	// SweepInterval is how often expired documents are removed, as a
	// duration string. "0" disables the background sweeper.
	SweepInterval string `hcl:"sweep_interval,optional"`

	sweepInterval time.Duration
}

// Tokens configures document token issuance.
type Tokens struct {
	// Secret signs document tokens. If empty, a random secret is
	// generated at startup and tokens do not survive restarts.
	Secret string `hcl:"secret,optional"`

	// DefaultTTL is the lifetime of issued tokens as a duration string.
	// "0" means tokens never expire.
	DefaultTTL string `hcl:"default_ttl,optional"`

	defaultTTL time.Duration
}

// Webhooks configures event delivery.
type Webhooks struct {
	// Timeout bounds one delivery attempt, as a duration string.
	Timeout string `hcl:"timeout,optional"`

	// MaxRetries is the number of re-attempts after a failed delivery.
	MaxRetries int `hcl:"max_retries,optional"`

	// Backoff is the delay before the first retry, as a duration string.
	Backoff string `hcl:"backoff,optional"`

	timeout time.Duration
	backoff time.Duration
}

// Render configures syntax highlighting.
type Render struct {
	// Style is the chroma style name.
	Style string `hcl:"style,optional"`

	// MaxHighlightSize caps the content length (in runes) that gets
	// highlighted; larger files render as plain text. Zero disables the
	// cap.
	MaxHighlightSize int `hcl:"max_highlight_size,optional"`

	// Disabled turns off highlighting entirely.
	Disabled bool `hcl:"disabled,optional"`
}

// NewConfig parses the HCL file at path, fills in defaults, and
// validates the result.
func NewConfig(path string) (*Config, error) {
	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("error decoding configuration file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default builds a configuration with every field at its default, backed
// by a sqlite database at dbPath. Used by the zero-config serve mode.
func Default(dbPath string) *Config {
	cfg := &Config{
		Database: &Database{
			Driver: "sqlite",
			Path:   dbPath,
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server == nil {
		c.Server = &Server{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:8080"
	}
	if c.Server.RateLimit != nil && c.Server.RateLimit.Window == "" {
		c.Server.RateLimit.Window = "1m"
	}

	if c.Database == nil {
		c.Database = &Database{}
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "quill.db"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}

	if c.Documents == nil {
		c.Documents = &Documents{}
	}
	if c.Documents.KeyLength == 0 {
		c.Documents.KeyLength = keygen.DefaultLength
	}
	if c.Documents.SweepInterval == "" {
		c.Documents.SweepInterval = "10m"
	}

	if c.Tokens == nil {
		c.Tokens = &Tokens{}
	}
	if c.Tokens.DefaultTTL == "" {
		c.Tokens.DefaultTTL = "0"
	}

	if c.Webhooks == nil {
		c.Webhooks = &Webhooks{}
	}
	if c.Webhooks.Timeout == "" {
		c.Webhooks.Timeout = "10s"
	}
	if c.Webhooks.MaxRetries == 0 {
		c.Webhooks.MaxRetries = 3
	}
	if c.Webhooks.Backoff == "" {
		c.Webhooks.Backoff = "1s"
	}

	if c.Render == nil {
		c.Render = &Render{}
	}
	if c.Render.Style == "" {
		c.Render.Style = "onedark"
	}
}

// Validate checks the configuration and parses duration fields. All
// problems are reported together.
func (c *Config) Validate() error {
	var result *multierror.Error

	if err := validation.ValidateStruct(c.Database,
		validation.Field(&c.Database.Driver, validation.Required, validation.In("sqlite", "postgres")),
	); err != nil {
		result = multierror.Append(result, fmt.Errorf("database: %w", err))
	}
	if c.Database.Driver == "postgres" {
		if err := validation.ValidateStruct(c.Database,
			validation.Field(&c.Database.Host, validation.Required),
			validation.Field(&c.Database.User, validation.Required),
			validation.Field(&c.Database.DBName, validation.Required),
		); err != nil {
			result = multierror.Append(result, fmt.Errorf("database: %w", err))
		}
	}

	if err := validation.ValidateStruct(c.Documents,
		validation.Field(&c.Documents.KeyLength, validation.Min(keygen.MinLength)),
		validation.Field(&c.Documents.MaxKeyAttempts, validation.Min(0)),
	); err != nil {
		result = multierror.Append(result, fmt.Errorf("documents: %w", err))
	}

	if c.Server.BaseURL != "" {
		if err := validation.Validate(c.Server.BaseURL, is.URL); err != nil {
			result = multierror.Append(result, fmt.Errorf("server: base_url: %w", err))
		}
	}

	if rl := c.Server.RateLimit; rl != nil {
		if rl.Requests < 0 {
			result = multierror.Append(result, fmt.Errorf("server: rate_limit: requests must not be negative"))
		}
		var err error
		if rl.window, err = parseDuration("server.rate_limit.window", rl.Window); err != nil {
			result = multierror.Append(result, err)
		} else if rl.Requests > 0 && rl.window <= 0 {
			result = multierror.Append(result, fmt.Errorf("server: rate_limit: window must be positive"))
		}
	}

	var err error
	if c.Documents.sweepInterval, err = parseDuration("documents.sweep_interval", c.Documents.SweepInterval); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Tokens.defaultTTL, err = parseDuration("tokens.default_ttl", c.Tokens.DefaultTTL); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Webhooks.timeout, err = parseDuration("webhooks.timeout", c.Webhooks.Timeout); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Webhooks.backoff, err = parseDuration("webhooks.backoff", c.Webhooks.Backoff); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", field, value)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must not be negative", field)
	}
	return d, nil
}

// Enabled reports whether the limiter should be installed. Only valid
// after Validate.
func (r *RateLimit) Enabled() bool {
	return r != nil && r.Requests > 0 && r.window > 0
}

// WindowDuration is the parsed limiting window. Only valid after
// Validate.
func (r *RateLimit) WindowDuration() time.Duration { return r.window }

// PublicReadEnabled reports whether reads are token-free.
func (d *Documents) PublicReadEnabled() bool {
	return d.PublicRead == nil || *d.PublicRead
}

// SweepIntervalDuration is the parsed sweep interval. Only valid after
// Validate.
func (d *Documents) SweepIntervalDuration() time.Duration { return d.sweepInterval }

// DefaultTTLDuration is the parsed token TTL. Only valid after Validate.
func (t *Tokens) DefaultTTLDuration() time.Duration { return t.defaultTTL }

// TimeoutDuration is the parsed delivery timeout. Only valid after
// Validate.
func (w *Webhooks) TimeoutDuration() time.Duration { return w.timeout }

// BackoffDuration is the parsed retry backoff. Only valid after Validate.
func (w *Webhooks) BackoffDuration() time.Duration { return w.backoff }
