// Package config loads server and validator settings from the environment.
//
// Variables are read with caarlos0/env. A .env file in the working directory
// is loaded once before the first parse; variables already set in the process
// environment take precedence over it.
package config

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	apierrors "github.com/olgasafonova/vat-registry-mcp-server/internal/errors"
	"github.com/olgasafonova/vat-registry-mcp-server/internal/vat"
)

// DefaultVIESEndpoint is the public VIES checkVat SOAP service.
const DefaultVIESEndpoint = "https://ec.europa.eu/taxation_customs/vies/services/checkVatService"

// ErrParsingConfig is returned when environment variables cannot be parsed into Config
var ErrParsingConfig = stderrors.New("failed to parse environment variables into config")

// Config holds every setting the server and CLI read from the environment.
type Config struct {
	EUOnly           bool     `env:"VAT_EU_ONLY" envDefault:"false"`
	AllowedCountries []string `env:"VAT_ALLOWED_COUNTRIES" envSeparator:","`
	RemoteCheck      bool     `env:"VAT_VIES_CHECK" envDefault:"false"`
	StrictChecksums  bool     `env:"VAT_STRICT_CHECKSUMS" envDefault:"false"`

	VIESEndpoint      string        `env:"VIES_ENDPOINT" envDefault:"https://ec.europa.eu/taxation_customs/vies/services/checkVatService"`
	VIESTimeout       time.Duration `env:"VIES_TIMEOUT" envDefault:"3s"`
	VIESMaxConcurrent int           `env:"VIES_MAX_CONCURRENT" envDefault:"5"`

	// HTTPAddr switches the server from stdio to streamable HTTP when set.
	HTTPAddr string `env:"HTTP_ADDR"`
	// HTTPRateLimit is requests per minute per client IP; 0 disables it.
	HTTPRateLimit   int   `env:"HTTP_RATE_LIMIT" envDefault:"60"`
	HTTPMaxBodySize int64 `env:"HTTP_MAX_BODY_SIZE" envDefault:"1048576"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

var dotenvLoaded sync.Once

// Load reads the process environment, after loading .env if present, and
// validates the result.
func Load() (*Config, error) {
	dotenvLoaded.Do(func() {
		// The .env file is optional
		_ = godotenv.Load()
	})
	return parse(env.Options{})
}

// LoadFile reads settings from a dotenv file only, ignoring the process
// environment. Used by the CLI --env-file flag.
func LoadFile(path string) (*Config, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return LoadEnvironment(vars)
}

// LoadEnvironment parses settings from an explicit variable map.
func LoadEnvironment(vars map[string]string) (*Config, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, stderrors.Join(ErrParsingConfig, err)
	}

	for i, code := range cfg.AllowedCountries {
		cfg.AllowedCountries[i] = strings.TrimSpace(code)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting as a ConfigError.
func (c *Config) Validate() error {
	for _, code := range c.AllowedCountries {
		if !vat.CountryCode(code).Valid() {
			return apierrors.NewConfigError("VAT_ALLOWED_COUNTRIES", code, apierrors.ErrInvalidCountryCode)
		}
	}

	if c.VIESTimeout <= 0 {
		return apierrors.NewConfigError("VIES_TIMEOUT", c.VIESTimeout.String(), stderrors.New("must be positive"))
	}
	if c.VIESMaxConcurrent <= 0 {
		return apierrors.NewConfigError("VIES_MAX_CONCURRENT", fmt.Sprint(c.VIESMaxConcurrent), stderrors.New("must be positive"))
	}

	if c.HTTPRateLimit < 0 {
		return apierrors.NewConfigError("HTTP_RATE_LIMIT", fmt.Sprint(c.HTTPRateLimit), stderrors.New("must not be negative"))
	}
	if c.HTTPMaxBodySize <= 0 {
		return apierrors.NewConfigError("HTTP_MAX_BODY_SIZE", fmt.Sprint(c.HTTPMaxBodySize), stderrors.New("must be positive"))
	}

	u, err := url.Parse(c.VIESEndpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apierrors.NewConfigError("VIES_ENDPOINT", c.VIESEndpoint, stderrors.New("must be an absolute http(s) URL"))
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return apierrors.NewConfigError("LOG_LEVEL", c.LogLevel, err)
	}
	return nil
}

// ValidatorConfig converts the settings into a vat.Config.
func (c *Config) ValidatorConfig() vat.Config {
	var allowed []vat.CountryCode
	for _, code := range c.AllowedCountries {
		allowed = append(allowed, vat.CountryCode(code))
	}
	return vat.Config{
		EUOnly:           c.EUOnly,
		AllowedCountries: allowed,
		RemoteCheck:      c.RemoteCheck,
		StrictChecksums:  c.StrictChecksums,
	}
}

// SlogLevel returns the configured log level. Validate has already rejected
// unknown names, so the fallback is never reached for a loaded Config.
func (c *Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}
