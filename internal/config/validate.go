package config

import (
	"fmt"
	"net/url"
	"regexp"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	h := cfg.Harvest
	if h.StartYear < 1 || h.EndYear < 1 {
		return fmt.Errorf("harvest.start_year and harvest.end_year must be > 0, got %d..%d", h.StartYear, h.EndYear)
	}
	if h.StartYear > h.EndYear {
		return fmt.Errorf("harvest.start_year (%d) must be <= harvest.end_year (%d)", h.StartYear, h.EndYear)
	}
	if err := ValidateURL(h.BaseURL); err != nil {
		return fmt.Errorf("harvest.base_url: %w", err)
	}
	if h.OnError != "abort" && h.OnError != "skip" {
		return fmt.Errorf("harvest.on_error must be 'abort' or 'skip', got %q", h.OnError)
	}
	if h.PolitenessDelay < 0 {
		return fmt.Errorf("harvest.politeness_delay must be >= 0")
	}
	if err := validateFieldRule("harvest.rank", h.Rank); err != nil {
		return err
	}
	if err := validateFieldRule("harvest.name", h.Name); err != nil {
		return err
	}

	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}
	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.MaxRetries < 0 {
		return fmt.Errorf("fetcher.max_retries must be >= 0, got %d", cfg.Fetcher.MaxRetries)
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	validStorageTypes := map[string]bool{
		"json": true, "jsonl": true, "csv": true,
	}
	if !validStorageTypes[cfg.Storage.Type] {
		return fmt.Errorf("storage.type %q is not supported (valid: csv, json, jsonl)", cfg.Storage.Type)
	}
	if cfg.Storage.OutputPath == "" {
		return fmt.Errorf("storage.output_path must be set")
	}
	if cfg.Storage.SQLite.Enabled && cfg.Storage.SQLite.Path == "" {
		return fmt.Errorf("storage.sqlite.path must be set when sqlite is enabled")
	}
	if cfg.Storage.Mongo.Enabled && cfg.Storage.Mongo.URI == "" {
		return fmt.Errorf("storage.mongo.uri must be set when mongo is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}
	switch cfg.Logging.Output {
	case "stderr":
	case "file", "both":
		if cfg.Logging.Dir == "" {
			return fmt.Errorf("logging.dir must be set when logging.output is %q", cfg.Logging.Output)
		}
	default:
		return fmt.Errorf("logging.output must be stderr/file/both, got %q", cfg.Logging.Output)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

func validateFieldRule(key string, r FieldRule) error {
	if r.XPath == "" && r.Tag == "" {
		return fmt.Errorf("%s.tag or %s.xpath must be set", key, key)
	}
	if _, err := regexp.Compile(r.Pattern); err != nil {
		return fmt.Errorf("%s.pattern: %w", key, err)
	}
	if r.Exclude != nil {
		if r.Exclude.Tag == "" || r.Exclude.Attr == "" {
			return fmt.Errorf("%s.exclude needs both tag and attr", key)
		}
		if _, err := regexp.Compile(r.Exclude.Pattern); err != nil {
			return fmt.Errorf("%s.exclude.pattern: %w", key, err)
		}
	}
	return nil
}

// ValidateURL checks if a URL string is usable as a listing base URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
