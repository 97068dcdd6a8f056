package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for boxharvest.
type Config struct {
	Harvest HarvestConfig `mapstructure:"harvest" yaml:"harvest"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// HarvestConfig controls the year loop and the extraction rules.
type HarvestConfig struct {
	StartYear       int           `mapstructure:"start_year"       yaml:"start_year"`
	EndYear         int           `mapstructure:"end_year"         yaml:"end_year"`
	BaseURL         string        `mapstructure:"base_url"         yaml:"base_url"`
	OnError         string        `mapstructure:"on_error"         yaml:"on_error"` // abort, skip
	PolitenessDelay time.Duration `mapstructure:"politeness_delay" yaml:"politeness_delay"`
	RespectRobots   bool          `mapstructure:"respect_robots"   yaml:"respect_robots"`
	Rank            FieldRule     `mapstructure:"rank"             yaml:"rank"`
	Name            FieldRule     `mapstructure:"name"             yaml:"name"`
}

// FieldRule describes which elements feed one column.
type FieldRule struct {
	Tag     string    `mapstructure:"tag"     yaml:"tag"`
	Attr    string    `mapstructure:"attr"    yaml:"attr"`
	Pattern string    `mapstructure:"pattern" yaml:"pattern"`
	XPath   string    `mapstructure:"xpath"   yaml:"xpath"`
	Exclude *RuleSpec `mapstructure:"exclude" yaml:"exclude"`
}

// RuleSpec is a bare tag/attribute/pattern triple.
type RuleSpec struct {
	Tag     string `mapstructure:"tag"     yaml:"tag"`
	Attr    string `mapstructure:"attr"    yaml:"attr"`
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
}

// FetcherConfig controls the page fetcher.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"             yaml:"type"` // http, browser
	RequestTimeout  time.Duration `mapstructure:"request_timeout"  yaml:"request_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"      yaml:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"      yaml:"retry_delay"`
	MaxRetryDelay   time.Duration `mapstructure:"max_retry_delay"  yaml:"max_retry_delay"`
	UserAgents      []string      `mapstructure:"user_agents"      yaml:"user_agents"`
	FollowRedirects bool          `mapstructure:"follow_redirects" yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"    yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"    yaml:"max_body_size"`
	Stealth         bool          `mapstructure:"stealth"          yaml:"stealth"`
}

// StorageConfig controls output/storage.
type StorageConfig struct {
	Type       string       `mapstructure:"type"        yaml:"type"` // csv, json, jsonl
	OutputPath string       `mapstructure:"output_path" yaml:"output_path"`
	SQLite     SQLiteConfig `mapstructure:"sqlite"      yaml:"sqlite"`
	Mongo      MongoConfig  `mapstructure:"mongo"       yaml:"mongo"`
}

// SQLiteConfig controls the optional SQLite mirror.
type SQLiteConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
	Table   string `mapstructure:"table"   yaml:"table"`
}

// MongoConfig controls the optional MongoDB mirror.
type MongoConfig struct {
	Enabled    bool   `mapstructure:"enabled"    yaml:"enabled"`
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"` // stderr, file, both
	Dir    string `mapstructure:"dir"    yaml:"dir"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// Listing page defaults.
const (
	DefaultBaseURL     = "https://www.imdb.com/search/title/"
	DefaultRankPattern = `^lister-item-index\sunbold\stext-primary$`
	DefaultNamePattern = `^/title/[a-z]{2}[0-9]+/$`
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Harvest: HarvestConfig{
			StartYear:       1995,
			EndYear:         2021,
			BaseURL:         DefaultBaseURL,
			OnError:         "skip",
			PolitenessDelay: 1 * time.Second,
			Rank: FieldRule{
				Tag:     "span",
				Attr:    "class",
				Pattern: DefaultRankPattern,
			},
			Name: FieldRule{
				Tag:     "a",
				Attr:    "href",
				Pattern: DefaultNamePattern,
				Exclude: &RuleSpec{
					Tag:     "img",
					Attr:    "height",
					Pattern: `^[0-9]{2}$`,
				},
			},
		},
		Fetcher: FetcherConfig{
			Type:           "http",
			RequestTimeout: 30 * time.Second,
			MaxRetries:     3,
			RetryDelay:     2 * time.Second,
			MaxRetryDelay:  30 * time.Second,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
		},
		Storage: StorageConfig{
			Type:       "csv",
			OutputPath: "./output/box_office_top_50_movies.csv",
			SQLite: SQLiteConfig{
				Path:  "./output/box_office.db",
				Table: "box_office",
			},
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "boxharvest",
				Collection: "box_office",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "both",
			Dir:    "./log",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
