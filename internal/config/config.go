package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort            = 8080
	defaultDataDir         = "data"
	defaultLibraryDir      = "library"
	defaultAPIBaseURL      = "https://api.lib.social/api"
	defaultImageHost       = "img33.imgslib.link"
	defaultMetadataTimeout = 10 * time.Second
	defaultPageTimeout     = 15 * time.Second
	defaultThumbWidth      = 100
	defaultThumbHeight     = 150
)

// Search holds the fixed allow-list sent with every title search.
type Search struct {
	SiteIDs  []int `yaml:"site_ids"`
	Statuses []int `yaml:"statuses"`
	Types    []int `yaml:"types"`
}

// Config describes runtime configuration for the service.
type Config struct {
	Port            int           `yaml:"port"`
	DataDir         string        `yaml:"data_dir"`
	LibraryDir      string        `yaml:"library_dir"`
	APIBaseURL      string        `yaml:"api_base_url"`
	ImageHost       string        `yaml:"image_host"`
	MetadataTimeout time.Duration `yaml:"metadata_timeout"`
	PageTimeout     time.Duration `yaml:"page_timeout"`
	ThumbnailWidth  int           `yaml:"thumbnail_width"`
	ThumbnailHeight int           `yaml:"thumbnail_height"`
	Search          Search        `yaml:"search"`
}

func defaultSearch() Search {
	return Search{
		SiteIDs:  []int{1},
		Statuses: []int{1, 2, 4},
		Types:    []int{1, 5},
	}
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Port:            defaultPort,
		DataDir:         defaultDataDir,
		LibraryDir:      defaultLibraryDir,
		APIBaseURL:      defaultAPIBaseURL,
		ImageHost:       defaultImageHost,
		MetadataTimeout: defaultMetadataTimeout,
		PageTimeout:     defaultPageTimeout,
		ThumbnailWidth:  defaultThumbWidth,
		ThumbnailHeight: defaultThumbHeight,
		Search:          defaultSearch(),
	}
}

// Load reads YAML config from the provided path. If the file does not exist
// or is empty, defaults are returned with no error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	normalize(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	if cfg.LibraryDir == "" {
		cfg.LibraryDir = defaultLibraryDir
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	cfg.ImageHost = strings.Trim(strings.TrimSpace(cfg.ImageHost), "/")
	if cfg.ImageHost == "" {
		cfg.ImageHost = defaultImageHost
	}
	if cfg.ThumbnailWidth == 0 {
		cfg.ThumbnailWidth = defaultThumbWidth
	}
	if cfg.ThumbnailHeight == 0 {
		cfg.ThumbnailHeight = defaultThumbHeight
	}
	defaults := defaultSearch()
	if len(cfg.Search.SiteIDs) == 0 {
		cfg.Search.SiteIDs = defaults.SiteIDs
	}
	if len(cfg.Search.Statuses) == 0 {
		cfg.Search.Statuses = defaults.Statuses
	}
	if len(cfg.Search.Types) == 0 {
		cfg.Search.Types = defaults.Types
	}
}

// timeouts must stay bounded: a zero or negative value would let a stalled
// remote block a worker forever
func validate(cfg Config) error {
	if cfg.MetadataTimeout <= 0 {
		return fmt.Errorf("invalid metadata_timeout: %s (must be > 0)", cfg.MetadataTimeout)
	}
	if cfg.PageTimeout <= 0 {
		return fmt.Errorf("invalid page_timeout: %s (must be > 0)", cfg.PageTimeout)
	}
	if cfg.ThumbnailWidth < 0 || cfg.ThumbnailHeight < 0 {
		return fmt.Errorf("invalid thumbnail size: %dx%d", cfg.ThumbnailWidth, cfg.ThumbnailHeight)
	}
	parsed, err := url.Parse(cfg.APIBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid api_base_url: %q", cfg.APIBaseURL)
	}
	return nil
}
