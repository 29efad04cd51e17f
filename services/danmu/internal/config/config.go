package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/example/danmu-platform/services/danmu/internal/upstream/caiji"
	"github.com/example/danmu-platform/services/danmu/internal/upstream/dmku"
	"github.com/example/danmu-platform/services/danmu/internal/upstream/douban"
	"github.com/example/danmu-platform/services/danmu/internal/upstream/so360"
)

type Mode string

const (
	ModeStandard Mode = "standard"
	ModeEdge     Mode = "edge"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStandard:
		return ModeStandard, nil
	case ModeEdge:
		return ModeEdge, nil
	}
	return "", fmt.Errorf("unknown DANMU_MODE %q", s)
}

type Config struct {
	Mode Mode

	ResolveCacheSize int
	ResolveCacheTTL  time.Duration
	CommentCacheSize int
	CommentCacheTTL  time.Duration
	StaleAfter       time.Duration

	// DatabaseURL selects the persisted tier: a postgres URL, a sqlite path,
	// or empty for an in-process table.
	DatabaseURL      string
	RedisURL         string
	CommentSharedTTL time.Duration

	NATSURL             string
	InvalidationSubject string
	JWTSecret           string

	DoubanAPIBase  string
	DoubanPageBase string
	DoubanAPIKey   string
	So360Base      string
	CaijiBase      string
	DanmuMirrors   []string
	ScraperBaseURL string
	CatalogTimeout time.Duration
	SearchTimeout  time.Duration

	RetryAttempts      int
	RetryStep          time.Duration
	CBMaxRequests      uint32
	CBInterval         time.Duration
	CBTimeout          time.Duration
	CBFailureThreshold uint32
}

// fileConfig is the TOML document named by DANMU_CONFIG. Durations are Go
// duration strings.
type fileConfig struct {
	Mode                string   `toml:"mode"`
	ResolveCacheSize    int      `toml:"resolve_cache_size"`
	ResolveCacheTTL     string   `toml:"resolve_cache_ttl"`
	CommentCacheSize    int      `toml:"comment_cache_size"`
	CommentCacheTTL     string   `toml:"comment_cache_ttl"`
	StaleAfter          string   `toml:"stale_after"`
	DatabaseURL         string   `toml:"database_url"`
	RedisURL            string   `toml:"redis_url"`
	CommentSharedTTL    string   `toml:"comment_shared_ttl"`
	NATSURL             string   `toml:"nats_url"`
	InvalidationSubject string   `toml:"cache_invalidation_subject"`
	DoubanAPIBase       string   `toml:"douban_api_base"`
	DoubanPageBase      string   `toml:"douban_page_base"`
	DoubanAPIKey        string   `toml:"douban_api_key"`
	So360Base           string   `toml:"so360_base"`
	CaijiBase           string   `toml:"caiji_base"`
	DanmuMirrors        []string `toml:"danmu_mirrors"`
	ScraperBaseURL      string   `toml:"scraper_base_url"`
	CatalogTimeout      string   `toml:"catalog_timeout"`
	SearchTimeout       string   `toml:"search_timeout"`
}

// Defaults returns the settings of mode before any file or env overrides.
func Defaults(mode Mode) Config {
	cfg := Config{
		Mode:                mode,
		ResolveCacheSize:    32,
		ResolveCacheTTL:     60 * time.Second,
		CommentCacheSize:    5,
		CommentCacheTTL:     60 * time.Second,
		StaleAfter:          6 * time.Hour,
		CommentSharedTTL:    10 * time.Minute,
		InvalidationSubject: "danmu.cache.invalidate",
		DoubanAPIBase:       douban.DefaultAPIBase,
		DoubanPageBase:      douban.DefaultPageBase,
		DoubanAPIKey:        douban.DefaultAPIKey,
		So360Base:           so360.DefaultBaseURL,
		CaijiBase:           caiji.DefaultBaseURL,
		DanmuMirrors:        append([]string(nil), dmku.DefaultMirrors...),
		CatalogTimeout:      15 * time.Second,
		SearchTimeout:       10 * time.Second,
		RetryAttempts:       2,
		RetryStep:           500 * time.Millisecond,
		CBMaxRequests:       5,
		CBInterval:          60 * time.Second,
		CBTimeout:           30 * time.Second,
		CBFailureThreshold:  5,
	}
	if mode == ModeEdge {
		cfg.ResolveCacheTTL = 2 * time.Hour
		cfg.CommentCacheTTL = 300 * time.Second
	}
	return cfg
}

// Load builds the service configuration: mode defaults, then the TOML file
// named by DANMU_CONFIG, then environment variables.
func Load() (Config, error) {
	return LoadFrom(os.Getenv("DANMU_CONFIG"))
}

// LoadFrom is Load reading the TOML file at path; empty skips the file.
func LoadFrom(path string) (Config, error) {
	var fc fileConfig
	if path = strings.TrimSpace(path); path != "" {
		if err := readFile(path, &fc); err != nil {
			return Config{}, err
		}
	}

	rawMode := strings.TrimSpace(os.Getenv("DANMU_MODE"))
	if rawMode == "" {
		rawMode = fc.Mode
	}
	mode, err := ParseMode(rawMode)
	if err != nil {
		return Config{}, err
	}

	cfg := Defaults(mode)
	if err := cfg.overlay(fc); err != nil {
		return Config{}, err
	}

	cfg.ResolveCacheSize = envInt("RESOLVE_CACHE_SIZE", cfg.ResolveCacheSize)
	cfg.ResolveCacheTTL = envDuration("RESOLVE_CACHE_TTL", cfg.ResolveCacheTTL)
	cfg.CommentCacheSize = envInt("COMMENT_CACHE_SIZE", cfg.CommentCacheSize)
	cfg.CommentCacheTTL = envDuration("COMMENT_CACHE_TTL", cfg.CommentCacheTTL)
	cfg.StaleAfter = envDuration("STALE_AFTER", cfg.StaleAfter)
	cfg.DatabaseURL = envString("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = envString("REDIS_URL", cfg.RedisURL)
	cfg.CommentSharedTTL = envDuration("COMMENT_SHARED_TTL", cfg.CommentSharedTTL)
	cfg.NATSURL = envString("NATS_URL", cfg.NATSURL)
	cfg.InvalidationSubject = envString("CACHE_INVALIDATION_SUBJECT", cfg.InvalidationSubject)
	cfg.JWTSecret = envString("JWT_SECRET", cfg.JWTSecret)
	cfg.DoubanAPIBase = envString("DOUBAN_API_BASE", cfg.DoubanAPIBase)
	cfg.DoubanPageBase = envString("DOUBAN_PAGE_BASE", cfg.DoubanPageBase)
	cfg.DoubanAPIKey = envString("DOUBAN_API_KEY", cfg.DoubanAPIKey)
	cfg.So360Base = envString("SO360_BASE", cfg.So360Base)
	cfg.CaijiBase = envString("CAIJI_BASE", cfg.CaijiBase)
	cfg.DanmuMirrors = envList("DANMU_MIRRORS", cfg.DanmuMirrors)
	cfg.ScraperBaseURL = envString("SCRAPER_BASE_URL", cfg.ScraperBaseURL)
	cfg.CatalogTimeout = envDuration("CATALOG_TIMEOUT", cfg.CatalogTimeout)
	cfg.SearchTimeout = envDuration("SEARCH_TIMEOUT", cfg.SearchTimeout)
	cfg.RetryAttempts = envInt("RETRY_ATTEMPTS", cfg.RetryAttempts)
	cfg.RetryStep = envDuration("RETRY_STEP", cfg.RetryStep)
	cfg.CBMaxRequests = uint32(envInt("CB_MAX_REQUESTS", int(cfg.CBMaxRequests)))
	cfg.CBInterval = envDuration("CB_INTERVAL", cfg.CBInterval)
	cfg.CBTimeout = envDuration("CB_TIMEOUT", cfg.CBTimeout)
	cfg.CBFailureThreshold = uint32(envInt("CB_FAILURE_THRESHOLD", int(cfg.CBFailureThreshold)))

	if cfg.ResolveCacheSize <= 0 || cfg.CommentCacheSize <= 0 {
		return Config{}, errors.New("cache sizes must be positive")
	}
	if cfg.RetryAttempts < 1 {
		return Config{}, errors.New("RETRY_ATTEMPTS must be at least 1")
	}
	return cfg, nil
}

func readFile(path string, fc *fileConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) overlay(fc fileConfig) error {
	if fc.ResolveCacheSize > 0 {
		c.ResolveCacheSize = fc.ResolveCacheSize
	}
	if fc.CommentCacheSize > 0 {
		c.CommentCacheSize = fc.CommentCacheSize
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"resolve_cache_ttl", fc.ResolveCacheTTL, &c.ResolveCacheTTL},
		{"comment_cache_ttl", fc.CommentCacheTTL, &c.CommentCacheTTL},
		{"stale_after", fc.StaleAfter, &c.StaleAfter},
		{"comment_shared_ttl", fc.CommentSharedTTL, &c.CommentSharedTTL},
		{"catalog_timeout", fc.CatalogTimeout, &c.CatalogTimeout},
		{"search_timeout", fc.SearchTimeout, &c.SearchTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config %s: %w", d.key, err)
		}
		*d.dst = v
	}
	strs := []struct {
		raw string
		dst *string
	}{
		{fc.DatabaseURL, &c.DatabaseURL},
		{fc.RedisURL, &c.RedisURL},
		{fc.NATSURL, &c.NATSURL},
		{fc.InvalidationSubject, &c.InvalidationSubject},
		{fc.DoubanAPIBase, &c.DoubanAPIBase},
		{fc.DoubanPageBase, &c.DoubanPageBase},
		{fc.DoubanAPIKey, &c.DoubanAPIKey},
		{fc.So360Base, &c.So360Base},
		{fc.CaijiBase, &c.CaijiBase},
		{fc.ScraperBaseURL, &c.ScraperBaseURL},
	}
	for _, s := range strs {
		if v := strings.TrimSpace(s.raw); v != "" {
			*s.dst = v
		}
	}
	if len(fc.DanmuMirrors) > 0 {
		c.DanmuMirrors = fc.DanmuMirrors
	}
	return nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
