package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sflcompanion.app/configs"
	"sflcompanion.app/internal/persistence/respcache"
)

type Config struct {
	Server        Server        `yaml:"server"`
	Upstream      Upstream      `yaml:"upstream"`
	ResponseCache ResponseCache `yaml:"response_cache"`
	Catalog       Catalog       `yaml:"catalog"`
}

type Server struct {
	Addr                string `yaml:"addr"`
	ReadHeaderTimeoutMs int    `yaml:"read_header_timeout_ms"`
	// EnablePprof mounts /debug/pprof/ for loopback clients.
	EnablePprof bool `yaml:"enable_pprof"`
	// StaticDir is the root of the icon tree (images/...); empty disables it.
	StaticDir string `yaml:"static_dir"`
}

type Upstream struct {
	FarmBaseURL    string  `yaml:"farm_base_url"`
	LandBaseURL    string  `yaml:"land_base_url"`
	PriceURL       string  `yaml:"price_url"`
	TimeoutMs      int     `yaml:"timeout_ms"`
	SnapshotTTLSec int     `yaml:"snapshot_ttl_s"`
	PriceTTLSec    int     `yaml:"price_ttl_s"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
	UserAgent      string  `yaml:"user_agent"`
}

type ResponseCache struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	TTLSec      int    `yaml:"ttl_s"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
	RedisPrefix string `yaml:"redis_prefix"`
}

type Catalog struct {
	// Dir overrides the embedded catalogue when set.
	Dir string `yaml:"dir"`
}

// Defaults returns the configuration compiled into the binary.
func Defaults() Config {
	var c Config
	raw, err := fs.ReadFile(configs.FS, "server.yaml")
	if err != nil {
		panic(err)
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		panic(fmt.Errorf("embedded server.yaml: %w", err))
	}
	return c
}

// Load overlays the YAML file at path onto Defaults. A missing file is
// reported through found=false, not as an error.
func Load(path string) (c Config, found bool, err error) {
	c = Defaults()
	if path == "" {
		return c, false, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, false, nil
	}
	if err != nil {
		return c, false, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, true, fmt.Errorf("%s: %w", path, err)
	}
	return c, true, c.Validate()
}

// ApplyEnv applies SFL_* environment overrides.
func (c *Config) ApplyEnv() {
	c.Server.Addr = envString("SFL_ADDR", c.Server.Addr)
	c.Upstream.FarmBaseURL = envString("SFL_FARM_BASE_URL", c.Upstream.FarmBaseURL)
	c.Upstream.LandBaseURL = envString("SFL_LAND_BASE_URL", c.Upstream.LandBaseURL)
	c.Upstream.PriceURL = envString("SFL_PRICE_URL", c.Upstream.PriceURL)
	c.Upstream.TimeoutMs = envInt("SFL_UPSTREAM_TIMEOUT_MS", c.Upstream.TimeoutMs)
	c.Upstream.SnapshotTTLSec = envInt("SFL_SNAPSHOT_TTL_S", c.Upstream.SnapshotTTLSec)
	c.ResponseCache.Backend = envString("SFL_RESPCACHE_BACKEND", c.ResponseCache.Backend)
	c.ResponseCache.Path = envString("SFL_RESPCACHE_PATH", c.ResponseCache.Path)
	c.ResponseCache.TTLSec = envInt("SFL_RESPCACHE_TTL_S", c.ResponseCache.TTLSec)
	c.ResponseCache.RedisAddr = envString("SFL_REDIS_ADDR", c.ResponseCache.RedisAddr)
	c.Catalog.Dir = envString("SFL_CATALOG_DIR", c.Catalog.Dir)
	c.Server.StaticDir = envString("SFL_STATIC_DIR", c.Server.StaticDir)
	c.Server.EnablePprof = envBool("SFL_ENABLE_PPROF_HTTP", c.Server.EnablePprof)
	if envBool("SFL_RESPCACHE_DISABLE", false) {
		c.ResponseCache.Backend = "none"
	}
}

func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Server.Addr) == "" {
		problems = append(problems, "server.addr is empty")
	}
	if c.Upstream.FarmBaseURL == "" || c.Upstream.LandBaseURL == "" || c.Upstream.PriceURL == "" {
		problems = append(problems, "upstream URLs must all be set")
	}
	if c.Upstream.TimeoutMs <= 0 {
		problems = append(problems, "upstream.timeout_ms must be positive")
	}
	if c.Upstream.RateLimitRPS < 0 {
		problems = append(problems, "upstream.rate_limit_rps must not be negative")
	}
	switch strings.ToLower(c.ResponseCache.Backend) {
	case "", "sqlite", "redis", "none", "off":
	default:
		problems = append(problems, fmt.Sprintf("response_cache.backend %q is not sqlite|redis|none", c.ResponseCache.Backend))
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (s Server) ReadHeaderTimeout() time.Duration {
	return time.Duration(s.ReadHeaderTimeoutMs) * time.Millisecond
}

func (u Upstream) Timeout() time.Duration { return time.Duration(u.TimeoutMs) * time.Millisecond }

func (u Upstream) SnapshotTTL() time.Duration {
	return time.Duration(u.SnapshotTTLSec) * time.Second
}

func (u Upstream) PriceTTL() time.Duration { return time.Duration(u.PriceTTLSec) * time.Second }

// Store returns the respcache configuration.
func (r ResponseCache) Store() respcache.Config {
	return respcache.Config{
		Backend:     r.Backend,
		Path:        r.Path,
		TTL:         time.Duration(r.TTLSec) * time.Second,
		RedisAddr:   r.RedisAddr,
		RedisDB:     r.RedisDB,
		RedisPrefix: r.RedisPrefix,
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
