// Package config loads arstate settings from defaults, an optional YAML file,
// a .env file and ARSTATE_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Convert  ConvertConfig  `yaml:"convert"`
	Compress CompressConfig `yaml:"compress"`
	Estimate EstimateConfig `yaml:"estimate"`
	History  HistoryConfig  `yaml:"history"`
	Server   ServerConfig   `yaml:"server"`
	Watch    WatchConfig    `yaml:"watch"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ConvertConfig struct {
	// BaseScale is the document rasterization scale before the request's
	// resolution percentage is applied.
	BaseScale float64 `yaml:"base_scale"`
	Target    string  `yaml:"target"`
	Quality   int     `yaml:"quality"`
	Scale     float64 `yaml:"scale"`
	OutputDir string  `yaml:"output_dir"`
}

type CompressConfig struct {
	BaseScale float64 `yaml:"base_scale"`
	Quality   int     `yaml:"quality"`
}

type EstimateConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

type HistoryConfig struct {
	Path string `yaml:"path"`
	User string `yaml:"user"`
}

type ServerConfig struct {
	Addr          string        `yaml:"addr"`
	MaxUploadMB   int64         `yaml:"max_upload_mb"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

type WatchConfig struct {
	StabilityDelay time.Duration `yaml:"stability_delay"`
}

func Defaults() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Convert: ConvertConfig{
			BaseScale: 2.0,
			Target:    "png",
			Quality:   90,
			Scale:     100,
			OutputDir: "converted",
		},
		Compress: CompressConfig{BaseScale: 1.5, Quality: 70},
		Estimate: EstimateConfig{Debounce: 500 * time.Millisecond},
		History:  HistoryConfig{Path: "arstate.db", User: "guest"},
		Server: ServerConfig{
			Addr:          ":8080",
			MaxUploadMB:   100,
			ShutdownGrace: 5 * time.Second,
		},
		Watch: WatchConfig{StabilityDelay: time.Second},
	}
}

// Load returns the effective configuration. An empty path skips the YAML file.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// A missing .env is normal.
	_ = godotenv.Load()

	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Convert.BaseScale <= 0 {
		return fmt.Errorf("convert.base_scale must be positive")
	}
	if c.Compress.BaseScale <= 0 {
		return fmt.Errorf("compress.base_scale must be positive")
	}
	if c.Convert.Quality < 1 || c.Convert.Quality > 101 {
		return fmt.Errorf("convert.quality must be within [1,101]")
	}
	if c.Compress.Quality < 1 || c.Compress.Quality > 100 {
		return fmt.Errorf("compress.quality must be within [1,100]")
	}
	if c.Convert.Scale <= 0 || c.Convert.Scale > 100 {
		return fmt.Errorf("convert.scale must be within (0,100]")
	}
	if c.Estimate.Debounce < 0 {
		return fmt.Errorf("estimate.debounce must not be negative")
	}
	return nil
}

func applyEnv(c *Config) {
	c.Log.Level = getEnv("ARSTATE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("ARSTATE_LOG_FORMAT", c.Log.Format)
	c.Convert.BaseScale = getEnvFloat("ARSTATE_CONVERT_BASE_SCALE", c.Convert.BaseScale)
	c.Convert.Target = getEnv("ARSTATE_CONVERT_TARGET", c.Convert.Target)
	c.Convert.Quality = getEnvInt("ARSTATE_CONVERT_QUALITY", c.Convert.Quality)
	c.Convert.Scale = getEnvFloat("ARSTATE_CONVERT_SCALE", c.Convert.Scale)
	c.Convert.OutputDir = getEnv("ARSTATE_OUTPUT_DIR", c.Convert.OutputDir)
	c.Compress.BaseScale = getEnvFloat("ARSTATE_COMPRESS_BASE_SCALE", c.Compress.BaseScale)
	c.Compress.Quality = getEnvInt("ARSTATE_COMPRESS_QUALITY", c.Compress.Quality)
	c.Estimate.Debounce = getEnvDuration("ARSTATE_ESTIMATE_DEBOUNCE", c.Estimate.Debounce)
	c.History.Path = getEnv("ARSTATE_HISTORY_PATH", c.History.Path)
	c.History.User = getEnv("ARSTATE_USER", c.History.User)
	c.Server.Addr = getEnv("ARSTATE_ADDR", c.Server.Addr)
	c.Server.MaxUploadMB = int64(getEnvInt("ARSTATE_MAX_UPLOAD_MB", int(c.Server.MaxUploadMB)))
	c.Watch.StabilityDelay = getEnvDuration("ARSTATE_WATCH_STABILITY_DELAY", c.Watch.StabilityDelay)
}

func getEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
