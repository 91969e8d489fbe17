package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "BGREMOVE_"

// Config 服务配置
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Upload  UploadConfig  `yaml:"upload"`
	Output  OutputConfig  `yaml:"output"`
	Remover RemoverConfig `yaml:"remover"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	Mode         string        `yaml:"mode"` // gin 模式：debug / release / test
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type UploadConfig struct {
	MaxBytes  int64 `yaml:"max_bytes"`
	MaxPixels int64 `yaml:"max_pixels"` // 宽 x 高上限
}

type OutputConfig struct {
	Filename        string `yaml:"filename"`
	RemovedFilename string `yaml:"removed_filename"`
}

type RemoverConfig struct {
	Backend     string        `yaml:"backend"` // rembg / passthrough
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int64         `yaml:"concurrency"`
	ReuseAlpha  bool          `yaml:"reuse_alpha"`
	Probe       string        `yaml:"probe"` // cron 表达式，空字符串表示不探测
	HealthPath  string        `yaml:"health_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text / json
}

const (
	BackendRembg       = "rembg"
	BackendPassthrough = "passthrough"
)

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			Mode:         "release",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		Upload: UploadConfig{MaxBytes: 5 * 1024 * 1024, MaxPixels: 40_000_000},
		Output: OutputConfig{
			Filename:        "edited_image.png",
			RemovedFilename: "removed_image.png",
		},
		Remover: RemoverConfig{
			Backend:     BackendRembg,
			BaseURL:     "http://127.0.0.1:7000",
			Model:       "u2net",
			Timeout:     2 * time.Minute,
			Concurrency: 2,
			Probe:       "@every 30s",
			HealthPath:  "/",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load 读取 YAML 配置；path 为空时只用默认值。环境变量最后覆盖。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"ADDR":         &c.Server.Addr,
		"MODE":         &c.Server.Mode,
		"REMOVER":      &c.Remover.Backend,
		"REMBG_URL":    &c.Remover.BaseURL,
		"REMBG_MODEL":  &c.Remover.Model,
		"REMBG_PROBE":  &c.Remover.Probe,
		"LOG_LEVEL":    &c.Logging.Level,
		"LOG_FORMAT":   &c.Logging.Format,
		"OUTPUT_NAME":  &c.Output.Filename,
		"REMOVED_NAME": &c.Output.RemovedFilename,
		"HEALTH_PATH":  &c.Remover.HealthPath,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_UPLOAD_BYTES: %w", envPrefix, err)
		}
		c.Upload.MaxBytes = n
	}
	if v, ok := os.LookupEnv(envPrefix + "MAX_UPLOAD_PIXELS"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_UPLOAD_PIXELS: %w", envPrefix, err)
		}
		c.Upload.MaxPixels = n
	}
	if v, ok := os.LookupEnv(envPrefix + "REMBG_CONCURRENCY"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sREMBG_CONCURRENCY: %w", envPrefix, err)
		}
		c.Remover.Concurrency = n
	}
	if v, ok := os.LookupEnv(envPrefix + "REMBG_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sREMBG_TIMEOUT: %w", envPrefix, err)
		}
		c.Remover.Timeout = d
	}
	if v, ok := os.LookupEnv(envPrefix + "REUSE_ALPHA"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sREUSE_ALPHA: %w", envPrefix, err)
		}
		c.Remover.ReuseAlpha = b
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive, got %d", c.Upload.MaxBytes)
	}
	if c.Upload.MaxPixels <= 0 {
		return fmt.Errorf("upload.max_pixels must be positive, got %d", c.Upload.MaxPixels)
	}
	switch c.Server.Mode {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("unknown server.mode %q", c.Server.Mode)
	}
	switch c.Remover.Backend {
	case BackendRembg:
		if c.Remover.BaseURL == "" {
			return fmt.Errorf("remover.base_url is required for backend %q", BackendRembg)
		}
	case BackendPassthrough:
	default:
		return fmt.Errorf("unknown remover.backend %q", c.Remover.Backend)
	}
	if c.Remover.Concurrency < 1 {
		return fmt.Errorf("remover.concurrency must be >= 1, got %d", c.Remover.Concurrency)
	}
	if !strings.HasSuffix(strings.ToLower(c.Output.Filename), ".png") {
		return fmt.Errorf("output.filename must end with .png, got %q", c.Output.Filename)
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// NewLogger 按配置生成 slog.Logger
func (l LoggingConfig) NewLogger() *slog.Logger {
	level, err := l.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
