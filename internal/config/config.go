package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	EnvAdapterKind    = "OBDCTL_ADAPTER_KIND"
	EnvAdapterAddress = "OBDCTL_ADAPTER_ADDRESS"
	EnvMetricsAddr    = "OBDCTL_METRICS_ADDR"
)

var ErrInvalidConfig = errors.New("config: invalid")

type Kind string

const (
	KindTCP    Kind = "tcp"
	KindSerial Kind = "serial"
)

// Adapter names the physical endpoint.
type Adapter struct {
	Kind        Kind
	Address     string
	BaudRate    int
	DialTimeout time.Duration
}

// Run holds per-command defaults for the CLI.
type Run struct {
	UseCache     bool
	Delay        time.Duration
	NoisePattern string
	Init         []string
}

type Log struct {
	Level   string
	File    string
	NoColor bool
}

type Config struct {
	Adapter     Adapter
	Run         Run
	Log         Log
	MetricsAddr string
}

func Default() Config {
	return Config{
		Adapter: Adapter{
			Kind:        KindTCP,
			Address:     "192.168.0.10:35000",
			BaudRate:    38400,
			DialTimeout: 5 * time.Second,
		},
		Run: Run{
			NoisePattern: `SEARCHING(\.\.\.)?`,
			Init:         []string{"ATZ", "ATE0", "ATL0", "ATSP0"},
		},
		Log: Log{Level: "info"},
	}
}

type fileConfig struct {
	MetricsAddr string      `toml:"metrics_addr" yaml:"metrics_addr"`
	Adapter     fileAdapter `toml:"adapter" yaml:"adapter"`
	Run         fileRun     `toml:"run" yaml:"run"`
	Log         fileLog     `toml:"log" yaml:"log"`
}

type fileAdapter struct {
	Kind        string `toml:"kind" yaml:"kind"`
	Address     string `toml:"address" yaml:"address"`
	BaudRate    int    `toml:"baud_rate" yaml:"baud_rate"`
	DialTimeout string `toml:"dial_timeout" yaml:"dial_timeout"`
}

type fileRun struct {
	UseCache     bool     `toml:"use_cache" yaml:"use_cache"`
	Delay        string   `toml:"delay" yaml:"delay"`
	NoisePattern string   `toml:"noise_pattern" yaml:"noise_pattern"`
	Init         []string `toml:"init" yaml:"init"`
}

type fileLog struct {
	Level   string `toml:"level" yaml:"level"`
	File    string `toml:"file" yaml:"file"`
	NoColor bool   `toml:"no_color" yaml:"no_color"`
}

// Load reads a .toml, .yaml or .yml file over Default and validates it.
func Load(path string) (Config, error) {
	var raw fileConfig
	initDefined := false

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		initDefined = raw.Run.Init != nil
	default:
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		initDefined = meta.IsDefined("run", "init")
	}

	cfg, err := merge(Default(), raw, initDefined)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func merge(cfg Config, raw fileConfig, initDefined bool) (Config, error) {
	if v := strings.TrimSpace(raw.MetricsAddr); v != "" {
		cfg.MetricsAddr = v
	}
	if v := strings.TrimSpace(raw.Adapter.Kind); v != "" {
		cfg.Adapter.Kind = Kind(strings.ToLower(v))
	}
	if v := strings.TrimSpace(raw.Adapter.Address); v != "" {
		cfg.Adapter.Address = v
	}
	if raw.Adapter.BaudRate != 0 {
		cfg.Adapter.BaudRate = raw.Adapter.BaudRate
	}
	if v := strings.TrimSpace(raw.Adapter.DialTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse adapter.dial_timeout: %w", err)
		}
		cfg.Adapter.DialTimeout = d
	}

	cfg.Run.UseCache = raw.Run.UseCache
	if v := strings.TrimSpace(raw.Run.Delay); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse run.delay: %w", err)
		}
		cfg.Run.Delay = d
	}
	if v := strings.TrimSpace(raw.Run.NoisePattern); v != "" {
		cfg.Run.NoisePattern = v
	}
	if initDefined {
		cfg.Run.Init = normalizeCommands(raw.Run.Init)
	}

	if v := strings.TrimSpace(raw.Log.Level); v != "" {
		cfg.Log.Level = v
	}
	cfg.Log.File = strings.TrimSpace(raw.Log.File)
	cfg.Log.NoColor = raw.Log.NoColor
	return cfg, nil
}

// ApplyEnvOverrides lets the environment (or a .env file loaded into it)
// point an existing config at another adapter.
func ApplyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvAdapterKind)); v != "" {
		cfg.Adapter.Kind = Kind(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv(EnvAdapterAddress)); v != "" {
		cfg.Adapter.Address = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMetricsAddr)); v != "" {
		cfg.MetricsAddr = v
	}
}

func Validate(cfg Config) error {
	switch cfg.Adapter.Kind {
	case KindTCP:
		if strings.TrimSpace(cfg.Adapter.Address) == "" {
			return fmt.Errorf("%w: adapter.address is required", ErrInvalidConfig)
		}
		if cfg.Adapter.DialTimeout < 0 {
			return fmt.Errorf("%w: adapter.dial_timeout must not be negative", ErrInvalidConfig)
		}
	case KindSerial:
		if strings.TrimSpace(cfg.Adapter.Address) == "" {
			return fmt.Errorf("%w: adapter.address (serial device) is required", ErrInvalidConfig)
		}
		if cfg.Adapter.BaudRate <= 0 {
			return fmt.Errorf("%w: adapter.baud_rate must be positive", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: adapter.kind %q (want tcp|serial)", ErrInvalidConfig, cfg.Adapter.Kind)
	}
	if cfg.Run.Delay < 0 {
		return fmt.Errorf("%w: run.delay must not be negative", ErrInvalidConfig)
	}
	return nil
}

func normalizeCommands(in []string) []string {
	out := make([]string, 0, len(in))
	for _, cmd := range in {
		v := strings.TrimSpace(cmd)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
