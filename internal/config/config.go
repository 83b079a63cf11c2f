// Package config loads the sysviz server configuration from a YAML file,
// then applies SYSVIZ_* environment overrides on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/signalsfoundry/sysviz/internal/flow"
	"github.com/signalsfoundry/sysviz/internal/sim"
	"github.com/signalsfoundry/sysviz/model"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

const (
	DefaultHTTPAddr = ":8080"
	DefaultGRPCAddr = ":9090"
	DefaultHintsDB  = ".sysviz/hints.db"
	DefaultTick     = 10 * time.Millisecond
)

type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// WebsocketOrigins lists allowed Origin headers; empty allows any.
	WebsocketOrigins []string `yaml:"websocket-origins"`
}

type GRPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type HintsConfig struct {
	Enabled bool `yaml:"enabled"`
	// DBPath is a SQLite file, or ":memory:" for process-lifetime flags.
	DBPath string `yaml:"db-path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CachingConfig struct {
	Operation     string  `yaml:"operation"`
	ReadStrategy  string  `yaml:"read-strategy"`
	WriteStrategy string  `yaml:"write-strategy"`
	CacheState    string  `yaml:"cache-state"`
	Speed         float64 `yaml:"speed"`
}

type LoadBalancerConfig struct {
	Algorithm string `yaml:"algorithm"`
	SpeedMs   int    `yaml:"speed-ms"`
}

type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	GRPC         GRPCConfig         `yaml:"grpc"`
	Hints        HintsConfig        `yaml:"hints"`
	Log          LogConfig          `yaml:"log"`
	Renderer     string             `yaml:"renderer"`
	Tick         time.Duration      `yaml:"tick"`
	Caching      CachingConfig      `yaml:"caching"`
	LoadBalancer LoadBalancerConfig `yaml:"load-balancer"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cache := sim.DefaultCacheSettings()
	lb := sim.DefaultLBSettings()
	return &Config{
		HTTP:     HTTPConfig{Addr: DefaultHTTPAddr},
		GRPC:     GRPCConfig{Enabled: true, Addr: DefaultGRPCAddr},
		Hints:    HintsConfig{Enabled: true, DBPath: DefaultHintsDB},
		Log:      LogConfig{Level: "info", Format: "text"},
		Renderer: sim.RendererInternal.String(),
		Tick:     DefaultTick,
		Caching: CachingConfig{
			Operation:     string(cache.Operation),
			ReadStrategy:  string(cache.ReadStrategy),
			WriteStrategy: string(cache.WriteStrategy),
			CacheState:    string(cache.CacheState),
			Speed:         cache.Speed,
		},
		LoadBalancer: LoadBalancerConfig{
			Algorithm: string(lb.Algorithm),
			SpeedMs:   lb.SpeedMs,
		},
	}
}

// Load reads path over the defaults. A missing file is not an error; an
// empty path skips the file entirely. Environment overrides are applied
// last and the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
			}
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SYSVIZ_* variables looked up with lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("SYSVIZ_HTTP_ADDR"); ok && v != "" {
		c.HTTP.Addr = v
	}
	if v, ok := lookup("SYSVIZ_GRPC_ADDR"); ok && v != "" {
		c.GRPC.Addr = v
	}
	if v, ok := lookup("SYSVIZ_GRPC_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: SYSVIZ_GRPC_ENABLED=%q", ErrInvalid, v)
		}
		c.GRPC.Enabled = b
	}
	if v, ok := lookup("SYSVIZ_HINTS_DB"); ok && v != "" {
		c.Hints.DBPath = v
	}
	if v, ok := lookup("SYSVIZ_RENDERER"); ok && v != "" {
		c.Renderer = v
	}
	if v, ok := lookup("SYSVIZ_TICK"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: SYSVIZ_TICK=%q", ErrInvalid, v)
		}
		c.Tick = d
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		c.Log.Format = v
	}
	return nil
}

// Validate fills zero values with defaults and rejects settings the
// simulators would refuse.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = DefaultGRPCAddr
	}
	if c.Hints.DBPath == "" {
		c.Hints.DBPath = DefaultHintsDB
	}
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if _, err := sim.ParseRendererMode(c.Renderer); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := c.CacheSettings(); err != nil {
		return fmt.Errorf("%w: caching: %v", ErrInvalid, err)
	}
	if _, err := c.LBSettings(); err != nil {
		return fmt.Errorf("%w: load-balancer: %v", ErrInvalid, err)
	}
	return nil
}

// RendererMode returns the parsed renderer setting.
func (c *Config) RendererMode() sim.RendererMode {
	m, _ := sim.ParseRendererMode(c.Renderer)
	return m
}

// CacheSettings converts the caching section into normalized simulator
// settings. A zero speed takes the default.
func (c *Config) CacheSettings() (sim.CacheSettings, error) {
	s := sim.CacheSettings{
		CacheConfig: flow.CacheConfig{
			Operation:     model.Operation(c.Caching.Operation),
			ReadStrategy:  model.ReadStrategy(c.Caching.ReadStrategy),
			WriteStrategy: model.WriteStrategy(c.Caching.WriteStrategy),
			CacheState:    model.CacheState(c.Caching.CacheState),
		},
		Speed: c.Caching.Speed,
	}
	if s.Speed == 0 {
		s.Speed = sim.DefaultCacheSpeed
	}
	return s.Normalize()
}

// LBSettings converts the load-balancer section into normalized simulator
// settings. A zero speed takes the default.
func (c *Config) LBSettings() (sim.LBSettings, error) {
	s := sim.LBSettings{Algorithm: model.Algorithm(c.LoadBalancer.Algorithm), SpeedMs: c.LoadBalancer.SpeedMs}
	if s.SpeedMs == 0 {
		s.SpeedMs = sim.DefaultLBSpeedMs
	}
	return s.Normalize()
}
