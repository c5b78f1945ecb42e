// Package config loads the settings shared by the server and worker
// commands from a YAML or JSON file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/flowforge/internal/automation"
	"github.com/aretw0/flowforge/internal/logging"
	"github.com/aretw0/flowforge/pkg/adapters/process"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the complete settings file.
type Config struct {
	Log       LogConfig                  `yaml:"log"`
	Server    ServerConfig               `yaml:"server"`
	Worker    WorkerConfig               `yaml:"worker"`
	Redis     RedisConfig                `yaml:"redis"`
	Toolchain ToolchainConfig            `yaml:"toolchain"`
	ADS       ADSConfig                  `yaml:"ads"`
	Targets   []domain.Target            `yaml:"targets"`
	Metrics   MetricsConfig              `yaml:"metrics"`
	Programs  map[string]process.Program `yaml:"programs"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`

	// Store selects where jobs and deploy records live: memory or redis.
	Store string `yaml:"store"`
}

type WorkerConfig struct {
	ID               string `yaml:"id"`
	ToolchainVersion string `yaml:"toolchain_version"`

	// APIURL points the worker at a build server. Without it the worker
	// claims straight from Redis.
	APIURL       string        `yaml:"api_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	JobTimeout   time.Duration `yaml:"job_timeout"`
	WorkspaceDir string        `yaml:"workspace_dir"`
	TemplateDir  string        `yaml:"template_dir"`
	FlowFile     string        `yaml:"flow_file"`
	CycleTime    time.Duration `yaml:"cycle_time"`
	TaskPriority int           `yaml:"task_priority"`
	LockTTL      time.Duration `yaml:"lock_ttl"`
	Push         bool          `yaml:"push"`
}

type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	Prefix    string        `yaml:"prefix"`
	Retention time.Duration `yaml:"retention"`
}

type ToolchainConfig struct {
	// HostURL is the automation host driving the vendor IDE.
	HostURL string `yaml:"host_url"`

	RetryInterval time.Duration     `yaml:"retry_interval"`
	MaxAttempts   int               `yaml:"max_attempts"`
	CallTimeout   time.Duration     `yaml:"call_timeout"`
	Layout        automation.Layout `yaml:"layout"`
}

type ADSConfig struct {
	SourceNetID    string        `yaml:"source_net_id"`
	SourcePort     int           `yaml:"source_port"`
	Timeout        time.Duration `yaml:"timeout"`
	SettleInterval time.Duration `yaml:"settle_interval"`
	SettleReads    int           `yaml:"settle_reads"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the settings used for anything the file leaves out.
func Default() Config {
	retry := automation.DefaultPolicy()
	return Config{
		Log:    LogConfig{Level: "info", Format: string(logging.FormatText)},
		Server: ServerConfig{Addr: ":8080", Store: StoreMemory},
		Worker: WorkerConfig{
			ToolchainVersion: "3.1.4024",
			PollInterval:     10 * time.Second,
			JobTimeout:       time.Hour,
			WorkspaceDir:     filepath.Join(os.TempDir(), "flowforge", "workspace"),
			FlowFile:         "flow.json",
			CycleTime:        10 * time.Millisecond,
			TaskPriority:     20,
			LockTTL:          15 * time.Minute,
			Push:             true,
		},
		Redis: RedisConfig{Prefix: "flowforge:"},
		Toolchain: ToolchainConfig{
			HostURL:       "http://localhost:9200",
			RetryInterval: retry.Interval,
			MaxAttempts:   retry.MaxAttempts,
			CallTimeout:   retry.CallTimeout,
		},
		ADS: ADSConfig{
			SourcePort:     32905,
			Timeout:        5 * time.Second,
			SettleInterval: 500 * time.Millisecond,
			SettleReads:    10,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
// Files ending in .json are read as JSON, everything else as YAML.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	raw := map[string]any{}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused: true,
		TagName:     "yaml",
		Result:      &cfg,
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(raw); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return cfg, cfg.Validate()
}

// Validate reports every inconsistent setting.
func (c Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch logging.Format(c.Log.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	switch c.Server.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis store needs redis.addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Server.Store))
	}
	if c.Worker.ToolchainVersion == "" {
		errs = append(errs, errors.New("worker.toolchain_version is required"))
	}
	if c.Worker.PollInterval <= 0 {
		errs = append(errs, errors.New("worker.poll_interval must be positive"))
	}
	if c.Worker.JobTimeout < 0 {
		errs = append(errs, errors.New("worker.job_timeout must not be negative"))
	}
	if c.Toolchain.MaxAttempts < 1 {
		errs = append(errs, errors.New("toolchain.max_attempts must be at least 1"))
	}
	seen := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		switch {
		case t.NetID == "":
			errs = append(errs, fmt.Errorf("targets[%d]: net_id is required", i))
		case seen[t.NetID]:
			errs = append(errs, fmt.Errorf("targets[%d]: duplicate net_id %s", i, t.NetID))
		}
		seen[t.NetID] = true
	}
	return errors.Join(errs...)
}

// RetryPolicy builds the toolchain busy-retry policy.
func (c Config) RetryPolicy() automation.Policy {
	return automation.Policy{
		Interval:    c.Toolchain.RetryInterval,
		MaxAttempts: c.Toolchain.MaxAttempts,
		CallTimeout: c.Toolchain.CallTimeout,
	}
}
