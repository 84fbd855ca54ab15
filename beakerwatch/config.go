package beakerwatch

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration lets YAML carry "10s" style values.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the full configuration for the CLI and the worker.
type Config struct {
	Hub   HubConfig     `yaml:"hub"`
	Watch WatchSettings `yaml:"watch"`
	Queue QueueConfig   `yaml:"queue"`
	Store StoreConfig   `yaml:"store"`
	API   APIConfig     `yaml:"api"`
}

// WatchSettings is the YAML shape of the poll cadence.
type WatchSettings struct {
	Delay            Duration `yaml:"delay"`
	Period           Duration `yaml:"period"`
	MaxQueryFailures int      `yaml:"max_query_failures"`
}

// WatchConfig converts the settings into a watchdog configuration.
func (s WatchSettings) WatchConfig() WatchConfig {
	return WatchConfig{
		InitialStatus:    StatusNew,
		Delay:            time.Duration(s.Delay),
		Period:           time.Duration(s.Period),
		MaxQueryFailures: s.MaxQueryFailures,
	}
}

// QueueConfig points the worker and enqueuer at redis.
type QueueConfig struct {
	RedisAddr   string `yaml:"redis_addr"`
	Name        string `yaml:"name"`
	Concurrency int    `yaml:"concurrency"`
}

// StoreConfig locates the sqlite run database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// APIConfig is the listen address of the worker's HTTP API.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

func DefaultConfig() Config {
	return Config{
		Watch: WatchSettings{
			Delay:  Duration(DefaultDelay),
			Period: Duration(DefaultPeriod),
		},
		Queue: QueueConfig{
			RedisAddr:   "127.0.0.1:6379",
			Name:        "default",
			Concurrency: 5,
		},
		Store: StoreConfig{Path: "beakerwatch.db"},
		API:   APIConfig{Addr: ":8080"},
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
