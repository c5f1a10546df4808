package cadence

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for an engine and the components it wires.
type Config struct {
	// Concurrency is the maximum number of handler invocations in flight
	// per worker.
	Concurrency int `yaml:"concurrency"`

	// Queues is the list of task queues a piped worker polls.
	Queues []string `yaml:"queues"`

	// PollInterval is how often a piped worker polls the store when idle.
	PollInterval time.Duration `yaml:"poll_interval"`

	// ShutdownTimeout bounds a graceful stop. In-flight handlers still
	// running when it elapses are cancelled.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// HeartbeatInterval is how often running tasks send heartbeats.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// StaleTaskThreshold is how long before a running task without a
	// heartbeat is released back to pending.
	StaleTaskThreshold time.Duration `yaml:"stale_task_threshold"`

	// TickBuffer bounds how many ticks a direct-mode backend may hold
	// ahead of the workers. Zero means ticks are produced on demand.
	TickBuffer int `yaml:"tick_buffer"`

	// Timezone is the IANA zone schedules are bound to unless overridden.
	// Empty means the system local zone.
	Timezone string `yaml:"timezone"`

	// Codec names the tick payload encoding for piped tasks: "json" or
	// "msgpack".
	Codec string `yaml:"codec"`

	// PipeRetry configures pipe write retries. A zero MaxAttempts makes the
	// first failed write fatal.
	PipeRetry PipeRetryConfig `yaml:"pipe_retry"`
}

// PipeRetryConfig configures retry-with-backoff for pipe writes.
type PipeRetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Initial     time.Duration `yaml:"initial"`
	Max         time.Duration `yaml:"max"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:        10,
		Queues:             []string{"default"},
		PollInterval:       1 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		HeartbeatInterval:  10 * time.Second,
		StaleTaskThreshold: 30 * time.Second,
		Codec:              "json",
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be at least 1", ErrInvalidConfig)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalidConfig)
	case c.ShutdownTimeout < 0, c.HeartbeatInterval < 0, c.StaleTaskThreshold < 0:
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	case c.TickBuffer < 0:
		return fmt.Errorf("%w: tick_buffer must not be negative", ErrInvalidConfig)
	case c.PipeRetry.MaxAttempts < 0:
		return fmt.Errorf("%w: pipe_retry.max_attempts must not be negative", ErrInvalidConfig)
	}
	switch c.Codec {
	case "", "json", "msgpack":
	default:
		return fmt.Errorf("%w: unknown codec %q", ErrInvalidConfig, c.Codec)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone. An empty Timezone yields time.Local.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// LoadConfig decodes YAML from r over DefaultConfig and validates the result.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("cadence: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile is LoadConfig for a file path.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("cadence: open config: %w", err)
	}
	defer f.Close()
	return LoadConfig(f)
}
