// Package config defines the observer's configuration surface: per-chain
// pool tuning, the control/ingestion API, metrics, logging, and the action
// dispatcher's retry policy.
package config

import (
	"fmt"
	"time"

	"github.com/goran-ethernal/chainobserver/internal/common"
)

// Config is the complete configuration for the observer process.
type Config struct {
	Chains     ChainsConfig     `yaml:"chains" json:"chains"`
	Observer   ObserverConfig   `yaml:"observer" json:"observer"`
	Dispatcher DispatcherConfig `yaml:"dispatcher" json:"dispatcher"`
	API        APIConfig        `yaml:"api" json:"api"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ChainsConfig holds the per-chain pool configuration for both anchored
// chains the observer tracks.
type ChainsConfig struct {
	L1 ChainConfig `yaml:"l1" json:"l1"`
	L2 ChainConfig `yaml:"l2" json:"l2"`
}

// ChainConfig configures one chain's BlockPool.
type ChainConfig struct {
	// Name identifies the chain in logs and metrics, e.g. "bitcoin", "stacks".
	Name string `yaml:"name" json:"name"`

	// ConfirmationDepth is the number of blocks past a block before it is
	// considered irreversible and pruned from the pool.
	ConfirmationDepth uint64 `yaml:"confirmation_depth" json:"confirmation_depth"`
}

// ApplyDefaults fills in the reference confirmation depths when unset: 6 for
// an L1 proof-of-work chain, 1 for an L2 chain anchored to it.
func (c *ChainsConfig) ApplyDefaults() {
	if c.L1.Name == "" {
		c.L1.Name = "bitcoin"
	}
	if c.L1.ConfirmationDepth == 0 {
		c.L1.ConfirmationDepth = 6
	}
	if c.L2.Name == "" {
		c.L2.Name = "stacks"
	}
	if c.L2.ConfirmationDepth == 0 {
		c.L2.ConfirmationDepth = 1
	}
}

// ObserverConfig tunes the Observer's command loop and event fan-out.
type ObserverConfig struct {
	// CommandBufferSize bounds the Observer's command channel.
	CommandBufferSize int `yaml:"command_buffer_size" json:"command_buffer_size"`

	// SubscriberBufferSize bounds each external event subscriber's channel;
	// a slow subscriber drops events past this depth rather than blocking
	// ingestion.
	SubscriberBufferSize int `yaml:"subscriber_buffer_size" json:"subscriber_buffer_size"`

	// TerminateDrainDeadline bounds how long Terminate waits for the command
	// queue to drain before forcing exit.
	TerminateDrainDeadline common.Duration `yaml:"terminate_drain_deadline" json:"terminate_drain_deadline"`
}

// ApplyDefaults fills in unset ObserverConfig fields.
func (o *ObserverConfig) ApplyDefaults() {
	if o.CommandBufferSize == 0 {
		o.CommandBufferSize = 256
	}
	if o.SubscriberBufferSize == 0 {
		o.SubscriberBufferSize = 64
	}
	if o.TerminateDrainDeadline.Duration == 0 {
		o.TerminateDrainDeadline = common.NewDuration(5 * time.Second)
	}
}

// RetryConfig is the exponential-backoff policy shared by every retrying
// network caller (the ActionDispatcher's webhook delivery).
type RetryConfig struct {
	MaxAttempts       int             `yaml:"max_attempts" json:"max_attempts"`
	InitialBackoff    common.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff        common.Duration `yaml:"max_backoff" json:"max_backoff"`
	BackoffMultiplier float64         `yaml:"backoff_multiplier" json:"backoff_multiplier"`
}

// ApplyDefaults fills in unset RetryConfig fields.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(500 * time.Millisecond)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second)
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// DispatcherConfig configures the ActionDispatcher's HTTP delivery.
type DispatcherConfig struct {
	Retry          RetryConfig     `yaml:"retry" json:"retry"`
	RequestTimeout common.Duration `yaml:"request_timeout" json:"request_timeout"`
	Workers        int             `yaml:"workers" json:"workers"`
}

// ApplyDefaults fills in unset DispatcherConfig fields.
func (d *DispatcherConfig) ApplyDefaults() {
	d.Retry.ApplyDefaults()
	if d.RequestTimeout.Duration == 0 {
		d.RequestTimeout = common.NewDuration(10 * time.Second)
	}
	if d.Workers == 0 {
		d.Workers = 4
	}
}

// APIConfig configures the control/ingestion HTTP API.
type APIConfig struct {
	Enabled      bool            `yaml:"enabled" json:"enabled"`
	ListenAddr   string          `yaml:"listen_addr" json:"listen_addr"`
	ReadTimeout  common.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout common.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  common.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	CORS         CORSConfig      `yaml:"cors" json:"cors"`
}

// CORSConfig configures cross-origin access to the control API.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// ApplyDefaults fills in unset APIConfig fields.
func (a *APIConfig) ApplyDefaults() {
	if a.ListenAddr == "" {
		a.ListenAddr = ":8080"
	}
	if a.ReadTimeout.Duration == 0 {
		a.ReadTimeout = common.NewDuration(10 * time.Second)
	}
	if a.WriteTimeout.Duration == 0 {
		a.WriteTimeout = common.NewDuration(10 * time.Second)
	}
	if a.IdleTimeout.Duration == 0 {
		a.IdleTimeout = common.NewDuration(60 * time.Second)
	}
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	ListenAddr   string `yaml:"listen_addr" json:"listen_addr"`
	Path         string `yaml:"path" json:"path"`
}

// ApplyDefaults fills in unset MetricsConfig fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddr == "" {
		m.ListenAddr = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// LoggingConfig configures the default and per-component log level, and
// satisfies internal/logger.LoggingConfig.
type LoggingConfig struct {
	Default     string            `yaml:"default" json:"default"`
	Components  map[string]string `yaml:"components" json:"components"`
	Development bool              `yaml:"development" json:"development"`
}

// ApplyDefaults fills in unset LoggingConfig fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.Default == "" {
		l.Default = "info"
	}
}

// GetDefaultLevel implements internal/logger.LoggingConfig.
func (l *LoggingConfig) GetDefaultLevel() string {
	return l.Default
}

// GetComponentLevel implements internal/logger.LoggingConfig.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if lvl, ok := l.Components[component]; ok && lvl != "" {
		return lvl
	}
	return l.GetDefaultLevel()
}

// IsDevelopment implements internal/logger.LoggingConfig.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// ApplyDefaults fills in every optional field of Config with its reference
// default value.
func (c *Config) ApplyDefaults() {
	c.Chains.ApplyDefaults()
	c.Observer.ApplyDefaults()
	c.Dispatcher.ApplyDefaults()
	c.API.ApplyDefaults()
	c.Metrics.ApplyDefaults()
	c.Logging.ApplyDefaults()
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Chains.L1.Name == "" {
		return fmt.Errorf("chains.l1.name is required")
	}
	if c.Chains.L1.ConfirmationDepth == 0 {
		return fmt.Errorf("chains.l1.confirmation_depth must be greater than zero")
	}
	if c.Chains.L2.Name == "" {
		return fmt.Errorf("chains.l2.name is required")
	}
	if c.Chains.L2.ConfirmationDepth == 0 {
		return fmt.Errorf("chains.l2.confirmation_depth must be greater than zero")
	}

	if c.Dispatcher.Retry.MaxAttempts < 1 {
		return fmt.Errorf("dispatcher.retry.max_attempts must be at least 1")
	}
	if c.Dispatcher.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("dispatcher.retry.backoff_multiplier must be at least 1")
	}

	switch c.Logging.Default {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.default must be one of: debug, info, warn, error")
	}

	return nil
}
