package config

import "time"

// File represents the structure of the parablock.yaml configuration file.
type File struct {
	Store     string       `yaml:"store"`
	Generator GeneratorDTO `yaml:"generator"`
	Sandbox   SandboxDTO   `yaml:"sandbox"`
	Watch     WatchDTO     `yaml:"watch"`
	Metrics   MetricsDTO   `yaml:"metrics"`
}

// GeneratorDTO represents the generator section of the configuration.
type GeneratorDTO struct {
	Provider       string        `yaml:"provider"`
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"base_url"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	Temperature    float32       `yaml:"temperature"`
	MaxAttempts    int           `yaml:"max_attempts"`
	ServiceRetries int           `yaml:"service_retries"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

// SandboxDTO represents the sandbox section of the configuration.
type SandboxDTO struct {
	Isolation      string        `yaml:"isolation"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowedImports []string      `yaml:"allowed_imports"`
}

// WatchDTO represents the watch section of the configuration.
type WatchDTO struct {
	Debounce time.Duration `yaml:"debounce"`
	Workers  int           `yaml:"workers"`
	Ignore   []string      `yaml:"ignore"`
}

// MetricsDTO represents the metrics section of the configuration.
type MetricsDTO struct {
	Addr string `yaml:"addr"`
}
