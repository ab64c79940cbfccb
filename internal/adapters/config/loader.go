// Package config provides the configuration loader for parablock.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"

	"go.trai.ch/parablock/internal/core/domain"
	"go.trai.ch/parablock/internal/core/ports"
)

var _ ports.ConfigLoader = (*Loader)(nil)

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
	// Getenv reads environment overrides. Nil means os.Getenv.
	Getenv func(string) string
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger, Getenv: os.Getenv}
}

// Load finds the project root from cwd and returns the resolved configuration.
// The root is the nearest directory holding parablock.yaml, else the nearest
// holding go.mod, else cwd itself. A missing file means all defaults.
func (l *Loader) Load(cwd string) (domain.Config, error) {
	abs, err := filepath.Abs(cwd)
	if err != nil {
		return domain.Config{}, zerr.Wrap(err, domain.ErrFailedToGetRoot.Error())
	}

	configPath, root := findConfiguration(abs)

	file := defaults()
	if configPath != "" {
		if err := readAndUnmarshalYAML(configPath, &file); err != nil {
			return domain.Config{}, zerr.With(err, "path", configPath)
		}
	} else if l.Logger != nil {
		l.Logger.Debug(fmt.Sprintf("no %s found, using defaults at %s", domain.ConfigFileName, root))
	}

	cfg := toDomain(file, root)
	if override := l.getenv(domain.StoreEnvVar); override != "" {
		cfg.Store = resolvePath(root, override)
	}

	if err := validate(&cfg); err != nil {
		return domain.Config{}, err
	}
	if cfg.Generator.MaxAttempts != file.Generator.MaxAttempts && l.Logger != nil {
		l.Logger.Warn(fmt.Sprintf("generator.max_attempts %d clamped to %d",
			file.Generator.MaxAttempts, cfg.Generator.MaxAttempts))
	}
	return cfg, nil
}

func (l *Loader) getenv(key string) string {
	if l.Getenv == nil {
		return os.Getenv(key)
	}
	return l.Getenv(key)
}

func findConfiguration(cwd string) (configPath, root string) {
	var moduleRoot string
	for dir := cwd; ; {
		candidate := filepath.Join(dir, domain.ConfigFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, dir
		}
		if moduleRoot == "" {
			if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
				moduleRoot = dir
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if moduleRoot != "" {
		return "", moduleRoot
	}
	return "", cwd
}

func defaults() File {
	d := domain.DefaultConfig()
	return File{
		Store: d.Store,
		Generator: GeneratorDTO{
			Provider:       d.Generator.Provider,
			Model:          d.Generator.Model,
			BaseURL:        d.Generator.BaseURL,
			APIKeyEnv:      d.Generator.APIKeyEnv,
			Temperature:    d.Generator.Temperature,
			MaxAttempts:    d.Generator.MaxAttempts,
			ServiceRetries: d.Generator.ServiceRetries,
			BackoffInitial: d.Generator.BackoffInitial,
			BackoffMax:     d.Generator.BackoffMax,
		},
		Sandbox: SandboxDTO{
			Isolation:      d.Sandbox.Isolation,
			Timeout:        d.Sandbox.Timeout,
			AllowedImports: slices.Clone(d.Sandbox.AllowedImports),
		},
		Watch: WatchDTO{
			Debounce: d.Watch.Debounce,
			Workers:  d.Watch.Workers,
			Ignore:   slices.Clone(d.Watch.Ignore),
		},
		Metrics: MetricsDTO{Addr: d.Metrics.Addr},
	}
}

func toDomain(file File, root string) domain.Config {
	allowed := slices.Clone(file.Sandbox.AllowedImports)
	slices.Sort(allowed)
	allowed = slices.Compact(allowed)

	return domain.Config{
		Root:  root,
		Store: resolvePath(root, file.Store),
		Generator: domain.GeneratorConfig{
			Provider:       file.Generator.Provider,
			Model:          file.Generator.Model,
			BaseURL:        file.Generator.BaseURL,
			APIKeyEnv:      file.Generator.APIKeyEnv,
			Temperature:    file.Generator.Temperature,
			MaxAttempts:    domain.GeneratorConfig{MaxAttempts: file.Generator.MaxAttempts}.AttemptBudget(),
			ServiceRetries: file.Generator.ServiceRetries,
			BackoffInitial: file.Generator.BackoffInitial,
			BackoffMax:     file.Generator.BackoffMax,
		},
		Sandbox: domain.SandboxConfig{
			Isolation:      file.Sandbox.Isolation,
			Timeout:        file.Sandbox.Timeout,
			AllowedImports: allowed,
		},
		Watch: domain.WatchConfig{
			Debounce: file.Watch.Debounce,
			Workers:  file.Watch.Workers,
			Ignore:   file.Watch.Ignore,
		},
		Metrics: domain.MetricsConfig{Addr: file.Metrics.Addr},
	}
}

func resolvePath(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

func validate(cfg *domain.Config) error {
	var errs []error
	switch cfg.Generator.Provider {
	case domain.ProviderGemini, domain.ProviderOpenAI:
	default:
		errs = append(errs, zerr.With(zerr.Wrap(domain.ErrUnknownProvider, "generator.provider"),
			"provider", cfg.Generator.Provider))
	}
	switch cfg.Sandbox.Isolation {
	case domain.IsolationInProcess, domain.IsolationProcess:
	default:
		errs = append(errs, zerr.With(zerr.Wrap(domain.ErrInvalidConfig, "sandbox.isolation must be inprocess or process"),
			"isolation", cfg.Sandbox.Isolation))
	}
	if cfg.Sandbox.Timeout <= 0 {
		errs = append(errs, zerr.Wrap(domain.ErrInvalidConfig, "sandbox.timeout must be positive"))
	}
	if cfg.Watch.Workers < 1 {
		errs = append(errs, zerr.With(zerr.Wrap(domain.ErrInvalidConfig, "watch.workers must be at least 1"),
			"workers", cfg.Watch.Workers))
	}
	if cfg.Generator.ServiceRetries < 0 {
		errs = append(errs, zerr.Wrap(domain.ErrInvalidConfig, "generator.service_retries must not be negative"))
	}
	if cfg.Generator.Model == "" {
		errs = append(errs, zerr.Wrap(domain.ErrInvalidConfig, "generator.model is required"))
	}
	return errors.Join(errs...)
}

// readAndUnmarshalYAML reads a YAML file and decodes it strictly into target.
func readAndUnmarshalYAML[T any](configPath string, target *T) error {
	// #nosec G304 -- configPath is discovered from the project tree
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return zerr.Wrap(err, domain.ErrConfigParseFailed.Error())
	}
	return nil
}
