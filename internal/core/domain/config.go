package domain

import "time"

const (
	// ProviderGemini selects the Gemini API.
	ProviderGemini = "gemini"
	// ProviderOpenAI selects an OpenAI-compatible chat-completions endpoint.
	ProviderOpenAI = "openai"

	// IsolationInProcess runs candidates in an interpreter inside the current process.
	IsolationInProcess = "inprocess"
	// IsolationProcess runs candidates in a child process.
	IsolationProcess = "process"
)

// DefaultAllowedImports are the packages a candidate may import when none are configured.
var DefaultAllowedImports = []string{
	"bytes", "cmp", "errors", "fmt", "maps", "math", "math/bits", "regexp", "slices",
	"sort", "strconv", "strings", "time", "unicode", "unicode/utf8",
}

// Config is the resolved project configuration.
type Config struct {
	Root      string
	Store     string
	Generator GeneratorConfig
	Sandbox   SandboxConfig
	Watch     WatchConfig
	Metrics   MetricsConfig
}

// GeneratorConfig configures the text-generation service and the retry loop.
type GeneratorConfig struct {
	Provider       string
	Model          string
	BaseURL        string
	APIKeyEnv      string
	Temperature    float32
	MaxAttempts    int
	ServiceRetries int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// SandboxConfig configures the test harness.
type SandboxConfig struct {
	Isolation      string
	Timeout        time.Duration
	AllowedImports []string
}

// WatchConfig configures the watch orchestrator.
type WatchConfig struct {
	Debounce time.Duration
	Workers  int
	Ignore   []string
}

// MetricsConfig configures the metrics endpoint served during watch.
type MetricsConfig struct {
	Addr string
}

// DefaultConfig returns the configuration used when parablock.yaml is absent.
func DefaultConfig() Config {
	return Config{
		Root:  ".",
		Store: DefaultStorePath(),
		Generator: GeneratorConfig{
			Provider:       ProviderGemini,
			Model:          "gemini-2.5-flash",
			APIKeyEnv:      "GEMINI_API_KEY",
			Temperature:    0.1,
			MaxAttempts:    DefaultMaxAttempts,
			ServiceRetries: 5,
			BackoffInitial: 500 * time.Millisecond,
			BackoffMax:     30 * time.Second,
		},
		Sandbox: SandboxConfig{
			Isolation:      IsolationInProcess,
			Timeout:        DefaultSandboxTimeout,
			AllowedImports: DefaultAllowedImports,
		},
		Watch: WatchConfig{
			Debounce: 50 * time.Millisecond,
			Workers:  4,
			Ignore:   []string{".git", ".jj", "node_modules", ParablockDirName},
		},
	}
}

// AttemptBudget returns the configured attempt count clamped to [1, MaxAttemptsCeiling].
func (c GeneratorConfig) AttemptBudget() int {
	return min(max(c.MaxAttempts, 1), MaxAttemptsCeiling)
}
