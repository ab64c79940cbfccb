package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"go.trai.ch/parablock/internal/adapters/config"
	"go.trai.ch/parablock/internal/core/domain"
	"go.trai.ch/parablock/internal/core/ports/mocks"
)

func newLoader(t *testing.T, env map[string]string) *config.Loader {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any()).AnyTimes()
	return &config.Loader{
		Logger: log,
		Getenv: func(key string) string { return env[key] },
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "go.mod"), "module example.com/demo\n")
	sub := filepath.Join(root, "internal", "greet")
	require.NoError(t, os.MkdirAll(sub, 0o750))

	cfg, err := newLoader(t, nil).Load(sub)
	require.NoError(t, err)

	want := domain.DefaultConfig()
	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, filepath.Join(root, ".parablock", "store"), cfg.Store)
	assert.Equal(t, want.Generator, cfg.Generator)
	assert.Equal(t, want.Sandbox.Timeout, cfg.Sandbox.Timeout)
	assert.Equal(t, want.Watch, cfg.Watch)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "parablock.yaml"), `
store: cache/fns
generator:
  provider: openai
  model: local-model
  base_url: http://127.0.0.1:8080/v1
  api_key_env: LOCAL_KEY
  max_attempts: 5
  backoff_initial: 1s
sandbox:
  isolation: process
  timeout: 2s
  allowed_imports: [strings, strings, fmt]
watch:
  debounce: 200ms
  workers: 2
metrics:
  addr: 127.0.0.1:9464
`)

	cfg, err := newLoader(t, nil).Load(root)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "cache", "fns"), cfg.Store)
	assert.Equal(t, domain.ProviderOpenAI, cfg.Generator.Provider)
	assert.Equal(t, "local-model", cfg.Generator.Model)
	assert.Equal(t, "http://127.0.0.1:8080/v1", cfg.Generator.BaseURL)
	assert.Equal(t, "LOCAL_KEY", cfg.Generator.APIKeyEnv)
	assert.Equal(t, 5, cfg.Generator.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Generator.BackoffInitial)
	assert.Equal(t, 30*time.Second, cfg.Generator.BackoffMax, "absent fields keep defaults")
	assert.Equal(t, domain.IsolationProcess, cfg.Sandbox.Isolation)
	assert.Equal(t, 2*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, []string{"fmt", "strings"}, cfg.Sandbox.AllowedImports)
	assert.Equal(t, 200*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, 2, cfg.Watch.Workers)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Addr)
}

func TestLoad_FindsConfigInParent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "parablock.yaml"), "watch:\n  workers: 8\n")
	// A nested module does not hide the project file above it.
	writeFile(t, filepath.Join(root, "tools", "go.mod"), "module example.com/tools\n")

	cfg, err := newLoader(t, nil).Load(filepath.Join(root, "tools"))
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, 8, cfg.Watch.Workers)
}

func TestLoad_EmptyFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "parablock.yaml"), "")

	cfg, err := newLoader(t, nil).Load(root)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultConfig().Generator, cfg.Generator)
}

func TestLoad_ClampsAttempts(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{name: "above ceiling", content: "generator:\n  max_attempts: 50\n", want: domain.MaxAttemptsCeiling},
		{name: "zero", content: "generator:\n  max_attempts: 0\n", want: 1},
		{name: "in range", content: "generator:\n  max_attempts: 4\n", want: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, "parablock.yaml"), tt.content)

			cfg, err := newLoader(t, nil).Load(root)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Generator.MaxAttempts)
		})
	}
}

func TestLoad_StoreEnvOverride(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "parablock.yaml"), "store: a\n")

	cfg, err := newLoader(t, map[string]string{domain.StoreEnvVar: "/tmp/shared-store"}).Load(root)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/shared-store", cfg.Store)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
		msg     string
	}{
		{
			name:    "unknown field",
			content: "generator:\n  modle: typo\n",
			msg:     domain.ErrConfigParseFailed.Error(),
		},
		{
			name:    "bad yaml",
			content: "generator: [\n",
			msg:     domain.ErrConfigParseFailed.Error(),
		},
		{
			name:    "unknown provider",
			content: "generator:\n  provider: carrier-pigeon\n",
			wantErr: domain.ErrUnknownProvider,
		},
		{
			name:    "zero workers",
			content: "watch:\n  workers: 0\n",
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name:    "negative timeout",
			content: "sandbox:\n  timeout: -1s\n",
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name:    "bad isolation",
			content: "sandbox:\n  isolation: vm\n",
			wantErr: domain.ErrInvalidConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, "parablock.yaml"), tt.content)

			_, err := newLoader(t, nil).Load(root)
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
			if tt.msg != "" {
				assert.ErrorContains(t, err, tt.msg)
			}
		})
	}
}
