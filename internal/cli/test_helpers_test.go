package cli

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/runnerr0/seer/internal/config"
)

func init() {
	color.NoColor = true
}

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// writeTestConfig writes a config file whose profile lives in a temp dir
// and returns the config path.
func writeTestConfig(t *testing.T, enabled bool) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`enabled: %t
storage:
  profile_dir: %q
daemon:
  port: 1
logging:
  level: error
`, enabled, filepath.Join(dir, "profile"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// newTestEnv returns an env with a temp profile and a test logger.
func newTestEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.ProfileDir = dir
	return &env{cfg: cfg, cfgPath: filepath.Join(dir, "config.yaml"), logger: zaptest.NewLogger(t)}
}

// run executes the CLI against cfgPath and returns stdout.
func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var err error
	out := captureOutput(t, func() {
		err = RunWithArgs("test", append([]string{"--config", cfgPath}, args...))
	})
	return out, err
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
