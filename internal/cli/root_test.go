package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	err := cmd.Execute()
	require.NoError(t, err)
	require.NotEmpty(t, buf.String())
}

// writeTestConfig copies the example config into a temp dir, rewriting the
// registry paths to absolute ones so the doctor can resolve them regardless
// of the test working directory.
func writeTestConfig(t *testing.T) string {
	t.Helper()

	root, err := filepath.Abs(filepath.Join("..", ".."))
	require.NoError(t, err)

	models := filepath.Join(root, "configs", "image_models.json")
	loras := filepath.Join(root, "configs", "loras.json")
	require.FileExists(t, models)
	require.FileExists(t, loras)

	cfg := fmt.Sprintf(`
providers:
  openai:
    type: openai
models:
  story-model:
    provider: openai
    model: gpt-4o
    default: true
strategy:
  default_model: story-model
registry:
  image_models: %q
  loras: %q
`, models, loras)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestDoctorCommand(t *testing.T) {
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"doctor", "--config", writeTestConfig(t)})

	err := cmd.Execute()
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "Config OK")
	require.Contains(t, out, "Image models OK")
	require.Contains(t, out, "LoRA groups OK")
}

func TestModelsCommand(t *testing.T) {
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"models", "--config", writeTestConfig(t)})

	err := cmd.Execute()
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "flux")
	require.Contains(t, out, "flux-schnell")
	require.Contains(t, out, "Watercolor Wash")
}
