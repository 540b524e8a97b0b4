package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadTOML(t *testing.T) {
	p := writeFile(t, "config.toml", `
port = "9000"
model_url = "s3://bucket/models/tone"
workers = 4
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "9000", c.Port)
	assert.Equal(t, "s3://bucket/models/tone", c.ModelURL)
	assert.Equal(t, 4, c.Workers)
	// untouched fields keep their defaults
	assert.Equal(t, "0.0.0.0", c.Host)
	assert.Equal(t, "model.onnx", c.ModelFileName)
}

func TestLoadYAMLAndJSON(t *testing.T) {
	y := writeFile(t, "config.yaml", "port: \"7000\"\nlog_level: debug\n")
	c, err := Load(y)
	require.NoError(t, err)
	assert.Equal(t, "7000", c.Port)
	assert.Equal(t, "debug", c.LogLevel)

	j := writeFile(t, "config.json", `{"token":"secret","workers":0}`)
	c, err = Load(j)
	require.NoError(t, err)
	assert.Equal(t, "secret", c.Token)
	assert.Equal(t, 1, c.Workers, "non-positive workers falls back to 1")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)

	_, err = Load(writeFile(t, "config.ini", "port=1"))
	assert.ErrorContains(t, err, "unsupported config extension")

	_, err = Load(writeFile(t, "config.toml", "port = ["))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestAddrAndModelPath(t *testing.T) {
	c := Default()
	assert.Equal(t, "0.0.0.0:8000", c.Addr())
	assert.Equal(t, filepath.Join("models", "model.onnx"), c.ModelPath())
}
