package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Token   string `toml:"token" yaml:"token" json:"token"`
	Host    string `toml:"host" yaml:"host" json:"host"`
	Port    string `toml:"port" yaml:"port" json:"port"`
	Libonnx string `toml:"libonnx" yaml:"libonnx" json:"libonnx"`

	// ModelURL is the fixed location of the model artifact. It may be a local
	// path or any URL understood by afs (file://, http(s)://, s3://).
	ModelURL      string `toml:"model_url" yaml:"model_url" json:"model_url"`
	ModelDir      string `toml:"model_dir" yaml:"model_dir" json:"model_dir"`
	ModelFileName string `toml:"model_file_name" yaml:"model_file_name" json:"model_file_name"`
	ModelMetaName string `toml:"model_meta_name" yaml:"model_meta_name" json:"model_meta_name"`

	Workers     int `toml:"workers" yaml:"workers" json:"workers"`
	MaxUploadMB int `toml:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`

	LogLevel  string `toml:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat string `toml:"log_format" yaml:"log_format" json:"log_format"`
}

func Default() Config {
	return Config{
		Token:         "",
		Host:          "0.0.0.0",
		Port:          "8000",
		ModelURL:      "my_model",
		ModelDir:      "models",
		ModelFileName: "model.onnx",
		ModelMetaName: "model.json",
		Workers:       1,
		MaxUploadMB:   10,
		LogLevel:      "info",
		LogFormat:     "",
	}
}

var (
	cfg      = Default()
	loadOnce sync.Once
)

// C returns the process configuration. It reads $AUTOTONE_CONFIG, or
// config.toml in the working directory, the first time it is called.
func C() Config {
	loadOnce.Do(func() {
		path := os.Getenv("AUTOTONE_CONFIG")
		if path == "" {
			if _, err := os.Stat("config.toml"); err != nil {
				return
			}
			path = "config.toml"
		}
		loaded, err := Load(path)
		if err != nil {
			panic(err)
		}
		cfg = loaded
	})
	return cfg
}

// Set replaces the process configuration. Used by the CLI when --config is given.
func Set(c Config) {
	loadOnce.Do(func() {})
	cfg = c
}

// Load reads a configuration file on top of the defaults. The format is
// picked from the extension: .toml, .yaml/.yml or .json.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(b, &c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &c)
	case ".json":
		err = json.Unmarshal(b, &c)
	default:
		return c, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return c, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = 10
	}
	return c, nil
}

func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

// ModelPath is the local path of the materialized model file.
func (c Config) ModelPath() string {
	return filepath.Join(c.ModelDir, c.ModelFileName)
}
