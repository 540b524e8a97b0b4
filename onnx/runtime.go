package onnx

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"
)

var pathOnce sync.Once
var libPath string

// LibPath resolves the onnxruntime shared library once. configured wins;
// otherwise well-known install locations for the current OS are probed.
func LibPath(configured string, logger zerolog.Logger) string {
	pathOnce.Do(func() {
		libPath = resolveLibPath(configured, runtime.GOOS, fileExists)
		if libPath == "" {
			logger.Error().Str("os", runtime.GOOS).Msg("ONNX Runtime library path could not be determined for this OS")
		} else {
			logger.Info().Str("path", libPath).Msg("using ONNX Runtime library")
		}
	})
	return libPath
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func resolveLibPath(configured, goos string, exists func(string) bool) string {
	if configured != "" {
		return configured
	}
	var candidates []string
	switch goos {
	case "linux":
		candidates = []string{
			filepath.Join("onnxlibs", "libonnxruntime.so"),
			"/usr/lib/onnxruntime.so",
			"/usr/local/lib/libonnxruntime.so",
			"/usr/lib/libonnxruntime.so",
		}
		if home, err := os.UserHomeDir(); err == nil {
			candidates = append(candidates, filepath.Join(home, "lib", "autotone", "onnxruntime.so"))
		}
	case "darwin":
		candidates = []string{
			filepath.Join("onnxlibs", "libonnxruntime.dylib"),
			"/usr/local/lib/libonnxruntime.dylib",
			"/opt/homebrew/lib/libonnxruntime.dylib",
		}
	case "windows":
		candidates = []string{filepath.Join("onnxlibs", "onnxruntime.dll"), "onnxruntime.dll"}
	default:
		return ""
	}
	for _, c := range candidates {
		if exists(c) {
			return c
		}
	}
	return ""
}

// Init points onnxruntime_go at the shared library and initializes the
// environment. Destroy must be called at shutdown.
func Init(configured string, logger zerolog.Logger) error {
	path := LibPath(configured, logger)
	if path == "" {
		return fmt.Errorf("onnxruntime shared library not found; set libonnx in config")
	}
	ort.SetSharedLibraryPath(path)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime environment: %w", err)
	}
	return nil
}

// Destroy tears down the environment if it was initialized.
func Destroy() {
	if ort.IsInitialized() {
		_ = ort.DestroyEnvironment()
	}
}
