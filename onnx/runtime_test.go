package onnx

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveLibPath(t *testing.T) {
	none := func(string) bool { return false }
	assert.Equal(t, "/opt/ort.so", resolveLibPath("/opt/ort.so", "linux", none))
	assert.Equal(t, "", resolveLibPath("", "linux", none))
	assert.Equal(t, "", resolveLibPath("", "plan9", func(string) bool { return true }))

	only := func(want string) func(string) bool {
		return func(p string) bool { return p == want }
	}
	assert.Equal(t, "/usr/local/lib/libonnxruntime.so",
		resolveLibPath("", "linux", only("/usr/local/lib/libonnxruntime.so")))
	assert.Equal(t, filepath.Join("onnxlibs", "libonnxruntime.dylib"),
		resolveLibPath("", "darwin", func(string) bool { return true }))
}
