package model

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/krau/autotone/label"
	"github.com/rs/zerolog"
	"github.com/viant/afs"
	"github.com/viant/afs/option"
	_ "github.com/viant/afsc/s3"
)

const partSize = 64 * 1024 * 1024

// Metadata is the optional sidecar shipped next to the model file.
type Metadata struct {
	Version    string   `json:"version"`
	InputName  string   `json:"input_name"`
	OutputName string   `json:"output_name"`
	Labels     []string `json:"labels"`
}

// Opener turns a local model file into a runnable session.
type Opener interface {
	Open(modelPath string, meta Metadata) (Session, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(modelPath string, meta Metadata) (Session, error)

func (f OpenerFunc) Open(modelPath string, meta Metadata) (Session, error) { return f(modelPath, meta) }

// ArtifactConfig locates the model artifact.
type ArtifactConfig struct {
	// URL is the directory holding the artifact: a local path or any URL
	// afs understands (file://, http(s)://, s3://).
	URL      string
	Dir      string
	FileName string
	MetaName string
}

// ArtifactLoader materializes the model file in Dir, downloading it from URL
// when it is not already there, and opens it.
type ArtifactLoader struct {
	cfg    ArtifactConfig
	opener Opener
	fs     afs.Service
	logger zerolog.Logger
}

// NewArtifactLoader creates a loader. opener does the runtime-specific work.
func NewArtifactLoader(cfg ArtifactConfig, opener Opener, logger zerolog.Logger) *ArtifactLoader {
	return &ArtifactLoader{
		cfg:    cfg,
		opener: opener,
		fs:     afs.New(),
		logger: logger.With().Str("component", "artifact").Logger(),
	}
}

// Load implements Loader.
func (l *ArtifactLoader) Load(ctx context.Context) (Session, error) {
	path, err := l.fetch(ctx)
	if err != nil {
		return nil, l.fail(err)
	}
	meta, err := l.metadata(ctx)
	if err != nil {
		return nil, l.fail(err)
	}
	if err := meta.Validate(); err != nil {
		return nil, l.fail(err)
	}
	if l.opener == nil {
		return nil, l.fail(fmt.Errorf("no runtime to open %s", path))
	}
	sess, err := l.opener.Open(path, meta)
	if err != nil {
		return nil, l.fail(fmt.Errorf("failed to open model: %w", err))
	}
	l.logger.Info().Str("path", path).Str("version", meta.Version).Msg("model artifact ready")
	return sess, nil
}

func (l *ArtifactLoader) fail(err error) error {
	return &LoadError{URL: l.cfg.URL, Err: err}
}

func (l *ArtifactLoader) fetch(ctx context.Context) (string, error) {
	dest := filepath.Join(l.cfg.Dir, l.cfg.FileName)
	if _, err := os.Stat(dest); err == nil {
		l.logger.Debug().Str("path", dest).Msg("using cached model file")
		return dest, nil
	}
	if l.cfg.URL == "" {
		return "", fmt.Errorf("model file %s not found and no model_url configured", dest)
	}
	src := JoinURL(l.cfg.URL, l.cfg.FileName)
	ok, err := l.fs.Exists(ctx, src)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if !ok {
		return "", fmt.Errorf("model file %s not found", src)
	}
	if err := os.MkdirAll(l.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model dir: %w", err)
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return "", err
	}
	l.logger.Info().Str("from", src).Str("to", abs).Msg("fetching model file")
	if err := l.fs.Copy(ctx, src, abs, option.NewSource(option.NewStream(partSize, 0)), option.NewDest(option.NewSkipChecksum(true))); err != nil {
		_ = os.Remove(abs)
		return "", fmt.Errorf("failed to fetch %s: %w", src, err)
	}
	return dest, nil
}

func (l *ArtifactLoader) metadata(ctx context.Context) (Metadata, error) {
	var meta Metadata
	if l.cfg.MetaName == "" {
		return meta, nil
	}
	src := filepath.Join(l.cfg.Dir, l.cfg.MetaName)
	if _, err := os.Stat(src); err != nil {
		if l.cfg.URL == "" {
			return meta, nil
		}
		src = JoinURL(l.cfg.URL, l.cfg.MetaName)
		ok, err := l.fs.Exists(ctx, src)
		if err != nil || !ok {
			return meta, nil
		}
	}
	b, err := l.fs.DownloadWithURL(ctx, src)
	if err != nil {
		return meta, fmt.Errorf("failed to read %s: %w", src, err)
	}
	if err := jsoniter.Unmarshal(b, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse %s: %w", src, err)
	}
	return meta, nil
}

// Validate rejects metadata that declares a label set other than the fixed one.
func (m Metadata) Validate() error {
	if len(m.Labels) == 0 {
		return nil
	}
	want := label.All()
	if len(m.Labels) != len(want) {
		return fmt.Errorf("model declares %d labels, want %d", len(m.Labels), len(want))
	}
	for i, name := range m.Labels {
		got, err := label.Parse(name)
		if err != nil || got != want[i] {
			return fmt.Errorf("model label %d is %q, want %q", i, name, want[i])
		}
	}
	return nil
}

// JoinURL appends name to a local path or a URL.
func JoinURL(base, name string) string {
	if strings.Contains(base, "://") {
		return strings.TrimSuffix(base, "/") + "/" + name
	}
	return filepath.Join(base, name)
}
