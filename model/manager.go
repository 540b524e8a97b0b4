// Package model owns the lifecycle of the classifier: it loads the artifact
// once per process, records whether that succeeded, and hands the loaded
// session to the inference engine.
package model

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/krau/autotone/metrics"
	"github.com/krau/autotone/tensor"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of the model handle.
type State string

const (
	StateUnloaded   State = "unloaded"
	StateLoaded     State = "loaded"
	StateLoadFailed State = "load_failed"
)

func (s State) gauge() float64 {
	switch s {
	case StateLoaded:
		return 1
	case StateLoadFailed:
		return 2
	default:
		return 0
	}
}

// Session runs the loaded model on one input tensor and returns the raw
// output scores.
type Session interface {
	Run(ctx context.Context, input *tensor.Tensor) ([]float32, error)
	Close() error
}

// Loader fetches and materializes the model.
type Loader interface {
	Load(ctx context.Context) (Session, error)
}

type LoaderFunc func(ctx context.Context) (Session, error)

func (f LoaderFunc) Load(ctx context.Context) (Session, error) { return f(ctx) }

// Manager is the process-wide model handle. Load runs at most once; after a
// successful load the session is read-only and shared by every caller.
type Manager struct {
	loader Loader
	logger zerolog.Logger

	once sync.Once
	done chan struct{}

	mu      sync.RWMutex
	state   State
	session Session
	err     error
}

func New(loader Loader, logger zerolog.Logger) *Manager {
	return &Manager{
		loader: loader,
		logger: logger.With().Str("component", "model").Logger(),
		done:   make(chan struct{}),
		state:  StateUnloaded,
	}
}

// Load fetches and opens the model. Only the first call does any work; later
// calls wait for it and return the same outcome. A failure leaves the
// manager in StateLoadFailed for the rest of the process.
func (m *Manager) Load(ctx context.Context) error {
	m.once.Do(func() {
		defer close(m.done)
		start := time.Now()
		m.logger.Info().Msg("loading model")

		var (
			sess Session
			err  error
		)
		if m.loader == nil {
			err = errors.New("no model loader configured")
		} else {
			sess, err = m.loader.Load(ctx)
		}
		metrics.ModelLoadDuration.Observe(time.Since(start).Seconds())

		m.mu.Lock()
		defer m.mu.Unlock()
		if err != nil {
			if !IsLoadError(err) {
				err = &LoadError{Err: err}
			}
			m.state = StateLoadFailed
			m.err = err
			metrics.ModelState.Set(m.state.gauge())
			m.logger.Error().Err(err).Msg("model load failed")
			return
		}
		m.state = StateLoaded
		m.session = sess
		metrics.ModelState.Set(m.state.gauge())
		m.logger.Info().Dur("took", time.Since(start)).Msg("model loaded")
	})
	<-m.done
	return m.Err()
}

// Wait blocks until a Load started elsewhere has finished.
func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateLoaded
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Session returns the loaded session, or a *NotReadyError.
func (m *Manager) Session() (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateLoaded || m.session == nil {
		return nil, &NotReadyError{State: m.state}
	}
	return m.session, nil
}

// Close releases the session at process shutdown.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	m.state = StateUnloaded
	metrics.ModelState.Set(m.state.gauge())
	return err
}
