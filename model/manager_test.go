package model

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/krau/autotone/logging"
	"github.com/krau/autotone/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	closed atomic.Bool
}

func (s *fakeSession) Run(ctx context.Context, in *tensor.Tensor) ([]float32, error) {
	return make([]float32, 6), nil
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}

func TestManagerStartsUnloaded(t *testing.T) {
	m := New(nil, logging.Nop())
	assert.Equal(t, StateUnloaded, m.State())
	assert.False(t, m.Ready())
	assert.NoError(t, m.Err())

	_, err := m.Session()
	var nr *NotReadyError
	require.True(t, errors.As(err, &nr))
	assert.Equal(t, StateUnloaded, nr.State)
}

func TestManagerLoadSuccess(t *testing.T) {
	sess := &fakeSession{}
	m := New(LoaderFunc(func(ctx context.Context) (Session, error) { return sess, nil }), logging.Nop())

	require.NoError(t, m.Load(testCtx(t)))
	assert.Equal(t, StateLoaded, m.State())
	assert.True(t, m.Ready())

	got, err := m.Session()
	require.NoError(t, err)
	assert.Same(t, sess, got)

	require.NoError(t, m.Close())
	assert.True(t, sess.closed.Load())
	assert.False(t, m.Ready())
	require.NoError(t, m.Close())
}

func TestManagerLoadFailureIsTerminal(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("404 not found")
	m := New(LoaderFunc(func(ctx context.Context) (Session, error) {
		calls.Add(1)
		return nil, boom
	}), logging.Nop())

	err := m.Load(testCtx(t))
	require.Error(t, err)
	assert.True(t, IsLoadError(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateLoadFailed, m.State())
	assert.False(t, m.Ready())

	// no automatic retry
	err = m.Load(testCtx(t))
	assert.True(t, IsLoadError(err))
	assert.Equal(t, int32(1), calls.Load())

	_, err = m.Session()
	assert.True(t, IsNotReady(err))
	assert.Contains(t, err.Error(), "load_failed")
}

func TestManagerKeepsLoaderLoadError(t *testing.T) {
	le := &LoadError{URL: "s3://bucket/model", Err: errors.New("denied")}
	m := New(LoaderFunc(func(ctx context.Context) (Session, error) { return nil, le }), logging.Nop())
	err := m.Load(testCtx(t))
	var got *LoadError
	require.True(t, errors.As(err, &got))
	assert.Same(t, le, got)
	assert.Equal(t, "model load failed (s3://bucket/model): denied", err.Error())
}

func TestManagerNilLoader(t *testing.T) {
	m := New(nil, logging.Nop())
	assert.True(t, IsLoadError(m.Load(testCtx(t))))
}

func TestManagerLoadOnceUnderConcurrency(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	m := New(LoaderFunc(func(ctx context.Context) (Session, error) {
		calls.Add(1)
		<-release
		return &fakeSession{}, nil
	}), logging.Nop())

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Load(testCtx(t))
		}(i)
	}
	assert.False(t, m.Ready())
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, m.Ready())
}

func TestManagerWait(t *testing.T) {
	release := make(chan struct{})
	m := New(LoaderFunc(func(ctx context.Context) (Session, error) {
		<-release
		return &fakeSession{}, nil
	}), logging.Nop())

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Wait(short), context.DeadlineExceeded)

	go func() { _ = m.Load(context.Background()) }()
	close(release)
	require.NoError(t, m.Wait(testCtx(t)))
	assert.True(t, m.Ready())
}
