package service

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/krau/autotone/adjust"
	"github.com/krau/autotone/inference"
	"github.com/krau/autotone/label"
	"github.com/krau/autotone/logging"
	"github.com/krau/autotone/model"
	"github.com/krau/autotone/preprocess"
	"github.com/krau/autotone/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSession struct {
	mu     sync.Mutex
	scores []float32
	err    error
	block  chan struct{}
	calls  int
}

func (s *stubSession) Run(ctx context.Context, in *tensor.Tensor) ([]float32, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !in.Shape().Equal(preprocess.InputShape) {
		return nil, errors.New("unexpected input shape")
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.scores, nil
}

func (s *stubSession) Close() error { return nil }

func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func loaded(t *testing.T, sess model.Session) *model.Manager {
	t.Helper()
	m := model.New(model.LoaderFunc(func(context.Context) (model.Session, error) { return sess, nil }), logging.Nop())
	require.NoError(t, m.Load(testCtx(t)))
	return m
}

func newRecommender(m inference.Handle, opts ...Option) *Recommender {
	return New(m, inference.New(logging.Nop()), logging.Nop(), opts...)
}

func sample() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 4), uint8(y * 5), 90, 255})
		}
	}
	return img
}

func TestAnalyzeThenAdjust(t *testing.T) {
	sess := &stubSession{scores: []float32{0.9, 0.05, 0.02, 0.01, 0.01, 0.01}}
	r := newRecommender(loaded(t, sess))
	live := tensor.Live()

	res, err := r.Analyze(testCtx(t), "", sample(), "png")
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, label.Brighten, res.Label)
	assert.Equal(t, "recommended adjustment: Brighten", res.Text)
	assert.InDelta(t, 0.9, res.Scores["Brighten"], 1e-6)
	assert.Equal(t, live, tensor.Live(), "tensors must be released after analysis")

	s, err := r.Session(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, adjust.RecommendationReady, s.Snapshot().State)

	adj, err := r.Adjust(testCtx(t), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, label.Brighten, adj.Label)
	assert.Equal(t, adjust.Brightness, adj.Spec.Filter)
	assert.Equal(t, 1.3, adj.Spec.Amount)
	assert.Equal(t, "brightness(1.3)", adj.Filter)

	snap := s.Snapshot()
	assert.Equal(t, adjust.Applied, snap.State)
	assert.Equal(t, "brightness(1.3)", snap.Filter)
	require.NotNil(t, snap.Label)
	assert.Equal(t, label.Brighten, *snap.Label)

	// applying twice is idempotent
	again, err := r.Adjust(testCtx(t), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, adj.Filter, again.Filter)

	out, err := r.Render(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sample().Bounds(), out.Bounds())
}

func TestAnalyzeCoolLabel(t *testing.T) {
	sess := &stubSession{scores: []float32{0.1, 0.1, 0.1, 0.1, 0.1, 0.5}}
	r := newRecommender(loaded(t, sess))

	res, err := r.Analyze(testCtx(t), "", sample(), "png")
	require.NoError(t, err)
	assert.Equal(t, label.Cool, res.Label)

	adj, err := r.Adjust(testCtx(t), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "hue-rotate(200deg)", adj.Filter)
}

func TestAnalyzeReplacesPreviousImage(t *testing.T) {
	sess := &stubSession{scores: []float32{0, 0.9, 0, 0, 0, 0}}
	r := newRecommender(loaded(t, sess))

	res, err := r.Analyze(testCtx(t), "", sample(), "png")
	require.NoError(t, err)
	_, err = r.Adjust(testCtx(t), res.SessionID)
	require.NoError(t, err)

	sess.mu.Lock()
	sess.scores = []float32{0, 0, 0.9, 0, 0, 0}
	sess.mu.Unlock()
	res2, err := r.Analyze(testCtx(t), res.SessionID, sample(), "jpeg")
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, res2.SessionID)
	assert.Equal(t, label.IncreaseContrast, res2.Label)

	s, _ := r.Session(res.SessionID)
	snap := s.Snapshot()
	assert.Equal(t, adjust.RecommendationReady, snap.State)
	assert.Equal(t, "", snap.Filter, "a new image starts unadjusted")
}

func TestAdjustBeforeAnalysis(t *testing.T) {
	r := newRecommender(loaded(t, &stubSession{scores: make([]float32, 6)}))
	var pe *adjust.PreconditionError

	_, err := r.Adjust(testCtx(t), "missing")
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindPrecondition, Classify(err))

	s := r.NewSession()
	_, err = r.Adjust(testCtx(t), s.ID)
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, adjust.NoRecommendationYet, s.Snapshot().State)
}

func TestAnalyzeModelLoadFailed(t *testing.T) {
	m := model.New(model.LoaderFunc(func(context.Context) (model.Session, error) {
		return nil, errors.New("404 not found")
	}), logging.Nop())
	require.Error(t, m.Load(testCtx(t)))
	r := newRecommender(m)
	live := tensor.Live()

	res, err := r.Analyze(testCtx(t), "", sample(), "png")
	assert.Nil(t, res)
	var nr *model.NotReadyError
	require.True(t, errors.As(err, &nr))
	assert.Equal(t, model.StateLoadFailed, nr.State)
	assert.Equal(t, KindModelNotReady, Classify(err))
	assert.Equal(t, "The model failed to load, so images cannot be analyzed.", Message(err))
	assert.Equal(t, live, tensor.Live(), "no tensor may be allocated without a model")
}

func TestAnalyzeModelUnloaded(t *testing.T) {
	m := model.New(nil, logging.Nop())
	r := newRecommender(m)
	_, err := r.Analyze(testCtx(t), "", sample(), "png")
	assert.Equal(t, KindModelNotReady, Classify(err))
	assert.Equal(t, "The model is not loaded yet. Try again shortly.", Message(err))
}

func TestAnalyzeInferenceFailureReleasesTensor(t *testing.T) {
	sess := &stubSession{err: errors.New("bad graph")}
	r := newRecommender(loaded(t, sess))
	live := tensor.Live()

	_, err := r.Analyze(testCtx(t), "", sample(), "png")
	var ie *inference.Error
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, KindInference, Classify(err))
	assert.Equal(t, live, tensor.Live())
}

func TestAnalyzeEmptyImage(t *testing.T) {
	r := newRecommender(loaded(t, &stubSession{scores: make([]float32, 6)}))
	_, err := r.Analyze(testCtx(t), "", image.NewNRGBA(image.Rect(0, 0, 0, 0)), "png")
	assert.Equal(t, KindImageNotReady, Classify(err))
}

func TestAnalyzeUnknownSession(t *testing.T) {
	r := newRecommender(loaded(t, &stubSession{scores: make([]float32, 6)}))
	_, err := r.Analyze(testCtx(t), "nope", sample(), "png")
	var nf *SessionNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, KindNotFound, Classify(err))
}

func TestAnalyzeRejectsConcurrentUpload(t *testing.T) {
	sess := &stubSession{scores: []float32{0.9, 0, 0, 0, 0, 0}, block: make(chan struct{})}
	r := newRecommender(loaded(t, sess))
	s := r.NewSession()

	done := make(chan error, 1)
	go func() {
		_, err := r.Analyze(testCtx(t), s.ID, sample(), "png")
		done <- err
	}()
	require.Eventually(t, func() bool {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return sess.calls == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, s.Snapshot().Analyzing)

	_, err := r.Analyze(testCtx(t), s.ID, sample(), "png")
	var be *BusyError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, KindBusy, Classify(err))

	close(sess.block)
	require.NoError(t, <-done)
	assert.Equal(t, adjust.RecommendationReady, s.Snapshot().State)
	assert.False(t, s.Snapshot().Analyzing)
}

func TestAnalyzeCanceled(t *testing.T) {
	sess := &stubSession{block: make(chan struct{})}
	r := newRecommender(loaded(t, sess))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	live := tensor.Live()

	_, err := r.Analyze(ctx, "", sample(), "png")
	assert.Equal(t, KindCanceled, Classify(err))
	assert.Equal(t, live, tensor.Live())
}

func TestSessionEviction(t *testing.T) {
	r := newRecommender(model.New(nil, logging.Nop()), WithMaxSessions(2))
	first := r.NewSession()
	time.Sleep(time.Millisecond)
	r.NewSession()
	time.Sleep(time.Millisecond)
	r.NewSession()
	assert.Equal(t, 2, r.Sessions())
	_, err := r.Session(first.ID)
	assert.Error(t, err)

	r.Close()
	assert.Equal(t, 0, r.Sessions())
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "Upload and analyze an image first.", Message(&adjust.PreconditionError{}))
	assert.Equal(t, "Could not read the uploaded file as an image.", Message(&preprocess.DecodeError{Err: errors.New("x")}))
	assert.Equal(t, "Failed to load the model. Check the server logs.", Message(&model.LoadError{URL: "u", Err: errors.New("x")}))
	assert.Equal(t, "Unknown recommendation.", Message(&adjust.UnknownLabelError{Label: 9}))
	assert.Equal(t, KindInternal, Classify(errors.New("boom")))
}
