// Package service runs the recommend/apply flow for user sessions: it is the
// boundary where upload and adjust events enter the core.
package service

import (
	"context"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/krau/autotone/adjust"
	"github.com/krau/autotone/inference"
	"github.com/krau/autotone/label"
	"github.com/krau/autotone/metrics"
	"github.com/krau/autotone/model"
	"github.com/krau/autotone/preprocess"
	"github.com/rs/zerolog"
)

const defaultMaxSessions = 1024

// Recommender owns the sessions and drives preprocess, inference and mapping.
type Recommender struct {
	model  inference.Handle
	engine *inference.Engine
	logger zerolog.Logger

	maxSessions int

	mu       sync.Mutex
	sessions map[string]*Session
}

type Option func(*Recommender)

// WithMaxSessions caps the number of live sessions; the least recently used
// session is dropped when the cap is reached.
func WithMaxSessions(n int) Option {
	return func(r *Recommender) {
		if n > 0 {
			r.maxSessions = n
		}
	}
}

func New(m inference.Handle, engine *inference.Engine, logger zerolog.Logger, opts ...Option) *Recommender {
	r := &Recommender{
		model:       m,
		engine:      engine,
		logger:      logger.With().Str("component", "recommender").Logger(),
		maxSessions: defaultMaxSessions,
		sessions:    make(map[string]*Session),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Recommender) Ready() bool { return r.model.Ready() }

func (r *Recommender) ModelState() model.State { return r.model.State() }

func (r *Recommender) NewSession() *Session {
	s := newSession(uuid.NewString())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked()
	r.sessions[s.ID] = s
	return s
}

func (r *Recommender) Session(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, &SessionNotFoundError{SessionID: id}
	}
	return s, nil
}

func (r *Recommender) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Recommender) evictLocked() {
	if len(r.sessions) < r.maxSessions {
		return
	}
	type entry struct {
		id      string
		updated time.Time
	}
	entries := make([]entry, 0, len(r.sessions))
	for id, s := range r.sessions {
		if s.busy.Load() {
			continue
		}
		s.mu.Lock()
		entries = append(entries, entry{id, s.updated})
		s.mu.Unlock()
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].updated.Before(entries[j].updated) })
	for _, e := range entries {
		if len(r.sessions) < r.maxSessions {
			break
		}
		delete(r.sessions, e.id)
		r.logger.Debug().Str("session", e.id).Msg("session evicted")
	}
}

// Analyze handles a newly selected image. The image replaces the session's
// previous one and any earlier recommendation is discarded. An empty
// sessionID starts a new session.
//
// While one image of a session is being analyzed, further uploads to the
// same session fail with *BusyError; the in-flight analysis continues.
func (r *Recommender) Analyze(ctx context.Context, sessionID string, img image.Image, format string) (*Result, error) {
	var (
		s   *Session
		err error
	)
	if sessionID == "" {
		s = r.NewSession()
	} else if s, err = r.Session(sessionID); err != nil {
		return nil, err
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, &BusyError{SessionID: s.ID}
	}
	defer s.busy.Store(false)

	logger := r.logger.With().Str("session", s.ID).Logger()

	s.mu.Lock()
	s.asset = &Asset{Image: img, Format: format}
	s.applicator.Reset()
	s.updated = time.Now()
	s.mu.Unlock()

	scores, err := r.score(ctx, img)
	if err != nil {
		logger.Warn().Err(err).Msg("analysis failed")
		return nil, err
	}
	l := label.MapToLabel(scores)

	s.mu.Lock()
	s.scores = scores
	s.applicator.Recommend(l)
	s.updated = time.Now()
	s.mu.Unlock()

	metrics.Recommendations.WithLabelValues(l.String()).Inc()
	logger.Info().Str("label", l.String()).Msg("recommendation ready")
	return &Result{
		SessionID: s.ID,
		Label:     l,
		Text:      label.Text(l),
		Scores:    scores.Map(),
	}, nil
}

// score runs preprocess and inference. The readiness check comes first so a
// missing model never allocates a tensor; once allocated, the tensor is
// released on every path.
func (r *Recommender) score(ctx context.Context, img image.Image) (label.ScoreVector, error) {
	if !r.model.Ready() {
		return label.ScoreVector{}, &model.NotReadyError{State: r.model.State()}
	}
	t, err := preprocess.Preprocess(img)
	if err != nil {
		return label.ScoreVector{}, err
	}
	defer t.Release()
	return r.engine.Infer(ctx, r.model, t)
}

// Adjust applies the session's recommendation to its displayed image.
func (r *Recommender) Adjust(ctx context.Context, sessionID string) (*Adjustment, error) {
	s, err := r.Session(sessionID)
	if err != nil {
		return nil, &adjust.PreconditionError{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.asset == nil {
		return nil, &adjust.PreconditionError{}
	}
	spec, err := s.applicator.Apply(&s.asset.Display)
	if err != nil {
		r.logger.Warn().Err(err).Str("session", s.ID).Msg("adjustment refused")
		return nil, err
	}
	s.updated = time.Now()
	metrics.Adjustments.WithLabelValues(spec.Label.String()).Inc()
	return &Adjustment{
		SessionID: s.ID,
		Label:     spec.Label,
		Filter:    s.asset.Display.Filter(),
		Spec:      spec,
	}, nil
}

// Render returns the session's image as currently displayed.
func (r *Recommender) Render(sessionID string) (*image.NRGBA, error) {
	s, err := r.Session(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.asset == nil {
		return nil, &adjust.PreconditionError{}
	}
	return adjust.RenderDisplay(s.asset.Image, &s.asset.Display), nil
}

func (r *Recommender) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.sessions)
}
