// Package inference runs the loaded classifier on a prepared tensor.
package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/krau/autotone/label"
	"github.com/krau/autotone/metrics"
	"github.com/krau/autotone/model"
	"github.com/krau/autotone/preprocess"
	"github.com/krau/autotone/tensor"
	"github.com/rs/zerolog"
)

// Handle is the part of the model lifecycle the engine depends on.
type Handle interface {
	Ready() bool
	State() model.State
	Session() (model.Session, error)
}

// Error reports a failure inside the inference runtime. The input tensor is
// still owned, and released, by the caller.
type Error struct {
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("inference failed: %v", e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// ShapeError is returned for tensors that do not match the model input.
type ShapeError struct {
	Got tensor.Shape
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("input tensor shape %v, want %v", e.Got, preprocess.InputShape)
}

// Engine invokes the model. It holds no per-call state.
type Engine struct {
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger.With().Str("component", "inference").Logger()}
}

// Infer runs the model on t and returns one score per label. Readiness is
// checked before anything else; a model that is not loaded yields
// *model.NotReadyError. Infer never releases t.
func (e *Engine) Infer(ctx context.Context, m Handle, t *tensor.Tensor) (label.ScoreVector, error) {
	var scores label.ScoreVector
	if m == nil {
		return scores, &model.NotReadyError{State: model.StateUnloaded}
	}
	if !m.Ready() {
		metrics.InferenceErrors.WithLabelValues("not_ready").Inc()
		return scores, &model.NotReadyError{State: m.State()}
	}
	sess, err := m.Session()
	if err != nil {
		metrics.InferenceErrors.WithLabelValues("not_ready").Inc()
		return scores, err
	}
	if t == nil || t.Released() || !t.Shape().Equal(preprocess.InputShape) {
		metrics.InferenceErrors.WithLabelValues("shape").Inc()
		var got tensor.Shape
		if t != nil {
			got = t.Shape()
		}
		return scores, &ShapeError{Got: got}
	}

	start := time.Now()
	out, err := sess.Run(ctx, t)
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		reason := "runtime"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			reason = "canceled"
		}
		metrics.InferenceErrors.WithLabelValues(reason).Inc()
		e.logger.Error().Err(err).Msg("model run failed")
		return scores, &Error{Err: err}
	}
	scores, err = label.FromScores(out)
	if err != nil {
		metrics.InferenceErrors.WithLabelValues("output").Inc()
		return scores, &Error{Err: err}
	}
	e.logger.Debug().Dur("took", time.Since(start)).Floats32("scores", scores[:]).Msg("model run")
	return scores, nil
}
