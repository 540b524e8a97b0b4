// Package onnx binds the classifier to onnxruntime.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/krau/autotone/label"
	"github.com/krau/autotone/model"
	"github.com/krau/autotone/preprocess"
	"github.com/krau/autotone/tensor"
	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"
)

type worker struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func (w *worker) destroy() error {
	var errs []error
	if w.session != nil {
		errs = append(errs, w.session.Destroy())
	}
	if w.input != nil {
		errs = append(errs, w.input.Destroy())
	}
	if w.output != nil {
		errs = append(errs, w.output.Destroy())
	}
	return errors.Join(errs...)
}

// Pool is a set of identical sessions over one model file. Each Run borrows
// one worker, so concurrent callers never share input or output buffers.
type Pool struct {
	workers chan *worker
	all     []*worker

	done      chan struct{}
	closeOnce sync.Once
}

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("onnx session pool is closed")

func newPool(n int) *Pool {
	return &Pool{workers: make(chan *worker, n), done: make(chan struct{})}
}

// Opener opens models as a Pool of Workers sessions. It implements
// model.Opener.
type Opener struct {
	Workers int
	Logger  zerolog.Logger
}

// Open implements model.Opener.
func (o Opener) Open(modelPath string, meta model.Metadata) (model.Session, error) {
	inputName, outputName := meta.InputName, meta.OutputName
	if inputName == "" || outputName == "" {
		inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
		if err != nil {
			return nil, fmt.Errorf("failed to get model input/output info: %w", err)
		}
		if len(inputs) == 0 || len(outputs) == 0 {
			return nil, fmt.Errorf("model has %d inputs and %d outputs", len(inputs), len(outputs))
		}
		if inputName == "" {
			inputName = inputs[0].Name
		}
		if outputName == "" {
			outputName = outputs[0].Name
		}
	}

	n := max(o.Workers, 1)
	p := newPool(n)
	for i := 0; i < n; i++ {
		w, err := newWorker(modelPath, inputName, outputName)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.all = append(p.all, w)
		p.workers <- w
	}
	o.Logger.Info().
		Str("input", inputName).
		Str("output", outputName).
		Int("workers", n).
		Msg("onnx session pool ready")
	return p, nil
}

func newWorker(modelPath, inputName, outputName string) (*worker, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()

	w := &worker{}
	w.input, err = ort.NewEmptyTensor[float32](ort.NewShape(preprocess.InputShape.Int64()...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	w.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, label.Count))
	if err != nil {
		_ = w.destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	w.session, err = ort.NewAdvancedSession(
		modelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.Value{w.input},
		[]ort.Value{w.output},
		opts,
	)
	if err != nil {
		_ = w.destroy()
		return nil, fmt.Errorf("failed to create ONNX Runtime session: %w", err)
	}
	return w, nil
}

// Run implements model.Session.
func (p *Pool) Run(ctx context.Context, in *tensor.Tensor) ([]float32, error) {
	data, err := in.Data()
	if err != nil {
		return nil, err
	}
	var w *worker
	select {
	case <-p.done:
		return nil, ErrClosed
	case w = <-p.workers:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { p.workers <- w }()

	dst := w.input.GetData()
	if len(dst) != len(data) {
		return nil, fmt.Errorf("input has %d values, session expects %d", len(data), len(dst))
	}
	copy(dst, data)
	if err := w.session.Run(); err != nil {
		return nil, err
	}
	logits := w.output.GetData()
	out := make([]float32, len(logits))
	copy(out, logits)
	return out, nil
}

// Close destroys every session and tensor in the pool. Workers still
// borrowed by a Run are destroyed once they are returned.
func (p *Pool) Close() error {
	var errs []error
	p.closeOnce.Do(func() {
		close(p.done)
		for i, n := 0, len(p.all); i < n; i++ {
			errs = append(errs, (<-p.workers).destroy())
		}
		p.all = nil
	})
	return errors.Join(errs...)
}
