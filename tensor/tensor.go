// Package tensor provides float32 tensors with explicit release.
//
// Buffers come from a pool and must be handed back with Release once the
// tensor is no longer needed. Tidy runs a function in a scope that releases
// every tensor allocated through it except the one returned, so only the
// final result of a multi-step computation escapes.
package tensor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrReleased is returned when a released tensor is used.
var ErrReleased = errors.New("tensor: use after release")

// Shape lists dimension sizes, outermost first.
type Shape []int

func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) Int64() []int64 {
	out := make([]int64, len(s))
	for i, d := range s {
		out[i] = int64(d)
	}
	return out
}

func (s Shape) String() string { return fmt.Sprint([]int(s)) }

// Tensor is a dense row-major float32 array.
type Tensor struct {
	shape    Shape
	data     []float32
	released atomic.Bool
}

var (
	live atomic.Int64
	pool sync.Pool
)

// Live returns the number of allocated tensors that have not been released.
func Live() int64 { return live.Load() }

// New allocates a zeroed tensor of the given shape.
func New(shape Shape) (*Tensor, error) {
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("tensor: invalid shape %v", shape)
		}
	}
	size := shape.Size()
	var buf []float32
	if p, ok := pool.Get().(*[]float32); ok && cap(*p) >= size {
		buf = (*p)[:size]
		clear(buf)
	} else {
		buf = make([]float32, size)
	}
	live.Add(1)
	return &Tensor{shape: append(Shape(nil), shape...), data: buf}, nil
}

func (t *Tensor) Shape() Shape { return append(Shape(nil), t.shape...) }

// Data exposes the underlying buffer. It must not be retained after Release.
func (t *Tensor) Data() ([]float32, error) {
	if t.released.Load() {
		return nil, ErrReleased
	}
	return t.data, nil
}

func (t *Tensor) Released() bool { return t.released.Load() }

// Release returns the buffer to the pool. Calling it more than once is a no-op.
func (t *Tensor) Release() {
	if t == nil || !t.released.CompareAndSwap(false, true) {
		return
	}
	buf := t.data[:0]
	t.data = nil
	live.Add(-1)
	pool.Put(&buf)
}
