package tensor

import "fmt"

// Scope tracks tensors allocated during a Tidy call.
type Scope struct {
	owned []*Tensor
}

// New allocates a tensor owned by the scope.
func (s *Scope) New(shape Shape) (*Tensor, error) {
	t, err := New(shape)
	if err != nil {
		return nil, err
	}
	s.owned = append(s.owned, t)
	return t, nil
}

// ExpandDims returns a scoped copy of t with a size-1 dimension inserted at axis.
func (s *Scope) ExpandDims(t *Tensor, axis int) (*Tensor, error) {
	src, err := t.Data()
	if err != nil {
		return nil, err
	}
	if axis < 0 || axis > len(t.shape) {
		return nil, fmt.Errorf("tensor: axis %d out of range for shape %v", axis, t.shape)
	}
	shape := make(Shape, 0, len(t.shape)+1)
	shape = append(shape, t.shape[:axis]...)
	shape = append(shape, 1)
	shape = append(shape, t.shape[axis:]...)
	out, err := s.New(shape)
	if err != nil {
		return nil, err
	}
	copy(out.data, src)
	return out, nil
}

// Tidy runs fn and releases every tensor allocated through the scope except
// the one fn returns. On error everything is released.
func Tidy(fn func(s *Scope) (*Tensor, error)) (*Tensor, error) {
	s := &Scope{}
	out, err := fn(s)
	for _, t := range s.owned {
		if err == nil && t == out {
			continue
		}
		t.Release()
	}
	if err != nil {
		if out != nil {
			out.Release()
		}
		return nil, err
	}
	return out, nil
}
