// Package tensor provides a minimal n-dimensional float64 array used to carry
// batched scan-parameter grids and screen observations between packages.
//
// It is intentionally small: a flat backing slice plus a shape, with row-major
// indexing. Heavy linear algebra is done with gonum matrices; this type only
// exists because scan grids and image stacks are rank 3 and 4.
package tensor

import "fmt"

// Tensor is an n-D array backed by a flat []float64 in row-major order.
type Tensor struct {
	Data  []float64
	Shape []int
}

// New allocates a zero-filled Tensor of the given shape.
func New(shape ...int) *Tensor {
	return &Tensor{
		Data:  make([]float64, numElements(shape)),
		Shape: append([]int(nil), shape...),
	}
}

// FromFlat wraps an existing flat slice as a tensor of the given shape. The
// slice is used directly, not copied. The length must match the shape.
func FromFlat(data []float64, shape ...int) (*Tensor, error) {
	if len(data) != numElements(shape) {
		return nil, fmt.Errorf("flat data length %d does not match shape %v", len(data), shape)
	}
	return &Tensor{Data: data, Shape: append([]int(nil), shape...)}, nil
}

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return len(t.Shape) }

// Size returns the total number of elements.
func (t *Tensor) Size() int { return len(t.Data) }

// At returns the element at the given multi-index.
func (t *Tensor) At(idx ...int) float64 {
	return t.Data[t.offset(idx)]
}

// Set writes the element at the given multi-index.
func (t *Tensor) Set(v float64, idx ...int) {
	t.Data[t.offset(idx)] = v
}

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("tensor: index rank %d against shape %v", len(idx), t.Shape))
	}
	off := 0
	for i, ix := range idx {
		if ix < 0 || ix >= t.Shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.Shape))
		}
		off = off*t.Shape[i] + ix
	}
	return off
}

// Reshape returns a view of the same data with a new shape. The element count
// must be preserved.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	if numElements(shape) != len(t.Data) {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v", t.Shape, len(t.Data), shape)
	}
	return &Tensor{Data: t.Data, Shape: append([]int(nil), shape...)}, nil
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), t.Data...),
		Shape: append([]int(nil), t.Shape...),
	}
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b *Tensor) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float64 {
	s := 0.0
	for _, v := range t.Data {
		s += v
	}
	return s
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
