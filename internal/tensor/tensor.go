package tensor

import (
	"errors"
	"fmt"
	"math"
)

var ErrShape = errors.New("shape mismatch")

// Array is a dense row-major float64 array.
type Array struct {
	Shape []int
	Data  []float64
}

// New allocates a zero-filled array of the given shape.
func New(shape ...int) Array {
	return Array{Shape: append([]int(nil), shape...), Data: make([]float64, Size(shape))}
}

// FromSlice wraps data as a 1-D array without copying.
func FromSlice(data []float64) Array {
	return Array{Shape: []int{len(data)}, Data: data}
}

// Scalar returns a 0-d array holding v.
func Scalar(v float64) Array {
	return Array{Shape: []int{}, Data: []float64{v}}
}

// FromRows stacks equally sized rows into a 2-D array.
func FromRows(rows [][]float64) (Array, error) {
	if len(rows) == 0 {
		return Array{Shape: []int{0, 0}}, nil
	}
	width := len(rows[0])
	out := New(len(rows), width)
	for i, row := range rows {
		if len(row) != width {
			return Array{}, fmt.Errorf("%w: row %d has %d values, want %d", ErrShape, i, len(row), width)
		}
		copy(out.Data[i*width:], row)
	}
	return out, nil
}

// Size returns the number of elements described by shape.
func Size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func (a Array) Len() int {
	return len(a.Data)
}

func (a Array) NDim() int {
	return len(a.Shape)
}

func (a Array) Clone() Array {
	return Array{
		Shape: append([]int(nil), a.Shape...),
		Data:  append([]float64(nil), a.Data...),
	}
}

// Reshape returns a view with a new shape over the same data.
func (a Array) Reshape(shape ...int) (Array, error) {
	if Size(shape) != len(a.Data) {
		return Array{}, fmt.Errorf("%w: cannot reshape %v into %v", ErrShape, a.Shape, shape)
	}
	return Array{Shape: append([]int(nil), shape...), Data: a.Data}, nil
}

// Squeeze drops every axis of length one.
func (a Array) Squeeze() Array {
	shape := make([]int, 0, len(a.Shape))
	for _, d := range a.Shape {
		if d != 1 {
			shape = append(shape, d)
		}
	}
	return Array{Shape: shape, Data: a.Data}
}

// Rows splits the leading axis into row views.
func (a Array) Rows() [][]float64 {
	if len(a.Shape) == 0 {
		return [][]float64{a.Data}
	}
	n := a.Shape[0]
	if n == 0 {
		return nil
	}
	width := len(a.Data) / n
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = a.Data[i*width : (i+1)*width]
	}
	return rows
}

// Slice returns a copy of the half-open range [from, to) of a 1-D array.
func (a Array) Slice(from, to int) Array {
	return FromSlice(append([]float64(nil), a.Data[from:to]...))
}

// Apply returns a copy with fn applied elementwise.
func (a Array) Apply(fn func(float64) float64) Array {
	out := a.Clone()
	for i, v := range out.Data {
		out.Data[i] = fn(v)
	}
	return out
}

// Pow10 is Apply(10**x).
func (a Array) Pow10() Array {
	return a.Apply(func(x float64) float64 { return math.Pow(10, x) })
}

// Equal reports element-wise equality, treating NaN as equal to NaN.
func Equal(a, b Array) bool {
	if len(a.Shape) != len(b.Shape) || len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] && !(math.IsNaN(a.Data[i]) && math.IsNaN(b.Data[i])) {
			return false
		}
	}
	return true
}

// Argmin returns the index of the smallest value, -1 for empty input.
func Argmin(values []float64) int {
	best := -1
	for i, v := range values {
		if best < 0 || v < values[best] {
			best = i
		}
	}
	return best
}

// Affine returns offset + scale*a, broadcasting offset and scale over the
// trailing axes of a the way numpy does for 1-D operands.
func Affine(a Array, offset, scale []float64) (Array, error) {
	if err := checkTrailing(a.Shape, len(offset)); err != nil {
		return Array{}, fmt.Errorf("offset: %w", err)
	}
	if err := checkTrailing(a.Shape, len(scale)); err != nil {
		return Array{}, fmt.Errorf("scale: %w", err)
	}
	out := a.Clone()
	for i, v := range out.Data {
		out.Data[i] = offset[i%len(offset)] + scale[i%len(scale)]*v
	}
	return out, nil
}

func checkTrailing(shape []int, n int) error {
	if n == 1 {
		return nil
	}
	size := 1
	for i := len(shape) - 1; i >= 0; i-- {
		size *= shape[i]
		if size == n {
			return nil
		}
	}
	return fmt.Errorf("%w: %d values do not broadcast over %v", ErrShape, n, shape)
}
