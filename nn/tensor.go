package nn

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Tensor is a dense float32 array stored in row-major order. Image tensors use
// the NCHW layout: [batch, channels, height, width].
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor allocates a zero-filled tensor with the given shape.
func NewTensor(shape ...int) *Tensor {
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  make([]float32, numel(shape)),
	}
}

// FromData wraps data with the given shape. The slice is not copied.
func FromData(data []float32, shape ...int) (*Tensor, error) {
	if n := numel(shape); n != len(data) {
		return nil, errors.Errorf("shape %v needs %d values, got %d", shape, n, len(data))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Len returns the number of elements.
func (t *Tensor) Len() int { return len(t.Data) }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := &Tensor{Shape: append([]int(nil), t.Shape...), Data: make([]float32, len(t.Data))}
	copy(c.Data, t.Data)
	return c
}

// Reshape returns a view of t with a new shape sharing the same data.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	if numel(shape) != len(t.Data) {
		panic(fmt.Sprintf("nn: cannot reshape %v into %v", t.Shape, shape))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: t.Data}
}

// Zero sets every element to 0.
func (t *Tensor) Zero() {
	for i := range t.Data {
		t.Data[i] = 0
	}
}

// SameShape reports whether t and o have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// Rows returns a view of samples [start, end) along the batch dimension.
func (t *Tensor) Rows(start, end int) *Tensor {
	if start < 0 || end > t.Shape[0] || start > end {
		panic(fmt.Sprintf("nn: rows [%d,%d) out of range for batch %d", start, end, t.Shape[0]))
	}
	stride := len(t.Data) / t.Shape[0]
	shape := append([]int{end - start}, t.Shape[1:]...)
	return &Tensor{Shape: shape, Data: t.Data[start*stride : end*stride]}
}

// OnesLike returns a tensor of ones shaped like t.
func OnesLike(t *Tensor) *Tensor {
	o := NewTensor(t.Shape...)
	for i := range o.Data {
		o.Data[i] = 1
	}
	return o
}

// ZerosLike returns a tensor of zeros shaped like t.
func ZerosLike(t *Tensor) *Tensor {
	return NewTensor(t.Shape...)
}

// ConcatChannels joins two NCHW tensors with the same batch and spatial size
// along the channel axis.
func ConcatChannels(a, b *Tensor) *Tensor {
	n, ca, h, w := a.Shape[0], a.Shape[1], a.Shape[2], a.Shape[3]
	cb := b.Shape[1]
	if b.Shape[0] != n || b.Shape[2] != h || b.Shape[3] != w {
		panic(fmt.Sprintf("nn: cannot concat %v with %v", a.Shape, b.Shape))
	}
	out := NewTensor(n, ca+cb, h, w)
	plane := h * w
	for i := 0; i < n; i++ {
		dst := out.Data[i*(ca+cb)*plane:]
		copy(dst[:ca*plane], a.Data[i*ca*plane:(i+1)*ca*plane])
		copy(dst[ca*plane:(ca+cb)*plane], b.Data[i*cb*plane:(i+1)*cb*plane])
	}
	return out
}

// SplitChannels is the inverse of ConcatChannels: the first ca channels go to
// the first result, the rest to the second.
func SplitChannels(t *Tensor, ca int) (*Tensor, *Tensor) {
	n, c, h, w := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	cb := c - ca
	a := NewTensor(n, ca, h, w)
	b := NewTensor(n, cb, h, w)
	plane := h * w
	for i := 0; i < n; i++ {
		src := t.Data[i*c*plane:]
		copy(a.Data[i*ca*plane:(i+1)*ca*plane], src[:ca*plane])
		copy(b.Data[i*cb*plane:(i+1)*cb*plane], src[ca*plane:c*plane])
	}
	return a, b
}

// ToGomlx copies t into a gomlx tensor with the same shape.
func (t *Tensor) ToGomlx() *tensors.Tensor {
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return tensors.FromFlatDataAndDimensions(data, t.Shape...)
}
