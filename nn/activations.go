package nn

import "math"

// ReLU is max(0, x).
type ReLU struct{ out *Tensor }

func (r *ReLU) Forward(x *Tensor) *Tensor {
	out := x.Clone()
	for i, v := range out.Data {
		if v < 0 {
			out.Data[i] = 0
		}
	}
	r.out = out
	return out
}

func (r *ReLU) Backward(grad *Tensor) *Tensor {
	g := grad.Clone()
	for i, v := range r.out.Data {
		if v <= 0 {
			g.Data[i] = 0
		}
	}
	return g
}

func (r *ReLU) Params() []*Param { return nil }

// LeakyReLU is x for x > 0 and Slope*x otherwise.
type LeakyReLU struct {
	Slope float32
	in    *Tensor
}

// NewLeakyReLU returns a LeakyReLU with the given negative slope.
func NewLeakyReLU(slope float32) *LeakyReLU { return &LeakyReLU{Slope: slope} }

func (l *LeakyReLU) Forward(x *Tensor) *Tensor {
	l.in = x
	out := x.Clone()
	for i, v := range out.Data {
		if v < 0 {
			out.Data[i] = v * l.Slope
		}
	}
	return out
}

func (l *LeakyReLU) Backward(grad *Tensor) *Tensor {
	g := grad.Clone()
	for i, v := range l.in.Data {
		if v < 0 {
			g.Data[i] *= l.Slope
		}
	}
	return g
}

func (l *LeakyReLU) Params() []*Param { return nil }

// Sigmoid is 1/(1+exp(-x)).
type Sigmoid struct{ out *Tensor }

func (s *Sigmoid) Forward(x *Tensor) *Tensor {
	out := NewTensor(x.Shape...)
	for i, v := range x.Data {
		out.Data[i] = float32(1 / (1 + math.Exp(-float64(v))))
	}
	s.out = out
	return out
}

func (s *Sigmoid) Backward(grad *Tensor) *Tensor {
	g := NewTensor(grad.Shape...)
	for i, y := range s.out.Data {
		g.Data[i] = grad.Data[i] * y * (1 - y)
	}
	return g
}

func (s *Sigmoid) Params() []*Param { return nil }

// Upsample repeats every pixel of an NCHW tensor Factor times along both
// spatial axes (nearest neighbour).
type Upsample struct {
	Factor  int
	inShape []int
}

// NewUpsample returns a nearest-neighbour upsampling layer.
func NewUpsample(factor int) *Upsample { return &Upsample{Factor: factor} }

func (u *Upsample) Forward(x *Tensor) *Tensor {
	n, c, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	f := u.Factor
	u.inShape = append(u.inShape[:0], x.Shape...)
	oh, ow := h*f, w*f
	out := NewTensor(n, c, oh, ow)
	for p := 0; p < n*c; p++ {
		src := x.Data[p*h*w : (p+1)*h*w]
		dst := out.Data[p*oh*ow : (p+1)*oh*ow]
		for y := 0; y < oh; y++ {
			for xx := 0; xx < ow; xx++ {
				dst[y*ow+xx] = src[(y/f)*w+xx/f]
			}
		}
	}
	return out
}

func (u *Upsample) Backward(grad *Tensor) *Tensor {
	n, c, h, w := u.inShape[0], u.inShape[1], u.inShape[2], u.inShape[3]
	f := u.Factor
	oh, ow := h*f, w*f
	g := NewTensor(u.inShape...)
	for p := 0; p < n*c; p++ {
		src := grad.Data[p*oh*ow : (p+1)*oh*ow]
		dst := g.Data[p*h*w : (p+1)*h*w]
		for y := 0; y < oh; y++ {
			for xx := 0; xx < ow; xx++ {
				dst[(y/f)*w+xx/f] += src[y*ow+xx]
			}
		}
	}
	return g
}

func (u *Upsample) Params() []*Param { return nil }

// Flatten reshapes [N, ...] into [N, prod(...)].
type Flatten struct{ inShape []int }

func (f *Flatten) Forward(x *Tensor) *Tensor {
	f.inShape = append(f.inShape[:0], x.Shape...)
	return x.Reshape(x.Shape[0], x.Len()/x.Shape[0])
}

func (f *Flatten) Backward(grad *Tensor) *Tensor {
	return grad.Reshape(f.inShape...)
}

func (f *Flatten) Params() []*Param { return nil }
