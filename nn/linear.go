package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Linear is a fully connected layer: y = x·Wᵀ + b. Inputs of rank > 2 are
// flattened per sample.
type Linear struct {
	In, Out int

	Weight *Param
	Bias   *Param

	x      []float32
	n      int
	xShape []int
}

// NewLinear creates a fully connected layer with Glorot-uniform weights.
func NewLinear(name string, in, out int, rng *rand.Rand) *Linear {
	l := &Linear{
		In: in, Out: out,
		Weight: newParam(name+".weight", out, in),
		Bias:   newParam(name+".bias", out),
	}
	glorotUniform(rng, l.Weight.Value.Data, in, out)
	return l
}

func (l *Linear) Params() []*Param { return []*Param{l.Weight, l.Bias} }

func (l *Linear) Forward(x *Tensor) *Tensor {
	n := x.Shape[0]
	if x.Len() != n*l.In {
		panic(fmt.Sprintf("nn: linear expects %d features, got shape %v", l.In, x.Shape))
	}
	l.x, l.n = x.Data, n
	l.xShape = append(l.xShape[:0], x.Shape...)
	out := NewTensor(n, l.Out)
	for i := 0; i < n; i++ {
		copy(out.Data[i*l.Out:(i+1)*l.Out], l.Bias.Value.Data)
	}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: n, Cols: l.In, Stride: l.In, Data: x.Data},
		blas32.General{Rows: l.Out, Cols: l.In, Stride: l.In, Data: l.Weight.Value.Data},
		1,
		blas32.General{Rows: n, Cols: l.Out, Stride: l.Out, Data: out.Data})
	return out
}

func (l *Linear) Backward(gradOut *Tensor) *Tensor {
	n := l.n
	g := blas32.General{Rows: n, Cols: l.Out, Stride: l.Out, Data: gradOut.Data}
	for i := 0; i < n; i++ {
		row := gradOut.Data[i*l.Out : (i+1)*l.Out]
		for j, v := range row {
			l.Bias.Grad.Data[j] += v
		}
	}
	// dW += gᵀ · x
	blas32.Gemm(blas.Trans, blas.NoTrans, 1,
		g,
		blas32.General{Rows: n, Cols: l.In, Stride: l.In, Data: l.x},
		1,
		blas32.General{Rows: l.Out, Cols: l.In, Stride: l.In, Data: l.Weight.Grad.Data})
	// dx = g · W
	gradIn := NewTensor(n, l.In)
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		g,
		blas32.General{Rows: l.Out, Cols: l.In, Stride: l.In, Data: l.Weight.Value.Data},
		0,
		blas32.General{Rows: n, Cols: l.In, Stride: l.In, Data: gradIn.Data})
	return gradIn.Reshape(l.xShape...)
}
