package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Conv2D is a 2D convolution over NCHW input with a square kernel.
// The weight is stored as [out, in*k*k] so each sample reduces to one GEMM
// against its im2col matrix.
type Conv2D struct {
	In, Out         int
	Kernel          int
	Stride, Padding int

	Weight *Param
	Bias   *Param

	// cache from the last Forward
	inShape    []int
	outH, outW int
	cols       [][]float32
}

// NewConv2D creates a convolution layer with Glorot-uniform weights.
func NewConv2D(name string, in, out, kernel, stride, padding int, rng *rand.Rand) *Conv2D {
	c := &Conv2D{
		In: in, Out: out, Kernel: kernel, Stride: stride, Padding: padding,
		Weight: newParam(name+".weight", out, in*kernel*kernel),
		Bias:   newParam(name+".bias", out),
	}
	glorotUniform(rng, c.Weight.Value.Data, in*kernel*kernel, out*kernel*kernel)
	return c
}

// OutputSize returns the spatial output size for an input of size h x w.
func (c *Conv2D) OutputSize(h, w int) (int, int) {
	return (h+2*c.Padding-c.Kernel)/c.Stride + 1, (w+2*c.Padding-c.Kernel)/c.Stride + 1
}

func (c *Conv2D) Params() []*Param { return []*Param{c.Weight, c.Bias} }

func (c *Conv2D) Forward(x *Tensor) *Tensor {
	if len(x.Shape) != 4 || x.Shape[1] != c.In {
		panic(fmt.Sprintf("nn: conv expects [N,%d,H,W], got %v", c.In, x.Shape))
	}
	n, h, w := x.Shape[0], x.Shape[2], x.Shape[3]
	oh, ow := c.OutputSize(h, w)
	ckk := c.In * c.Kernel * c.Kernel
	hw := oh * ow

	c.inShape = append(c.inShape[:0], x.Shape...)
	c.outH, c.outW = oh, ow
	c.cols = make([][]float32, n)

	out := NewTensor(n, c.Out, oh, ow)
	inStride := c.In * h * w
	outStride := c.Out * hw
	weight := blas32.General{Rows: c.Out, Cols: ckk, Stride: ckk, Data: c.Weight.Value.Data}
	for i := 0; i < n; i++ {
		col := make([]float32, ckk*hw)
		c.im2col(x.Data[i*inStride:(i+1)*inStride], h, w, col)
		c.cols[i] = col

		dst := out.Data[i*outStride : (i+1)*outStride]
		for o := 0; o < c.Out; o++ {
			b := c.Bias.Value.Data[o]
			row := dst[o*hw : (o+1)*hw]
			for j := range row {
				row[j] = b
			}
		}
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
			weight,
			blas32.General{Rows: ckk, Cols: hw, Stride: hw, Data: col},
			1,
			blas32.General{Rows: c.Out, Cols: hw, Stride: hw, Data: dst})
	}
	return out
}

func (c *Conv2D) Backward(gradOut *Tensor) *Tensor {
	n := c.inShape[0]
	h, w := c.inShape[2], c.inShape[3]
	hw := c.outH * c.outW
	ckk := c.In * c.Kernel * c.Kernel

	gradIn := NewTensor(c.inShape...)
	inStride := c.In * h * w
	outStride := c.Out * hw
	weight := blas32.General{Rows: c.Out, Cols: ckk, Stride: ckk, Data: c.Weight.Value.Data}
	gradW := blas32.General{Rows: c.Out, Cols: ckk, Stride: ckk, Data: c.Weight.Grad.Data}
	dcol := make([]float32, ckk*hw)
	for i := 0; i < n; i++ {
		g := gradOut.Data[i*outStride : (i+1)*outStride]
		gm := blas32.General{Rows: c.Out, Cols: hw, Stride: hw, Data: g}
		for o := 0; o < c.Out; o++ {
			var s float32
			for _, v := range g[o*hw : (o+1)*hw] {
				s += v
			}
			c.Bias.Grad.Data[o] += s
		}
		// dW += g · colᵀ
		blas32.Gemm(blas.NoTrans, blas.Trans, 1,
			gm,
			blas32.General{Rows: ckk, Cols: hw, Stride: hw, Data: c.cols[i]},
			1, gradW)
		// dcol = Wᵀ · g
		blas32.Gemm(blas.Trans, blas.NoTrans, 1,
			weight, gm,
			0, blas32.General{Rows: ckk, Cols: hw, Stride: hw, Data: dcol})
		c.col2im(dcol, h, w, gradIn.Data[i*inStride:(i+1)*inStride])
	}
	return gradIn
}

func (c *Conv2D) im2col(img []float32, h, w int, col []float32) {
	k, s, p := c.Kernel, c.Stride, c.Padding
	oh, ow := c.outH, c.outW
	hw := oh * ow
	for ch := 0; ch < c.In; ch++ {
		plane := img[ch*h*w : (ch+1)*h*w]
		for ki := 0; ki < k; ki++ {
			for kj := 0; kj < k; kj++ {
				row := col[((ch*k+ki)*k+kj)*hw:]
				for y := 0; y < oh; y++ {
					iy := y*s - p + ki
					for x := 0; x < ow; x++ {
						ix := x*s - p + kj
						if iy < 0 || iy >= h || ix < 0 || ix >= w {
							row[y*ow+x] = 0
							continue
						}
						row[y*ow+x] = plane[iy*w+ix]
					}
				}
			}
		}
	}
}

func (c *Conv2D) col2im(col []float32, h, w int, img []float32) {
	k, s, p := c.Kernel, c.Stride, c.Padding
	oh, ow := c.outH, c.outW
	hw := oh * ow
	for ch := 0; ch < c.In; ch++ {
		plane := img[ch*h*w : (ch+1)*h*w]
		for ki := 0; ki < k; ki++ {
			for kj := 0; kj < k; kj++ {
				row := col[((ch*k+ki)*k+kj)*hw:]
				for y := 0; y < oh; y++ {
					iy := y*s - p + ki
					if iy < 0 || iy >= h {
						continue
					}
					for x := 0; x < ow; x++ {
						ix := x*s - p + kj
						if ix < 0 || ix >= w {
							continue
						}
						plane[iy*w+ix] += row[y*ow+x]
					}
				}
			}
		}
	}
}
