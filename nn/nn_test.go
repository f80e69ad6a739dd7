package nn

import (
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func randTensor(rng *rand.Rand, shape ...int) *Tensor {
	t := NewTensor(shape...)
	for i := range t.Data {
		t.Data[i] = float32(rng.Float64()*2 - 1)
	}
	return t
}

// weightedSum is the scalar sum(out * w) used as the loss for gradient checks.
func weightedSum(out, w *Tensor) float64 {
	var s float64
	for i := range out.Data {
		s += float64(out.Data[i]) * float64(w.Data[i])
	}
	return s
}

// checkGradients compares the analytic input and parameter gradients of l
// against central finite differences.
func checkGradients(t *testing.T, l Layer, x *Tensor) {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	out := l.Forward(x)
	upstream := randTensor(rng, out.Shape...)
	ZeroGrad(l.Params())
	gradIn := l.Backward(upstream)
	if !gradIn.SameShape(x) {
		t.Fatalf("input gradient shape %v, want %v", gradIn.Shape, x.Shape)
	}

	const eps = 1e-3
	const tol = 2e-2
	numeric := func(v []float32, i int) float64 {
		orig := v[i]
		v[i] = orig + eps
		plus := weightedSum(l.Forward(x), upstream)
		v[i] = orig - eps
		minus := weightedSum(l.Forward(x), upstream)
		v[i] = orig
		return (plus - minus) / (2 * eps)
	}
	closeEnough := func(a, b float64) bool {
		return math.Abs(a-b) <= tol*math.Max(1, math.Abs(b))
	}

	for _, i := range sampleIndices(rng, x.Len()) {
		want := numeric(x.Data, i)
		if got := float64(gradIn.Data[i]); !closeEnough(got, want) {
			t.Fatalf("input grad[%d] = %f, finite difference %f", i, got, want)
		}
	}
	for _, p := range l.Params() {
		for _, i := range sampleIndices(rng, p.Value.Len()) {
			want := numeric(p.Value.Data, i)
			if got := float64(p.Grad.Data[i]); !closeEnough(got, want) {
				t.Fatalf("%s grad[%d] = %f, finite difference %f", p.Name, i, got, want)
			}
		}
	}
}

func sampleIndices(rng *rand.Rand, n int) []int {
	if n <= 20 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := make([]int, 20)
	for i := range idx {
		idx[i] = rng.Intn(n)
	}
	return idx
}

func TestConv2DGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	conv := NewConv2D("conv", 2, 3, 4, 2, 1, rng)
	x := randTensor(rng, 2, 2, 8, 8)
	out := conv.Forward(x)
	if want := []int{2, 3, 4, 4}; !out.SameShape(&Tensor{Shape: want}) {
		t.Fatalf("conv output shape %v, want %v", out.Shape, want)
	}
	checkGradients(t, conv, x)
}

func TestConv2DSamePadding(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	conv := NewConv2D("conv", 3, 2, 3, 1, 1, rng)
	x := randTensor(rng, 1, 3, 5, 5)
	if h, w := conv.OutputSize(5, 5); h != 5 || w != 5 {
		t.Fatalf("OutputSize = %dx%d, want 5x5", h, w)
	}
	checkGradients(t, conv, x)
}

func TestLinearGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	lin := NewLinear("fc", 12, 3, rng)
	x := randTensor(rng, 4, 12)
	checkGradients(t, lin, x)
}

func TestSequentialGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	net := NewSequential(
		NewConv2D("c1", 3, 4, 4, 2, 1, rng),
		NewLeakyReLU(0.2),
		NewUpsample(2),
		NewConv2D("c2", 4, 2, 3, 1, 1, rng),
		&Sigmoid{},
		&Flatten{},
		NewLinear("fc", 2*8*8, 1, rng),
		&Sigmoid{},
	)
	x := randTensor(rng, 2, 3, 8, 8)
	if got := len(net.Params()); got != 6 {
		t.Fatalf("expected 6 params, got %d", got)
	}
	checkGradients(t, net, x)
}

func TestBCELoss(t *testing.T) {
	pred, _ := FromData([]float32{0.9, 0.2}, 2, 1)
	target, _ := FromData([]float32{1, 0}, 2, 1)
	loss, grad := BCELoss(pred, target)
	want := -(math.Log(0.9) + math.Log(0.8)) / 2
	if math.Abs(loss-want) > 1e-6 {
		t.Fatalf("loss = %f, want %f", loss, want)
	}
	// d/dp = (p-y)/(p(1-p))/n
	if g := float64(grad.Data[0]); math.Abs(g-(-0.1/(0.9*0.1)/2)) > 1e-4 {
		t.Fatalf("grad[0] = %f", g)
	}

	saturated, _ := FromData([]float32{0}, 1, 1)
	ones := OnesLike(saturated)
	loss, _ = BCELoss(saturated, ones)
	if loss != 100 {
		t.Fatalf("saturated loss = %f, want clamp at 100", loss)
	}
}

func TestAdamMinimizesQuadratic(t *testing.T) {
	p := newParam("w", 3)
	copy(p.Value.Data, []float32{3, -2, 1})
	opt := NewAdam([]*Param{p}, DefaultAdamConfig(0.1))
	for i := 0; i < 500; i++ {
		opt.ZeroGrad()
		for j, v := range p.Value.Data {
			p.Grad.Data[j] = 2 * v
		}
		opt.Step()
	}
	for j, v := range p.Value.Data {
		if math.Abs(float64(v)) > 0.1 {
			t.Fatalf("w[%d] = %f, expected near 0", j, v)
		}
	}
	if opt.Steps() != 500 {
		t.Fatalf("Steps() = %d", opt.Steps())
	}
}

func TestSaveLoadParams(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	a := NewConv2D("conv", 3, 2, 3, 1, 1, rng)
	b := NewConv2D("conv", 3, 2, 3, 1, 1, rand.New(rand.NewSource(6)))
	path := filepath.Join(t.TempDir(), "w", "conv.gob")
	if err := SaveParams(path, a.Params(), map[string]string{"kind": "conv"}); err != nil {
		t.Fatalf("SaveParams: %v", err)
	}
	if err := LoadParams(path, b.Params()); err != nil {
		t.Fatalf("LoadParams: %v", err)
	}
	meta, err := ReadMeta(path)
	if err != nil || meta["kind"] != "conv" {
		t.Fatalf("ReadMeta = %v, %v", meta, err)
	}
	x := randTensor(rng, 1, 3, 4, 4)
	ya, yb := a.Forward(x), b.Forward(x)
	for i := range ya.Data {
		if ya.Data[i] != yb.Data[i] {
			t.Fatalf("output %d differs after reload: %f vs %f", i, ya.Data[i], yb.Data[i])
		}
	}

	wrong := NewConv2D("conv", 3, 4, 3, 1, 1, rng)
	if err := LoadParams(path, wrong.Params()); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestConcatSplitChannels(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	a := randTensor(rng, 2, 3, 2, 2)
	b := randTensor(rng, 2, 1, 2, 2)
	c := ConcatChannels(a, b)
	if c.Shape[1] != 4 {
		t.Fatalf("concat channels = %d", c.Shape[1])
	}
	a2, b2 := SplitChannels(c, 3)
	for i := range a.Data {
		if a.Data[i] != a2.Data[i] {
			t.Fatalf("first half mismatch at %d", i)
		}
	}
	for i := range b.Data {
		if b.Data[i] != b2.Data[i] {
			t.Fatalf("second half mismatch at %d", i)
		}
	}
}

func TestToGomlx(t *testing.T) {
	x := NewTensor(2, 3, 4, 4)
	gt := x.ToGomlx()
	dims := gt.Shape().Dimensions
	if len(dims) != 4 || dims[0] != 2 || dims[1] != 3 || dims[2] != 4 || dims[3] != 4 {
		t.Fatalf("gomlx dims = %v", dims)
	}
}

func TestFromDataShapeMismatch(t *testing.T) {
	_, err := FromData(make([]float32, 5), 2, 3)
	if err == nil || !strings.Contains(err.Error(), "needs 6 values, got 5") {
		t.Fatalf("expected size error, got %v", err)
	}
	// errors.Errorf attaches a stack trace
	if _, ok := err.(interface{ StackTrace() errors.StackTrace }); !ok {
		t.Fatalf("error %T carries no stack trace", err)
	}
	x, err := FromData([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	if err != nil || x.Len() != 6 || x.Shape[1] != 3 {
		t.Fatalf("FromData = %v, %v", x, err)
	}
}
