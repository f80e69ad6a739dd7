package metrics

import (
	"math"

	"github.com/Noofbiz/nextframe/nn"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"
)

// InceptionScore computes exp(E_x[KL(p(y|x) || p(y))]) over probs split into
// splits groups, and returns the mean and population standard deviation
// across groups. splits is capped at the number of rows.
func InceptionScore(probs [][]float64, splits int) (mean, std float64, err error) {
	n := len(probs)
	if n == 0 {
		return 0, 0, errors.New("inception score needs at least one image")
	}
	if splits <= 0 {
		return 0, 0, errors.Errorf("splits must be > 0, got %d", splits)
	}
	splits = min(splits, n)

	scores := make([]float64, splits)
	for k := 0; k < splits; k++ {
		part := probs[k*n/splits : (k+1)*n/splits]
		classes := len(part[0])
		py := make([]float64, classes)
		for _, p := range part {
			for c, v := range p {
				py[c] += v
			}
		}
		for c := range py {
			py[c] /= float64(len(part))
		}
		var kl float64
		for _, p := range part {
			for c, v := range p {
				if v > 0 {
					kl += v * (math.Log(v) - math.Log(py[c]))
				}
			}
		}
		scores[k] = math.Exp(kl / float64(len(part)))
	}
	mean, std = stat.PopMeanStdDev(scores, nil)
	return mean, std, nil
}

// FrechetDistance computes the Fréchet distance between Gaussians fitted to
// two feature sets:
//
//	|mu_a - mu_b|² + Tr(S_a + S_b - 2·(S_a·S_b)^½)
//
// The matrix square root trace is taken as Σ√λ of S_a^½·S_b·S_a^½, which is
// symmetric positive semi-definite.
func FrechetDistance(a, b [][]float64) (float64, error) {
	if len(a) < 2 || len(b) < 2 {
		return 0, errors.Errorf("frechet distance needs at least 2 samples per set, got %d and %d", len(a), len(b))
	}
	d := len(a[0])
	if len(b[0]) != d {
		return 0, errors.Errorf("feature sizes differ: %d vs %d", d, len(b[0]))
	}
	muA, covA := gaussian(a)
	muB, covB := gaussian(b)

	var diff float64
	for i := 0; i < d; i++ {
		delta := muA[i] - muB[i]
		diff += delta * delta
	}

	sqrtA, err := sqrtPSD(covA)
	if err != nil {
		return 0, err
	}
	var tmp, prod mat.Dense
	tmp.Mul(sqrtA, covB)
	prod.Mul(&tmp, sqrtA)
	sym := symmetrize(&prod)

	var es mat.EigenSym
	if ok := es.Factorize(sym, false); !ok {
		return 0, errors.New("eigendecomposition of covariance product failed")
	}
	var traceSqrt float64
	for _, v := range es.Values(nil) {
		traceSqrt += math.Sqrt(math.Max(v, 0))
	}
	return diff + mat.Trace(covA) + mat.Trace(covB) - 2*traceSqrt, nil
}

func gaussian(rows [][]float64) ([]float64, *mat.SymDense) {
	n, d := len(rows), len(rows[0])
	x := mat.NewDense(n, d, nil)
	for i, r := range rows {
		x.SetRow(i, r)
	}
	mu := make([]float64, d)
	for j := 0; j < d; j++ {
		mu[j] = stat.Mean(mat.Col(nil, j, x), nil)
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, x, nil)
	return mu, &cov
}

// sqrtPSD returns V·diag(√max(λ,0))·Vᵀ for a symmetric matrix.
func sqrtPSD(s *mat.SymDense) (*mat.Dense, error) {
	var es mat.EigenSym
	if ok := es.Factorize(s, true); !ok {
		return nil, errors.New("eigendecomposition of covariance failed")
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	for i, v := range vals {
		vals[i] = math.Sqrt(math.Max(v, 0))
	}
	var scaled, out mat.Dense
	scaled.Mul(&vecs, mat.NewDiagDense(len(vals), vals))
	out.Mul(&scaled, vecs.T())
	return &out, nil
}

func symmetrize(m *mat.Dense) *mat.SymDense {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}
	return s
}

// Scores holds the metrics of one evaluation. FID is NaN when it could not
// be computed for the batch.
type Scores struct {
	ISMean float64
	ISStd  float64
	FID    float64
}

// Evaluator computes inception score and Fréchet distance in the feature
// space of an Extractor.
type Evaluator struct {
	ext    Extractor
	splits int
}

// NewEvaluator returns an evaluator splitting samples into splits groups for
// the inception score.
func NewEvaluator(ext Extractor, splits int) *Evaluator {
	return &Evaluator{ext: ext, splits: splits}
}

// InceptionScore scores generated images.
func (e *Evaluator) InceptionScore(fake *nn.Tensor) (mean, std float64, err error) {
	probs, err := e.ext.Probabilities(fake)
	if err != nil {
		return 0, 0, err
	}
	return InceptionScore(probs, e.splits)
}

// FrechetDistance compares real and generated images.
func (e *Evaluator) FrechetDistance(real, fake *nn.Tensor) (float64, error) {
	a, err := e.ext.Features(real)
	if err != nil {
		return 0, err
	}
	b, err := e.ext.Features(fake)
	if err != nil {
		return 0, err
	}
	return FrechetDistance(a, b)
}

// Evaluate scores fake against real. A failing inception score is an error;
// a failing FID is logged and reported as NaN, since small batches cannot fit
// a covariance.
func (e *Evaluator) Evaluate(real, fake *nn.Tensor) (Scores, error) {
	var s Scores
	var err error
	if s.ISMean, s.ISStd, err = e.InceptionScore(fake); err != nil {
		return s, errors.Wrap(err, "inception score")
	}
	if s.FID, err = e.FrechetDistance(real, fake); err != nil {
		klog.Warningf("FID unavailable: %v", err)
		s.FID = math.NaN()
	}
	return s, nil
}
