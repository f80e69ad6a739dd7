package gan

import (
	"math"
	"math/rand"

	"github.com/Noofbiz/nextframe/nn"
	"github.com/pkg/errors"
)

// ErrNonFiniteLoss is returned when a step produces a NaN or infinite loss.
// Training does not recover from it.
var ErrNonFiniteLoss = errors.New("non-finite loss")

// Phase identifies one of the two updates of a training step.
type Phase int

const (
	// PhaseDiscriminator is the discriminator update on real and generated pairs.
	PhaseDiscriminator Phase = iota
	// PhaseGenerator is the generator update against the fresh discriminator.
	PhaseGenerator
)

func (p Phase) String() string {
	switch p {
	case PhaseDiscriminator:
		return "discriminator"
	case PhaseGenerator:
		return "generator"
	}
	return "unknown"
}

// Observer is notified after each optimizer update.
type Observer interface {
	OnPhase(step int, phase Phase, loss float64)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(step int, phase Phase, loss float64)

func (f ObserverFunc) OnPhase(step int, phase Phase, loss float64) { f(step, phase, loss) }

// Options configures a Pair.
type Options struct {
	ImageSize int
	Width     int
	Seed      int64
	Adam      nn.AdamConfig
}

// StepResult holds the losses of one training step.
type StepResult struct {
	LossD     float64
	LossDReal float64
	LossDFake float64
	LossG     float64
}

// Pair holds the generator, the discriminator and their optimizers.
type Pair struct {
	G    *Generator
	D    *Discriminator
	OptG *nn.Adam
	OptD *nn.Adam

	Observer Observer

	steps int
}

// NewPair initializes both networks from opts.Seed.
func NewPair(opts Options) (*Pair, error) {
	if opts.ImageSize < 8 || opts.ImageSize%4 != 0 {
		return nil, errors.Errorf("image size must be a multiple of 4 and >= 8, got %d", opts.ImageSize)
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Adam.LearningRate <= 0 {
		return nil, errors.Errorf("learning rate must be > 0, got %g", opts.Adam.LearningRate)
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	g := NewGenerator(opts.Width, opts.ImageSize, rng)
	d := NewDiscriminator(opts.Width, opts.ImageSize, rng)
	return &Pair{
		G:    g,
		D:    d,
		OptG: nn.NewAdam(g.Params(), opts.Adam),
		OptD: nn.NewAdam(d.Params(), opts.Adam),
	}, nil
}

// Steps returns the number of completed training steps.
func (p *Pair) Steps() int { return p.steps }

// Step runs one adversarial update on a batch: first the discriminator on
// the real pair and the detached generated pair (losses summed, one update),
// then the generator against the updated discriminator.
func (p *Pair) Step(current, next *nn.Tensor) (StepResult, error) {
	var res StepResult
	step := p.steps + 1

	// discriminator
	p.OptD.ZeroGrad()
	outReal := p.D.Forward(current, next)
	lossReal, grad := nn.BCELoss(outReal, nn.OnesLike(outReal))
	p.D.Backward(grad)

	fake := p.G.Forward(current)
	outFake := p.D.Forward(current, fake)
	lossFake, grad := nn.BCELoss(outFake, nn.ZerosLike(outFake))
	p.D.Backward(grad)

	res.LossDReal, res.LossDFake = lossReal, lossFake
	res.LossD = lossReal + lossFake
	if !isFinite(res.LossD) {
		return res, errors.Wrapf(ErrNonFiniteLoss, "step %d: discriminator loss %v", step, res.LossD)
	}
	p.OptD.Step()
	p.notify(step, PhaseDiscriminator, res.LossD)

	// generator
	p.OptG.ZeroGrad()
	out := p.D.Forward(current, fake)
	lossG, grad := nn.BCELoss(out, nn.OnesLike(out))
	_, gradFake := p.D.Backward(grad)
	p.G.Backward(gradFake)

	res.LossG = lossG
	if !isFinite(res.LossG) {
		return res, errors.Wrapf(ErrNonFiniteLoss, "step %d: generator loss %v", step, res.LossG)
	}
	p.OptG.Step()
	p.notify(step, PhaseGenerator, res.LossG)

	p.steps = step
	return res, nil
}

// Generate predicts next frames for current without touching optimizer state.
func (p *Pair) Generate(current *nn.Tensor) *nn.Tensor {
	return p.G.Forward(current)
}

func (p *Pair) notify(step int, phase Phase, loss float64) {
	if p.Observer != nil {
		p.Observer.OnPhase(step, phase, loss)
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
