package gan

import (
	"math/rand"
	"strconv"

	"github.com/Noofbiz/nextframe/nn"
	"github.com/pkg/errors"
)

// DefaultWidth is the channel count of the first convolution in both nets.
const DefaultWidth = 32

// channels per frame
const frameChannels = 3

// Generator maps a frame [N,3,S,S] to a predicted next frame of the same
// shape with values in (0,1). It is fully convolutional: two stride-2
// convolutions encode, two upsample+convolution stages decode. ImageSize is
// the frame side it was trained on and is stored with the weights.
type Generator struct {
	Width     int
	ImageSize int
	net       *nn.Sequential
}

// NewGenerator builds a generator for frames of side size whose first layer
// has width channels.
func NewGenerator(width, size int, rng *rand.Rand) *Generator {
	w := width
	return &Generator{
		Width:     width,
		ImageSize: size,
		net: nn.NewSequential(
			nn.NewConv2D("gen.enc1", frameChannels, w, 4, 2, 1, rng),
			nn.NewLeakyReLU(0.2),
			nn.NewConv2D("gen.enc2", w, 2*w, 4, 2, 1, rng),
			nn.NewLeakyReLU(0.2),
			nn.NewUpsample(2),
			nn.NewConv2D("gen.dec1", 2*w, w, 3, 1, 1, rng),
			&nn.ReLU{},
			nn.NewUpsample(2),
			nn.NewConv2D("gen.dec2", w, frameChannels, 3, 1, 1, rng),
			&nn.Sigmoid{},
		),
	}
}

// Forward predicts the next frame for each frame in x.
func (g *Generator) Forward(x *nn.Tensor) *nn.Tensor { return g.net.Forward(x) }

// Backward propagates the gradient on the predicted frames back through the
// generator, accumulating parameter gradients.
func (g *Generator) Backward(grad *nn.Tensor) *nn.Tensor { return g.net.Backward(grad) }

// Params returns the generator parameters.
func (g *Generator) Params() []*nn.Param { return g.net.Params() }

// Save writes the generator weights to path.
func (g *Generator) Save(path string) error {
	return nn.SaveParams(path, g.Params(), map[string]string{
		"model":      "generator",
		"width":      strconv.Itoa(g.Width),
		"image_size": strconv.Itoa(g.ImageSize),
	})
}

// LoadGenerator builds a generator matching the weights at path and loads them.
func LoadGenerator(path string) (*Generator, error) {
	meta, err := nn.ReadMeta(path)
	if err != nil {
		return nil, err
	}
	if meta["model"] != "generator" {
		return nil, errors.Errorf("%s does not hold generator weights (model=%q)", path, meta["model"])
	}
	width, err := strconv.Atoi(meta["width"])
	if err != nil {
		return nil, errors.Wrapf(err, "weights %s: bad width %q", path, meta["width"])
	}
	size, err := strconv.Atoi(meta["image_size"])
	if err != nil {
		return nil, errors.Wrapf(err, "weights %s: bad image_size %q", path, meta["image_size"])
	}
	g := NewGenerator(width, size, rand.New(rand.NewSource(0)))
	if err := nn.LoadParams(path, g.Params()); err != nil {
		return nil, err
	}
	return g, nil
}

// Discriminator scores how realistic a (current, next) frame pair is. The two
// frames are stacked on the channel axis; the output is [N,1] in (0,1).
type Discriminator struct {
	Width int
	net   *nn.Sequential
}

// NewDiscriminator builds a discriminator for square frames of side size.
func NewDiscriminator(width, size int, rng *rand.Rand) *Discriminator {
	w := width
	q := size / 4
	return &Discriminator{
		Width: width,
		net: nn.NewSequential(
			nn.NewConv2D("disc.conv1", 2*frameChannels, w, 4, 2, 1, rng),
			nn.NewLeakyReLU(0.2),
			nn.NewConv2D("disc.conv2", w, 2*w, 4, 2, 1, rng),
			nn.NewLeakyReLU(0.2),
			&nn.Flatten{},
			nn.NewLinear("disc.fc", 2*w*q*q, 1, rng),
			&nn.Sigmoid{},
		),
	}
}

// Forward scores each pair.
func (d *Discriminator) Forward(current, next *nn.Tensor) *nn.Tensor {
	return d.net.Forward(nn.ConcatChannels(current, next))
}

// Backward propagates the gradient on the scores and returns the gradients
// with respect to both input frames.
func (d *Discriminator) Backward(grad *nn.Tensor) (gradCurrent, gradNext *nn.Tensor) {
	return nn.SplitChannels(d.net.Backward(grad), frameChannels)
}

// Params returns the discriminator parameters.
func (d *Discriminator) Params() []*nn.Param { return d.net.Params() }
