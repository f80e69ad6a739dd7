package metrics

import (
	"github.com/Noofbiz/nextframe/nn"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/examples/inceptionv3"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const rgbChannels = 3

// Extractor maps frames [N,3,H,W] with values in [0,1] to the two views the
// metrics are computed in: pooled features for FID and class probabilities
// for the inception score.
type Extractor interface {
	Features(images *nn.Tensor) ([][]float64, error)
	Probabilities(images *nn.Tensor) ([][]float64, error)
}

// Inception is a frozen, ImageNet pretrained Inception-v3 run on the pure Go
// backend.
//
// Features are the 2048 wide mean-pooled embedding of frames upscaled to at
// least inceptionv3.MinimumImageSize. Probabilities come from the 1000 class
// top, which needs frames resized to inceptionv3.ClassificationImageSize.
type Inception struct {
	dir     string
	backend backends.Backend
	ctx     *context.Context

	features *context.Exec
	probs    *context.Exec
}

// NewInception downloads the Inception-v3 weights into dir if they are not
// there yet and prepares the model.
func NewInception(dir string) (*Inception, error) {
	if dir == "" {
		return nil, errors.New("inception weights directory must be set")
	}
	if err := inceptionv3.DownloadAndUnpackWeights(dir); err != nil {
		return nil, errors.Wrapf(err, "fetch inception weights into %s", dir)
	}
	backend, err := simplego.New("")
	if err != nil {
		return nil, errors.Wrap(err, "create backend")
	}
	inc := &Inception{
		dir:     dir,
		backend: backend,
		ctx:     context.New().Checked(false),
	}
	if inc.features, err = context.NewExec(backend, inc.ctx, inc.featuresGraph); err != nil {
		return nil, errors.Wrap(err, "build inception features")
	}
	if inc.probs, err = context.NewExec(backend, inc.ctx, inc.probabilitiesGraph); err != nil {
		return nil, errors.Wrap(err, "build inception classifier")
	}
	klog.V(1).Infof("inception-v3 ready, weights in %s, backend %s", dir, backend.Name())
	return inc, nil
}

// channelsLast moves NCHW frames to the NHWC layout the model is built for.
func channelsLast(x *graph.Node) *graph.Node {
	return graph.TransposeAllDims(x, 0, 2, 3, 1)
}

func (inc *Inception) featuresGraph(ctx *context.Context, x *graph.Node) *graph.Node {
	x = inceptionv3.PreprocessImage(channelsLast(x), 1.0, timage.ChannelsLast)
	return inceptionv3.BuildGraph(ctx, x).
		PreTrained(inc.dir).
		SetPooling(inceptionv3.MeanPooling).
		ChannelsAxis(timage.ChannelsLast).
		Trainable(false).
		Done()
}

func (inc *Inception) probabilitiesGraph(ctx *context.Context, x *graph.Node) *graph.Node {
	x = channelsLast(x)
	n := x.Shape().Dimensions[0]
	x = graph.Interpolate(x, n, inceptionv3.ClassificationImageSize, inceptionv3.ClassificationImageSize, rgbChannels).Done()
	x = inceptionv3.PreprocessImage(x, 1.0, timage.ChannelsLast)
	logits := inceptionv3.BuildGraph(ctx, x).
		PreTrained(inc.dir).
		ClassificationTop(true).
		ChannelsAxis(timage.ChannelsLast).
		Trainable(false).
		Done()
	return graph.Softmax(logits, -1)
}

// Features returns the pooled embedding of each frame, [N][2048].
func (inc *Inception) Features(images *nn.Tensor) ([][]float64, error) {
	return inc.run(inc.features, images)
}

// Probabilities returns the class probabilities of each frame, [N][1000].
func (inc *Inception) Probabilities(images *nn.Tensor) ([][]float64, error) {
	return inc.run(inc.probs, images)
}

func (inc *Inception) run(exec *context.Exec, images *nn.Tensor) ([][]float64, error) {
	if len(images.Shape) != 4 || images.Shape[0] == 0 || images.Shape[1] != rgbChannels {
		return nil, errors.Errorf("inception expects [N,3,H,W] frames, got %v", images.Shape)
	}
	in := images.ToGomlx()
	defer in.FinalizeAll()
	outs, err := exec.Exec(in)
	if err != nil {
		return nil, errors.Wrap(err, "run inception")
	}
	out := outs[0]
	defer out.FinalizeAll()
	return toRows(tensors.CopyFlatData[float32](out), out.Shape().Dimensions[0]), nil
}

// toRows splits flat row-major values into n float64 rows.
func toRows(flat []float32, n int) [][]float64 {
	width := len(flat) / n
	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, width)
		for j, v := range flat[i*width : (i+1)*width] {
			row[j] = float64(v)
		}
		rows[i] = row
	}
	return rows
}

// Close releases the compiled graphs and the backend.
func (inc *Inception) Close() {
	inc.features.Finalize()
	inc.probs.Finalize()
	inc.backend.Finalize()
}
