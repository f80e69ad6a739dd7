package datasets

import (
	"github.com/Noofbiz/nextframe/nn"
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// This package provides the frame-pair dataset used to train the next-frame
// model, plus a shuffled batch loader on top of it.
//
// The dataset uses lazy loading: it only indexes file paths when created and
// decodes the image files when a batch is requested.
//
// Layout and intended usage:
//
// FramePairs
//   - Indexes a directory of clips. Every subdirectory is a clip, and images
//     directly inside the root form one more clip.
//   - Frames of a clip are ordered by file name; pair i is (frame i, frame i+1).
//   - Examples are resized to a square and returned as CHW float32 in [0,1].
//
// Loader
//   - Reshuffles every epoch and yields batches of the configured size. The
//     last batch of an epoch may be smaller.
//   - Also exposes the gomlx dataset surface (Name, Yield, Reset) so batches
//     can be fed to gomlx tooling as NCHW tensors.

// Dataset is what the loader needs from a frame-pair source.
type Dataset interface {
	Len() int
	Example(i int) (current []float32, next []float32, err error)
	Batch(indices []int) (*Batch, error)
}

// Batch is a minibatch of frame pairs, both shaped [N, 3, S, S].
type Batch struct {
	Current *nn.Tensor
	Next    *nn.Tensor
	Indices []int
}

// Size returns the number of pairs in the batch.
func (b *Batch) Size() int {
	if b == nil || b.Current == nil {
		return 0
	}
	return b.Current.Shape[0]
}

// ToGomlxTensors converts the batch into gomlx tensors (NCHW float32).
func (b *Batch) ToGomlxTensors() (current, next *tensors.Tensor) {
	return b.Current.ToGomlx(), b.Next.ToGomlx()
}
