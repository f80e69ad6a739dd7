package datasets

import (
	"io"
	"math/rand"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Loader wraps a Dataset behind a shuffled, batched iterator.
type Loader struct {
	ds        Dataset
	batchSize int
	rng       *rand.Rand

	// state for the gomlx Yield/Reset surface
	order  []int
	cursor int
}

// NewLoader creates a loader yielding batches of batchSize pairs. seed drives
// every shuffle.
func NewLoader(ds Dataset, batchSize int, seed int64) (*Loader, error) {
	if ds == nil {
		return nil, errors.New("dataset is nil")
	}
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be > 0, got %d", batchSize)
	}
	l := &Loader{ds: ds, batchSize: batchSize, rng: rand.New(rand.NewSource(seed))}
	l.Reset()
	return l, nil
}

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int { return l.batchSize }

// NumBatches returns the number of batches in one epoch, counting the final
// partial batch.
func (l *Loader) NumBatches() int {
	return (l.ds.Len() + l.batchSize - 1) / l.batchSize
}

func (l *Loader) permutation() []int {
	return l.rng.Perm(l.ds.Len())
}

// Epoch returns an iterator over one freshly shuffled pass of the dataset.
func (l *Loader) Epoch() *EpochIterator {
	return &EpochIterator{loader: l, order: l.permutation()}
}

// Sample draws the first batch of a fresh shuffle. It is independent of any
// epoch currently being iterated and may overlap training batches.
func (l *Loader) Sample() (*Batch, error) {
	order := l.permutation()
	end := min(l.batchSize, len(order))
	return l.ds.Batch(order[:end])
}

// EpochIterator walks the batches of one epoch.
type EpochIterator struct {
	loader *Loader
	order  []int
	pos    int
	index  int
}

// Next returns the next batch, or io.EOF once the epoch is exhausted.
func (it *EpochIterator) Next() (*Batch, error) {
	if it.pos >= len(it.order) {
		return nil, io.EOF
	}
	end := min(it.pos+it.loader.batchSize, len(it.order))
	b, err := it.loader.ds.Batch(it.order[it.pos:end])
	if err != nil {
		return nil, err
	}
	it.pos = end
	it.index++
	return b, nil
}

// Index returns how many batches have been returned so far.
func (it *EpochIterator) Index() int { return it.index }

// Name implements the gomlx dataset naming.
func (l *Loader) Name() string {
	if n, ok := l.ds.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "Loader"
}

// Yield returns the next batch as gomlx tensors: inputs hold the current
// frames and labels the next frames. io.EOF marks the end of the epoch.
func (l *Loader) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if l.cursor >= len(l.order) {
		return nil, nil, nil, io.EOF
	}
	end := min(l.cursor+l.batchSize, len(l.order))
	b, err := l.ds.Batch(l.order[l.cursor:end])
	if err != nil {
		return nil, nil, nil, err
	}
	l.cursor = end
	cur, next := b.ToGomlxTensors()
	return l.Name(), []*tensors.Tensor{cur}, []*tensors.Tensor{next}, nil
}

// Reset reshuffles the gomlx iteration order.
func (l *Loader) Reset() {
	l.order = l.permutation()
	l.cursor = 0
}
