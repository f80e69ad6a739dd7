package datasets

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/Noofbiz/nextframe/nn"
	"github.com/pkg/errors"
)

// pairRef locates a pair as (clip index, index of the current frame).
type pairRef struct {
	clip  int
	frame int
}

// FramePairs is a lazily loaded dataset of (current frame, next frame) pairs.
type FramePairs struct {
	// Dir is the root directory the clips were discovered in.
	Dir string

	// Size is the side length frames are resized to.
	Size int

	// clips[i] lists the frame paths of clip i in order.
	clips [][]string

	pairs []pairRef
}

// NewFramePairs indexes the clips found under dir. Every subdirectory of dir
// is one clip and frames directly inside dir form another. Clips with fewer
// than two frames are skipped.
func NewFramePairs(dir string, size int) (*FramePairs, error) {
	if size <= 0 {
		return nil, errors.Errorf("frame size must be > 0, got %d", size)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read dataset dir %s", dir)
	}

	clipDirs := []string{dir}
	var subdirs []string
	for _, e := range entries {
		if e.IsDir() {
			subdirs = append(subdirs, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(subdirs)
	clipDirs = append(clipDirs, subdirs...)

	ds := &FramePairs{Dir: dir, Size: size}
	for _, cd := range clipDirs {
		frames, err := listFrames(cd)
		if err != nil {
			return nil, errors.Wrapf(err, "list frames in %s", cd)
		}
		if len(frames) < 2 {
			continue
		}
		clipIdx := len(ds.clips)
		ds.clips = append(ds.clips, frames)
		for i := 0; i+1 < len(frames); i++ {
			ds.pairs = append(ds.pairs, pairRef{clip: clipIdx, frame: i})
		}
	}
	if len(ds.pairs) == 0 {
		return nil, errors.Errorf("no frame pairs found under %s", dir)
	}
	return ds, nil
}

// Len returns the number of frame pairs.
func (d *FramePairs) Len() int { return len(d.pairs) }

// Clips returns the number of clips that contributed pairs.
func (d *FramePairs) Clips() int { return len(d.clips) }

// Name returns the name of the dataset.
func (d *FramePairs) Name() string { return "FramePairs" }

// Paths returns the file paths of pair idx.
func (d *FramePairs) Paths(idx int) (current, next string, err error) {
	if idx < 0 || idx >= len(d.pairs) {
		return "", "", errors.Errorf("index %d out of range [0, %d)", idx, len(d.pairs))
	}
	ref := d.pairs[idx]
	clip := d.clips[ref.clip]
	return clip[ref.frame], clip[ref.frame+1], nil
}

// Example loads pair idx as two CHW buffers.
func (d *FramePairs) Example(idx int) (current []float32, next []float32, err error) {
	curPath, nextPath, err := d.Paths(idx)
	if err != nil {
		return nil, nil, err
	}
	if current, err = LoadFrame(curPath, d.Size); err != nil {
		return nil, nil, err
	}
	if next, err = LoadFrame(nextPath, d.Size); err != nil {
		return nil, nil, err
	}
	return current, next, nil
}

// Batch loads the pairs at indices into one Batch.
func (d *FramePairs) Batch(indices []int) (*Batch, error) {
	n := len(indices)
	stride := Channels * d.Size * d.Size
	cur := nn.NewTensor(n, Channels, d.Size, d.Size)
	next := nn.NewTensor(n, Channels, d.Size, d.Size)
	for i, idx := range indices {
		c, nx, err := d.Example(idx)
		if err != nil {
			return nil, errors.Wrapf(err, "load pair %d", idx)
		}
		copy(cur.Data[i*stride:(i+1)*stride], c)
		copy(next.Data[i*stride:(i+1)*stride], nx)
	}
	return &Batch{Current: cur, Next: next, Indices: append([]int(nil), indices...)}, nil
}
