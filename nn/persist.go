package nn

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// weightsVersion is incremented when the on-disk weight format changes.
const weightsVersion = 1

type savedParam struct {
	Name  string
	Shape []int
	Data  []float32
}

type weightsFile struct {
	Version int
	Meta    map[string]string
	Params  []savedParam
}

// SaveParams writes params and the optional meta entries to path with
// encoding/gob. The write goes to a temp file in the same directory which is
// then renamed over path.
func SaveParams(path string, params []*Param, meta map[string]string) error {
	if path == "" {
		return errors.New("empty weights path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "mkdir %s", dir)
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return errors.Wrap(err, "create temp weights file")
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	wf := weightsFile{Version: weightsVersion, Meta: meta, Params: make([]savedParam, len(params))}
	for i, p := range params {
		wf.Params[i] = savedParam{Name: p.Name, Shape: p.Value.Shape, Data: p.Value.Data}
	}
	if err := gob.NewEncoder(tmpFile).Encode(&wf); err != nil {
		return errors.Wrap(err, "encode weights")
	}
	if err := tmpFile.Sync(); err != nil {
		klog.Warningf("sync temp weights file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "close temp weights file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "rename temp weights to target")
	}
	return nil
}

// LoadParams reads weights written by SaveParams into params. Every param
// must be present in the file with the same shape.
func LoadParams(path string, params []*Param) error {
	wf, err := readWeights(path)
	if err != nil {
		return err
	}

	byName := make(map[string]savedParam, len(wf.Params))
	for _, sp := range wf.Params {
		byName[sp.Name] = sp
	}
	for _, p := range params {
		sp, ok := byName[p.Name]
		if !ok {
			return errors.Errorf("weights file %s has no parameter %q", path, p.Name)
		}
		loaded := &Tensor{Shape: sp.Shape, Data: sp.Data}
		if !loaded.SameShape(p.Value) || len(sp.Data) != p.Value.Len() {
			return errors.Errorf("parameter %q: shape %v in file, model expects %v", p.Name, sp.Shape, p.Value.Shape)
		}
		copy(p.Value.Data, sp.Data)
	}
	return nil
}

// ReadMeta returns the meta entries stored alongside the weights at path.
func ReadMeta(path string) (map[string]string, error) {
	wf, err := readWeights(path)
	if err != nil {
		return nil, err
	}
	if wf.Meta == nil {
		return map[string]string{}, nil
	}
	return wf.Meta, nil
}

func readWeights(path string) (*weightsFile, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open weights file %s", path)
	}
	defer fh.Close()

	var wf weightsFile
	if err := gob.NewDecoder(fh).Decode(&wf); err != nil {
		return nil, errors.Wrapf(err, "decode weights %s", path)
	}
	if wf.Version != weightsVersion {
		return nil, errors.Errorf("weights version mismatch: file=%d expected=%d", wf.Version, weightsVersion)
	}
	return &wf, nil
}
