package report

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
)

// SaveLosses writes losses as a one-dimensional float64 .npy array.
func SaveLosses(path string, losses []float64) error {
	if losses == nil {
		losses = []float64{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "mkdir %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := npyio.Write(f, losses); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}

// LoadLosses reads an array written by SaveLosses.
func LoadLosses(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	var losses []float64
	if err := npyio.Read(f, &losses); err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return losses, nil
}
