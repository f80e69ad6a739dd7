package metrics

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

// Header is the first row of every metrics log.
var Header = []string{"Epoch", "Inception Score", "FID"}

// Record is one row of the metrics log.
type Record struct {
	Epoch          int
	InceptionScore float64
	FID            float64
}

// Log is a CSV metrics table. Rows are flushed to disk as soon as they are
// appended; nothing is ever rewritten.
type Log struct {
	Path string
}

// CreateLog truncates path and writes the header row.
func CreateLog(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "mkdir %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create metrics log %s", path)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		return nil, errors.Wrap(err, "write metrics header")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "flush metrics header")
	}
	return &Log{Path: path}, nil
}

// Append writes one row at the end of the log.
func (l *Log) Append(r Record) error {
	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "open metrics log %s", l.Path)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	row := []string{
		strconv.Itoa(r.Epoch),
		strconv.FormatFloat(r.InceptionScore, 'g', -1, 64),
		strconv.FormatFloat(r.FID, 'g', -1, 64),
	}
	if err := w.Write(row); err != nil {
		return errors.Wrap(err, "write metrics row")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "flush metrics row")
	}
	return f.Sync()
}

// ReadLog returns every data row of the log at path, without the header.
func ReadLog(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open metrics log %s", path)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "read metrics log %s", path)
	}
	if len(rows) == 0 {
		return nil, errors.Errorf("metrics log %s has no header", path)
	}
	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(Header) {
			return nil, errors.Errorf("row %d has %d fields, want %d", i+1, len(row), len(Header))
		}
		epoch, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, errors.Wrapf(err, "row %d epoch", i+1)
		}
		is, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d inception score", i+1)
		}
		fid, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d fid", i+1)
		}
		records = append(records, Record{Epoch: epoch, InceptionScore: is, FID: fid})
	}
	return records, nil
}
