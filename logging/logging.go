// Package logging routes klog output to stderr and to a rotating log file.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultFile is the log file name inside the output directory.
const DefaultFile = "train.log"

// Setup sends klog output to stderr and to path, rotated by size. The
// returned function flushes klog and closes the file.
func Setup(path string) (func(), error) {
	if path == "" {
		return nil, errors.New("log file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "mkdir %s", filepath.Dir(path))
	}
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // MB
		MaxBackups: 3,
		MaxAge:     14, // days
	}
	klog.LogToStderr(false)
	klog.SetOutput(io.MultiWriter(os.Stderr, file))
	return func() {
		klog.Flush()
		klog.SetOutput(os.Stderr)
		klog.LogToStderr(true)
		file.Close()
	}, nil
}
