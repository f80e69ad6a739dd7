// Command train fits the next-frame generator on a directory of video frames.
//
// Usage:
//
//	train -config config.yaml [-data dir] [-out dir] [-epochs n] ...
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Noofbiz/nextframe/config"
	"github.com/Noofbiz/nextframe/device"
	"github.com/Noofbiz/nextframe/logging"
	"github.com/Noofbiz/nextframe/trainer"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagConfig       = flag.String("config", "config.yaml", "path to the YAML training config")
	flagData         = flag.String("data", "", "override data_dir")
	flagOut          = flag.String("out", "", "override output_dir")
	flagInception    = flag.String("inception-dir", "", "override inception_dir, where Inception-v3 weights are cached")
	flagEpochs       = flag.Int("epochs", -1, "override epochs (-1 keeps the config value)")
	flagBatchSize    = flag.Int("batch-size", 0, "override batch_size")
	flagLearningRate = flag.Float64("learning-rate", 0, "override learning_rate")
	flagSeed         = flag.Int64("seed", 0, "override seed")
	flagDevice       = flag.String("device", "", "override device (auto, cpu)")
	flagLogFile      = flag.String("log-file", "", "log file path (default <output_dir>/train.log)")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	cfg, err := config.Load(*flagConfig)
	check(err)
	o := config.Overrides{
		DataDir:      *flagData,
		OutputDir:    *flagOut,
		InceptionDir: *flagInception,
		BatchSize:    *flagBatchSize,
		LearningRate: *flagLearningRate,
		Seed:         *flagSeed,
		Device:       *flagDevice,
	}
	if *flagEpochs >= 0 {
		o.Epochs = flagEpochs
	}
	cfg.ApplyOverrides(o)
	check(cfg.Validate())

	must.M(os.MkdirAll(cfg.OutputDir, 0755))
	logPath := *flagLogFile
	if logPath == "" {
		logPath = filepath.Join(cfg.OutputDir, logging.DefaultFile)
	}
	closeLog := must.M1(logging.Setup(logPath))
	defer closeLog()

	dev, err := device.Select(cfg.Device)
	check(err)
	klog.Infof("Using device: %s", dev)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := trainer.Run(ctx, trainer.RunConfig{Config: cfg, Device: dev})
	if err != nil {
		closeLog()
		klog.Fatalf("training failed: %+v", err)
	}
	klog.Infof("run %s done: generator saved to %s", res.RunID, res.GeneratorPath)
}

// check reports and exits on error.
func check(err error) {
	if err == nil {
		return
	}
	klog.Fatalf("Fatal error: %+v", err)
}
