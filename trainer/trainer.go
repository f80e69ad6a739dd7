// Package trainer runs the adversarial training loop end to end: data
// loading, per-batch updates, per-epoch evaluation and the final artifacts.
package trainer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Noofbiz/nextframe/config"
	"github.com/Noofbiz/nextframe/datasets"
	"github.com/Noofbiz/nextframe/device"
	"github.com/Noofbiz/nextframe/gan"
	"github.com/Noofbiz/nextframe/metrics"
	"github.com/Noofbiz/nextframe/nn"
	"github.com/Noofbiz/nextframe/report"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Output file names, relative to the output directory.
const (
	GeneratedDir   = "generated_images"
	MetricsFile    = "metrics.csv"
	LossesGFile    = "lossesG.npy"
	LossesDFile    = "lossesD.npy"
	GeneratorFile  = "generator.gob"
	LossCurvesFile = "losses.png"
	ManifestFile   = "run.json"
)

// RunConfig bundles what a training run needs.
type RunConfig struct {
	Config *config.Config
	Device device.Device

	// Dataset overrides loading frame pairs from Config.DataDir.
	Dataset datasets.Dataset
	// Observer, if set, receives every optimizer update.
	Observer gan.Observer
	// Extractor overrides the pretrained Inception-v3 loaded from
	// Config.InceptionDir as the metrics feature space.
	Extractor metrics.Extractor
	// Console receives the per-epoch summary. Defaults to os.Stdout.
	Console io.Writer
}

// Result summarizes a finished run.
type Result struct {
	RunID   string
	Epochs  int
	Steps   int
	LossesG []float64
	LossesD []float64
	Metrics []metrics.Record

	GeneratorPath string
	Generator     *gan.Generator
}

// GridPath returns the sample grid path of epoch inside outDir.
func GridPath(outDir string, epoch int) string {
	return filepath.Join(outDir, GeneratedDir, fmt.Sprintf("epoch_%d.png", epoch))
}

// Run trains for Config.Epochs epochs. The context is checked between
// batches; on cancellation Run returns ctx.Err() without writing the final
// artifacts.
func Run(ctx context.Context, rc RunConfig) (*Result, error) {
	cfg := rc.Config
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if rc.Device.Name == "" {
		rc.Device = device.Device{Name: device.CPU}
	}
	console := rc.Console
	if console == nil {
		console = os.Stdout
	}

	ds := rc.Dataset
	if ds == nil {
		fp, err := datasets.NewFramePairs(cfg.DataDir, cfg.ImageSize)
		if err != nil {
			return nil, errors.Wrap(err, "load training data")
		}
		klog.Infof("loaded %d frame pairs from %d clips in %s", fp.Len(), fp.Clips(), cfg.DataDir)
		ds = fp
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
		klog.Infof("seed not set, using %d", seed)
	}
	loader, err := datasets.NewLoader(ds, cfg.BatchSize, seed)
	if err != nil {
		return nil, err
	}

	pair, err := gan.NewPair(gan.Options{
		ImageSize: cfg.ImageSize,
		Seed:      seed,
		Adam: nn.AdamConfig{
			LearningRate: cfg.LearningRate,
			Beta1:        cfg.AdamBeta1,
			Beta2:        cfg.AdamBeta2,
			Epsilon:      cfg.AdamEps,
		},
	})
	if err != nil {
		return nil, err
	}
	pair.Observer = rc.Observer

	if err := os.MkdirAll(filepath.Join(cfg.OutputDir, GeneratedDir), 0755); err != nil {
		return nil, errors.Wrap(err, "create output directories")
	}
	mlog, err := metrics.CreateLog(filepath.Join(cfg.OutputDir, MetricsFile))
	if err != nil {
		return nil, err
	}

	ext := rc.Extractor
	if ext == nil && cfg.Epochs > 0 {
		klog.Infof("loading Inception-v3 weights from %s", cfg.InceptionDir)
		inc, err := metrics.NewInception(cfg.InceptionDir)
		if err != nil {
			return nil, err
		}
		defer inc.Close()
		ext = inc
	}
	eval := metrics.NewEvaluator(ext, cfg.ISSplits)

	runID := uuid.NewString()
	klog.Infof("run %s: %d epochs, batch %d, lr %g, device %s", runID, cfg.Epochs, loader.BatchSize(), cfg.LearningRate, rc.Device)

	res := &Result{
		RunID:   runID,
		LossesG: []float64{},
		LossesD: []float64{},
	}
	started := time.Now()

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		last, err := trainEpoch(ctx, cfg, loader, pair, epoch)
		if err != nil {
			return nil, err
		}

		rec, isStd, err := evaluate(cfg, loader, pair, eval, epoch)
		if err != nil {
			return nil, err
		}
		if err := mlog.Append(rec); err != nil {
			return nil, err
		}
		res.Metrics = append(res.Metrics, rec)
		res.LossesG = append(res.LossesG, last.LossG)
		res.LossesD = append(res.LossesD, last.LossD)
		res.Epochs = epoch + 1

		printSummary(console, epoch, last, rec, isStd)
		klog.Infof("run %s: epoch %d D loss %.4f G loss %.4f IS %.4f FID %.4f", runID, epoch, last.LossD, last.LossG, rec.InceptionScore, rec.FID)

		if err := report.SaveLossCurves(filepath.Join(cfg.OutputDir, LossCurvesFile), res.LossesG, res.LossesD); err != nil {
			return nil, err
		}
	}
	res.Steps = pair.Steps()

	if err := report.SaveLosses(filepath.Join(cfg.OutputDir, LossesGFile), res.LossesG); err != nil {
		return nil, err
	}
	if err := report.SaveLosses(filepath.Join(cfg.OutputDir, LossesDFile), res.LossesD); err != nil {
		return nil, err
	}
	res.GeneratorPath = filepath.Join(cfg.OutputDir, GeneratorFile)
	if err := pair.G.Save(res.GeneratorPath); err != nil {
		return nil, err
	}
	res.Generator = pair.G

	if err := writeManifest(filepath.Join(cfg.OutputDir, ManifestFile), manifest{
		RunID:    runID,
		Started:  started.UTC(),
		Finished: time.Now().UTC(),
		Device:   rc.Device.String(),
		Seed:     seed,
		Epochs:   res.Epochs,
		Steps:    res.Steps,
		Config:   cfg,
		Files:    outputFiles(res.Epochs),
	}); err != nil {
		return nil, err
	}
	klog.Infof("run %s: finished %d epochs (%d steps) in %s", runID, res.Epochs, res.Steps, time.Since(started).Round(time.Millisecond))
	return res, nil
}

// trainEpoch runs one pass over the loader and returns the losses of the last
// batch.
func trainEpoch(ctx context.Context, cfg *config.Config, loader *datasets.Loader, pair *gan.Pair, epoch int) (gan.StepResult, error) {
	var last gan.StepResult
	it := loader.Epoch()
	total := loader.NumBatches()
	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		b, err := it.Next()
		if err == io.EOF {
			return last, nil
		}
		if err != nil {
			return last, errors.Wrapf(err, "epoch %d batch %d", epoch, it.Index()+1)
		}
		last, err = pair.Step(b.Current, b.Next)
		if err != nil {
			return last, errors.Wrapf(err, "epoch %d batch %d", epoch, it.Index())
		}
		i := it.Index()
		if i%cfg.LogEvery == 0 || i == total {
			klog.Infof("Epoch %d [%d/%d] D loss %.4f G loss %.4f", epoch+1, i, total, last.LossD, last.LossG)
		}
		klog.V(1).Infof("epoch %d batch %d: D real %.4f D fake %.4f G %.4f", epoch, i, last.LossDReal, last.LossDFake, last.LossG)
	}
}

// evaluate draws a fresh batch, saves the sample grid and scores the
// generated frames. FID is compared against the drawn current frames.
func evaluate(cfg *config.Config, loader *datasets.Loader, pair *gan.Pair, eval *metrics.Evaluator, epoch int) (metrics.Record, float64, error) {
	rec := metrics.Record{Epoch: epoch}
	b, err := loader.Sample()
	if err != nil {
		return rec, 0, errors.Wrapf(err, "epoch %d sample", epoch)
	}
	fake := pair.Generate(b.Current)

	if err := report.SaveGrid(GridPath(cfg.OutputDir, epoch), fake, cfg.GridImages, cfg.GridRows); err != nil {
		return rec, 0, err
	}

	scores, err := eval.Evaluate(b.Current, fake)
	if err != nil {
		return rec, 0, errors.Wrapf(err, "epoch %d", epoch)
	}
	rec.InceptionScore = scores.ISMean
	rec.FID = scores.FID
	return rec, scores.ISStd, nil
}

func printSummary(w io.Writer, epoch int, last gan.StepResult, rec metrics.Record, isStd float64) {
	head := color.New(color.FgCyan, color.Bold)
	val := color.New(color.FgGreen)
	head.Fprintf(w, "Epoch: %d", epoch)
	fmt.Fprint(w, ", D loss: ")
	val.Fprintf(w, "%v", last.LossD)
	fmt.Fprint(w, ", G loss: ")
	val.Fprintf(w, "%v\n", last.LossG)
	fmt.Fprint(w, "Inception score: ")
	val.Fprintf(w, "%v ± %v\n", rec.InceptionScore, isStd)
	fmt.Fprint(w, "FID: ")
	val.Fprintf(w, "%v\n", rec.FID)
}
