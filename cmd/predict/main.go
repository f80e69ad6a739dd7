// Command predict loads a trained generator and writes the predicted next
// frame of an input image.
package main

import (
	"flag"
	"image/png"
	"os"
	"path/filepath"

	"github.com/Noofbiz/nextframe/datasets"
	"github.com/Noofbiz/nextframe/gan"
	"github.com/Noofbiz/nextframe/nn"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagWeights   = flag.String("weights", "generator.gob", "generator weights written by train")
	flagInput     = flag.String("input", "", "input frame (png or jpeg)")
	flagOutput    = flag.String("output", "predicted.png", "output PNG path")
	flagImageSize = flag.Int("image-size", 0, "frame size to predict at; 0 uses the size stored with the weights")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	if *flagInput == "" {
		klog.Fatalf("-input is required")
	}
	g, err := gan.LoadGenerator(*flagWeights)
	if err != nil {
		klog.Fatalf("load generator: %+v", err)
	}
	size := frameSize(*flagImageSize, g)
	frame, err := datasets.LoadFrame(*flagInput, size)
	if err != nil {
		klog.Fatalf("load frame: %+v", err)
	}
	x := must.M1(nn.FromData(frame, 1, datasets.Channels, size, size))
	pred := g.Forward(x)

	if dir := filepath.Dir(*flagOutput); dir != "." {
		must.M(os.MkdirAll(dir, 0755))
	}
	f := must.M1(os.Create(*flagOutput))
	must.M(png.Encode(f, datasets.CHWToImage(pred.Data, size)))
	must.M(f.Close())
	klog.Infof("wrote %s (%dx%d)", *flagOutput, size, size)
}

// frameSize picks the prediction size: the flag when set, else the size the
// generator was trained on.
func frameSize(override int, g *gan.Generator) int {
	if override > 0 {
		return override
	}
	return g.ImageSize
}
