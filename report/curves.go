package report

import (
	"image/color"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SaveLossCurves plots the generator and discriminator loss histories, one
// point per epoch.
func SaveLossCurves(path string, lossesG, lossesD []float64) error {
	if len(lossesG) == 0 && len(lossesD) == 0 {
		return errors.New("no losses to plot")
	}
	p := plot.New()
	p.Title.Text = "Training losses"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "BCE loss"

	series := []struct {
		name   string
		losses []float64
		color  color.Color
	}{
		{"generator", lossesG, color.RGBA{R: 31, G: 119, B: 180, A: 255}},
		{"discriminator", lossesD, color.RGBA{R: 214, G: 39, B: 40, A: 255}},
	}
	for _, s := range series {
		if len(s.losses) == 0 {
			continue
		}
		xys := make(plotter.XYs, len(s.losses))
		for i, v := range s.losses {
			xys[i] = plotter.XY{X: float64(i), Y: v}
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrapf(err, "%s line", s.name)
		}
		line.Color = s.color
		line.Width = vg.Points(1.2)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "mkdir %s", filepath.Dir(path))
	}
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	return nil
}
