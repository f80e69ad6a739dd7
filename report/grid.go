// Package report renders training artifacts: sample grids, loss curves and
// loss arrays.
package report

import (
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/Noofbiz/nextframe/nn"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	vgdraw "gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// GridPadding is the number of pixels between and around grid cells.
const GridPadding = 2

// Grid tiles the first n images of a [N,C,H,W] batch, perRow images per
// row. Values are min-max normalized over the selected images.
func Grid(images *nn.Tensor, n, perRow int) (*image.RGBA, error) {
	if len(images.Shape) != 4 || images.Shape[1] != 3 {
		return nil, errors.Errorf("grid needs [N,3,H,W] images, got %v", images.Shape)
	}
	if perRow <= 0 {
		return nil, errors.Errorf("images per row must be > 0, got %d", perRow)
	}
	n = min(n, images.Shape[0])
	if n <= 0 {
		return nil, errors.New("grid needs at least one image")
	}
	h, w := images.Shape[2], images.Shape[3]
	cells, err := toImages(images.Rows(0, n))
	if err != nil {
		return nil, err
	}

	cols := min(perRow, n)
	rows := (n + perRow - 1) / perRow
	grid := image.NewRGBA(image.Rect(0, 0, cols*(w+GridPadding)+GridPadding, rows*(h+GridPadding)+GridPadding))
	draw.Draw(grid, grid.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	for i, cell := range cells {
		x := GridPadding + (i%perRow)*(w+GridPadding)
		y := GridPadding + (i/perRow)*(h+GridPadding)
		draw.Draw(grid, image.Rect(x, y, x+w, y+h), cell, cell.Bounds().Min, draw.Src)
	}
	return grid, nil
}

// toImages normalizes a [N,3,H,W] batch to [0,255] and converts it through a
// channels-last gomlx tensor.
func toImages(batch *nn.Tensor) ([]image.Image, error) {
	lo, hi := float32(math.Inf(1)), float32(math.Inf(-1))
	for _, v := range batch.Data {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	scale := float32(255)
	if hi > lo {
		scale = 255 / (hi - lo)
	}

	n, c, h, w := batch.Shape[0], batch.Shape[1], batch.Shape[2], batch.Shape[3]
	nhwc := make([]float32, len(batch.Data))
	for i := 0; i < n; i++ {
		for ch := 0; ch < c; ch++ {
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					v := batch.Data[((i*c+ch)*h+y)*w+x]
					nhwc[((i*h+y)*w+x)*c+ch] = (v - lo) * scale
				}
			}
		}
	}
	t := tensors.FromFlatDataAndDimensions(nhwc, n, h, w, c)
	images := timage.ToImage().MaxValue(255.0).Batch(t)
	if len(images) != n {
		return nil, errors.Errorf("converted %d images, want %d", len(images), n)
	}
	return images, nil
}

// SaveGrid writes the grid of the first n images to path as PNG, one image
// pixel per output pixel.
func SaveGrid(path string, images *nn.Tensor, n, perRow int) error {
	grid, err := Grid(images, n, perRow)
	if err != nil {
		return err
	}
	b := grid.Bounds()

	p := plot.New()
	p.HideAxes()
	p.Add(plotter.NewImage(grid, 0, 0, float64(b.Dx()), float64(b.Dy())))

	// at 72 dpi one point is one pixel
	c := vgimg.NewWith(vgimg.UseWH(vg.Length(b.Dx()), vg.Length(b.Dy())), vgimg.UseDPI(72))
	p.Draw(vgdraw.New(c))
	return writePNG(path, c)
}

func writePNG(path string, c *vgimg.Canvas) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "mkdir %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "encode %s", path)
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}
