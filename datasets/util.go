package datasets

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// Channels is the number of color channels of every frame.
const Channels = 3

var frameExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

func isFrameFile(name string) bool {
	return frameExtensions[strings.ToLower(filepath.Ext(name))]
}

// listFrames returns the frame files directly inside dir, sorted by name.
func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var frames []string
	for _, e := range entries {
		if e.IsDir() || !isFrameFile(e.Name()) {
			continue
		}
		frames = append(frames, filepath.Join(dir, e.Name()))
	}
	sort.Strings(frames)
	return frames, nil
}

// LoadFrame decodes the image at path, resizes it to size x size with
// bilinear filtering and returns it as CHW float32 in [0,1].
func LoadFrame(path string, size int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open frame %s", path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode frame %s", path)
	}
	return ImageToCHW(img, size), nil
}

// ImageToCHW resizes img to size x size and converts it to CHW float32 in [0,1].
func ImageToCHW(img image.Image, size int) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := size * size
	out := make([]float32, Channels*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := dst.PixOffset(x, y)
			p := y*size + x
			out[p] = float32(dst.Pix[off]) / 255
			out[plane+p] = float32(dst.Pix[off+1]) / 255
			out[2*plane+p] = float32(dst.Pix[off+2]) / 255
		}
	}
	return out
}

// CHWToImage converts a CHW float32 frame in [0,1] back to an RGBA image.
// Values outside [0,1] are clamped.
func CHWToImage(data []float32, size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := img.PixOffset(x, y)
			p := y*size + x
			img.Pix[off] = toByte(data[p])
			img.Pix[off+1] = toByte(data[plane+p])
			img.Pix[off+2] = toByte(data[2*plane+p])
			img.Pix[off+3] = 255
		}
	}
	return img
}

func toByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}
