package report

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/Noofbiz/nextframe/nn"
)

// solidBatch returns n images of size s where image i has every value i+1.
func solidBatch(n, s int) *nn.Tensor {
	t := nn.NewTensor(n, 3, s, s)
	plane := 3 * s * s
	for i := 0; i < n; i++ {
		for j := 0; j < plane; j++ {
			t.Data[i*plane+j] = float32(i + 1)
		}
	}
	return t
}

func TestGridLayout(t *testing.T) {
	const s = 4
	grid, err := Grid(solidBatch(6, s), 5, 2)
	if err != nil {
		t.Fatalf("Grid: %v", err)
	}
	// 5 images, 2 per row: 2 columns, 3 rows
	wantW := 2*(s+GridPadding) + GridPadding
	wantH := 3*(s+GridPadding) + GridPadding
	if b := grid.Bounds(); b.Dx() != wantW || b.Dy() != wantH {
		t.Fatalf("grid is %dx%d, want %dx%d", b.Dx(), b.Dy(), wantW, wantH)
	}

	if r, _, _, _ := grid.At(0, 0).RGBA(); r != 0 {
		t.Fatalf("padding pixel is not black: %d", r)
	}
	// first image is the minimum, fifth the maximum of the selection
	first := grid.RGBAAt(GridPadding, GridPadding)
	if first.R != 0 {
		t.Fatalf("first cell = %v, want 0", first)
	}
	x := GridPadding
	y := GridPadding + 2*(s+GridPadding)
	last := grid.RGBAAt(x+1, y+1)
	if last.R != 255 || last.G != 255 || last.B != 255 {
		t.Fatalf("last cell = %v, want white", last)
	}
	// empty slot after the fifth image stays black
	if empty := grid.RGBAAt(x+s+GridPadding+1, y+1); empty.R != 0 {
		t.Fatalf("empty slot = %v, want black", empty)
	}
}

func TestGridErrors(t *testing.T) {
	if _, err := Grid(nn.NewTensor(2, 1, 4, 4), 2, 1); err == nil {
		t.Fatal("expected error for single-channel images")
	}
	if _, err := Grid(solidBatch(2, 4), 2, 0); err == nil {
		t.Fatal("expected error for zero images per row")
	}
	if _, err := Grid(solidBatch(2, 4), 0, 2); err == nil {
		t.Fatal("expected error for zero images")
	}
}

func TestSaveGrid(t *testing.T) {
	const s = 8
	path := filepath.Join(t.TempDir(), "generated_images", "epoch_0.png")
	if err := SaveGrid(path, solidBatch(4, s), 16, 4); err != nil {
		t.Fatalf("SaveGrid: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	wantW, wantH := 4*(s+GridPadding)+GridPadding, s+2*GridPadding
	b := img.Bounds()
	if abs(b.Dx()-wantW) > 1 || abs(b.Dy()-wantH) > 1 {
		t.Fatalf("png is %dx%d, want about %dx%d", b.Dx(), b.Dy(), wantW, wantH)
	}
}

func TestSaveLossCurves(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "losses.png")
	if err := SaveLossCurves(path, []float64{0.7}, []float64{1.4}); err != nil {
		t.Fatalf("SaveLossCurves single point: %v", err)
	}
	if err := SaveLossCurves(path, []float64{0.7, 0.9, 1.1}, []float64{1.4, 1.2, 1.3}); err != nil {
		t.Fatalf("SaveLossCurves: %v", err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		t.Fatalf("loss curve not written: %v", err)
	}
	if err := SaveLossCurves(path, nil, nil); err == nil {
		t.Fatal("expected error for empty histories")
	}
}

func TestSaveLoadLosses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lossesG.npy")
	want := []float64{0.69, 1.25, 0.5}
	if err := SaveLosses(path, want); err != nil {
		t.Fatalf("SaveLosses: %v", err)
	}
	got, err := LoadLosses(path)
	if err != nil {
		t.Fatalf("LoadLosses: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d losses, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("loss %d = %f, want %f", i, got[i], want[i])
		}
	}

	empty := filepath.Join(dir, "lossesD.npy")
	if err := SaveLosses(empty, nil); err != nil {
		t.Fatalf("SaveLosses empty: %v", err)
	}
	got, err = LoadLosses(empty)
	if err != nil {
		t.Fatalf("LoadLosses empty: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("empty array read back as %d values", len(got))
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
