package datasets

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// writeFrame writes a solid-color PNG of the given size at path.
func writeFrame(t *testing.T, path string, size int, c color.RGBA) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// makeClips lays out two clips: three frames in clipA and two in clipB, plus
// a lone frame at the root which must not produce a pair.
func makeClips(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for i, name := range []string{"000.png", "001.png", "002.png"} {
		writeFrame(t, filepath.Join(root, "clipA", name), 20, color.RGBA{R: uint8(50 * (i + 1)), A: 255})
	}
	for i, name := range []string{"a.png", "b.png"} {
		writeFrame(t, filepath.Join(root, "clipB", name), 12, color.RGBA{G: uint8(100 * (i + 1)), A: 255})
	}
	writeFrame(t, filepath.Join(root, "lonely.png"), 8, color.RGBA{B: 255, A: 255})
	if err := os.WriteFile(filepath.Join(root, "clipA", "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestFramePairsIndexing(t *testing.T) {
	root := makeClips(t)
	ds, err := NewFramePairs(root, 8)
	if err != nil {
		t.Fatalf("NewFramePairs: %v", err)
	}
	if ds.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 (2 from clipA, 1 from clipB)", ds.Len())
	}
	if ds.Clips() != 2 {
		t.Fatalf("Clips() = %d, want 2", ds.Clips())
	}

	cur, next, err := ds.Paths(1)
	if err != nil {
		t.Fatalf("Paths: %v", err)
	}
	if filepath.Base(cur) != "001.png" || filepath.Base(next) != "002.png" {
		t.Fatalf("pair 1 = (%s, %s), want (001.png, 002.png)", cur, next)
	}
	if _, _, err := ds.Paths(3); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestFramePairsExampleValues(t *testing.T) {
	root := makeClips(t)
	ds, err := NewFramePairs(root, 8)
	if err != nil {
		t.Fatalf("NewFramePairs: %v", err)
	}
	cur, next, err := ds.Example(0)
	if err != nil {
		t.Fatalf("Example: %v", err)
	}
	plane := 8 * 8
	if len(cur) != 3*plane || len(next) != 3*plane {
		t.Fatalf("unexpected buffer sizes %d/%d", len(cur), len(next))
	}
	// solid red 50 then red 100; green and blue planes are zero
	if got, want := cur[0], float32(50)/255; abs(got-want) > 2.0/255 {
		t.Fatalf("current red = %f, want %f", got, want)
	}
	if got, want := next[0], float32(100)/255; abs(got-want) > 2.0/255 {
		t.Fatalf("next red = %f, want %f", got, want)
	}
	if cur[plane] != 0 || cur[2*plane] != 0 {
		t.Fatalf("expected empty green/blue planes, got %f/%f", cur[plane], cur[2*plane])
	}
}

func TestFramePairsEmpty(t *testing.T) {
	root := t.TempDir()
	writeFrame(t, filepath.Join(root, "only.png"), 4, color.RGBA{A: 255})
	if _, err := NewFramePairs(root, 8); err == nil {
		t.Fatal("expected error for a dataset without pairs")
	}
	if _, err := NewFramePairs(filepath.Join(root, "missing"), 8); err == nil {
		t.Fatal("expected error for a missing directory")
	}
}

func TestBatchShapes(t *testing.T) {
	ds, err := NewFramePairs(makeClips(t), 8)
	if err != nil {
		t.Fatalf("NewFramePairs: %v", err)
	}
	b, err := ds.Batch([]int{2, 0})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if b.Size() != 2 {
		t.Fatalf("Size() = %d", b.Size())
	}
	want := []int{2, 3, 8, 8}
	for i, d := range want {
		if b.Current.Shape[i] != d || b.Next.Shape[i] != d {
			t.Fatalf("batch shapes %v/%v, want %v", b.Current.Shape, b.Next.Shape, want)
		}
	}
	cur, next := b.ToGomlxTensors()
	if dims := cur.Shape().Dimensions; len(dims) != 4 || dims[0] != 2 {
		t.Fatalf("gomlx current dims = %v", dims)
	}
	if dims := next.Shape().Dimensions; len(dims) != 4 || dims[1] != 3 {
		t.Fatalf("gomlx next dims = %v", dims)
	}
}

func TestLoaderEpochCoversDataset(t *testing.T) {
	ds, err := NewFramePairs(makeClips(t), 4)
	if err != nil {
		t.Fatalf("NewFramePairs: %v", err)
	}
	loader, err := NewLoader(ds, 2, 42)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if loader.NumBatches() != 2 {
		t.Fatalf("NumBatches() = %d, want 2", loader.NumBatches())
	}

	it := loader.Epoch()
	var seen []int
	var sizes []int
	for {
		b, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		seen = append(seen, b.Indices...)
		sizes = append(sizes, b.Size())
	}
	if it.Index() != 2 {
		t.Fatalf("Index() = %d, want 2", it.Index())
	}
	if len(sizes) != 2 || sizes[0] != 2 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [2 1]", sizes)
	}
	sort.Ints(seen)
	for i, v := range seen {
		if v != i {
			t.Fatalf("epoch indices = %v, want each pair once", seen)
		}
	}

	sample, err := loader.Sample()
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if sample.Size() != 2 {
		t.Fatalf("Sample size = %d", sample.Size())
	}
}

func TestLoaderYield(t *testing.T) {
	ds, err := NewFramePairs(makeClips(t), 4)
	if err != nil {
		t.Fatalf("NewFramePairs: %v", err)
	}
	loader, err := NewLoader(ds, 2, 1)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	batches := 0
	for {
		_, inputs, labels, err := loader.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Yield: %v", err)
		}
		if len(inputs) != 1 || len(labels) != 1 {
			t.Fatalf("expected one input and one label tensor")
		}
		batches++
	}
	if batches != 2 {
		t.Fatalf("yielded %d batches, want 2", batches)
	}
	loader.Reset()
	if _, _, _, err := loader.Yield(); err != nil {
		t.Fatalf("Yield after Reset: %v", err)
	}
	if loader.Name() != "FramePairs" {
		t.Fatalf("Name() = %q", loader.Name())
	}
}

func TestNewLoaderValidation(t *testing.T) {
	if _, err := NewLoader(nil, 2, 0); err == nil {
		t.Fatal("expected error for nil dataset")
	}
	ds, err := NewFramePairs(makeClips(t), 4)
	if err != nil {
		t.Fatalf("NewFramePairs: %v", err)
	}
	if _, err := NewLoader(ds, 0, 0); err == nil {
		t.Fatal("expected error for zero batch size")
	}
	l, err := NewLoader(ds, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if l.BatchSize() != 3 {
		t.Fatalf("BatchSize = %d, want 3", l.BatchSize())
	}
}

func TestCHWRoundTrip(t *testing.T) {
	data := []float32{0, 0.5, 1, 1.5, -1, 0.25, 0.75, 1, 0, 1, 0, 1}
	img := CHWToImage(data, 2)
	if img.Pix[0] != 0 || img.Pix[4] != 128 {
		t.Fatalf("unexpected red bytes %d %d", img.Pix[0], img.Pix[4])
	}
	if img.Pix[12] != 255 {
		t.Fatalf("expected clamp to 255, got %d", img.Pix[12])
	}
	back := ImageToCHW(img, 2)
	if abs(back[1]-float32(128)/255) > 1.5/255 {
		t.Fatalf("round trip value %f", back[1])
	}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
