package main

// Example command that loads a frame-pair dataset, draws one shuffled batch
// and converts it into gomlx tensors the same way training consumes it.
//
// Usage:
//   go run ./datasets/example -data data/training_data -size 64

import (
	"flag"
	"fmt"
	"io"
	"log"

	"github.com/Noofbiz/nextframe/datasets"
)

func main() {
	dir := flag.String("data", "data/training_data", "directory of frame clips")
	size := flag.Int("size", 64, "frame size")
	batch := flag.Int("batch", 8, "batch size")
	flag.Parse()

	ds, err := datasets.NewFramePairs(*dir, *size)
	if err != nil {
		log.Fatalf("failed to load frame pairs: %v", err)
	}
	fmt.Printf("Using frames under: %s\n", *dir)
	fmt.Printf("Clips: %d, frame pairs: %d\n", ds.Clips(), ds.Len())
	if cur, next, err := ds.Paths(0); err == nil {
		fmt.Printf("  First pair: %s -> %s\n", cur, next)
	}

	loader, err := datasets.NewLoader(ds, *batch, 1)
	if err != nil {
		log.Fatalf("failed to create loader: %v", err)
	}
	fmt.Printf("Batches per epoch: %d\n", loader.NumBatches())

	_, inputs, labels, err := loader.Yield()
	if err == io.EOF {
		fmt.Println("dataset is empty")
		return
	}
	if err != nil {
		log.Fatalf("failed to yield batch: %v", err)
	}
	fmt.Printf("Created tensors: current=%v next=%v\n", inputs[0].Shape(), labels[0].Shape())
}
