package nn

import (
	"fmt"
	"math"
)

const (
	bceLogFloor = -100
	bceGradEps  = 1e-12
)

// BCELoss returns the mean binary cross entropy between predicted
// probabilities and targets, and its gradient with respect to pred.
// Log terms are clamped at -100 so saturated predictions stay finite.
func BCELoss(pred, target *Tensor) (float64, *Tensor) {
	if pred.Len() != target.Len() {
		panic(fmt.Sprintf("nn: bce shape mismatch %v vs %v", pred.Shape, target.Shape))
	}
	n := float64(pred.Len())
	grad := NewTensor(pred.Shape...)
	var loss float64
	for i, p32 := range pred.Data {
		p := float64(p32)
		y := float64(target.Data[i])
		logP := math.Max(math.Log(p), bceLogFloor)
		log1mP := math.Max(math.Log(1-p), bceLogFloor)
		loss -= y*logP + (1-y)*log1mP
		grad.Data[i] = float32((p - y) / math.Max(p*(1-p), bceGradEps) / n)
	}
	return loss / n, grad
}
