package training

import "math"

// EarlyStopping tracks the best monitored value in min mode.
// A value improves when it is lower than best-MinDelta; NaN never improves.
type EarlyStopping struct {
	MinDelta float64
	Patience int

	best      float64
	bestEpoch int
	wait      int
}

// NewEarlyStopping creates a tracker with no best value yet.
func NewEarlyStopping(minDelta float64, patience int) *EarlyStopping {
	return &EarlyStopping{
		MinDelta:  math.Abs(minDelta),
		Patience:  patience,
		best:      math.Inf(1),
		bestEpoch: -1,
	}
}

// Observe records the value for epoch and reports whether it improved on the best so far
// and whether training should stop.
func (es *EarlyStopping) Observe(epoch int, value float64) (improved, stop bool) {
	if !math.IsNaN(value) && value < es.best-es.MinDelta {
		es.best = value
		es.bestEpoch = epoch
		es.wait = 0
		return true, false
	}
	es.wait++
	return false, es.wait >= es.Patience
}

// Best returns the best value and its epoch, -1 if nothing improved yet.
func (es *EarlyStopping) Best() (float64, int) {
	return es.best, es.bestEpoch
}

// Wait returns the number of epochs since the last improvement.
func (es *EarlyStopping) Wait() int {
	return es.wait
}
