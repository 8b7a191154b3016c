package models

// Tensor is a dense rank-3 array indexed [batch][time][feature].
type Tensor [][][]float64

// NewTensor allocates a zeroed tensor backed by one contiguous slice.
func NewTensor(batch, steps, features int) Tensor {
	data := make([]float64, batch*steps*features)
	t := make(Tensor, batch)
	for b := range t {
		t[b] = make([][]float64, steps)
		for s := range t[b] {
			off := (b*steps + s) * features
			t[b][s] = data[off : off+features : off+features]
		}
	}
	return t
}

// Shape returns [batch, steps, features]. Ragged tensors report the first window's sizes.
func (t Tensor) Shape() [3]int {
	var shape [3]int
	shape[0] = len(t)
	if len(t) > 0 {
		shape[1] = len(t[0])
		if len(t[0]) > 0 {
			shape[2] = len(t[0][0])
		}
	}
	return shape
}

// Batch is one windowed batch: inputs [B, input_width, F] and labels [B, label_width, F'].
type Batch struct {
	Inputs Tensor `json:"inputs"`
	Labels Tensor `json:"labels"`
}

// Size returns the number of windows in the batch.
func (b Batch) Size() int {
	return len(b.Inputs)
}
