package window

import (
	"fmt"
	"strings"

	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

// Spec is the immutable window geometry. The label window immediately follows the
// input window, so shift always equals the label width.
type Spec struct {
	inputWidth int
	labelWidth int
}

// NewSpec validates the geometry.
func NewSpec(inputWidth, labelWidth int) (Spec, error) {
	if inputWidth <= 0 || labelWidth <= 0 {
		return Spec{}, errors.NewWindowError(errors.ErrInvalidGeometry, errors.CodeInvalidGeometry,
			fmt.Sprintf("input width %d and label width %d must be positive", inputWidth, labelWidth))
	}
	return Spec{inputWidth: inputWidth, labelWidth: labelWidth}, nil
}

// InputWidth is the number of context steps.
func (s Spec) InputWidth() int { return s.inputWidth }

// LabelWidth is the number of forecast steps.
func (s Spec) LabelWidth() int { return s.labelWidth }

// Shift is the offset between the end of the input window and the end of the label window.
func (s Spec) Shift() int { return s.labelWidth }

// TotalWindowSize is input width plus shift.
func (s Spec) TotalWindowSize() int { return s.inputWidth + s.Shift() }

// InputSlice returns the half-open step range [start, end) of the input window.
func (s Spec) InputSlice() (start, end int) { return 0, s.inputWidth }

// LabelSlice returns the half-open step range [start, end) of the label window.
func (s Spec) LabelSlice() (start, end int) {
	total := s.TotalWindowSize()
	return total - s.labelWidth, total
}

// InputIndices enumerates the input slice.
func (s Spec) InputIndices() []int {
	return indexRange(s.InputSlice())
}

// LabelIndices enumerates the label slice.
func (s Spec) LabelIndices() []int {
	return indexRange(s.LabelSlice())
}

func (s Spec) String() string {
	return s.describe(nil)
}

func (s Spec) describe(labelColumns []string) string {
	labels := "None"
	if len(labelColumns) > 0 {
		labels = "[" + strings.Join(labelColumns, ", ") + "]"
	}
	return strings.Join([]string{
		fmt.Sprintf("Total window size: %d", s.TotalWindowSize()),
		fmt.Sprintf("Input indices: %v", s.InputIndices()),
		fmt.Sprintf("Label indices: %v", s.LabelIndices()),
		fmt.Sprintf("Label column name(s): %s", labels),
	}, "\n")
}

// SplitWindow slices a batch of raw windows [B, total, F] into inputs [B, input_width, F] and
// labels [B, label_width, F']. When labelColumns is non-empty, labels carry only those columns,
// gathered through columns in the configured order. The result never aliases raw.
func (s Spec) SplitWindow(raw models.Tensor, columns map[string]int, labelColumns []string) (models.Tensor, models.Tensor, error) {
	gather := make([]int, len(labelColumns))
	for i, name := range labelColumns {
		idx, ok := columns[name]
		if !ok {
			return nil, nil, errors.UndefinedColumn(name)
		}
		gather[i] = idx
	}

	total := s.TotalWindowSize()
	features := raw.Shape()[2]
	labelFeatures := features
	if len(gather) > 0 {
		labelFeatures = len(gather)
	}

	inStart, inEnd := s.InputSlice()
	labStart, labEnd := s.LabelSlice()

	inputs := models.NewTensor(len(raw), s.inputWidth, features)
	labels := models.NewTensor(len(raw), s.labelWidth, labelFeatures)

	for b, w := range raw {
		if len(w) != total {
			return nil, nil, errors.NewWindowError(errors.ErrShapeMismatch, errors.CodeShapeMismatch,
				fmt.Sprintf("window %d has %d steps, expected %d", b, len(w), total))
		}
		for t := inStart; t < inEnd; t++ {
			if len(w[t]) != features {
				return nil, nil, errors.NewWindowError(errors.ErrShapeMismatch, errors.CodeShapeMismatch,
					fmt.Sprintf("window %d step %d has %d features, expected %d", b, t, len(w[t]), features))
			}
			copy(inputs[b][t-inStart], w[t])
		}
		for t := labStart; t < labEnd; t++ {
			step := w[t]
			if len(step) != features {
				return nil, nil, errors.NewWindowError(errors.ErrShapeMismatch, errors.CodeShapeMismatch,
					fmt.Sprintf("window %d step %d has %d features, expected %d", b, t, len(step), features))
			}
			dst := labels[b][t-labStart]
			if len(gather) == 0 {
				copy(dst, step)
				continue
			}
			for k, idx := range gather {
				if idx >= features {
					return nil, nil, errors.NewWindowError(errors.ErrShapeMismatch, errors.CodeShapeMismatch,
						fmt.Sprintf("label column %q at index %d exceeds %d features", labelColumns[k], idx, features))
				}
				dst[k] = step[idx]
			}
		}
	}

	return inputs, labels, nil
}

func indexRange(start, end int) []int {
	out := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, i)
	}
	return out
}
