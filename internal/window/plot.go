package window

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/models"
)

// Predictor maps an input-window batch [B, input_width, F] to a label-window batch [B, label_width, F'].
type Predictor interface {
	Predict(inputs models.Tensor) (models.Tensor, error)
}

var (
	inputColor      = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	observedColor   = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
	predictionColor = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
)

// Plot renders up to maxSubplots windows of the cached example batch as a PNG.
// Each subplot shows the target column's inputs, its observed labels when the column is a
// label, and the predictor's output over the label horizon when predictor is non-nil.
func (w *Windower) Plot(out io.Writer, predictor Predictor, targetColumn string, maxSubplots int) error {
	plotCol, ok := w.columns[targetColumn]
	if !ok {
		return errors.UndefinedColumn(targetColumn)
	}
	if maxSubplots <= 0 {
		maxSubplots = constants.DefaultMaxSubplots
	}

	example, err := w.Example()
	if err != nil {
		return err
	}

	labelCol, hasLabels := plotCol, true
	if len(w.labelColumns) > 0 {
		labelCol, hasLabels = w.labelIndex[targetColumn]
	}

	n := maxSubplots
	if example.Size() < n {
		n = example.Size()
	}

	var predictions models.Tensor
	predCol := labelCol
	if predictor != nil && hasLabels {
		predictions, err = predictor.Predict(example.Inputs)
		if err != nil {
			return err
		}
		predCol, err = w.predictionColumn(predictions, labelCol, n)
		if err != nil {
			return err
		}
	}

	plots := make([][]*plot.Plot, n)
	for i := 0; i < n; i++ {
		p := plot.New()
		p.Y.Label.Text = targetColumn
		p.Legend.Top = true

		inputs := make(plotter.XYs, w.spec.InputWidth())
		for t, x := range w.spec.InputIndices() {
			inputs[t].X = float64(x)
			inputs[t].Y = example.Inputs[i][t][plotCol]
		}
		line, points, err := plotter.NewLinePoints(inputs)
		if err != nil {
			return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "failed to build input series")
		}
		line.Color = inputColor
		points.Color = inputColor
		points.Shape = draw.CircleGlyph{}
		points.Radius = vg.Points(2)
		p.Add(line, points)
		if i == 0 {
			p.Legend.Add("Inputs", line, points)
		}

		if !hasLabels {
			plots[i] = []*plot.Plot{p}
			continue
		}

		observed, err := plotter.NewScatter(w.labelSeries(example.Labels[i], labelCol))
		if err != nil {
			return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "failed to build label series")
		}
		observed.Color = observedColor
		observed.Shape = draw.CircleGlyph{}
		observed.Radius = vg.Points(4)
		p.Add(observed)
		if i == 0 {
			p.Legend.Add("Observed", observed)
		}

		if predictions != nil {
			predicted, err := plotter.NewScatter(w.labelSeries(predictions[i], predCol))
			if err != nil {
				return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "failed to build prediction series")
			}
			predicted.Color = predictionColor
			predicted.Shape = draw.CrossGlyph{}
			predicted.Radius = vg.Points(4)
			p.Add(predicted)
			if i == 0 {
				p.Legend.Add("Predictions", predicted)
			}
		}

		plots[i] = []*plot.Plot{p}
	}

	img := vgimg.New(12*vg.Inch, vg.Length(n)*4*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      n,
		Cols:      1,
		PadTop:    vg.Points(8),
		PadBottom: vg.Points(8),
		PadLeft:   vg.Points(8),
		PadRight:  vg.Points(8),
		PadY:      vg.Points(12),
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(out); err != nil {
		return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "failed to write plot")
	}
	return nil
}

func (w *Windower) labelSeries(window [][]float64, col int) plotter.XYs {
	xys := make(plotter.XYs, w.spec.LabelWidth())
	for t, x := range w.spec.LabelIndices() {
		xys[t].X = float64(x)
		xys[t].Y = window[t][col]
	}
	return xys
}

// predictionColumn picks the prediction feature matching labelCol. Single-output predictors
// forecast one series regardless of how many label columns exist.
func (w *Windower) predictionColumn(predictions models.Tensor, labelCol, n int) (int, error) {
	shape := predictions.Shape()
	if shape[0] < n || shape[1] != w.spec.LabelWidth() {
		return 0, errors.NewWindowError(errors.ErrShapeMismatch, errors.CodeShapeMismatch,
			fmt.Sprintf("predictions shaped %v, need at least %d windows of %d steps", shape, n, w.spec.LabelWidth()))
	}
	switch {
	case shape[2] == w.NumLabelFeatures():
		return labelCol, nil
	case shape[2] == 1:
		return 0, nil
	default:
		return 0, errors.NewWindowError(errors.ErrShapeMismatch, errors.CodeShapeMismatch,
			fmt.Sprintf("predictions carry %d features, labels carry %d", shape[2], w.NumLabelFeatures()))
	}
}
