package server

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/inferloop/tsforecast/internal/observability/health"
	"github.com/inferloop/tsforecast/internal/window"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
)

// WindowResponse describes the windower and its splits.
type WindowResponse struct {
	Description      string         `json:"description"`
	InputWidth       int            `json:"input_width"`
	LabelWidth       int            `json:"label_width"`
	Shift            int            `json:"shift"`
	TotalWindowSize  int            `json:"total_window_size"`
	InputIndices     []int          `json:"input_indices"`
	LabelIndices     []int          `json:"label_indices"`
	Columns          []string       `json:"columns"`
	LabelColumns     []string       `json:"label_columns"`
	BatchSize        int            `json:"batch_size"`
	Windows          map[string]int `json:"windows"`
	NumInputFeatures int            `json:"num_input_features"`
	NumLabelFeatures int            `json:"num_label_features"`
}

// ExampleResponse carries the cached example batch. Values are included on request.
type ExampleResponse struct {
	InputShape [3]int        `json:"input_shape"`
	LabelShape [3]int        `json:"label_shape"`
	Inputs     [][][]float64 `json:"inputs,omitempty"`
	Labels     [][][]float64 `json:"labels,omitempty"`
}

type errorBody struct {
	Error struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Context map[string]interface{} `json:"context,omitempty"`
	} `json:"error"`
}

// HealthResponse reports liveness plus the registered component checks.
type HealthResponse struct {
	Status  health.HealthStatus            `json:"status"`
	Version string                         `json:"version"`
	Uptime  string                         `json:"uptime"`
	Checks  map[string]health.HealthResult `json:"checks,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  health.StatusHealthy,
		Version: constants.AppVersion,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.options.Health != nil {
		report := s.options.Health.Run(r.Context())
		resp.Status = report.Status
		resp.Checks = report.Checks
	}

	status := http.StatusOK
	if resp.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) describeWindow(w http.ResponseWriter, r *http.Request) {
	spec := s.windower.Spec()
	resp := WindowResponse{
		Description:      s.windower.String(),
		InputWidth:       spec.InputWidth(),
		LabelWidth:       spec.LabelWidth(),
		Shift:            spec.Shift(),
		TotalWindowSize:  spec.TotalWindowSize(),
		InputIndices:     spec.InputIndices(),
		LabelIndices:     spec.LabelIndices(),
		Columns:          s.windower.Columns(),
		LabelColumns:     s.windower.LabelColumns(),
		BatchSize:        s.windower.BatchSize(),
		Windows:          make(map[string]int, 3),
		NumInputFeatures: s.windower.NumInputFeatures(),
		NumLabelFeatures: s.windower.NumLabelFeatures(),
	}

	splits := []struct {
		name  string
		build func() (*window.Dataset, error)
	}{
		{"train", s.windower.Train},
		{"val", s.windower.Val},
		{"test", s.windower.Test},
	}
	for _, split := range splits {
		ds, err := split.build()
		switch {
		case stderrors.Is(err, errors.ErrInsufficientRows):
			resp.Windows[split.name] = 0
		case err != nil:
			s.writeError(w, err)
			return
		default:
			resp.Windows[split.name] = ds.NumWindows()
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) example(w http.ResponseWriter, r *http.Request) {
	batch, err := s.windower.Example()
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := ExampleResponse{
		InputShape: batch.Inputs.Shape(),
		LabelShape: batch.Labels.Shape(),
	}
	if values, _ := strconv.ParseBool(r.URL.Query().Get("values")); values {
		resp.Inputs = batch.Inputs
		resp.Labels = batch.Labels
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) plot(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	column := query.Get("column")
	if column == "" {
		column = s.options.TargetColumn
	}
	if column == "" {
		column = s.windower.Columns()[0]
	}

	maxSubplots := constants.DefaultMaxSubplots
	if raw := query.Get("max_subplots"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, errors.NewValidationError(errors.CodeInvalidInput, "max_subplots must be a positive integer"))
			return
		}
		maxSubplots = n
	}

	var buf bytes.Buffer
	if err := s.windower.Plot(&buf, s.options.Predictor, column, maxSubplots); err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypePNG)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeErrorBody(w, http.StatusNotFound, "NOT_FOUND", "no route for "+r.URL.Path)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errors.StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("Request failed")
	}

	body := errorBody{}
	body.Error.Code = errors.CodeInternalError
	body.Error.Message = err.Error()

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		body.Error.Code = appErr.Code
		body.Error.Message = appErr.Message
		body.Error.Context = appErr.Context
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	body := errorBody{}
	body.Error.Code = code
	body.Error.Message = message

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
