package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"busdelay/db"
	"busdelay/logging"
	"busdelay/ml"
	"busdelay/monitoring"
	"busdelay/serving"
	"go.uber.org/zap"
)

const maxRecentLimit = 500

// RecentLister 审计日志查询
type RecentLister interface {
	QueryRecent(ctx context.Context, limit int) ([]db.PredictionLog, error)
}

// IndexResponse 服务说明
type IndexResponse struct {
	Message             string           `json:"message"`
	Endpoints           []string         `json:"endpoints"`
	RequiredFeatures    []string         `json:"required_features"`
	FeatureSchema       ml.FeatureSchema `json:"feature_schema"`
	ExampleSingleRecord ml.Record        `json:"example_single_record"`
	Notes               []string         `json:"notes"`
	Model               *ml.ModelInfo    `json:"model,omitempty"`
	UptimeSeconds       float64          `json:"uptime_seconds"`
}

// ReadyResponse 就绪探针响应
type ReadyResponse struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PredictResponse 预测结果，与输入记录一一对应
type PredictResponse struct {
	Predictions []float64 `json:"predictions"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type handlers struct {
	svc     *serving.Service
	recent  RecentLister
	metrics *monitoring.MetricsCollector
	logger  *zap.Logger
}

func (h *handlers) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /ready", h.handleReady)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /favicon.ico", handleFavicon)
	mux.HandleFunc("GET /api/predictions/recent", h.handleRecent)
}

// handleIndex 服务说明
// @Summary Service description
// @Description Lists endpoints, the expected feature columns and an example record.
// @Tags meta
// @Produce json
// @Success 200 {object} IndexResponse
// @Router / [get]
func (h *handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	resp := IndexResponse{
		Message:             "Bus delay API running",
		Endpoints:           []string{"/predict", "/ready", "/ws/predict", "/metrics", "/swagger/index.html"},
		RequiredFeatures:    h.svc.RequiredFeatures(),
		FeatureSchema:       h.svc.Schema(),
		ExampleSingleRecord: ml.ExampleRecord(),
		Notes: []string{
			"POST JSON to /predict; the Content-Type header is not required.",
			"Accepts a single object, a list of objects, or an object of equal-length column arrays.",
			"Incoming records are reindexed to the model's feature order; missing features become missing values.",
			"Numeric-like strings and booleans are coerced to numbers; other values become missing.",
		},
		UptimeSeconds: h.metrics.GetUptime().Seconds(),
	}
	if handle := h.svc.Controller().State().Handle; handle != nil {
		info := handle.Describe()
		resp.Model = &info
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReady 就绪探针
// @Summary Readiness check
// @Tags meta
// @Produce json
// @Success 200 {object} ReadyResponse
// @Failure 500 {object} ReadyResponse "model failed to load"
// @Failure 503 {object} ReadyResponse "model loading"
// @Router /ready [get]
func (h *handlers) handleReady(w http.ResponseWriter, r *http.Request) {
	state := h.svc.Controller().State()
	switch state.Phase {
	case serving.PhaseReady:
		writeJSON(w, http.StatusOK, ReadyResponse{Ready: true})
	case serving.PhaseFailed:
		writeJSON(w, http.StatusInternalServerError, ReadyResponse{Ready: false, Error: state.Detail})
	default:
		writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Ready: false, Message: "model loading"})
	}
}

// handlePredict 批量预测
// @Summary Predict bus delays
// @Description Body is one record, a list of records, or an object of column arrays.
// @Tags predict
// @Accept json
// @Produce json
// @Param payload body object true "Record, list of records, or columnar object"
// @Success 200 {object} PredictResponse
// @Failure 400 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /predict [post]
func (h *handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	// 先检查就绪状态，未就绪时不解析请求体
	if _, err := h.svc.Ready(); err != nil {
		h.writePredictError(w, r, err)
		return
	}

	body, err := readBody(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		var payloadErr *ml.PayloadError
		if !errors.As(err, &tooLarge) && !errors.As(err, &payloadErr) {
			err = &ml.PayloadError{Reason: ml.ReasonInvalidJSON, Err: err}
		}
		h.writePredictError(w, r, err)
		return
	}

	preds, err := h.predictBody(r.Context(), body)
	if err != nil {
		h.writePredictError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PredictResponse{Predictions: preds})
}

func (h *handlers) predictBody(ctx context.Context, body []byte) ([]float64, error) {
	batch, err := ml.ParsePayload(body)
	if err != nil {
		return nil, err
	}
	return h.svc.Predict(ctx, batch)
}

func (h *handlers) writePredictError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := predictErrorResponse(err)
	logger := logging.For(r.Context(), h.logger)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.Error("predict failed", zap.Int("status", status), zap.Error(err))
	} else {
		logger.Info("predict rejected", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, resp)
}

// predictErrorResponse maps a prediction pipeline error to its status code
// and body.
func predictErrorResponse(err error) (int, ErrorResponse) {
	var (
		failed     *serving.ModelFailedError
		tooLarge   *http.MaxBytesError
		payloadErr *ml.PayloadError
		predErr    *ml.PredictionError
	)
	switch {
	case errors.Is(err, serving.ErrNotReady):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "model not ready"}
	case errors.As(err, &failed):
		return http.StatusInternalServerError, ErrorResponse{Error: "Model failed to load", Details: failed.Detail}
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "request body too large",
			Details: fmt.Sprintf("limit is %d bytes", tooLarge.Limit),
		}
	case errors.As(err, &payloadErr):
		details := payloadErr.Reason
		if payloadErr.Err != nil {
			details = payloadErr.Err.Error()
		}
		switch payloadErr.Reason {
		case ml.ReasonEmptyBody:
			return http.StatusBadRequest, ErrorResponse{Error: "Empty request body"}
		case ml.ReasonInvalidJSON:
			return http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON", Details: details}
		default:
			return http.StatusBadRequest, ErrorResponse{Error: "Unsupported JSON format", Details: details}
		}
	case errors.As(err, &predErr):
		return http.StatusInternalServerError, ErrorResponse{Error: "Prediction failed", Details: predErr.Error()}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "Prediction failed", Details: "internal server error"}
	}
}

func handleFavicon(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// handleRecent 最近的预测审计记录
// @Summary Recent predictions
// @Tags audit
// @Produce json
// @Param limit query int false "Maximum number of rows (default 20)"
// @Success 200 {array} db.PredictionLog
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse "auditing disabled"
// @Router /api/predictions/recent [get]
func (h *handlers) handleRecent(w http.ResponseWriter, r *http.Request) {
	if h.recent == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "prediction audit is disabled"})
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid limit", Details: s})
			return
		}
		limit = min(l, maxRecentLimit)
	}

	logs, err := h.recent.QueryRecent(r.Context(), limit)
	if err != nil {
		logging.For(r.Context(), h.logger).Error("query recent predictions failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to query predictions"})
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode JSON response", zap.Error(err))
	}
}
