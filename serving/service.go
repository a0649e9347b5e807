package serving

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"time"

	"busdelay/db"
	"busdelay/logging"
	"busdelay/ml"
	"busdelay/monitoring"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

var ErrNotReady = errors.New("model not ready")

// ModelFailedError reports that the model load ended in the Failed state.
type ModelFailedError struct {
	Detail string
}

func (e *ModelFailedError) Error() string {
	return "model failed to load: " + e.Detail
}

// Auditor receives one entry per successful batch.
type Auditor interface {
	Enqueue(entry db.PredictionLog) bool
}

type Options struct {
	// Schema supplies the expected columns when the model carries no names.
	Schema    ml.FeatureSchema
	Strict    bool
	CacheSize int
	Audit     Auditor
	Metrics   *monitoring.MetricsCollector
	Logger    *zap.Logger
}

type Service struct {
	ctrl       *Controller
	schema     ml.FeatureSchema
	normalizer ml.Normalizer
	cache      *lru.Cache[string, float64]
	audit      Auditor
	metrics    *monitoring.MetricsCollector
	logger     *zap.Logger
}

func NewService(ctrl *Controller, opts Options) (*Service, error) {
	if ctrl == nil {
		return nil, errors.New("controller is nil")
	}
	if opts.Schema == nil {
		opts.Schema = ml.BusDelaySchema()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Service{
		ctrl:       ctrl,
		schema:     opts.Schema,
		normalizer: ml.Normalizer{Strict: opts.Strict},
		audit:      opts.Audit,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With(zap.String("component", "predict")),
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, float64](opts.CacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}
	return s, nil
}

func (s *Service) Controller() *Controller { return s.ctrl }

func (s *Service) Schema() ml.FeatureSchema { return s.schema }

// RequiredFeatures is the column order requests are normalized to: the
// model's own names when Ready, otherwise the configured schema.
func (s *Service) RequiredFeatures() []string {
	if h := s.ctrl.State().Handle; h != nil {
		return h.ExpectedColumns(s.schema.Names())
	}
	return s.schema.Names()
}

// Ready returns the handle, or ErrNotReady / *ModelFailedError.
func (s *Service) Ready() (*ml.Handle, error) {
	state := s.ctrl.State()
	switch state.Phase {
	case PhaseReady:
		return state.Handle, nil
	case PhaseFailed:
		return nil, &ModelFailedError{Detail: state.Detail}
	default:
		return nil, ErrNotReady
	}
}

// Predict returns one prediction per record of batch, in input order.
func (s *Service) Predict(ctx context.Context, batch ml.Batch) ([]float64, error) {
	handle, err := s.Ready()
	if err != nil {
		return nil, err
	}
	start := time.Now()

	frame, report, err := s.normalizer.Normalize(batch, handle.ExpectedColumns(s.schema.Names()))
	if err != nil {
		return nil, err
	}
	preds, hits, err := s.predictRows(handle, frame)
	if err != nil {
		logging.For(ctx, s.logger).Warn("prediction failed", zap.Int("rows", frame.NumRows()), zap.Error(err))
		return nil, err
	}
	elapsed := time.Since(start)

	s.metrics.ObservePrediction(monitoring.PredictionStats{
		Rows:         len(preds),
		CacheHits:    hits,
		CacheMisses:  len(preds) - hits,
		MissingCells: len(report.FilledColumns) * report.Rows,
		CoercedCells: report.CoercedCells,
		Duration:     elapsed,
	})
	if len(report.DroppedColumns) > 0 || len(report.FilledColumns) > 0 {
		logging.For(ctx, s.logger).Debug("normalized batch",
			zap.Int("rows", report.Rows),
			zap.Strings("dropped", report.DroppedColumns),
			zap.Strings("filled", report.FilledColumns),
			zap.Int("coerced", report.CoercedCells))
	}
	if s.audit != nil {
		s.audit.Enqueue(db.PredictionLog{
			RequestID:     logging.RequestID(ctx),
			ModelVariant:  string(handle.Variant()),
			ModelChecksum: handle.Checksum(),
			Rows:          len(preds),
			CacheHits:     hits,
			Predictions:   preds,
			LatencyMS:     float64(elapsed.Microseconds()) / 1000,
			CreatedAt:     start,
		})
	}
	return preds, nil
}

// predictRows serves rows from the cache where possible and sends the rest
// to the model in one call.
func (s *Service) predictRows(handle *ml.Handle, frame *ml.Frame) ([]float64, int, error) {
	if s.cache == nil || frame.NumRows() == 0 {
		preds, err := handle.Predict(frame)
		return preds, 0, err
	}

	preds := make([]float64, frame.NumRows())
	keys := make([]string, frame.NumRows())
	var pending []int
	for i, row := range frame.Rows {
		keys[i] = rowKey(row)
		if v, ok := s.cache.Get(keys[i]); ok {
			preds[i] = v
			continue
		}
		pending = append(pending, i)
	}
	hits := frame.NumRows() - len(pending)
	if len(pending) == 0 {
		return preds, hits, nil
	}

	out, err := handle.Predict(frame.Subset(pending))
	if err != nil {
		return nil, hits, err
	}
	for k, i := range pending {
		preds[i] = out[k]
		s.cache.Add(keys[i], out[k])
	}
	return preds, hits, nil
}

func rowKey(row []float64) string {
	buf := make([]byte, 8*len(row))
	for j, v := range row {
		binary.LittleEndian.PutUint64(buf[8*j:], math.Float64bits(v))
	}
	return string(buf)
}
