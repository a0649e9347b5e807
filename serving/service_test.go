package serving

import (
	"context"
	"errors"
	"sync"
	"testing"

	"busdelay/db"
	"busdelay/logging"
	"busdelay/ml"
	"busdelay/monitoring"
	"github.com/google/go-cmp/cmp"
)

type recordingAuditor struct {
	mu      sync.Mutex
	entries []db.PredictionLog
}

func (a *recordingAuditor) Enqueue(entry db.PredictionLog) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return true
}

func TestServiceGate(t *testing.T) {
	loading := NewController(func(string) (*ml.Handle, error) { select {} }, nil)
	svc, err := NewService(loading, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Predict(context.Background(), ml.Batch{{"a": 1}}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}

	failed := NewController(func(path string) (*ml.Handle, error) {
		return nil, &ml.LoadError{Kind: ml.NotFound, Path: path}
	}, nil)
	failed.StartLoading("/models/x.json")
	waitTerminal(t, failed)
	svc, _ = NewService(failed, Options{})
	_, err = svc.Predict(context.Background(), ml.Batch{{"a": 1}})
	var modelErr *ModelFailedError
	if !errors.As(err, &modelErr) || modelErr.Detail != "model file not found at /models/x.json" {
		t.Fatalf("expected ModelFailedError with detail, got %v", err)
	}
}

func TestServicePredictPreservesOrder(t *testing.T) {
	svc, err := NewService(readyController(t, &sumModel{}), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	batch := ml.Batch{
		{"a": 1, "b": 2},
		{"b": 10},
		{"a": "7", "extra": true},
		{},
	}
	preds, err := svc.Predict(context.Background(), batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]float64{3, 10, 7, 0}, preds); diff != "" {
		t.Fatalf("predictions mismatch (-want +got):\n%s", diff)
	}

	empty, err := svc.Predict(context.Background(), ml.Batch{})
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty predictions, got %#v (%v)", empty, err)
	}
}

func TestServiceRequiredFeatures(t *testing.T) {
	loading := NewController(func(string) (*ml.Handle, error) { select {} }, nil)
	svc, _ := NewService(loading, Options{})
	if diff := cmp.Diff(ml.BusDelaySchema().Names(), svc.RequiredFeatures()); diff != "" {
		t.Fatalf("expected default schema while loading (-want +got):\n%s", diff)
	}

	svc, _ = NewService(readyController(t, &sumModel{}), Options{})
	if diff := cmp.Diff([]string{"a", "b"}, svc.RequiredFeatures()); diff != "" {
		t.Fatalf("expected model feature names once ready (-want +got):\n%s", diff)
	}
}

func TestServiceCachesRows(t *testing.T) {
	model := &sumModel{}
	svc, err := NewService(readyController(t, model), Options{CacheSize: 16, Metrics: monitoring.NewMetricsCollector()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	if _, err := svc.Predict(ctx, ml.Batch{{"a": 1, "b": 1}, {"a": 2}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	preds, err := svc.Predict(ctx, ml.Batch{{"a": 2}, {"a": 5}, {"b": 1, "a": 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]float64{2, 5, 2}, preds); diff != "" {
		t.Fatalf("predictions mismatch (-want +got):\n%s", diff)
	}
	if got := model.predictedRows(); got != 3 {
		t.Fatalf("expected only 3 rows to reach the model, got %d", got)
	}

	if _, err := svc.Predict(ctx, ml.Batch{{"a": 5}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := model.predictedRows(); got != 3 {
		t.Fatalf("fully cached batch must not call the model, got %d rows", got)
	}
}

func TestServiceAudits(t *testing.T) {
	audit := &recordingAuditor{}
	svc, _ := NewService(readyController(t, &sumModel{}), Options{Audit: audit})
	ctx := logging.WithRequestID(context.Background(), "req-1")

	if _, err := svc.Predict(ctx, ml.Batch{{"a": 1}, {"a": 2}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Predict(ctx, ml.Batch{{"a": "x"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(audit.entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(audit.entries))
	}
	first := audit.entries[0]
	if first.RequestID != "req-1" || first.Rows != 2 || first.ModelVariant != string(ml.BoosterVariant) {
		t.Fatalf("unexpected audit entry: %+v", first)
	}
	if diff := cmp.Diff([]float64{1, 2}, first.Predictions); diff != "" {
		t.Fatalf("audited predictions mismatch (-want +got):\n%s", diff)
	}
}

func TestServiceStrictNormalization(t *testing.T) {
	svc, _ := NewService(readyController(t, &sumModel{}), Options{Strict: true})
	_, err := svc.Predict(context.Background(), ml.Batch{{"a": "not a number"}})
	if !errors.Is(err, ml.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

type brokenModel struct{}

func (brokenModel) Predict(d *ml.DMatrix) ([]float64, error) {
	return nil, errors.New("booster exploded")
}

func TestServicePredictionError(t *testing.T) {
	svc, _ := NewService(readyController(t, brokenModel{}), Options{CacheSize: 4})
	_, err := svc.Predict(context.Background(), ml.Batch{{"segment_id": 1}})
	var predErr *ml.PredictionError
	if !errors.As(err, &predErr) {
		t.Fatalf("expected PredictionError, got %v", err)
	}
}
