package ml

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestLoadNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	_, err := Load(path)
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	if loadErr.Kind != NotFound {
		t.Fatalf("expected NotFound, got %s", loadErr.Kind)
	}
}

func TestLoadCorrupt(t *testing.T) {
	multiClass := learnerDoc([]string{"a"}, "multi:softprob", "0.5", gbtree(stump(0, 1, 0, 1, true)))
	multiClass["learner"].(map[string]any)["learner_model_param"].(map[string]any)["num_class"] = "3"

	tests := []struct {
		name string
		data []byte
	}{
		{name: "not json", data: []byte("\x80\x04\x95 pickle")},
		{name: "unknown document", data: []byte(`{"model": {}}`)},
		{name: "unsupported objective", data: mustJSON(t, learnerDoc([]string{"a"}, "rank:pairwise", "0.5", gbtree(stump(0, 1, 0, 1, true))))},
		{name: "multi class", data: mustJSON(t, multiClass)},
		{name: "child out of range", data: []byte(`{"learner": {"gradient_booster": {"name": "gbtree", "model": {"trees": [
			{"left_children": [5, -1, -1], "right_children": [2, -1, -1], "split_indices": [0, 0, 0], "split_conditions": [1, 0, 0]}
		]}}, "learner_model_param": {"num_feature": "1"}}}`)},
		{name: "unknown estimator", data: mustJSON(t, estimatorDoc("RandomForestRegressor", []string{"a"}, learnerDoc([]string{"a"}, "reg:squarederror", "0", gblinear(1, 0))))},
		{name: "truncated gzip", data: []byte{0x1f, 0x8b, 0x08}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "model.json")
			if err := os.WriteFile(path, tt.data, 0o600); err != nil {
				t.Fatalf("write model: %v", err)
			}
			_, err := Load(path)
			var loadErr *LoadError
			if !errors.As(err, &loadErr) || loadErr.Kind != Corrupt {
				t.Fatalf("expected Corrupt LoadError, got %v", err)
			}
			if loadErr.Error() == "" {
				t.Fatal("expected error detail")
			}
		})
	}
}

func TestLoadBoosterPredictsExampleRecord(t *testing.T) {
	handle, err := Load(writeModel(t, trafficModel()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle.Variant() != BoosterVariant {
		t.Fatalf("expected booster variant, got %s", handle.Variant())
	}
	if len(handle.Checksum()) != 64 {
		t.Fatalf("expected sha256 checksum, got %q", handle.Checksum())
	}
	info := handle.Describe()
	if info.Objective != "reg:squarederror" || info.GradientBooster != "gblinear" || info.Class != "" {
		t.Fatalf("unexpected model info: %+v", info)
	}

	frame, _ := Normalize(Batch{ExampleRecord()}, handle.ExpectedColumns(nil))
	preds, err := handle.Predict(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(preds) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(preds))
	}
	if math.Abs(preds[0]-19.8) > 1e-4 {
		t.Fatalf("expected ~19.8, got %v", preds[0])
	}
}

func TestLoadEstimatorVariant(t *testing.T) {
	names := []string{"traffic_mean", "num_stops"}
	learner := learnerDoc(nil, "reg:squarederror", "0.5", gbtree(
		stump(0, 1.0, -1, 1, true),
		stump(1, 3.0, 0.25, 0.75, false),
	))
	learner["learner"].(map[string]any)["learner_model_param"].(map[string]any)["num_feature"] = "2"

	handle, err := Load(writeModel(t, estimatorDoc("XGBRegressor", names, learner)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle.Variant() != EstimatorVariant {
		t.Fatalf("expected estimator variant, got %s", handle.Variant())
	}
	if got := handle.ExpectedColumns([]string{"ignored"}); !equalStrings(got, names) {
		t.Fatalf("expected model column order %v, got %v", names, got)
	}
	info := handle.Describe()
	if info.Class != "XGBRegressor" || info.Objective != "reg:squarederror" || info.GradientBooster != "gbtree" {
		t.Fatalf("unexpected model info: %+v", info)
	}

	frame, _ := Normalize(Batch{
		{"traffic_mean": 0.5, "num_stops": 4},
		{"traffic_mean": 2.0, "num_stops": 1},
		{"num_stops": 1},
	}, handle.ExpectedColumns(nil))
	preds, err := handle.Predict(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{0.5 - 1 + 0.75, 0.5 + 1 + 0.25, 0.5 - 1 + 0.25}
	for i := range want {
		if math.Abs(preds[i]-want[i]) > 1e-9 {
			t.Fatalf("row %d: expected %v, got %v", i, want[i], preds[i])
		}
	}
}

func TestLoadGzippedModel(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(mustJSON(t, trafficModel())); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	zw.Close()
	path := filepath.Join(t.TempDir(), "model.json.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write model: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPredictColumnMismatch(t *testing.T) {
	handle, err := Load(writeModel(t, trafficModel()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frame, _ := Normalize(Batch{ExampleRecord()}, []string{"segment_id", "distance_km"})
	_, err = handle.Predict(frame)
	var predErr *PredictionError
	if !errors.As(err, &predErr) {
		t.Fatalf("expected PredictionError, got %v", err)
	}
}

func TestEstimatorRejectsReorderedColumns(t *testing.T) {
	names := []string{"a", "b"}
	handle, err := Load(writeModel(t, estimatorDoc("XGBRegressor", names,
		learnerDoc(names, "reg:squarederror", "0", gblinear(1, 1, 0)))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frame, _ := Normalize(Batch{{"a": 1, "b": 2}}, []string{"b", "a"})
	_, err = handle.Predict(frame)
	var predErr *PredictionError
	if !errors.As(err, &predErr) {
		t.Fatalf("expected PredictionError, got %v", err)
	}
}

func TestPredictAllMissingUsesDefaultBranches(t *testing.T) {
	names := BusDelaySchema().Names()
	handle, err := Load(writeModel(t, learnerDoc(names, "reg:squarederror", "0.5", gbtree(stump(3, 1.0, 2.0, 7.0, true)))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frame, _ := Normalize(Batch{{"foo": 1}}, handle.ExpectedColumns(nil))
	preds, err := handle.Predict(frame)
	if err != nil {
		t.Fatalf("all-missing input must still predict: %v", err)
	}
	if preds[0] != 2.5 {
		t.Fatalf("expected default-branch output 2.5, got %v", preds[0])
	}
}

func TestPredictEmptyFrame(t *testing.T) {
	handle, err := Load(writeModel(t, trafficModel()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frame, _ := Normalize(Batch{}, handle.ExpectedColumns(nil))
	preds, err := handle.Predict(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preds == nil || len(preds) != 0 {
		t.Fatalf("expected empty non-nil predictions, got %#v", preds)
	}
}

type fakeFrameModel struct {
	names []string
	preds []float64
	err   error
}

func (f *fakeFrameModel) PredictFrame(frame *Frame) ([]float64, error) { return f.preds, f.err }

func (f *fakeFrameModel) FeatureNames() []string { return f.names }

type fakeMatrixModel struct {
	calls int
	mu    sync.Mutex
}

func (f *fakeMatrixModel) Predict(m *DMatrix) ([]float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	out := make([]float64, m.NumRow())
	for i := range out {
		out[i] = float64(m.Row(i)[0])
	}
	return out, nil
}

func TestNewHandleSelectsContract(t *testing.T) {
	estimator, err := NewHandle(&fakeFrameModel{names: []string{"x"}}, "mem")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if estimator.Variant() != EstimatorVariant || !equalStrings(estimator.FeatureNames(), []string{"x"}) {
		t.Fatalf("unexpected estimator handle: %+v", estimator.Describe())
	}

	booster, err := NewHandle(&fakeMatrixModel{}, "mem")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booster.Variant() != BoosterVariant || booster.FeatureNames() != nil {
		t.Fatalf("unexpected booster handle: %+v", booster.Describe())
	}
	if got := booster.ExpectedColumns([]string{"d"}); !equalStrings(got, []string{"d"}) {
		t.Fatalf("expected default columns, got %v", got)
	}

	if _, err := NewHandle(struct{}{}, "mem"); err == nil {
		t.Fatal("expected error for a model without a prediction contract")
	}
}

func TestHandleRejectsBadModelOutput(t *testing.T) {
	frame := &Frame{Columns: []string{"x"}, Rows: [][]float64{{1}, {2}}}
	tests := []struct {
		name  string
		model *fakeFrameModel
	}{
		{name: "short result", model: &fakeFrameModel{preds: []float64{1}}},
		{name: "nan", model: &fakeFrameModel{preds: []float64{1, math.NaN()}}},
		{name: "inf", model: &fakeFrameModel{preds: []float64{math.Inf(1), 1}}},
		{name: "model error", model: &fakeFrameModel{err: errors.New("boom")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handle, err := NewHandle(tt.model, "mem")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			_, err = handle.Predict(frame)
			var predErr *PredictionError
			if !errors.As(err, &predErr) {
				t.Fatalf("expected PredictionError, got %v", err)
			}
		})
	}
}

func TestHandleConcurrentPredict(t *testing.T) {
	model := &fakeMatrixModel{}
	handle, err := NewHandle(model, "mem")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			preds, err := handle.Predict(&Frame{Columns: []string{"x"}, Rows: [][]float64{{v}}})
			if err != nil || preds[0] != v {
				t.Errorf("expected %v, got %v (%v)", v, preds, err)
			}
		}(float64(i))
	}
	wg.Wait()
	if model.calls != 16 {
		t.Fatalf("expected 16 calls, got %d", model.calls)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}
