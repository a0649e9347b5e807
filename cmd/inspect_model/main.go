package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"busdelay/logging"
	"busdelay/ml"
	"go.uber.org/zap"
)

type report struct {
	Model           ml.ModelInfo       `json:"model"`
	ExpectedColumns []string           `json:"expected_columns"`
	Normalize       ml.NormalizeReport `json:"normalize"`
	Predictions     []float64          `json:"predictions"`
}

func main() {
	modelPath := flag.String("model_path", os.Getenv("MODEL_PATH"), "model file (default "+ml.DefaultModelFile+")")
	input := flag.String("input", "", "JSON file with a record or batch (default: the example record)")
	strict := flag.Bool("strict", false, "fail on values that cannot be converted to numbers")
	logLevel := flag.String("log_level", "warn", "log level")
	flag.Parse()

	logger, err := logging.New(logging.Options{Level: *logLevel, Development: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	out, err := inspect(ml.ResolveModelPath(*modelPath), *input, *strict, logger.Logger)
	if err != nil {
		logger.Error("inspect failed", zap.Error(err))
		logger.Close()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("failed to write report", zap.Error(err))
		logger.Close()
		os.Exit(1)
	}
}

func inspect(path, input string, strict bool, logger *zap.Logger) (*report, error) {
	handle, err := ml.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Info("model loaded", zap.String("path", path), zap.String("variant", string(handle.Variant())))

	batch := ml.Batch{ml.ExampleRecord()}
	if input != "" {
		data, err := os.ReadFile(input)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		if batch, err = ml.ParsePayload(data); err != nil {
			return nil, err
		}
	}

	columns := handle.ExpectedColumns(ml.BusDelaySchema().Names())
	frame, norm, err := ml.Normalizer{Strict: strict}.Normalize(batch, columns)
	if err != nil {
		return nil, err
	}
	preds, err := handle.Predict(frame)
	if err != nil {
		return nil, err
	}
	return &report{
		Model:           handle.Describe(),
		ExpectedColumns: columns,
		Normalize:       norm,
		Predictions:     preds,
	}, nil
}
