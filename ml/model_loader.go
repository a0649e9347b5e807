package ml

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const DefaultModelFile = "models/best_xgb_model.json"

// ResolveModelPath returns override when set, otherwise the default relative
// location, made absolute against the working directory.
func ResolveModelPath(override string) string {
	path := override
	if path == "" {
		path = filepath.FromSlash(DefaultModelFile)
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func Load(path string) (*Handle, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Kind: NotFound, Path: path, Err: err}
		}
		return nil, corrupt(path, err)
	}
	sum := sha256.Sum256(payload)

	raw, err := maybeGunzip(payload)
	if err != nil {
		return nil, corrupt(path, err)
	}
	model, err := DecodeModel(raw)
	if err != nil {
		return nil, corrupt(path, err)
	}
	handle, err := NewHandle(model, path)
	if err != nil {
		return nil, corrupt(path, err)
	}
	handle.checksum = hex.EncodeToString(sum[:])
	return handle, nil
}

// DecodeModel picks a decoder from the document's top-level key: "estimator"
// for wrapped estimators, "learner" for raw boosters.
func DecodeModel(data []byte) (any, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("model is not a JSON document: %w", err)
	}
	switch {
	case top["estimator"] != nil:
		return DecodeEstimator(data)
	case top["learner"] != nil:
		return DecodeBooster(data)
	default:
		return nil, errors.New(`unrecognized model document: expected an "estimator" or "learner" key`)
	}
}

func maybeGunzip(payload []byte) ([]byte, error) {
	if len(payload) < 2 || payload[0] != 0x1f || payload[1] != 0x8b {
		return payload, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return raw, nil
}
