// Package inference - Numerical engine selection.
package inference

import "github.com/pkg/errors"

// EngineType is the type of the numerical engine a detector runs on.
type EngineType string

const (
	// EngineONNX is the ONNX engine that uses the onnxruntime library.
	EngineONNX EngineType = "onnx"
	// EngineOpenCV is the OpenCV DNN engine that uses the gocv bindings.
	EngineOpenCV EngineType = "opencv"
)

// Engines is a list of all supported engines.
var Engines = []EngineType{EngineONNX, EngineOpenCV}

// ParseEngineType validates an engine name.
//
// Arguments:
//   - name: The engine name. An empty name selects EngineONNX.
//
// Returns:
//   - EngineType: The parsed engine.
//   - error: An error if the engine is not supported.
func ParseEngineType(name string) (EngineType, error) {
	if name == "" {
		return EngineONNX, nil
	}
	for _, e := range Engines {
		if string(e) == name {
			return e, nil
		}
	}
	return "", errors.Errorf("unsupported engine %q (supported: %v)", name, Engines)
}
