// Package providers - Configuration for ONNX Runtime sessions.
package providers

import (
	"github.com/pkg/errors"
)

// Config represents the configuration of an ONNX Runtime session.
type Config struct {
	// Backend specifies the execution provider to use.
	Backend ProviderBackend `json:"backend"        yaml:"backend"`
	// LibraryPath overrides the platform default ONNX Runtime shared library.
	LibraryPath string `json:"libraryPath"    yaml:"libraryPath"`
	// InputName is the model input node name.
	InputName string `json:"inputName"      yaml:"inputName"`
	// OutputName is the model output node name.
	OutputName string `json:"outputName"     yaml:"outputName"`
	// InputSize is the square model input side (S).
	InputSize int `json:"inputSize"      yaml:"inputSize"`
	// OutputFields is the number of values per candidate (4 + classes).
	OutputFields int `json:"outputFields"   yaml:"outputFields"`
	// NumCandidates is the number of candidate boxes (N).
	NumCandidates int `json:"numCandidates"  yaml:"numCandidates"`
	// IntraOpThreads sets parallelism inside graph nodes. Zero lets ONNX Runtime decide.
	IntraOpThreads int `json:"intraOpThreads" yaml:"intraOpThreads"`
	// InterOpThreads sets parallelism across graph nodes. Zero lets ONNX Runtime decide.
	InterOpThreads int `json:"interOpThreads" yaml:"interOpThreads"`

	CoreML   CoreMLOptions   `json:"coreml"   yaml:"coreml"`
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
	CUDA     CUDAOptions     `json:"cuda"     yaml:"cuda"`
}

// DefaultConfig returns the configuration of a 640x640 YOLOv8 export on CPU:
// input "images" (1, 3, 640, 640), output "output0" (1, 84, 8400).
//
// Returns:
//   - Config: The default configuration.
//
// @example
// config := DefaultConfig()
// config.Backend = CoreMLProviderBackend
// session, err := NewSession("yolov8n.onnx", config)
func DefaultConfig() Config {
	return Config{
		Backend:       CPUProviderBackend,
		InputName:     "images",
		OutputName:    "output0",
		InputSize:     640,
		OutputFields:  84,
		NumCandidates: 8400,
	}
}

// Validate checks the configuration for consistency.
//
// Returns:
//   - error: An error describing the first invalid field.
func (c Config) Validate() error {
	if _, err := NewProvider(c); err != nil {
		return err
	}
	if c.InputName == "" || c.OutputName == "" {
		return errors.New("input and output names are required")
	}
	if c.InputSize < 32 {
		return errors.Errorf("input size must be at least 32, got %d", c.InputSize)
	}
	if c.OutputFields < 5 {
		return errors.Errorf("output fields must be at least 5, got %d", c.OutputFields)
	}
	if c.NumCandidates < 1 {
		return errors.Errorf("candidates must be positive, got %d", c.NumCandidates)
	}
	if c.IntraOpThreads < 0 || c.InterOpThreads < 0 {
		return errors.New("thread counts must not be negative")
	}
	return nil
}

// InputShape returns the (1, 3, S, S) input shape.
func (c Config) InputShape() []int64 {
	s := int64(c.InputSize)
	return []int64{1, 3, s, s}
}

// OutputShape returns the (1, C, N) output shape.
func (c Config) OutputShape() []int64 {
	return []int64{1, int64(c.OutputFields), int64(c.NumCandidates)}
}
