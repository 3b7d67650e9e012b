// Package providers - Inference sessions.
package providers

import (
	"context"
	"os"
	"sync"

	"github.com/nvr-ai/go-intrusion/inference"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"gorgonia.org/tensor"
)

// envMu guards the process-wide ONNX Runtime environment.
var envMu sync.Mutex

// Session represents a model session from the onnxruntime. It implements
// inference.Forwarder.
type Session struct {
	mu      sync.Mutex
	config  Config
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

var _ inference.Forwarder = (*Session)(nil)

// NewSession creates a new ONNX Runtime session with preallocated input and output tensors.
//
// Order of operations:
//  1. Library path check: Ensures native runtime is accessible.
//  2. Environment setup: Required once per process to prepare ONNX Runtime internals.
//  3. Tensor allocation: Prepares fixed-shape buffers for input/output data.
//  4. Session options: Threading, optimization level and execution provider.
//  5. Session creation: Loads model and binds resources.
//
// Arguments:
//   - modelPath: The path to the ONNX model file.
//   - cfg: The session configuration.
//
// Returns:
//   - *Session: The runnable session.
//   - error: An error if the session creation fails.
func NewSession(modelPath string, cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid session config")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, errors.Wrapf(err, "model %s", modelPath)
	}
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(cfg.InputShape()...))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(cfg.OutputShape()...))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	s := &Session{config: cfg, input: input, output: output}

	options, err := ort.NewSessionOptions()
	if err != nil {
		_ = s.Close()
		return nil, errors.Wrap(err, "error creating ORT session options")
	}
	defer options.Destroy()

	err = multierr.Combine(
		options.SetIntraOpNumThreads(cfg.IntraOpThreads),
		options.SetInterOpNumThreads(cfg.InterOpThreads),
		options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended),
		provider.Apply(options),
	)
	if err != nil {
		_ = s.Close()
		return nil, errors.Wrapf(err, "error configuring %s session", provider.Backend())
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		_ = s.Close()
		return nil, errors.Wrap(err, "error creating ORT session")
	}
	s.session = session

	return s, nil
}

func initEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	libPath, err := GetSharedLibPath(libraryPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	return nil
}

// Shutdown tears down the process-wide ONNX Runtime environment. Every session
// must be closed first.
func Shutdown() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return errors.Wrap(ort.DestroyEnvironment(), "error destroying ORT environment")
}

// Forward runs one preprocessed tensor through the model. Calls are serialized
// because the session binds a single pair of input/output buffers.
//
// Arguments:
//   - ctx: Checked before running.
//   - input: The (1, 3, S, S) tensor.
//
// Returns:
//   - []float32: A copy of the raw (1, C, N) output.
//   - error: An error if the input does not fit or the run fails.
func (s *Session) Forward(ctx context.Context, input *tensor.Dense) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := inference.TensorData(input)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, inference.ErrModelNotLoaded
	}

	dst := s.input.GetData()
	if len(data) != len(dst) {
		return nil, errors.Errorf("input holds %d values, session expects %d", len(data), len(dst))
	}
	copy(dst, data)

	if err := s.session.Run(); err != nil {
		return nil, errors.Wrap(err, "error running ORT session")
	}

	out := s.output.GetData()
	result := make([]float32, len(out))
	copy(result, out)
	return result, nil
}

// Close releases the resources associated with the Session.
//
// Returns:
//   - error: The combined errors of every released resource.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.session != nil {
		err = multierr.Append(err, s.session.Destroy())
		s.session = nil
	}
	if s.input != nil {
		err = multierr.Append(err, s.input.Destroy())
		s.input = nil
	}
	if s.output != nil {
		err = multierr.Append(err, s.output.Destroy())
		s.output = nil
	}
	return errors.Wrap(err, "error destroying ORT session")
}
