// Package opencv - OpenCV DNN numerical engine.
package opencv

import (
	"context"
	"os"
	"sync"

	"github.com/nvr-ai/go-intrusion/inference"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// Config holds the node names and backend of an OpenCV DNN network.
type Config struct {
	// InputName is the model input node name.
	InputName string `json:"inputName"  yaml:"inputName"`
	// OutputName is the model output node name.
	OutputName string `json:"outputName" yaml:"outputName"`
	// Target selects the compute target: "cpu", "opencl" or "cuda".
	Target string `json:"target"     yaml:"target"`
}

// DefaultConfig returns the node names of a YOLOv8 export running on CPU.
func DefaultConfig() Config {
	return Config{InputName: "images", OutputName: "output0", Target: "cpu"}
}

// Net runs an ONNX model through OpenCV's DNN module. It implements inference.Forwarder.
type Net struct {
	mu     sync.Mutex
	config Config
	net    gocv.Net
	loaded bool
}

var _ inference.Forwarder = (*Net)(nil)

// NewNet loads an ONNX model with gocv.ReadNet.
//
// Arguments:
//   - modelPath: The path to the ONNX model file.
//   - cfg: The network configuration.
//
// Returns:
//   - *Net: The loaded network.
//   - error: An error if the model cannot be read.
func NewNet(modelPath string, cfg Config) (*Net, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, errors.Wrapf(err, "model %s", modelPath)
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, errors.Errorf("failed to load ONNX model: %s", modelPath)
	}

	switch cfg.Target {
	case "opencl":
		net.SetPreferableBackend(gocv.NetBackendOpenCV)
		net.SetPreferableTarget(gocv.NetTargetOpenCL)
	case "cuda":
		net.SetPreferableBackend(gocv.NetBackendCUDA)
		net.SetPreferableTarget(gocv.NetTargetCUDA)
	default:
		net.SetPreferableBackend(gocv.NetBackendOpenCV)
		net.SetPreferableTarget(gocv.NetTargetCPU)
	}

	return &Net{config: cfg, net: net, loaded: true}, nil
}

// Forward copies the tensor into a 4-D CV_32F blob, runs the network and returns
// a copy of the flat output.
func (n *Net) Forward(ctx context.Context, input *tensor.Dense) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := inference.TensorData(input)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.loaded {
		return nil, inference.ErrModelNotLoaded
	}

	blob := gocv.NewMatWithSizes([]int(input.Shape()), gocv.MatTypeCV32F)
	defer blob.Close()

	dst, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "error accessing input blob")
	}
	if len(dst) != len(data) {
		return nil, errors.Errorf("input blob holds %d values, tensor has %d", len(dst), len(data))
	}
	copy(dst, data)

	n.net.SetInput(blob, n.config.InputName)
	out := n.net.Forward(n.config.OutputName)
	defer out.Close()

	if out.Empty() {
		return nil, errors.New("network produced no output")
	}
	values, err := out.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "error reading network output")
	}

	result := make([]float32, len(values))
	copy(result, values)
	return result, nil
}

// Close releases the network.
func (n *Net) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.loaded {
		return nil
	}
	n.loaded = false
	return errors.Wrap(n.net.Close(), "error closing OpenCV network")
}
