package inference

import (
	"context"
	"fmt"
	"path/filepath"

	"emu21cm/internal/archive"
	"emu21cm/internal/nn"
)

// DefaultWeightsName is the weights archive used when the manifest names none.
const DefaultWeightsName = "weights.npz"

// Dense runs a locally stored feed-forward network.
type Dense struct {
	net *nn.Network
}

func NewDense(net *nn.Network) *Dense {
	return &Dense{net: net}
}

func (d *Dense) Predict(ctx context.Context, inputs [][]float64) ([][]float64, error) {
	out := make([][]float64, len(inputs))
	for i, input := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		y, err := d.net.Forward(input)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = y
	}
	return out, nil
}

func (d *Dense) Network() *nn.Network { return d.net }

func openDense(dir string, m Manifest) (*Dense, error) {
	if len(m.Layers) == 0 {
		return nil, fmt.Errorf("%w: dense model lists no layers", ErrManifest)
	}
	name := m.Weights
	if name == "" {
		name = DefaultWeightsName
	}
	weights, err := archive.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}

	layers := make([]nn.Layer, len(m.Layers))
	for i, spec := range m.Layers {
		kernelKey := spec.Kernel
		if kernelKey == "" {
			kernelKey = fmt.Sprintf("layer_%d_kernel", i)
		}
		biasKey := spec.Bias
		if biasKey == "" {
			biasKey = fmt.Sprintf("layer_%d_bias", i)
		}
		kernel, ok := weights[kernelKey]
		if !ok {
			return nil, fmt.Errorf("%w: layer %d: %s", archive.ErrNoKey, i, kernelKey)
		}
		layer := nn.Layer{Kernel: kernel, Activation: spec.Activation}
		if bias, ok := weights[biasKey]; ok {
			layer.Bias = bias.Data
		}
		layers[i] = layer
	}
	net, err := nn.NewNetwork(layers)
	if err != nil {
		return nil, err
	}
	return NewDense(net), nil
}
