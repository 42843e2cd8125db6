package nn

import (
	"errors"
	"fmt"

	"emu21cm/internal/tensor"
)

var (
	ErrLayerShape = errors.New("layer shape mismatch")
	ErrInputSize  = errors.New("input has the wrong size")
)

// Layer is a dense layer computing act(x . Kernel + Bias) with Kernel shaped
// (in, out).
type Layer struct {
	Kernel     tensor.Array
	Bias       []float64
	Activation string
}

// Network is a feed-forward stack of dense layers.
type Network struct {
	layers []Layer
	acts   []ActivationFunc
}

// NewNetwork checks that consecutive layers chain and resolves every
// activation up front.
func NewNetwork(layers []Layer) (*Network, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: network has no layers", ErrLayerShape)
	}
	acts := make([]ActivationFunc, len(layers))
	for i, layer := range layers {
		if len(layer.Kernel.Shape) != 2 {
			return nil, fmt.Errorf("%w: layer %d kernel has shape %v, want (in, out)", ErrLayerShape, i, layer.Kernel.Shape)
		}
		out := layer.Kernel.Shape[1]
		if layer.Bias != nil && len(layer.Bias) != out {
			return nil, fmt.Errorf("%w: layer %d bias has %d values, want %d", ErrLayerShape, i, len(layer.Bias), out)
		}
		if i > 0 && layers[i-1].Kernel.Shape[1] != layer.Kernel.Shape[0] {
			return nil, fmt.Errorf("%w: layer %d expects %d inputs, previous layer yields %d", ErrLayerShape, i, layer.Kernel.Shape[0], layers[i-1].Kernel.Shape[1])
		}
		fn, err := GetActivation(layer.Activation)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		acts[i] = fn
	}
	return &Network{layers: append([]Layer(nil), layers...), acts: acts}, nil
}

func (n *Network) InputSize() int {
	return n.layers[0].Kernel.Shape[0]
}

func (n *Network) OutputSize() int {
	return n.layers[len(n.layers)-1].Kernel.Shape[1]
}

func (n *Network) Depth() int {
	return len(n.layers)
}

// Forward evaluates one input vector.
func (n *Network) Forward(input []float64) ([]float64, error) {
	if len(input) != n.InputSize() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInputSize, len(input), n.InputSize())
	}
	x := input
	for i, layer := range n.layers {
		in, out := layer.Kernel.Shape[0], layer.Kernel.Shape[1]
		y := make([]float64, out)
		if layer.Bias != nil {
			copy(y, layer.Bias)
		}
		for r := 0; r < in; r++ {
			xr := x[r]
			if xr == 0 {
				continue
			}
			row := layer.Kernel.Data[r*out : (r+1)*out]
			for c, w := range row {
				y[c] += xr * w
			}
		}
		fn := n.acts[i]
		for c := range y {
			y[c] = fn(y[c])
		}
		x = y
	}
	return x, nil
}

// ForwardBatch evaluates every row of inputs.
func (n *Network) ForwardBatch(inputs [][]float64) ([][]float64, error) {
	out := make([][]float64, len(inputs))
	for i, input := range inputs {
		y, err := n.Forward(input)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = y
	}
	return out, nil
}
