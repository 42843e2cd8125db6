package nn

import (
	"errors"
	"math"
	"testing"

	"emu21cm/internal/tensor"
)

func kernel(t *testing.T, in, out int, values ...float64) tensor.Array {
	t.Helper()
	k, err := tensor.FromSlice(values).Reshape(in, out)
	if err != nil {
		t.Fatalf("kernel: %v", err)
	}
	return k
}

func TestForwardSimpleFeedForward(t *testing.T) {
	net, err := NewNetwork([]Layer{
		{Kernel: kernel(t, 2, 1, 2, -1), Bias: []float64{0.5}, Activation: "identity"},
	})
	if err != nil {
		t.Fatalf("new network: %v", err)
	}

	got, err := net.Forward([]float64{1.0, 0.25})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if want := 1.25; math.Abs(got[0]-want) > 1e-9 {
		t.Fatalf("unexpected output: got=%f want=%f", got[0], want)
	}
}

func TestForwardTwoLayers(t *testing.T) {
	net, err := NewNetwork([]Layer{
		{Kernel: kernel(t, 2, 2, 1, -1, 1, -1), Activation: "relu"},
		{Kernel: kernel(t, 2, 3, 1, 2, 3, 1, 1, 1), Bias: []float64{0, 0, 1}, Activation: "linear"},
	})
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	if net.InputSize() != 2 || net.OutputSize() != 3 || net.Depth() != 2 {
		t.Fatalf("unexpected sizes: in=%d out=%d depth=%d", net.InputSize(), net.OutputSize(), net.Depth())
	}

	// hidden = relu([1+2, -1-2]) = [3, 0]
	got, err := net.ForwardBatch([][]float64{{1, 2}, {0, 0}})
	if err != nil {
		t.Fatalf("forward batch: %v", err)
	}
	want := [][]float64{{3, 6, 10}, {0, 0, 1}}
	for i := range want {
		for j := range want[i] {
			if math.Abs(got[i][j]-want[i][j]) > 1e-12 {
				t.Fatalf("unexpected output [%d][%d]: got=%g want=%g", i, j, got[i][j], want[i][j])
			}
		}
	}
}

func TestNewNetworkValidation(t *testing.T) {
	tests := []struct {
		name   string
		layers []Layer
		want   error
	}{
		{name: "empty", layers: nil, want: ErrLayerShape},
		{name: "flat-kernel", layers: []Layer{{Kernel: tensor.FromSlice([]float64{1, 2})}}, want: ErrLayerShape},
		{name: "bias", layers: []Layer{{Kernel: kernel(t, 1, 2, 1, 2), Bias: []float64{1}}}, want: ErrLayerShape},
		{name: "chain", layers: []Layer{{Kernel: kernel(t, 1, 2, 1, 2)}, {Kernel: kernel(t, 3, 1, 1, 2, 3)}}, want: ErrLayerShape},
		{name: "activation", layers: []Layer{{Kernel: kernel(t, 1, 1, 1), Activation: "unknown"}}, want: ErrActivationNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewNetwork(tc.layers); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got: %v", tc.want, err)
			}
		})
	}
}

func TestForwardInputSize(t *testing.T) {
	net, err := NewNetwork([]Layer{{Kernel: kernel(t, 2, 1, 1, 1)}})
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	if _, err := net.Forward([]float64{1}); !errors.Is(err, ErrInputSize) {
		t.Fatalf("expected ErrInputSize, got: %v", err)
	}
}
