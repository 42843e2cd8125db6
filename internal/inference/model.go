// Package inference evaluates the emulator network on batches of normalised
// parameter vectors.
package inference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestName is the file inside a model directory describing how to run it.
const ManifestName = "model.yaml"

const (
	FormatDense  = "dense"
	FormatRemote = "remote"
)

var ErrManifest = errors.New("invalid model manifest")

// Model maps a (batch, parameters) array onto a (batch, raw outputs) array.
type Model interface {
	Predict(ctx context.Context, inputs [][]float64) ([][]float64, error)
}

// Func adapts a plain function to Model.
type Func func(ctx context.Context, inputs [][]float64) ([][]float64, error)

func (f Func) Predict(ctx context.Context, inputs [][]float64) ([][]float64, error) {
	return f(ctx, inputs)
}

type Manifest struct {
	Format  string      `yaml:"format"`
	Weights string      `yaml:"weights,omitempty"`
	Layers  []LayerSpec `yaml:"layers,omitempty"`

	Endpoint string            `yaml:"endpoint,omitempty"`
	Timeout  string            `yaml:"timeout,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
}

// LayerSpec names the weight archive entries of one dense layer. Blank
// names default to layer_<i>_kernel and layer_<i>_bias.
type LayerSpec struct {
	Kernel     string `yaml:"kernel,omitempty"`
	Bias       string `yaml:"bias,omitempty"`
	Activation string `yaml:"activation"`
}

// ReadManifest parses dir/model.yaml.
func ReadManifest(dir string) (Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: decode %s: %v", ErrManifest, path, err)
	}
	m.Format = strings.ToLower(strings.TrimSpace(m.Format))
	return m, nil
}

// Open loads the model described by the manifest in dir.
func Open(dir string) (Model, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	switch m.Format {
	case FormatDense:
		return openDense(dir, m)
	case FormatRemote:
		if m.Endpoint == "" {
			return nil, fmt.Errorf("%w: remote model needs an endpoint", ErrManifest)
		}
		timeout := time.Duration(0)
		if m.Timeout != "" {
			timeout, err = time.ParseDuration(m.Timeout)
			if err != nil {
				return nil, fmt.Errorf("%w: timeout: %v", ErrManifest, err)
			}
		}
		return NewRemote(m.Endpoint, RemoteOptions{Timeout: timeout, Headers: m.Headers}), nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrManifest, m.Format)
	}
}
