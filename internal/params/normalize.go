// Package params maps astrophysical parameter sets between physical units
// and the unit-cube coordinates the emulator network consumes.
package params

import (
	"errors"
	"fmt"
	"math"

	"emu21cm/internal/properties"
	"emu21cm/internal/variant"
)

const (
	// nuXThresholdIndex is NU_X_THRESH, supplied in eV and normalised in keV.
	nuXThresholdIndex = 7
	eVPerKeV          = 1000.0
)

// logScaled lists the default-variant coordinates supplied linearly and
// normalised in log10: F_STAR10, F_ESC10, M_TURN and L_X.
var logScaled = []int{0, 2, 4, 6}

var ErrNonPositive = errors.New("log-scaled parameter must be positive")

type Normalizer struct {
	variant string
	keys    []string
	limits  []properties.Limits
}

func NewNormalizer(props *properties.Properties) *Normalizer {
	return &Normalizer{
		variant: props.Variant(),
		keys:    props.ParameterKeys(),
		limits:  props.Limits(),
	}
}

// Keys returns the parameter names in network order.
func (n *Normalizer) Keys() []string {
	return append([]string(nil), n.keys...)
}

// MakeParamArray orders every set of the batch and returns it normalised
// when normed is true, in physical units otherwise. A batch whose values all
// lie in [0, 1] is taken to be normalised already.
func (n *Normalizer) MakeParamArray(batch Batch, normed bool) ([][]float64, error) {
	if _, err := batch.Kind(); err != nil {
		return nil, err
	}
	theta := make([][]float64, len(batch))
	for i, set := range batch {
		row, err := set.vector(n.keys)
		if err != nil {
			return nil, fmt.Errorf("parameter set %d: %w", i, err)
		}
		theta[i] = row
	}

	alreadyNormed := IsNormalized(theta)
	switch {
	case alreadyNormed == normed:
		return theta, nil
	case alreadyNormed:
		return n.UndoNormalization(theta), nil
	default:
		if err := n.checkLogDomain(theta); err != nil {
			return nil, err
		}
		return n.Normalize(theta), nil
	}
}

// checkLogDomain rejects physical values that have no log10.
func (n *Normalizer) checkLogDomain(theta [][]float64) error {
	if n.variant != variant.Default {
		return nil
	}
	for i, row := range theta {
		for _, j := range logScaled {
			if !(row[j] > 0) {
				return fmt.Errorf("%w: parameter set %d has %s = %g", ErrNonPositive, i, n.keys[j], row[j])
			}
		}
	}
	return nil
}

// MakeListOfDicts returns the batch as named parameter maps.
func (n *Normalizer) MakeListOfDicts(batch Batch, normed bool) ([]map[string]float64, error) {
	theta, err := n.MakeParamArray(batch, normed)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]float64, len(theta))
	for i, row := range theta {
		m := make(map[string]float64, len(n.keys))
		for j, key := range n.keys {
			m[key] = row[j]
		}
		out[i] = m
	}
	return out, nil
}

// Normalize maps physical parameters into the unit cube. theta is not
// modified.
func (n *Normalizer) Normalize(theta [][]float64) [][]float64 {
	out := copyRows(theta)
	for _, row := range out {
		if n.variant == variant.Default {
			for _, i := range logScaled {
				row[i] = math.Log10(row[i])
			}
			row[nuXThresholdIndex] /= eVPerKeV
		}
		for i, lim := range n.limits {
			row[i] = (row[i] - lim.Lo) / (lim.Hi - lim.Lo)
		}
	}
	return out
}

// UndoNormalization is the inverse of Normalize.
func (n *Normalizer) UndoNormalization(theta [][]float64) [][]float64 {
	out := copyRows(theta)
	for _, row := range out {
		for i, lim := range n.limits {
			row[i] = row[i]*(lim.Hi-lim.Lo) + lim.Lo
		}
		if n.variant == variant.Default {
			row[nuXThresholdIndex] *= eVPerKeV
			for _, i := range logScaled {
				row[i] = math.Pow(10, row[i])
			}
		}
	}
	return out
}

// IsNormalized reports whether every value lies in [0, 1].
func IsNormalized(theta [][]float64) bool {
	for _, row := range theta {
		for _, v := range row {
			if !(v >= 0 && v <= 1) {
				return false
			}
		}
	}
	return true
}

func copyRows(theta [][]float64) [][]float64 {
	out := make([][]float64, len(theta))
	for i, row := range theta {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
