package params

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrLengthMismatch   = errors.New("parameter vector has the wrong length")
	ErrUnsupportedInput = errors.New("unsupported parameter input")
	ErrMixedBatch       = errors.New("parameter batch mixes mappings and sequences")
	ErrUnknownParameter = errors.New("parameter mapping is missing a key")
	ErrEmptyBatch       = errors.New("parameter batch is empty")
)

// Kind tags how a parameter set was supplied.
type Kind int

const (
	KindSequence Kind = iota + 1
	KindMapping
)

// String names the kind for error messages.
func (k Kind) String() string {
	switch k {
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "invalid"
	}
}

// Set is one parameter vector, either ordered values or named values.
type Set struct {
	kind   Kind
	values []float64
	named  map[string]float64
}

// Values builds an ordered parameter set.
func Values(v ...float64) Set {
	return Set{kind: KindSequence, values: append([]float64(nil), v...)}
}

// Named builds a parameter set keyed by parameter name.
func Named(m map[string]float64) Set {
	named := make(map[string]float64, len(m))
	for k, v := range m {
		named[k] = v
	}
	return Set{kind: KindMapping, named: named}
}

// Kind reports whether s holds ordered or named values.
func (s Set) Kind() Kind { return s.kind }

// Len is the number of values in s.
func (s Set) Len() int {
	if s.kind == KindMapping {
		return len(s.named)
	}
	return len(s.values)
}

// vector orders the set by keys.
func (s Set) vector(keys []string) ([]float64, error) {
	if s.Len() != len(keys) {
		return nil, fmt.Errorf("%w: got %d but require %d", ErrLengthMismatch, s.Len(), len(keys))
	}
	switch s.kind {
	case KindSequence:
		return append([]float64(nil), s.values...), nil
	case KindMapping:
		out := make([]float64, len(keys))
		for i, key := range keys {
			v, ok := s.named[key]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, key)
			}
			out[i] = v
		}
		return out, nil
	default:
		return nil, ErrUnsupportedInput
	}
}

// Batch is a uniformly typed list of parameter sets.
type Batch []Set

// Single wraps one set as a batch of one.
func Single(s Set) Batch {
	return Batch{s}
}

// Rows builds a batch of ordered sets from a 2-D array.
func Rows(rows [][]float64) Batch {
	out := make(Batch, len(rows))
	for i, row := range rows {
		out[i] = Values(row...)
	}
	return out
}

// Kind returns the shared kind of the batch, failing on mixed batches.
func (b Batch) Kind() (Kind, error) {
	if len(b) == 0 {
		return 0, ErrEmptyBatch
	}
	kind := b[0].kind
	for i, s := range b {
		if s.kind != KindSequence && s.kind != KindMapping {
			return 0, fmt.Errorf("%w: element %d", ErrUnsupportedInput, i)
		}
		if s.kind != kind {
			return 0, fmt.Errorf("%w: element %d is a %s, element 0 is a %s", ErrMixedBatch, i, s.kind, kind)
		}
	}
	return kind, nil
}

// FromAny classifies decoded input (YAML/JSON documents or plain Go values)
// into a batch. Mappings and sequences of numbers are single sets; sequences
// of those are batches.
func FromAny(v any) (Batch, error) {
	switch x := v.(type) {
	case Batch:
		return x, nil
	case Set:
		return Single(x), nil
	case []Set:
		return Batch(x), nil
	case map[string]float64:
		return Single(Named(x)), nil
	case []float64:
		return Single(Values(x...)), nil
	case [][]float64:
		return Rows(x), nil
	case []map[string]float64:
		out := make(Batch, len(x))
		for i, m := range x {
			out[i] = Named(m)
		}
		return out, nil
	case map[string]any:
		s, err := mappingFromAny(x)
		if err != nil {
			return nil, err
		}
		return Single(s), nil
	case []any:
		return sequenceFromAny(x)
	default:
		return nil, fmt.Errorf("%w: %s; use a mapping of parameter names, a list of values in parameter order, or a list of such", ErrUnsupportedInput, describe(v))
	}
}

func sequenceFromAny(items []any) (Batch, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	if _, isNumber := toFloat(items[0]); isNumber {
		values := make([]float64, len(items))
		for i, item := range items {
			f, ok := toFloat(item)
			if !ok {
				return nil, fmt.Errorf("%w: element %d is %s, want a number", ErrUnsupportedInput, i, describe(item))
			}
			values[i] = f
		}
		return Single(Values(values...)), nil
	}

	out := make(Batch, 0, len(items))
	for i, item := range items {
		var (
			set Set
			err error
		)
		switch x := item.(type) {
		case map[string]any:
			set, err = mappingFromAny(x)
		case map[string]float64:
			set = Named(x)
		case []any:
			set, err = valuesFromAny(x)
		case []float64:
			set = Values(x...)
		default:
			err = fmt.Errorf("%w: element %d is %s", ErrUnsupportedInput, i, describe(item))
		}
		if err != nil {
			return nil, err
		}
		out = append(out, set)
	}
	if _, err := out.Kind(); err != nil {
		return nil, err
	}
	return out, nil
}

func mappingFromAny(m map[string]any) (Set, error) {
	named := make(map[string]float64, len(m))
	for k, v := range m {
		f, ok := toFloat(v)
		if !ok {
			return Set{}, fmt.Errorf("%w: %s is %s, want a number", ErrUnsupportedInput, k, describe(v))
		}
		named[k] = f
	}
	return Set{kind: KindMapping, named: named}, nil
}

func valuesFromAny(items []any) (Set, error) {
	values := make([]float64, len(items))
	for i, item := range items {
		f, ok := toFloat(item)
		if !ok {
			return Set{}, fmt.Errorf("%w: value %d is %s, want a number", ErrUnsupportedInput, i, describe(item))
		}
		values[i] = f
	}
	return Values(values...), nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

func describe(v any) string {
	if v == nil {
		return "null"
	}
	return reflect.TypeOf(v).String()
}
