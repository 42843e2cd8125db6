// Package output turns flat network outputs into named physical summaries
// and persists them.
package output

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"emu21cm/internal/archive"
	"emu21cm/internal/properties"
	"emu21cm/internal/tensor"
	"emu21cm/internal/variant"
)

var (
	ErrUnknownQuantity = errors.New("unknown output quantity")
	ErrFileExists      = errors.New("output file already exists")
)

// neutralThreshold is the neutral fraction below which the IGM at the spin
// temperature transition counts as ionized.
const neutralThreshold = 0.1

// Archive keys of the coordinate axes written next to the quantities.
const (
	InputsKey        = "inputs"
	RedshiftsKey     = "redshifts"
	PSRedshiftsKey   = "PS_redshifts"
	WavenumbersKey   = "k"
	MuvKey           = "Muv"
	UVLFRedshiftsKey = "UVLF_redshifts"
)

// Output is a batch of physical summaries. Every quantity has its leading
// batch axis, and every size-1 axis, squeezed away.
type Output struct {
	props      *properties.Properties
	keys       []string
	quantities map[string]tensor.Array
}

// Reconstruct reassembles, de-normalises and post-processes raw, one row
// per parameter set.
func Reconstruct(props *properties.Properties, raw [][]float64) (*Output, error) {
	r, err := NewRaw(props, raw)
	if err != nil {
		return nil, err
	}
	if props.Variant() == variant.RadioBackground {
		return reconstructRadio(r)
	}
	return reconstructDefault(r)
}

func reconstructDefault(r *Raw) (*Output, error) {
	props := r.props
	fields := []string{"Tb", "xHI", "Ts", "PS", "tau", "UVLFs"}
	q := make(map[string]tensor.Array, len(fields))
	for _, name := range fields {
		var (
			arr tensor.Array
			err error
		)
		if r.IsNormalized(name) {
			arr, err = r.Denormalize(name)
		} else {
			arr, err = r.Segment(name)
		}
		if err != nil {
			return nil, err
		}
		q[name] = arr
	}
	zTs, err := r.Segment(transitionKey)
	if err != nil {
		return nil, err
	}

	applyTransitionMask(props.Redshifts(), zTs.Data, q["xHI"], q["Ts"])

	for _, name := range []string{"PS", "Ts", "tau"} {
		q[name] = q[name].Pow10()
	}

	return newOutput(props, fields, q), nil
}

// applyTransitionMask zero-fills the neutral fraction before the spin
// temperature transition when the IGM is already ionized there, and blanks
// the spin temperature before the transition unconditionally.
func applyTransitionMask(zs, zTs []float64, xHI, ts tensor.Array) {
	nz := len(zs)
	dist := make([]float64, nz)
	for i, zt := range zTs {
		for j, z := range zs {
			dist[j] = math.Abs(z - zt)
		}
		zbin := tensor.Argmin(dist)
		row := xHI.Data[i*nz : (i+1)*nz]
		if row[zbin] < neutralThreshold {
			for j := 0; j < zbin; j++ {
				row[j] = 0
			}
		}
		tsRow := ts.Data[i*nz : (i+1)*nz]
		for j := 0; j < zbin; j++ {
			tsRow[j] = math.NaN()
		}
	}
}

func reconstructRadio(r *Raw) (*Output, error) {
	props := r.props
	tb, err := r.Denormalize("Tb")
	if err != nil {
		return nil, err
	}
	tb, err = tensor.Affine(tb.Pow10(), props.TbScale(), []float64{-1})
	if err != nil {
		return nil, fmt.Errorf("brightness temperature scale: %w", err)
	}
	tr, err := r.Denormalize("Tr")
	if err != nil {
		return nil, err
	}
	ps, err := r.Denormalize("PS")
	if err != nil {
		return nil, err
	}
	xHI, err := r.Segment("xHI")
	if err != nil {
		return nil, err
	}
	tau, err := r.Segment("tau")
	if err != nil {
		return nil, err
	}

	q := map[string]tensor.Array{
		"Tb":  flipLast(tb),
		"Tr":  flipLast(tr.Pow10()),
		"xHI": flipLast(xHI),
		"PS":  ps.Pow10(),
		"tau": tau.Pow10(),
	}
	return newOutput(props, []string{"Tb", "Tr", "xHI", "PS", "tau"}, q), nil
}

// flipLast reverses a (batch, n) array along its redshift axis.
func flipLast(a tensor.Array) tensor.Array {
	width := a.Shape[len(a.Shape)-1]
	out := a.Clone()
	for start := 0; start < len(out.Data); start += width {
		row := out.Data[start : start+width]
		for i, j := 0, width-1; i < j; i, j = i+1, j-1 {
			row[i], row[j] = row[j], row[i]
		}
	}
	return out
}

func newOutput(props *properties.Properties, keys []string, q map[string]tensor.Array) *Output {
	for k, v := range q {
		q[k] = v.Squeeze()
	}
	return &Output{props: props, keys: keys, quantities: q}
}

// Keys lists the quantities in reconstruction order.
func (o *Output) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Get returns a copy of the named quantity.
func (o *Output) Get(key string) (tensor.Array, bool) {
	v, ok := o.quantities[key]
	if !ok {
		return tensor.Array{}, false
	}
	return v.Clone(), true
}

// Items returns a copy of every quantity keyed by name.
func (o *Output) Items() map[string]tensor.Array {
	out := make(map[string]tensor.Array, len(o.quantities))
	for k, v := range o.quantities {
		out[k] = v.Clone()
	}
	return out
}

// Properties are the constants the output was reconstructed with.
func (o *Output) Properties() *properties.Properties { return o.props }

// Redshifts is the redshift axis of Tb, xHI, Ts and, for radio outputs, Tr.
func (o *Output) Redshifts() []float64 { return o.props.Redshifts() }

// PSRedshifts is the redshift axis of PS.
func (o *Output) PSRedshifts() []float64 { return o.props.PSRedshifts() }

// PSWavenumbers is the wavenumber axis of PS.
func (o *Output) PSWavenumbers() []float64 { return o.props.PSWavenumbers() }

// Muv is the cropped UV magnitude axis of UVLFs. Empty for radio outputs.
func (o *Output) Muv() []float64 {
	if o.props.Variant() == variant.RadioBackground {
		return nil
	}
	return o.props.Muv()
}

// UVLFRedshifts is the redshift axis of UVLFs.
func (o *Output) UVLFRedshifts() []float64 { return o.props.UVLFRedshifts() }

// Write stores the output as an npz archive at path. An empty store writes
// every quantity and coordinate axis; otherwise only the quantities and axes
// named in store are written. inputs, when given, is saved under InputsKey.
func (o *Output) Write(path string, inputs [][]float64, store []string, overwrite bool) error {
	if !overwrite {
		exists, err := archive.Exists(path)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrFileExists, path)
		}
	}

	axes := o.axes()
	arrays := make(map[string]tensor.Array, len(o.keys)+len(axes)+1)
	if len(store) == 0 {
		for _, key := range o.keys {
			arrays[key] = o.quantities[key]
		}
		for key, v := range axes {
			arrays[key] = v
		}
	}
	for _, key := range store {
		if v, ok := o.quantities[key]; ok {
			arrays[key] = v
			continue
		}
		if v, ok := axes[key]; ok {
			arrays[key] = v
			continue
		}
		return fmt.Errorf("%w: %s (have %v)", ErrUnknownQuantity, key, o.keys)
	}
	if len(inputs) > 0 {
		in, err := tensor.FromRows(inputs)
		if err != nil {
			return fmt.Errorf("inputs: %w", err)
		}
		arrays[InputsKey] = in
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	return archive.WriteFile(path, arrays)
}

// axes are the coordinate arrays of the variant, keyed as written.
func (o *Output) axes() map[string]tensor.Array {
	out := map[string]tensor.Array{
		RedshiftsKey:   tensor.FromSlice(o.Redshifts()),
		PSRedshiftsKey: tensor.FromSlice(o.PSRedshifts()),
		WavenumbersKey: tensor.FromSlice(o.PSWavenumbers()),
	}
	if o.props.Variant() == variant.Default {
		out[MuvKey] = tensor.FromSlice(o.Muv())
		out[UVLFRedshiftsKey] = tensor.FromSlice(o.UVLFRedshifts())
	}
	return out
}

// ReadFile loads an archive written by Write.
func ReadFile(path string) (map[string]tensor.Array, error) {
	return archive.ReadFile(path)
}

// QuantityKeys returns the quantity names of a reloaded archive, leaving out
// the inputs and coordinate axes.
func QuantityKeys(arrays map[string]tensor.Array) []string {
	out := make([]string, 0, len(arrays))
	for k := range arrays {
		switch k {
		case InputsKey, RedshiftsKey, PSRedshiftsKey, WavenumbersKey, MuvKey, UVLFRedshiftsKey:
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
