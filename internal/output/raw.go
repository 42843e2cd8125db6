package output

import (
	"errors"
	"fmt"

	"emu21cm/internal/properties"
	"emu21cm/internal/tensor"
	"emu21cm/internal/variant"
)

var (
	ErrNotNormalized = errors.New("not a normalized quantity")
	ErrRawShape      = errors.New("raw output has the wrong shape")
)

// Segment is one contiguous range of the flat network output.
type Segment struct {
	Name   string
	Offset int
	Shape  []int
}

func (s Segment) Size() int {
	return tensor.Size(s.Shape)
}

// Layout returns the ordered segments of the flat network output of the
// variant described by props.
func Layout(props *properties.Properties) []Segment {
	nz := len(props.Redshifts())
	psShape := []int{len(props.PSRedshifts()), len(props.PSWavenumbers())}
	ps := tensor.Size(psShape)

	if props.Variant() == variant.RadioBackground {
		return []Segment{
			{Name: "Tb", Offset: 0, Shape: []int{nz}},
			{Name: "Tr", Offset: nz, Shape: []int{nz}},
			{Name: "xHI", Offset: 2 * nz, Shape: []int{nz}},
			{Name: "PS", Offset: 3 * nz, Shape: psShape},
			{Name: "tau", Offset: 3*nz + ps, Shape: []int{}},
		}
	}

	uvShape := []int{len(props.UVLFRedshifts()), len(props.MuvFull())}
	return []Segment{
		{Name: "Tb", Offset: 0, Shape: []int{nz}},
		{Name: "xHI", Offset: nz, Shape: []int{nz}},
		{Name: "Ts", Offset: 2 * nz, Shape: []int{nz}},
		{Name: transitionKey, Offset: 3 * nz, Shape: []int{}},
		{Name: "PS", Offset: 3*nz + 1, Shape: psShape},
		{Name: "tau", Offset: 3*nz + 1 + ps, Shape: []int{}},
		{Name: "UVLFs", Offset: 3*nz + 2 + ps, Shape: uvShape},
	}
}

// RawSize is the length of one flat network output row.
func RawSize(props *properties.Properties) int {
	segments := Layout(props)
	last := segments[len(segments)-1]
	return last.Offset + last.Size()
}

// transitionKey is the redshift at which the spin temperature becomes defined.
const transitionKey = "z_Ts_defined"

// radioStatsNames maps radio segments onto their archive statistics.
var radioStatsNames = map[string]string{
	"Tb": "Tb",
	"Tr": "logTr",
	"PS": "logPS",
}

// Raw is the unprocessed batch of network outputs.
type Raw struct {
	props    *properties.Properties
	rows     int
	data     [][]float64
	segments map[string]Segment
}

func NewRaw(props *properties.Properties, data [][]float64) (*Raw, error) {
	size := RawSize(props)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrRawShape)
	}
	for i, row := range data {
		if len(row) != size {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrRawShape, i, len(row), size)
		}
	}
	segments := make(map[string]Segment)
	for _, seg := range Layout(props) {
		segments[seg.Name] = seg
	}
	return &Raw{props: props, rows: len(data), data: data, segments: segments}, nil
}

// Rows is the batch size.
func (r *Raw) Rows() int { return r.rows }

// Segment copies the named quantity out of every row, shaped (batch, ...).
// UVLFs come back cropped to the Muv range of the properties, the grid their
// statistics are defined on.
func (r *Raw) Segment(name string) (tensor.Array, error) {
	seg, ok := r.segments[name]
	if !ok {
		return tensor.Array{}, fmt.Errorf("%w: %s", ErrUnknownQuantity, name)
	}
	size := seg.Size()
	out := tensor.New(append([]int{r.rows}, seg.Shape...)...)
	for i, row := range r.data {
		copy(out.Data[i*size:(i+1)*size], row[seg.Offset:seg.Offset+size])
	}
	if name == "UVLFs" && r.props.Variant() == variant.Default {
		out = cropMuv(out, r.props.MuvMask())
	}
	return out, nil
}

// Denormalize restores the named quantity as mean + std*raw.
func (r *Raw) Denormalize(name string) (tensor.Array, error) {
	statsName := name
	if r.props.Variant() == variant.RadioBackground {
		if mapped, ok := radioStatsNames[name]; ok {
			statsName = mapped
		}
	}
	stats, ok := r.props.Stats(statsName)
	if !ok {
		return tensor.Array{}, fmt.Errorf("cannot renormalize %s: %w", name, ErrNotNormalized)
	}
	seg, err := r.Segment(name)
	if err != nil {
		return tensor.Array{}, fmt.Errorf("cannot renormalize %s: %w", name, ErrNotNormalized)
	}
	out, err := tensor.Affine(seg, stats.Mean, stats.Std)
	if err != nil {
		return tensor.Array{}, fmt.Errorf("renormalize %s: %w", name, err)
	}
	return out, nil
}

// IsNormalized reports whether the named quantity carries statistics.
func (r *Raw) IsNormalized(name string) bool {
	statsName := name
	if r.props.Variant() == variant.RadioBackground {
		if mapped, ok := radioStatsNames[name]; ok {
			statsName = mapped
		}
	}
	_, ok := r.props.Stats(statsName)
	return ok
}

// cropMuv keeps the last-axis columns selected by mask.
func cropMuv(uv tensor.Array, mask []bool) tensor.Array {
	kept := 0
	for _, m := range mask {
		if m {
			kept++
		}
	}
	width := len(mask)
	rows := uv.Len() / width
	out := tensor.New(append(append([]int(nil), uv.Shape[:len(uv.Shape)-1]...), kept)...)
	for i := 0; i < rows; i++ {
		dst := out.Data[i*kept : (i+1)*kept]
		n := 0
		for j, m := range mask {
			if m {
				dst[n] = uv.Data[i*width+j]
				n++
			}
		}
	}
	return out
}
