// Package properties holds the immutable constants of an emulator variant:
// axis grids, parameter limits, normalisation statistics and test-set errors.
package properties

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"emu21cm/internal/archive"
	"emu21cm/internal/tensor"
	"emu21cm/internal/variant"
)

var ErrMissingConstant = errors.New("missing emulator constant")

// Stats is the mean/std pair used to undo a quantity's normalisation.
type Stats struct {
	Mean []float64
	Std  []float64
}

// Limits is the [lo, hi] range of one parameter in normalisation space.
type Limits struct {
	Lo float64
	Hi float64
}

// Simulation records the fixed 21cmFAST settings the training set used.
type Simulation struct {
	UserParams  map[string]any
	CosmoParams map[string]float64
	FlagOptions map[string]bool
}

type Properties struct {
	variant string

	redshifts     []float64
	psRedshifts   []float64
	psWavenumbers []float64
	limits        []Limits

	stats     map[string]Stats
	errors    map[string]tensor.Array
	errorKeys []string

	muvFull       []float64
	uvlfRedshifts []float64
	tbScale       []float64

	parameterKeys   []string
	parameterLabels []string
	simulation      Simulation
}

// Open loads the properties of variant from one or more npz archives.
func Open(variantName string, paths ...string) (*Properties, error) {
	arrays, err := archive.ReadFiles(paths...)
	if err != nil {
		return nil, err
	}
	return New(variantName, arrays)
}

// New builds the properties of variant from keyed constant arrays.
func New(variantName string, arrays map[string]tensor.Array) (*Properties, error) {
	name, err := variant.Parse(variantName)
	if err != nil {
		return nil, err
	}
	switch name {
	case variant.RadioBackground:
		return newRadio(arrays)
	default:
		return newDefault(arrays)
	}
}

func newDefault(arrays map[string]tensor.Array) (*Properties, error) {
	zs, err := require(arrays, "zs")
	if err != nil {
		return nil, err
	}
	ks, err := require(arrays, "ks")
	if err != nil {
		return nil, err
	}
	limitsArr, err := require(arrays, "limits")
	if err != nil {
		return nil, err
	}
	limits, err := pairs(limitsArr)
	if err != nil {
		return nil, err
	}
	if len(zs.Data) < defaultPSRedshifts {
		return nil, fmt.Errorf("%w: zs has %d values, need at least %d", ErrMissingConstant, len(zs.Data), defaultPSRedshifts)
	}
	if len(ks.Data) < 5 {
		return nil, fmt.Errorf("%w: ks has %d values, need at least 5", ErrMissingConstant, len(ks.Data))
	}

	p := &Properties{
		variant:         variant.Default,
		redshifts:       clone(zs.Data),
		psRedshifts:     clone(zs.Data[:defaultPSRedshifts]),
		psWavenumbers:   clone(ks.Data[1 : len(ks.Data)-3]),
		limits:          limits,
		muvFull:         defaultMUVs(),
		uvlfRedshifts:   []float64{6, 7, 8, 10},
		parameterKeys:   append([]string(nil), defaultParameterKeys...),
		parameterLabels: append([]string(nil), defaultParameterLabels...),
		simulation:      defaultSimulation(),
	}
	if len(p.limits) != len(p.parameterKeys) {
		return nil, fmt.Errorf("%w: limits has %d rows, want %d", ErrMissingConstant, len(p.limits), len(p.parameterKeys))
	}
	if p.stats, err = collectStats(arrays); err != nil {
		return nil, err
	}
	if err := p.collectErrors(arrays, defaultErrorKeys); err != nil {
		return nil, err
	}
	for _, q := range []string{"PS", "Tb", "Ts", "tau", "UVLFs"} {
		if _, ok := p.stats[q]; !ok {
			return nil, fmt.Errorf("%w: %s_mean/%s_std", ErrMissingConstant, q, q)
		}
	}
	return p, nil
}

func newRadio(arrays map[string]tensor.Array) (*Properties, error) {
	zs, err := require(arrays, "redshifts")
	if err != nil {
		return nil, err
	}
	psZ, err := require(arrays, "PS_z")
	if err != nil {
		return nil, err
	}
	psK, err := require(arrays, "PS_k")
	if err != nil {
		return nil, err
	}
	tbScale, err := require(arrays, "Tb_scale")
	if err != nil {
		return nil, err
	}

	p := &Properties{
		variant:         variant.RadioBackground,
		redshifts:       clone(zs.Data),
		psRedshifts:     clone(psZ.Data),
		psWavenumbers:   clone(psK.Data),
		limits:          append([]Limits(nil), radioLimits...),
		tbScale:         clone(tbScale.Data),
		parameterKeys:   append([]string(nil), radioParameterKeys...),
		parameterLabels: append([]string(nil), radioParameterLabels...),
		simulation:      radioSimulation(),
	}
	if p.stats, err = collectStats(arrays); err != nil {
		return nil, err
	}
	if err := p.collectErrors(arrays, radioErrorKeys); err != nil {
		return nil, err
	}
	for _, q := range []string{"Tb", "logTr", "logPS"} {
		if _, ok := p.stats[q]; !ok {
			return nil, fmt.Errorf("%w: %s_mean/%s_std", ErrMissingConstant, q, q)
		}
	}
	return p, nil
}

func (p *Properties) Variant() string { return p.variant }

// Redshifts is the grid of every global quantity except the power spectrum.
func (p *Properties) Redshifts() []float64 { return clone(p.redshifts) }

func (p *Properties) PSRedshifts() []float64 { return clone(p.psRedshifts) }

// PSWavenumbers is the k grid of the power spectrum in 1/Mpc.
func (p *Properties) PSWavenumbers() []float64 { return clone(p.psWavenumbers) }

func (p *Properties) Limits() []Limits { return append([]Limits(nil), p.limits...) }

// MuvFull is the uncropped UV magnitude grid the network predicts on.
func (p *Properties) MuvFull() []float64 { return clone(p.muvFull) }

// Muv is the UV magnitude grid restricted to [-20, -10].
func (p *Properties) Muv() []float64 {
	out := make([]float64, 0, len(p.muvFull))
	for _, m := range p.muvFull {
		if m <= muvMax && m >= muvMin {
			out = append(out, m)
		}
	}
	return out
}

// MuvMask reports, per MuvFull entry, whether it survives the crop.
func (p *Properties) MuvMask() []bool {
	mask := make([]bool, len(p.muvFull))
	for i, m := range p.muvFull {
		mask[i] = m <= muvMax && m >= muvMin
	}
	return mask
}

func (p *Properties) UVLFRedshifts() []float64 { return clone(p.uvlfRedshifts) }

func (p *Properties) TbScale() []float64 { return clone(p.tbScale) }

func (p *Properties) ParameterKeys() []string { return append([]string(nil), p.parameterKeys...) }

func (p *Properties) ParameterLabels() []string { return append([]string(nil), p.parameterLabels...) }

func (p *Properties) Simulation() Simulation { return p.simulation }

// Stats returns the normalisation statistics of quantity name.
func (p *Properties) Stats(name string) (Stats, bool) {
	s, ok := p.stats[name]
	if !ok {
		return Stats{}, false
	}
	return Stats{Mean: clone(s.Mean), Std: clone(s.Std)}, true
}

// NormalizedQuantities lists the quantities that carry mean/std statistics.
func (p *Properties) NormalizedQuantities() []string {
	names := make([]string, 0, len(p.stats))
	for name := range p.stats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Errors returns the mean test-set error of every predicted quantity.
func (p *Properties) Errors() map[string]tensor.Array {
	out := make(map[string]tensor.Array, len(p.errors))
	for k, v := range p.errors {
		out[k] = v.Clone()
	}
	return out
}

// ErrorKeys lists the keys of Errors in their documented order.
func (p *Properties) ErrorKeys() []string { return append([]string(nil), p.errorKeys...) }

func (p *Properties) collectErrors(arrays map[string]tensor.Array, keys []string) error {
	p.errors = make(map[string]tensor.Array, len(keys))
	for _, key := range keys {
		arr, err := require(arrays, key)
		if err != nil {
			return err
		}
		p.errors[key] = arr.Clone()
	}
	p.errorKeys = append([]string(nil), keys...)
	return nil
}

// collectStats pairs every "<q>_mean" with its "<q>_std", where q is the key
// prefix up to the first underscore.
func collectStats(arrays map[string]tensor.Array) (map[string]Stats, error) {
	stats := make(map[string]Stats)
	for key, mean := range arrays {
		if !strings.HasSuffix(key, "_mean") {
			continue
		}
		name, _, _ := strings.Cut(key, "_")
		std, ok := arrays[name+"_std"]
		if !ok {
			return nil, fmt.Errorf("%w: %s_std", ErrMissingConstant, name)
		}
		stats[name] = Stats{Mean: clone(mean.Data), Std: clone(std.Data)}
	}
	return stats, nil
}

func require(arrays map[string]tensor.Array, key string) (tensor.Array, error) {
	arr, ok := arrays[key]
	if !ok {
		return tensor.Array{}, fmt.Errorf("%w: %s", ErrMissingConstant, key)
	}
	return arr, nil
}

func pairs(arr tensor.Array) ([]Limits, error) {
	if len(arr.Data)%2 != 0 {
		return nil, fmt.Errorf("%w: limits must have shape (n, 2), got %v", ErrMissingConstant, arr.Shape)
	}
	out := make([]Limits, len(arr.Data)/2)
	for i := range out {
		out[i] = Limits{Lo: arr.Data[2*i], Hi: arr.Data[2*i+1]}
	}
	return out, nil
}

func clone(values []float64) []float64 {
	return append([]float64(nil), values...)
}
