// Package propertiestest builds small synthetic constant archives for tests.
package propertiestest

import "emu21cm/internal/tensor"

const (
	// DefaultRedshifts matches the size of the production default grid.
	DefaultRedshifts = 84
	RadioRedshifts   = 10
	RadioPSRedshifts = 4
	RadioPSWaves     = 3
)

// DefaultLimits in normalisation space (log10 where the parameter is
// log-scaled, keV for NU_X_THRESH).
var DefaultLimits = [][2]float64{
	{-3, 0},
	{-0.5, 1},
	{-3, 0},
	{-1, 0.5},
	{8, 10},
	{0, 1},
	{38, 42},
	{0.1, 1.5},
	{-1, 3},
}

// DefaultArrays returns a complete default-variant archive. Every mean is
// MeanOffset and every std is StdScale so restored values are easy to derive.
func DefaultArrays() map[string]tensor.Array {
	zs := make([]float64, DefaultRedshifts)
	for i := range zs {
		zs[i] = 5 + 0.25*float64(i)
	}
	ks := make([]float64, 16)
	for i := range ks {
		ks[i] = 0.01 * float64(i+1)
	}
	limits := make([]float64, 0, 2*len(DefaultLimits))
	for _, l := range DefaultLimits {
		limits = append(limits, l[0], l[1])
	}
	limitsArr, _ := tensor.FromSlice(limits).Reshape(len(DefaultLimits), 2)

	arrays := map[string]tensor.Array{
		"zs":     tensor.FromSlice(zs),
		"ks":     tensor.FromSlice(ks),
		"limits": limitsArr,
	}
	for _, q := range []string{"PS", "Tb", "Ts", "tau", "UVLFs"} {
		arrays[q+"_mean"] = tensor.FromSlice([]float64{MeanOffset})
		arrays[q+"_std"] = tensor.FromSlice([]float64{StdScale})
	}
	for _, key := range []string{"PS_err", "Tb_err", "xHI_err", "Ts_err", "UVLFs_err", "UVLFs_logerr", "tau_err"} {
		arrays[key] = tensor.FromSlice([]float64{0.1, 0.2})
	}
	return arrays
}

const (
	MeanOffset = 0.5
	StdScale   = 2.0
	TbScale    = 100.0
)

// RadioArrays returns a complete radio-background archive.
func RadioArrays() map[string]tensor.Array {
	zs := make([]float64, RadioRedshifts)
	for i := range zs {
		zs[i] = 6 + float64(i)
	}
	psZ := make([]float64, RadioPSRedshifts)
	for i := range psZ {
		psZ[i] = 7 + 2*float64(i)
	}
	psK := []float64{0.1, 0.2, 0.4}

	arrays := map[string]tensor.Array{
		"redshifts": tensor.FromSlice(zs),
		"PS_z":      tensor.FromSlice(psZ),
		"PS_k":      tensor.FromSlice(psK),
		"Tb_scale":  tensor.FromSlice([]float64{TbScale}),
	}
	for _, q := range []string{"Tb", "logTr", "logPS"} {
		arrays[q+"_mean"] = tensor.FromSlice([]float64{MeanOffset})
		arrays[q+"_std"] = tensor.FromSlice([]float64{StdScale})
	}
	for _, key := range []string{"PS_err", "Tb_err", "xHI_err", "Tr_err", "tau_err"} {
		arrays[key] = tensor.FromSlice([]float64{0.3})
	}
	return arrays
}
