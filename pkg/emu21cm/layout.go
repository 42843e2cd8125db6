package emu21cm

import (
	"path/filepath"

	"emu21cm/internal/inference"
	"emu21cm/internal/variant"
)

// Paths of the variant files inside the emulator data checkout.
var (
	constantsFiles = map[string][]string{
		variant.Default: {"emulator_constants.npz"},
		variant.RadioBackground: {
			filepath.Join("radio_background", "radio_background_emu_csts.npz"),
			filepath.Join("radio_background", "median_test_errors.npz"),
		},
	}
	modelDirs = map[string]string{
		variant.Default:         "21cmEMU",
		variant.RadioBackground: filepath.Join("radio_background", "model"),
	}
)

// ConstantsFiles lists the constant archives of v relative to the data dir.
func ConstantsFiles(v string) []string {
	return append([]string(nil), constantsFiles[v]...)
}

// RequiredFiles lists the git-lfs files of v that a usable checkout holds in
// full: the constant archives and the default model weights.
func RequiredFiles(v string) []string {
	return append(ConstantsFiles(v), filepath.Join(ModelDir(v), inference.DefaultWeightsName))
}

// ModelDir is the model directory of v relative to the data dir.
func ModelDir(v string) string {
	return modelDirs[v]
}

func joinAll(dir string, rel []string) []string {
	out := make([]string, len(rel))
	for i, r := range rel {
		out[i] = filepath.Join(dir, r)
	}
	return out
}
