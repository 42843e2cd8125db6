package emu21cm

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"emu21cm/internal/archive"
	"emu21cm/internal/config"
	"emu21cm/internal/fetch"
	"emu21cm/internal/inference"
	"emu21cm/internal/output"
	"emu21cm/internal/params"
	"emu21cm/internal/properties"
	"emu21cm/internal/properties/propertiestest"
	"emu21cm/internal/storage"
	"emu21cm/internal/tensor"
	"emu21cm/internal/variant"
)

func zeroModel(width int, seen *[][]float64) inference.Model {
	return inference.Func(func(_ context.Context, inputs [][]float64) ([][]float64, error) {
		if seen != nil {
			*seen = inputs
		}
		out := make([][]float64, len(inputs))
		for i := range out {
			out[i] = make([]float64, width)
		}
		return out, nil
	})
}

func newTestEmulator(t *testing.T, opts Options) *Emulator {
	t.Helper()
	if opts.Properties == nil {
		props, err := properties.New(variant.Default, propertiestest.DefaultArrays())
		if err != nil {
			t.Fatalf("properties: %v", err)
		}
		opts.Properties = props
	}
	if opts.Model == nil {
		opts.Model = zeroModel(output.RawSize(opts.Properties), nil)
	}
	emu, err := New(context.Background(), opts)
	if err != nil {
		t.Fatalf("new emulator: %v", err)
	}
	t.Cleanup(func() {
		_ = emu.Close()
	})
	return emu
}

func TestPredictNormalizedBatch(t *testing.T) {
	var seen [][]float64
	props, _ := properties.New(variant.Default, propertiestest.DefaultArrays())
	emu := newTestEmulator(t, Options{Properties: props, Model: zeroModel(output.RawSize(props), &seen)})

	rows := [][]float64{
		{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9},
		{0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1},
	}
	pred, err := emu.Predict(context.Background(), params.Rows(rows))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(seen) != 2 || seen[1][0] != 0.9 {
		t.Fatalf("model saw unexpected inputs: %v", seen)
	}
	if pred.Theta[0][8] != 0.9 {
		t.Fatalf("unexpected theta: %v", pred.Theta)
	}
	tb, ok := pred.Output.Get("Tb")
	if !ok || len(tb.Shape) != 2 || tb.Shape[0] != 2 {
		t.Fatalf("unexpected Tb: %v", tb.Shape)
	}
	if len(pred.Errors) != 7 {
		t.Fatalf("unexpected error keys: %v", len(pred.Errors))
	}
	if pred.RecordID != "" {
		t.Fatalf("expected no record without a store, got %s", pred.RecordID)
	}
}

func TestPredictPhysicalUnitsAreNormalized(t *testing.T) {
	emu := newTestEmulator(t, Options{})
	unit := [][]float64{{0.25, 0.5, 0.75, 0.25, 0.5, 0.75, 0.25, 0.5, 0.75}}
	physical := emu.Normalizer().UndoNormalization(unit)

	pred, err := emu.Predict(context.Background(), params.Rows(physical))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	for i, want := range unit[0] {
		if math.Abs(pred.Theta[0][i]-want) > 1e-12 {
			t.Fatalf("theta[%d]: got=%g want=%g", i, pred.Theta[0][i], want)
		}
	}
	// A batch of one is squeezed.
	if tb, _ := pred.Output.Get("Tb"); len(tb.Shape) != 1 {
		t.Fatalf("expected squeezed Tb, got shape %v", tb.Shape)
	}
}

func TestPredictRejectsBadModelOutput(t *testing.T) {
	tests := []struct {
		name  string
		model inference.Model
	}{
		{name: "rows", model: inference.Func(func(_ context.Context, _ [][]float64) ([][]float64, error) {
			return nil, nil
		})},
		{name: "width", model: zeroModel(10, nil)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			emu := newTestEmulator(t, Options{Model: tc.model})
			_, err := emu.Predict(context.Background(), params.Single(params.Values(0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5)))
			if !errors.Is(err, ErrOutputShape) {
				t.Fatalf("expected ErrOutputShape, got: %v", err)
			}
		})
	}
}

func TestPredictPropagatesInputErrors(t *testing.T) {
	emu := newTestEmulator(t, Options{})
	if _, err := emu.Predict(context.Background(), params.Single(params.Values(0.5))); !errors.Is(err, params.ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got: %v", err)
	}
	if _, err := emu.PredictAny(context.Background(), "theta"); !errors.Is(err, params.ErrUnsupportedInput) {
		t.Fatalf("expected ErrUnsupportedInput, got: %v", err)
	}
}

func TestPredictCachesAndRecords(t *testing.T) {
	cacheDir := t.TempDir()
	store := storage.NewMemoryStore()
	emu := newTestEmulator(t, Options{Store: store, CacheDir: cacheDir, CacheStore: []string{"Tb", "tau"}, Version: "v1.0.0"})

	pred, err := emu.Predict(context.Background(), params.Single(params.Values(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.123456)))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	path := filepath.Join(cacheDir, "0.1_0.2_0.3_0.4_0.5_0.6_0.7_0.8_0.12346.npz")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected cached output: %v", err)
	}
	saved, err := output.ReadFile(path)
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}
	if keys := output.QuantityKeys(saved); len(keys) != 2 {
		t.Fatalf("unexpected cached keys: %v", keys)
	}

	history, err := emu.History(context.Background(), 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != pred.RecordID || history[0].OutputPath != path || history[0].Version != "v1.0.0" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestNewUnknownVariant(t *testing.T) {
	if _, err := New(context.Background(), Options{Variant: "bogus"}); !errors.Is(err, variant.ErrUnknownVariant) {
		t.Fatalf("expected ErrUnknownVariant, got: %v", err)
	}
}

type staticAcquirer struct {
	res      fetch.Result
	versions []string
}

func (a *staticAcquirer) Acquire(_ context.Context, version string) (fetch.Result, error) {
	a.versions = append(a.versions, version)
	return a.res, nil
}

// writeDataDir lays out a default-variant checkout whose dense model
// outputs bias values only.
func writeDataDir(t *testing.T, bias float64) string {
	t.Helper()
	dir := t.TempDir()
	writeDataDirAt(t, dir, bias)
	return dir
}

func writeDataDirAt(t *testing.T, dir string, bias float64) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := archive.WriteFile(filepath.Join(dir, ConstantsFiles(variant.Default)[0]), propertiestest.DefaultArrays()); err != nil {
		t.Fatalf("write constants: %v", err)
	}
	props, err := properties.New(variant.Default, propertiestest.DefaultArrays())
	if err != nil {
		t.Fatalf("properties: %v", err)
	}
	width := output.RawSize(props)
	biasData := make([]float64, width)
	for i := range biasData {
		biasData[i] = bias
	}
	modelDir := filepath.Join(dir, ModelDir(variant.Default))
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := archive.WriteFile(filepath.Join(modelDir, "weights.npz"), map[string]tensor.Array{
		"layer_0_kernel": tensor.New(9, width),
		"layer_0_bias":   tensor.FromSlice(biasData),
	}); err != nil {
		t.Fatalf("write weights: %v", err)
	}
	manifest := "format: dense\nlayers:\n  - activation: linear\n"
	if err := os.WriteFile(filepath.Join(modelDir, inference.ManifestName), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestNewLoadsAcquiredData(t *testing.T) {
	dir := writeDataDir(t, 0.25)
	acq := &staticAcquirer{res: fetch.Result{Dir: dir, Version: "v1.0.0"}}

	emu, err := New(context.Background(), Options{Acquirer: acq, Version: "V1.0.0", StoreKind: storage.KindBolt, DBPath: filepath.Join(t.TempDir(), "history.bolt")})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() {
		_ = emu.Close()
	})
	if len(acq.versions) != 1 || acq.versions[0] != "V1.0.0" {
		t.Fatalf("unexpected acquire calls: %v", acq.versions)
	}
	if emu.Version() != "v1.0.0" || emu.Variant() != variant.Default {
		t.Fatalf("unexpected emulator identity: %s %s", emu.Variant(), emu.Version())
	}

	pred, err := emu.PredictAny(context.Background(), []any{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	tb, _ := pred.Output.Get("Tb")
	want := propertiestest.MeanOffset + propertiestest.StdScale*0.25
	if math.Abs(tb.Data[0]-want) > 1e-12 {
		t.Fatalf("unexpected Tb: got=%g want=%g", tb.Data[0], want)
	}
	history, err := emu.History(context.Background(), 5)
	if err != nil || len(history) != 1 {
		t.Fatalf("expected one recorded prediction, got %v %v", history, err)
	}
}

func TestNewFromDataDir(t *testing.T) {
	dir := writeDataDir(t, 0)
	emu, err := New(context.Background(), Options{DataDir: dir})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := emu.Predict(context.Background(), params.Single(params.Values(0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5))); err != nil {
		t.Fatalf("predict: %v", err)
	}
}

// gitStub answers every git command with empty output.
type gitStub struct {
	calls [][]string
}

func (g *gitStub) Run(_ context.Context, _ string, args ...string) (string, error) {
	g.calls = append(g.calls, args)
	return "", nil
}

func TestNewRejectsPointerWeights(t *testing.T) {
	base := t.TempDir()
	cfgPath := filepath.Join(base, "config.toml")
	body := "data-path = \"" + filepath.ToSlash(filepath.Join(base, "data")) + "\"\ndisable-network = true\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	writeDataDirAt(t, cfg.EmulatorDir(), 0)
	weights := filepath.Join(cfg.EmulatorDir(), ModelDir(variant.Default), inference.DefaultWeightsName)
	pointer := "version https://git-lfs.github.com/spec/v1\noid sha256:0000\nsize 4096\n"
	if err := os.WriteFile(weights, []byte(pointer), 0o644); err != nil {
		t.Fatalf("write pointer: %v", err)
	}

	git := &gitStub{}
	_, err = New(context.Background(), Options{Config: cfg, Runner: git})
	if !errors.Is(err, fetch.ErrCorruptCache) {
		t.Fatalf("expected ErrCorruptCache, got: %v", err)
	}
	if !strings.Contains(err.Error(), inference.DefaultWeightsName) || !strings.Contains(err.Error(), "git-lfs") {
		t.Fatalf("error should name the weights and the remediation: %v", err)
	}
	if len(git.calls) == 0 {
		t.Fatal("expected the checkout to go through git")
	}
}

func TestRequiredFilesIncludeWeights(t *testing.T) {
	for _, v := range variant.Names() {
		files := RequiredFiles(v)
		want := filepath.Join(ModelDir(v), inference.DefaultWeightsName)
		if files[len(files)-1] != want {
			t.Fatalf("%s: required files %v do not include %s", v, files, want)
		}
		if len(files) != len(ConstantsFiles(v))+1 {
			t.Fatalf("%s: unexpected required files %v", v, files)
		}
	}
}
