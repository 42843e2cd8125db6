package archive

import (
	"math"
	"path/filepath"
	"testing"

	"emu21cm/internal/tensor"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arrays.npz")
	grid, err := tensor.FromSlice([]float64{1, 2, 3, 4, 5, math.NaN()}).Reshape(2, 3)
	if err != nil {
		t.Fatalf("reshape: %v", err)
	}
	in := map[string]tensor.Array{
		"grid":   grid,
		"line":   tensor.FromSlice([]float64{0.5, 0.25}),
		"scalar": tensor.Scalar(7),
	}
	if err := WriteFile(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("unexpected keys: %v", SortedKeys(out))
	}
	for name, want := range in {
		got, ok := out[name]
		if !ok {
			t.Fatalf("missing key %s", name)
		}
		if !tensor.Equal(got, want) {
			t.Fatalf("%s mismatch: got=%+v want=%+v", name, got, want)
		}
	}
}

func TestReadFilesMergesLaterOverEarlier(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.npz")
	second := filepath.Join(dir, "b.npz")
	if err := WriteFile(first, map[string]tensor.Array{
		"shared": tensor.FromSlice([]float64{1}),
		"only_a": tensor.FromSlice([]float64{2}),
	}); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := WriteFile(second, map[string]tensor.Array{
		"shared": tensor.FromSlice([]float64{3}),
	}); err != nil {
		t.Fatalf("write b: %v", err)
	}

	merged, err := ReadFiles(first, second)
	if err != nil {
		t.Fatalf("read files: %v", err)
	}
	if merged["shared"].Data[0] != 3 || merged["only_a"].Data[0] != 2 {
		t.Fatalf("unexpected merge: %+v", merged)
	}
}

func TestExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.npz")
	ok, err := Exists(path)
	if err != nil || ok {
		t.Fatalf("expected missing file, got ok=%v err=%v", ok, err)
	}
	if err := WriteFile(path, map[string]tensor.Array{"x": tensor.Scalar(1)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ok, err = Exists(path)
	if err != nil || !ok {
		t.Fatalf("expected existing file, got ok=%v err=%v", ok, err)
	}
}
