// Package archive reads and writes keyed float64 arrays as numpy .npz files.
package archive

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sbinet/npyio/npz"

	"emu21cm/internal/tensor"
)

// shapeSuffix marks the companion entry that records the shape of an array
// written by this package. Entries are stored as [ndim, d0, d1, ...].
const shapeSuffix = "__shape"

var ErrNoKey = errors.New("archive key not found")

// ReadFile loads every array in the npz file at path.
func ReadFile(path string) (map[string]tensor.Array, error) {
	r, err := npz.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	raw := make(map[string]tensor.Array)
	shapes := make(map[string][]int)
	for _, entry := range r.Keys() {
		name := strings.TrimSuffix(entry, ".npy")
		if base, ok := strings.CutSuffix(name, shapeSuffix); ok {
			var encoded []int64
			if err := r.Read(entry, &encoded); err != nil {
				return nil, fmt.Errorf("read %s: %w", name, err)
			}
			shape, err := decodeShape(encoded)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", name, err)
			}
			shapes[base] = shape
			continue
		}

		data, err := readFloats(r, entry)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		shape := []int{len(data)}
		if h := r.Header(entry); h != nil {
			shape = append([]int{}, h.Descr.Shape...)
		}
		raw[name] = tensor.Array{Shape: shape, Data: data}
	}

	for name, shape := range shapes {
		arr, ok := raw[name]
		if !ok {
			return nil, fmt.Errorf("%w: shape recorded for missing array %s", ErrNoKey, name)
		}
		reshaped, err := arr.Reshape(shape...)
		if err != nil {
			return nil, fmt.Errorf("restore %s: %w", name, err)
		}
		raw[name] = reshaped
	}
	return raw, nil
}

// ReadFiles merges several archives; later files override earlier keys.
func ReadFiles(paths ...string) (map[string]tensor.Array, error) {
	merged := make(map[string]tensor.Array)
	for _, path := range paths {
		arrays, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		for k, v := range arrays {
			merged[k] = v
		}
	}
	return merged, nil
}

// WriteFile writes arrays to path, replacing any existing file.
func WriteFile(path string, arrays map[string]tensor.Array) error {
	w, err := npz.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	for _, name := range SortedKeys(arrays) {
		arr := arrays[name]
		data := arr.Data
		if data == nil {
			data = []float64{}
		}
		if err := w.Write(name, data); err != nil {
			_ = w.Close()
			return fmt.Errorf("write %s: %w", name, err)
		}
		if err := w.Write(name+shapeSuffix, encodeShape(arr.Shape)); err != nil {
			_ = w.Close()
			return fmt.Errorf("write %s shape: %w", name, err)
		}
	}
	return w.Close()
}

// Exists reports whether path names an existing file.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func SortedKeys(arrays map[string]tensor.Array) []string {
	keys := make([]string, 0, len(arrays))
	for k := range arrays {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// readFloats accepts the dtypes numpy commonly writes for constants.
func readFloats(r *npz.Reader, entry string) ([]float64, error) {
	var f64 []float64
	err := r.Read(entry, &f64)
	if err == nil {
		return f64, nil
	}

	var f32 []float32
	if err32 := r.Read(entry, &f32); err32 == nil {
		out := make([]float64, len(f32))
		for i, v := range f32 {
			out[i] = float64(v)
		}
		return out, nil
	}

	var i64 []int64
	if errInt := r.Read(entry, &i64); errInt == nil {
		out := make([]float64, len(i64))
		for i, v := range i64 {
			out[i] = float64(v)
		}
		return out, nil
	}
	return nil, err
}

func encodeShape(shape []int) []int64 {
	out := make([]int64, 0, len(shape)+1)
	out = append(out, int64(len(shape)))
	for _, d := range shape {
		out = append(out, int64(d))
	}
	return out
}

func decodeShape(encoded []int64) ([]int, error) {
	if len(encoded) == 0 || int(encoded[0]) != len(encoded)-1 {
		return nil, fmt.Errorf("malformed shape record %v", encoded)
	}
	shape := make([]int, 0, len(encoded)-1)
	for _, d := range encoded[1:] {
		shape = append(shape, int(d))
	}
	return shape, nil
}
