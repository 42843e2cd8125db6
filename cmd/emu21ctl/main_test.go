package main

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"emu21cm/internal/archive"
	"emu21cm/internal/inference"
	"emu21cm/internal/output"
	"emu21cm/internal/properties"
	"emu21cm/internal/properties/propertiestest"
	"emu21cm/internal/tensor"
	"emu21cm/internal/variant"
	"emu21cm/pkg/emu21cm"
)

const midTheta = "0.5,0.5,0.5,0.5,0.5,0.5,0.5,0.5,0.5"

func captureRun(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	defer func() {
		stdout = prev
	}()
	err := run(context.Background(), args)
	return buf.String(), err
}

// writeConfig seeds a config file whose data path lives in a temp dir.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	path := filepath.Join(dir, "config.toml")
	body := fmt.Sprintf("data-path = %q\ndisable-network = true\n", dataDir)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, dataDir
}

func writeDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := archive.WriteFile(filepath.Join(dir, emu21cm.ConstantsFiles(variant.Default)[0]), propertiestest.DefaultArrays()); err != nil {
		t.Fatalf("write constants: %v", err)
	}
	props, err := properties.New(variant.Default, propertiestest.DefaultArrays())
	if err != nil {
		t.Fatalf("properties: %v", err)
	}
	width := output.RawSize(props)
	modelDir := filepath.Join(dir, emu21cm.ModelDir(variant.Default))
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := archive.WriteFile(filepath.Join(modelDir, "weights.npz"), map[string]tensor.Array{
		"layer_0_kernel": tensor.New(9, width),
		"layer_0_bias":   tensor.New(width),
	}); err != nil {
		t.Fatalf("write weights: %v", err)
	}
	manifest := "format: dense\nlayers:\n  - activation: linear\n"
	if err := os.WriteFile(filepath.Join(modelDir, inference.ManifestName), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return dir
}

func TestRunUsage(t *testing.T) {
	if _, err := captureRun(t); err == nil || !strings.Contains(err.Error(), "usage:") {
		t.Fatalf("expected usage error, got: %v", err)
	}
	if _, err := captureRun(t, "train"); err == nil || !strings.Contains(err.Error(), "unknown command: train") {
		t.Fatalf("expected unknown command error, got: %v", err)
	}
}

func TestRunConfigSetGetDelete(t *testing.T) {
	cfgPath, dataDir := writeConfig(t)

	out, err := captureRun(t, "config", "-config", cfgPath, "get", "data-path")
	if err != nil {
		t.Fatalf("config get: %v", err)
	}
	if strings.TrimSpace(out) != dataDir {
		t.Fatalf("unexpected data-path: %q", out)
	}

	if _, err := captureRun(t, "config", "-config", cfgPath, "set", "retries", "3"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	out, err = captureRun(t, "config", "-config", cfgPath, "list")
	if err != nil {
		t.Fatalf("config list: %v", err)
	}
	if !strings.Contains(out, "retries = 3") || !strings.Contains(out, "disable-network = true") {
		t.Fatalf("unexpected config list:\n%s", out)
	}

	if _, err := captureRun(t, "config", "-config", cfgPath, "delete", "retries"); err != nil {
		t.Fatalf("config delete: %v", err)
	}
	if _, err := captureRun(t, "config", "-config", cfgPath, "get", "retries"); err == nil {
		t.Fatal("expected unknown key error after delete")
	}
	if _, err := captureRun(t, "config", "-config", cfgPath, "rename"); err == nil {
		t.Fatal("expected unknown action error")
	}
}

func TestRunConfigFromEnv(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	t.Setenv(configEnv, cfgPath)
	out, err := captureRun(t, "config", "path")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if strings.TrimSpace(out) != cfgPath {
		t.Fatalf("expected config from %s, got %q", configEnv, out)
	}
}

func TestParseValue(t *testing.T) {
	cases := []struct {
		in   string
		want any
	}{
		{in: "true", want: true},
		{in: "False", want: false},
		{in: "12", want: int64(12)},
		{in: "0.5", want: 0.5},
		{in: "/tmp/data", want: "/tmp/data"},
	}
	for _, tc := range cases {
		if got := parseValue(tc.in); got != tc.want {
			t.Fatalf("parseValue(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestRunPredictWritesOutputAndHistory(t *testing.T) {
	dataDir := writeDataDir(t)
	outPath := filepath.Join(t.TempDir(), "pred.npz")
	dbPath := filepath.Join(t.TempDir(), "history.bolt")

	out, err := captureRun(t, "predict",
		"-data-dir", dataDir,
		"-theta", midTheta,
		"-out", outPath,
		"-store", "Tb,tau",
		"-history", "bolt",
		"-db-path", dbPath,
	)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	for _, want := range []string{"variant=default", "Tb shape=[84]", "PS shape=[60 12]", "record=", "wrote " + outPath} {
		if !strings.Contains(out, want) {
			t.Fatalf("predict output missing %q:\n%s", want, out)
		}
	}

	out, err = captureRun(t, "inspect", outPath)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out, "Tb shape=[84]") || !strings.Contains(out, "tau shape=[]") || !strings.Contains(out, "inputs shape=[1 9]") {
		t.Fatalf("unexpected inspect output:\n%s", out)
	}
	if strings.Contains(out, "xHI") {
		t.Fatalf("inspect listed an unstored quantity:\n%s", out)
	}

	out, err = captureRun(t, "history", "-history", "bolt", "-db-path", dbPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 1 || !strings.Contains(lines[0], "batch=1") {
		t.Fatalf("unexpected history:\n%s", out)
	}
}

func TestRunPredictRequiresParameters(t *testing.T) {
	if _, err := captureRun(t, "predict", "-data-dir", writeDataDir(t)); err == nil {
		t.Fatal("expected missing parameters error")
	}
	if _, err := captureRun(t, "predict", "-theta", "0.5,x"); err == nil {
		t.Fatal("expected theta parse error")
	}
}

func TestRunNormalizeRoundTrip(t *testing.T) {
	dataDir := writeDataDir(t)
	constants := filepath.Join(dataDir, emu21cm.ConstantsFiles(variant.Default)[0])

	out, err := captureRun(t, "normalize", "-constants", constants, "-theta", midTheta, "-undo")
	if err != nil {
		t.Fatalf("normalize -undo: %v", err)
	}
	// NU_X_THRESH has limits [0.1, 1.5] keV and is stored in eV.
	var got float64
	for _, field := range strings.Fields(out) {
		if v, ok := strings.CutPrefix(field, "NU_X_THRESH="); ok {
			got, err = strconv.ParseFloat(v, 64)
			if err != nil {
				t.Fatalf("parse %q: %v", field, err)
			}
		}
	}
	if math.Abs(got-800) > 1e-6 {
		t.Fatalf("unexpected physical parameters: %s", out)
	}

	if _, err := captureRun(t, "normalize", "-theta", midTheta); err == nil {
		t.Fatal("expected missing constants error")
	}
}

func TestRunMoveData(t *testing.T) {
	cfgPath, dataDir := writeConfig(t)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "marker"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	dest := filepath.Join(t.TempDir(), "moved")

	out, err := captureRun(t, "move-data", "-config", cfgPath, dest)
	if err != nil {
		t.Fatalf("move-data: %v", err)
	}
	if strings.TrimSpace(out) != "data-path="+dest {
		t.Fatalf("unexpected move-data output: %q", out)
	}
	if _, err := os.Stat(filepath.Join(dest, "marker")); err != nil {
		t.Fatalf("marker not moved: %v", err)
	}
}

func TestRunFetchOfflineWithoutCache(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	if _, err := captureRun(t, "fetch", "-config", cfgPath); err == nil {
		t.Fatal("expected fetch to fail with the network disabled and no checkout")
	}
}
