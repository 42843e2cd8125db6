// Package emu21cm evaluates the pretrained 21cmFAST summary emulator: it
// normalises astrophysical parameters, runs the network and restores the
// physical summaries.
package emu21cm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"emu21cm/internal/config"
	"emu21cm/internal/fetch"
	"emu21cm/internal/inference"
	"emu21cm/internal/model"
	"emu21cm/internal/output"
	"emu21cm/internal/params"
	"emu21cm/internal/properties"
	"emu21cm/internal/storage"
	"emu21cm/internal/tensor"
	"emu21cm/internal/variant"
)

var ErrOutputShape = errors.New("model output has the wrong shape")

// Acquirer provides a checkout of the emulator data at a version.
type Acquirer interface {
	Acquire(ctx context.Context, version string) (fetch.Result, error)
}

type Options struct {
	Variant string
	// Version is a data version tag or "latest".
	Version string

	Config     *config.Config
	ConfigPath string
	// DataDir skips acquisition and reads files from an existing checkout.
	DataDir  string
	Acquirer Acquirer
	Runner   fetch.Runner

	Model          inference.Model
	ModelDir       string
	Properties     *properties.Properties
	ConstantsPaths []string

	// Store indexes every prediction; StoreKind/DBPath build one when nil.
	Store     storage.Store
	StoreKind string
	DBPath    string

	// CacheDir and CacheStore write the listed quantities of every
	// prediction to CacheDir.
	CacheDir   string
	CacheStore []string

	Logger *slog.Logger
}

type Emulator struct {
	variant    string
	version    string
	props      *properties.Properties
	normalizer *params.Normalizer
	model      inference.Model
	log        *slog.Logger

	store      storage.Store
	ownsStore  bool
	cacheDir   string
	cacheStore []string
}

// Prediction is the result of one Predict call.
type Prediction struct {
	// Theta is the normalised parameter batch fed to the network.
	Theta  [][]float64
	Output *output.Output
	// Errors are the mean test-set errors of every quantity.
	Errors   map[string]tensor.Array
	RecordID string
}

// New prepares an emulator, fetching the emulator data when the model or
// constants are not supplied directly.
func New(ctx context.Context, opts Options) (*Emulator, error) {
	v, err := variant.Parse(opts.Variant)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("variant", v)

	e := &Emulator{
		variant:    v,
		version:    opts.Version,
		log:        log,
		cacheDir:   opts.CacheDir,
		cacheStore: append([]string(nil), opts.CacheStore...),
	}
	if e.version == "" {
		e.version = fetch.Latest
	}

	needData := (opts.Model == nil && opts.ModelDir == "") || (opts.Properties == nil && len(opts.ConstantsPaths) == 0)
	dataDir := opts.DataDir
	if needData && dataDir == "" {
		res, err := acquire(ctx, v, e.version, opts, log)
		if err != nil {
			return nil, err
		}
		dataDir = res.Dir
		e.version = res.Version
	}

	e.props = opts.Properties
	if e.props == nil {
		paths := opts.ConstantsPaths
		if len(paths) == 0 {
			paths = joinAll(dataDir, ConstantsFiles(v))
		}
		e.props, err = properties.Open(v, paths...)
		if err != nil {
			return nil, fmt.Errorf("load emulator constants: %w", err)
		}
	}
	if e.props.Variant() != v {
		return nil, fmt.Errorf("properties are for the %s variant, emulator is %s", e.props.Variant(), v)
	}
	e.normalizer = params.NewNormalizer(e.props)

	e.model = opts.Model
	if e.model == nil {
		dir := opts.ModelDir
		if dir == "" {
			dir = filepath.Join(dataDir, ModelDir(v))
		}
		e.model, err = inference.Open(dir)
		if err != nil {
			return nil, fmt.Errorf("load emulator model: %w", err)
		}
	}

	e.store = opts.Store
	if e.store == nil && opts.StoreKind != "" {
		e.store, err = storage.NewStore(opts.StoreKind, opts.DBPath)
		if err != nil {
			return nil, err
		}
		e.ownsStore = true
	}
	if e.store != nil {
		if err := e.store.Init(ctx); err != nil {
			return nil, fmt.Errorf("init history store: %w", err)
		}
	}
	log.Debug("emulator ready", "version", e.version, "params", len(e.normalizer.Keys()), "raw_size", output.RawSize(e.props))
	return e, nil
}

func acquire(ctx context.Context, v, version string, opts Options, log *slog.Logger) (fetch.Result, error) {
	acq := opts.Acquirer
	if acq == nil {
		cfg := opts.Config
		if cfg == nil {
			var err error
			cfg, err = config.Load(opts.ConfigPath)
			if err != nil {
				return fetch.Result{}, err
			}
		}
		acq = fetch.New(fetch.Options{
			Dir:            cfg.EmulatorDir(),
			DisableNetwork: cfg.NetworkDisabled(),
			RequiredFiles:  RequiredFiles(v),
			Runner:         opts.Runner,
			Logger:         log,
		})
	}
	return acq.Acquire(ctx, version)
}

// Close releases a history store opened by New.
func (e *Emulator) Close() error {
	if !e.ownsStore || e.store == nil {
		return nil
	}
	return storage.CloseIfSupported(e.store)
}

func (e *Emulator) Variant() string { return e.variant }

func (e *Emulator) Version() string { return e.version }

func (e *Emulator) Properties() *properties.Properties { return e.props }

func (e *Emulator) Normalizer() *params.Normalizer { return e.normalizer }

// Errors returns the mean test-set errors; they do not depend on the input.
func (e *Emulator) Errors() map[string]tensor.Array { return e.props.Errors() }

// Predict evaluates the emulator on batch, given in physical units or
// already normalised.
func (e *Emulator) Predict(ctx context.Context, batch params.Batch) (Prediction, error) {
	theta, err := e.normalizer.MakeParamArray(batch, true)
	if err != nil {
		return Prediction{}, err
	}

	raw, err := e.model.Predict(ctx, theta)
	if err != nil {
		return Prediction{}, fmt.Errorf("evaluate model: %w", err)
	}
	if err := checkRaw(raw, len(theta), output.RawSize(e.props)); err != nil {
		return Prediction{}, err
	}

	out, err := output.Reconstruct(e.props, raw)
	if err != nil {
		return Prediction{}, err
	}
	pred := Prediction{Theta: theta, Output: out, Errors: e.props.Errors()}

	var outputPath string
	if e.cacheDir != "" && len(e.cacheStore) > 0 {
		outputPath = filepath.Join(e.cacheDir, cacheFileName(theta))
		if err := out.Write(outputPath, theta, e.cacheStore, true); err != nil {
			return Prediction{}, fmt.Errorf("cache prediction: %w", err)
		}
	}
	if e.store != nil {
		keys := e.cacheStore
		if outputPath == "" {
			keys = nil
		}
		record := storage.NewPredictionRecord(e.variant, e.version, theta, true, keys, outputPath)
		if err := e.store.SavePrediction(ctx, record); err != nil {
			return Prediction{}, fmt.Errorf("record prediction: %w", err)
		}
		pred.RecordID = record.ID
	}
	e.log.Debug("prediction", "batch", len(theta), "cached", outputPath)
	return pred, nil
}

// PredictAny classifies decoded input with params.FromAny and predicts.
func (e *Emulator) PredictAny(ctx context.Context, v any) (Prediction, error) {
	batch, err := params.FromAny(v)
	if err != nil {
		return Prediction{}, err
	}
	return e.Predict(ctx, batch)
}

// History lists recorded predictions, newest first.
func (e *Emulator) History(ctx context.Context, limit int) ([]model.PredictionRecord, error) {
	if e.store == nil {
		return nil, errors.New("no history store configured")
	}
	return e.store.ListPredictions(ctx, limit)
}

func checkRaw(raw [][]float64, rows, width int) error {
	if len(raw) != rows {
		return fmt.Errorf("%w: got %d rows for %d parameter sets", ErrOutputShape, len(raw), rows)
	}
	for i, row := range raw {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrOutputShape, i, len(row), width)
		}
	}
	return nil
}

// cacheFileName joins the first parameter set rounded to five decimals,
// suffixed with the batch size when there is more than one set.
func cacheFileName(theta [][]float64) string {
	parts := make([]string, len(theta[0]))
	for i, v := range theta[0] {
		parts[i] = strconv.FormatFloat(math.Round(v*1e5)/1e5, 'f', -1, 64)
	}
	name := strings.Join(parts, "_")
	if len(theta) > 1 {
		name += fmt.Sprintf("_x%d", len(theta))
	}
	return name + ".npz"
}
