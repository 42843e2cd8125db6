package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"emu21cm/internal/config"
	"emu21cm/internal/output"
	"emu21cm/internal/params"
	"emu21cm/internal/properties"
	"emu21cm/internal/storage"
	"emu21cm/internal/variant"
	"emu21cm/pkg/emu21cm"
)

// configEnv names the config file when -config is not given.
const configEnv = "EMU21CM_CONFIG"

var stdout io.Writer = os.Stdout

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "predict":
		return runPredict(ctx, args[1:])
	case "normalize":
		return runNormalize(ctx, args[1:])
	case "versions":
		return runVersions(ctx, args[1:])
	case "fetch":
		return runFetch(ctx, args[1:])
	case "config":
		return runConfig(ctx, args[1:])
	case "history":
		return runHistory(ctx, args[1:])
	case "inspect":
		return runInspect(ctx, args[1:])
	case "move-data":
		return runMoveData(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: emu21ctl <predict|normalize|versions|fetch|config|history|inspect|move-data> [flags]", msg)
}

type commonFlags struct {
	configPath *string
	verbose    *bool
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", os.Getenv(configEnv), "config file path (default: per-user config dir)"),
		verbose:    fs.Bool("v", false, "debug logging"),
	}
}

func (c commonFlags) logger() *slog.Logger {
	level := slog.LevelInfo
	if *c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (c commonFlags) loadConfig() (*config.Config, error) {
	return config.Load(*c.configPath)
}

type historyFlags struct {
	kind   *string
	dbPath *string
}

func addHistoryFlags(fs *flag.FlagSet, defaultKind string) historyFlags {
	return historyFlags{
		kind:   fs.String("history", defaultKind, "prediction history backend: memory|bolt|sqlite (empty disables)"),
		dbPath: fs.String("db-path", "", "history database path (default: inside the data dir)"),
	}
}

func (h historyFlags) path(common commonFlags) (string, error) {
	if *h.dbPath != "" || *h.kind == "" || *h.kind == storage.KindMemory {
		return *h.dbPath, nil
	}
	cfg, err := common.loadConfig()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg.DataPath(), storage.DefaultFileName(*h.kind)), nil
}

func runPredict(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	common := addCommonFlags(fs)
	history := addHistoryFlags(fs, "")
	variantName := fs.String("variant", variant.Default, "emulator variant: default|radio-background")
	version := fs.String("version", "latest", "emulator data version")
	paramsFile := fs.String("params", "", "YAML or JSON parameter file")
	theta := fs.String("theta", "", "comma separated parameter values in network order")
	dataDir := fs.String("data-dir", "", "existing emulator data checkout (skips fetching)")
	modelDir := fs.String("model-dir", "", "model directory holding model.yaml")
	constants := fs.String("constants", "", "comma separated constant archives")
	outPath := fs.String("out", "", "write the output to this npz file")
	store := fs.String("store", "", "comma separated quantities to write (default: all)")
	overwrite := fs.Bool("overwrite", false, "replace an existing output file")
	cacheDir := fs.String("cache-dir", "", "evaluation cache directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	batch, err := batchFromFlags(*paramsFile, *theta)
	if err != nil {
		return err
	}
	dbPath, err := history.path(common)
	if err != nil {
		return err
	}

	opts := emu21cm.Options{
		Variant:        *variantName,
		Version:        *version,
		ConfigPath:     *common.configPath,
		DataDir:        *dataDir,
		ModelDir:       *modelDir,
		ConstantsPaths: splitList(*constants),
		StoreKind:      *history.kind,
		DBPath:         dbPath,
		CacheDir:       *cacheDir,
		Logger:         common.logger(),
	}
	if *cacheDir != "" {
		opts.CacheStore = splitList(*store)
		if len(opts.CacheStore) == 0 {
			opts.CacheStore = []string{"Tb", "xHI", "PS", "tau"}
		}
	}
	emu, err := emu21cm.New(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = emu.Close()
	}()

	pred, err := emu.Predict(ctx, batch)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "variant=%s version=%s batch=%d\n", emu.Variant(), emu.Version(), len(pred.Theta))
	for _, key := range pred.Output.Keys() {
		arr, _ := pred.Output.Get(key)
		fmt.Fprintf(stdout, "%s shape=%v %s\n", key, arr.Shape, preview(arr.Data))
	}
	for _, key := range emu.Properties().ErrorKeys() {
		arr := pred.Errors[key]
		fmt.Fprintf(stdout, "%s %s\n", key, preview(arr.Data))
	}
	if pred.RecordID != "" {
		fmt.Fprintf(stdout, "record=%s\n", pred.RecordID)
	}
	if *outPath != "" {
		if err := pred.Output.Write(*outPath, pred.Theta, splitList(*store), *overwrite); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", *outPath)
	}
	return nil
}

func runNormalize(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	variantName := fs.String("variant", variant.Default, "emulator variant: default|radio-background")
	paramsFile := fs.String("params", "", "YAML or JSON parameter file")
	theta := fs.String("theta", "", "comma separated parameter values in network order")
	constants := fs.String("constants", "", "comma separated constant archives")
	undo := fs.Bool("undo", false, "restore physical units instead of normalising")
	if err := fs.Parse(args); err != nil {
		return err
	}
	paths := splitList(*constants)
	if len(paths) == 0 {
		return errors.New("normalize: -constants is required")
	}
	v, err := variant.Parse(*variantName)
	if err != nil {
		return err
	}
	props, err := properties.Open(v, paths...)
	if err != nil {
		return err
	}
	batch, err := batchFromFlags(*paramsFile, *theta)
	if err != nil {
		return err
	}

	rows, err := params.NewNormalizer(props).MakeListOfDicts(batch, !*undo)
	if err != nil {
		return err
	}
	keys := props.ParameterKeys()
	for _, row := range rows {
		parts := make([]string, len(keys))
		for i, key := range keys {
			parts[i] = fmt.Sprintf("%s=%g", key, row[key])
		}
		fmt.Fprintln(stdout, strings.Join(parts, " "))
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	common := addCommonFlags(fs)
	history := addHistoryFlags(fs, storage.DefaultStoreKind)
	limit := fs.Int("limit", 20, "maximum records to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dbPath, err := history.path(common)
	if err != nil {
		return err
	}
	store, err := storage.NewStore(*history.kind, dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()
	if err := store.Init(ctx); err != nil {
		return err
	}

	records, err := store.ListPredictions(ctx, *limit)
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Fprintf(stdout, "%s %s variant=%s version=%s batch=%d keys=%s output=%s\n",
			r.ID, r.CreatedAtUTC.Format("2006-01-02T15:04:05Z"), r.Variant, r.Version, r.Batch(), strings.Join(r.Keys, ","), r.OutputPath)
	}
	return nil
}

func runInspect(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("inspect: expected one output file")
	}
	arrays, err := output.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	for _, key := range output.QuantityKeys(arrays) {
		fmt.Fprintf(stdout, "%s shape=%v %s\n", key, arrays[key].Shape, preview(arrays[key].Data))
	}
	if in, ok := arrays[output.InputsKey]; ok {
		fmt.Fprintf(stdout, "%s shape=%v\n", output.InputsKey, in.Shape)
	}
	return nil
}

func preview(values []float64) string {
	const n = 4
	var b strings.Builder
	b.WriteString("[")
	for i, v := range values {
		if i == n {
			fmt.Fprintf(&b, " ... (%d values)", len(values))
			break
		}
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%.6g", v)
	}
	b.WriteString("]")
	return b.String()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
