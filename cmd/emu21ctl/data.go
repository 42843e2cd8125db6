package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"emu21cm/internal/fetch"
	"emu21cm/internal/variant"
	"emu21cm/pkg/emu21cm"
)

func newFetcher(common commonFlags, variantName string) (*fetch.Fetcher, error) {
	cfg, err := common.loadConfig()
	if err != nil {
		return nil, err
	}
	v, err := variant.Parse(variantName)
	if err != nil {
		return nil, err
	}
	return fetch.New(fetch.Options{
		Dir:            cfg.EmulatorDir(),
		DisableNetwork: cfg.NetworkDisabled(),
		RequiredFiles:  emu21cm.RequiredFiles(v),
		Logger:         common.logger(),
	}), nil
}

func runFetch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	common := addCommonFlags(fs)
	version := fs.String("version", fetch.Latest, "emulator data version")
	variantName := fs.String("variant", variant.Default, "variant whose files must be present")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := newFetcher(common, *variantName)
	if err != nil {
		return err
	}
	res, err := f.Acquire(ctx, *version)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "dir=%s version=%s cloned=%t refreshed=%t\n", res.Dir, res.Version, res.Cloned, res.Refreshed)
	return nil
}

func runVersions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("versions", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := newFetcher(common, variant.Default)
	if err != nil {
		return err
	}
	versions, err := f.Versions(ctx)
	if err != nil {
		return err
	}
	for _, v := range versions {
		fmt.Fprintln(stdout, v)
	}
	return nil
}

func runMoveData(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("move-data", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("move-data: expected a destination directory")
	}
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}
	if err := fetch.MoveData(cfg, fs.Arg(0), common.logger()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "data-path=%s\n", cfg.DataPath())
	return nil
}

// runConfig handles "config list|get KEY|set KEY VALUE|delete KEY".
func runConfig(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		rest = []string{"list"}
	}
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}

	switch rest[0] {
	case "list":
		values := cfg.Values()
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(stdout, "%s = %v\n", k, values[k])
		}
		return nil
	case "path":
		fmt.Fprintln(stdout, cfg.Path())
		return nil
	case "get":
		if len(rest) != 2 {
			return errors.New("config get: expected KEY")
		}
		v, ok := cfg.Get(rest[1])
		if !ok {
			return fmt.Errorf("config get: unknown key %s", rest[1])
		}
		fmt.Fprintln(stdout, v)
		return nil
	case "set":
		if len(rest) != 3 {
			return errors.New("config set: expected KEY VALUE")
		}
		return cfg.Set(rest[1], parseValue(rest[2]))
	case "delete":
		if len(rest) != 2 {
			return errors.New("config delete: expected KEY")
		}
		return cfg.Delete(rest[1])
	default:
		return fmt.Errorf("config: unknown action %s (want list|path|get|set|delete)", rest[0])
	}
}

// parseValue types a command-line value the way TOML would.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
