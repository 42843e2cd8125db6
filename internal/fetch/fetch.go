// Package fetch keeps a local git checkout of the pretrained emulator data
// and switches it to the requested version.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	DefaultRemote = "https://huggingface.co/DanielaBreitman/21cmEMU"
	Latest        = "latest"

	// DefaultMinSize is the size below which a required file is taken to be
	// an unresolved git-lfs pointer.
	DefaultMinSize = 1024

	mainBranch = "main"
)

var (
	ErrUnknownVersion  = errors.New("unknown emulator version")
	ErrNetworkDisabled = errors.New("network access disabled and no cached emulator data")
	ErrCorruptCache    = errors.New("cached emulator data is incomplete")
)

type Options struct {
	// Dir is the checkout directory.
	Dir    string
	Remote string
	// DisableNetwork skips clone and pull.
	DisableNetwork bool
	// RequiredFiles are paths relative to Dir checked after checkout.
	RequiredFiles []string
	MinSize       int64
	Runner        Runner
	Logger        *slog.Logger
}

// Result describes the checkout after Acquire.
type Result struct {
	Dir       string
	Version   string
	Versions  []string
	Cloned    bool
	Refreshed bool
}

type Fetcher struct {
	dir            string
	remote         string
	disableNetwork bool
	required       []string
	minSize        int64
	runner         Runner
	log            *slog.Logger
}

func New(opts Options) *Fetcher {
	f := &Fetcher{
		dir:            opts.Dir,
		remote:         opts.Remote,
		disableNetwork: opts.DisableNetwork,
		required:       append([]string(nil), opts.RequiredFiles...),
		minSize:        opts.MinSize,
		runner:         opts.Runner,
		log:            opts.Logger,
	}
	if f.remote == "" {
		f.remote = DefaultRemote
	}
	if f.minSize == 0 {
		f.minSize = DefaultMinSize
	}
	if f.runner == nil {
		f.runner = ExecRunner{}
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	return f
}

func (f *Fetcher) Dir() string { return f.dir }

// Acquire clones or refreshes the checkout, then checks out version. A
// failed refresh of an existing checkout is logged and skipped.
func (f *Fetcher) Acquire(ctx context.Context, version string) (Result, error) {
	if f.dir == "" {
		return Result{}, errors.New("fetch: checkout directory is required")
	}
	res := Result{Dir: f.dir}

	cached, err := isCheckout(f.dir)
	if err != nil {
		return Result{}, err
	}
	switch {
	case !cached && f.disableNetwork:
		return Result{}, fmt.Errorf("%w: %s", ErrNetworkDisabled, f.dir)
	case !cached:
		if err := os.MkdirAll(filepath.Dir(f.dir), 0o755); err != nil {
			return Result{}, fmt.Errorf("create data dir: %w", err)
		}
		f.log.Info("cloning emulator data", "remote", f.remote, "dir", f.dir)
		if _, err := f.runner.Run(ctx, filepath.Dir(f.dir), "clone", f.remote, f.dir); err != nil {
			return Result{}, fmt.Errorf("clone emulator data: %w", err)
		}
		res.Cloned = true
	case f.disableNetwork:
		f.log.Warn("network disabled, using cached emulator data without pulling", "dir", f.dir)
	default:
		if _, err := f.runner.Run(ctx, f.dir, "pull"); err != nil {
			f.log.Warn("could not pull emulator data, using cached copy", "dir", f.dir, "err", err)
		} else {
			res.Refreshed = true
		}
	}

	tags, err := f.tags(ctx)
	if err != nil {
		return Result{}, err
	}
	res.Versions = versionNames(tags)

	target, err := resolveVersion(version, tags)
	if err != nil {
		return Result{}, err
	}
	if _, err := f.runner.Run(ctx, f.dir, "checkout", target); err != nil {
		return Result{}, fmt.Errorf("checkout %s: %w", target, err)
	}
	res.Version = target
	f.log.Debug("emulator data ready", "version", target, "dir", f.dir)

	if err := CheckCache(f.dir, f.required, f.minSize); err != nil {
		return Result{}, err
	}
	return res, nil
}

// Versions lists the version tags of the checkout, lower-cased and sorted.
func (f *Fetcher) Versions(ctx context.Context) ([]string, error) {
	tags, err := f.tags(ctx)
	if err != nil {
		return nil, err
	}
	return versionNames(tags), nil
}

// tags maps lower-cased version tags onto their names in the repository.
func (f *Fetcher) tags(ctx context.Context) (map[string]string, error) {
	out, err := f.runner.Run(ctx, f.dir, "tag", "--list")
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	tags := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "v") {
			tags[lower] = name
		}
	}
	return tags, nil
}

func versionNames(tags map[string]string) []string {
	out := make([]string, 0, len(tags))
	for lower := range tags {
		out = append(out, lower)
	}
	sort.Strings(out)
	return out
}

func resolveVersion(version string, tags map[string]string) (string, error) {
	if version == "" || strings.EqualFold(version, Latest) {
		return mainBranch, nil
	}
	if name, ok := tags[strings.ToLower(version)]; ok {
		return name, nil
	}
	return "", fmt.Errorf("%w: %s; must be one of %v", ErrUnknownVersion, version, versionNames(tags))
}

func isCheckout(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// CheckCache fails with ErrCorruptCache when a required file is missing or
// smaller than minSize.
func CheckCache(dir string, required []string, minSize int64) error {
	for _, rel := range required {
		path := filepath.Join(dir, rel)
		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s is missing; delete %s and fetch again", ErrCorruptCache, path, dir)
		}
		if err != nil {
			return err
		}
		if info.Size() < minSize {
			return fmt.Errorf("%w: %s is only %d bytes, which usually means git-lfs is not installed; install git-lfs (https://git-lfs.com), delete %s and fetch again",
				ErrCorruptCache, path, info.Size(), dir)
		}
	}
	return nil
}
