package fetch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"emu21cm/internal/config"
)

// MoveData relocates every entry of the configured data directory to dest
// and points the config at dest.
func MoveData(cfg *config.Config, dest string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	src, err := filepath.Abs(cfg.DataPath())
	if err != nil {
		return err
	}
	dest, err = filepath.Abs(dest)
	if err != nil {
		return err
	}
	if src == dest {
		log.Info("emulator data already in the desired location", "dir", dest)
		return nil
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	entries, err := os.ReadDir(src)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", src, err)
	}
	for _, entry := range entries {
		from := filepath.Join(src, entry.Name())
		to := filepath.Join(dest, entry.Name())
		if err := os.Rename(from, to); err != nil {
			return fmt.Errorf("move %s: %w", entry.Name(), err)
		}
	}
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		log.Warn("could not remove old data directory", "dir", src, "err", err)
	}
	if err := cfg.Set(config.KeyDataPath, dest); err != nil {
		return err
	}
	log.Info("moved emulator data", "from", src, "to", dest)
	return nil
}
