// Package config is the persistent per-user settings file. Every mutation
// rewrites the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

const (
	AppName  = "emu21cm"
	FileName = "config.toml"

	KeyDataPath       = "data-path"
	KeyDisableNetwork = "disable-network"

	// emulatorDirName is the checkout directory inside the data path.
	emulatorDirName = "21cmEMU"
)

var ErrKeyNotFound = errors.New("config key not found")

// DefaultPath is config.toml under the per-user config directory.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, FileName)
}

// DefaultDataPath is the per-user data directory.
func DefaultDataPath() string {
	return filepath.Join(xdg.DataHome, AppName)
}

type Config struct {
	mu     sync.RWMutex
	path   string
	values map[string]any
}

// Load reads the file at path, creating it and filling in the defaults for
// data-path and disable-network when absent. An empty path means
// DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	values := make(map[string]any)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return nil, fmt.Errorf("create config file: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if _, err := toml.Decode(string(data), &values); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	c := &Config{path: path, values: values}
	defaults := map[string]any{}
	if _, ok := values[KeyDataPath]; !ok {
		defaults[KeyDataPath] = DefaultDataPath()
	}
	if _, ok := values[KeyDisableNetwork]; !ok {
		defaults[KeyDisableNetwork] = false
	}
	if len(defaults) > 0 {
		if err := c.Update(defaults); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(c.DataPath(), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return c, nil
}

func (c *Config) Path() string { return c.path }

func (c *Config) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *Config) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Keys returns the keys in sorted order.
func (c *Config) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns a shallow copy of every setting.
func (c *Config) Values() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

func (c *Config) Set(key string, value any) error {
	return c.Update(map[string]any{key: value})
}

func (c *Config) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	delete(c.values, key)
	return c.saveLocked()
}

// Update sets every key of kv and rewrites the file once.
func (c *Config) Update(kv map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range kv {
		c.values[k] = v
	}
	return c.saveLocked()
}

// Use applies kv for the duration of fn and then restores the previous
// values, removing keys that did not exist before.
func (c *Config) Use(kv map[string]any, fn func() error) (err error) {
	c.mu.RLock()
	old := make(map[string]any, len(kv))
	var added []string
	for k := range kv {
		if v, ok := c.values[k]; ok {
			old[k] = v
		} else {
			added = append(added, k)
		}
	}
	c.mu.RUnlock()

	if err := c.Update(kv); err != nil {
		return err
	}
	defer func() {
		c.mu.Lock()
		for k, v := range old {
			c.values[k] = v
		}
		for _, k := range added {
			delete(c.values, k)
		}
		restoreErr := c.saveLocked()
		c.mu.Unlock()
		if err == nil {
			err = restoreErr
		}
	}()
	return fn()
}

// DataPath is where emulator data is cached.
func (c *Config) DataPath() string {
	v, _ := c.Get(KeyDataPath)
	s, _ := v.(string)
	if s == "" {
		return DefaultDataPath()
	}
	return s
}

// EmulatorDir is the git checkout of the emulator data.
func (c *Config) EmulatorDir() string {
	return filepath.Join(c.DataPath(), emulatorDirName)
}

func (c *Config) NetworkDisabled() bool {
	v, _ := c.Get(KeyDisableNetwork)
	b, _ := v.(bool)
	return b
}

// saveLocked replaces the file atomically. Callers hold c.mu.
func (c *Config) saveLocked() error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c.values); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
