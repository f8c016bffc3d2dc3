// Package configstore loads enhance settings from TOML or YAML files and
// watches them for changes.
//
// Keys use the browser extension settings names
// ("model", "resolution", "customScale", ...). Missing keys keep their
// defaults.
package configstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/enhance"
)

// ErrUnknownFormat is returned for files that are neither TOML nor YAML.
var ErrUnknownFormat = errors.New("configstore: unknown config format")

// settleDelay coalesces the burst of events editors produce for one save.
const settleDelay = 50 * time.Millisecond

// Load reads path and decodes it onto enhance.DefaultConfig. The format is
// picked by extension: .toml, .yaml, or .yml.
func Load(path string) (enhance.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return enhance.Config{}, fmt.Errorf("configstore: read %s: %w", path, err)
	}
	return Decode(data, Format(path))
}

// Format returns "toml" or "yaml" for path, or "" when the extension is
// not recognized.
func Format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return ""
	}
}

// Decode parses data in format ("toml" or "yaml") onto the defaults and
// normalizes the result.
func Decode(data []byte, format string) (enhance.Config, error) {
	cfg := enhance.DefaultConfig()
	switch format {
	case "toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&cfg); err != nil {
			return enhance.Config{}, fmt.Errorf("configstore: parse toml: %w", err)
		}
	case "yaml":
		// An empty document leaves the defaults untouched.
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return enhance.Config{}, fmt.Errorf("configstore: parse yaml: %w", err)
		}
	default:
		return enhance.Config{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return cfg.Normalize(), nil
}

// Save writes cfg to path in the format its extension selects.
func Save(path string, cfg enhance.Config) error {
	var (
		data []byte
		err  error
	)
	switch Format(path) {
	case "toml":
		data, err = toml.Marshal(cfg)
	case "yaml":
		data, err = yaml.Marshal(cfg)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return fmt.Errorf("configstore: encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // settings file, not a secret
		return fmt.Errorf("configstore: write %s: %w", path, err)
	}
	return nil
}

// Watch calls fn with a fresh snapshot each time path is written, until
// ctx is done. The directory is watched rather than the file, so editors
// that replace the file on save keep working. Snapshots that fail to parse
// are logged and skipped; the previous snapshot stays in effect.
//
// Watch blocks. It returns nil when ctx is cancelled.
func Watch(ctx context.Context, path string, fn func(enhance.Config)) error {
	if Format(path) == "" {
		return fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("configstore: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("configstore: watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("configstore: watch %s: %w", filepath.Dir(abs), err)
	}

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			settle = time.After(settleDelay)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			enhance.Logger().Warn("configstore: watch error", "path", abs, "err", err)
		case <-settle:
			settle = nil
			cfg, err := Load(abs)
			if err != nil {
				enhance.Logger().Warn("configstore: reload skipped", "path", abs, "err", err)
				continue
			}
			enhance.Logger().Debug("configstore: reloaded", "path", abs)
			fn(cfg)
		}
	}
}
