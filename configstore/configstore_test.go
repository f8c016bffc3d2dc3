package configstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gogpu/enhance"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enhance.toml")
	writeFile(t, path, `
model = "cas"
resolution = "4k"
sharpen = 0.5
deband = true
showFps = false
maxInstances = 64
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Program != "cas" || cfg.Resolution != "4k" {
		t.Errorf("program/resolution = %q/%q", cfg.Program, cfg.Resolution)
	}
	if cfg.Sharpen != 0.5 || !cfg.Dither || cfg.ShowFPS {
		t.Errorf("sharpen=%v deband=%v showFps=%v", cfg.Sharpen, cfg.Dither, cfg.ShowFPS)
	}
	if cfg.MaxInstances != enhance.MaxInstances {
		t.Errorf("maxInstances = %d, want clamped to %d", cfg.MaxInstances, enhance.MaxInstances)
	}
	// untouched keys keep defaults
	def := enhance.DefaultConfig()
	if cfg.Vibrance != def.Vibrance || cfg.SliderPos != def.SliderPos || cfg.Enabled != def.Enabled {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	for _, ext := range []string{".yaml", ".yml"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "enhance"+ext)
			writeFile(t, path, "model: bicubic\nresolution: bogus\ncustomScale: 100\nenabled: false\n")
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.Program != "bicubic" {
				t.Errorf("program = %q", cfg.Program)
			}
			if cfg.Resolution != "2x" {
				t.Errorf("unknown resolution = %q, want 2x", cfg.Resolution)
			}
			if cfg.CustomScale != 10 {
				t.Errorf("customScale = %v, want clamped to 10", cfg.CustomScale)
			}
			if cfg.Enabled {
				t.Error("enabled = true")
			}
		})
	}
}

func TestLoadEmptyYAML(t *testing.T) {
	cfg, err := Decode(nil, "yaml")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg != enhance.DefaultConfig().Normalize() {
		t.Errorf("empty document = %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("missing file: want error")
	}

	ini := filepath.Join(dir, "enhance.ini")
	writeFile(t, ini, "model=cas")
	if _, err := Load(ini); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("ini: err = %v, want ErrUnknownFormat", err)
	}

	bad := filepath.Join(dir, "bad.toml")
	writeFile(t, bad, "model = = cas")
	if _, err := Load(bad); err == nil {
		t.Error("bad toml: want error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"enhance.toml", "enhance.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			want := enhance.DefaultConfig()
			want.Program = "lanczos3"
			want.Resolution = "custom"
			want.CustomScale = 3
			want.ShowRenderTime = true
			if err := Save(path, want); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got != want.Normalize() {
				t.Errorf("got %+v\nwant %+v", got, want)
			}
		})
	}
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enhance.yaml")
	writeFile(t, path, "model: cas\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan enhance.Config, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c enhance.Config) { got <- c })
	}()

	// The watcher may not be registered yet, so keep writing until a
	// reload arrives.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-got:
			if c.Program != "bicubic" {
				t.Fatalf("reloaded program = %q", c.Program)
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Watch returned %v", err)
			}
			return
		case <-tick.C:
			writeFile(t, path, "model: bicubic\n")
		case err := <-done:
			t.Fatalf("Watch exited early: %v", err)
		case <-deadline:
			t.Fatal("no reload within 5s")
		}
	}
}

func TestWatchUnknownFormat(t *testing.T) {
	err := Watch(context.Background(), "settings.json", func(enhance.Config) {})
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("err = %v, want ErrUnknownFormat", err)
	}
}
