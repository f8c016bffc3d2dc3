// Command enhancedemo runs enhancement sessions over still-image sources on
// the local GPU and prints their readouts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/gogpu/enhance"
	"github.com/gogpu/enhance/configstore"
	"github.com/gogpu/enhance/gpu"
)

func main() {
	var (
		configPath = flag.String("config", "", "settings file (.toml, .yaml); watched for changes")
		imagePath  = flag.String("image", "", "source image (png, jpeg, bmp, webp); a test pattern when empty")
		sources    = flag.Int("sources", 2, "number of sources")
		width      = flag.Int("width", 640, "source width")
		height     = flag.Int("height", 360, "source height")
		duration   = flag.Duration("duration", 5*time.Second, "how long to run")
		fps        = flag.Int("fps", 30, "frame rate")
		mode       = flag.String("mode", "auto", "render strategy: auto, main, worker-offscreen")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	enhance.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*configPath, *imagePath, *sources, *width, *height, *duration, *fps, *mode); err != nil {
		log.Fatal(err)
	}
}

func run(configPath, imagePath string, n, w, h int, duration time.Duration, fps int, modeName string) error {
	cfg := enhance.DefaultConfig()
	if configPath != "" {
		c, err := configstore.Load(configPath)
		if err != nil {
			return err
		}
		cfg = c
	}
	m, err := parseMode(modeName)
	if err != nil {
		return err
	}

	img, err := loadImage(imagePath, w, h)
	if err != nil {
		return err
	}
	srcs := make([]*enhance.ImageSource, n)
	for i := range srcs {
		srcs[i] = enhance.NewImageSource(img, w, h)
	}

	g, err := gpu.Open()
	if err != nil {
		return err
	}
	defer func() {
		if err := g.Close(); err != nil {
			log.Print(err)
		}
	}()

	reg := enhance.NewRegistry(g.Caps,
		enhance.WithConfig(cfg),
		enhance.WithMode(m),
		enhance.WithOpener(g.Opener()),
		enhance.WithAdvisorySink(func(a enhance.Advisory) {
			fmt.Printf("advisory [%s] %s\n", a.Kind, a.Message)
		}),
		enhance.WithScanner(func(r *enhance.Registry) {
			for _, src := range srcs {
				if _, ok := r.Lookup(src); ok {
					continue
				}
				if _, err := r.Acquire(src, nil); err != nil && !errors.Is(err, enhance.ErrQuotaExceeded) {
					log.Printf("acquire: %v", err)
				}
			}
		}),
	)
	defer reg.ReleaseAll()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	if configPath != "" {
		go func() {
			err := configstore.Watch(ctx, configPath, func(c enhance.Config) {
				if reg.Reconfigure(c) {
					log.Print("settings changed, sessions rebuilt on next scan")
				}
			})
			if err != nil {
				log.Printf("watch: %v", err)
			}
		}()
	}

	go report(ctx, reg)

	if err := reg.Run(ctx, time.Second/time.Duration(max(1, fps))); !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	printReadouts(reg)
	return nil
}

func report(ctx context.Context, reg *enhance.Registry) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			printReadouts(reg)
		}
	}
}

func printReadouts(reg *enhance.Registry) {
	for _, s := range reg.Sessions() {
		sw, sh := s.SourceSize()
		fmt.Printf("%s %-16s %-8s src=%dx%d %s | %s dropped=%d\n",
			s.ID().String()[:8], s.Mode(), s.State(), sw, sh, s.Label(), s.FPSText(), s.Dropped())
	}
}

func parseMode(name string) (enhance.Mode, error) {
	for _, m := range []enhance.Mode{enhance.ModeAuto, enhance.ModeCooperative, enhance.ModeOffloaded} {
		if m.String() == name {
			return m, nil
		}
	}
	return enhance.ModeAuto, fmt.Errorf("unknown mode %q", name)
}

func loadImage(path string, w, h int) (image.Image, error) {
	if path == "" {
		return testPattern(w, h), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// testPattern draws diagonal color bands with hard edges, which show the
// sharpening clearly.
func testPattern(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			band := ((x + y) / 16) % 4
			c := color.RGBA{A: 255}
			switch band {
			case 0:
				c.R = 220
			case 1:
				c.G = 200
			case 2:
				c.B = 230
			default:
				c.R, c.G, c.B = 240, 240, 240
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
