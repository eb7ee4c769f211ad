package main

import (
	"bytes"
	"context"
	"log/slog"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/pathtrace"
	"github.com/gogpu/pathtrace/scenes"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"pathtrace"}, args...))
	return out.String(), err
}

func TestRenderWritesImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.png")
	out, err := run(t, "render", "--width", "8", "--height", "6", "--spp", "1",
		"--num-bounces", "2", "--frames", "2", "--workers", "2", "--stats", path)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
		t.Errorf("image is %v, want 8x6", b)
	}
	if !strings.Contains(out, "8x6") || !strings.Contains(out, scenes.Default()) {
		t.Errorf("stats table misses size or scene:\n%s", out)
	}
}

func TestRenderRejectsBadArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "zero width", args: []string{"render", "--width", "0"}},
		{name: "no frames", args: []string{"render", "--frames", "0"}},
		{name: "unknown scene", args: []string{"render", "--width", "4", "--height", "4", "--scene", "no such scene", filepath.Join(t.TempDir(), "x.png")}},
		{name: "unknown backend", args: []string{"render", "--backend", "nope", filepath.Join(t.TempDir(), "y.png")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Error("render succeeded")
			}
		})
	}
}

func TestListScenes(t *testing.T) {
	out, err := run(t, "scenes")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range scenes.Names() {
		if !strings.Contains(out, name) {
			t.Errorf("scene %q missing from:\n%s", name, out)
		}
	}
}

func TestListDevices(t *testing.T) {
	out, err := run(t, "list-devices")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Noop Adapter") || !strings.Contains(out, "soft") {
		t.Errorf("software adapter missing from:\n%s", out)
	}
}

func TestVersionFlag(t *testing.T) {
	out, err := run(t, "--version")
	if err != nil {
		t.Fatal(err)
	}
	if want := "pathtrace version " + pathtrace.Version; !strings.Contains(out, want) {
		t.Errorf("version output %q, want %q", out, want)
	}
}

func TestVerbosityFlags(t *testing.T) {
	orig := pathtrace.Logger()
	t.Cleanup(func() { pathtrace.SetLogger(orig) })

	for _, args := range [][]string{
		{"-v", "scenes"},
		{"-vv", "list-devices"},
		{"-v", "render", "--width", "4", "--height", "4", "--spp", "1", "--frames", "1", filepath.Join(t.TempDir(), "v.png")},
	} {
		t.Run(strings.Join(args[:2], " "), func(t *testing.T) {
			if _, err := run(t, args...); err != nil {
				t.Fatalf("%v: %v", args, err)
			}
		})
	}
	if !pathtrace.Logger().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("-v render did not enable info logging")
	}
}
