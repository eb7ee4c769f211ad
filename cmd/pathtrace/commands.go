package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/gogpu/pathtrace"
	"github.com/gogpu/pathtrace/frame"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/pathtrace/rt/soft"
	"github.com/gogpu/pathtrace/scenes"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

const defaultOutput = "pathtrace.png"

func setupLogging(ctx *cli.Context) {
	level := slog.LevelWarn
	if ctx.GlobalBool("v") {
		level = slog.LevelInfo
	}
	if ctx.GlobalBool("vv") {
		level = slog.LevelDebug
	}
	pathtrace.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	return table
}

// renderScene accumulates a scene offscreen and writes the result.
func renderScene(ctx *cli.Context) error {
	setupLogging(ctx)

	width, height := ctx.Int("width"), ctx.Int("height")
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	frames := ctx.Int("frames")
	if frames <= 0 {
		return errors.New("frames must be positive")
	}
	out := defaultOutput
	if ctx.NArg() > 0 {
		out = ctx.Args().First()
	}

	soft.SetBackendOptions(soft.WithWorkers(ctx.Int("workers")))
	r, err := pathtrace.New(
		pathtrace.WithSize(uint32(width), uint32(height)),
		pathtrace.WithSamples(uint32(ctx.Int("spp"))),
		pathtrace.WithBounces(uint32(ctx.Int("num-bounces"))),
		pathtrace.WithMaxSamples(uint32(ctx.Int("max-samples"))),
		pathtrace.WithScene(ctx.String("scene")),
		pathtrace.WithBackend(ctx.String("backend")),
		pathtrace.WithVSync(false),
	)
	if err != nil {
		return err
	}
	defer r.Close()

	start := time.Now()
	presented := 0
	for presented < frames {
		o, err := r.DrawFrame()
		if err != nil {
			return err
		}
		if o == frame.Presented {
			presented++
		}
	}
	elapsed := time.Since(start)

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := r.Snapshot(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	pathtrace.Logger().Info("image written", "path", out, "elapsed", elapsed)

	if ctx.Bool("stats") {
		printStats(ctx.App.Writer, r.Stats(), elapsed)
	}
	return nil
}

func printStats(w io.Writer, s pathtrace.Stats, elapsed time.Duration) {
	table := newTable(w, "Stat", "Value")
	table.Append([]string{"scene", s.Scene})
	table.Append([]string{"size", fmt.Sprintf("%dx%d", s.Width, s.Height)})
	table.Append([]string{"samples per pixel", strconv.FormatUint(uint64(s.TotalSamples), 10)})
	table.Append([]string{"frames presented", strconv.FormatUint(s.Presented, 10)})
	table.Append([]string{"frames skipped", strconv.FormatUint(s.Skipped, 10)})
	table.Append([]string{"last frame rate", fmt.Sprintf("%.2f fps", s.FrameRate)})
	table.Append([]string{"last ray rate", fmt.Sprintf("%.3f Mrays/s", s.RayRate/1e6)})
	table.SetFooter([]string{"elapsed", elapsed.Round(time.Millisecond).String()})
	table.Render()
}

// listScenes prints the scene registry.
func listScenes(ctx *cli.Context) error {
	table := newTable(ctx.App.Writer, "Index", "Name")
	for i, e := range scenes.All() {
		table.Append([]string{strconv.Itoa(i), e.Name})
	}
	table.Render()
	return nil
}

// listDevices prints every adapter and the backend that can trace rays on
// it.
func listDevices(ctx *cli.Context) error {
	setupLogging(ctx)
	adapters, err := rt.Adapters()
	if err != nil {
		return err
	}
	table := newTable(ctx.App.Writer, "Adapter", "API", "Type", "Ray tracing")
	for _, a := range adapters {
		backend := "-"
		if a.Supported() {
			backend = a.Backend
		}
		table.Append([]string{a.Info.Name, a.Info.Backend.String(), a.Info.DeviceType.String(), backend})
	}
	table.SetFooter([]string{"backends", fmt.Sprint(rt.Backends()), "", ""})
	table.Render()
	return nil
}
