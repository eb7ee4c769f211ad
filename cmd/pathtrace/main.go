// Command pathtrace renders the built-in scenes offscreen and inspects the
// available ray-tracing adapters.
package main

import (
	"fmt"
	"os"

	"github.com/gogpu/pathtrace"
	"github.com/urfave/cli"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "pathtrace:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	// The default version flag is "version, v", which collides with -v.
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "pathtrace"
	app.Usage = "progressive path tracing on ray-tracing devices"
	app.Version = pathtrace.Version
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render a scene offscreen and write it as PNG",
			Description: `
Load a built-in scene, accumulate samples over the requested number of frames
and write the resolved image. The scene is chosen by name or registry index.`,
			ArgsUsage: "[output.png]",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "width",
					Value: 640,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 360,
					Usage: "frame height",
				},
				cli.IntFlag{
					Name:  "spp",
					Value: 8,
					Usage: "samples per pixel and frame",
				},
				cli.IntFlag{
					Name:  "num-bounces",
					Value: 16,
					Usage: "maximum path length",
				},
				cli.IntFlag{
					Name:  "max-samples",
					Value: 65536,
					Usage: "cap on accumulated samples per pixel",
				},
				cli.IntFlag{
					Name:  "frames",
					Value: 16,
					Usage: "number of frames to accumulate",
				},
				cli.StringFlag{
					Name:  "scene, s",
					Usage: "scene name or index (default: first scene)",
				},
				cli.StringFlag{
					Name:  "backend, b",
					Usage: "ray-tracing backend (default: first that works)",
				},
				cli.IntFlag{
					Name:  "workers",
					Usage: "worker goroutines of the soft backend (0: one per CPU)",
				},
				cli.BoolFlag{
					Name:  "stats",
					Usage: "print frame statistics",
				},
			},
			Action: renderScene,
		},
		{
			Name:   "scenes",
			Usage:  "list built-in scenes",
			Action: listScenes,
		},
		{
			Name:   "list-devices",
			Usage:  "list adapters and the ray-tracing backend that drives them",
			Action: listDevices,
		},
	}
	return app
}
