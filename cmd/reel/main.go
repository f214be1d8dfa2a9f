// Command reel serves the playback engine over HTTP, drives it from the
// terminal, or probes a video file.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/fishannotator/reel/pkg/version"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "reel: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Fprintln(c.App.Writer, version.GetInfo().String())
	}

	return &cli.App{
		Name:    version.Name,
		Usage:   "frame-accurate video playback for survey annotation",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML configuration file",
				EnvVars: []string{"REEL_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			playCommand(),
			probeCommand(),
		},
	}
}
