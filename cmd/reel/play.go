package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/fishannotator/reel/internal/config"
	"github.com/fishannotator/reel/internal/logger"
	"github.com/fishannotator/reel/internal/tui"
)

var errNoTerminal = errors.New("play needs an interactive terminal; use 'reel serve' instead")

func playCommand() *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "play a video in the terminal",
		ArgsUsage: "<video>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("play takes exactly one video path", 2)
			}
			if !isTerminal(os.Stdout) || !isTerminal(os.Stdin) {
				return errNoTerminal
			}

			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			// The terminal belongs to the UI.
			if cfg.Logging.Output == "stdout" || cfg.Logging.Output == "stderr" {
				cfg.Logging.Level = "error"
				cfg.Logging.Output = "stderr"
			}
			log, err := logger.New(&cfg.Logging)
			if err != nil {
				return err
			}

			p, err := newPlayer(cfg, log)
			if err != nil {
				return err
			}
			defer p.Close()

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGTERM)
			defer stop()

			return tui.Run(ctx, p, c.Args().First())
		},
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
