package main

import (
	"context"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/fishannotator/reel/internal/config"
	"github.com/fishannotator/reel/internal/decoder"
)

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     "print container metadata as YAML",
		ArgsUsage: "<video>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("probe takes exactly one video path", 2)
			}

			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context, cfg.Decoder.ProbeTimeout)
			defer cancel()

			info, err := probe(ctx, cfg.Decoder, c.Args().First())
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(c.App.Writer)
			enc.SetIndent(2)
			if err := enc.Encode(info); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

// probe reads metadata without decoding: synthetic sources report their
// parameters, MP4 files are parsed directly and anything else goes to
// ffprobe.
func probe(ctx context.Context, cfg config.DecoderConfig, path string) (decoder.Info, error) {
	switch {
	case strings.HasPrefix(path, decoder.TestScheme):
		s, err := decoder.NewTestSource().Open(ctx, path)
		if err != nil {
			return decoder.Info{}, err
		}
		defer s.Close()
		return s.Info(), nil

	case decoder.IsMP4Path(path):
		return decoder.ProbeMP4(path)
	}

	ffmpeg, _ := decoder.FindFFmpeg(cfg.FFmpegPath)
	ffprobe, err := decoder.FindFFprobe(cfg.FFprobePath, ffmpeg)
	if err != nil {
		return decoder.Info{}, err
	}
	return decoder.Probe(ctx, ffprobe, path)
}
