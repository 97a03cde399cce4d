/*
NAME
  main.go

DESCRIPTION
  transcode is the CLI entrypoint: it parses -i/-o and the repeatable
  --audio/--video/--subtitle/--apply option groups, and either runs the
  pipeline or renders a --show inspection report.

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Command transcode demuxes, transcodes and remuxes media files, or
// inspects one without writing anything back.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/coastalsound/transcode/pipeline"
	"github.com/coastalsound/transcode/show"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, errorMarker()+err.Error())
		os.Exit(1)
	}
}

// errorMarker returns the red "error: " prefix, or a plain one if NO_COLOR
// is set (https://no-color.org).
func errorMarker() string {
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		return "error: "
	}
	const red, reset = "\x1b[31m", "\x1b[0m"
	return red + "error: " + reset
}

func run(args []string) error {
	fs := pflag.NewFlagSet("transcode", pflag.ContinueOnError)
	in := fs.StringP("input", "i", "", "input file path")
	out := fs.StringP("output", "o", "", "output file path")
	audio := fs.StringArray("audio", nil, "audio option, KEY=VAL (repeatable)")
	video := fs.StringArray("video", nil, "video option, KEY=VAL (repeatable)")
	subtitle := fs.StringArray("subtitle", nil, "subtitle option, KEY=VAL (repeatable)")
	apply := fs.StringArray("apply", nil, "transform spec, name[=val[,val...]] (repeatable)")
	showFlag := fs.Bool("show", false, "inspect the input instead of transcoding it")
	jsonFlag := fs.Bool("json", false, "with --show, render JSON instead of human-readable text")
	streamIdx := fs.Int("stream", -1, "with --show, restrict to one stream index")
	frameLimit := fs.Int("frames", 10, "with --show, max packets to display")
	hexLimit := fs.Int("hex", 16, "with --show, max bytes of hex preview per packet")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("transcode: -i is required")
	}

	if *showFlag {
		opts := show.Options{FrameLimit: *frameLimit, HexLimit: *hexLimit}
		if *streamIdx >= 0 {
			opts.StreamFilter = streamIdx
		}
		info, err := show.Collect(*in, opts)
		if err != nil {
			return err
		}
		if *jsonFlag {
			return show.JSON(os.Stdout, info, opts)
		}
		show.Human(os.Stdout, info, opts)
		return nil
	}

	if *out == "" {
		return fmt.Errorf("transcode: -o is required")
	}
	return pipeline.Run(*in, *out, pipeline.Options{
		Audio:    parseKV(*audio),
		Video:    parseKV(*video),
		Subtitle: parseKV(*subtitle),
		Apply:    *apply,
	})
}

// parseKV parses a repeated --audio/--video/--subtitle flag's tokens as
// KEY=VAL pairs. A token with no "=" becomes a key with value "true".
func parseKV(tokens []string) map[string]string {
	if len(tokens) == 0 {
		return nil
	}
	m := make(map[string]string, len(tokens))
	for _, tok := range tokens {
		key, val, found := strings.Cut(tok, "=")
		if !found {
			val = "true"
		}
		m[key] = val
	}
	return m
}
