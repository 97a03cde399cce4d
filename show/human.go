/*
NAME
  human.go

DESCRIPTION
  human.go renders a MediaInfo as the terminal-friendly report: a file
  header, one key/value block per stream, and a table of the collected
  packets.

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package show

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/coastalsound/transcode/core"
)

const (
	bold  = "\x1b[1m"
	reset = "\x1b[0m"
)

// colorEnabled honours NO_COLOR (https://no-color.org), the only
// environment variable this module reads.
func colorEnabled() bool {
	_, set := os.LookupEnv("NO_COLOR")
	return !set
}

func heading(s string) string {
	if !colorEnabled() {
		return s
	}
	return bold + s + reset
}

// Human writes info to w in the terminal-friendly layout, restricted to
// opts.StreamFilter if set.
func Human(w io.Writer, info *MediaInfo, opts Options) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s      : %s\n", heading("File"), info.File.Path)
	fmt.Fprintf(w, "  Duration  : %s\n", formatDuration(info.File.Duration))
	fmt.Fprintf(w, "  Size      : %s\n", formatSize(info.File.Size))
	fmt.Fprintf(w, "  Streams   : %d\n", len(info.Streams))
	fmt.Fprintln(w)

	for _, s := range info.Streams {
		if opts.StreamFilter != nil && *opts.StreamFilter != s.Index {
			continue
		}
		renderStream(w, s)
	}

	if len(info.Packets) == 0 {
		return
	}
	fmt.Fprintf(w, "%s (hex preview, first %d bytes)\n", heading("Packets"), opts.HexLimit)
	renderPacketTable(w, info.Packets)
}

func renderStream(w io.Writer, s *core.Stream) {
	fmt.Fprintf(w, "%s #%d\n", heading(streamHeading(s.Kind)), s.Index)
	fmt.Fprintf(w, "  Codec      : %s\n", s.Codec)
	switch s.Kind {
	case core.Video:
		fmt.Fprintf(w, "  Resolution : %d x %d\n", s.Width, s.Height)
	case core.Audio:
		fmt.Fprintf(w, "  Sample Rate: %d Hz\n", s.SampleRate)
		fmt.Fprintf(w, "  Channels   : %d\n", s.Channels)
		fmt.Fprintf(w, "  Bit Depth  : %d-bit\n", s.BitDepth)
	}
	fmt.Fprintln(w)
}

func streamHeading(kind core.StreamKind) string {
	switch kind {
	case core.Video:
		return "Video Stream"
	case core.Audio:
		return "Audio Stream"
	default:
		return "Subtitle Stream"
	}
}

func renderPacketTable(w io.Writer, packets []PacketInfo) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"index", "pts", "key", "size", "hexdump"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	for _, p := range packets {
		table.Append([]string{
			strconv.Itoa(p.Index),
			strconv.FormatInt(p.PTS, 10),
			keyframeMark(p.Keyframe),
			strconv.Itoa(p.Size),
			p.Hex,
		})
	}
	table.Render()
}

func keyframeMark(keyframe bool) string {
	if keyframe {
		return "y"
	}
	return "n"
}
