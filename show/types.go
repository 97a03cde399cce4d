/*
NAME
  types.go

DESCRIPTION
  types.go defines the read-only snapshot that Human and JSON render: file
  metadata, one entry per stream, and a bounded prefix of packets. Nothing
  here is decoded; every field comes straight off the demuxer.

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package show renders a demuxed file's stream and packet metadata, either
// as aligned human-readable text or as a single JSON object. It never
// decodes a frame and never writes anything back to the file it inspects.
package show

import "github.com/coastalsound/transcode/core"

// FileInfo holds the inspected file's path and size. Duration is computed
// from the longest stream's last-seen PTS, in seconds.
type FileInfo struct {
	Path     string
	Size     int64
	Duration float64
}

// PacketInfo is one packet's metadata plus a hex preview of its payload.
// Hex is pre-formatted (space-separated byte pairs) so renderers don't
// need to re-walk the payload.
type PacketInfo struct {
	Index    int
	PTS      int64
	Keyframe bool
	Size     int
	Hex      string
}

// MediaInfo is the complete snapshot passed to Human and JSON.
type MediaInfo struct {
	File    FileInfo
	Streams []*core.Stream
	Packets []PacketInfo // first N packets across all streams, demuxer order
}

// Options bounds how much of the file is inspected and how it's displayed.
type Options struct {
	StreamFilter *int // nil means all streams
	FrameLimit   int  // max packets to collect and display
	HexLimit     int  // max bytes per packet shown in the hex preview
}

// DefaultOptions matches the original CLI's defaults: the first 10
// packets, 16 bytes of hex each, every stream shown.
func DefaultOptions() Options {
	return Options{FrameLimit: 10, HexLimit: 16}
}
