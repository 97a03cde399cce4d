/*
NAME
  json.go

DESCRIPTION
  json.go renders a MediaInfo as a single JSON object with the same
  contents as the human renderer: file metadata, one object per stream,
  and the collected packets.

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
	"encoding/json"
	"io"

	"github.com/coastalsound/transcode/core"
)

type jsonDoc struct {
	File    jsonFile     `json:"file"`
	Streams []jsonStream `json:"streams"`
	Packets []jsonPacket `json:"packets"`
}

type jsonFile struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
	Size     int64   `json:"size"`
}

type jsonStream struct {
	Index      int    `json:"index"`
	Type       string `json:"type"`
	Codec      string `json:"codec"`
	Width      uint32 `json:"width,omitempty"`
	Height     uint32 `json:"height,omitempty"`
	SampleRate uint32 `json:"sample_rate,omitempty"`
	Channels   uint8  `json:"channels,omitempty"`
	BitDepth   uint8  `json:"bit_depth,omitempty"`
}

type jsonPacket struct {
	Index    int    `json:"index"`
	PTS      int64  `json:"pts"`
	Keyframe bool   `json:"keyframe"`
	Size     int    `json:"size"`
	Hex      string `json:"hex"`
}

// JSON writes info to w as a single JSON object, restricted to
// opts.StreamFilter if set. Packets are already bounded by opts.FrameLimit
// at Collect time.
func JSON(w io.Writer, info *MediaInfo, opts Options) error {
	doc := jsonDoc{
		File: jsonFile{Path: info.File.Path, Duration: info.File.Duration, Size: info.File.Size},
	}
	for _, s := range info.Streams {
		if opts.StreamFilter != nil && *opts.StreamFilter != s.Index {
			continue
		}
		doc.Streams = append(doc.Streams, toJSONStream(s))
	}
	for _, p := range info.Packets {
		doc.Packets = append(doc.Packets, jsonPacket{
			Index: p.Index, PTS: p.PTS, Keyframe: p.Keyframe, Size: p.Size, Hex: p.Hex,
		})
	}
	enc := json.NewEncoder(w)
	return enc.Encode(doc)
}

func toJSONStream(s *core.Stream) jsonStream {
	js := jsonStream{Index: s.Index, Type: s.Kind.String(), Codec: s.Codec}
	switch s.Kind {
	case core.Video:
		js.Width, js.Height = s.Width, s.Height
	case core.Audio:
		js.SampleRate, js.Channels, js.BitDepth = s.SampleRate, s.Channels, s.BitDepth
	}
	return js
}
