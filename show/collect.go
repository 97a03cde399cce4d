/*
NAME
  collect.go

DESCRIPTION
  collect.go builds a MediaInfo by opening a file's demuxer and reading
  packets, without ever constructing a decoder. Per-stream duration is
  tracked from the last PTS seen on that stream and converted through
  its Timebase; the file's overall Duration is the max across streams.

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
	"os"

	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
	"github.com/coastalsound/transcode/pipeline"
)

// Collect opens path, demuxes it fully (to learn the real duration), and
// returns a MediaInfo holding opts.FrameLimit packets' worth of metadata.
// It never constructs a decoder or writes anything back.
func Collect(path string, opts Options) (*MediaInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, ioutil.FromOSError(path, err)
	}

	container, err := pipeline.ContainerFromExt(path)
	if err != nil {
		return nil, err
	}

	f, err := ioutil.OpenRead(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	demuxer, err := pipeline.OpenDemuxer(container, f)
	if err != nil {
		return nil, err
	}

	info := &MediaInfo{
		File:    FileInfo{Path: path, Size: fi.Size()},
		Streams: demuxer.Streams(),
	}
	lastSeconds := make([]float64, len(info.Streams))

	for {
		p, err := demuxer.ReadPacket()
		if err != nil {
			return nil, err
		}
		if p == nil {
			break
		}
		if opts.StreamFilter == nil || *opts.StreamFilter == int(p.StreamIndex) {
			if len(info.Packets) < opts.FrameLimit {
				info.Packets = append(info.Packets, packetInfo(len(info.Packets), p, opts.HexLimit))
			}
		}
		if int(p.StreamIndex) < len(lastSeconds) {
			lastSeconds[p.StreamIndex] = p.Timebase.ToSeconds(p.PTS)
		}
	}
	for _, s := range lastSeconds {
		if s > info.File.Duration {
			info.File.Duration = s
		}
	}
	return info, nil
}

func packetInfo(index int, p *core.Packet, hexLimit int) PacketInfo {
	return PacketInfo{
		Index:    index,
		PTS:      p.PTS,
		Keyframe: p.Keyframe,
		Size:     len(p.Payload),
		Hex:      hexDump(p.Payload, hexLimit),
	}
}

const hexDigits = "0123456789abcdef"

// hexDump renders up to limit bytes of data as space-separated hex pairs,
// appending " ..." if data was truncated.
func hexDump(data []byte, limit int) string {
	n := len(data)
	truncated := n > limit
	if truncated {
		n = limit
	}
	buf := make([]byte, 0, n*3+4)
	for i := 0; i < n; i++ {
		if i > 0 {
			buf = append(buf, ' ')
		}
		b := data[i]
		buf = append(buf, hexDigits[b>>4], hexDigits[b&0xf])
	}
	if truncated {
		buf = append(buf, " ..."...)
	}
	return string(buf)
}
