/*
NAME
  mp3file.go

DESCRIPTION
  mp3file.go implements the MP3 container: optional leading ID3v2 tag,
  then consecutive MPEG audio frames located by frame-sync scanning.

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package mp3file implements the MP3 container's demuxer and muxer.
package mp3file

import (
	"io"

	"github.com/coastalsound/transcode/codec/codecutil"
	"github.com/coastalsound/transcode/codec/mp3"
	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

// Demuxer reads consecutive MPEG audio frames, skipping a leading ID3v2
// tag if present.
type Demuxer struct {
	buf     []byte
	off     int
	streams []*core.Stream
	pts     int64
}

// NewDemuxer skips any ID3v2 header, locates the first frame, and builds
// the stream descriptor from it.
func NewDemuxer(r io.Reader) (*Demuxer, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, ioutil.New(ioutil.Other, err)
	}
	start := 0
	if len(buf) >= 10 && string(buf[0:3]) == "ID3" {
		size := syncsafe(buf[6:10])
		start = 10 + size
	}
	off, ok := mp3.FindSync(buf, start)
	if !ok {
		return nil, ioutil.Newf(ioutil.InvalidData, "mp3: no valid frame sync found")
	}
	hdr, err := mp3.ParseHeader(buf[off : off+4])
	if err != nil {
		return nil, err
	}
	tb := core.NewTimebase(1, uint32(hdr.SampleRate))
	d := &Demuxer{
		buf: buf,
		off: off,
		streams: []*core.Stream{{
			ID: 0, Index: 0, Kind: core.Audio, Codec: codecutil.MP3, Timebase: tb,
			Channels: uint8(hdr.Channels()), SampleRate: uint32(hdr.SampleRate),
		}},
	}
	return d, nil
}

func syncsafe(b []byte) int {
	return int(b[0])<<21 | int(b[1])<<14 | int(b[2])<<7 | int(b[3])
}

func (d *Demuxer) Streams() []*core.Stream { return d.streams }

func (d *Demuxer) ReadPacket() (*core.Packet, error) {
	if d.off >= len(d.buf) {
		return nil, nil
	}
	hdr, err := mp3.ParseHeader(d.buf[d.off:])
	if err != nil {
		return nil, err
	}
	if d.off+hdr.FrameSize > len(d.buf) {
		return nil, ioutil.Newf(ioutil.UnexpectedEOF, "mp3: frame needs %d bytes, only %d remain", hdr.FrameSize, len(d.buf)-d.off)
	}
	payload := append([]byte(nil), d.buf[d.off:d.off+hdr.FrameSize]...)
	p := &core.Packet{
		Payload:     payload,
		StreamIndex: 0,
		PTS:         d.pts,
		DTS:         d.pts,
		Timebase:    d.streams[0].Timebase,
		Keyframe:    true,
	}
	d.pts += int64(hdr.SamplesPerFrame)
	d.off += hdr.FrameSize
	return p, nil
}

// Muxer concatenates MP3 frame packets verbatim; no ID3 tag is written.
type Muxer struct{ w ioutil.Writer }

func NewMuxer(w ioutil.Writer) *Muxer { return &Muxer{w: w} }

func (m *Muxer) WriteHeader(streams []*core.Stream) error { return nil }

func (m *Muxer) WritePacket(p *core.Packet) error {
	_, err := m.w.Write(p.Payload)
	return err
}

func (m *Muxer) Finalize() error { return m.w.Flush() }
