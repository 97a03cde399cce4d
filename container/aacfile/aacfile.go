/*
NAME
  aacfile.go

DESCRIPTION
  aacfile.go implements the raw ADTS-AAC container: a sequence of
  self-synchronizing ADTS frames directly at the file level (as opposed to
  AAC samples carried inside an MP4/MOV box tree).

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package aacfile implements the bare ADTS-AAC container (as distinct from
// package aac, which frames individual ADTS headers).
package aacfile

import (
	"io"

	"github.com/coastalsound/transcode/codec/aac"
	"github.com/coastalsound/transcode/codec/codecutil"
	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

const samplesPerFrame = 1024

// Demuxer reads consecutive ADTS frames from a raw .aac file.
type Demuxer struct {
	buf     []byte
	off     int
	streams []*core.Stream
	pts     int64
}

// NewDemuxer parses the first ADTS header to build the stream descriptor,
// then exposes every frame as one packet.
func NewDemuxer(r io.Reader) (*Demuxer, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, ioutil.New(ioutil.Other, err)
	}
	hdr, _, err := aac.ParseADTSHeader(buf)
	if err != nil {
		return nil, err
	}
	tb := core.NewTimebase(1, aac.SampleRateForIndex(hdr.SampleRateIndex))
	d := &Demuxer{
		buf: buf,
		streams: []*core.Stream{{
			ID: 0, Index: 0, Kind: core.Audio, Codec: codecutil.AAC, Timebase: tb,
			Channels: hdr.ChannelConfig, SampleRate: aac.SampleRateForIndex(hdr.SampleRateIndex),
		}},
	}
	return d, nil
}

func (d *Demuxer) Streams() []*core.Stream { return d.streams }

func (d *Demuxer) ReadPacket() (*core.Packet, error) {
	if d.off >= len(d.buf) {
		return nil, nil
	}
	hdr, _, err := aac.ParseADTSHeader(d.buf[d.off:])
	if err != nil {
		return nil, err
	}
	if d.off+hdr.FrameLength > len(d.buf) {
		return nil, ioutil.New(ioutil.UnexpectedEOF, errNotEnoughData(hdr.FrameLength, len(d.buf)-d.off))
	}
	payload := append([]byte(nil), d.buf[d.off:d.off+hdr.FrameLength]...)
	p := &core.Packet{
		Payload:     payload,
		StreamIndex: 0,
		PTS:         d.pts,
		DTS:         d.pts,
		Timebase:    d.streams[0].Timebase,
		Keyframe:    true,
	}
	d.pts += samplesPerFrame
	d.off += hdr.FrameLength
	return p, nil
}

func errNotEnoughData(want, got int) error {
	return ioutil.Newf(ioutil.UnexpectedEOF, "aacfile: frame needs %d bytes, only %d remain", want, got)
}

// Muxer concatenates ADTS frame packets verbatim.
type Muxer struct {
	w ioutil.Writer
}

func NewMuxer(w ioutil.Writer) *Muxer { return &Muxer{w: w} }

func (m *Muxer) WriteHeader(streams []*core.Stream) error { return nil }

func (m *Muxer) WritePacket(p *core.Packet) error {
	_, err := m.w.Write(p.Payload)
	return err
}

func (m *Muxer) Finalize() error { return m.w.Flush() }
