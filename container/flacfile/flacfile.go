/*
NAME
  flacfile.go

DESCRIPTION
  flacfile.go implements the native FLAC container: the `fLaC` signature,
  metadata block iteration (STREAMINFO first), and the audio frame stream
  that follows.

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package flacfile implements the FLAC container's demuxer and muxer,
// delegating subframe decode/encode to package codec/flac.
package flacfile

import (
	"io"

	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/codec/codecutil"
	"github.com/coastalsound/transcode/codec/flac"
	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

const blockTypeStreamInfo = 0

// Demuxer reads FLAC metadata blocks, then emits each subsequent audio
// frame as one packet (frame boundaries found by re-parsing headers,
// since FLAC frames carry no explicit length field).
type Demuxer struct {
	si      flac.StreamInfo
	buf     []byte
	off     int
	streams []*core.Stream
	pts     int64
}

// NewDemuxer validates the fLaC signature, parses STREAMINFO (and skips
// any other metadata blocks), and positions the packet cursor at the
// first audio frame.
func NewDemuxer(r io.Reader) (*Demuxer, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, ioutil.New(ioutil.Other, err)
	}
	if len(buf) < 4 || string(buf[0:4]) != "fLaC" {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("flacfile: missing fLaC signature"))
	}
	off := 4
	var si flac.StreamInfo
	var gotStreamInfo bool
	for {
		if off+4 > len(buf) {
			return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("flacfile: truncated metadata block header"))
		}
		last := buf[off]&0x80 != 0
		typ := buf[off] & 0x7F
		size := int(buf[off+1])<<16 | int(buf[off+2])<<8 | int(buf[off+3])
		body := off + 4
		if body+size > len(buf) {
			return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("flacfile: truncated metadata block body"))
		}
		if typ == blockTypeStreamInfo {
			si, err = flac.ParseStreamInfo(buf[body : body+size])
			if err != nil {
				return nil, err
			}
			gotStreamInfo = true
		}
		off = body + size
		if last {
			break
		}
	}
	if !gotStreamInfo {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("flacfile: first metadata block must be STREAMINFO"))
	}

	d := &Demuxer{
		si:  si,
		buf: buf,
		off: off,
		streams: []*core.Stream{{
			ID: 0, Index: 0, Kind: core.Audio, Codec: codecutil.FLAC,
			Timebase: core.NewTimebase(1, si.SampleRate),
			Channels: si.Channels, SampleRate: si.SampleRate, BitDepth: si.BitsPerSample,
		}},
	}
	return d, nil
}

// StreamInfo returns the parsed STREAMINFO block.
func (d *Demuxer) StreamInfo() flac.StreamInfo { return d.si }

func (d *Demuxer) Streams() []*core.Stream { return d.streams }

// ReadPacket runs flac.DecodeFrame on the next frame to learn its block
// size (needed for PTS bookkeeping; STREAMINFO's MaxBlockSize is used if
// that decode fails), then hands back the frame's raw bytes as the payload.
// Frame length is found by scanning for the next valid frame sync (or
// EOF), since FLAC frames are not length-prefixed.
func (d *Demuxer) ReadPacket() (*core.Packet, error) {
	if d.off >= len(d.buf) {
		return nil, nil
	}
	end := findNextFrameSync(d.buf, d.off+2)
	payload := append([]byte(nil), d.buf[d.off:end]...)

	_, hdr, err := flac.DecodeFrame(payload, d.si)
	blockSize := d.si.MaxBlockSize
	if err == nil {
		blockSize = uint16(hdr.BlockSize)
	}

	p := &core.Packet{
		Payload:     payload,
		StreamIndex: 0,
		PTS:         d.pts,
		DTS:         d.pts,
		Timebase:    d.streams[0].Timebase,
		Keyframe:    true,
	}
	d.pts += int64(blockSize)
	d.off = end
	return p, nil
}

// findNextFrameSync scans buf from start for the next 0xFFF8 or 0xFFF9
// frame sync byte pair, or returns len(buf) if none is found (the last frame runs to
// EOF).
func findNextFrameSync(buf []byte, start int) int {
	for i := start; i+1 < len(buf); i++ {
		if buf[i] == 0xFF && buf[i+1]&0xFE == 0xF8 {
			return i
		}
	}
	return len(buf)
}

// Muxer writes the fLaC signature, a STREAMINFO block, then each packet's
// FLAC frame bytes verbatim.
type Muxer struct {
	w          ioutil.Writer
	si         flac.StreamInfo
	wroteMeta  bool
}

func NewMuxer(w ioutil.Writer) *Muxer { return &Muxer{w: w} }

// SetStreamInfo configures the STREAMINFO block this muxer writes.
func (m *Muxer) SetStreamInfo(si flac.StreamInfo) { m.si = si }

func (m *Muxer) WriteHeader(streams []*core.Stream) error {
	if m.wroteMeta {
		return nil
	}
	if m.si.SampleRate == 0 && len(streams) > 0 {
		s := streams[0]
		m.si = flac.StreamInfo{SampleRate: s.SampleRate, Channels: s.Channels, BitsPerSample: s.BitDepth}
	}
	var buf []byte
	buf = append(buf, "fLaC"...)
	body := encodeStreamInfo(m.si)
	buf = append(buf, 0x80) // last-metadata-block flag set, type 0 (STREAMINFO)
	buf = append(buf, byte(len(body)>>16), byte(len(body)>>8), byte(len(body)))
	buf = append(buf, body...)
	if _, err := m.w.Write(buf); err != nil {
		return err
	}
	m.wroteMeta = true
	return nil
}

func encodeStreamInfo(si flac.StreamInfo) []byte {
	buf := make([]byte, 34)
	ioutil.PutU16BE(buf[0:2], si.MinBlockSize)
	ioutil.PutU16BE(buf[2:4], si.MaxBlockSize)
	buf[4], buf[5], buf[6] = byte(si.MinFrameSize>>16), byte(si.MinFrameSize>>8), byte(si.MinFrameSize)
	buf[7], buf[8], buf[9] = byte(si.MaxFrameSize>>16), byte(si.MaxFrameSize>>8), byte(si.MaxFrameSize)
	// sample_rate(20) | channels-1(3) | bps-1(5) | total_samples(36), packed big-endian bitfields.
	chMinus1 := uint32(si.Channels) - 1
	bpsMinus1 := uint32(si.BitsPerSample) - 1
	word := si.SampleRate<<12 | chMinus1<<9 | bpsMinus1<<4 | uint32(si.TotalSamples>>32)
	ioutil.PutU32BE(buf[10:14], word)
	ioutil.PutU32BE(buf[14:18], uint32(si.TotalSamples))
	copy(buf[18:34], si.MD5[:])
	return buf
}

func (m *Muxer) WritePacket(p *core.Packet) error {
	_, err := m.w.Write(p.Payload)
	return err
}

func (m *Muxer) Finalize() error { return m.w.Flush() }
