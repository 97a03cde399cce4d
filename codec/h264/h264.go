/*
NAME
  h264.go

DESCRIPTION
  h264.go splits an Annex-B H.264 bytestream into NAL units, strips
  emulation-prevention bytes, and classifies NAL unit types (SPS, PPS, IDR).

AUTHOR
  Dan Kortschak <dan@ausocean.org>
  Saxon Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package h264 implements H.264 NAL-unit framing: splitting an Annex-B
// bytestream into units, removing emulation-prevention bytes, and the
// minimal SPS/PPS bootstrap an encoder prefixes once per stream.
package h264

import (
	"bytes"

	"github.com/coastalsound/transcode/codec/codecutil"
	"github.com/coastalsound/transcode/core"
)

// NAL unit type values relevant to framing.
const (
	NALTypeNonIDR = 1
	NALTypeIDR    = 5
	NALTypeSEI    = 6
	NALTypeSPS    = 7
	NALTypePPS    = 8
)

// NALUnit is one parsed NAL unit: its type and its escaped (emulation bytes
// removed) RBSP payload, including the one-byte NAL header.
type NALUnit struct {
	ForbiddenZero bool
	RefIdc        uint8
	Type          uint8
	RBSP          []byte // header byte + de-escaped payload
}

// IsKeyframe reports whether this NAL unit is an IDR slice.
func (n NALUnit) IsKeyframe() bool { return n.Type == NALTypeIDR }

// SplitNALUnits scans buf for Annex-B start codes (00 00 01 or 00 00 00 01)
// and returns each NAL unit found, with emulation-prevention bytes removed
// from its payload.
func SplitNALUnits(buf []byte) []NALUnit {
	starts := findStartCodes(buf)
	var units []NALUnit
	for i, s := range starts {
		end := len(buf)
		if i+1 < len(starts) {
			end = starts[i+1].codeStart
		}
		body := buf[s.bodyStart:end]
		if len(body) == 0 {
			continue
		}
		units = append(units, parseNAL(body))
	}
	return units
}

type startCode struct {
	codeStart int // index of the first 0x00 of the start code
	bodyStart int // index immediately after the start code
}

// findStartCodes scans buf for Annex-B start codes using codecutil's
// buffered byte scanner rather than indexing buf by hand.
func findStartCodes(buf []byte) []startCode {
	c := codecutil.NewByteScanner(bytes.NewReader(buf), make([]byte, 4<<10))
	var out []startCode
	var hist [4]byte // hist[3] is the most recently read byte
	pos := -1
	for {
		b, err := c.ReadByte()
		if err != nil {
			break
		}
		pos++
		hist[0], hist[1], hist[2], hist[3] = hist[1], hist[2], hist[3], b
		if pos < 2 || hist[1] != 0 || hist[2] != 0 || hist[3] != 1 {
			continue
		}
		codeStart := pos - 2
		if codeStart > 0 && hist[0] == 0 {
			codeStart-- // prefer the 4-byte form
		}
		out = append(out, startCode{codeStart: codeStart, bodyStart: pos + 1})
	}
	return out
}

func parseNAL(body []byte) NALUnit {
	header := body[0]
	n := NALUnit{
		ForbiddenZero: header&0x80 != 0,
		RefIdc:        (header >> 5) & 0x3,
		Type:          header & 0x1F,
	}
	n.RBSP = removeEmulationPrevention(body)
	return n
}

// removeEmulationPrevention deletes every 0x03 byte that follows a 0x00 0x00
// pair and precedes a byte in {0x00,0x01,0x02,0x03}, per the Annex-B
// emulation-prevention scheme.
func removeEmulationPrevention(body []byte) []byte {
	out := make([]byte, 0, len(body))
	zeros := 0
	for i := 0; i < len(body); i++ {
		b := body[i]
		if zeros >= 2 && b == 0x03 && i+1 < len(body) && body[i+1] <= 0x03 {
			zeros = 0
			continue
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

// WriteAnnexB writes one NAL unit's RBSP payload (header byte included)
// prefixed with a 4-byte start code, the canonical Annex-B framing our
// encoder and muxers use on write.
func WriteAnnexB(dst []byte, rbsp []byte) []byte {
	dst = append(dst, 0x00, 0x00, 0x00, 0x01)
	return append(dst, rbsp...)
}

// Decoder turns Annex-B-framed packets into video Frames carrying the
// escaped NAL bitstream unchanged; it does not decode pixels.
type Decoder struct {
	width, height uint32
	streamIdx     uint32
	timebase      core.Timebase
}

func NewDecoder(width, height uint32, streamIndex uint32, tb core.Timebase) *Decoder {
	return &Decoder{width: width, height: height, streamIdx: streamIndex, timebase: tb}
}

func (d *Decoder) Decode(p *core.Packet) ([]*core.Frame, error) {
	if p.EOS() {
		return nil, nil
	}
	units := SplitNALUnits(p.Payload)
	keyframe := false
	for _, u := range units {
		if u.IsKeyframe() {
			keyframe = true
		}
	}
	vf := &core.VideoFrame{
		Data:     append([]byte(nil), p.Payload...),
		Width:    d.width,
		Height:   d.height,
		Format:   core.YUV420,
		Keyframe: keyframe || p.Keyframe,
	}
	f := core.NewVideoFrame(vf, d.timebase, d.streamIdx)
	f.PTS = p.PTS
	return []*core.Frame{f}, nil
}

func (d *Decoder) Flush() ([]*core.Frame, error) { return nil, nil }

// Encoder prefixes a minimal SPS+PPS Annex-B pair once, then writes each
// frame's bytestream unchanged, propagating the keyframe flag to the
// output packet.
type Encoder struct {
	streamIdx    uint32
	timebase     core.Timebase
	wroteHeaders bool
	sps, pps     []byte
}

// NewEncoder returns an Encoder that prefixes the given (already
// NAL-header-included) SPS and PPS RBSPs once before the first frame.
func NewEncoder(sps, pps []byte, streamIndex uint32, tb core.Timebase) *Encoder {
	return &Encoder{sps: sps, pps: pps, streamIdx: streamIndex, timebase: tb}
}

func (e *Encoder) Encode(f *core.Frame) ([]*core.Packet, error) {
	if f.IsEmpty() {
		return nil, nil
	}
	var payload []byte
	if !e.wroteHeaders {
		payload = WriteAnnexB(payload, e.sps)
		payload = WriteAnnexB(payload, e.pps)
		e.wroteHeaders = true
	}
	payload = append(payload, f.Video.Data...)
	p := &core.Packet{
		Payload:     payload,
		StreamIndex: e.streamIdx,
		PTS:         f.PTS,
		DTS:         f.PTS,
		Timebase:    e.timebase,
		Keyframe:    f.Video.Keyframe,
	}
	return []*core.Packet{p}, nil
}

func (e *Encoder) Flush() ([]*core.Packet, error) { return nil, nil }

// DefaultSPSPPS returns a minimal, syntactically-valid (but not
// rate-control-tuned) SPS/PPS pair for width x height, suitable for the
// passthrough encoder's one-time bootstrap.
func DefaultSPSPPS(width, height uint32) (sps, pps []byte) {
	// A fixed, small Baseline-profile SPS/PPS pair. This encoder does not
	// perform real H.264 encoding, so the SPS/PPS only need to be
	// structurally well-formed NAL units, not describe the actual
	// resolution precisely.
	sps = []byte{0x67, 0x42, 0x00, 0x1e, 0x96, 0x54, 0x05, 0x01, 0xe9}
	pps = []byte{0x68, 0xce, 0x3c, 0x80}
	return sps, pps
}
