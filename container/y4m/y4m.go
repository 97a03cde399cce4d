/*
NAME
  y4m.go

DESCRIPTION
  y4m.go implements the YUV4MPEG2 (Y4M) raw-video container: a single
  text stream header followed by FRAME-delimited planar payloads.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package y4m implements the YUV4MPEG2 container's demuxer and muxer.
package y4m

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/coastalsound/transcode/codec/codecutil"
	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

// Header holds the parsed YUV4MPEG2 stream header tags.
type Header struct {
	Width, Height int
	FPSNum, FPSDen int
	Interlace     string
	AspectNum, AspectDen int
	Chroma        string
	Raw           string // the exact header line, minus trailing '\n', for byte-identical remux
}

func planeFactor(chroma string) int {
	switch chroma {
	case "", "420", "420jpeg", "420paldv", "420mpeg2", "mono":
		return 1
	case "422":
		return 2
	case "444":
		return 3
	default:
		return 1
	}
}

// FrameSize returns the byte length of one raw planar frame for h.
func (h Header) FrameSize() int { return planarFrameSize(h) }

// Demuxer reads a Y4M stream header then iterates FRAME records.
type Demuxer struct {
	hdr     Header
	buf     []byte
	off     int
	streams []*core.Stream
	pts     int64
}

// NewDemuxer parses the YUV4MPEG2 header line and prepares for FRAME
// iteration.
func NewDemuxer(r io.Reader) (*Demuxer, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, ioutil.New(ioutil.Other, err)
	}
	nl := bytes.IndexByte(buf, '\n')
	if nl < 0 {
		return nil, ioutil.New(ioutil.InvalidData, errMsg("y4m: missing header terminator"))
	}
	line := string(buf[:nl])
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "YUV4MPEG2" {
		return nil, ioutil.New(ioutil.InvalidData, errMsg("y4m: missing YUV4MPEG2 signature"))
	}
	h := Header{Raw: line, Chroma: "420"}
	for _, tag := range fields[1:] {
		if len(tag) == 0 {
			continue
		}
		switch tag[0] {
		case 'W':
			h.Width, _ = strconv.Atoi(tag[1:])
		case 'H':
			h.Height, _ = strconv.Atoi(tag[1:])
		case 'F':
			parts := strings.SplitN(tag[1:], ":", 2)
			if len(parts) == 2 {
				h.FPSNum, _ = strconv.Atoi(parts[0])
				h.FPSDen, _ = strconv.Atoi(parts[1])
			}
		case 'I':
			h.Interlace = tag[1:]
		case 'A':
			parts := strings.SplitN(tag[1:], ":", 2)
			if len(parts) == 2 {
				h.AspectNum, _ = strconv.Atoi(parts[0])
				h.AspectDen, _ = strconv.Atoi(parts[1])
			}
		case 'C':
			h.Chroma = tag[1:]
		}
	}
	if h.Width <= 0 || h.Height <= 0 {
		return nil, ioutil.New(ioutil.InvalidData, errMsg("y4m: width/height must be > 0"))
	}
	if h.FPSNum <= 0 || h.FPSDen <= 0 {
		h.FPSNum, h.FPSDen = 25, 1
	}
	d := &Demuxer{
		hdr: h,
		buf: buf,
		off: nl + 1,
		streams: []*core.Stream{{
			ID: 0, Index: 0, Kind: core.Video, Codec: codecutil.RawVideo,
			Timebase: core.NewTimebase(uint32(h.FPSDen), uint32(h.FPSNum)),
			Width:    uint32(h.Width), Height: uint32(h.Height),
		}},
	}
	return d, nil
}

func errMsg(s string) error { return ioutil.Newf(ioutil.InvalidData, "%s", s) }

// Header returns the parsed stream header, used to seed a Y4M muxer.
func (d *Demuxer) Header() Header { return d.hdr }

func (d *Demuxer) Streams() []*core.Stream { return d.streams }

func (d *Demuxer) ReadPacket() (*core.Packet, error) {
	if d.off >= len(d.buf) {
		return nil, nil
	}
	rest := d.buf[d.off:]
	if len(rest) < 6 || string(rest[:5]) != "FRAME" {
		return nil, ioutil.New(ioutil.InvalidData, errMsg("y4m: expected FRAME marker"))
	}
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 {
		return nil, ioutil.New(ioutil.InvalidData, errMsg("y4m: unterminated FRAME header"))
	}
	frameHdrLen := nl + 1
	size := planarFrameSize(d.hdr)
	if frameHdrLen+size > len(rest) {
		return nil, ioutil.Newf(ioutil.UnexpectedEOF, "y4m: frame payload needs %d bytes, only %d remain", size, len(rest)-frameHdrLen)
	}
	payload := append([]byte(nil), rest[frameHdrLen:frameHdrLen+size]...)
	p := &core.Packet{
		Payload:     payload,
		StreamIndex: 0,
		PTS:         d.pts,
		DTS:         d.pts,
		Timebase:    d.streams[0].Timebase,
		Keyframe:    true,
	}
	d.pts++
	d.off += frameHdrLen + size
	return p, nil
}

// planarFrameSize computes one frame's size: a width*height luma plane
// plus two chroma planes of (width/2)*(height/2) for 420, (width/2)*height
// for 422 and width*height for 444; mono has no chroma planes.
func planarFrameSize(h Header) int {
	if h.Chroma == "mono" {
		return h.Width * h.Height
	}
	pf := planeFactor(h.Chroma)
	lumaPlane := h.Width * h.Height
	var chromaPlane int
	switch pf {
	case 1: // 4:2:0: chroma planes are quarter resolution each
		chromaPlane = (h.Width / 2) * (h.Height / 2)
	case 2: // 4:2:2: chroma planes are half horizontal resolution
		chromaPlane = (h.Width / 2) * h.Height
	case 3: // 4:4:4: full resolution chroma
		chromaPlane = h.Width * h.Height
	}
	return lumaPlane + 2*chromaPlane
}

// Muxer writes a Y4M header verbatim then FRAME-delimited packets.
type Muxer struct {
	w        ioutil.Writer
	hdr      Header
	wroteHdr bool
}

func NewMuxer(w ioutil.Writer) *Muxer { return &Muxer{w: w} }

// SetHeader configures the exact header line this muxer writes, used by
// the pipeline to carry a Y4M source's header across unchanged.
func (m *Muxer) SetHeader(h Header) { m.hdr = h }

func (m *Muxer) WriteHeader(streams []*core.Stream) error {
	if m.wroteHdr {
		return nil
	}
	line := m.hdr.Raw
	if line == "" && len(streams) > 0 {
		s := streams[0]
		line = "YUV4MPEG2 W" + strconv.Itoa(int(s.Width)) + " H" + strconv.Itoa(int(s.Height)) + " F" + strconv.Itoa(int(s.Timebase.Den)) + ":" + strconv.Itoa(int(s.Timebase.Num)) + " Ip A1:1 C420"
		m.hdr.Width, m.hdr.Height, m.hdr.Chroma = int(s.Width), int(s.Height), "420"
	}
	if _, err := m.w.Write([]byte(line + "\n")); err != nil {
		return err
	}
	m.wroteHdr = true
	return nil
}

func (m *Muxer) WritePacket(p *core.Packet) error {
	if _, err := m.w.Write([]byte("FRAME\n")); err != nil {
		return err
	}
	_, err := m.w.Write(p.Payload)
	return err
}

func (m *Muxer) Finalize() error { return m.w.Flush() }
