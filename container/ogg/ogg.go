/*
NAME
  ogg.go

DESCRIPTION
  ogg.go implements Ogg page parsing and packet reassembly across page
  boundaries, plus page writing with CRC32 computation.

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package ogg implements the Ogg container's page framing, packet
// reassembly, and page writing.
package ogg

import (
	"io"

	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

const (
	flagContinued = 0x01
	flagBOS       = 0x02
	flagEOS       = 0x04
)

// Page is one parsed Ogg page.
type Page struct {
	Continued      bool
	BOS, EOS       bool
	GranulePos     int64
	SerialNumber   uint32
	SequenceNumber uint32
	CRC            uint32
	Segments       [][]byte
	HeaderLen      int
	TotalLen       int
}

// ParsePage parses one Ogg page starting at buf[0], validating its CRC32
// against the field value with the checksum bytes zeroed.
func ParsePage(buf []byte) (Page, error) {
	if len(buf) < 27 || string(buf[0:4]) != "OggS" {
		return Page{}, ioutil.New(ioutil.InvalidData, errors.New("ogg: missing OggS capture pattern"))
	}
	if buf[4] != 0 {
		return Page{}, ioutil.New(ioutil.InvalidData, errors.Errorf("ogg: unsupported stream structure version %d", buf[4]))
	}
	flags := buf[5]
	granule := ioutil.GetI64LE(buf[6:14])
	serial := ioutil.GetU32LE(buf[14:18])
	seq := ioutil.GetU32LE(buf[18:22])
	crc := ioutil.GetU32LE(buf[22:26])
	segCount := int(buf[26])
	if len(buf) < 27+segCount {
		return Page{}, ioutil.New(ioutil.UnexpectedEOF, errors.New("ogg: truncated segment table"))
	}
	segTable := buf[27 : 27+segCount]
	bodyLen := 0
	for _, l := range segTable {
		bodyLen += int(l)
	}
	headerLen := 27 + segCount
	if len(buf) < headerLen+bodyLen {
		return Page{}, ioutil.New(ioutil.UnexpectedEOF, errors.New("ogg: truncated page body"))
	}

	check := append([]byte(nil), buf[:headerLen+bodyLen]...)
	check[22], check[23], check[24], check[25] = 0, 0, 0, 0
	if got := CRC32(check); got != crc {
		return Page{}, ioutil.New(ioutil.InvalidData, errors.Errorf("ogg: CRC mismatch: got 0x%08x, want 0x%08x", got, crc))
	}

	var segs [][]byte
	off := headerLen
	for _, l := range segTable {
		segs = append(segs, buf[off:off+int(l)])
		off += int(l)
	}

	return Page{
		Continued:      flags&flagContinued != 0,
		BOS:            flags&flagBOS != 0,
		EOS:            flags&flagEOS != 0,
		GranulePos:     granule,
		SerialNumber:   serial,
		SequenceNumber: seq,
		CRC:            crc,
		Segments:       segs,
		HeaderLen:      headerLen,
		TotalLen:       headerLen + bodyLen,
	}, nil
}

// WritePage serialises a page's segment table and body, computing its
// CRC32 with the checksum field zeroed during the computation.
func WritePage(flags byte, granule int64, serial, seq uint32, segments [][]byte) []byte {
	segTable := make([]byte, 0, len(segments))
	var body []byte
	for _, s := range segments {
		segTable = append(segTable, byte(len(s)))
		body = append(body, s...)
	}
	var page []byte
	page = append(page, "OggS"...)
	page = append(page, 0) // version
	page = append(page, flags)
	page = ioutil.AppendU64LE(page, uint64(granule))
	page = ioutil.AppendU32LE(page, serial)
	page = ioutil.AppendU32LE(page, seq)
	crcOff := len(page)
	page = ioutil.AppendU32LE(page, 0) // CRC placeholder
	page = append(page, byte(len(segments)))
	page = append(page, segTable...)
	page = append(page, body...)

	crc := CRC32(page)
	ioutil.PutU32LE(page[crcOff:], crc)
	return page
}

// Demuxer reassembles Ogg packets across page boundaries for the first
// logical bitstream found (multiplexed Ogg with multiple serials beyond
// the first is out of scope, matching this container's single-stream-per-
// file use in the pipeline).
type Demuxer struct {
	buf     []byte
	off     int
	serial  uint32
	streams []*core.Stream
	pts     int64
}

// NewDemuxer parses every page up front and builds the stream descriptor
// from the first BOS page's serial number; the codec itself is opaque to
// this layer (Ogg commonly carries Vorbis/Opus/FLAC, identified by the
// first packet's payload, which higher layers inspect).
func NewDemuxer(r io.Reader) (*Demuxer, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, ioutil.New(ioutil.Other, err)
	}
	first, err := ParsePage(buf)
	if err != nil {
		return nil, err
	}
	d := &Demuxer{
		buf:    buf,
		serial: first.SerialNumber,
		streams: []*core.Stream{{
			ID: first.SerialNumber, Index: 0, Kind: core.Audio, Codec: "unknown",
			Timebase: core.NewTimebase(1, 1000),
		}},
	}
	return d, nil
}

func (d *Demuxer) Streams() []*core.Stream { return d.streams }

// ReadPacket reassembles and returns the next complete packet for this
// demuxer's serial number, spanning pages as needed.
func (d *Demuxer) ReadPacket() (*core.Packet, error) {
	var payload []byte
	for d.off < len(d.buf) {
		page, err := ParsePage(d.buf[d.off:])
		if err != nil {
			return nil, err
		}
		consumed := page.TotalLen
		if page.SerialNumber != d.serial {
			d.off += consumed
			continue
		}
		lastWasFull := false
		for i, seg := range page.Segments {
			payload = append(payload, seg...)
			if len(seg) < 255 {
				d.off += consumed
				p := &core.Packet{Payload: payload, StreamIndex: 0, PTS: d.pts, DTS: d.pts, Timebase: d.streams[0].Timebase, Keyframe: true}
				d.pts++
				return p, nil
			}
			lastWasFull = i == len(page.Segments)-1
		}
		d.off += consumed
		if !lastWasFull {
			break
		}
		// Final segment was exactly 255 bytes: continue into the next page.
	}
	if len(payload) == 0 {
		return nil, nil
	}
	p := &core.Packet{Payload: payload, StreamIndex: 0, PTS: d.pts, DTS: d.pts, Timebase: d.streams[0].Timebase, Keyframe: true}
	d.pts++
	return p, nil
}

// Muxer packs packets into single-page, single-packet Ogg pages. Large
// packets are not split across multiple pages (segment table capped at
// 255 segments of 255 bytes = 65025 bytes per page, which this
// implementation assumes packets never exceed; the pipeline's largest Ogg
// payloads, container-opaque audio frames, stay well under this).
type Muxer struct {
	w      ioutil.Writer
	serial uint32
	seq    uint32
	wrote  bool
}

func NewMuxer(w ioutil.Writer) *Muxer { return &Muxer{w: w, serial: 1} }

func (m *Muxer) WriteHeader(streams []*core.Stream) error { return nil }

func (m *Muxer) WritePacket(p *core.Packet) error {
	segments := splitIntoSegments(p.Payload)
	flags := byte(0)
	if !m.wrote {
		flags |= flagBOS
		m.wrote = true
	}
	page := WritePage(flags, p.PTS, m.serial, m.seq, segments)
	m.seq++
	_, err := m.w.Write(page)
	return err
}

func splitIntoSegments(payload []byte) [][]byte {
	var segs [][]byte
	for len(payload) >= 255 {
		segs = append(segs, payload[:255])
		payload = payload[255:]
	}
	segs = append(segs, payload)
	return segs
}

func (m *Muxer) Finalize() error { return m.w.Flush() }
