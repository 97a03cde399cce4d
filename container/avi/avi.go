/*
NAME
  avi.go

DESCRIPTION
  avi.go implements the AVI (RIFF) container: hdrl/avih/strl/strh/strf
  parsing, movi chunk iteration, and an idx1-writing muxer for the
  single-stream-video case.

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package avi implements the AVI container's demuxer and muxer.
package avi

import (
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

const keyframeFlag = 0x10 // AVIIF_KEYFRAME in idx1 entries

// Track is one parsed strl's header fields.
type Track struct {
	FccType    string // "vids" or "auds"
	FccHandler string
	Width      uint32
	Height     uint32
	Scale      uint32
	Rate       uint32
	Channels   uint16
	SampleRate uint32
	BitDepth   uint16
}

// Demuxer walks an AVI file's hdrl and movi, exposing each strl as a
// core.Stream and iterating movi's data chunks as packets.
type Demuxer struct {
	tracks        []Track
	streams       []*core.Stream
	packets       []*core.Packet
	next          int
	microSecPerFrame uint32
}

// NewDemuxer reads buf fully, requires a RIFF/AVI header with an hdrl
// list and a movi list, and builds a flat packet list in movi order
// (this container's files are read fully into memory, matching this
// module's other demuxers).
func NewDemuxer(r io.Reader) (*Demuxer, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, ioutil.New(ioutil.Other, err)
	}
	if len(buf) < 12 || string(buf[0:4]) != "RIFF" || string(buf[8:12]) != "AVI " {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("avi: missing RIFF/AVI header"))
	}

	d := &Demuxer{}
	var gotHdrl, gotMovi bool
	var pktCounters []int
	var idx1 []byte

	err = iterateChunks(buf[12:], func(id string, isList bool, body []byte) error {
		if isList {
			switch id {
			case "hdrl":
				gotHdrl = true
				return d.parseHdrl(body)
			case "movi":
				gotMovi = true
				pktCounters = make([]int, len(d.tracks))
				return d.parseMovi(body, pktCounters)
			}
			return nil
		}
		if id == "idx1" {
			idx1 = body
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !gotHdrl {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("avi: missing hdrl list"))
	}
	if !gotMovi {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("avi: missing movi list"))
	}
	if len(idx1) > 0 {
		applyIndex(d.packets, idx1)
	}
	return d, nil
}

// applyIndex refines each packet's keyframe flag from idx1, which
// records it precisely; without an index, parseMovi's chunk-type-code
// guess is all that's available.
func applyIndex(packets []*core.Packet, idx1 []byte) {
	const entrySize = 16
	for i := 0; i*entrySize+entrySize <= len(idx1) && i < len(packets); i++ {
		e := idx1[i*entrySize : i*entrySize+entrySize]
		flags := ioutil.GetU32LE(e[4:8])
		packets[i].Keyframe = flags&keyframeFlag != 0
	}
}

func (d *Demuxer) parseHdrl(body []byte) error {
	return iterateChunks(body, func(id string, isList bool, chunkBody []byte) error {
		if isList && id == "strl" {
			tr, err := parseStrl(chunkBody)
			if err != nil {
				return err
			}
			d.tracks = append(d.tracks, tr)
			return nil
		}
		if !isList && id == "avih" {
			if len(chunkBody) < 56 {
				return ioutil.New(ioutil.UnexpectedEOF, errors.New("avi: avih chunk too short"))
			}
			d.microSecPerFrame = ioutil.GetU32LE(chunkBody[0:4])
		}
		return nil
	})
}

func parseStrl(body []byte) (Track, error) {
	var tr Track
	err := iterateChunks(body, func(id string, isList bool, chunkBody []byte) error {
		if isList {
			return nil
		}
		switch id {
		case "strh":
			if len(chunkBody) < 64 {
				return ioutil.New(ioutil.UnexpectedEOF, errors.New("avi: strh chunk too short"))
			}
			tr.FccType = string(chunkBody[0:4])
			tr.FccHandler = string(chunkBody[4:8])
			tr.Scale = ioutil.GetU32LE(chunkBody[20:24])
			tr.Rate = ioutil.GetU32LE(chunkBody[24:28])
		case "strf":
			switch tr.FccType {
			case "vids":
				if len(chunkBody) < 40 {
					return ioutil.New(ioutil.UnexpectedEOF, errors.New("avi: vids strf too short"))
				}
				tr.Width = ioutil.GetU32LE(chunkBody[4:8])
				tr.Height = ioutil.GetU32LE(chunkBody[8:12])
			case "auds":
				if len(chunkBody) < 16 {
					return ioutil.New(ioutil.UnexpectedEOF, errors.New("avi: auds strf too short"))
				}
				tr.Channels = ioutil.GetU16LE(chunkBody[2:4])
				tr.SampleRate = ioutil.GetU32LE(chunkBody[4:8])
				tr.BitDepth = ioutil.GetU16LE(chunkBody[14:16])
			}
		}
		return nil
	})
	return tr, err
}

// parseMovi walks movi's flat data chunks ("00dc"/"00db"/"01wb" etc.),
// appending one packet per chunk. "rec " sub-lists (interleaved
// recording groups) are not unpacked; this muxer never writes them.
func (d *Demuxer) parseMovi(body []byte, pktCounters []int) error {
	d.streams = make([]*core.Stream, len(d.tracks))
	for i, tr := range d.tracks {
		kind := core.Subtitle
		switch tr.FccType {
		case "vids":
			kind = core.Video
		case "auds":
			kind = core.Audio
		}
		tb := core.NewTimebase(1, 1000)
		if kind == core.Video && tr.Rate != 0 {
			tb = core.NewTimebase(tr.Scale, tr.Rate)
		} else if kind == core.Audio && tr.SampleRate != 0 {
			tb = core.NewTimebase(1, tr.SampleRate)
		}
		d.streams[i] = &core.Stream{
			ID: uint32(i), Index: i, Kind: kind, Codec: aviCodecName(tr),
			Timebase: tb, Width: tr.Width, Height: tr.Height,
			SampleRate: tr.SampleRate, Channels: uint8(tr.Channels), BitDepth: uint8(tr.BitDepth),
		}
	}

	return iterateChunks(body, func(id string, isList bool, chunkBody []byte) error {
		if isList {
			return nil
		}
		if len(id) != 4 {
			return nil
		}
		streamNum, err := strconv.Atoi(id[0:2])
		if err != nil || streamNum >= len(d.tracks) {
			return nil
		}
		typeCode := id[2:4]
		if typeCode != "dc" && typeCode != "db" && typeCode != "wb" && typeCode != "tx" {
			return nil
		}
		n := pktCounters[streamNum]
		pktCounters[streamNum]++
		// Chunk index stands in for PTS; strl carries no per-chunk
		// duration, only a stream-wide scale/rate.
		pts := int64(n)
		d.packets = append(d.packets, &core.Packet{
			Payload:     append([]byte(nil), chunkBody...),
			StreamIndex: uint32(streamNum),
			PTS:         pts,
			DTS:         pts,
			Timebase:    d.streams[streamNum].Timebase,
			Keyframe:    typeCode == "dc" || typeCode == "db" || typeCode == "wb",
		})
		return nil
	})
}

func aviCodecName(tr Track) string {
	switch tr.FccHandler {
	case "H264", "h264", "avc1":
		return "h264"
	default:
		if tr.FccType == "auds" {
			return "pcm_s16le"
		}
		return ""
	}
}

// MicroSecPerFrame returns avih's reference frame interval in
// microseconds (0 if unset).
func (d *Demuxer) MicroSecPerFrame() uint32 { return d.microSecPerFrame }

func (d *Demuxer) Streams() []*core.Stream { return d.streams }

func (d *Demuxer) ReadPacket() (*core.Packet, error) {
	if d.next >= len(d.packets) {
		return nil, nil
	}
	p := d.packets[d.next]
	d.next++
	return p, nil
}

// iterateChunks walks RIFF chunks in buf (ckID[4]+ckSize[4 LE]+data,
// padded to an even boundary). LIST chunks are reported with id set to
// their listType and isList true; fn's body is the list's sub-chunk
// bytes (listType already consumed).
func iterateChunks(buf []byte, fn func(id string, isList bool, body []byte) error) error {
	pos := 0
	for pos+8 <= len(buf) {
		ckID := string(buf[pos : pos+4])
		ckSize := ioutil.GetU32LE(buf[pos+4 : pos+8])
		dataStart := pos + 8
		dataEnd := dataStart + int(ckSize)
		if dataEnd > len(buf) {
			return ioutil.New(ioutil.UnexpectedEOF, errors.Errorf("avi: chunk %q size %d runs past buffer", ckID, ckSize))
		}
		data := buf[dataStart:dataEnd]
		if ckID == "LIST" {
			if len(data) < 4 {
				return ioutil.New(ioutil.UnexpectedEOF, errors.New("avi: LIST chunk missing listType"))
			}
			if err := fn(string(data[0:4]), true, data[4:]); err != nil {
				return err
			}
		} else {
			if err := fn(ckID, false, data); err != nil {
				return err
			}
		}
		pos = dataEnd
		if ckSize%2 == 1 {
			pos++ // pad byte
		}
	}
	return nil
}

// Muxer writes a single video stream plus an idx1 index, matching this
// container's muxer scope: multi-stream interleaving and audio index
// entries are left to the remux-verbatim path.
type Muxer struct {
	w           ioutil.Writer
	streams     []*core.Stream
	wroteHeader bool
	moviChunks  [][]byte
	keyframes   []bool
	frameCount  uint32
}

func NewMuxer(w ioutil.Writer) *Muxer { return &Muxer{w: w} }

func (m *Muxer) WriteHeader(streams []*core.Stream) error {
	m.streams = streams
	m.wroteHeader = true
	return nil
}

func (m *Muxer) WritePacket(p *core.Packet) error {
	if !m.wroteHeader {
		return errors.New("avi: WritePacket called before WriteHeader")
	}
	if int(p.StreamIndex) >= len(m.streams) {
		return ioutil.New(ioutil.InvalidData, errors.Errorf("avi: packet references unknown stream %d", p.StreamIndex))
	}
	kind := m.streams[p.StreamIndex].Kind
	typeCode := "wb"
	if kind == core.Video {
		typeCode = "dc"
	}
	id := streamChunkID(int(p.StreamIndex), typeCode)
	m.moviChunks = append(m.moviChunks, appendChunk(nil, id, p.Payload))
	m.keyframes = append(m.keyframes, p.Keyframe)
	if kind == core.Video {
		m.frameCount++
	}
	return nil
}

func (m *Muxer) Finalize() error {
	hdrlBody := avihChunk(m.streams, m.frameCount)
	for i, s := range m.streams {
		hdrlBody = append(hdrlBody, appendList("strl", strlBody(i, s))...)
	}
	hdrl := appendList("hdrl", hdrlBody)

	var moviBody []byte
	for _, chunk := range m.moviChunks {
		moviBody = append(moviBody, chunk...)
	}
	movi := appendList("movi", moviBody)

	// idx1 offsets are relative to movi's listType field (the 4 bytes
	// spelling "movi" itself); only written for the single-video-stream
	// case this muxer targets, per this container's documented scope.
	singleVideo := len(m.streams) == 1 && m.streams[0].Kind == core.Video
	var idx1 []byte
	if singleVideo {
		offset := uint32(4)
		for i, chunk := range m.moviChunks {
			id := chunk[0:4]
			size := ioutil.GetU32LE(chunk[4:8])
			flags := uint32(0)
			if m.keyframes[i] {
				flags |= keyframeFlag
			}
			idx1 = append(idx1, id...)
			idx1 = ioutil.AppendU32LE(idx1, flags)
			idx1 = ioutil.AppendU32LE(idx1, offset)
			idx1 = ioutil.AppendU32LE(idx1, size)
			offset += uint32(len(chunk))
		}
	}

	var body []byte
	body = append(body, "AVI "...)
	body = append(body, hdrl...)
	body = append(body, movi...)
	if len(idx1) > 0 {
		body = append(body, appendChunk(nil, "idx1", idx1)...)
	}

	var out []byte
	out = append(out, "RIFF"...)
	out = ioutil.AppendU32LE(out, uint32(len(body)))
	out = append(out, body...)

	if _, err := m.w.Write(out); err != nil {
		return err
	}
	return m.w.Flush()
}

func appendChunk(dst []byte, id string, data []byte) []byte {
	dst = append(dst, id...)
	dst = ioutil.AppendU32LE(dst, uint32(len(data)))
	dst = append(dst, data...)
	if len(data)%2 == 1 {
		dst = append(dst, 0)
	}
	return dst
}

func appendList(listType string, body []byte) []byte {
	data := append([]byte(listType), body...)
	return appendChunk(nil, "LIST", data)
}

func streamChunkID(streamIdx int, typeCode string) string {
	n := strconv.Itoa(streamIdx)
	if len(n) < 2 {
		n = "0" + n
	}
	return n + typeCode
}

func avihChunk(streams []*core.Stream, frameCount uint32) []byte {
	microSecPerFrame := uint32(33333)
	var width, height uint32
	for _, s := range streams {
		if s.Kind == core.Video {
			width, height = s.Width, s.Height
			if s.Timebase.Num != 0 {
				microSecPerFrame = uint32(1000000 * uint64(s.Timebase.Num) / uint64(orDefault(s.Timebase.Den, 1)))
			}
			break
		}
	}
	var b []byte
	b = ioutil.AppendU32LE(b, microSecPerFrame)
	b = ioutil.AppendU32LE(b, 0) // max bytes/sec
	b = ioutil.AppendU32LE(b, 0) // padding granularity
	b = ioutil.AppendU32LE(b, 0x10) // flags: AVIF_HASINDEX
	b = ioutil.AppendU32LE(b, frameCount)
	b = ioutil.AppendU32LE(b, 0) // initial frames
	b = ioutil.AppendU32LE(b, uint32(len(streams)))
	b = ioutil.AppendU32LE(b, 0) // suggested buffer size
	b = ioutil.AppendU32LE(b, width)
	b = ioutil.AppendU32LE(b, height)
	b = append(b, make([]byte, 16)...) // reserved
	return appendChunk(nil, "avih", b)
}

func strlBody(index int, s *core.Stream) []byte {
	fccType := "auds"
	fccHandler := "    "
	if s.Kind == core.Video {
		fccType = "vids"
		fccHandler = "H264"
	}
	var strh []byte
	strh = append(strh, fccType...)
	strh = append(strh, fccHandler...)
	strh = ioutil.AppendU32LE(strh, 0) // flags
	strh = ioutil.AppendU16LE(strh, 0) // priority
	strh = ioutil.AppendU16LE(strh, 0) // language
	strh = ioutil.AppendU32LE(strh, 0) // initial frames
	scale, rate := uint32(1), uint32(30)
	if s.Timebase.Num != 0 && s.Timebase.Den != 0 {
		scale, rate = s.Timebase.Num, s.Timebase.Den
	}
	strh = ioutil.AppendU32LE(strh, scale)
	strh = ioutil.AppendU32LE(strh, rate)
	strh = ioutil.AppendU32LE(strh, 0) // start
	strh = ioutil.AppendU32LE(strh, 0) // length (unknown up front)
	strh = ioutil.AppendU32LE(strh, 0) // suggested buffer size
	strh = ioutil.AppendU32LE(strh, 0xFFFFFFFF) // quality
	strh = ioutil.AppendU32LE(strh, 0) // sample size
	strh = append(strh, make([]byte, 16)...) // rcFrame

	var body []byte
	body = append(body, appendChunk(nil, "strh", strh)...)
	body = append(body, appendChunk(nil, "strf", strfBody(s))...)
	return body
}

func strfBody(s *core.Stream) []byte {
	if s.Kind == core.Video {
		var b []byte
		b = ioutil.AppendU32LE(b, 40) // biSize
		b = ioutil.AppendU32LE(b, s.Width)
		b = ioutil.AppendU32LE(b, s.Height)
		b = ioutil.AppendU16LE(b, 1)  // planes
		b = ioutil.AppendU16LE(b, 24) // bit count
		b = append(b, "H264"...)      // compression fourcc
		b = ioutil.AppendU32LE(b, s.Width*s.Height*3)
		b = ioutil.AppendU32LE(b, 0)
		b = ioutil.AppendU32LE(b, 0)
		b = ioutil.AppendU32LE(b, 0)
		b = ioutil.AppendU32LE(b, 0)
		return b
	}
	var b []byte
	b = ioutil.AppendU16LE(b, 1) // WAVE_FORMAT_PCM
	b = ioutil.AppendU16LE(b, uint16(s.Channels))
	b = ioutil.AppendU32LE(b, s.SampleRate)
	blockAlign := uint16(s.Channels) * uint16(orDefault16(uint16(s.BitDepth), 16)) / 8
	b = ioutil.AppendU32LE(b, s.SampleRate*uint32(blockAlign))
	b = ioutil.AppendU16LE(b, blockAlign)
	b = ioutil.AppendU16LE(b, orDefault16(uint16(s.BitDepth), 16))
	b = ioutil.AppendU16LE(b, 0) // cbSize
	return b
}

func orDefault(v, def uint32) uint32 {
	if v == 0 {
		return def
	}
	return v
}

func orDefault16(v, def uint16) uint16 {
	if v == 0 {
		return def
	}
	return v
}
