/*
NAME
  mkv.go

DESCRIPTION
  mkv.go implements the Matroska (MKV) demuxer: EBML header validation,
  Segment-level Info/Tracks/Cluster/Cues/Chapters/Tags walking, and Block/
  SimpleBlock frame extraction. The muxer is minimal: a single-track,
  single-Cluster writer sufficient for remux roundtrips.

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package mkv implements the Matroska container's demuxer and a minimal
// muxer, built on package ebml's VINT and element-header primitives.
package mkv

import (
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/codec/codecutil"
	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ebml"
	"github.com/coastalsound/transcode/ioutil"
)

// Matroska sub-element IDs not promoted to ebml's master-ID table (they
// live inside Info/Tracks/Cluster, which are masters, but are themselves
// leaves or track-level masters this package parses by hand).
const (
	idTrackEntry      = 0xAE
	idTrackNumber     = 0xD7
	idTrackType       = 0x83
	idCodecID         = 0x86
	idTrackName       = 0x536E
	idTrackLanguage   = 0x22B59C
	idTrackVideo      = 0xE0
	idTrackAudio      = 0xE1
	idPixelWidth      = 0xB0
	idPixelHeight     = 0xBA
	idSamplingFreq    = 0xB5
	idChannels        = 0x9F
	idTimecodeScale   = 0x2AD7B1
	idDuration        = 0x4489
	idTitle           = 0x7BA9
	idTimecode        = 0xE7
	idSimpleBlock     = 0xA3
	idBlockGroup      = 0xA0
	idBlock           = 0xA1
)

const (
	trackTypeVideo = 1
	trackTypeAudio = 2
)

// Track is one parsed Matroska Tracks entry.
type Track struct {
	Number     uint64
	Type       uint64
	CodecID    string
	Name       string
	Language   string
	Width      uint64
	Height     uint64
	SampleRate float64
	Channels   uint64
}

// Info holds the parsed Segment Info element.
type Info struct {
	Title          string
	TimecodeScale  uint64
	DurationTicks  float64
}

const flagKeyframe = 0x80

// Demuxer walks an MKV Segment's Info, Tracks, and Clusters, exposing each
// track as a core.Stream and iterating Block/SimpleBlock frames as packets.
type Demuxer struct {
	info    Info
	tracks  []Track
	streams []*core.Stream
	packets []*core.Packet
	next    int
}

// NewDemuxer parses the EBML header and Segment body, building a flat
// packet list in Cluster/Block order up front (this container's files are read
// fully into memory at open time, matching this module's other
// demuxers).
func NewDemuxer(r io.Reader) (*Demuxer, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, ioutil.New(ioutil.Other, err)
	}

	off := 0
	hdr, err := ebml.ParseHeader(buf[off:])
	if err != nil {
		return nil, err
	}
	if hdr.ID != ebml.IDEBMLHeader {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("mkv: missing EBML header element"))
	}
	off += hdr.HeaderLen + int(hdr.Size)

	segHdr, err := ebml.ParseHeader(buf[off:])
	if err != nil {
		return nil, err
	}
	if segHdr.ID != ebml.IDSegment {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("mkv: missing top-level Segment element"))
	}
	segStart := off + segHdr.HeaderLen
	segEnd := len(buf)
	if !segHdr.UnknownSize {
		segEnd = segStart + int(segHdr.Size)
		if segEnd > len(buf) {
			segEnd = len(buf)
		}
	}

	d := &Demuxer{}
	timecodeScale := uint64(1000000) // default 1ms per Matroska spec
	var pendingPackets []*core.Packet

	pos := segStart
	var clusterTimecode int64
	for pos < segEnd {
		eh, err := ebml.ParseHeader(buf[pos:])
		if err != nil {
			return nil, err
		}
		bodyStart := pos + eh.HeaderLen
		bodyEnd := bodyStart + int(eh.Size)
		if bodyEnd > len(buf) {
			return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("mkv: element body runs past end of file"))
		}
		body := buf[bodyStart:bodyEnd]

		switch eh.ID {
		case ebml.IDInfo:
			info, scale, err := parseInfo(body)
			if err != nil {
				return nil, err
			}
			d.info = info
			if scale != 0 {
				timecodeScale = scale
			}
		case ebml.IDTracks:
			tracks, err := parseTracks(body)
			if err != nil {
				return nil, err
			}
			d.tracks = tracks
		case ebml.IDCluster:
			pkts, err := parseCluster(body, &clusterTimecode)
			if err != nil {
				return nil, err
			}
			pendingPackets = append(pendingPackets, pkts...)
		case ebml.IDCues, ebml.IDChapters, ebml.IDTags, ebml.IDSeekHead, ebml.IDAttachments:
			// Retained as opaque; not needed for packet reconstruction.
		}
		pos = bodyEnd
	}

	d.streams = make([]*core.Stream, len(d.tracks))
	trackIndexByNumber := make(map[uint64]int, len(d.tracks))
	for i, tr := range d.tracks {
		kind := core.Subtitle
		switch tr.Type {
		case trackTypeVideo:
			kind = core.Video
		case trackTypeAudio:
			kind = core.Audio
		}
		codec, _ := codecutil.FromMKVCodecID(tr.CodecID)
		s := &core.Stream{
			ID: uint32(tr.Number), Index: i, Kind: kind, Codec: codec,
			Timebase: core.NewTimebase(uint32(timecodeScale), 1000000000),
			Width:    uint32(tr.Width), Height: uint32(tr.Height),
			SampleRate: uint32(tr.SampleRate), Channels: uint8(tr.Channels),
		}
		d.streams[i] = s
		trackIndexByNumber[tr.Number] = i
	}

	for _, p := range pendingPackets {
		idx, ok := trackIndexByNumber[uint64(p.StreamIndex)]
		if !ok {
			continue
		}
		p.StreamIndex = uint32(idx)
		p.Timebase = d.streams[idx].Timebase
		d.packets = append(d.packets, p)
	}

	return d, nil
}

func (d *Demuxer) Info() Info { return d.info }

func (d *Demuxer) Streams() []*core.Stream { return d.streams }

// ReadPacket returns packets in the order Clusters were encountered (which
// Matroska encoders write in roughly timecode order), nil at end of stream.
func (d *Demuxer) ReadPacket() (*core.Packet, error) {
	if d.next >= len(d.packets) {
		return nil, nil
	}
	p := d.packets[d.next]
	d.next++
	return p, nil
}

// parseInfo reads Segment Info's TimecodeScale/Duration/Title.
func parseInfo(body []byte) (Info, uint64, error) {
	var info Info
	var scale uint64
	pos := 0
	for pos < len(body) {
		eh, err := ebml.ParseHeader(body[pos:])
		if err != nil {
			return Info{}, 0, err
		}
		start := pos + eh.HeaderLen
		end := start + int(eh.Size)
		if end > len(body) {
			return Info{}, 0, ioutil.New(ioutil.UnexpectedEOF, errors.New("mkv: Info element runs past its parent"))
		}
		data := body[start:end]
		switch eh.ID {
		case idTimecodeScale:
			v, err := ebml.ParseUinteger(data)
			if err != nil {
				return Info{}, 0, err
			}
			scale = v
		case idDuration:
			v, err := ebml.ParseFloat(data)
			if err != nil {
				return Info{}, 0, err
			}
			info.DurationTicks = v
		case idTitle:
			v, err := ebml.ParseASCII(data)
			if err == nil {
				info.Title = v
			}
		}
		pos = end
	}
	return info, scale, nil
}

// parseTracks reads each TrackEntry under Tracks.
func parseTracks(body []byte) ([]Track, error) {
	var tracks []Track
	pos := 0
	for pos < len(body) {
		eh, err := ebml.ParseHeader(body[pos:])
		if err != nil {
			return nil, err
		}
		start := pos + eh.HeaderLen
		end := start + int(eh.Size)
		if end > len(body) {
			return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("mkv: Tracks element runs past its parent"))
		}
		if eh.ID == idTrackEntry {
			tr, err := parseTrackEntry(body[start:end])
			if err != nil {
				return nil, err
			}
			tracks = append(tracks, tr)
		}
		pos = end
	}
	return tracks, nil
}

func parseTrackEntry(body []byte) (Track, error) {
	var tr Track
	pos := 0
	for pos < len(body) {
		eh, err := ebml.ParseHeader(body[pos:])
		if err != nil {
			return Track{}, err
		}
		start := pos + eh.HeaderLen
		end := start + int(eh.Size)
		if end > len(body) {
			return Track{}, ioutil.New(ioutil.UnexpectedEOF, errors.New("mkv: TrackEntry runs past its parent"))
		}
		data := body[start:end]
		switch eh.ID {
		case idTrackNumber:
			v, err := ebml.ParseUinteger(data)
			if err != nil {
				return Track{}, err
			}
			tr.Number = v
		case idTrackType:
			v, err := ebml.ParseUinteger(data)
			if err != nil {
				return Track{}, err
			}
			tr.Type = v
		case idCodecID:
			v, err := ebml.ParseASCII(data)
			if err != nil {
				return Track{}, err
			}
			tr.CodecID = v
		case idTrackName:
			v, err := ebml.ParseASCII(data)
			if err == nil {
				tr.Name = v
			}
		case idTrackLanguage:
			v, err := ebml.ParseASCII(data)
			if err == nil {
				tr.Language = v
			}
		case idTrackVideo:
			w, h, err := parseTrackVideo(data)
			if err != nil {
				return Track{}, err
			}
			tr.Width, tr.Height = w, h
		case idTrackAudio:
			rate, ch, err := parseTrackAudio(data)
			if err != nil {
				return Track{}, err
			}
			tr.SampleRate, tr.Channels = rate, ch
		}
		pos = end
	}
	return tr, nil
}

func parseTrackVideo(body []byte) (width, height uint64, err error) {
	pos := 0
	for pos < len(body) {
		eh, err := ebml.ParseHeader(body[pos:])
		if err != nil {
			return 0, 0, err
		}
		start := pos + eh.HeaderLen
		end := start + int(eh.Size)
		if end > len(body) {
			return 0, 0, ioutil.New(ioutil.UnexpectedEOF, errors.New("mkv: Video element runs past its parent"))
		}
		data := body[start:end]
		switch eh.ID {
		case idPixelWidth:
			width, err = ebml.ParseUinteger(data)
			if err != nil {
				return 0, 0, err
			}
		case idPixelHeight:
			height, err = ebml.ParseUinteger(data)
			if err != nil {
				return 0, 0, err
			}
		}
		pos = end
	}
	return width, height, nil
}

func parseTrackAudio(body []byte) (sampleRate float64, channels uint64, err error) {
	sampleRate = 8000 // Matroska default when SamplingFrequency is absent
	channels = 1
	pos := 0
	for pos < len(body) {
		eh, err := ebml.ParseHeader(body[pos:])
		if err != nil {
			return 0, 0, err
		}
		start := pos + eh.HeaderLen
		end := start + int(eh.Size)
		if end > len(body) {
			return 0, 0, ioutil.New(ioutil.UnexpectedEOF, errors.New("mkv: Audio element runs past its parent"))
		}
		data := body[start:end]
		switch eh.ID {
		case idSamplingFreq:
			sampleRate, err = ebml.ParseFloat(data)
			if err != nil {
				return 0, 0, err
			}
		case idChannels:
			channels, err = ebml.ParseUinteger(data)
			if err != nil {
				return 0, 0, err
			}
		}
		pos = end
	}
	return sampleRate, channels, nil
}

// parseCluster reads Timecode then every SimpleBlock/BlockGroup, appending
// one packet per Block. Laced blocks are not read: parseBlock returns
// InvalidData for them, which fails the whole Cluster.
func parseCluster(body []byte, clusterTimecode *int64) ([]*core.Packet, error) {
	var packets []*core.Packet
	pos := 0
	var timecode int64
	for pos < len(body) {
		eh, err := ebml.ParseHeader(body[pos:])
		if err != nil {
			return nil, err
		}
		start := pos + eh.HeaderLen
		end := start + int(eh.Size)
		if end > len(body) {
			return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("mkv: Cluster element runs past its parent"))
		}
		data := body[start:end]
		switch eh.ID {
		case idTimecode:
			v, err := ebml.ParseUinteger(data)
			if err != nil {
				return nil, err
			}
			timecode = int64(v)
			*clusterTimecode = timecode
		case idSimpleBlock:
			p, err := parseBlock(data, timecode, true)
			if err != nil {
				return nil, err
			}
			packets = append(packets, p)
		case idBlockGroup:
			p, err := parseBlockGroup(data, timecode)
			if err != nil {
				return nil, err
			}
			if p != nil {
				packets = append(packets, p)
			}
		}
		pos = end
	}
	return packets, nil
}

func parseBlockGroup(body []byte, clusterTimecode int64) (*core.Packet, error) {
	pos := 0
	for pos < len(body) {
		eh, err := ebml.ParseHeader(body[pos:])
		if err != nil {
			return nil, err
		}
		start := pos + eh.HeaderLen
		end := start + int(eh.Size)
		if end > len(body) {
			return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("mkv: BlockGroup runs past its parent"))
		}
		if eh.ID == idBlock {
			// BlockGroup's Block carries no keyframe flag (BlockGroup
			// implies a reference-frame structure resolved via
			// ReferenceBlock, out of scope here); treat as non-key.
			return parseBlock(body[start:end], clusterTimecode, false)
		}
		pos = end
	}
	return nil, nil
}

// parseBlock decodes a Block/SimpleBlock payload: track-number VINT,
// signed 16-bit timecode delta, flags byte, then frame body (lacing is
// rejected, since this module never writes laced blocks and a faithful
// decoder of them is out of scope for milestone one).
func parseBlock(body []byte, clusterTimecode int64, simpleBlockFlags bool) (*core.Packet, error) {
	tn, err := ebml.DecodeVINT(body)
	if err != nil {
		return nil, err
	}
	rest := body[tn.Length:]
	if len(rest) < 3 {
		return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("mkv: Block shorter than timecode+flags"))
	}
	delta := int16(ioutil.GetU16BE(rest[0:2]))
	flags := rest[2]
	lacing := (flags >> 1) & 0x3
	if lacing != 0 {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("mkv: laced blocks are not supported"))
	}
	payload := append([]byte(nil), rest[3:]...)
	pts := clusterTimecode + int64(delta)
	keyframe := simpleBlockFlags && flags&flagKeyframe != 0
	return &core.Packet{
		Payload:     payload,
		StreamIndex: uint32(tn.Value),
		PTS:         pts,
		DTS:         pts,
		Keyframe:    keyframe,
	}, nil
}

// Muxer writes a minimal single-Cluster Matroska file: EBML header,
// Segment with Info+Tracks, then one Cluster holding every packet as a
// SimpleBlock. This does not attempt multi-Cluster splitting or cues,
// matching this container's "minimal" muxer scope.
type Muxer struct {
	w             ioutil.Writer
	streams       []*core.Stream
	timecodeScale uint32
	wroteHeader   bool
	clusterBlocks [][]byte
}

func NewMuxer(w ioutil.Writer) *Muxer { return &Muxer{w: w, timecodeScale: 1000000} }

func (m *Muxer) WriteHeader(streams []*core.Stream) error {
	m.streams = streams
	m.wroteHeader = true
	return nil
}

func (m *Muxer) WritePacket(p *core.Packet) error {
	if !m.wroteHeader {
		return errors.New("mkv: WritePacket called before WriteHeader")
	}
	flags := byte(0)
	if p.Keyframe {
		flags |= flagKeyframe
	}
	var block []byte
	block = appendVINT(block, uint64(p.StreamIndex)+1)
	block = ioutil.AppendU16BE(block, uint16(int16(p.PTS)))
	block = append(block, flags)
	block = append(block, p.Payload...)

	var se []byte
	se = appendElementHeader(se, idSimpleBlock, len(block))
	se = append(se, block...)
	m.clusterBlocks = append(m.clusterBlocks, se)
	return nil
}

func (m *Muxer) Finalize() error {
	var segBody []byte
	segBody = append(segBody, encodeInfo(m.timecodeScale)...)
	segBody = append(segBody, encodeTracks(m.streams)...)

	var clusterBody []byte
	clusterBody = appendElementHeader(clusterBody, idTimecode, 8)
	clusterBody = ioutil.AppendU64BE(clusterBody, 0)
	for _, b := range m.clusterBlocks {
		clusterBody = append(clusterBody, b...)
	}
	var cluster []byte
	cluster = appendElementHeader(cluster, ebml.IDCluster, len(clusterBody))
	cluster = append(cluster, clusterBody...)
	segBody = append(segBody, cluster...)

	var seg []byte
	seg = appendElementHeader(seg, ebml.IDSegment, len(segBody))
	seg = append(seg, segBody...)

	var out []byte
	out = append(out, ebmlHeader()...)
	out = append(out, seg...)

	if _, err := m.w.Write(out); err != nil {
		return err
	}
	return m.w.Flush()
}

// ebmlHeader returns a minimal, fixed EBML header identifying this stream
// as Matroska (DocType "matroska", version 1).
func ebmlHeader() []byte {
	var body []byte
	body = appendUintElem(body, 0x4286, 1) // EBMLVersion
	body = appendUintElem(body, 0x42F7, 1) // EBMLReadVersion
	body = appendUintElem(body, 0x42F2, 4) // EBMLMaxIDLength
	body = appendUintElem(body, 0x42F3, 8) // EBMLMaxSizeLength
	body = appendStringElem(body, 0x4282, "matroska")
	body = appendUintElem(body, 0x4287, 2) // DocTypeVersion
	body = appendUintElem(body, 0x4285, 2) // DocTypeReadVersion
	var out []byte
	out = appendElementHeader(out, ebml.IDEBMLHeader, len(body))
	out = append(out, body...)
	return out
}

func encodeInfo(timecodeScale uint32) []byte {
	var body []byte
	body = appendUintElem(body, idTimecodeScale, uint64(timecodeScale))
	var out []byte
	out = appendElementHeader(out, ebml.IDInfo, len(body))
	out = append(out, body...)
	return out
}

func encodeTracks(streams []*core.Stream) []byte {
	var body []byte
	for _, s := range streams {
		body = append(body, encodeTrackEntry(s)...)
	}
	var out []byte
	out = appendElementHeader(out, ebml.IDTracks, len(body))
	out = append(out, body...)
	return out
}

func encodeTrackEntry(s *core.Stream) []byte {
	var body []byte
	body = appendUintElem(body, idTrackNumber, uint64(s.Index)+1)
	trackType := uint64(trackTypeAudio)
	if s.Kind == core.Video {
		trackType = trackTypeVideo
	}
	body = appendUintElem(body, idTrackType, trackType)
	body = appendStringElem(body, idCodecID, mkvCodecIDFor(s.Codec))
	if s.Kind == core.Video {
		var v []byte
		v = appendUintElem(v, idPixelWidth, uint64(s.Width))
		v = appendUintElem(v, idPixelHeight, uint64(s.Height))
		var ve []byte
		ve = appendElementHeader(ve, idTrackVideo, len(v))
		ve = append(ve, v...)
		body = append(body, ve...)
	}
	if s.Kind == core.Audio {
		var a []byte
		a = appendFloatElem(a, idSamplingFreq, float64(s.SampleRate))
		a = appendUintElem(a, idChannels, uint64(s.Channels))
		var ae []byte
		ae = appendElementHeader(ae, idTrackAudio, len(a))
		ae = append(ae, a...)
		body = append(body, ae...)
	}
	var out []byte
	out = appendElementHeader(out, idTrackEntry, len(body))
	out = append(out, body...)
	return out
}

// mkvCodecIDFor is the reverse of codecutil.FromMKVCodecID for the
// subset of canonical names this muxer can emit a Matroska CodecID for.
func mkvCodecIDFor(codec string) string {
	switch codec {
	case codecutil.H264:
		return "V_MPEG4/ISO/AVC"
	case codecutil.H265:
		return "V_MPEGH/ISO/HEVC"
	case codecutil.AAC:
		return "A_AAC"
	case codecutil.FLAC:
		return "A_FLAC"
	case codecutil.MP3:
		return "A_MPEG/L3"
	case codecutil.Opus:
		return "A_OPUS"
	case codecutil.Vorbis:
		return "A_VORBIS"
	case codecutil.PCMS16LE:
		return "A_PCM/INT/LIT"
	default:
		return "V_MS/VFW/FOURCC"
	}
}

// appendVINT appends v encoded as the smallest EBML VINT that holds it.
func appendVINT(dst []byte, v uint64) []byte {
	for length := 1; length <= 8; length++ {
		bits := uint(7 * length)
		if v < uint64(1)<<bits {
			marker := byte(1) << uint(8-length)
			b := make([]byte, length)
			b[0] = marker
			for i := length - 1; i >= 0; i-- {
				b[i] |= byte(v)
				v >>= 8
			}
			return append(dst, b...)
		}
	}
	panic("mkv: value too large for an 8-byte VINT")
}

// appendElementHeader appends id (written as its canonical-length VINT,
// recovered from its marker bit) and size.
func appendElementHeader(dst []byte, id uint64, size int) []byte {
	idLen := idByteLength(id)
	for i := idLen - 1; i >= 0; i-- {
		dst = append(dst, byte(id>>(uint(i)*8)))
	}
	return appendVINT(dst, uint64(size))
}

// idByteLength recovers an EBML ID's encoded length from its magnitude;
// every ID constant in this package was chosen at its canonical Matroska
// byte length, so this is equivalent to inspecting the VINT length marker.
func idByteLength(id uint64) int {
	switch {
	case id <= 0xFF:
		return 1
	case id <= 0xFFFF:
		return 2
	case id <= 0xFFFFFF:
		return 3
	default:
		return 4
	}
}

func appendUintElem(dst []byte, id uint64, v uint64) []byte {
	var b []byte
	for v > 0 || len(b) == 0 {
		b = append([]byte{byte(v)}, b...)
		v >>= 8
	}
	dst = appendElementHeader(dst, id, len(b))
	return append(dst, b...)
}

func appendStringElem(dst []byte, id uint64, s string) []byte {
	dst = appendElementHeader(dst, id, len(s))
	return append(dst, s...)
}

func appendFloatElem(dst []byte, id uint64, v float64) []byte {
	var b [8]byte
	ioutil.PutU64BE(b[:], math.Float64bits(v))
	dst = appendElementHeader(dst, id, 8)
	return append(dst, b[:]...)
}
