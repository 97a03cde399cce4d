/*
NAME
  mp4.go

DESCRIPTION
  mp4.go implements the ISOBMFF (MP4) container: box-tree walking,
  moov/trak/stbl sample-table parsing, and reconstruction of each track's
  flat (file_offset, size, dts, pts_offset, keyframe) sample list,
  interleaved into DTS order across tracks.

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package mp4 implements the MP4/ISOBMFF container's demuxer and muxer.
// It is also the box-tree engine package mov builds on, since MOV shares
// MP4's box format.
package mp4

import (
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/codec/codecutil"
	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

// Box is one parsed ISOBMFF box: its fourcc and the slice of buf spanning
// its body (header already consumed).
type Box struct {
	Type string
	Body []byte
}

// IterateBoxes walks consecutive boxes in buf, calling fn with each box's
// type and body. size==1 uses a 64-bit largesize; size==0 means "runs to
// the end of buf".
func IterateBoxes(buf []byte, fn func(Box) error) error {
	pos := 0
	for pos < len(buf) {
		if pos+8 > len(buf) {
			return ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: truncated box header"))
		}
		size := uint64(ioutil.GetU32BE(buf[pos : pos+4]))
		typ := string(buf[pos+4 : pos+8])
		headerLen := 8
		switch size {
		case 1:
			if pos+16 > len(buf) {
				return ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: truncated largesize box header"))
			}
			size = ioutil.GetU64BE(buf[pos+8 : pos+16])
			headerLen = 16
		case 0:
			size = uint64(len(buf) - pos)
		}
		if size < uint64(headerLen) || pos+int(size) > len(buf) {
			return ioutil.New(ioutil.UnexpectedEOF, errors.Errorf("mp4: box %q size %d runs past buffer", typ, size))
		}
		body := buf[pos+headerLen : pos+int(size)]
		if err := fn(Box{Type: typ, Body: body}); err != nil {
			return err
		}
		pos += int(size)
	}
	return nil
}

// sttsEntry/stscEntry mirror their box's packed-run representation.
type sttsEntry struct{ count, delta uint32 }
type stscEntry struct{ firstChunk, samplesPerChunk, sampleDescIndex uint32 }

// Track holds one trak's parsed sample tables plus track-level metadata.
type Track struct {
	TrackID    uint32
	Kind       core.StreamKind
	Timescale  uint32
	Codec      string
	Width      uint32
	Height     uint32
	SampleRate uint32
	Channels   uint16

	stts         []sttsEntry
	stsc         []stscEntry
	sampleSizes  []uint32
	chunkOffsets []uint64
	ctts         []sttsEntry // reused shape: {count, delta}; delta is signed in practice but stored raw
	syncSamples  map[uint32]bool // 1-based sample numbers; nil means "no stss box present"
}

// sample is one reconstructed entry from a track's tables before
// interleaving.
type sample struct {
	trackIdx int
	offset   uint64
	size     uint32
	dts      int64
	ptsDelta int64
	keyframe bool
}

// Demuxer parses an MP4/MOV file's box tree and serves packets in
// interleaved DTS order.
type Demuxer struct {
	tracks  []Track
	streams []*core.Stream
	buf     []byte
	packets []*core.Packet
	next    int
}

// NewDemuxer reads buf fully, requires ftyp/moov/mdat, and builds the
// interleaved packet list.
func NewDemuxer(r io.Reader) (*Demuxer, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, ioutil.New(ioutil.Other, err)
	}
	return newDemuxerFromBuf(buf)
}

func newDemuxerFromBuf(buf []byte) (*Demuxer, error) {
	var tracks []Track
	var gotFtyp, gotMoov, gotMdat bool

	err := IterateBoxes(buf, func(b Box) error {
		switch b.Type {
		case "ftyp":
			gotFtyp = true
		case "moov":
			gotMoov = true
			ts, err := parseMoov(b.Body)
			if err != nil {
				return err
			}
			tracks = ts
		case "mdat":
			gotMdat = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !gotFtyp {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("mp4: missing ftyp box"))
	}
	if !gotMoov {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("mp4: missing moov box"))
	}
	if !gotMdat {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("mp4: missing mdat box"))
	}

	d := &Demuxer{tracks: tracks, buf: buf}
	d.streams = make([]*core.Stream, len(tracks))
	var allSamples []sample
	for i, tr := range tracks {
		samples := reconstructSamples(i, tr)
		allSamples = append(allSamples, samples...)
		tb := core.NewTimebase(1, orDefault(tr.Timescale, 1000))
		d.streams[i] = &core.Stream{
			ID: tr.TrackID, Index: i, Kind: tr.Kind, Codec: tr.Codec, Timebase: tb,
			Width: tr.Width, Height: tr.Height, SampleRate: tr.SampleRate, Channels: uint8(tr.Channels),
		}
	}

	sort.SliceStable(allSamples, func(i, j int) bool {
		ti, tj := tracks[allSamples[i].trackIdx].Timescale, tracks[allSamples[j].trackIdx].Timescale
		li := float64(allSamples[i].dts) / float64(orDefault(ti, 1000))
		lj := float64(allSamples[j].dts) / float64(orDefault(tj, 1000))
		return li < lj
	})

	for _, s := range allSamples {
		if s.offset+uint64(s.size) > uint64(len(buf)) {
			return nil, ioutil.New(ioutil.UnexpectedEOF, errors.Errorf("mp4: sample at offset %d size %d runs past end of file", s.offset, s.size))
		}
		payload := append([]byte(nil), buf[s.offset:s.offset+uint64(s.size)]...)
		d.packets = append(d.packets, &core.Packet{
			Payload:     payload,
			StreamIndex: uint32(s.trackIdx),
			PTS:         s.dts + s.ptsDelta,
			DTS:         s.dts,
			Timebase:    d.streams[s.trackIdx].Timebase,
			Keyframe:    s.keyframe,
		})
	}

	return d, nil
}

func orDefault(v, def uint32) uint32 {
	if v == 0 {
		return def
	}
	return v
}

func (d *Demuxer) Streams() []*core.Stream { return d.streams }

func (d *Demuxer) ReadPacket() (*core.Packet, error) {
	if d.next >= len(d.packets) {
		return nil, nil
	}
	p := d.packets[d.next]
	d.next++
	return p, nil
}

// reconstructSamples walks a track's stsc/stco/stsz/stts/ctts/stss tables
// into a flat per-sample list ready for sequential packet reconstruction.
func reconstructSamples(trackIdx int, tr Track) []sample {
	samples := make([]sample, 0, len(tr.sampleSizes))

	chunkSampleCounts := expandStsc(tr.stsc, len(tr.chunkOffsets))

	sampleIdx := 0
	for chunk, count := range chunkSampleCounts {
		if chunk >= len(tr.chunkOffsets) {
			break
		}
		offset := tr.chunkOffsets[chunk]
		for i := 0; i < count && sampleIdx < len(tr.sampleSizes); i++ {
			size := tr.sampleSizes[sampleIdx]
			samples = append(samples, sample{trackIdx: trackIdx, offset: offset, size: size})
			offset += uint64(size)
			sampleIdx++
		}
	}

	// Assign dts from stts (run-length sample-count/delta pairs).
	dts := int64(0)
	idx := 0
	for _, e := range tr.stts {
		for i := uint32(0); i < e.count && idx < len(samples); i++ {
			samples[idx].dts = dts
			dts += int64(e.delta)
			idx++
		}
	}

	// Assign pts delta from ctts if present.
	if len(tr.ctts) > 0 {
		idx = 0
		for _, e := range tr.ctts {
			for i := uint32(0); i < e.count && idx < len(samples); i++ {
				samples[idx].ptsDelta = int64(int32(e.delta))
				idx++
			}
		}
	}

	// Assign keyframe flags from stss; absent stss means every sample is
	// a sync sample (true for audio always, and for all-intra video).
	for i := range samples {
		if tr.syncSamples == nil {
			samples[i].keyframe = true
		} else {
			samples[i].keyframe = tr.syncSamples[uint32(i)+1]
		}
	}

	return samples
}

// expandStsc turns stsc's compact (first_chunk, samples_per_chunk) runs
// into a per-chunk sample count slice covering every chunk up to
// totalChunks.
func expandStsc(entries []stscEntry, totalChunks int) []int {
	counts := make([]int, totalChunks)
	for i, e := range entries {
		start := int(e.firstChunk) - 1
		end := totalChunks
		if i+1 < len(entries) {
			end = int(entries[i+1].firstChunk) - 1
		}
		for c := start; c < end && c < totalChunks; c++ {
			counts[c] = int(e.samplesPerChunk)
		}
	}
	return counts
}

func parseMoov(body []byte) ([]Track, error) {
	var tracks []Track
	err := IterateBoxes(body, func(b Box) error {
		if b.Type == "trak" {
			tr, err := parseTrak(b.Body)
			if err != nil {
				return err
			}
			tracks = append(tracks, tr)
		}
		return nil
	})
	return tracks, err
}

func parseTrak(body []byte) (Track, error) {
	var tr Track
	err := IterateBoxes(body, func(b Box) error {
		switch b.Type {
		case "tkhd":
			id, w, h, err := parseTkhd(b.Body)
			if err != nil {
				return err
			}
			tr.TrackID, tr.Width, tr.Height = id, w, h
		case "mdia":
			return parseMdia(b.Body, &tr)
		}
		return nil
	})
	return tr, err
}

// parseTkhd reads the track ID and, from the box's fixed trailing
// width/height fields (16.16 fixed point), the track's display geometry.
func parseTkhd(body []byte) (id, width, height uint32, err error) {
	if len(body) < 4 {
		return 0, 0, 0, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: tkhd too short"))
	}
	version := body[0]
	if version == 1 {
		if len(body) < 4+8+8+4 {
			return 0, 0, 0, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: tkhd v1 too short"))
		}
		id = ioutil.GetU32BE(body[4+8+8:])
	} else {
		if len(body) < 4+4+4+4 {
			return 0, 0, 0, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: tkhd v0 too short"))
		}
		id = ioutil.GetU32BE(body[4+4+4:])
	}
	if len(body) < 8 {
		return id, 0, 0, nil
	}
	wOff := len(body) - 8
	width = ioutil.GetU32BE(body[wOff:wOff+4]) >> 16
	height = ioutil.GetU32BE(body[wOff+4:wOff+8]) >> 16
	return id, width, height, nil
}

func parseMdia(body []byte, tr *Track) error {
	return IterateBoxes(body, func(b Box) error {
		switch b.Type {
		case "mdhd":
			ts, err := parseMdhd(b.Body)
			if err != nil {
				return err
			}
			tr.Timescale = ts
		case "hdlr":
			tr.Kind = parseHdlr(b.Body)
		case "minf":
			return parseMinf(b.Body, tr)
		}
		return nil
	})
}

func parseMdhd(body []byte) (uint32, error) {
	if len(body) < 4 {
		return 0, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: mdhd too short"))
	}
	version := body[0]
	if version == 1 {
		if len(body) < 4+8+8+4 {
			return 0, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: mdhd v1 too short"))
		}
		return ioutil.GetU32BE(body[4+8+8:]), nil
	}
	if len(body) < 4+4+4+4 {
		return 0, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: mdhd v0 too short"))
	}
	return ioutil.GetU32BE(body[4+4+4:]), nil
}

func parseHdlr(body []byte) core.StreamKind {
	if len(body) < 12 {
		return core.Subtitle
	}
	handlerType := string(body[8:12])
	switch handlerType {
	case "vide":
		return core.Video
	case "soun":
		return core.Audio
	default:
		return core.Subtitle
	}
}

func parseMinf(body []byte, tr *Track) error {
	return IterateBoxes(body, func(b Box) error {
		if b.Type == "stbl" {
			return parseStbl(b.Body, tr)
		}
		return nil
	})
}

func parseStbl(body []byte, tr *Track) error {
	return IterateBoxes(body, func(b Box) error {
		switch b.Type {
		case "stsd":
			codec, rate, ch := parseStsd(b.Body, tr.Kind)
			tr.Codec, tr.SampleRate, tr.Channels = codec, rate, ch
		case "stts":
			e, err := parseStts(b.Body)
			if err != nil {
				return err
			}
			tr.stts = e
		case "ctts":
			e, err := parseStts(b.Body) // same (count, delta) shape
			if err != nil {
				return err
			}
			tr.ctts = e
		case "stsc":
			e, err := parseStsc(b.Body)
			if err != nil {
				return err
			}
			tr.stsc = e
		case "stsz":
			sizes, err := parseStsz(b.Body)
			if err != nil {
				return err
			}
			tr.sampleSizes = sizes
		case "stco":
			offs, err := parseStco(b.Body)
			if err != nil {
				return err
			}
			tr.chunkOffsets = offs
		case "co64":
			offs, err := parseCo64(b.Body)
			if err != nil {
				return err
			}
			tr.chunkOffsets = offs
		case "stss":
			set, err := parseStss(b.Body)
			if err != nil {
				return err
			}
			tr.syncSamples = set
		}
		return nil
	})
}

// parseStsd reads the first sample entry (this demuxer, like the
// container's other codecs, targets one description per track) and
// infers the canonical codec name, channel count and sample rate for
// audio entries.
func parseStsd(body []byte, kind core.StreamKind) (codec string, sampleRate uint32, channels uint16) {
	if len(body) < 8 {
		return "", 0, 0
	}
	entryCount := ioutil.GetU32BE(body[4:8])
	if entryCount == 0 || len(body) < 16 {
		return "", 0, 0
	}
	entry := body[8:]
	if len(entry) < 8 {
		return "", 0, 0
	}
	fourcc := string(entry[4:8])
	codec, _ = codecutil.FromMP4FourCC(fourcc)

	if kind == core.Audio && len(entry) >= 16+20 {
		// entry[16:] is AudioSampleEntry's fields, starting with an
		// 8-byte reserved block, matching mp4aEntry's layout.
		audio := entry[16:]
		if len(audio) >= 20 {
			channels = ioutil.GetU16BE(audio[8:10])
			sampleRate = ioutil.GetU32BE(audio[16:20]) >> 16
		}
	}
	return codec, sampleRate, channels
}

func parseStts(body []byte) ([]sttsEntry, error) {
	if len(body) < 8 {
		return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: stts/ctts too short"))
	}
	count := ioutil.GetU32BE(body[4:8])
	entries := make([]sttsEntry, 0, count)
	off := 8
	for i := uint32(0); i < count; i++ {
		if off+8 > len(body) {
			return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: stts/ctts entry truncated"))
		}
		entries = append(entries, sttsEntry{
			count: ioutil.GetU32BE(body[off : off+4]),
			delta: ioutil.GetU32BE(body[off+4 : off+8]),
		})
		off += 8
	}
	return entries, nil
}

func parseStsc(body []byte) ([]stscEntry, error) {
	if len(body) < 8 {
		return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: stsc too short"))
	}
	count := ioutil.GetU32BE(body[4:8])
	entries := make([]stscEntry, 0, count)
	off := 8
	for i := uint32(0); i < count; i++ {
		if off+12 > len(body) {
			return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: stsc entry truncated"))
		}
		entries = append(entries, stscEntry{
			firstChunk:      ioutil.GetU32BE(body[off : off+4]),
			samplesPerChunk: ioutil.GetU32BE(body[off+4 : off+8]),
			sampleDescIndex: ioutil.GetU32BE(body[off+8 : off+12]),
		})
		off += 12
	}
	return entries, nil
}

func parseStsz(body []byte) ([]uint32, error) {
	if len(body) < 12 {
		return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: stsz too short"))
	}
	sampleSize := ioutil.GetU32BE(body[4:8])
	count := ioutil.GetU32BE(body[8:12])
	sizes := make([]uint32, count)
	if sampleSize != 0 {
		for i := range sizes {
			sizes[i] = sampleSize
		}
		return sizes, nil
	}
	off := 12
	for i := uint32(0); i < count; i++ {
		if off+4 > len(body) {
			return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: stsz entry truncated"))
		}
		sizes[i] = ioutil.GetU32BE(body[off : off+4])
		off += 4
	}
	return sizes, nil
}

func parseStco(body []byte) ([]uint64, error) {
	if len(body) < 8 {
		return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: stco too short"))
	}
	count := ioutil.GetU32BE(body[4:8])
	offs := make([]uint64, count)
	off := 8
	for i := uint32(0); i < count; i++ {
		if off+4 > len(body) {
			return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: stco entry truncated"))
		}
		offs[i] = uint64(ioutil.GetU32BE(body[off : off+4]))
		off += 4
	}
	return offs, nil
}

func parseCo64(body []byte) ([]uint64, error) {
	if len(body) < 8 {
		return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: co64 too short"))
	}
	count := ioutil.GetU32BE(body[4:8])
	offs := make([]uint64, count)
	off := 8
	for i := uint32(0); i < count; i++ {
		if off+8 > len(body) {
			return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: co64 entry truncated"))
		}
		offs[i] = ioutil.GetU64BE(body[off : off+8])
		off += 8
	}
	return offs, nil
}

func parseStss(body []byte) (map[uint32]bool, error) {
	if len(body) < 8 {
		return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: stss too short"))
	}
	count := ioutil.GetU32BE(body[4:8])
	set := make(map[uint32]bool, count)
	off := 8
	for i := uint32(0); i < count; i++ {
		if off+4 > len(body) {
			return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp4: stss entry truncated"))
		}
		set[ioutil.GetU32BE(body[off:off+4])] = true
		off += 4
	}
	return set, nil
}

// muxSample is one packet recorded by the muxer before the mdat box's
// final file offset is known: relOffset is its position relative to
// mdat's body start.
type muxSample struct {
	relOffset uint64
	size      uint32
	dts       int64
	ptsDelta  int64
	keyframe  bool
}

type muxTrack struct {
	stream  *core.Stream
	samples []muxSample
}

// Muxer assembles an ftyp+mdat+moov file. mdat is written before moov so
// that sample byte offsets, computed as packets arrive, never need a
// seek-based patch: moov's stco/co64 tables are derived once mdat's
// total size (and therefore its absolute file offset) is known, at
// Finalize.
type Muxer struct {
	w           ioutil.Writer
	tracks      []muxTrack
	mdatBody    []byte
	wroteHeader bool
	majorBrand  string
}

func NewMuxer(w ioutil.Writer) *Muxer { return &Muxer{w: w, majorBrand: "isom"} }

// SetMajorBrand overrides ftyp's major_brand (default "isom"); package
// mov uses this to mark its output as QuickTime rather than ISO base
// media.
func (m *Muxer) SetMajorBrand(brand string) { m.majorBrand = brand }

func (m *Muxer) WriteHeader(streams []*core.Stream) error {
	m.tracks = make([]muxTrack, len(streams))
	for i, s := range streams {
		m.tracks[i] = muxTrack{stream: s}
	}
	m.wroteHeader = true
	return nil
}

func (m *Muxer) WritePacket(p *core.Packet) error {
	if !m.wroteHeader {
		return errors.New("mp4: WritePacket called before WriteHeader")
	}
	if int(p.StreamIndex) >= len(m.tracks) {
		return ioutil.New(ioutil.InvalidData, errors.Errorf("mp4: packet references unknown stream %d", p.StreamIndex))
	}
	tr := &m.tracks[p.StreamIndex]
	tr.samples = append(tr.samples, muxSample{
		relOffset: uint64(len(m.mdatBody)),
		size:      uint32(len(p.Payload)),
		dts:       p.DTS,
		ptsDelta:  p.PTS - p.DTS,
		keyframe:  p.Keyframe,
	})
	m.mdatBody = append(m.mdatBody, p.Payload...)
	return nil
}

func (m *Muxer) Finalize() error {
	ftyp := appendBox(nil, "ftyp", ftypBody(m.majorBrand))

	mdatHeaderLen := 8
	mdatSize := uint64(8 + len(m.mdatBody))
	if mdatSize > 0xFFFFFFFF {
		mdatHeaderLen = 16
	}
	mdatOffset := uint64(len(ftyp)) + uint64(mdatHeaderLen)

	moovBody := buildMoov(m.tracks, mdatOffset)
	moov := appendBox(nil, "moov", moovBody)

	mdat := buildMdatBox(m.mdatBody, mdatHeaderLen)

	var out []byte
	out = append(out, ftyp...)
	out = append(out, mdat...)
	out = append(out, moov...)

	if _, err := m.w.Write(out); err != nil {
		return err
	}
	return m.w.Flush()
}

func buildMdatBox(body []byte, headerLen int) []byte {
	if headerLen == 16 {
		out := ioutil.AppendU32BE(nil, 1)
		out = append(out, "mdat"...)
		out = ioutil.AppendU64BE(out, uint64(16+len(body)))
		return append(out, body...)
	}
	out := ioutil.AppendU32BE(nil, uint32(8+len(body)))
	out = append(out, "mdat"...)
	return append(out, body...)
}

func appendBox(dst []byte, typ string, body []byte) []byte {
	dst = ioutil.AppendU32BE(dst, uint32(8+len(body)))
	dst = append(dst, typ...)
	return append(dst, body...)
}

// ftypBody declares majorBrand plus ISO base media/AVC/MPEG-4
// compatibility, matching the brands this muxer's stsd entries can
// describe.
func ftypBody(majorBrand string) []byte {
	var b []byte
	b = append(b, majorBrand...)
	b = ioutil.AppendU32BE(b, 0) // minor version
	for _, brand := range []string{"isom", "iso2", "avc1", "mp41"} {
		b = append(b, brand...)
	}
	return b
}

func buildMoov(tracks []muxTrack, mdatOffset uint64) []byte {
	var duration int64
	for _, tr := range tracks {
		if d := trackDuration(tr); d > duration {
			duration = d
		}
	}
	var body []byte
	body = append(body, appendBox(nil, "mvhd", mvhdBody(uint32(len(tracks)+1), duration))...)
	for i, tr := range tracks {
		body = append(body, appendBox(nil, "trak", trakBody(uint32(i+1), tr, mdatOffset))...)
	}
	return body
}

func trackDuration(tr muxTrack) int64 {
	if len(tr.samples) == 0 {
		return 0
	}
	last := tr.samples[len(tr.samples)-1]
	return last.dts + last.ptsDelta
}

func mvhdBody(nextTrackID uint32, duration int64) []byte {
	var b []byte
	b = append(b, 0) // version 0
	b = append(b, 0, 0, 0)
	b = ioutil.AppendU32BE(b, 0)          // creation time
	b = ioutil.AppendU32BE(b, 0)          // modification time
	b = ioutil.AppendU32BE(b, 1000)       // movie timescale
	b = ioutil.AppendU32BE(b, uint32(duration))
	b = ioutil.AppendU32BE(b, 0x00010000) // rate 1.0
	b = append(b, 0x01, 0x00)             // volume 1.0
	b = append(b, 0, 0)                   // reserved
	b = append(b, make([]byte, 8)...)     // reserved
	// unity matrix
	matrix := []uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}
	for _, v := range matrix {
		b = ioutil.AppendU32BE(b, v)
	}
	b = append(b, make([]byte, 24)...) // predefined
	b = ioutil.AppendU32BE(b, nextTrackID)
	return b
}

func trakBody(trackID uint32, tr muxTrack, mdatOffset uint64) []byte {
	duration := trackDuration(tr)
	var body []byte
	body = append(body, appendBox(nil, "tkhd", tkhdBody(trackID, tr.stream, duration))...)
	body = append(body, appendBox(nil, "mdia", mdiaBody(tr, mdatOffset))...)
	return body
}

func tkhdBody(trackID uint32, s *core.Stream, duration int64) []byte {
	var b []byte
	b = append(b, 0) // version 0
	b = append(b, 0, 0, 0x07) // flags: enabled|in-movie|in-preview
	b = ioutil.AppendU32BE(b, 0) // creation time
	b = ioutil.AppendU32BE(b, 0) // modification time
	b = ioutil.AppendU32BE(b, trackID)
	b = ioutil.AppendU32BE(b, 0) // reserved
	b = ioutil.AppendU32BE(b, uint32(duration))
	b = append(b, make([]byte, 8)...) // reserved
	b = ioutil.AppendU16BE(b, 0)      // layer
	b = ioutil.AppendU16BE(b, 0)      // alternate group
	vol := uint16(0)
	if s.Kind == core.Audio {
		vol = 0x0100
	}
	b = ioutil.AppendU16BE(b, vol)
	b = append(b, 0, 0) // reserved
	matrix := []uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}
	for _, v := range matrix {
		b = ioutil.AppendU32BE(b, v)
	}
	b = ioutil.AppendU32BE(b, s.Width<<16)
	b = ioutil.AppendU32BE(b, s.Height<<16)
	return b
}

func mdiaBody(tr muxTrack, mdatOffset uint64) []byte {
	timescale := trackTimescale(tr.stream)
	duration := trackDuration(tr)
	var body []byte
	body = append(body, appendBox(nil, "mdhd", mdhdBody(timescale, duration))...)
	body = append(body, appendBox(nil, "hdlr", hdlrBody(tr.stream.Kind))...)
	body = append(body, appendBox(nil, "minf", minfBody(tr, mdatOffset))...)
	return body
}

func trackTimescale(s *core.Stream) uint32 {
	if s.Kind == core.Audio && s.SampleRate != 0 {
		return s.SampleRate
	}
	if s.Timebase.Den != 0 {
		return s.Timebase.Den
	}
	return 90000
}

func mdhdBody(timescale uint32, duration int64) []byte {
	var b []byte
	b = append(b, 0, 0, 0, 0) // version 0, flags
	b = ioutil.AppendU32BE(b, 0)
	b = ioutil.AppendU32BE(b, 0)
	b = ioutil.AppendU32BE(b, timescale)
	b = ioutil.AppendU32BE(b, uint32(duration))
	b = ioutil.AppendU16BE(b, 0x55C4) // language "und"
	b = ioutil.AppendU16BE(b, 0)      // pre-defined
	return b
}

func hdlrBody(kind core.StreamKind) []byte {
	handler := "soun"
	name := "SoundHandler"
	if kind == core.Video {
		handler, name = "vide", "VideoHandler"
	}
	var b []byte
	b = append(b, 0, 0, 0, 0) // version, flags
	b = ioutil.AppendU32BE(b, 0) // pre-defined
	b = append(b, handler...)
	b = append(b, make([]byte, 12)...) // reserved
	b = append(b, name...)
	b = append(b, 0)
	return b
}

func minfBody(tr muxTrack, mdatOffset uint64) []byte {
	var body []byte
	if tr.stream.Kind == core.Audio {
		body = append(body, appendBox(nil, "smhd", []byte{0, 0, 0, 0, 0, 0, 0, 0})...)
	} else {
		body = append(body, appendBox(nil, "vmhd", []byte{0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0})...)
	}
	body = append(body, appendBox(nil, "dinf", dinfBody())...)
	body = append(body, appendBox(nil, "stbl", stblBody(tr, mdatOffset))...)
	return body
}

func dinfBody() []byte {
	dref := appendBox(nil, "url ", []byte{0, 0, 0, 1})
	drefBody := ioutil.AppendU32BE(nil, 0)
	drefBody = ioutil.AppendU32BE(drefBody, 1)
	drefBody = append(drefBody, dref...)
	return appendBox(nil, "dref", drefBody)
}

func stblBody(tr muxTrack, mdatOffset uint64) []byte {
	var body []byte
	body = append(body, appendBox(nil, "stsd", stsdBody(tr.stream))...)
	body = append(body, appendBox(nil, "stts", sttsBoxBody(tr.samples))...)
	if ctts := cttsBoxBody(tr.samples); ctts != nil {
		body = append(body, appendBox(nil, "ctts", ctts)...)
	}
	body = append(body, appendBox(nil, "stsc", stscBoxBody(len(tr.samples)))...)
	body = append(body, appendBox(nil, "stsz", stszBoxBody(tr.samples))...)
	offsets := make([]uint64, len(tr.samples))
	for i, s := range tr.samples {
		offsets[i] = mdatOffset + s.relOffset
	}
	needs64 := len(offsets) > 0 && offsets[len(offsets)-1] > 0xFFFFFFFF
	if needs64 {
		body = append(body, appendBox(nil, "co64", co64BoxBody(offsets))...)
	} else {
		body = append(body, appendBox(nil, "stco", stcoBoxBody(offsets))...)
	}
	if stss := stssBoxBody(tr.samples); stss != nil {
		body = append(body, appendBox(nil, "stss", stss)...)
	}
	return body
}

func stsdBody(s *core.Stream) []byte {
	var entry []byte
	if s.Kind == core.Video {
		entry = avc1Entry(s)
	} else {
		entry = mp4aEntry(s)
	}
	var b []byte
	b = append(b, 0, 0, 0, 0) // version, flags
	b = ioutil.AppendU32BE(b, 1)
	return append(b, entry...)
}

func sampleEntryHeader(dataRefIndex uint16) []byte {
	b := make([]byte, 8)
	ioutil.PutU16BE(b[6:8], dataRefIndex)
	return b
}

func avc1Entry(s *core.Stream) []byte {
	fourcc := mp4FourCCFor(s.Codec, core.Video)
	var b []byte
	b = append(b, sampleEntryHeader(1)...)
	b = append(b, make([]byte, 16)...) // pre-defined/reserved/pre-defined
	b = ioutil.AppendU16BE(b, uint16(s.Width))
	b = ioutil.AppendU16BE(b, uint16(s.Height))
	b = ioutil.AppendU32BE(b, 0x00480000) // horizresolution 72dpi
	b = ioutil.AppendU32BE(b, 0x00480000) // vertresolution 72dpi
	b = ioutil.AppendU32BE(b, 0)          // reserved
	b = ioutil.AppendU16BE(b, 1)          // frame count
	b = append(b, make([]byte, 32)...)    // compressorname
	b = ioutil.AppendU16BE(b, 0x0018)     // depth
	b = ioutil.AppendU16BE(b, 0xFFFF)     // pre-defined

	entry := ioutil.AppendU32BE(nil, uint32(8+len(b)))
	entry = append(entry, fourcc...)
	return append(entry, b...)
}

func mp4aEntry(s *core.Stream) []byte {
	fourcc := mp4FourCCFor(s.Codec, core.Audio)
	var b []byte
	b = append(b, sampleEntryHeader(1)...)
	b = append(b, make([]byte, 8)...) // version/revision/vendor
	b = ioutil.AppendU16BE(b, uint16(s.Channels))
	b = ioutil.AppendU16BE(b, 16) // sample size bits
	b = append(b, 0, 0, 0, 0)     // pre-defined/reserved
	b = ioutil.AppendU32BE(b, s.SampleRate<<16)

	entry := ioutil.AppendU32BE(nil, uint32(8+len(b)))
	entry = append(entry, fourcc...)
	return append(entry, b...)
}

// mp4FourCCFor is the reverse of codecutil.FromMP4FourCC for the subset
// of canonical names this muxer emits sample descriptions for.
func mp4FourCCFor(codec string, kind core.StreamKind) string {
	switch codec {
	case codecutil.H264:
		return "avc1"
	case codecutil.H265:
		return "hvc1"
	case codecutil.AAC:
		return "mp4a"
	case codecutil.FLAC:
		return "fLaC"
	case codecutil.Opus:
		return "Opus"
	case codecutil.PCMS16LE:
		return "twos"
	case codecutil.PCMS24LE:
		return "in24"
	case codecutil.PCMS32LE:
		return "in32"
	case codecutil.PCMF32LE:
		return "fl32"
	default:
		if kind == core.Video {
			return "avc1"
		}
		return "mp4a"
	}
}

func sttsBoxBody(samples []muxSample) []byte {
	var entries []sttsEntry
	for i := 0; i < len(samples); i++ {
		var delta uint32
		if i+1 < len(samples) {
			delta = uint32(samples[i+1].dts - samples[i].dts)
		} else if len(entries) > 0 {
			delta = entries[len(entries)-1].delta
		}
		if len(entries) > 0 && entries[len(entries)-1].delta == delta {
			entries[len(entries)-1].count++
		} else {
			entries = append(entries, sttsEntry{count: 1, delta: delta})
		}
	}
	b := ioutil.AppendU32BE(nil, 0) // version/flags
	b = ioutil.AppendU32BE(b, uint32(len(entries)))
	for _, e := range entries {
		b = ioutil.AppendU32BE(b, e.count)
		b = ioutil.AppendU32BE(b, e.delta)
	}
	return b
}

func cttsBoxBody(samples []muxSample) []byte {
	hasOffset := false
	for _, s := range samples {
		if s.ptsDelta != 0 {
			hasOffset = true
			break
		}
	}
	if !hasOffset {
		return nil
	}
	var entries []sttsEntry
	for _, s := range samples {
		delta := uint32(int32(s.ptsDelta))
		if len(entries) > 0 && entries[len(entries)-1].delta == delta {
			entries[len(entries)-1].count++
		} else {
			entries = append(entries, sttsEntry{count: 1, delta: delta})
		}
	}
	b := ioutil.AppendU32BE(nil, 0)
	b = ioutil.AppendU32BE(b, uint32(len(entries)))
	for _, e := range entries {
		b = ioutil.AppendU32BE(b, e.count)
		b = ioutil.AppendU32BE(b, e.delta)
	}
	return b
}

// stscBoxBody emits one chunk per sample: correct for any interleaving
// order mdat ends up in, at the cost of a larger table than a
// contiguous-run encoding would produce.
func stscBoxBody(sampleCount int) []byte {
	b := ioutil.AppendU32BE(nil, 0)
	if sampleCount == 0 {
		return ioutil.AppendU32BE(b, 0)
	}
	b = ioutil.AppendU32BE(b, 1)
	b = ioutil.AppendU32BE(b, 1) // first_chunk
	b = ioutil.AppendU32BE(b, 1) // samples_per_chunk
	b = ioutil.AppendU32BE(b, 1) // sample_description_index
	return b
}

func stszBoxBody(samples []muxSample) []byte {
	b := ioutil.AppendU32BE(nil, 0)
	b = ioutil.AppendU32BE(b, 0) // sample_size == 0 => per-sample table follows
	b = ioutil.AppendU32BE(b, uint32(len(samples)))
	for _, s := range samples {
		b = ioutil.AppendU32BE(b, s.size)
	}
	return b
}

func stcoBoxBody(offsets []uint64) []byte {
	b := ioutil.AppendU32BE(nil, 0)
	b = ioutil.AppendU32BE(b, uint32(len(offsets)))
	for _, o := range offsets {
		b = ioutil.AppendU32BE(b, uint32(o))
	}
	return b
}

func co64BoxBody(offsets []uint64) []byte {
	b := ioutil.AppendU32BE(nil, 0)
	b = ioutil.AppendU32BE(b, uint32(len(offsets)))
	for _, o := range offsets {
		b = ioutil.AppendU64BE(b, o)
	}
	return b
}

// stssBoxBody lists sync samples; nil (no box written) means every
// sample is a sync sample, matching the demuxer's interpretation of a
// missing stss.
func stssBoxBody(samples []muxSample) []byte {
	allSync := true
	var syncNums []uint32
	for i, s := range samples {
		if s.keyframe {
			syncNums = append(syncNums, uint32(i+1))
		} else {
			allSync = false
		}
	}
	if allSync {
		return nil
	}
	b := ioutil.AppendU32BE(nil, 0)
	b = ioutil.AppendU32BE(b, uint32(len(syncNums)))
	for _, n := range syncNums {
		b = ioutil.AppendU32BE(b, n)
	}
	return b
}
