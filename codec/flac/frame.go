package flac

import (
	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/bitio"
	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

// sampleRateTable implements FLAC's coded sample-rate lookup; 0 and the
// reserved entries mean "read from the end-of-header field" which this
// decoder does not need since STREAMINFO supplies the rate.
var sampleRateTable = [12]uint32{
	0, 88200, 176400, 192000, 8000, 16000, 22050, 24000, 32000, 44100, 48000, 96000,
}

// StreamInfo is FLAC's mandatory first metadata block.
type StreamInfo struct {
	MinBlockSize  uint16
	MaxBlockSize  uint16
	MinFrameSize  uint32
	MaxFrameSize  uint32
	SampleRate    uint32
	Channels      uint8
	BitsPerSample uint8
	TotalSamples  uint64
	MD5           [16]byte
}

// ParseStreamInfo decodes a 34-byte STREAMINFO metadata block body.
func ParseStreamInfo(body []byte) (StreamInfo, error) {
	if len(body) < 34 {
		return StreamInfo{}, ioutil.New(ioutil.InvalidData, errors.Errorf("flac: STREAMINFO body too short: %d bytes", len(body)))
	}
	r := bitio.NewReader(body)
	si := StreamInfo{
		MinBlockSize: uint16(r.ReadBits(16)),
		MaxBlockSize: uint16(r.ReadBits(16)),
		MinFrameSize: r.ReadBits(24),
		MaxFrameSize: r.ReadBits(24),
		SampleRate:   r.ReadBits(20),
		Channels:     uint8(r.ReadBits(3)) + 1,
	}
	si.BitsPerSample = uint8(r.ReadBits(5)) + 1
	si.TotalSamples = r.ReadBits64(36)
	copy(si.MD5[:], body[18:34])
	return si, nil
}

// ParseFrameHeader parses a FLAC frame header starting at the sync code.
// sampleRate and bitsPerSample are taken from STREAMINFO if the header's
// coded fields indicate "get from STREAMINFO" (the common case for this
// decoder, which only needs to handle streams it also demuxed).
func ParseFrameHeader(r *bitio.Reader, si StreamInfo) (FrameHeader, error) {
	sync := r.ReadBits(14)
	if sync != 0x3FFE {
		return FrameHeader{}, ioutil.New(ioutil.InvalidData, errors.Errorf("flac: bad frame sync 0x%04x", sync))
	}
	r.ReadBit() // reserved
	r.ReadBit() // blocking strategy, unused by this decoder

	blockSizeCode := r.ReadBits(4)
	sampleRateCode := r.ReadBits(4)
	chAssign := r.ReadBits(4)
	bpsCode := r.ReadBits(3)
	r.ReadBit() // reserved

	_, ok := r.ReadUTF8VLQ()
	if !ok {
		return FrameHeader{}, ioutil.New(ioutil.InvalidData, errors.New("flac: invalid frame/sample number VLQ"))
	}

	var blockSize int
	switch {
	case blockSizeCode == 0:
		return FrameHeader{}, ioutil.New(ioutil.InvalidData, errors.New("flac: block_size_code 0 is reserved"))
	case blockSizeCode == 1:
		blockSize = 192
	case blockSizeCode >= 2 && blockSizeCode <= 5:
		blockSize = 576 << (blockSizeCode - 2)
	case blockSizeCode == 6:
		blockSize = int(r.ReadBits(8)) + 1
	case blockSizeCode == 7:
		blockSize = int(r.ReadBits(16)) + 1
	case blockSizeCode >= 8 && blockSizeCode <= 15:
		blockSize = 256 << (blockSizeCode - 8)
	}

	sampleRate := si.SampleRate
	switch {
	case sampleRateCode >= 1 && sampleRateCode <= 11:
		if sampleRateTable[sampleRateCode] != 0 {
			sampleRate = sampleRateTable[sampleRateCode]
		}
	case sampleRateCode == 12:
		sampleRate = r.ReadBits(8) * 1000
	case sampleRateCode == 13:
		sampleRate = r.ReadBits(16)
	case sampleRateCode == 14:
		sampleRate = r.ReadBits(16) * 10
	}

	var assignment ChannelAssignment
	channels := int(si.Channels)
	switch {
	case chAssign <= 7:
		channels = int(chAssign) + 1
		assignment = Independent
	case chAssign == 8:
		channels = 2
		assignment = LeftSide
	case chAssign == 9:
		channels = 2
		assignment = RightSide
	case chAssign == 10:
		channels = 2
		assignment = MidSide
	default:
		return FrameHeader{}, ioutil.New(ioutil.InvalidData, errors.Errorf("flac: reserved channel assignment %d", chAssign))
	}

	bps := int(si.BitsPerSample)
	switch bpsCode {
	case 0:
	case 1:
		bps = 8
	case 2:
		bps = 12
	case 4:
		bps = 16
	case 5:
		bps = 20
	case 6:
		bps = 24
	default:
		return FrameHeader{}, ioutil.New(ioutil.InvalidData, errors.Errorf("flac: reserved bits-per-sample code %d", bpsCode))
	}

	r.AlignToByte()
	r.ReadBits(8) // CRC8, unchecked (see DESIGN.md on the known encoder non-conformance)

	return FrameHeader{
		BlockSize:     blockSize,
		SampleRate:    sampleRate,
		Channels:      channels,
		Assignment:    assignment,
		BitsPerSample: bps,
	}, nil
}

// DecodeFrame decodes one complete FLAC frame (header + subframes) into
// interleaved 16-bit little-endian PCM bytes.
func DecodeFrame(payload []byte, si StreamInfo) ([]byte, FrameHeader, error) {
	r := bitio.NewReader(payload)
	hdr, err := ParseFrameHeader(r, si)
	if err != nil {
		return nil, FrameHeader{}, err
	}

	subBPS := hdr.BitsPerSample
	nSub := hdr.Channels
	if hdr.Assignment != Independent {
		nSub = 2
	}
	subs := make([][]int32, nSub)
	for c := 0; c < nSub; c++ {
		bps := subBPS
		if (hdr.Assignment == LeftSide && c == 1) || (hdr.Assignment == RightSide && c == 0) || (hdr.Assignment == MidSide && c == 1) {
			bps++
		}
		s, err := DecodeSubframe(r, hdr.BlockSize, bps)
		if err != nil {
			return nil, FrameHeader{}, err
		}
		subs[c] = s
	}

	var channels [][]int32
	if hdr.Assignment == Independent {
		channels = subs
	} else {
		l, rr := Reassign(hdr.Assignment, subs[0], subs[1])
		channels = [][]int32{l, rr}
	}

	out := make([]byte, hdr.BlockSize*len(channels)*2)
	for i := 0; i < hdr.BlockSize; i++ {
		for c := range channels {
			off := (i*len(channels) + c) * 2
			ioutil.PutU16LE(out[off:], uint16(int16(channels[c][i])))
		}
	}
	return out, hdr, nil
}

// Decoder decodes one FLAC audio stream, one container-framed FLAC frame
// per packet, into 16-bit PCM frames.
type Decoder struct {
	si        StreamInfo
	streamIdx uint32
	timebase  core.Timebase
}

// NewDecoder returns a Decoder for the given STREAMINFO.
func NewDecoder(si StreamInfo, streamIndex uint32, tb core.Timebase) *Decoder {
	return &Decoder{si: si, streamIdx: streamIndex, timebase: tb}
}

func (d *Decoder) Decode(p *core.Packet) ([]*core.Frame, error) {
	if p.EOS() {
		return nil, nil
	}
	pcm, hdr, err := DecodeFrame(p.Payload, d.si)
	if err != nil {
		return nil, err
	}
	af := &core.AudioFrame{
		Data:       pcm,
		SampleRate: hdr.SampleRate,
		Channels:   uint8(hdr.Channels),
		NbSamples:  hdr.BlockSize,
		Format:     core.PCM16,
	}
	f := core.NewAudioFrame(af, d.timebase, d.streamIdx)
	f.PTS = p.PTS
	return []*core.Frame{f}, nil
}

func (d *Decoder) Flush() ([]*core.Frame, error) { return nil, nil }

// Encoder writes each incoming PCM16 audio Frame as one FLAC frame using
// the fixed-order-2 subframe encoder, per channel, independent assignment.
type Encoder struct {
	sampleRate uint32
	channels   uint8
	bps        int
	streamIdx  uint32
	timebase   core.Timebase
	frameNum   uint64
}

// NewEncoder returns an Encoder for the given stream format.
func NewEncoder(sampleRate uint32, channels uint8, bitsPerSample int, streamIndex uint32, tb core.Timebase) *Encoder {
	return &Encoder{sampleRate: sampleRate, channels: channels, bps: bitsPerSample, streamIdx: streamIndex, timebase: tb}
}

func (e *Encoder) Encode(f *core.Frame) ([]*core.Packet, error) {
	if f.IsEmpty() {
		return nil, nil
	}
	if f.Kind != core.KindAudio || f.Audio == nil {
		return nil, errors.New("flac: encoder given a non-audio frame")
	}
	af := f.Audio
	blockSize := af.NbSamples
	channels := make([][]int32, af.Channels)
	for c := range channels {
		channels[c] = make([]int32, blockSize)
	}
	for i := 0; i < blockSize; i++ {
		for c := 0; c < int(af.Channels); c++ {
			off := (i*int(af.Channels) + c) * 2
			channels[c][i] = int32(ioutil.GetI16LE(af.Data[off:]))
		}
	}

	w := bitio.NewWriter()
	w.WriteBits(0x3FFE, 14)
	w.WriteBit(0)
	w.WriteBit(1) // fixed blocking strategy
	w.WriteBits(7, 4) // block size: explicit 16-bit field follows the header
	w.WriteBits(0, 4) // sample rate: take from STREAMINFO
	w.WriteBits(uint32(af.Channels)-1, 4)
	w.WriteBits(0, 3) // bits-per-sample: take from STREAMINFO
	w.WriteBit(0)
	writeUTF8VLQ(w, e.frameNum)
	w.WriteBits(uint32(blockSize-1), 16)
	w.AlignToByte()
	w.WriteBits(0, 8) // CRC8 placeholder

	for c := range channels {
		EncodeFixedOrder2Subframe(w, channels[c], e.bps)
	}
	w.AlignToByte()
	w.WriteBits(0, 16) // CRC16 placeholder

	payload, err := w.Bytes()
	if err != nil {
		return nil, err
	}
	e.frameNum++

	p := &core.Packet{
		Payload:     payload,
		StreamIndex: e.streamIdx,
		PTS:         f.PTS,
		DTS:         f.PTS,
		Timebase:    e.timebase,
	}
	return []*core.Packet{p}, nil
}

func (e *Encoder) Flush() ([]*core.Packet, error) { return nil, nil }

// writeUTF8VLQ writes v (a frame number, always small in this encoder) in
// the UTF-8-style VLQ used by FLAC frame headers.
func writeUTF8VLQ(w *bitio.Writer, v uint64) {
	switch {
	case v < 0x80:
		w.WriteBits(uint32(v), 8)
	case v < 0x800:
		w.WriteBits(uint32(0xC0|(v>>6)), 8)
		w.WriteBits(uint32(0x80|(v&0x3F)), 8)
	default:
		w.WriteBits(uint32(0xE0|(v>>12)), 8)
		w.WriteBits(uint32(0x80|((v>>6)&0x3F)), 8)
		w.WriteBits(uint32(0x80|(v&0x3F)), 8)
	}
}
