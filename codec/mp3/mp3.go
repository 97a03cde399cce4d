/*
NAME
  mp3.go

DESCRIPTION
  mp3.go parses MPEG audio frame headers (bit-exact) and implements a
  decoder that, per the accepted first-milestone scope, does not perform
  Huffman/IMDCT/synthesis decoding: it validates framing and produces
  silent PCM of the correct duration so the pipeline still has a Decoder
  to wire when an MP3 source is transcoded rather than remuxed.

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package mp3 implements MPEG audio frame header parsing. Full Huffman
// decode and IMDCT synthesis are not implemented; decode is framing-only.
package mp3

import (
	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

var bitrateTableV1L3 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
var sampleRateTableV1 = [4]int{44100, 48000, 32000, 0}

// Header is a parsed MPEG audio frame header.
type Header struct {
	Version      int // 0=MPEG2.5, 2=MPEG2, 3=MPEG1
	Layer        int // 1, 2, 3
	Protected    bool
	BitrateKbps  int
	SampleRate   int
	Padding      int
	ChannelMode  int
	FrameSize    int
	SamplesPerFrame int
}

// FindSync locates the first byte offset in buf at which a structurally
// valid frame header begins (sync word, valid version/layer, bitrate index
// not in {0, 15}, sample-rate index != 3), scanning from start.
func FindSync(buf []byte, start int) (int, bool) {
	for i := start; i+4 <= len(buf); i++ {
		if buf[i] != 0xFF || buf[i+1]&0xE0 != 0xE0 {
			continue
		}
		if h, err := ParseHeader(buf[i : i+4]); err == nil && h.FrameSize > 0 {
			return i, true
		}
	}
	return 0, false
}

// ParseHeader parses a 4-byte MPEG audio frame header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < 4 {
		return Header{}, ioutil.New(ioutil.UnexpectedEOF, errors.New("mp3: header shorter than 4 bytes"))
	}
	if b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return Header{}, ioutil.New(ioutil.InvalidData, errors.New("mp3: bad frame sync"))
	}
	versionBits := (b[1] >> 3) & 0x3
	layerBits := (b[1] >> 1) & 0x3
	protected := b[1]&0x1 == 0

	if layerBits == 0 {
		return Header{}, ioutil.New(ioutil.InvalidData, errors.New("mp3: reserved layer"))
	}
	layer := 4 - int(layerBits) // 1=11, 2=10, 3=01

	bitrateIdx := (b[2] >> 4) & 0xF
	if bitrateIdx == 0 || bitrateIdx == 15 {
		return Header{}, ioutil.New(ioutil.InvalidData, errors.Errorf("mp3: invalid bitrate index %d", bitrateIdx))
	}
	sampleRateIdx := (b[2] >> 2) & 0x3
	if sampleRateIdx == 3 {
		return Header{}, ioutil.New(ioutil.InvalidData, errors.New("mp3: reserved sample rate index"))
	}
	padding := int((b[2] >> 1) & 0x1)
	channelMode := int((b[3] >> 6) & 0x3)

	var version int
	switch versionBits {
	case 0:
		version = 0 // MPEG 2.5
	case 2:
		version = 2 // MPEG2
	case 3:
		version = 3 // MPEG1
	default:
		return Header{}, ioutil.New(ioutil.InvalidData, errors.New("mp3: reserved version"))
	}

	bitrate := bitrateTableV1L3[bitrateIdx]
	sampleRate := sampleRateTableV1[sampleRateIdx]
	if version != 3 {
		sampleRate /= 2
		if version == 0 {
			sampleRate /= 2
		}
	}
	if sampleRate == 0 || bitrate == 0 {
		return Header{}, ioutil.New(ioutil.InvalidData, errors.New("mp3: unsupported rate combination"))
	}

	samplesPerFrame := 1152
	if layer == 1 {
		samplesPerFrame = 384
	} else if layer == 2 {
		samplesPerFrame = 1152
	} else if layer == 3 && version != 3 {
		samplesPerFrame = 576
	}

	var frameSize int
	if layer == 1 {
		frameSize = (12*bitrate*1000/sampleRate + padding) * 4
	} else {
		frameSize = samplesPerFrame/8*bitrate*1000/sampleRate + padding
	}

	return Header{
		Version:         version,
		Layer:           layer,
		Protected:       protected,
		BitrateKbps:     bitrate,
		SampleRate:      sampleRate,
		Padding:         padding,
		ChannelMode:     channelMode,
		FrameSize:       frameSize,
		SamplesPerFrame: samplesPerFrame,
	}, nil
}

// Channels returns the channel count implied by ChannelMode (0-2 = stereo
// variants, 3 = mono).
func (h Header) Channels() int {
	if h.ChannelMode == 3 {
		return 1
	}
	return 2
}

// Decoder validates MP3 frame headers and emits silent PCM16 of the
// correct sample count per frame (see package doc: Huffman/IMDCT decoding
// is out of scope for this milestone).
type Decoder struct {
	streamIdx uint32
	timebase  core.Timebase
}

func NewDecoder(streamIndex uint32, tb core.Timebase) *Decoder {
	return &Decoder{streamIdx: streamIndex, timebase: tb}
}

func (d *Decoder) Decode(p *core.Packet) ([]*core.Frame, error) {
	if p.EOS() {
		return nil, nil
	}
	hdr, err := ParseHeader(p.Payload)
	if err != nil {
		return nil, err
	}
	channels := hdr.Channels()
	data := make([]byte, hdr.SamplesPerFrame*channels*2)
	af := &core.AudioFrame{
		Data:       data,
		SampleRate: uint32(hdr.SampleRate),
		Channels:   uint8(channels),
		NbSamples:  hdr.SamplesPerFrame,
		Format:     core.PCM16,
	}
	f := core.NewAudioFrame(af, d.timebase, d.streamIdx)
	f.PTS = p.PTS
	return []*core.Frame{f}, nil
}

func (d *Decoder) Flush() ([]*core.Frame, error) { return nil, nil }
