/*
NAME
  aac.go

DESCRIPTION
  aac.go parses and writes ADTS (Audio Data Transport Stream) headers: the
  self-synchronizing 7- or 9-byte frame wrapper AAC payloads travel in
  outside an MP4/MOV box tree.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package aac implements ADTS header parsing and writing, and an
// encoder/decoder pair that frame AAC payloads without performing real AAC
// audio coding, matching the system's accepted AAC passthrough scope.
package aac

import (
	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

// MaxFrameLength is the largest value ADTS's 13-bit frame_length field can
// hold (header + payload).
const MaxFrameLength = 8191

// ADTSHeader is a parsed (or to-be-written) ADTS frame header.
type ADTSHeader struct {
	ProtectionAbsent bool
	Profile          uint8 // 0..3: Main, LC, SSR, LTP
	SampleRateIndex  uint8 // 0..11
	ChannelConfig    uint8 // 1..7
	FrameLength      int   // header + payload, bytes
}

var sampleRates = [12]uint32{96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000}

// SampleRateForIndex returns the sample rate for a valid ADTS
// sampling_frequency_index (0..11), or 0 if out of range.
func SampleRateForIndex(idx uint8) uint32 {
	if int(idx) >= len(sampleRates) {
		return 0
	}
	return sampleRates[idx]
}

// ParseADTSHeader parses the fixed+variable ADTS header at the start of
// buf, returning the header and its length in bytes (7, or 9 if a CRC is
// present).
func ParseADTSHeader(buf []byte) (ADTSHeader, int, error) {
	if len(buf) < 7 {
		return ADTSHeader{}, 0, ioutil.New(ioutil.UnexpectedEOF, errors.New("aac: ADTS header shorter than 7 bytes"))
	}
	if buf[0] != 0xFF || buf[1]&0xF0 != 0xF0 {
		return ADTSHeader{}, 0, ioutil.New(ioutil.InvalidData, errors.New("aac: ADTS sync mismatch"))
	}
	layer := (buf[1] >> 1) & 0x3
	if layer != 0 {
		return ADTSHeader{}, 0, ioutil.New(ioutil.InvalidData, errors.Errorf("aac: ADTS layer must be 0, got %d", layer))
	}
	protectionAbsent := buf[1]&0x1 != 0

	profile := (buf[2] >> 6) & 0x3
	sampleRateIdx := (buf[2] >> 2) & 0xF
	if sampleRateIdx > 11 {
		return ADTSHeader{}, 0, ioutil.New(ioutil.InvalidData, errors.Errorf("aac: sample-rate index %d out of range", sampleRateIdx))
	}
	channelConfig := ((buf[2] & 0x1) << 2) | ((buf[3] >> 6) & 0x3)
	if channelConfig < 1 || channelConfig > 7 {
		return ADTSHeader{}, 0, ioutil.New(ioutil.InvalidData, errors.Errorf("aac: channel config %d out of range", channelConfig))
	}

	frameLength := (int(buf[3]&0x3) << 11) | (int(buf[4]) << 3) | (int(buf[5]) >> 5)
	if frameLength > MaxFrameLength {
		return ADTSHeader{}, 0, ioutil.New(ioutil.InvalidData, errors.Errorf("aac: frame_length %d exceeds %d", frameLength, MaxFrameLength))
	}

	headerLen := 7
	if !protectionAbsent {
		headerLen = 9
	}
	if frameLength < headerLen {
		return ADTSHeader{}, 0, ioutil.New(ioutil.InvalidData, errors.Errorf("aac: frame_length %d shorter than header %d", frameLength, headerLen))
	}

	return ADTSHeader{
		ProtectionAbsent: protectionAbsent,
		Profile:          profile,
		SampleRateIndex:  sampleRateIdx,
		ChannelConfig:    channelConfig,
		FrameLength:      frameLength,
	}, headerLen, nil
}

// WriteADTSHeader writes a 7-byte ADTS header (protection_absent=1, no
// CRC) for a payload of payloadLen bytes, given profile/sampleRateIndex/
// channelConfig. Fails if the resulting frame would exceed MaxFrameLength.
func WriteADTSHeader(dst []byte, profile, sampleRateIndex, channelConfig uint8, payloadLen int) ([]byte, error) {
	frameLength := 7 + payloadLen
	if frameLength > MaxFrameLength {
		return nil, ioutil.New(ioutil.InvalidData, errors.Errorf("aac: frame_length %d exceeds %d", frameLength, MaxFrameLength))
	}
	var hdr [7]byte
	hdr[0] = 0xFF
	hdr[1] = 0xF1 // MPEG-4, layer 0, protection_absent=1
	hdr[2] = (profile << 6) | (sampleRateIndex << 2) | ((channelConfig >> 2) & 0x1)
	hdr[3] = (channelConfig&0x3)<<6 | byte(frameLength>>11)&0x3
	hdr[4] = byte(frameLength >> 3)
	hdr[5] = byte(frameLength<<5) | 0x1F
	hdr[6] = 0xFC
	return append(dst, hdr[:]...), nil
}

// Decoder parses ADTS framing and emits the raw AAC payload as a
// pre-encoded audio frame (no audio decoding is performed).
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
	hdr, hdrLen, err := ParseADTSHeader(p.Payload)
	if err != nil {
		return nil, err
	}
	if len(p.Payload) < hdr.FrameLength {
		return nil, ioutil.New(ioutil.UnexpectedEOF, errors.Errorf("aac: payload %d bytes shorter than frame_length %d", len(p.Payload), hdr.FrameLength))
	}
	af := &core.AudioFrame{
		Data:       append([]byte(nil), p.Payload[hdrLen:hdr.FrameLength]...),
		SampleRate: SampleRateForIndex(hdr.SampleRateIndex),
		Channels:   hdr.ChannelConfig,
		NbSamples:  1024,
		Format:     core.SampleAAC,
	}
	f := core.NewAudioFrame(af, d.timebase, d.streamIdx)
	f.PTS = p.PTS
	return []*core.Frame{f}, nil
}

func (d *Decoder) Flush() ([]*core.Frame, error) { return nil, nil }

// Encoder wraps incoming PCM (or any byte payload) in ADTS headers at the
// configured profile/rate/channels, splitting payloads so that
// header+payload never exceeds MaxFrameLength.
type Encoder struct {
	profile         uint8
	sampleRateIndex uint8
	channelConfig   uint8
	streamIdx       uint32
	timebase        core.Timebase
}

// NewEncoder returns an Encoder configured with the ADTS profile/sample-
// rate-index/channel-config to stamp on every frame it writes.
func NewEncoder(profile, sampleRateIndex, channelConfig uint8, streamIndex uint32, tb core.Timebase) *Encoder {
	return &Encoder{profile: profile, sampleRateIndex: sampleRateIndex, channelConfig: channelConfig, streamIdx: streamIndex, timebase: tb}
}

func (e *Encoder) Encode(f *core.Frame) ([]*core.Packet, error) {
	if f.IsEmpty() {
		return nil, nil
	}
	if f.Kind != core.KindAudio || f.Audio == nil {
		return nil, errors.New("aac: encoder given a non-audio frame")
	}
	const maxPayload = MaxFrameLength - 7
	data := f.Audio.Data
	var packets []*core.Packet
	for off := 0; off < len(data); off += maxPayload {
		end := off + maxPayload
		if end > len(data) {
			end = len(data)
		}
		buf, err := WriteADTSHeader(nil, e.profile, e.sampleRateIndex, e.channelConfig, end-off)
		if err != nil {
			return nil, err
		}
		buf = append(buf, data[off:end]...)
		packets = append(packets, &core.Packet{
			Payload:     buf,
			StreamIndex: e.streamIdx,
			PTS:         f.PTS,
			DTS:         f.PTS,
			Timebase:    e.timebase,
		})
	}
	if len(data) == 0 {
		buf, err := WriteADTSHeader(nil, e.profile, e.sampleRateIndex, e.channelConfig, 0)
		if err != nil {
			return nil, err
		}
		packets = append(packets, &core.Packet{Payload: buf, StreamIndex: e.streamIdx, PTS: f.PTS, DTS: f.PTS, Timebase: e.timebase})
	}
	return packets, nil
}

func (e *Encoder) Flush() ([]*core.Packet, error) { return nil, nil }
