/*
NAME
  pcm.go

DESCRIPTION
  pcm.go implements the PCM codec: Decoder copies a packet's payload into a
  Frame whose audio format matches the stream's bit depth and signedness;
  Encoder is the inverse.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pcm implements the linear-PCM codec: bit-exact copy between a
// container packet's bytes and a Frame's sample buffer, for 16-, 24- and
// 32-bit (float) depths.
package pcm

import (
	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

// Decoder copies packet payloads into audio Frames. It holds no state
// across packets: PCM has no prediction history to carry.
type Decoder struct {
	sampleRate uint32
	channels   uint8
	format     core.SampleFormat
	streamIdx  uint32
	timebase   core.Timebase
}

// NewDecoder returns a Decoder configured for the given stream format.
func NewDecoder(sampleRate uint32, channels uint8, format core.SampleFormat, streamIndex uint32, tb core.Timebase) *Decoder {
	return &Decoder{sampleRate: sampleRate, channels: channels, format: format, streamIdx: streamIndex, timebase: tb}
}

// Decode turns one packet into one audio Frame. 24-bit packed samples are
// read as 3 little-endian bytes, sign-extended to i32 by shifting left 8
// then arithmetic-right 8; here that widening happens implicitly because
// the Frame keeps the original packed bytes and only widens when a
// transform needs int32 samples (see SampleAt).
func (d *Decoder) Decode(p *core.Packet) ([]*core.Frame, error) {
	if p.EOS() {
		return nil, nil
	}
	bps := d.format.BytesPerSample()
	if bps == 0 {
		return nil, errors.Errorf("pcm: decoder configured with non-PCM format %v", d.format)
	}
	frameSize := bps * int(d.channels)
	if frameSize == 0 || len(p.Payload)%frameSize != 0 {
		return nil, ioutil.New(ioutil.InvalidData, errors.Errorf("pcm: payload length %d is not a multiple of frame size %d", len(p.Payload), frameSize))
	}
	af := &core.AudioFrame{
		Data:       append([]byte(nil), p.Payload...),
		SampleRate: d.sampleRate,
		Channels:   d.channels,
		NbSamples:  len(p.Payload) / frameSize,
		Format:     d.format,
	}
	f := core.NewAudioFrame(af, d.timebase, d.streamIdx)
	f.PTS = p.PTS
	return []*core.Frame{f}, nil
}

// Flush is a no-op: PCM decoding is stateless.
func (d *Decoder) Flush() ([]*core.Frame, error) { return nil, nil }

// Encoder is the inverse of Decoder: it copies a Frame's samples into a
// packet, failing if the frame's sample rate doesn't match the configured
// stream rate.
type Encoder struct {
	sampleRate uint32
	streamIdx  uint32
	timebase   core.Timebase
}

// NewEncoder returns an Encoder configured for the given stream's sample
// rate.
func NewEncoder(sampleRate uint32, streamIndex uint32, tb core.Timebase) *Encoder {
	return &Encoder{sampleRate: sampleRate, streamIdx: streamIndex, timebase: tb}
}

// Encode turns one audio Frame into one packet.
func (e *Encoder) Encode(f *core.Frame) ([]*core.Packet, error) {
	if f.IsEmpty() {
		return nil, nil
	}
	if f.Kind != core.KindAudio || f.Audio == nil {
		return nil, errors.New("pcm: encoder given a non-audio frame")
	}
	if f.Audio.SampleRate != e.sampleRate {
		return nil, ioutil.New(ioutil.InvalidData, errors.Errorf("pcm: frame sample rate %d does not match stream rate %d", f.Audio.SampleRate, e.sampleRate))
	}
	p := &core.Packet{
		Payload:     append([]byte(nil), f.Audio.Data...),
		StreamIndex: e.streamIdx,
		PTS:         f.PTS,
		DTS:         f.PTS,
		Timebase:    e.timebase,
	}
	return []*core.Packet{p}, nil
}

// Flush is a no-op: PCM encoding is stateless.
func (e *Encoder) Flush() ([]*core.Packet, error) { return nil, nil }

// SampleAt24 reads the i-th signed 24-bit little-endian sample (3 packed
// bytes) out of buf, sign-extended to int32 by shifting left 8 then
// arithmetic shift right 8.
func SampleAt24(buf []byte, i int) int32 {
	off := i * 3
	v := int32(buf[off]) | int32(buf[off+1])<<8 | int32(buf[off+2])<<16
	return (v << 8) >> 8
}

// PutSample24 packs a signed 24-bit sample into 3 little-endian bytes.
func PutSample24(buf []byte, i int, v int32) {
	off := i * 3
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
	buf[off+2] = byte(v >> 16)
}
