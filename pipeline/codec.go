/*
NAME
  codec.go

DESCRIPTION
  codec.go builds a core.Decoder/core.Encoder pair for one stream's
  source and target codec names. It is the only file in package pipeline
  that imports the concrete codec packages; everything above it speaks core.Decoder/
  core.Encoder.

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pipeline

import (
	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/codec/aac"
	"github.com/coastalsound/transcode/codec/adpcm"
	"github.com/coastalsound/transcode/codec/codecutil"
	"github.com/coastalsound/transcode/codec/flac"
	"github.com/coastalsound/transcode/codec/h264"
	"github.com/coastalsound/transcode/codec/mp3"
	"github.com/coastalsound/transcode/codec/pcm"
	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

// defaultADPCMBlockAlign is used when a stream's BlockAlign hint is
// unknown (e.g. synthesizing a fresh ADPCM output stream rather than
// carrying one demuxed from WAV).
const defaultADPCMBlockAlign = 256

// pcm16Family holds the codecs whose Decoder emits (and whose Encoder
// consumes) a core.PCM16 AudioFrame, so any pair within it can be
// bridged by decoding through one and encoding through the other.
var pcm16Family = map[string]bool{
	codecutil.PCMS16LE:    true,
	codecutil.ADPCMIMAWAV: true,
	codecutil.FLAC:        true,
}

// canBridge reports whether src can be decoded and re-encoded as dst
// through a shared Frame representation.
func canBridge(src, dst string) bool {
	if src == dst {
		return true
	}
	return pcm16Family[src] && pcm16Family[dst]
}

func newDecoder(s *core.Stream) (core.Decoder, error) {
	switch s.Codec {
	case codecutil.PCMS16LE:
		return pcm.NewDecoder(s.SampleRate, s.Channels, core.PCM16, uint32(s.Index), s.Timebase), nil
	case codecutil.PCMS24LE:
		return pcm.NewDecoder(s.SampleRate, s.Channels, core.PCM24, uint32(s.Index), s.Timebase), nil
	case codecutil.PCMS32LE:
		return pcm.NewDecoder(s.SampleRate, s.Channels, core.PCM32F, uint32(s.Index), s.Timebase), nil
	case codecutil.ADPCMIMAWAV:
		blockAlign := int(s.BlockAlign)
		if blockAlign == 0 {
			blockAlign = defaultADPCMBlockAlign
		}
		return adpcm.NewDecoder(s.SampleRate, s.Channels, blockAlign, uint32(s.Index), s.Timebase), nil
	case codecutil.FLAC:
		si := flac.StreamInfo{SampleRate: s.SampleRate, Channels: s.Channels, BitsPerSample: s.BitDepth}
		return flac.NewDecoder(si, uint32(s.Index), s.Timebase), nil
	case codecutil.AAC:
		return aac.NewDecoder(uint32(s.Index), s.Timebase), nil
	case codecutil.MP3:
		return mp3.NewDecoder(uint32(s.Index), s.Timebase), nil
	case codecutil.H264:
		return h264.NewDecoder(s.Width, s.Height, uint32(s.Index), s.Timebase), nil
	default:
		return nil, ioutil.New(ioutil.InvalidData, errors.Errorf("codec: no decoder for %q", s.Codec))
	}
}

// newEncoder builds an Encoder writing stream index streamIdx at
// timebase tb, configured from src (the already-resolved source format:
// sample rate, channels, bit depth, dimensions) to produce dstCodec.
func newEncoder(dstCodec string, src *core.Stream, streamIdx uint32, tb core.Timebase) (core.Encoder, error) {
	switch dstCodec {
	case codecutil.PCMS16LE:
		return pcm.NewEncoder(src.SampleRate, streamIdx, tb), nil
	case codecutil.PCMS24LE, codecutil.PCMS32LE:
		return pcm.NewEncoder(src.SampleRate, streamIdx, tb), nil
	case codecutil.ADPCMIMAWAV:
		blockAlign := int(src.BlockAlign)
		if blockAlign == 0 {
			blockAlign = defaultADPCMBlockAlign
		}
		return adpcm.NewEncoder(src.SampleRate, src.Channels, blockAlign, streamIdx, tb), nil
	case codecutil.FLAC:
		bps := int(src.BitDepth)
		if bps == 0 {
			bps = 16
		}
		return flac.NewEncoder(src.SampleRate, src.Channels, bps, streamIdx, tb), nil
	case codecutil.AAC:
		idx, ok := aacSampleRateIndex(src.SampleRate)
		if !ok {
			return nil, ioutil.New(ioutil.InvalidData, errors.Errorf("codec: sample rate %d has no ADTS index", src.SampleRate))
		}
		const profileLC = 1
		return aac.NewEncoder(profileLC, idx, src.Channels, streamIdx, tb), nil
	case codecutil.H264:
		sps, pps := h264.DefaultSPSPPS(src.Width, src.Height)
		return h264.NewEncoder(sps, pps, streamIdx, tb), nil
	default:
		return nil, ioutil.New(ioutil.InvalidData, errors.Errorf("codec: no encoder for %q", dstCodec))
	}
}

// aacSampleRateIndex reverse-looks-up the ADTS sampling_frequency_index
// for rate, since package aac exposes only the forward direction.
func aacSampleRateIndex(rate uint32) (uint8, bool) {
	for i := uint8(0); i < 12; i++ {
		if aac.SampleRateForIndex(i) == rate {
			return i, true
		}
	}
	return 0, false
}
