/*
NAME
  adpcm.go

DESCRIPTION
  adpcm.go implements IMA-ADPCM sample encode/decode, the per-channel
  predictor/step-index state, and the WAV ADPCM block framing (sync
  header per channel followed by packed nibbles).

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package adpcm implements the WAV IMA-ADPCM codec (format code 0x0011):
// per-channel predictor/step-index state, nibble encode/decode, and the
// block framing WAV uses to carry it.
package adpcm

import (
	"math"

	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

// indexTable adjusts a channel's step_index per decoded/encoded nibble.
var indexTable = [16]int8{
	-1, -1, -1, -1, 2, 4, 6, 8,
	-1, -1, -1, -1, 2, 4, 6, 8,
}

// stepTable is IMA-ADPCM's 89-entry quantizer step size table.
var stepTable = [89]int16{
	7, 8, 9, 10, 11, 12, 13, 14, 16, 17, 19, 21, 23, 25, 28, 31,
	34, 37, 41, 45, 50, 55, 60, 66, 73, 80, 88, 97, 107, 118, 130, 143,
	157, 173, 190, 209, 230, 253, 279, 307, 337, 371, 408, 449, 494, 544, 598, 658,
	724, 796, 876, 963, 1060, 1166, 1282, 1411, 1552, 1707, 1878, 2066, 2272, 2499, 2749, 3024,
	3327, 3660, 4026, 4428, 4871, 5358, 5894, 6484, 7132, 7845, 8630, 9493, 10442, 11487, 12635, 13899,
	15289, 16818, 18500, 20350, 22385, 24623, 27086, 29794, 32767,
}

// State is one channel's predictor and quantizer index, carried across
// blocks for that channel's decode or encode.
type State struct {
	Predictor int16
	StepIndex uint8
}

func clampIndex(idx int) uint8 {
	if idx < 0 {
		return 0
	}
	if idx > len(stepTable)-1 {
		return uint8(len(stepTable) - 1)
	}
	return uint8(idx)
}

func satAdd16(a, b int32) int16 {
	v := a + b
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// DecodeNibble decodes one 4-bit nibble, advancing s in place, and returns
// the reconstructed 16-bit sample.
func (s *State) DecodeNibble(n byte) int16 {
	step := stepTable[s.StepIndex]
	diff := int32(step >> 3)
	if n&4 != 0 {
		diff += int32(step)
	}
	if n&2 != 0 {
		diff += int32(step) >> 1
	}
	if n&1 != 0 {
		diff += int32(step) >> 2
	}
	if n&8 != 0 {
		diff = -diff
	}
	s.Predictor = satAdd16(int32(s.Predictor), diff)
	s.StepIndex = clampIndex(int(s.StepIndex) + int(indexTable[n]))
	return s.Predictor
}

// EncodeSample quantizes sample against s's current predictor/step,
// advancing s with exactly the update DecodeNibble would apply (the
// encoder and decoder must stay in lock-step for the prediction chain to
// match), and returns the encoded nibble.
func (s *State) EncodeSample(sample int16) byte {
	delta := int32(sample) - int32(s.Predictor)
	var nib byte
	if delta < 0 {
		nib = 8
		delta = -delta
	}
	step := int32(stepTable[s.StepIndex])
	diff := step >> 3
	mask := byte(4)
	d := delta
	for i := 0; i < 3; i++ {
		if d >= step {
			nib |= mask
			d -= step
			diff += step
		}
		mask >>= 1
		step >>= 1
	}
	if nib&8 != 0 {
		diff = -diff
	}
	s.Predictor = satAdd16(int32(s.Predictor), diff)
	s.StepIndex = clampIndex(int(s.StepIndex) + int(indexTable[nib]))
	return nib
}

// initIndex picks the step-table entry closest to half the absolute
// difference between the block's first two samples; it gives a
// reasonable starting quantizer without needing a second pass over the
// block.
func initIndex(s0, s1 int16) uint8 {
	halfDiff := math.Abs(float64(s0)-float64(s1)) / 2
	best := 0
	bestDist := math.Abs(float64(stepTable[0]) - halfDiff)
	for i, step := range stepTable {
		dist := math.Abs(float64(step) - halfDiff)
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return uint8(best)
}

// BlockHeaderSize is the per-channel sync header size: predictor (i16 LE) +
// step_index (u8) + reserved pad (u8).
const BlockHeaderSize = 4

// SamplesPerBlock computes the number of samples (per channel) a WAV
// IMA-ADPCM block of blockAlign bytes carries.
func SamplesPerBlock(blockAlign, channels int) int {
	return (blockAlign-BlockHeaderSize*channels)*2 + 1
}

// DecodeBlock decodes one WAV ADPCM block (blockAlign bytes) for the given
// channel count into interleaved 16-bit little-endian PCM, producing
// exactly SamplesPerBlock(len(block), channels) samples per channel.
func DecodeBlock(block []byte, channels int) ([]byte, error) {
	if channels <= 0 {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("adpcm: channels must be > 0"))
	}
	headerLen := BlockHeaderSize * channels
	if len(block) < headerLen {
		return nil, ioutil.New(ioutil.UnexpectedEOF, errors.New("adpcm: block shorter than header"))
	}
	states := make([]State, channels)
	for c := 0; c < channels; c++ {
		off := c * BlockHeaderSize
		states[c].Predictor = ioutil.GetI16LE(block[off : off+2])
		states[c].StepIndex = clampIndex(int(block[off+2]))
	}
	nSamples := SamplesPerBlock(len(block), channels)
	out := make([]byte, nSamples*channels*2)
	// Sample 0 per channel comes straight from the header.
	for c := 0; c < channels; c++ {
		ioutil.PutU16LE(out[c*2:], uint16(states[c].Predictor))
	}
	// Remaining samples come from 4-byte (8-nibble) groups per channel,
	// cycling channel by channel, standard MS IMA-ADPCM WAVE interleaving.
	data := block[headerLen:]
	pos := 0
	sampleIdx := 1
	for sampleIdx < nSamples {
		for c := 0; c < channels && sampleIdx < nSamples; c++ {
			for g := 0; g < 4 && sampleIdx < nSamples; g++ {
				if pos >= len(data) {
					return out, ioutil.New(ioutil.UnexpectedEOF, errors.New("adpcm: block truncated mid-group"))
				}
				b := data[pos]
				pos++
				lo := b & 0x0F
				hi := b >> 4
				s0 := states[c].DecodeNibble(lo)
				writeSample(out, sampleIdx, channels, c, s0)
				sampleIdx++
				if sampleIdx >= nSamples {
					break
				}
				s1 := states[c].DecodeNibble(hi)
				writeSample(out, sampleIdx, channels, c, s1)
				sampleIdx++
			}
		}
	}
	return out, nil
}

func writeSample(out []byte, sampleIdx, channels, channel int, v int16) {
	off := (sampleIdx*channels + channel) * 2
	ioutil.PutU16LE(out[off:], uint16(v))
}

// EncodeBlock encodes exactly SamplesPerBlock(blockAlign, channels) samples
// of interleaved 16-bit PCM (padding the tail with zero samples if pcm is
// short) into one blockAlign-sized WAV ADPCM block.
func EncodeBlock(pcm []byte, channels, blockAlign int) ([]byte, error) {
	if channels <= 0 {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("adpcm: channels must be > 0"))
	}
	nSamples := SamplesPerBlock(blockAlign, channels)
	get := func(i, c int) int16 {
		off := (i*channels + c) * 2
		if off+2 > len(pcm) {
			return 0
		}
		return ioutil.GetI16LE(pcm[off : off+2])
	}

	states := make([]State, channels)
	block := make([]byte, BlockHeaderSize*channels, blockAlign)
	for c := 0; c < channels; c++ {
		s0 := get(0, c)
		s1 := get(1, c)
		states[c] = State{Predictor: s0, StepIndex: initIndex(s0, s1)}
		off := c * BlockHeaderSize
		ioutil.PutU16LE(block[off:], uint16(s0))
		block[off+2] = byte(states[c].StepIndex)
		block[off+3] = 0
	}

	sampleIdx := 1
	for sampleIdx < nSamples {
		for c := 0; c < channels && sampleIdx < nSamples; c++ {
			for g := 0; g < 4 && sampleIdx < nSamples; g++ {
				lo := states[c].EncodeSample(get(sampleIdx, c))
				sampleIdx++
				var hi byte
				if sampleIdx < nSamples {
					hi = states[c].EncodeSample(get(sampleIdx, c))
					sampleIdx++
				}
				block = append(block, lo|hi<<4)
			}
		}
	}
	for len(block) < blockAlign {
		block = append(block, 0)
	}
	return block[:blockAlign], nil
}

// Decoder implements core.Decoder for one WAV IMA-ADPCM stream: each
// incoming Packet carries exactly one block.
type Decoder struct {
	sampleRate uint32
	channels   uint8
	blockAlign int
	streamIdx  uint32
	timebase   core.Timebase
}

func NewDecoder(sampleRate uint32, channels uint8, blockAlign int, streamIndex uint32, tb core.Timebase) *Decoder {
	return &Decoder{sampleRate: sampleRate, channels: channels, blockAlign: blockAlign, streamIdx: streamIndex, timebase: tb}
}

func (d *Decoder) Decode(p *core.Packet) ([]*core.Frame, error) {
	if p.EOS() {
		return nil, nil
	}
	pcm, err := DecodeBlock(p.Payload, int(d.channels))
	if err != nil {
		return nil, err
	}
	af := &core.AudioFrame{
		Data:       pcm,
		SampleRate: d.sampleRate,
		Channels:   d.channels,
		NbSamples:  len(pcm) / (2 * int(d.channels)),
		Format:     core.PCM16,
	}
	f := core.NewAudioFrame(af, d.timebase, d.streamIdx)
	f.PTS = p.PTS
	return []*core.Frame{f}, nil
}

func (d *Decoder) Flush() ([]*core.Frame, error) { return nil, nil }

// Encoder implements core.Encoder for one WAV IMA-ADPCM stream, buffering
// PCM16 input until a full block is available.
type Encoder struct {
	sampleRate uint32
	channels   uint8
	blockAlign int
	streamIdx  uint32
	timebase   core.Timebase

	buf        []byte
	samplesIn  int64 // total input samples consumed, for PTS accounting
}

func NewEncoder(sampleRate uint32, channels uint8, blockAlign int, streamIndex uint32, tb core.Timebase) *Encoder {
	return &Encoder{sampleRate: sampleRate, channels: channels, blockAlign: blockAlign, streamIdx: streamIndex, timebase: tb}
}

func (e *Encoder) blockBytes() int {
	return SamplesPerBlock(e.blockAlign, int(e.channels)) * int(e.channels) * 2
}

func (e *Encoder) Encode(f *core.Frame) ([]*core.Packet, error) {
	if f.IsEmpty() {
		return nil, nil
	}
	if f.Kind != core.KindAudio || f.Audio == nil {
		return nil, errors.New("adpcm: encoder given a non-audio frame")
	}
	e.buf = append(e.buf, f.Audio.Data...)
	var out []*core.Packet
	need := e.blockBytes()
	for len(e.buf) >= need {
		block, err := EncodeBlock(e.buf[:need], int(e.channels), e.blockAlign)
		if err != nil {
			return nil, err
		}
		out = append(out, e.packet(block))
		e.buf = e.buf[need:]
	}
	return out, nil
}

func (e *Encoder) packet(block []byte) *core.Packet {
	samplesPerBlock := SamplesPerBlock(e.blockAlign, int(e.channels))
	pts := e.samplesIn
	e.samplesIn += int64(samplesPerBlock)
	return &core.Packet{
		Payload:     block,
		StreamIndex: e.streamIdx,
		PTS:         pts,
		DTS:         pts,
		Timebase:    e.timebase,
	}
}

// Flush pads any remaining buffered samples to a full block with zeros
// and emits it.
func (e *Encoder) Flush() ([]*core.Packet, error) {
	if len(e.buf) == 0 {
		return nil, nil
	}
	need := e.blockBytes()
	padded := make([]byte, need)
	copy(padded, e.buf)
	e.buf = nil
	block, err := EncodeBlock(padded, int(e.channels), e.blockAlign)
	if err != nil {
		return nil, err
	}
	return []*core.Packet{e.packet(block)}, nil
}
