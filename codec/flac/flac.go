/*
NAME
  flac.go

DESCRIPTION
  flac.go implements FLAC subframe decoding (constant, verbatim, fixed and
  LPC prediction, partitioned Rice residual coding) and a minimal
  fixed-order-2 FLAC frame encoder.

AUTHOR
  Dan Kortschak <dan@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package flac implements FLAC subframe decode/encode: LPC and fixed
// prediction, partitioned Rice residual coding, and stereo decorrelation.
package flac

import (
	"math"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/bitio"
	"github.com/coastalsound/transcode/ioutil"
)

// fixedCoefs holds the fixed-predictor coefficients for orders 0..4.
var fixedCoefs = [5][]int32{
	{},
	{1},
	{2, -1},
	{3, -3, 1},
	{4, -6, 4, -1},
}

// ChannelAssignment identifies how a frame's channels are stored.
type ChannelAssignment int

const (
	Independent ChannelAssignment = iota
	LeftSide
	RightSide
	MidSide
)

// FrameHeader is a parsed FLAC frame header (post sync-code).
type FrameHeader struct {
	BlockSize     int
	SampleRate    uint32
	Channels      int
	Assignment    ChannelAssignment
	BitsPerSample int
	FrameNumber   uint64
}

// DecodeSubframe decodes one subframe of bitsPerSample-bit samples (the
// caller widens by 1 for a side channel) into exactly blockSize signed
// samples. It fails with InvalidData if the reader is exhausted before the
// subframe header can be read.
func DecodeSubframe(r *bitio.Reader, blockSize, bitsPerSample int) ([]int32, error) {
	if r.Exhausted() {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("flac: truncated subframe header"))
	}
	if z := r.ReadBit(); z != 0 {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("flac: subframe zero-bit violated"))
	}
	typ := r.ReadBits(6)

	wasted := 0
	if r.ReadBit() == 1 {
		wasted = r.ReadUnary() + 1
	}
	bps := bitsPerSample - wasted

	var out []int32
	var err error
	switch {
	case typ == 0:
		out = decodeConstant(r, blockSize, bps)
	case typ == 1:
		out = decodeVerbatim(r, blockSize, bps)
	case typ>>3 == 1 && typ&0x7 <= 4:
		out, err = decodeFixed(r, blockSize, bps, int(typ&0x7))
	case typ>>5 == 1:
		order := int(typ&0x1F) + 1
		out, err = decodeLPC(r, blockSize, bps, order)
	default:
		return nil, ioutil.New(ioutil.InvalidData, errors.Errorf("flac: reserved subframe type %d", typ))
	}
	if err != nil {
		return nil, err
	}
	if wasted > 0 {
		for i := range out {
			out[i] <<= uint(wasted)
		}
	}
	if r.Exhausted() {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("flac: subframe ran past end of frame"))
	}
	return out, nil
}

func decodeConstant(r *bitio.Reader, blockSize, bps int) []int32 {
	v := r.ReadSigned(bps)
	out := make([]int32, blockSize)
	for i := range out {
		out[i] = v
	}
	return out
}

func decodeVerbatim(r *bitio.Reader, blockSize, bps int) []int32 {
	out := make([]int32, blockSize)
	for i := range out {
		out[i] = r.ReadSigned(bps)
	}
	return out
}

func decodeFixed(r *bitio.Reader, blockSize, bps, order int) ([]int32, error) {
	out := make([]int32, blockSize)
	for i := 0; i < order; i++ {
		out[i] = r.ReadSigned(bps)
	}
	residual, err := decodeResiduals(r, blockSize, order)
	if err != nil {
		return nil, err
	}
	coefs := fixedCoefs[order]
	for i := order; i < blockSize; i++ {
		var pred int64
		for j, c := range coefs {
			pred += int64(c) * int64(out[i-1-j])
		}
		out[i] = int32(pred) + residual[i-order]
	}
	return out, nil
}

func decodeLPC(r *bitio.Reader, blockSize, bps, order int) ([]int32, error) {
	out := make([]int32, blockSize)
	for i := 0; i < order; i++ {
		out[i] = r.ReadSigned(bps)
	}
	precision := int(r.ReadBits(4)) + 1
	shift := int(r.ReadSigned(5))
	coefs := make([]int32, order)
	for i := range coefs {
		coefs[i] = r.ReadSigned(precision)
	}
	residual, err := decodeResiduals(r, blockSize, order)
	if err != nil {
		return nil, err
	}
	for i := order; i < blockSize; i++ {
		var pred int64
		for j, c := range coefs {
			pred += int64(c) * int64(out[i-1-j])
		}
		if shift > 0 {
			pred >>= uint(shift)
		}
		out[i] = int32(pred) + residual[i-order]
	}
	return out, nil
}

// decodeResiduals decodes blockSize-predictorOrder Rice-partitioned
// residual values.
func decodeResiduals(r *bitio.Reader, blockSize, predictorOrder int) ([]int32, error) {
	method := r.ReadBits(2)
	if method > 1 {
		return nil, ioutil.New(ioutil.InvalidData, errors.Errorf("flac: reserved residual coding method %d", method))
	}
	paramBits := 4
	escape := uint32(0xF)
	if method == 1 {
		paramBits = 5
		escape = 0x1F
	}
	partOrder := int(r.ReadBits(4))
	numParts := 1 << uint(partOrder)
	if blockSize%numParts != 0 {
		return nil, ioutil.New(ioutil.InvalidData, errors.Errorf("flac: block size %d not divisible by %d partitions", blockSize, numParts))
	}
	partLen := blockSize / numParts

	out := make([]int32, 0, blockSize-predictorOrder)
	for p := 0; p < numParts; p++ {
		n := partLen
		if p == 0 {
			n -= predictorOrder
		}
		param := r.ReadBits(paramBits)
		if param == escape {
			rawLen := int(r.ReadBits(5))
			for i := 0; i < n; i++ {
				out = append(out, r.ReadSigned(rawLen))
			}
			continue
		}
		k := uint(param)
		for i := 0; i < n; i++ {
			q := r.ReadUnary()
			rem := r.ReadBits(int(k))
			uv := uint32(q)<<k | rem
			out = append(out, zigzagDecode(uv))
		}
	}
	return out, nil
}

func zigzagDecode(u uint32) int32 {
	if u&1 == 0 {
		return int32(u >> 1)
	}
	return -int32(u>>1) - 1
}

func zigzagEncode(v int32) uint32 {
	if v >= 0 {
		return uint32(v) << 1
	}
	return (uint32(-v) << 1) - 1
}

// Reassign reverses stereo decorrelation for channel assignments 8-10
// (left/side, right/side, mid/side), given the two decoded channel buffers
// as stored in the bitstream.
func Reassign(assignment ChannelAssignment, ch0, ch1 []int32) (left, right []int32) {
	switch assignment {
	case LeftSide:
		left = ch0
		right = make([]int32, len(ch0))
		for i := range ch0 {
			right[i] = ch0[i] - ch1[i]
		}
	case RightSide:
		right = ch1
		left = make([]int32, len(ch1))
		for i := range ch1 {
			left[i] = ch1[i] + ch0[i]
		}
	case MidSide:
		left = make([]int32, len(ch0))
		right = make([]int32, len(ch0))
		for i := range ch0 {
			mid := int64(ch0[i])<<1 | int64(ch1[i])&1
			side := int64(ch1[i])
			l := (mid + side) >> 1
			r := (mid - side) >> 1
			left[i] = int32(l)
			right[i] = int32(r)
		}
	default:
		left, right = ch0, ch1
	}
	return left, right
}

// EncodeFixedOrder2Subframe writes one subframe using the fixed-order-2
// predictor with residuals coded as a single unpartitioned Rice run. CRC8
// and CRC16 for the enclosing frame are left as zero by the caller (a
// documented non-conformance, see DESIGN.md).
func EncodeFixedOrder2Subframe(w *bitio.Writer, samples []int32, bps int) {
	w.WriteBit(0)
	w.WriteBits(0x08|2, 6) // fixed, order 2
	w.WriteBit(0)          // no wasted bits

	const order = 2
	n := len(samples)
	if n < order {
		for _, s := range samples {
			w.WriteSigned(s, bps)
		}
		encodeResidualsUnpartitioned(w, nil)
		return
	}
	for i := 0; i < order; i++ {
		w.WriteSigned(samples[i], bps)
	}
	residual := make([]int32, n-order)
	coefs := fixedCoefs[order]
	for i := order; i < n; i++ {
		var pred int64
		for j, c := range coefs {
			pred += int64(c) * int64(samples[i-1-j])
		}
		residual[i-order] = samples[i] - int32(pred)
	}
	encodeResidualsUnpartitioned(w, residual)
}

// encodeResidualsUnpartitioned writes residual as a single Rice partition
// (partition order 0), choosing k from the mean absolute residual.
func encodeResidualsUnpartitioned(w *bitio.Writer, residual []int32) {
	w.WriteBits(0, 2) // 4-bit-parameter method
	w.WriteBits(0, 4) // partition order 0

	k := estimateRiceParameter(residual)
	w.WriteBits(uint32(k), 4)
	for _, v := range residual {
		u := zigzagEncode(v)
		q := u >> k
		w.WriteUnary(int(q))
		w.WriteBits(u&((1<<k)-1), int(k))
	}
}

// estimateRiceParameter picks k ≈ log2(mean(|residual|)), the standard
// bits(mean(|residual|)) heuristic.
func estimateRiceParameter(residual []int32) uint {
	if len(residual) == 0 {
		return 0
	}
	var sum float64
	for _, v := range residual {
		av := v
		if av < 0 {
			av = -av
		}
		sum += float64(av)
	}
	mean := sum / float64(len(residual))
	if mean < 1 {
		return 0
	}
	k := bits.Len(uint(math.Round(mean)))
	if k > 30 {
		k = 30
	}
	return uint(k)
}
