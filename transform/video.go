/*
NAME
  video.go

DESCRIPTION
  video.go implements the video-side built-in transforms: brightness and
  contrast (per-pixel affine adjustment) and blur (separable box blur,
  falling back to FFT-domain convolution for kernel sizes large enough
  that the spatial-domain pass would cost more).

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package transform

import (
	"github.com/mjibson/go-dsp/fft"
	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

func clampByte(v float64) byte {
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return byte(v)
}

// brightness adds a fixed offset to every raw pixel byte. It operates
// directly on the packed byte stream, so it applies equally to RGB24,
// RGBA32, YUV420/422/444 and GRAY8 without needing to know the pixel
// layout: luma and chroma planes and colour channels all shift by the
// same amount, which is the expected behaviour for brightness.
type brightness struct {
	offset float64
}

func newBrightness(values []string) (core.Transform, error) {
	v, err := parseFloatValue("brightness", values)
	if err != nil {
		return nil, err
	}
	return &brightness{offset: v}, nil
}

func (b *brightness) Apply(f *core.Frame) (*core.Frame, error) {
	if f.Kind != core.KindVideo || f.Video == nil {
		return f, nil
	}
	out := f.Clone()
	for i, px := range out.Video.Data {
		out.Video.Data[i] = clampByte(float64(px) + b.offset)
	}
	return out, nil
}

// contrast scales each raw pixel byte about the mid-grey point (128).
// factor of 1.0 is identity; factor of 0 flattens to solid grey.
type contrast struct {
	factor float64
}

func newContrast(values []string) (core.Transform, error) {
	v, err := parseFloatValue("contrast", values)
	if err != nil {
		return nil, err
	}
	return &contrast{factor: v}, nil
}

func (c *contrast) Apply(f *core.Frame) (*core.Frame, error) {
	if f.Kind != core.KindVideo || f.Video == nil {
		return f, nil
	}
	out := f.Clone()
	for i, px := range out.Video.Data {
		out.Video.Data[i] = clampByte((float64(px)-128)*c.factor + 128)
	}
	return out, nil
}

// blurFFTThreshold is the kernel radius above which blur switches from a
// spatial-domain separable box filter to an FFT-domain convolution; below
// it the direct pass is cheaper because it skips the transform overhead.
const blurFFTThreshold = 8

// blur applies a separable box blur of the given radius to a GRAY8 or
// YUV420/422/444 frame's luma plane (the leading Width*Height bytes of
// Data in all of those formats); chroma and RGB/RGBA frames pass through
// unmodified, since a box blur on packed interleaved colour channels
// would mix channels rather than blur within each.
type blur struct {
	radius int
}

func newBlur(values []string) (core.Transform, error) {
	r, err := parseIntValue("blur", values)
	if err != nil {
		return nil, err
	}
	if r <= 0 {
		return nil, ioutil.New(ioutil.InvalidData, errors.Errorf("transform: blur radius %d must be positive", r))
	}
	return &blur{radius: r}, nil
}

func (b *blur) Apply(f *core.Frame) (*core.Frame, error) {
	if f.Kind != core.KindVideo || f.Video == nil {
		return f, nil
	}
	v := f.Video
	switch v.Format {
	case core.YUV420, core.YUV422, core.YUV444, core.GRAY8:
	default:
		return f, nil
	}
	w, h := int(v.Width), int(v.Height)
	lumaLen := w * h
	if lumaLen == 0 || len(v.Data) < lumaLen {
		return f, nil
	}
	luma := make([]float64, lumaLen)
	for i := 0; i < lumaLen; i++ {
		luma[i] = float64(v.Data[i])
	}

	var blurred []float64
	if b.radius > blurFFTThreshold {
		blurred = blurViaFFT(luma, w, h, b.radius)
	} else {
		blurred = boxBlur(luma, w, h, b.radius)
	}

	out := f.Clone()
	for i := 0; i < lumaLen; i++ {
		out.Video.Data[i] = clampByte(blurred[i])
	}
	return out, nil
}

// boxBlur runs a separable horizontal-then-vertical box filter of the
// given radius over a w*h plane stored row-major in plane.
func boxBlur(plane []float64, w, h, radius int) []float64 {
	tmp := make([]float64, w*h)
	boxBlurRows(plane, tmp, w, h, radius)
	out := make([]float64, w*h)
	boxBlurCols(tmp, out, w, h, radius)
	return out
}

func boxBlurRows(src, dst []float64, w, h, radius int) {
	for y := 0; y < h; y++ {
		row := src[y*w : y*w+w]
		for x := 0; x < w; x++ {
			var sum float64
			var n int
			for k := -radius; k <= radius; k++ {
				xx := x + k
				if xx < 0 || xx >= w {
					continue
				}
				sum += row[xx]
				n++
			}
			dst[y*w+x] = sum / float64(n)
		}
	}
}

func boxBlurCols(src, dst []float64, w, h, radius int) {
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			var sum float64
			var n int
			for k := -radius; k <= radius; k++ {
				yy := y + k
				if yy < 0 || yy >= h {
					continue
				}
				sum += src[yy*w+x]
				n++
			}
			dst[y*w+x] = sum / float64(n)
		}
	}
}

// blurViaFFT applies the same separable box filter as boxBlur but performs
// each 1-D pass as a circular convolution in the frequency domain via
// go-dsp's FFT, which scales with row/column length rather than with
// radius and so is cheaper than the spatial box filter once the kernel is
// large. Circular wraparound at row/column edges is an accepted
// approximation at the frame boundary; interior pixels are unaffected.
func blurViaFFT(plane []float64, w, h, radius int) []float64 {
	rowKernel := boxKernel(w, radius)
	colKernel := boxKernel(h, radius)

	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := plane[y*w : y*w+w]
		copy(tmp[y*w:y*w+w], circularConvolveFFT(row, rowKernel))
	}

	out := make([]float64, w*h)
	col := make([]float64, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = tmp[y*w+x]
		}
		filtered := circularConvolveFFT(col, colKernel)
		for y := 0; y < h; y++ {
			out[y*w+x] = filtered[y]
		}
	}
	return out
}

// boxKernel builds a length-n normalized box kernel centred at index 0
// with circular wraparound, ready for circular convolution via FFT.
func boxKernel(n, radius int) []float64 {
	k := make([]float64, n)
	side := 2*radius + 1
	weight := 1.0 / float64(side)
	for d := -radius; d <= radius; d++ {
		idx := ((d % n) + n) % n
		k[idx] = weight
	}
	return k
}

// circularConvolveFFT convolves a and b (equal length, real-valued) via
// the convolution theorem: pointwise-multiply their spectra and invert.
func circularConvolveFFT(a, b []float64) []float64 {
	n := len(a)
	af := fft.FFTReal(a)
	bf := fft.FFTReal(b)
	product := make([]complex128, n)
	for i := range product {
		product[i] = af[i] * bf[i]
	}
	spatial := fft.IFFT(product)
	out := make([]float64, n)
	for i, c := range spatial {
		out[i] = real(c)
	}
	return out
}
