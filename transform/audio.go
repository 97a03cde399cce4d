/*
NAME
  audio.go

DESCRIPTION
  audio.go implements the audio-side built-in transforms: gain (scalar
  amplitude scaling), normalize (peak normalization to full scale) and
  resample (sample-rate conversion by linear interpolation, with an
  FFT-based low-pass pre-filter on downsampling runs long enough to make
  aliasing audible).

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
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

// resampleFFTThreshold is the minimum sample count a downsampling run must
// reach before the low-pass pre-filter runs an FFT rather than being
// skipped; below this the transform-domain round trip costs more than the
// aliasing it would remove is worth.
const resampleFFTThreshold = 4096

func decodeSamplesPCM16(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(ioutil.GetU16LE(data[i*2:]))
	}
	return out
}

func encodeSamplesPCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		ioutil.PutU16LE(out[i*2:], uint16(s))
	}
	return out
}

func clampInt16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// gain scales every PCM16 sample by a fixed factor, clamping at the int16
// range rather than wrapping.
type gain struct {
	factor float64
}

func newGain(values []string) (core.Transform, error) {
	f, err := parseFloatValue("gain", values)
	if err != nil {
		return nil, err
	}
	return &gain{factor: f}, nil
}

func (g *gain) Apply(f *core.Frame) (*core.Frame, error) {
	if f.Kind != core.KindAudio || f.Audio == nil {
		return f, nil
	}
	if f.Audio.Format != core.PCM16 {
		return f, nil
	}
	samples := decodeSamplesPCM16(f.Audio.Data)
	for i, s := range samples {
		samples[i] = clampInt16(float64(s) * g.factor)
	}
	out := f.Clone()
	out.Audio.Data = encodeSamplesPCM16(samples)
	return out, nil
}

// normalize scales a PCM16 frame so its peak absolute sample reaches full
// scale. Each frame is normalized independently, since the pipeline
// presents audio one frame at a time with no look-ahead across frames.
type normalize struct{}

func newNormalize(values []string) (core.Transform, error) {
	if len(values) != 0 {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("transform: normalize takes no values"))
	}
	return &normalize{}, nil
}

func (n *normalize) Apply(f *core.Frame) (*core.Frame, error) {
	if f.Kind != core.KindAudio || f.Audio == nil || f.Audio.Format != core.PCM16 {
		return f, nil
	}
	samples := decodeSamplesPCM16(f.Audio.Data)
	if len(samples) == 0 {
		return f, nil
	}
	abs := make([]float64, len(samples))
	for i, s := range samples {
		abs[i] = math.Abs(float64(s))
	}
	peak := floats.Max(abs)
	if peak == 0 {
		return f, nil
	}
	scale := math.MaxInt16 / peak
	for i, s := range samples {
		samples[i] = clampInt16(float64(s) * scale)
	}
	out := f.Clone()
	out.Audio.Data = encodeSamplesPCM16(samples)
	return out, nil
}

// resample converts a PCM16 frame to a target sample rate via linear
// interpolation. When downsampling a frame long enough to make the
// resulting aliasing audible, the source is first low-pass filtered in
// the frequency domain to attenuate content above the new Nyquist limit.
type resample struct {
	targetRate uint32
}

func newResample(values []string) (core.Transform, error) {
	rate, err := parseIntValue("resample", values)
	if err != nil {
		return nil, err
	}
	if rate <= 0 {
		return nil, ioutil.New(ioutil.InvalidData, errors.Errorf("transform: resample target rate %d must be positive", rate))
	}
	return &resample{targetRate: uint32(rate)}, nil
}

func (r *resample) Apply(f *core.Frame) (*core.Frame, error) {
	if f.Kind != core.KindAudio || f.Audio == nil || f.Audio.Format != core.PCM16 {
		return f, nil
	}
	a := f.Audio
	if a.SampleRate == 0 {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("transform: resample input sample_rate is 0"))
	}
	if a.SampleRate == r.targetRate {
		return f, nil
	}
	channels := int(a.Channels)
	if channels == 0 {
		channels = 1
	}
	samples := decodeSamplesPCM16(a.Data)
	frames := len(samples) / channels

	perChannel := make([][]float64, channels)
	for c := 0; c < channels; c++ {
		perChannel[c] = make([]float64, frames)
		for i := 0; i < frames; i++ {
			perChannel[c][i] = float64(samples[i*channels+c])
		}
	}

	downsampling := r.targetRate < a.SampleRate
	if downsampling && frames >= resampleFFTThreshold {
		cutoff := float64(r.targetRate) / 2
		for c := range perChannel {
			perChannel[c] = lowpassViaFFT(perChannel[c], float64(a.SampleRate), cutoff)
		}
	}

	ratio := float64(a.SampleRate) / float64(r.targetRate)
	outFrames := int(float64(frames) / ratio)
	out := make([]int16, outFrames*channels)
	for c := 0; c < channels; c++ {
		resampled := linearResample(perChannel[c], outFrames, ratio)
		for i, v := range resampled {
			out[i*channels+c] = clampInt16(v)
		}
	}

	nf := f.Clone()
	nf.Audio.Data = encodeSamplesPCM16(out)
	nf.Audio.SampleRate = r.targetRate
	nf.Audio.NbSamples = outFrames
	return nf, nil
}

// linearResample resamples in to outFrames samples by linear
// interpolation between the two nearest input samples at each output
// position, walking the input at the given ratio (inputRate/outputRate).
func linearResample(in []float64, outFrames int, ratio float64) []float64 {
	out := make([]float64, outFrames)
	for i := 0; i < outFrames; i++ {
		srcPos := float64(i) * ratio
		lo := int(srcPos)
		frac := srcPos - float64(lo)
		if lo >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		out[i] = in[lo]*(1-frac) + in[lo+1]*frac
	}
	return out
}

// lowpassViaFFT zeroes frequency bins above cutoff Hz and returns the
// filtered time-domain signal. The FFT runs at the input's own length;
// no padding or trimming is done.
func lowpassViaFFT(in []float64, sampleRate, cutoff float64) []float64 {
	n := len(in)
	fft := fourier.NewFFT(n)
	spectrum := fft.Coefficients(nil, in)

	binHz := sampleRate / float64(n)
	for i := range spectrum {
		freq := float64(i) * binHz
		if freq > cutoff && freq < sampleRate-cutoff {
			spectrum[i] = complex(0, 0)
		}
	}

	filtered := fft.Sequence(nil, spectrum)
	for i := range filtered {
		filtered[i] /= float64(n)
	}
	return filtered
}
