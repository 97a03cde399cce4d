package transform

import (
	"testing"

	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

func TestParseUnknownName(t *testing.T) {
	_, err := Parse("sharpen=1.0")
	if ioutil.KindOf(err) != ioutil.InvalidData {
		t.Fatalf("got %v, want InvalidData", err)
	}
}

func TestParseGain(t *testing.T) {
	tr, err := Parse("gain=2.0")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.(*gain); !ok {
		t.Fatalf("got %T, want *gain", tr)
	}
}

func TestChainEmptyIsIdentity(t *testing.T) {
	c := NewChain()
	f := &core.Frame{Kind: core.KindAudio, Audio: &core.AudioFrame{Data: []byte{1, 2, 3, 4}, Format: core.PCM16}}
	out, err := c.Apply(f)
	if err != nil {
		t.Fatal(err)
	}
	if out != f {
		t.Fatal("expected identity passthrough for empty chain")
	}
}

func samplesFrame(samples []int16, rate uint32, channels uint8) *core.Frame {
	return &core.Frame{
		Kind: core.KindAudio,
		Audio: &core.AudioFrame{
			Data:       encodeSamplesPCM16(samples),
			SampleRate: rate,
			Channels:   channels,
			NbSamples:  len(samples) / int(channels),
			Format:     core.PCM16,
		},
	}
}

func TestGainClamps(t *testing.T) {
	g := &gain{factor: 4.0}
	f := samplesFrame([]int16{10000, -10000, 100}, 8000, 1)
	out, err := g.Apply(f)
	if err != nil {
		t.Fatal(err)
	}
	got := decodeSamplesPCM16(out.Audio.Data)
	if got[0] != 32767 {
		t.Fatalf("got %d, want clamp to max int16", got[0])
	}
	if got[1] != -32768 {
		t.Fatalf("got %d, want clamp to min int16", got[1])
	}
	if got[2] != 400 {
		t.Fatalf("got %d, want 400", got[2])
	}
}

func TestNormalizePeaksToFullScale(t *testing.T) {
	n := &normalize{}
	f := samplesFrame([]int16{1000, -2000, 500}, 8000, 1)
	out, err := n.Apply(f)
	if err != nil {
		t.Fatal(err)
	}
	got := decodeSamplesPCM16(out.Audio.Data)
	var peak int16
	for _, s := range got {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	if peak < 32760 {
		t.Fatalf("got peak %d, want near 32767", peak)
	}
}

func TestNormalizeSilentFrameUnchanged(t *testing.T) {
	n := &normalize{}
	f := samplesFrame([]int16{0, 0, 0}, 8000, 1)
	out, err := n.Apply(f)
	if err != nil {
		t.Fatal(err)
	}
	if out != f {
		t.Fatal("expected identity passthrough for all-zero frame")
	}
}

func TestResampleSameRateIsIdentity(t *testing.T) {
	r := &resample{targetRate: 8000}
	f := samplesFrame([]int16{1, 2, 3, 4}, 8000, 1)
	out, err := r.Apply(f)
	if err != nil {
		t.Fatal(err)
	}
	if out != f {
		t.Fatal("expected identity passthrough when rates match")
	}
}

func TestResampleHalvesSampleCount(t *testing.T) {
	r := &resample{targetRate: 8000}
	samples := make([]int16, 200)
	for i := range samples {
		samples[i] = int16(i)
	}
	f := samplesFrame(samples, 16000, 1)
	out, err := r.Apply(f)
	if err != nil {
		t.Fatal(err)
	}
	if out.Audio.SampleRate != 8000 {
		t.Fatalf("got sample rate %d, want 8000", out.Audio.SampleRate)
	}
	got := decodeSamplesPCM16(out.Audio.Data)
	if len(got) != 100 {
		t.Fatalf("got %d samples, want 100", len(got))
	}
}

func TestResampleRejectsZeroSourceRate(t *testing.T) {
	r := &resample{targetRate: 8000}
	f := samplesFrame([]int16{1, 2}, 0, 1)
	_, err := r.Apply(f)
	if ioutil.KindOf(err) != ioutil.InvalidData {
		t.Fatalf("got %v, want InvalidData", err)
	}
}

func videoFrame(data []byte, w, h uint32, format core.PixelFormat) *core.Frame {
	return &core.Frame{
		Kind:  core.KindVideo,
		Video: &core.VideoFrame{Data: data, Width: w, Height: h, Format: format},
	}
}

func TestBrightnessAddsOffset(t *testing.T) {
	b := &brightness{offset: 10}
	f := videoFrame([]byte{100, 250, 0}, 3, 1, core.GRAY8)
	out, err := b.Apply(f)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{110, 255, 10}
	for i, v := range want {
		if out.Video.Data[i] != v {
			t.Fatalf("byte %d: got %d, want %d", i, out.Video.Data[i], v)
		}
	}
}

func TestContrastScalesAboutMidGrey(t *testing.T) {
	c := &contrast{factor: 2.0}
	f := videoFrame([]byte{128, 192, 64}, 3, 1, core.GRAY8)
	out, err := c.Apply(f)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{128, 255, 0}
	for i, v := range want {
		if out.Video.Data[i] != v {
			t.Fatalf("byte %d: got %d, want %d", i, out.Video.Data[i], v)
		}
	}
}

func TestBlurSkipsNonLumaFormats(t *testing.T) {
	b := &blur{radius: 1}
	f := videoFrame([]byte{1, 2, 3, 4, 5, 6}, 2, 1, core.RGB24)
	out, err := b.Apply(f)
	if err != nil {
		t.Fatal(err)
	}
	if out != f {
		t.Fatal("expected passthrough for RGB24")
	}
}

func TestBlurFlattensConstantPlane(t *testing.T) {
	b := &blur{radius: 1}
	data := make([]byte, 16)
	for i := range data {
		data[i] = 50
	}
	f := videoFrame(data, 4, 4, core.GRAY8)
	out, err := b.Apply(f)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out.Video.Data {
		if v != 50 {
			t.Fatalf("byte %d: got %d, want 50 on a constant plane", i, v)
		}
	}
}

func TestBoxBlurSmoothsImpulse(t *testing.T) {
	w, h := 5, 5
	plane := make([]float64, w*h)
	plane[2*w+2] = 100
	out := boxBlur(plane, w, h, 1)
	if out[2*w+2] >= 100 {
		t.Fatalf("expected impulse centre to be smoothed down, got %v", out[2*w+2])
	}
	if out[2*w+1] <= 0 {
		t.Fatalf("expected neighbouring pixel to pick up some of the impulse, got %v", out[2*w+1])
	}
}

func TestParseChainBuildsOrderedSteps(t *testing.T) {
	c, err := ParseChain([]string{"gain=1.5", "normalize"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Fatalf("got %d steps, want 2", c.Len())
	}
}
