package adpcm

import (
	"math"
	"testing"

	"github.com/coastalsound/transcode/ioutil"
)

func sineWave(n int, amp float64) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(amp * math.Sin(2*math.Pi*float64(i)/32))
		ioutil.PutU16LE(out[i*2:], uint16(v))
	}
	return out
}

func TestNibbleRoundtripBounds(t *testing.T) {
	pcm := sineWave(1000, 20000)
	enc := State{Predictor: ioutil.GetI16LE(pcm[:2]), StepIndex: initIndex(ioutil.GetI16LE(pcm[:2]), ioutil.GetI16LE(pcm[2:4]))}
	dec := State{Predictor: enc.Predictor, StepIndex: enc.StepIndex}

	for i := 1; i < 1000; i++ {
		sample := ioutil.GetI16LE(pcm[i*2:])
		nib := enc.EncodeSample(sample)
		got := dec.DecodeNibble(nib)

		if enc.StepIndex > 88 {
			t.Fatalf("encoder step_index out of bounds: %d", enc.StepIndex)
		}
		if dec.StepIndex > 88 {
			t.Fatalf("decoder step_index out of bounds: %d", dec.StepIndex)
		}
		if got != enc.Predictor {
			t.Fatalf("encoder/decoder predictor diverged at sample %d: %d != %d", i, got, enc.Predictor)
		}
		diff := int(sample) - int(got)
		if diff < 0 {
			diff = -diff
		}
		if diff >= 5000 {
			t.Fatalf("sample %d: |%d - %d| = %d >= 5000", i, sample, got, diff)
		}
	}
}

func TestBlockRoundtripMono(t *testing.T) {
	const blockAlign = 256
	samplesPerBlock := SamplesPerBlock(blockAlign, 1)
	pcm := sineWave(samplesPerBlock, 20000)

	block, err := EncodeBlock(pcm, 1, blockAlign)
	if err != nil {
		t.Fatal(err)
	}
	if len(block) != blockAlign {
		t.Fatalf("block length = %d, want %d", len(block), blockAlign)
	}

	decoded, err := DecodeBlock(block, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != len(pcm) {
		t.Fatalf("decoded length = %d, want %d", len(decoded), len(pcm))
	}
	for i := 0; i < samplesPerBlock; i++ {
		orig := ioutil.GetI16LE(pcm[i*2:])
		got := ioutil.GetI16LE(decoded[i*2:])
		diff := int(orig) - int(got)
		if diff < 0 {
			diff = -diff
		}
		if diff >= 5000 {
			t.Fatalf("sample %d: |%d - %d| = %d >= 5000", i, orig, got, diff)
		}
	}
}

func TestBlockRoundtripStereo(t *testing.T) {
	const blockAlign = 512
	const channels = 2
	samplesPerBlock := SamplesPerBlock(blockAlign, channels)
	pcm := sineWave(samplesPerBlock*channels, 15000)

	block, err := EncodeBlock(pcm, channels, blockAlign)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeBlock(block, channels)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != len(pcm) {
		t.Fatalf("decoded length = %d, want %d", len(decoded), len(pcm))
	}
}

func TestSamplesPerBlock(t *testing.T) {
	// samples_per_block = ((block_align - 4*channels) * 2) + 1
	got := SamplesPerBlock(256, 1)
	want := (256-4)*2 + 1
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}
