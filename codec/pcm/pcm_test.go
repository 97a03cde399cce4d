package pcm

import (
	"testing"

	"github.com/coastalsound/transcode/core"
)

func TestDecodeRejectsNonPCMFormat(t *testing.T) {
	d := NewDecoder(44100, 2, core.SampleFormat(99), 0, core.NewTimebase(1, 44100))
	_, err := d.Decode(&core.Packet{Payload: []byte{0, 1, 2, 3}})
	if err == nil {
		t.Fatal("want error for non-PCM sample format, got nil")
	}
}

func TestDecodeRejectsPayloadNotMultipleOfFrameSize(t *testing.T) {
	d := NewDecoder(44100, 2, core.PCM16, 0, core.NewTimebase(1, 44100))
	_, err := d.Decode(&core.Packet{Payload: []byte{0, 1, 2}})
	if err == nil {
		t.Fatal("want error for payload not a multiple of frame size, got nil")
	}
}

func TestEncodeRejectsSampleRateMismatch(t *testing.T) {
	e := NewEncoder(44100, 0, core.NewTimebase(1, 44100))
	f := core.NewAudioFrame(&core.AudioFrame{
		Data:       []byte{0, 0, 0, 0},
		SampleRate: 48000,
		Channels:   1,
		NbSamples:  2,
		Format:     core.PCM16,
	}, core.NewTimebase(1, 44100), 0)
	_, err := e.Encode(f)
	if err == nil {
		t.Fatal("want error for sample rate mismatch, got nil")
	}
}

func TestSampleAt24Roundtrip(t *testing.T) {
	buf := make([]byte, 3)
	PutSample24(buf, 0, -12345)
	got := SampleAt24(buf, 0)
	if got != -12345 {
		t.Fatalf("got %d, want -12345", got)
	}
}
