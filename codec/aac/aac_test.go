package aac

import (
	"bytes"
	"testing"

	"github.com/coastalsound/transcode/core"
)

func TestParseADTSHeaderFromScenario(t *testing.T) {
	// FF F1 50 80 01 FF F8: sync 0xFFF, profile 1, channel_cfg 2, sr_idx 4.
	hdr := []byte{0xFF, 0xF1, 0x50, 0x80, 0x01, 0xFF, 0xF8}
	h, n, err := ParseADTSHeader(hdr)
	if err != nil {
		t.Fatal(err)
	}
	if n != 7 {
		t.Fatalf("header length = %d, want 7", n)
	}
	if h.Profile != 1 {
		t.Fatalf("profile = %d, want 1", h.Profile)
	}
	if h.ChannelConfig != 2 {
		t.Fatalf("channel_config = %d, want 2", h.ChannelConfig)
	}
	if h.SampleRateIndex != 4 {
		t.Fatalf("sample_rate_index = %d, want 4", h.SampleRateIndex)
	}
}

func TestParseADTSHeaderRejectsBadSync(t *testing.T) {
	hdr := []byte{0x00, 0xF1, 0x50, 0x80, 0x01, 0xFF, 0xF8}
	if _, _, err := ParseADTSHeader(hdr); err == nil {
		t.Fatal("expected error for bad sync")
	}
}

func TestWriteParseADTSHeaderRoundtrip(t *testing.T) {
	buf, err := WriteADTSHeader(nil, 1, 4, 2, 100)
	if err != nil {
		t.Fatal(err)
	}
	buf = append(buf, make([]byte, 100)...)
	h, n, err := ParseADTSHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 7 || h.Profile != 1 || h.SampleRateIndex != 4 || h.ChannelConfig != 2 {
		t.Fatalf("got %+v", h)
	}
	if h.FrameLength != 107 {
		t.Fatalf("frame_length = %d, want 107", h.FrameLength)
	}
}

func TestEncoderSplitsOversizedPayload(t *testing.T) {
	e := NewEncoder(1, 4, 2, 0, core.NewTimebase(1, 44100))
	data := make([]byte, MaxFrameLength*2)
	f := core.NewAudioFrame(&core.AudioFrame{Data: data, SampleRate: 44100, Channels: 2, Format: core.PCM16}, core.NewTimebase(1, 44100), 0)
	pkts, err := e.Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkts) < 2 {
		t.Fatalf("got %d packets, want >= 2 for oversized payload", len(pkts))
	}
	for _, p := range pkts {
		if len(p.Payload) > MaxFrameLength {
			t.Fatalf("packet of %d bytes exceeds MaxFrameLength", len(p.Payload))
		}
	}
}

func TestDecodeEncodeRoundtripPayload(t *testing.T) {
	e := NewEncoder(1, 4, 2, 0, core.NewTimebase(1, 44100))
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	f := core.NewAudioFrame(&core.AudioFrame{Data: payload, SampleRate: 44100, Channels: 2, Format: core.PCM16}, core.NewTimebase(1, 44100), 0)
	pkts, err := e.Encode(f)
	if err != nil {
		t.Fatal(err)
	}

	d := NewDecoder(0, core.NewTimebase(1, 44100))
	frames, err := d.Decode(pkts[0])
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(frames[0].Audio.Data, payload) {
		t.Fatalf("got %x, want %x", frames[0].Audio.Data, payload)
	}
}
