package mp3

import "testing"

// header encodes MPEG1 Layer III, 128kbps, 44100Hz, no padding, stereo.
func makeHeader() []byte {
	return []byte{0xFF, 0xFB, 0x90, 0x00}
}

func TestParseHeaderBasic(t *testing.T) {
	h, err := ParseHeader(makeHeader())
	if err != nil {
		t.Fatal(err)
	}
	if h.Version != 3 || h.Layer != 3 {
		t.Fatalf("version/layer = %d/%d, want 3/3", h.Version, h.Layer)
	}
	if h.SampleRate != 44100 {
		t.Fatalf("sample rate = %d, want 44100", h.SampleRate)
	}
	if h.BitrateKbps != 128 {
		t.Fatalf("bitrate = %d, want 128", h.BitrateKbps)
	}
	if h.Channels() != 2 {
		t.Fatalf("channels = %d, want 2", h.Channels())
	}
	if h.FrameSize <= 0 {
		t.Fatalf("frame size = %d, want > 0", h.FrameSize)
	}
}

func TestParseHeaderRejectsBadSync(t *testing.T) {
	buf := makeHeader()
	buf[0] = 0x00
	if _, err := ParseHeader(buf); err == nil {
		t.Fatal("expected error for bad sync")
	}
}

func TestParseHeaderRejectsInvalidBitrateIndex(t *testing.T) {
	buf := makeHeader()
	buf[2] = 0x00 // bitrate index 0
	if _, err := ParseHeader(buf); err == nil {
		t.Fatal("expected error for bitrate index 0")
	}
}

func TestFindSync(t *testing.T) {
	buf := append([]byte{0x00, 0x01, 0x02}, makeHeader()...)
	off, ok := FindSync(buf, 0)
	if !ok || off != 3 {
		t.Fatalf("FindSync = %d, %v; want 3, true", off, ok)
	}
}
