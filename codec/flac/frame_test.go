package flac

import (
	"testing"

	"github.com/coastalsound/transcode/bitio"
)

func TestParseFrameHeaderRejectsReservedBlockSizeCode(t *testing.T) {
	w := bitio.NewWriter()
	w.WriteBits(0x3FFE, 14) // sync
	w.WriteBit(0)           // reserved
	w.WriteBit(0)           // blocking strategy
	w.WriteBits(0, 4)       // block_size_code = 0 (reserved)
	w.WriteBits(0, 4)       // sample_rate_code
	w.WriteBits(0, 4)       // channel assignment
	w.WriteBits(0, 3)       // bits_per_sample_code
	w.WriteBit(0)           // reserved
	w.WriteBits(0, 8)       // frame/sample number VLQ, single byte 0
	buf, err := w.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	r := bitio.NewReader(buf)
	_, err = ParseFrameHeader(r, StreamInfo{SampleRate: 44100, Channels: 2, BitsPerSample: 16})
	if err == nil {
		t.Fatal("want error for reserved block_size_code, got nil")
	}
}

func TestParseStreamInfoRejectsShortBody(t *testing.T) {
	_, err := ParseStreamInfo(make([]byte, 10))
	if err == nil {
		t.Fatal("want error for short STREAMINFO body, got nil")
	}
}
