package mp3file

import (
	"bytes"
	"testing"
)

type bufWriter struct{ buf bytes.Buffer }

func (b *bufWriter) Write(p []byte) (int, error) { return b.buf.Write(p) }
func (b *bufWriter) Flush() error                 { return nil }

// mp3Header encodes MPEG1 Layer III, 128kbps, 44100Hz, no padding, stereo;
// its frame size is 417 bytes.
var mp3Header = []byte{0xFF, 0xFB, 0x90, 0x00}

const frameSize = 417

func buildFrame(fill byte) []byte {
	frame := make([]byte, frameSize)
	copy(frame, mp3Header)
	for i := 4; i < len(frame); i++ {
		frame[i] = fill
	}
	return frame
}

func TestDemuxerSkipsID3v2Tag(t *testing.T) {
	tag := []byte("ID3")
	tag = append(tag, 0x04, 0x00, 0x00) // version, flags
	tag = append(tag, 0x00, 0x00, 0x00, 0x0A) // syncsafe size = 10
	tag = append(tag, bytes.Repeat([]byte{0}, 10)...)

	raw := append(tag, buildFrame(1)...)
	d, err := NewDemuxer(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if d.off != len(tag) {
		t.Fatalf("off = %d, want %d", d.off, len(tag))
	}
	streams := d.Streams()
	if streams[0].SampleRate != 44100 || streams[0].Channels != 2 {
		t.Fatalf("got stream %+v", streams[0])
	}
}

func TestDemuxerReadsConsecutiveFrames(t *testing.T) {
	raw := append(buildFrame(1), buildFrame(2)...)
	d, err := NewDemuxer(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	p1, err := d.ReadPacket()
	if err != nil || p1 == nil {
		t.Fatalf("first packet: %v %v", p1, err)
	}
	if len(p1.Payload) != frameSize {
		t.Fatalf("frame size = %d, want %d", len(p1.Payload), frameSize)
	}
	p2, err := d.ReadPacket()
	if err != nil || p2 == nil {
		t.Fatalf("second packet: %v %v", p2, err)
	}
	if p2.PTS == p1.PTS {
		t.Fatal("expected PTS to advance between frames")
	}
	p3, err := d.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if p3 != nil {
		t.Fatal("expected nil at end of stream")
	}
}

func TestDemuxerRejectsMissingSync(t *testing.T) {
	if _, err := NewDemuxer(bytes.NewReader([]byte{0, 1, 2, 3, 4, 5})); err == nil {
		t.Fatal("expected error for missing frame sync")
	}
}

func TestMuxerWritesFramesVerbatim(t *testing.T) {
	raw := buildFrame(3)
	d, err := NewDemuxer(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	var w bufWriter
	m := NewMuxer(&w)
	p, err := d.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.WritePacket(p); err != nil {
		t.Fatal(err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(w.buf.Bytes(), raw) {
		t.Fatal("roundtrip differs")
	}
}
