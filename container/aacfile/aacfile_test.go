package aacfile

import (
	"bytes"
	"testing"

	"github.com/coastalsound/transcode/codec/aac"
)

type bufWriter struct{ buf bytes.Buffer }

func (b *bufWriter) Write(p []byte) (int, error) { return b.buf.Write(p) }
func (b *bufWriter) Flush() error                 { return nil }

func buildFrame(payload []byte) []byte {
	out, err := aac.WriteADTSHeader(nil, 1, 4, 2, len(payload))
	if err != nil {
		panic(err)
	}
	return append(out, payload...)
}

func TestDemuxerReadsConsecutiveFrames(t *testing.T) {
	var raw []byte
	raw = append(raw, buildFrame([]byte{1, 2, 3})...)
	raw = append(raw, buildFrame([]byte{4, 5, 6, 7})...)

	d, err := NewDemuxer(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	streams := d.Streams()
	if len(streams) != 1 || streams[0].Channels != 2 {
		t.Fatalf("got streams %+v", streams)
	}

	p1, err := d.ReadPacket()
	if err != nil || p1 == nil {
		t.Fatalf("first packet: %v %v", p1, err)
	}
	if !bytes.Equal(p1.Payload[7:], []byte{1, 2, 3}) {
		t.Fatalf("payload = %v", p1.Payload[7:])
	}
	if p1.PTS != 0 {
		t.Fatalf("pts = %d, want 0", p1.PTS)
	}

	p2, err := d.ReadPacket()
	if err != nil || p2 == nil {
		t.Fatalf("second packet: %v %v", p2, err)
	}
	if p2.PTS != samplesPerFrame {
		t.Fatalf("pts = %d, want %d", p2.PTS, samplesPerFrame)
	}

	p3, err := d.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if p3 != nil {
		t.Fatal("expected nil at end of stream")
	}
}

func TestMuxerWritesFramesVerbatim(t *testing.T) {
	frame := buildFrame([]byte{9, 9, 9})
	d, err := NewDemuxer(bytes.NewReader(frame))
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
	if !bytes.Equal(w.buf.Bytes(), frame) {
		t.Fatalf("roundtrip differs")
	}
}
