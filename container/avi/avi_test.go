package avi

import (
	"bytes"
	"testing"

	"github.com/coastalsound/transcode/core"
)

type bufWriter struct{ buf bytes.Buffer }

func (b *bufWriter) Write(p []byte) (int, error) { return b.buf.Write(p) }
func (b *bufWriter) Flush() error                 { return nil }

func TestMuxerWritesIndexedSingleVideoStream(t *testing.T) {
	streams := []*core.Stream{
		{Index: 0, Kind: core.Video, Codec: "h264", Width: 320, Height: 240, Timebase: core.NewTimebase(1, 30)},
	}
	var w bufWriter
	m := NewMuxer(&w)
	if err := m.WriteHeader(streams); err != nil {
		t.Fatal(err)
	}
	if err := m.WritePacket(&core.Packet{StreamIndex: 0, Keyframe: true, Payload: []byte{1, 2, 3}}); err != nil {
		t.Fatal(err)
	}
	if err := m.WritePacket(&core.Packet{StreamIndex: 0, Keyframe: false, Payload: []byte{4, 5}}); err != nil {
		t.Fatal(err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatal(err)
	}

	out := w.buf.Bytes()
	if !bytes.Equal(out[0:4], []byte("RIFF")) || !bytes.Equal(out[8:12], []byte("AVI ")) {
		t.Fatalf("missing RIFF/AVI header, got %v", out[0:12])
	}
	if !bytes.Contains(out, []byte("idx1")) {
		t.Fatal("expected idx1 chunk for single-stream video")
	}

	d, err := NewDemuxer(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	got := d.Streams()
	if len(got) != 1 || got[0].Kind != core.Video || got[0].Width != 320 || got[0].Height != 240 {
		t.Fatalf("got streams %+v", got)
	}

	p1, err := d.ReadPacket()
	if err != nil || p1 == nil {
		t.Fatalf("first packet: %v %v", p1, err)
	}
	if !bytes.Equal(p1.Payload, []byte{1, 2, 3}) || !p1.Keyframe {
		t.Fatalf("got packet %+v", p1)
	}
	p2, err := d.ReadPacket()
	if err != nil || p2 == nil {
		t.Fatalf("second packet: %v %v", p2, err)
	}
	if !bytes.Equal(p2.Payload, []byte{4, 5}) || p2.Keyframe {
		t.Fatalf("got packet %+v, expected non-keyframe", p2)
	}
	p3, err := d.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if p3 != nil {
		t.Fatal("expected nil at end of stream")
	}
}

func TestRejectsMissingRIFFHeader(t *testing.T) {
	if _, err := NewDemuxer(bytes.NewReader([]byte("not an avi file"))); err == nil {
		t.Fatal("expected error for missing RIFF/AVI header")
	}
}

func TestIterateChunksRejectsOversizedChunkSize(t *testing.T) {
	var buf []byte
	buf = append(buf, "JUNK"...)
	buf = append(buf, 0xFF, 0xFF, 0xFF, 0x7F) // ckSize far larger than remaining data
	buf = append(buf, 1, 2, 3, 4)
	err := iterateChunks(buf, func(id string, isList bool, body []byte) error { return nil })
	if err == nil {
		t.Fatal("want error for chunk size larger than buffer, got nil")
	}
}

func TestStreamChunkID(t *testing.T) {
	if got := streamChunkID(0, "dc"); got != "00dc" {
		t.Fatalf("got %q, want 00dc", got)
	}
	if got := streamChunkID(1, "wb"); got != "01wb" {
		t.Fatalf("got %q, want 01wb", got)
	}
}
