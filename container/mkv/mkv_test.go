package mkv

import (
	"bytes"
	"testing"

	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ebml"
)

type bufWriter struct{ buf bytes.Buffer }

func (b *bufWriter) Write(p []byte) (int, error) { return b.buf.Write(p) }
func (b *bufWriter) Flush() error                 { return nil }

func TestAppendVINTRoundtrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 126, 127, 128, 16383, 16384, 2097151} {
		enc := appendVINT(nil, v)
		got, err := ebml.DecodeVINT(enc)
		if err != nil {
			t.Fatalf("v=%d: %v", v, err)
		}
		if got.Value != v {
			t.Fatalf("v=%d roundtrip = %d", v, got.Value)
		}
	}
}

func TestMuxerWritesParsableSegment(t *testing.T) {
	streams := []*core.Stream{
		{Index: 0, Kind: core.Video, Codec: "h264", Width: 640, Height: 480},
	}
	var w bufWriter
	m := NewMuxer(&w)
	if err := m.WriteHeader(streams); err != nil {
		t.Fatal(err)
	}
	if err := m.WritePacket(&core.Packet{StreamIndex: 0, PTS: 40, Payload: []byte{1, 2, 3}, Keyframe: true}); err != nil {
		t.Fatal(err)
	}
	if err := m.WritePacket(&core.Packet{StreamIndex: 0, PTS: 80, Payload: []byte{4, 5}, Keyframe: false}); err != nil {
		t.Fatal(err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatal(err)
	}

	d, err := NewDemuxer(bytes.NewReader(w.buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	got := d.Streams()
	if len(got) != 1 || got[0].Codec != "h264" || got[0].Width != 640 {
		t.Fatalf("got streams %+v", got)
	}

	p1, err := d.ReadPacket()
	if err != nil || p1 == nil {
		t.Fatalf("first packet: %v, %v", p1, err)
	}
	if !bytes.Equal(p1.Payload, []byte{1, 2, 3}) || !p1.Keyframe {
		t.Fatalf("got packet %+v", p1)
	}
	p2, err := d.ReadPacket()
	if err != nil || p2 == nil {
		t.Fatalf("second packet: %v, %v", p2, err)
	}
	if !bytes.Equal(p2.Payload, []byte{4, 5}) || p2.Keyframe {
		t.Fatalf("got packet %+v", p2)
	}
	p3, err := d.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if p3 != nil {
		t.Fatal("expected nil at end of stream")
	}
}

func TestRejectsMissingEBMLHeader(t *testing.T) {
	if _, err := NewDemuxer(bytes.NewReader([]byte{0x18, 0x53, 0x80, 0x67, 0x80})); err == nil {
		t.Fatal("expected error for missing EBML header")
	}
}

func TestRejectsLacedBlock(t *testing.T) {
	// track-number VINT(1)=0x81, timecode delta 0x0000, flags with lacing bits set (0x06).
	body := []byte{0x81, 0x00, 0x00, 0x06, 0xAA}
	if _, err := parseBlock(body, 0, true); err == nil {
		t.Fatal("expected error for laced block")
	}
}
