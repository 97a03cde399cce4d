package mov

import (
	"bytes"
	"testing"

	"github.com/coastalsound/transcode/core"
)

type bufWriter struct{ buf bytes.Buffer }

func (b *bufWriter) Write(p []byte) (int, error) { return b.buf.Write(p) }
func (b *bufWriter) Flush() error                 { return nil }

func TestMuxerUsesQuickTimeBrandAndRoundTrips(t *testing.T) {
	streams := []*core.Stream{
		{Index: 0, Kind: core.Audio, Codec: "pcm_s16le", Channels: 1, SampleRate: 8000, Timebase: core.NewTimebase(1, 8000)},
	}
	var w bufWriter
	m := NewMuxer(&w)
	if err := m.WriteHeader(streams); err != nil {
		t.Fatal(err)
	}
	if err := m.WritePacket(&core.Packet{StreamIndex: 0, DTS: 0, PTS: 0, Keyframe: true, Payload: []byte{1, 2, 3, 4}}); err != nil {
		t.Fatal(err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatal(err)
	}

	out := w.buf.Bytes()
	if !bytes.Contains(out[:32], []byte("qt  ")) {
		t.Fatalf("expected qt major brand near file start, got %v", out[:32])
	}

	d, err := NewDemuxer(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	got := d.Streams()
	if len(got) != 1 || got[0].Kind != core.Audio || got[0].SampleRate != 8000 {
		t.Fatalf("got streams %+v", got)
	}
	p, err := d.ReadPacket()
	if err != nil || p == nil {
		t.Fatalf("first packet: %v %v", p, err)
	}
	if !bytes.Equal(p.Payload, []byte{1, 2, 3, 4}) {
		t.Fatalf("got payload %v", p.Payload)
	}
}
