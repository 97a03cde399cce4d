package y4m

import (
	"bytes"
	"testing"
)

type bufWriter struct{ buf bytes.Buffer }

func (b *bufWriter) Write(p []byte) (int, error) { return b.buf.Write(p) }
func (b *bufWriter) Flush() error                 { return nil }

func buildY4M(header string, frames [][]byte) []byte {
	var buf []byte
	buf = append(buf, header+"\n"...)
	for _, f := range frames {
		buf = append(buf, "FRAME\n"...)
		buf = append(buf, f...)
	}
	return buf
}

func TestDemuxerHeaderAndFrameCount(t *testing.T) {
	const w, h = 4, 4
	frameSize := w*h + 2*(w/2)*(h/2)
	frames := make([][]byte, 3)
	for i := range frames {
		frames[i] = bytes.Repeat([]byte{byte(i)}, frameSize)
	}
	raw := buildY4M("YUV4MPEG2 W4 H4 F30:1 Ip C420", frames)

	d, err := NewDemuxer(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if d.hdr.Width != 4 || d.hdr.Height != 4 {
		t.Fatalf("got %dx%d, want 4x4", d.hdr.Width, d.hdr.Height)
	}

	var count int
	for {
		p, err := d.ReadPacket()
		if err != nil {
			t.Fatal(err)
		}
		if p == nil {
			break
		}
		if len(p.Payload) != frameSize {
			t.Fatalf("frame %d size = %d, want %d", count, len(p.Payload), frameSize)
		}
		if !bytes.Equal(p.Payload, frames[count]) {
			t.Fatalf("frame %d payload mismatch", count)
		}
		count++
	}
	if count != 3 {
		t.Fatalf("got %d frames, want 3", count)
	}
}

func TestRoundtripPreservesHeaderAndFrames(t *testing.T) {
	const w, h = 4, 4
	frameSize := w*h + 2*(w/2)*(h/2)
	frames := make([][]byte, 3)
	for i := range frames {
		frames[i] = bytes.Repeat([]byte{byte(i + 1)}, frameSize)
	}
	raw := buildY4M("YUV4MPEG2 W4 H4 F30:1 Ip C420", frames)

	d, err := NewDemuxer(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}

	var w2 bufWriter
	m := NewMuxer(&w2)
	m.SetHeader(d.Header())
	if err := m.WriteHeader(d.Streams()); err != nil {
		t.Fatal(err)
	}
	for {
		p, err := d.ReadPacket()
		if err != nil {
			t.Fatal(err)
		}
		if p == nil {
			break
		}
		if err := m.WritePacket(p); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Finalize(); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(w2.buf.Bytes(), raw) {
		t.Fatalf("roundtrip differs: got %d bytes, want %d", w2.buf.Len(), len(raw))
	}
}

func TestMissingSignatureFails(t *testing.T) {
	if _, err := NewDemuxer(bytes.NewReader([]byte("NOTY4M\n"))); err == nil {
		t.Fatal("expected error for missing signature")
	}
}
