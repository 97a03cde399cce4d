package ogg

import (
	"bytes"
	"testing"
)

type bufWriter struct{ buf bytes.Buffer }

func (b *bufWriter) Write(p []byte) (int, error) { return b.buf.Write(p) }
func (b *bufWriter) Flush() error                 { return nil }

func TestCRC32KnownReference(t *testing.T) {
	// CRC32 of an empty buffer with this algorithm is 0.
	if got := CRC32(nil); got != 0 {
		t.Fatalf("CRC32(nil) = 0x%08x, want 0", got)
	}
}

func TestWriteParsePageCRCRoundtrip(t *testing.T) {
	page := WritePage(flagBOS, 12345, 1, 0, [][]byte{[]byte("hello ogg")})
	p, err := ParsePage(page)
	if err != nil {
		t.Fatal(err)
	}
	if !p.BOS {
		t.Error("expected BOS flag")
	}
	if p.GranulePos != 12345 {
		t.Fatalf("granule = %d, want 12345", p.GranulePos)
	}
	if len(p.Segments) != 1 || !bytes.Equal(p.Segments[0], []byte("hello ogg")) {
		t.Fatalf("segments = %v", p.Segments)
	}
}

func TestParsePageDetectsCRCCorruption(t *testing.T) {
	page := WritePage(0, 0, 1, 0, [][]byte{[]byte("data")})
	page[len(page)-1] ^= 0xFF // corrupt the body after CRC was computed
	if _, err := ParsePage(page); err == nil {
		t.Fatal("expected CRC mismatch error")
	}
}

func TestDemuxerReadsPacketsFromWrittenPages(t *testing.T) {
	pages := append(WritePage(flagBOS, 0, 7, 0, [][]byte{[]byte("first")}),
		WritePage(flagEOS, 1, 7, 1, [][]byte{[]byte("second")})...)

	d, err := NewDemuxer(bytes.NewReader(pages))
	if err != nil {
		t.Fatal(err)
	}
	var got [][]byte
	for {
		p, err := d.ReadPacket()
		if err != nil {
			t.Fatal(err)
		}
		if p == nil {
			break
		}
		got = append(got, p.Payload)
	}
	if len(got) != 2 || string(got[0]) != "first" || string(got[1]) != "second" {
		t.Fatalf("got %v", got)
	}
}

func TestSplitIntoSegmentsHandlesExactMultipleOf255(t *testing.T) {
	payload := bytes.Repeat([]byte{1}, 255)
	segs := splitIntoSegments(payload)
	if len(segs) != 2 || len(segs[1]) != 0 {
		t.Fatalf("got %d segments with last len %d, want 2 segments with a trailing zero-length terminator", len(segs), len(segs[len(segs)-1]))
	}
}
