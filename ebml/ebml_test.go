package ebml

import "testing"

func TestDecodeVINTRoundtrip(t *testing.T) {
	cases := []struct {
		buf  []byte
		val  uint64
		size int
	}{
		{[]byte{0x82}, 2, 1},
		{[]byte{0x40, 0x02}, 2, 2},
		{[]byte{0x1A, 0x45, 0xDF, 0xA3}, 0x0A45DFA3, 4},
	}
	for _, c := range cases {
		v, err := DecodeVINT(c.buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.Value != c.val || v.Length != c.size {
			t.Fatalf("got {%d %d}, want {%d %d}", v.Value, v.Length, c.val, c.size)
		}
	}
}

func TestDecodeVINTZeroLengthFails(t *testing.T) {
	_, err := DecodeVINT([]byte{0x00, 0xFF})
	if err == nil {
		t.Fatal("expected error for 0x00 length marker")
	}
}

func TestIsUnknownSize(t *testing.T) {
	v := VINT{Value: 0x7F, Length: 1} // all-ones VINT_DATA for length 1
	if !v.IsUnknownSize() {
		t.Fatal("expected unknown size sentinel")
	}
	v2 := VINT{Value: 2, Length: 1}
	if v2.IsUnknownSize() {
		t.Fatal("did not expect unknown size")
	}
}

func TestParseHeaderKnownSegmentID(t *testing.T) {
	buf := []byte{0x18, 0x53, 0x80, 0x67, 0x82}
	h, err := ParseHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.ID != IDSegment {
		t.Fatalf("got id 0x%X, want 0x%X", h.ID, IDSegment)
	}
	if h.Size != 2 {
		t.Fatalf("got size %d, want 2", h.Size)
	}
}

func TestParseUintegerAndInteger(t *testing.T) {
	u, err := ParseUinteger([]byte{0x01, 0x00})
	if err != nil || u != 256 {
		t.Fatalf("got %d, %v", u, err)
	}
	i, err := ParseInteger([]byte{0xFF})
	if err != nil || i != -1 {
		t.Fatalf("got %d, %v", i, err)
	}
}
