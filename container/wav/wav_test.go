package wav

import (
	"bytes"
	"testing"

	"github.com/coastalsound/transcode/ioutil"
)

type bufWriter struct{ buf bytes.Buffer }

func (b *bufWriter) Write(p []byte) (int, error) { return b.buf.Write(p) }
func (b *bufWriter) Flush() error                 { return nil }

func buildWAV(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		ioutil.PutU16LE(data[i*2:], uint16(s))
	}
	var buf []byte
	buf = append(buf, "RIFF"...)
	buf = ioutil.AppendU32LE(buf, uint32(4+8+16+8+len(data)))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = ioutil.AppendU32LE(buf, 16)
	buf = ioutil.AppendU16LE(buf, 1) // PCM
	buf = ioutil.AppendU16LE(buf, 1) // mono
	buf = ioutil.AppendU32LE(buf, 44100)
	buf = ioutil.AppendU32LE(buf, 44100*2)
	buf = ioutil.AppendU16LE(buf, 2)
	buf = ioutil.AppendU16LE(buf, 16)
	buf = append(buf, "data"...)
	buf = ioutil.AppendU32LE(buf, uint32(len(data)))
	buf = append(buf, data...)
	return buf
}

func TestDemuxerParsesFormatAndStreams(t *testing.T) {
	samples := make([]int16, 512)
	for i := range samples {
		samples[i] = int16(i * 10000 / 512)
	}
	raw := buildWAV(samples)

	d, err := NewDemuxer(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	streams := d.Streams()
	if len(streams) != 1 {
		t.Fatalf("got %d streams, want 1", len(streams))
	}
	if streams[0].Codec != "pcm_s16le" {
		t.Fatalf("codec = %q, want pcm_s16le", streams[0].Codec)
	}

	var total []byte
	for {
		p, err := d.ReadPacket()
		if err != nil {
			t.Fatal(err)
		}
		if p == nil {
			break
		}
		total = append(total, p.Payload...)
	}
	if len(total) != len(samples)*2 {
		t.Fatalf("got %d bytes, want %d", len(total), len(samples)*2)
	}
}

func TestRoundtripByteIdentical(t *testing.T) {
	samples := make([]int16, 512)
	for i := range samples {
		samples[i] = int16(i * 10000 / 512)
	}
	raw := buildWAV(samples)

	d, err := NewDemuxer(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}

	var w bufWriter
	m := NewMuxer(&w)
	m.SetFormat(d.Format())
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

	if !bytes.Equal(w.buf.Bytes(), raw) {
		t.Fatalf("roundtrip output differs from input: got %d bytes, want %d", w.buf.Len(), len(raw))
	}
}

func TestRejectsUnsupportedFormatCode(t *testing.T) {
	raw := buildWAV([]int16{1, 2, 3})
	// format_code offset: "RIFF"(4) + size(4) + "WAVE"(4) + "fmt "(4) + size(4) = 20
	ioutil.PutU16LE(raw[20:], 99)
	_, err := NewDemuxer(bytes.NewReader(raw))
	if err == nil {
		t.Fatal("expected error for unsupported format code")
	}
	if got := err.Error(); !bytes.Contains([]byte(got), []byte("audio format code 99 is not supported")) {
		t.Fatalf("error message = %q, want it to contain the format-code complaint", got)
	}
}

func TestRejectsZeroChannels(t *testing.T) {
	raw := buildWAV([]int16{1, 2, 3})
	ioutil.PutU16LE(raw[22:], 0) // channels offset
	if _, err := NewDemuxer(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected error for zero channels")
	}
}
