package flacfile

import (
	"bytes"
	"testing"

	"github.com/coastalsound/transcode/codec/flac"
	"github.com/coastalsound/transcode/core"
)

type bufWriter struct{ buf bytes.Buffer }

func (b *bufWriter) Write(p []byte) (int, error) { return b.buf.Write(p) }
func (b *bufWriter) Flush() error                 { return nil }

func encodedFrame(t *testing.T, si flac.StreamInfo, samples []int32) []byte {
	t.Helper()
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		pcm[2*i] = byte(s)
		pcm[2*i+1] = byte(s >> 8)
	}
	af := &core.AudioFrame{Data: pcm, SampleRate: si.SampleRate, Channels: si.Channels, NbSamples: len(samples), Format: core.PCM16}
	tb := core.NewTimebase(1, si.SampleRate)
	f := core.NewAudioFrame(af, tb, 0)
	enc := flac.NewEncoder(si.SampleRate, si.Channels, int(si.BitsPerSample), 0, tb)
	pkts, err := enc.Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkts) != 1 {
		t.Fatalf("got %d packets, want 1", len(pkts))
	}
	return pkts[0].Payload
}

func buildFLAC(t *testing.T, si flac.StreamInfo, frames [][]byte) []byte {
	t.Helper()
	var buf []byte
	buf = append(buf, "fLaC"...)
	body := encodeStreamInfo(si)
	buf = append(buf, 0x80)
	buf = append(buf, byte(len(body)>>16), byte(len(body)>>8), byte(len(body)))
	buf = append(buf, body...)
	for _, f := range frames {
		buf = append(buf, f...)
	}
	return buf
}

func TestDemuxerParsesStreamInfoAndFrames(t *testing.T) {
	si := flac.StreamInfo{MinBlockSize: 4, MaxBlockSize: 4, SampleRate: 44100, Channels: 1, BitsPerSample: 16}
	frame := encodedFrame(t, si, []int32{10, 20, 30, 40})
	raw := buildFLAC(t, si, [][]byte{frame})

	d, err := NewDemuxer(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if d.StreamInfo().SampleRate != 44100 || d.StreamInfo().Channels != 1 {
		t.Fatalf("got streaminfo %+v", d.StreamInfo())
	}

	p, err := d.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || !bytes.Equal(p.Payload, frame) {
		t.Fatalf("got packet %+v, want frame bytes", p)
	}

	p2, err := d.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	if p2 != nil {
		t.Fatal("expected nil at end of stream")
	}
}

func TestMissingSignatureFails(t *testing.T) {
	if _, err := NewDemuxer(bytes.NewReader([]byte("not flac"))); err == nil {
		t.Fatal("expected error for missing fLaC signature")
	}
}

func TestMuxerWritesSignatureAndStreamInfo(t *testing.T) {
	si := flac.StreamInfo{MinBlockSize: 4, MaxBlockSize: 4, SampleRate: 48000, Channels: 2, BitsPerSample: 16}
	var w bufWriter
	m := NewMuxer(&w)
	m.SetStreamInfo(si)
	if err := m.WriteHeader(nil); err != nil {
		t.Fatal(err)
	}
	out := w.buf.Bytes()
	if !bytes.Equal(out[0:4], []byte("fLaC")) {
		t.Fatalf("missing fLaC signature, got %v", out[0:4])
	}
	got, err := flac.ParseStreamInfo(out[8:42])
	if err != nil {
		t.Fatal(err)
	}
	if got.SampleRate != 48000 || got.Channels != 2 {
		t.Fatalf("roundtrip streaminfo = %+v", got)
	}
}
