package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/coastalsound/transcode/ioutil"
)

func writeWAVFile(t *testing.T, path string, samples []int16) {
	t.Helper()
	var data []byte
	for _, s := range samples {
		data = ioutil.AppendU16LE(data, uint16(s))
	}
	var buf []byte
	buf = append(buf, "RIFF"...)
	riffSize := 4 + 8 + 16 + 8 + len(data)
	buf = ioutil.AppendU32LE(buf, uint32(riffSize))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = ioutil.AppendU32LE(buf, 16)
	buf = ioutil.AppendU16LE(buf, 1) // PCM
	buf = ioutil.AppendU16LE(buf, 1) // mono
	buf = ioutil.AppendU32LE(buf, 8000)
	buf = ioutil.AppendU32LE(buf, 8000*2)
	buf = ioutil.AppendU16LE(buf, 2)
	buf = ioutil.AppendU16LE(buf, 16)
	buf = append(buf, "data"...)
	buf = ioutil.AppendU32LE(buf, uint32(len(data)))
	buf = append(buf, data...)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunWAVPassthroughIsByteIdentical(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")
	samples := []int16{0, 100, -100, 32767, -32768, 42}
	writeWAVFile(t, in, samples)

	if err := Run(in, out, Options{}); err != nil {
		t.Fatal(err)
	}

	gotIn, err := os.ReadFile(in)
	if err != nil {
		t.Fatal(err)
	}
	gotOut, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(gotIn) != len(gotOut) {
		t.Fatalf("got %d bytes, want %d", len(gotOut), len(gotIn))
	}
	for i := range gotIn {
		if gotIn[i] != gotOut[i] {
			t.Fatalf("byte %d differs: got %#x, want %#x", i, gotOut[i], gotIn[i])
		}
	}
}

func TestRunWAVToADPCMWritesIMAFormat(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")
	samples := make([]int16, 512)
	for i := range samples {
		samples[i] = int16((i % 200) * 100)
	}
	writeWAVFile(t, in, samples)

	opts := Options{Audio: map[string]string{"codec": "adpcm_ima_wav"}}
	if err := Run(in, out, opts); err != nil {
		t.Fatal(err)
	}

	demuxed, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(demuxed) < 44 {
		t.Fatalf("output wav too short: %d bytes", len(demuxed))
	}
	formatCode := ioutil.GetU16LE(demuxed[20:22])
	if formatCode != 0x0011 {
		t.Fatalf("got format_code %#x, want 0x0011 (IMA-ADPCM)", formatCode)
	}
}

func TestRunRejectsUnsupportedContainer(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.unknownext")
	writeWAVFile(t, in, []int16{1, 2, 3})
	err := Run(in, out, Options{})
	if ioutil.KindOf(err) != ioutil.InvalidData {
		t.Fatalf("got %v, want InvalidData", err)
	}
}

func TestRunRejectsUnsupportedCodecForContainer(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")
	writeWAVFile(t, in, []int16{1, 2, 3})
	opts := Options{Audio: map[string]string{"codec": "h264"}}
	err := Run(in, out, opts)
	if ioutil.KindOf(err) != ioutil.InvalidData {
		t.Fatalf("got %v, want InvalidData", err)
	}
}
