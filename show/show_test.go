package show

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coastalsound/transcode/container/mkv"
	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

func writeMinimalWAV(t *testing.T, path string, samples []int16) {
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
	buf = ioutil.AppendU16LE(buf, 1)
	buf = ioutil.AppendU16LE(buf, 1)
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

func TestCollectWAV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.wav")
	writeMinimalWAV(t, path, []int16{0, 100, -100, 42})

	info, err := Collect(path, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Streams) != 1 {
		t.Fatalf("got %d streams, want 1", len(info.Streams))
	}
	if info.Streams[0].Codec != "pcm_s16le" {
		t.Fatalf("got codec %q, want pcm_s16le", info.Streams[0].Codec)
	}
	if len(info.Packets) == 0 {
		t.Fatal("want at least one packet")
	}
}

func TestHexDumpTruncates(t *testing.T) {
	got := hexDump([]byte{0x01, 0x02, 0x03, 0xff}, 2)
	want := "01 02 ..."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestHexDumpNoTruncation(t *testing.T) {
	got := hexDump([]byte{0xab, 0xcd}, 16)
	if got != "ab cd" {
		t.Fatalf("got %q, want %q", got, "ab cd")
	}
}

func TestJSONContainsCodecAndType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.wav")
	writeMinimalWAV(t, path, []int16{1, 2, 3})

	info, err := Collect(path, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := JSON(&buf, info, DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `"codec":"pcm_s16le"`) {
		t.Fatalf("json missing codec field: %s", out)
	}
	if !strings.Contains(out, `"type":"audio"`) {
		t.Fatalf("json missing type field: %s", out)
	}
}

func TestHumanIncludesFilePathAndStreamHeader(t *testing.T) {
	// Headings are bold unless NO_COLOR is set; the plain text is matched below.
	t.Setenv("NO_COLOR", "1")
	dir := t.TempDir()
	path := filepath.Join(dir, "in.wav")
	// More than maxPacketBytes worth of samples forces multiple demuxer
	// packets, so the last packet's PTS is a close approximation of the
	// stream's total duration.
	writeMinimalWAV(t, path, make([]int16, 100000))

	info, err := Collect(path, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if info.File.Duration <= 0 {
		t.Fatalf("got duration %v, want > 0", info.File.Duration)
	}
	var buf bytes.Buffer
	Human(&buf, info, DefaultOptions())
	out := buf.String()
	if !strings.Contains(out, path) {
		t.Fatalf("human output missing path: %s", out)
	}
	if !strings.Contains(out, "Audio Stream #0") {
		t.Fatalf("human output missing stream header: %s", out)
	}
}

func writeMinimalMKV(t *testing.T, path string) {
	t.Helper()
	w, err := ioutil.CreateWrite(path)
	if err != nil {
		t.Fatal(err)
	}
	m := mkv.NewMuxer(w)
	streams := []*core.Stream{
		{Index: 0, Kind: core.Video, Codec: "h264", Width: 640, Height: 480},
	}
	if err := m.WriteHeader(streams); err != nil {
		t.Fatal(err)
	}
	if err := m.WritePacket(&core.Packet{StreamIndex: 0, PTS: 0, Payload: []byte{1, 2, 3}, Keyframe: true}); err != nil {
		t.Fatal(err)
	}
	if err := m.Finalize(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestJSONMKVContainsH264VideoStream(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.mkv")
	writeMinimalMKV(t, path)

	info, err := Collect(path, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := JSON(&buf, info, DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `"codec":"h264"`) {
		t.Fatalf("json missing h264 codec: %s", out)
	}
	if !strings.Contains(out, `"type":"video"`) {
		t.Fatalf("json missing video type: %s", out)
	}
}

func TestDefaultOptionsBoundsPacketCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.wav")
	samples := make([]int16, 100000)
	writeMinimalWAV(t, path, samples)

	info, err := Collect(path, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Packets) > DefaultOptions().FrameLimit {
		t.Fatalf("got %d packets, want at most %d", len(info.Packets), DefaultOptions().FrameLimit)
	}
}
