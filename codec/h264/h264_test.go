package h264

import (
	"bytes"
	"testing"

	"github.com/coastalsound/transcode/core"
)

func annexB(nals ...[]byte) []byte {
	var buf []byte
	for _, n := range nals {
		buf = WriteAnnexB(buf, n)
	}
	return buf
}

func TestSplitNALUnitsBasic(t *testing.T) {
	sps := []byte{0x67, 0x01, 0x02}
	pps := []byte{0x68, 0x03}
	idr := []byte{0x65, 0xAA, 0xBB}
	buf := annexB(sps, pps, idr)

	units := SplitNALUnits(buf)
	if len(units) != 3 {
		t.Fatalf("got %d units, want 3", len(units))
	}
	if units[0].Type != NALTypeSPS {
		t.Errorf("unit 0 type = %d, want SPS", units[0].Type)
	}
	if units[1].Type != NALTypePPS {
		t.Errorf("unit 1 type = %d, want PPS", units[1].Type)
	}
	if units[2].Type != NALTypeIDR {
		t.Errorf("unit 2 type = %d, want IDR", units[2].Type)
	}
	if !units[2].IsKeyframe() {
		t.Error("IDR unit not reported as keyframe")
	}
	if !bytes.Equal(units[0].RBSP, sps) {
		t.Errorf("sps RBSP = %x, want %x", units[0].RBSP, sps)
	}
}

func TestSplitNALUnits3ByteStartCode(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x01, 0x65, 0x01, 0x00, 0x00, 0x01, 0x41, 0x02}
	units := SplitNALUnits(buf)
	if len(units) != 2 {
		t.Fatalf("got %d units, want 2", len(units))
	}
	if units[0].Type != NALTypeIDR || units[1].Type != NALTypeNonIDR {
		t.Errorf("unexpected types: %d, %d", units[0].Type, units[1].Type)
	}
}

func TestRemoveEmulationPrevention(t *testing.T) {
	// 00 00 03 00 -> 00 00 00 (emulation byte removed before a trailing 0x00)
	in := []byte{0x65, 0x00, 0x00, 0x03, 0x00, 0x00, 0x03, 0x01}
	out := removeEmulationPrevention(in)
	want := []byte{0x65, 0x00, 0x00, 0x00, 0x00, 0x01}
	if !bytes.Equal(out, want) {
		t.Fatalf("removeEmulationPrevention = %x, want %x", out, want)
	}
}

func TestDecoderKeyframePropagation(t *testing.T) {
	d := NewDecoder(640, 480, 0, core.NewTimebase(1, 25))
	idr := []byte{0x65, 0x01}
	p := &core.Packet{Payload: annexB(idr), StreamIndex: 0}
	frames, err := d.Decode(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !frames[0].Video.Keyframe {
		t.Error("decoded frame not marked keyframe for IDR NAL")
	}
}

func TestEncoderPrefixesHeadersOnce(t *testing.T) {
	sps, pps := DefaultSPSPPS(640, 480)
	e := NewEncoder(sps, pps, 0, core.NewTimebase(1, 25))

	f1 := core.NewVideoFrame(&core.VideoFrame{Data: annexB([]byte{0x65, 0xAA}), Width: 640, Height: 480, Keyframe: true}, core.NewTimebase(1, 25), 0)
	pkts1, err := e.Encode(f1)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkts1) != 1 {
		t.Fatalf("got %d packets, want 1", len(pkts1))
	}
	if !pkts1[0].Keyframe {
		t.Error("keyframe flag not propagated to packet")
	}
	units := SplitNALUnits(pkts1[0].Payload)
	if len(units) != 3 {
		t.Fatalf("first packet got %d NAL units, want 3 (sps, pps, frame)", len(units))
	}

	f2 := core.NewVideoFrame(&core.VideoFrame{Data: annexB([]byte{0x41, 0xBB}), Width: 640, Height: 480}, core.NewTimebase(1, 25), 0)
	pkts2, err := e.Encode(f2)
	if err != nil {
		t.Fatal(err)
	}
	units2 := SplitNALUnits(pkts2[0].Payload)
	if len(units2) != 1 {
		t.Fatalf("second packet got %d NAL units, want 1 (headers not repeated)", len(units2))
	}
}
