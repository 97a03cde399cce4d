package compat

import (
	"strings"
	"testing"

	"github.com/coastalsound/transcode/codec/codecutil"
	"github.com/coastalsound/transcode/ioutil"
)

func TestAssertContainerSupported(t *testing.T) {
	if err := AssertContainerSupported(MP4); err != nil {
		t.Fatal(err)
	}
	err := AssertContainerSupported("rmvb")
	if ioutil.KindOf(err) != ioutil.InvalidData {
		t.Fatalf("got %v, want InvalidData", err)
	}
}

func TestAssertAudioSupported(t *testing.T) {
	if err := AssertAudioSupported(WAV, codecutil.PCMS16LE); err != nil {
		t.Fatal(err)
	}
	err := AssertAudioSupported(WAV, codecutil.H264)
	if ioutil.KindOf(err) != ioutil.InvalidData {
		t.Fatalf("got %v, want InvalidData", err)
	}
}

func TestAssertVideoSupportedNamesOffendingCodec(t *testing.T) {
	err := AssertVideoSupported(AVI, codecutil.H265)
	if err == nil {
		t.Fatal("expected error for unsupported h265 in avi")
	}
	if got := err.Error(); !strings.Contains(got, "h265") || !strings.Contains(got, "avi") {
		t.Fatalf("error %q does not name both codec and container", got)
	}
}

func TestAssertSubtitleSupported(t *testing.T) {
	if err := AssertSubtitleSupported(MKV, Text); err != nil {
		t.Fatal(err)
	}
	if err := AssertSubtitleSupported(WAV, Text); err == nil {
		t.Fatal("expected error: wav carries no subtitle streams")
	}
}

func TestAssertOnUnsupportedContainerNamesContainer(t *testing.T) {
	err := AssertAudioSupported("rmvb", codecutil.AAC)
	if ioutil.KindOf(err) != ioutil.InvalidData {
		t.Fatalf("got %v, want InvalidData", err)
	}
	if !strings.Contains(err.Error(), "rmvb") {
		t.Fatalf("error %q does not name the container", err)
	}
}

func TestAllowedListsNonEmptyForKnownContainers(t *testing.T) {
	if len(AllowedAudio(WAV)) == 0 {
		t.Fatal("expected wav to allow some audio codec")
	}
	if len(AllowedVideo(MKV)) == 0 {
		t.Fatal("expected mkv to allow some video codec")
	}
	if len(AllowedVideo(WAV)) != 0 {
		t.Fatal("expected wav to allow no video codec")
	}
}
