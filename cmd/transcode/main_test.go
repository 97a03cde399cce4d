package main

import "testing"

func TestParseKVSplitsOnEquals(t *testing.T) {
	got := parseKV([]string{"codec=adpcm_ima_wav", "bitrate=128000"})
	if got["codec"] != "adpcm_ima_wav" || got["bitrate"] != "128000" {
		t.Fatalf("got %v", got)
	}
}

func TestParseKVMissingEqualsDefaultsToTrue(t *testing.T) {
	got := parseKV([]string{"strict"})
	if got["strict"] != "true" {
		t.Fatalf("got %v, want strict=true", got)
	}
}

func TestParseKVEmptyIsNil(t *testing.T) {
	if got := parseKV(nil); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}
