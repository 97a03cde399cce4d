/*
NAME
  compat.go

DESCRIPTION
  compat.go implements the compatibility table: a static mapping from
  container to the codecs it may legally carry per stream kind, and the
  assertion functions the pipeline's startup checks call before any file
  is opened.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package compat holds the container/codec compatibility table. Muxers
// cannot gracefully reject an unsupported codec at write time without
// corrupting the output file already in progress, so every combination is
// checked here before any file is opened.
package compat

import (
	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/codec/codecutil"
	"github.com/coastalsound/transcode/ioutil"
)

// Canonical container names, matching the extensions the pipeline derives
// them from.
const (
	WAV  = "wav"
	MKV  = "mkv"
	MP4  = "mp4"
	MOV  = "mov"
	AVI  = "avi"
	OGG  = "ogg"
	FLAC = "flac"
	MP3  = "mp3"
	AAC  = "aac"
	Y4M  = "y4m"

	// Text is the only subtitle codec this module carries: a plain UTF-8
	// payload, matching Matroska's S_TEXT/UTF8 and MP4's tx3g in spirit.
	Text = "text"
)

// codecSet is a small membership set built from a literal slice; fine at
// this size, and keeps the table below readable as plain lists.
type codecSet map[string]bool

func setOf(names ...string) codecSet {
	s := make(codecSet, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

// entry describes one container's legal codec payload, split by stream
// kind, matching how the pipeline queries it (Container, then Audio/
// Video/Subtitle for a specific stream).
type entry struct {
	audio, video, subtitle codecSet
}

// table is the static container → {allowed_audio, allowed_video,
// allowed_subtitle} mapping. A container absent here is not supported at
// all. A codecSet that is nil or empty means that container carries no
// streams of that kind.
var table = map[string]entry{
	WAV: {
		audio: setOf(codecutil.PCMS16LE, codecutil.PCMS24LE, codecutil.PCMS32LE, codecutil.ADPCMIMAWAV),
	},
	AAC: {
		audio: setOf(codecutil.AAC),
	},
	MP3: {
		audio: setOf(codecutil.MP3),
	},
	FLAC: {
		audio: setOf(codecutil.FLAC),
	},
	Y4M: {
		video: setOf(codecutil.RawVideo),
	},
	OGG: {
		audio: setOf(codecutil.FLAC, codecutil.Opus, codecutil.Vorbis),
	},
	MKV: {
		audio:    setOf(codecutil.AAC, codecutil.FLAC, codecutil.MP3, codecutil.Opus, codecutil.Vorbis, codecutil.PCMS16LE),
		video:    setOf(codecutil.H264, codecutil.H265),
		subtitle: setOf(Text),
	},
	MP4: {
		audio:    setOf(codecutil.AAC, codecutil.PCMS16LE, codecutil.PCMS24LE, codecutil.PCMS32LE, codecutil.PCMF32LE, codecutil.FLAC, codecutil.Opus),
		video:    setOf(codecutil.H264, codecutil.H265),
		subtitle: setOf(Text),
	},
	MOV: {
		audio:    setOf(codecutil.AAC, codecutil.PCMS16LE, codecutil.PCMS24LE, codecutil.PCMS32LE, codecutil.PCMF32LE, codecutil.FLAC, codecutil.Opus),
		video:    setOf(codecutil.H264, codecutil.H265),
		subtitle: setOf(Text),
	},
	AVI: {
		audio: setOf(codecutil.PCMS16LE),
		video: setOf(codecutil.H264),
	},
}

// AssertContainerSupported fails with InvalidData unless container names
// an entry in the table.
func AssertContainerSupported(container string) error {
	if _, ok := table[container]; !ok {
		return ioutil.New(ioutil.InvalidData, errors.Errorf("container %q is not supported", container))
	}
	return nil
}

// AssertAudioSupported fails with InvalidData unless codec is a legal
// audio codec for container.
func AssertAudioSupported(container, codec string) error {
	return assertSupported(container, codec, "audio", func(e entry) codecSet { return e.audio })
}

// AssertVideoSupported fails with InvalidData unless codec is a legal
// video codec for container.
func AssertVideoSupported(container, codec string) error {
	return assertSupported(container, codec, "video", func(e entry) codecSet { return e.video })
}

// AssertSubtitleSupported fails with InvalidData unless codec is a legal
// subtitle codec for container.
func AssertSubtitleSupported(container, codec string) error {
	return assertSupported(container, codec, "subtitle", func(e entry) codecSet { return e.subtitle })
}

func assertSupported(container, codec, kind string, pick func(entry) codecSet) error {
	e, ok := table[container]
	if !ok {
		return ioutil.New(ioutil.InvalidData, errors.Errorf("container %q is not supported", container))
	}
	if !pick(e)[codec] {
		return ioutil.New(ioutil.InvalidData, errors.Errorf("%s codec %q is not supported in container %q", kind, codec, container))
	}
	return nil
}

// AllowedAudio, AllowedVideo and AllowedSubtitle return the sorted-free
// set of codecs a container allows for the given stream kind, for use by
// the inspection renderer and format-carry-across logic; the returned
// slice is a fresh copy safe for callers to mutate.
func AllowedAudio(container string) []string    { return keys(table[container].audio) }
func AllowedVideo(container string) []string    { return keys(table[container].video) }
func AllowedSubtitle(container string) []string { return keys(table[container].subtitle) }

func keys(s codecSet) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}
