/*
NAME
  registry.go

DESCRIPTION
  registry.go holds the canonical codec name constants and the
  container-specific codec-identifier tables that map a container's native
  codec tag (Matroska's CodecID, MP4's sample entry fourcc, WAV's
  format_code) to one of these canonical names.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package codecutil holds the canonical codec-name registry shared by every
// container demuxer and muxer, plus ByteScanner, a small byte-scanning
// helper used by codec/h264's start-code search.
package codecutil

import "strings"

// Canonical codec names, fixed lowercase strings used throughout the
// pipeline regardless of which container produced or will carry them.
const (
	PCMS16LE    = "pcm_s16le"
	PCMS24LE    = "pcm_s24le"
	PCMS32LE    = "pcm_s32le"
	PCMF32LE    = "pcm_f32le"
	ADPCMIMAWAV = "adpcm_ima_wav"
	AAC         = "aac"
	H264        = "h264"
	H265        = "h265"
	FLAC        = "flac"
	MP3         = "mp3"
	Opus        = "opus"
	Vorbis      = "vorbis"
	RawVideo    = "rawvideo"
)

// IsKnown reports whether name is one of the canonical names above.
func IsKnown(name string) bool {
	switch name {
	case PCMS16LE, PCMS24LE, PCMS32LE, PCMF32LE, ADPCMIMAWAV, AAC, H264, H265, FLAC, MP3, Opus, Vorbis, RawVideo:
		return true
	default:
		return false
	}
}

// PCMNameForDepth maps a WAV/AIFF-style linear-PCM bit depth to a canonical
// PCM codec name.
func PCMNameForDepth(bitDepth int) (string, bool) {
	switch bitDepth {
	case 16:
		return PCMS16LE, true
	case 24:
		return PCMS24LE, true
	case 32:
		return PCMS32LE, true
	default:
		return "", false
	}
}

// mkvCodecIDs maps Matroska CodecID strings (or prefixes, tested via
// strings.HasPrefix for the "A_AAC/*" family) to canonical names.
var mkvCodecIDs = map[string]string{
	"V_MPEG4/ISO/AVC":  H264,
	"V_MPEGH/ISO/HEVC": H265,
	"A_FLAC":           FLAC,
	"A_MPEG/L3":        MP3,
	"A_OPUS":           Opus,
	"A_VORBIS":         Vorbis,
	"A_PCM/INT/LIT":    PCMS16LE,
}

// FromMKVCodecID resolves a Matroska CodecID to a canonical codec name.
func FromMKVCodecID(id string) (string, bool) {
	if strings.HasPrefix(id, "A_AAC") {
		return AAC, true
	}
	if name, ok := mkvCodecIDs[id]; ok {
		return name, true
	}
	return "", false
}

// mp4FourCCs maps ISOBMFF sample-entry fourccs to canonical names.
var mp4FourCCs = map[string]string{
	"avc1": H264,
	"hev1": H265,
	"hvc1": H265,
	"mp4a": AAC,
	"fLaC": FLAC,
	"Opus": Opus,
	"twos": PCMS16LE,
	"sowt": PCMS16LE,
	"in24": PCMS24LE,
	"in32": PCMS32LE,
	"fl32": PCMF32LE,
}

// FromMP4FourCC resolves an ISOBMFF sample-entry fourcc to a canonical
// codec name.
func FromMP4FourCC(fourcc string) (string, bool) {
	name, ok := mp4FourCCs[fourcc]
	return name, ok
}

// WAV format_code values.
const (
	WAVFormatPCM      = 0x0001
	WAVFormatIMAADPCM = 0x0011
)
