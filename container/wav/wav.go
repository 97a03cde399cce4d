/*
NAME
  wav.go

DESCRIPTION
  wav.go implements the RIFF/WAVE container: chunk iteration, fmt-chunk
  validation, and PCM/IMA-ADPCM packetization.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package wav implements the RIFF/WAVE container's demuxer and muxer.
package wav

import (
	"io"

	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/codec/adpcm"
	"github.com/coastalsound/transcode/codec/codecutil"
	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

const (
	FormatPCM      = 0x0001
	FormatIMAADPCM = 0x0011
	maxPacketBytes = 64 * 1024
)

// Format holds the parsed fmt chunk.
type Format struct {
	FormatCode    uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// Demuxer reads a RIFF/WAVE file's fmt and data chunks.
type Demuxer struct {
	fmt        Format
	data       []byte
	off        int
	streams    []*core.Stream
	pts        int64
	blockAlign int
}

// NewDemuxer reads and validates a complete WAV file from r.
func NewDemuxer(r io.Reader) (*Demuxer, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, ioutil.New(ioutil.Other, err)
	}
	if len(buf) < 12 || string(buf[0:4]) != "RIFF" || string(buf[8:12]) != "WAVE" {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("wav: not a RIFF/WAVE file"))
	}

	d := &Demuxer{}
	off := 12
	var gotFmt, gotData bool
	for off+8 <= len(buf) {
		id := string(buf[off : off+4])
		size := int(ioutil.GetU32LE(buf[off+4 : off+8]))
		body := off + 8
		if body+size > len(buf) {
			return nil, ioutil.NewAt(ioutil.InvalidData, int64(off), errors.Errorf("wav: chunk %q size %d exceeds file", id, size))
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, ioutil.New(ioutil.InvalidData, errors.Errorf("wav: fmt chunk too short: %d bytes", size))
			}
			f := Format{
				FormatCode:    ioutil.GetU16LE(buf[body : body+2]),
				Channels:      ioutil.GetU16LE(buf[body+2 : body+4]),
				SampleRate:    ioutil.GetU32LE(buf[body+4 : body+8]),
				ByteRate:      ioutil.GetU32LE(buf[body+8 : body+12]),
				BlockAlign:    ioutil.GetU16LE(buf[body+12 : body+14]),
				BitsPerSample: ioutil.GetU16LE(buf[body+14 : body+16]),
			}
			if err := validateFormat(f); err != nil {
				return nil, err
			}
			d.fmt = f
			gotFmt = true
		case "data":
			d.data = buf[body : body+size]
			gotData = true
		}
		off = body + size
		if size%2 == 1 {
			off++ // chunks are padded to even size
		}
	}
	if !gotFmt {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("wav: missing fmt chunk"))
	}
	if !gotData {
		return nil, ioutil.New(ioutil.InvalidData, errors.New("wav: missing data chunk"))
	}

	codecName := canonicalCodec(d.fmt)
	tb := core.NewTimebase(1, d.fmt.SampleRate)
	d.blockAlign = int(d.fmt.BlockAlign)
	if d.blockAlign == 0 {
		d.blockAlign = int(d.fmt.Channels) * int(d.fmt.BitsPerSample) / 8
	}
	d.streams = []*core.Stream{{
		ID: 0, Index: 0, Kind: core.Audio, Codec: codecName, Timebase: tb,
		Channels: uint8(d.fmt.Channels), SampleRate: d.fmt.SampleRate, BitDepth: uint8(d.fmt.BitsPerSample),
		BlockAlign: uint16(d.blockAlign),
	}}
	return d, nil
}

func validateFormat(f Format) error {
	if f.Channels == 0 {
		return ioutil.New(ioutil.InvalidData, errors.New("wav: channels must be > 0"))
	}
	if f.SampleRate == 0 {
		return ioutil.New(ioutil.InvalidData, errors.New("wav: sample_rate must be > 0"))
	}
	switch f.FormatCode {
	case FormatPCM:
		if f.BitsPerSample%8 != 0 {
			return ioutil.New(ioutil.InvalidData, errors.Errorf("wav: bits_per_sample %d not a multiple of 8 for PCM", f.BitsPerSample))
		}
	case FormatIMAADPCM:
		if f.BitsPerSample != 4 {
			return ioutil.New(ioutil.InvalidData, errors.Errorf("wav: bits_per_sample %d != 4 for IMA-ADPCM", f.BitsPerSample))
		}
	default:
		return ioutil.New(ioutil.InvalidData, errors.Errorf("audio format code %d is not supported", f.FormatCode))
	}
	return nil
}

func canonicalCodec(f Format) string {
	switch f.FormatCode {
	case FormatPCM:
		if name, ok := codecutil.PCMNameForDepth(int(f.BitsPerSample)); ok {
			return name
		}
		return codecutil.PCMS16LE
	case FormatIMAADPCM:
		return codecutil.ADPCMIMAWAV
	default:
		return "unknown"
	}
}

// Format returns the parsed fmt chunk, used by the pipeline to seed a WAV
// muxer when carrying the source format across unchanged.
func (d *Demuxer) Format() Format { return d.fmt }

func (d *Demuxer) Streams() []*core.Stream { return d.streams }

// ReadPacket emits up to 64 KiB of audio payload per packet, aligned to
// whole sample frames (PCM) or whole blocks (ADPCM).
func (d *Demuxer) ReadPacket() (*core.Packet, error) {
	if d.off >= len(d.data) {
		return nil, nil
	}
	unit := d.blockAlign
	if unit == 0 {
		unit = 1
	}
	maxBytes := (maxPacketBytes / unit) * unit
	if maxBytes == 0 {
		maxBytes = unit
	}
	end := d.off + maxBytes
	if end > len(d.data) {
		end = len(d.data)
	}
	chunk := d.data[d.off:end]
	n := len(chunk)

	var sampleUnits int64
	if d.fmt.FormatCode == FormatIMAADPCM {
		blocks := n / d.blockAlign
		perBlock := adpcm.SamplesPerBlock(d.blockAlign, int(d.fmt.Channels))
		sampleUnits = int64(blocks * perBlock)
	} else {
		bytesPerFrame := int(d.fmt.Channels) * int(d.fmt.BitsPerSample) / 8
		if bytesPerFrame == 0 {
			bytesPerFrame = 1
		}
		sampleUnits = int64(n / bytesPerFrame)
	}

	p := &core.Packet{
		Payload:     append([]byte(nil), chunk...),
		StreamIndex: 0,
		PTS:         d.pts,
		DTS:         d.pts,
		Timebase:    d.streams[0].Timebase,
		Keyframe:    true,
	}
	d.pts += sampleUnits
	d.off = end
	return p, nil
}

// Muxer writes a RIFF/WAVE file: fmt chunk seeded at WriteHeader, data
// chunk accumulated in memory and patched with its final size at Finalize.
type Muxer struct {
	w    ioutil.Writer
	fmt  Format
	data []byte
}

// NewMuxer returns a Muxer that writes to w. SetFormat must be called
// (directly, or via the pipeline seeding it from the source) before
// WriteHeader.
func NewMuxer(w ioutil.Writer) *Muxer { return &Muxer{w: w} }

// SetFormat configures the fmt chunk fields this muxer will write.
func (m *Muxer) SetFormat(f Format) { m.fmt = f }

func (m *Muxer) WriteHeader(streams []*core.Stream) error {
	if m.fmt.FormatCode == 0 && len(streams) > 0 {
		s := streams[0]
		formatCode := uint16(FormatPCM)
		bitsPerSample := uint16(s.BitDepth)
		if s.Codec == codecutil.ADPCMIMAWAV {
			formatCode = FormatIMAADPCM
			bitsPerSample = 4
		} else if bitsPerSample == 0 {
			bitsPerSample = 16
		}
		m.fmt = Format{
			FormatCode:    formatCode,
			Channels:      uint16(s.Channels),
			SampleRate:    s.SampleRate,
			BitsPerSample: bitsPerSample,
			BlockAlign:    s.BlockAlign,
		}
		if m.fmt.BlockAlign == 0 {
			if formatCode == FormatIMAADPCM {
				m.fmt.BlockAlign = 256
			} else {
				m.fmt.BlockAlign = m.fmt.Channels * bitsPerSample / 8
			}
		}
		m.fmt.ByteRate = m.fmt.SampleRate * uint32(m.fmt.BlockAlign)
	}
	return nil
}

func (m *Muxer) WritePacket(p *core.Packet) error {
	m.data = append(m.data, p.Payload...)
	return nil
}

func (m *Muxer) Finalize() error {
	var hdr []byte
	hdr = append(hdr, "RIFF"...)
	dataSize := len(m.data)
	riffSize := 4 + 8 + 16 + 8 + dataSize
	hdr = ioutil.AppendU32LE(hdr, uint32(riffSize))
	hdr = append(hdr, "WAVE"...)
	hdr = append(hdr, "fmt "...)
	hdr = ioutil.AppendU32LE(hdr, 16)
	hdr = ioutil.AppendU16LE(hdr, m.fmt.FormatCode)
	hdr = ioutil.AppendU16LE(hdr, m.fmt.Channels)
	hdr = ioutil.AppendU32LE(hdr, m.fmt.SampleRate)
	hdr = ioutil.AppendU32LE(hdr, m.fmt.ByteRate)
	hdr = ioutil.AppendU16LE(hdr, m.fmt.BlockAlign)
	hdr = ioutil.AppendU16LE(hdr, m.fmt.BitsPerSample)
	hdr = append(hdr, "data"...)
	hdr = ioutil.AppendU32LE(hdr, uint32(dataSize))

	if _, err := m.w.Write(hdr); err != nil {
		return err
	}
	if _, err := m.w.Write(m.data); err != nil {
		return err
	}
	if dataSize%2 == 1 {
		if _, err := m.w.Write([]byte{0}); err != nil {
			return err
		}
	}
	return m.w.Flush()
}
