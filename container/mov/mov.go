/*
NAME
  mov.go

DESCRIPTION
  mov.go implements the QuickTime (MOV) container. MOV shares ISOBMFF's
  box format, moov/trak/mdia/stbl tree, and sample tables with MP4, so
  this package delegates its demuxer and muxer entirely to package mp4;
  the distinction that remains is ftyp's major brand and which atom
  names a MOV file's own tooling expects to see ("qt  " rather than
  "isom").

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package mov implements the QuickTime container on top of package mp4's
// ISOBMFF box-tree engine.
package mov

import (
	"io"

	"github.com/coastalsound/transcode/container/mp4"
	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

// Demuxer parses a MOV file. MOV's box tree, sample tables, and packet
// reconstruction are byte-for-byte the same problem as MP4's, so this
// type is a thin alias rather than a parallel implementation.
type Demuxer struct {
	*mp4.Demuxer
}

// NewDemuxer parses buf as a QuickTime file. It reads the whole stream
// fully into memory and walks its box tree exactly as package mp4 does;
// a faithful MOV reader has no narrower scope than MP4's §4.3.3 here,
// so none is carved out.
func NewDemuxer(r io.Reader) (*Demuxer, error) {
	d, err := mp4.NewDemuxer(r)
	if err != nil {
		return nil, err
	}
	return &Demuxer{d}, nil
}

// Muxer writes a QuickTime file: MP4's ftyp+mdat+moov layout with a
// "qt  " major brand in place of "isom".
type Muxer struct {
	inner *mp4.Muxer
}

func NewMuxer(w ioutil.Writer) *Muxer {
	inner := mp4.NewMuxer(w)
	inner.SetMajorBrand("qt  ")
	return &Muxer{inner: inner}
}

func (m *Muxer) WriteHeader(streams []*core.Stream) error {
	return m.inner.WriteHeader(streams)
}

func (m *Muxer) WritePacket(p *core.Packet) error {
	return m.inner.WritePacket(p)
}

func (m *Muxer) Finalize() error {
	return m.inner.Finalize()
}
