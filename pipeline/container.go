/*
NAME
  container.go

DESCRIPTION
  container.go resolves a file extension to one of the container names
  compat.go knows about, and constructs that container's demuxer/muxer.
  This is the only place that imports every concrete container package;
  everything above it speaks core.Demuxer/core.Muxer.

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pipeline

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/compat"
	"github.com/coastalsound/transcode/container/aacfile"
	"github.com/coastalsound/transcode/container/avi"
	"github.com/coastalsound/transcode/container/flacfile"
	"github.com/coastalsound/transcode/container/mkv"
	"github.com/coastalsound/transcode/container/mov"
	"github.com/coastalsound/transcode/container/mp3file"
	"github.com/coastalsound/transcode/container/mp4"
	"github.com/coastalsound/transcode/container/ogg"
	"github.com/coastalsound/transcode/container/wav"
	"github.com/coastalsound/transcode/container/y4m"
	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
)

var extToContainer = map[string]string{
	".wav":  compat.WAV,
	".mkv":  compat.MKV,
	".webm": compat.MKV,
	".mp4":  compat.MP4,
	".m4a":  compat.MP4,
	".m4v":  compat.MP4,
	".mov":  compat.MOV,
	".qt":   compat.MOV,
	".avi":  compat.AVI,
	".ogg":  compat.OGG,
	".ogv":  compat.OGG,
	".flac": compat.FLAC,
	".mp3":  compat.MP3,
	".aac":  compat.AAC,
	".y4m":  compat.Y4M,
}

// ContainerFromExt maps path's extension to a compat container name,
// failing with InvalidData if the extension is unrecognized.
func ContainerFromExt(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	name, ok := extToContainer[ext]
	if !ok {
		return "", ioutil.New(ioutil.InvalidData, errors.Errorf("no container known for extension %q", ext))
	}
	return name, nil
}

// OpenDemuxer builds the demuxer for container, reading from r. Exported
// so callers that only need read access (show) don't have to duplicate
// this switch.
func OpenDemuxer(container string, r io.Reader) (core.Demuxer, error) {
	switch container {
	case compat.WAV:
		return wav.NewDemuxer(r)
	case compat.MKV:
		return mkv.NewDemuxer(r)
	case compat.MP4:
		return mp4.NewDemuxer(r)
	case compat.MOV:
		return mov.NewDemuxer(r)
	case compat.AVI:
		return avi.NewDemuxer(r)
	case compat.OGG:
		return ogg.NewDemuxer(r)
	case compat.FLAC:
		return flacfile.NewDemuxer(r)
	case compat.MP3:
		return mp3file.NewDemuxer(r)
	case compat.AAC:
		return aacfile.NewDemuxer(r)
	case compat.Y4M:
		return y4m.NewDemuxer(r)
	default:
		return nil, ioutil.New(ioutil.InvalidData, errors.Errorf("container %q is not supported", container))
	}
}

// newMuxer builds the muxer for container, writing to w.
func newMuxer(container string, w ioutil.Writer) (core.Muxer, error) {
	switch container {
	case compat.WAV:
		return wav.NewMuxer(w), nil
	case compat.MKV:
		return mkv.NewMuxer(w), nil
	case compat.MP4:
		return mp4.NewMuxer(w), nil
	case compat.MOV:
		return mov.NewMuxer(w), nil
	case compat.AVI:
		return avi.NewMuxer(w), nil
	case compat.OGG:
		return ogg.NewMuxer(w), nil
	case compat.FLAC:
		return flacfile.NewMuxer(w), nil
	case compat.MP3:
		return mp3file.NewMuxer(w), nil
	case compat.AAC:
		return aacfile.NewMuxer(w), nil
	case compat.Y4M:
		return y4m.NewMuxer(w), nil
	default:
		return nil, ioutil.New(ioutil.InvalidData, errors.Errorf("container %q is not supported", container))
	}
}

// seedFormat lets the muxer carry the source container's native format
// across unchanged when request and source agree on every codec (§4.6
// "open phase"). Containers with no such notion (anything but WAV) are a
// no-op here; their defaults already match what a same-codec remux needs.
func seedFormat(m core.Muxer, d core.Demuxer) {
	wm, ok := m.(*wav.Muxer)
	if !ok {
		return
	}
	if wd, ok := d.(*wav.Demuxer); ok {
		wm.SetFormat(wd.Format())
	}
}
