package core

import "fmt"

// StreamKind is the high-level media kind a Stream carries.
type StreamKind int

const (
	Audio StreamKind = iota
	Video
	Subtitle
)

func (k StreamKind) String() string {
	switch k {
	case Audio:
		return "audio"
	case Video:
		return "video"
	case Subtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// Stream is a demuxer-produced, read-only-after-open descriptor for one
// timed sequence of packets.
type Stream struct {
	ID       uint32
	Index    int
	Kind     StreamKind
	Codec    string // canonical codec name, e.g. "pcm_s16le", "h264"
	Timebase Timebase

	// Optional format hints, populated when the container's track
	// metadata carries them (not every container knows width/height or
	// channel count before the first packet/frame).
	Channels   uint8
	SampleRate uint32
	BitDepth   uint8
	Width      uint32
	Height     uint32

	// BlockAlign carries WAV-style block framing (bytes per ADPCM block,
	// or per-frame byte stride for uncompressed PCM); zero means the
	// container does not need one.
	BlockAlign uint16
}

func (s *Stream) String() string {
	return fmt.Sprintf("stream %d (%s) [%s]", s.Index, s.Kind, s.Codec)
}

// IsAudio, IsVideo, IsSubtitle are convenience predicates for the three
// stream kinds.
func (s *Stream) IsAudio() bool    { return s.Kind == Audio }
func (s *Stream) IsVideo() bool    { return s.Kind == Video }
func (s *Stream) IsSubtitle() bool { return s.Kind == Subtitle }
