package core

// Kind distinguishes the two Frame payload shapes.
type Kind int

const (
	KindAudio Kind = iota
	KindVideo
)

// SampleFormat labels an audio Frame's sample encoding. The pre-encoded
// labels (FLAC, AAC, Opus, ADPCM) let a simple encoder pass an
// already-framed payload through without understanding it.
type SampleFormat int

const (
	PCM16 SampleFormat = iota
	PCM24
	PCM32F
	SampleFLAC
	SampleAAC
	SampleOpus
	SampleADPCM
)

// BytesPerSample returns the storage width of one sample in one channel
// for formats with a fixed width; pre-encoded formats return 0 since their
// payload isn't sample-addressable.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case PCM16:
		return 2
	case PCM24:
		return 3
	case PCM32F:
		return 4
	default:
		return 0
	}
}

// PixelFormat labels a video Frame's raw pixel layout.
type PixelFormat int

const (
	RGB24 PixelFormat = iota
	RGBA32
	YUV420
	YUV422
	YUV444
	GRAY8
)

// BytesPerPixel gives the average bytes-per-pixel, using eighths for
// chroma-subsampled formats (YUV420 is 12 bits/pixel = 1.5 bytes).
func (f PixelFormat) BytesPerPixel() float64 {
	switch f {
	case RGB24:
		return 3
	case RGBA32:
		return 4
	case YUV420:
		return 1.5
	case YUV422:
		return 2
	case YUV444:
		return 3
	case GRAY8:
		return 1
	default:
		return 0
	}
}

// AudioFrame carries decoded (or pass-through encoded) audio samples.
type AudioFrame struct {
	Data       []byte
	SampleRate uint32
	Channels   uint8
	NbSamples  int
	Format     SampleFormat
}

// VideoFrame carries decoded raw pixels.
type VideoFrame struct {
	Data     []byte
	Width    uint32
	Height   uint32
	Format   PixelFormat
	Keyframe bool
}

// ExpectedSize is the byte length VideoFrame.Data should have for a fully
// packed frame in Format.
func (v *VideoFrame) ExpectedSize() int {
	return int(float64(v.Width) * float64(v.Height) * v.Format.BytesPerPixel())
}

// Frame is a decoded unit: a sum type over {Audio, Video}. Exactly one of
// Audio/Video is non-nil, selected by Kind.
type Frame struct {
	PTS         int64
	Timebase    Timebase
	StreamIndex uint32
	Kind        Kind
	Audio       *AudioFrame
	Video       *VideoFrame
}

// NewAudioFrame builds an audio Frame.
func NewAudioFrame(a *AudioFrame, tb Timebase, streamIndex uint32) *Frame {
	return &Frame{Timebase: tb, StreamIndex: streamIndex, Kind: KindAudio, Audio: a}
}

// NewVideoFrame builds a video Frame.
func NewVideoFrame(v *VideoFrame, tb Timebase, streamIndex uint32) *Frame {
	return &Frame{Timebase: tb, StreamIndex: streamIndex, Kind: KindVideo, Video: v}
}

// Size returns the payload length of whichever variant is set.
func (f *Frame) Size() int {
	if f.Kind == KindAudio && f.Audio != nil {
		return len(f.Audio.Data)
	}
	if f.Kind == KindVideo && f.Video != nil {
		return len(f.Video.Data)
	}
	return 0
}

// IsEmpty reports whether Size is zero (used as the decoder/encoder drain
// sentinel during flush).
func (f *Frame) IsEmpty() bool { return f.Size() == 0 }

// Clone deep-copies f; frames are exclusively owned, same as Packet.
func (f *Frame) Clone() *Frame {
	cf := *f
	if f.Audio != nil {
		a := *f.Audio
		a.Data = append([]byte(nil), f.Audio.Data...)
		cf.Audio = &a
	}
	if f.Video != nil {
		v := *f.Video
		v.Data = append([]byte(nil), f.Video.Data...)
		cf.Video = &v
	}
	return &cf
}
