package core

// Demuxer is the contract every container demuxer satisfies. Streams is
// stable after Open returns; ReadPacket returns (nil, nil) at clean EOS.
type Demuxer interface {
	Streams() []*Stream
	ReadPacket() (*Packet, error)
}

// Muxer is the contract every container muxer satisfies. WriteHeader is
// called once, after all Streams are known, before any WritePacket.
// Finalize is called exactly once, after the last WritePacket, and closes
// any length-prefixed structures.
type Muxer interface {
	WriteHeader(streams []*Stream) error
	WritePacket(p *Packet) error
	Finalize() error
}

// Decoder turns Packets into Frames for one stream. Flush drains any
// buffered state, returning frames one at a time until it returns
// (nil, nil).
type Decoder interface {
	Decode(p *Packet) ([]*Frame, error)
	Flush() ([]*Frame, error)
}

// Encoder turns Frames into Packets for one stream.
type Encoder interface {
	Encode(f *Frame) ([]*Packet, error)
	Flush() ([]*Packet, error)
}

// Transform consumes a Frame and returns a Frame, preserving StreamIndex,
// PTS and Timebase unless it explicitly resamples.
type Transform interface {
	Apply(f *Frame) (*Frame, error)
}
