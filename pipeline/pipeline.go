/*
NAME
  pipeline.go

DESCRIPTION
  pipeline.go implements the orchestrator: startup checks against the
  compatibility table, an open phase that seeds the muxer from either the
  requested options or the source format, a steady-state packet loop with
  a passthrough fast path for untouched streams, and flush/finalize
  semantics run exactly once.

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pipeline wires a demuxer, per-stream decode/transform/encode
// transcoders, and a muxer into a single-threaded, cooperative run loop:
// no background goroutines, no channels, no cancellation beyond what an
// interrupted blocking read/write gives for free.
package pipeline

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/coastalsound/transcode/compat"
	"github.com/coastalsound/transcode/core"
	"github.com/coastalsound/transcode/ioutil"
	"github.com/coastalsound/transcode/transform"
)

// Options carries the CLI's --audio/--video/--subtitle/--apply option
// groups through to the pipeline untouched; each KEY=VAL group maps
// one-to-one onto these fields.
type Options struct {
	Audio    map[string]string
	Video    map[string]string
	Subtitle map[string]string
	Apply    []string // transform spec strings ("gain=2.0"), parsed with transform.Parse
}

func (o Options) codecFor(kind core.StreamKind) (string, bool) {
	var m map[string]string
	switch kind {
	case core.Audio:
		m = o.Audio
	case core.Video:
		m = o.Video
	case core.Subtitle:
		m = o.Subtitle
	}
	codec, ok := m["codec"]
	return codec, ok
}

// streamState names a stream's position in the pipeline's state machine:
// Init → Running → Flushing → Terminated. The pipeline loop drives this
// implicitly (a stream is Init until its first packet, Running while the
// demuxer still emits its packets, Flushing once the demuxer reaches EOS
// and its transcoder is draining, Terminated once drained); this type
// names those states.
type streamState int

const (
	stateInit streamState = iota
	stateRunning
	stateFlushing
	stateTerminated
)

// transcoder owns one stream's decode → transform → encode chain. A nil
// transcoder for a given stream index means that stream is remuxed
// verbatim (the passthrough fast path).
type transcoder struct {
	decoder core.Decoder
	chain   *transform.Chain
	encoder core.Encoder
	state   streamState
}

func (t *transcoder) transcode(p *core.Packet) ([]*core.Packet, error) {
	frames, err := t.decoder.Decode(p)
	if err != nil {
		return nil, err
	}
	return t.encodeFrames(frames)
}

func (t *transcoder) encodeFrames(frames []*core.Frame) ([]*core.Packet, error) {
	var out []*core.Packet
	for _, f := range frames {
		if t.chain != nil {
			var err error
			f, err = t.chain.Apply(f)
			if err != nil {
				return nil, err
			}
		}
		packets, err := t.encoder.Encode(f)
		if err != nil {
			return nil, err
		}
		out = append(out, packets...)
	}
	return out, nil
}

func (t *transcoder) flush() ([]*core.Packet, error) {
	frames, err := t.decoder.Flush()
	if err != nil {
		return nil, err
	}
	fromDecode, err := t.encodeFrames(frames)
	if err != nil {
		return nil, err
	}
	fromEncoder, err := t.encoder.Flush()
	if err != nil {
		return nil, err
	}
	return append(fromDecode, fromEncoder...), nil
}

// Run transcodes inputPath to outputPath per opts. It opens both files
// exactly once, guarantees they are closed on every exit path, and calls
// the muxer's Finalize exactly once after every stream has drained.
func Run(inputPath, outputPath string, opts Options) error {
	inContainer, err := ContainerFromExt(inputPath)
	if err != nil {
		return err
	}
	outContainer, err := ContainerFromExt(outputPath)
	if err != nil {
		return err
	}
	if err := compat.AssertContainerSupported(inContainer); err != nil {
		return err
	}
	if err := compat.AssertContainerSupported(outContainer); err != nil {
		return err
	}

	in, err := ioutil.OpenRead(inputPath)
	if err != nil {
		return err
	}
	defer in.Close()

	demuxer, err := OpenDemuxer(inContainer, in)
	if err != nil {
		return err
	}
	streams := demuxer.Streams()

	targetCodec := make([]string, len(streams))
	carryAcross := inContainer == outContainer
	for i, s := range streams {
		codec, requested := opts.codecFor(s.Kind)
		if !requested {
			targetCodec[i] = s.Codec
			continue
		}
		targetCodec[i] = codec
		if codec != s.Codec {
			carryAcross = false
		}
	}
	for i, s := range streams {
		if err := assertSupported(outContainer, s.Kind, targetCodec[i]); err != nil {
			return err
		}
	}

	out, err := ioutil.CreateWrite(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	muxer, err := newMuxer(outContainer, out)
	if err != nil {
		return err
	}
	if carryAcross {
		seedFormat(muxer, demuxer)
	}

	outStreams := make([]*core.Stream, len(streams))
	for i, s := range streams {
		cp := *s
		cp.Codec = targetCodec[i]
		if cp.Codec != s.Codec {
			// Block framing belongs to the source codec; a re-encoded
			// stream starts without one so its codec's default applies.
			cp.BlockAlign = 0
		}
		outStreams[i] = &cp
	}
	if err := muxer.WriteHeader(outStreams); err != nil {
		return err
	}

	transcoders := make(map[uint32]*transcoder, len(streams))
	for i, s := range streams {
		if targetCodec[i] == s.Codec && len(opts.Apply) == 0 {
			log.Info().Str("container", inContainer).Int("stream", i).Str("codec", s.Codec).Msg("remuxing stream verbatim")
			continue
		}
		tc, err := newTranscoder(s, outStreams[i], opts.Apply)
		if err != nil {
			return err
		}
		transcoders[uint32(i)] = tc
		log.Info().Str("container", inContainer).Int("stream", i).Str("src_codec", s.Codec).Str("dst_codec", targetCodec[i]).Msg("opened transcoder")
	}

	lastDTS := make(map[uint32]int64, len(streams))
	for {
		p, err := demuxer.ReadPacket()
		if err != nil {
			return err
		}
		if p == nil {
			break
		}
		if prev, ok := lastDTS[p.StreamIndex]; ok && p.DTS < prev {
			return ioutil.New(ioutil.InvalidData, errors.Errorf("pipeline: stream %d DTS went backwards (%d after %d)", p.StreamIndex, p.DTS, prev))
		}
		lastDTS[p.StreamIndex] = p.DTS

		tc, ok := transcoders[p.StreamIndex]
		if !ok {
			if err := muxer.WritePacket(p); err != nil {
				return err
			}
			continue
		}
		tc.state = stateRunning
		packets, err := tc.transcode(p)
		if err != nil {
			return err
		}
		for _, out := range packets {
			if err := muxer.WritePacket(out); err != nil {
				return err
			}
		}
	}

	for idx, tc := range transcoders {
		tc.state = stateFlushing
		packets, err := tc.flush()
		if err != nil {
			return err
		}
		for _, out := range packets {
			if err := muxer.WritePacket(out); err != nil {
				return err
			}
		}
		tc.state = stateTerminated
		log.Debug().Int("stream", int(idx)).Msg("flushed transcoder")
	}

	return muxer.Finalize()
}

func newTranscoder(src, dst *core.Stream, applySpecs []string) (*transcoder, error) {
	if !canBridge(src.Codec, dst.Codec) {
		return nil, ioutil.New(ioutil.InvalidData, errors.Errorf("pipeline: cannot transcode %q to %q", src.Codec, dst.Codec))
	}
	decoder, err := newDecoder(src)
	if err != nil {
		return nil, err
	}
	encoder, err := newEncoder(dst.Codec, dst, uint32(dst.Index), dst.Timebase)
	if err != nil {
		return nil, err
	}
	var chain *transform.Chain
	if len(applySpecs) > 0 {
		chain, err = transform.ParseChain(applySpecs)
		if err != nil {
			return nil, err
		}
	}
	return &transcoder{decoder: decoder, chain: chain, encoder: encoder}, nil
}

func assertSupported(container string, kind core.StreamKind, codec string) error {
	switch kind {
	case core.Audio:
		return compat.AssertAudioSupported(container, codec)
	case core.Video:
		return compat.AssertVideoSupported(container, codec)
	case core.Subtitle:
		return compat.AssertSubtitleSupported(container, codec)
	default:
		return ioutil.New(ioutil.InvalidData, errors.Errorf("pipeline: unknown stream kind %v", kind))
	}
}
