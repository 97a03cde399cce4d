package ebml

import (
	"math"

	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/ioutil"
)

// Known master-element IDs that trigger recursive parsing. Every other ID
// yields a raw binary blob whose type is inferred on demand.
const (
	IDEBMLHeader  = 0x1A45DFA3
	IDSegment     = 0x18538067
	IDSeekHead    = 0x114D9B74
	IDInfo        = 0x1549A966
	IDTracks      = 0x1654AE6B
	IDCluster     = 0x1F43B675
	IDCues        = 0x1C53BB6B
	IDAttachments = 0x1941A469
	IDChapters    = 0x1043A770
	IDTags        = 0x1254C367
)

var masterIDs = map[uint64]bool{
	IDEBMLHeader:  true,
	IDSegment:     true,
	IDSeekHead:    true,
	IDInfo:        true,
	IDTracks:      true,
	IDCluster:     true,
	IDCues:        true,
	IDAttachments: true,
	IDChapters:    true,
	IDTags:        true,
}

// IsMasterID reports whether id is one of the known master-element IDs
// that should be parsed recursively rather than treated as an opaque blob.
func IsMasterID(id uint64) bool { return masterIDs[id] }

// Header is a decoded EBML element header: the element ID (preserving its
// VINT length mark as the opaque element ID), the element size, and
// whether the size was the "unknown size" sentinel.
type Header struct {
	ID          uint64
	IDLength    int
	Size        uint64
	UnknownSize bool
	HeaderLen   int // total bytes consumed by ID + size vints
}

// ParseHeader decodes one element header from the start of buf.
func ParseHeader(buf []byte) (Header, error) {
	idv, err := DecodeVINT(buf)
	if err != nil {
		return Header{}, err
	}
	rest := buf[idv.Length:]
	sizev, err := DecodeVINT(rest)
	if err != nil {
		return Header{}, err
	}
	return Header{
		ID:          idv.Value | (1 << uint(7*idv.Length)), // preserve length mark, see Note below
		IDLength:    idv.Length,
		Size:        sizev.Value,
		UnknownSize: sizev.IsUnknownSize(),
		HeaderLen:   idv.Length + sizev.Length,
	}, nil
}

// Note: EBML element IDs are conventionally compared including their
// length-marker bit (e.g. Segment is 0x18538067, not 0x08538067) so two IDs
// of different VINT length never collide. DecodeVINT strips the marker bits
// to get the raw value; ParseHeader restores a single marker bit at the top
// of the value's bit-length so IDs like 0x1A45DFA3 round-trip exactly for a
// 4-byte ID. For longer IDs this reconstructs the canonical form used by
// the IDxxx constants above.

// ValueKind classifies how to interpret a non-master element's body.
type ValueKind int

const (
	KindBinary ValueKind = iota
	KindInteger
	KindUinteger
	KindFloat
	KindString
	KindUTF8
	KindDate
)

// InferKind guesses a non-master element's value type from a small table of
// well-known Matroska IDs; anything unrecognised is treated as Binary.
func InferKind(id uint64) ValueKind {
	switch id {
	case 0x4286, 0x42F7, 0x42F2, 0x42F3, 0x4287, 0x42F1, 0xE7, 0x9B, 0xFB, 0x75A2:
		return KindUinteger
	case 0x4282:
		return KindString
	case 0x536E, 0x22B59C:
		return KindUTF8
	default:
		return KindBinary
	}
}

// ParseInteger reads a big-endian signed integer of up to 8 bytes.
func ParseInteger(data []byte) (int64, error) {
	if len(data) > 8 {
		return 0, ioutil.New(ioutil.InvalidData, errors.Errorf("ebml: signed integer size %d exceeds maximum 8", len(data)))
	}
	if len(data) == 0 {
		return 0, nil
	}
	var value int64
	if data[0]&0x80 != 0 {
		value = -1
	}
	for _, b := range data {
		value = (value << 8) | int64(b)
	}
	return value, nil
}

// ParseUinteger reads a big-endian unsigned integer of up to 8 bytes.
func ParseUinteger(data []byte) (uint64, error) {
	if len(data) > 8 {
		return 0, ioutil.New(ioutil.InvalidData, errors.Errorf("ebml: unsigned integer size %d exceeds maximum 8", len(data)))
	}
	var value uint64
	for _, b := range data {
		value = (value << 8) | uint64(b)
	}
	return value, nil
}

// ParseFloat reads a big-endian IEEE-754 float stored as 0, 4 or 8 bytes.
func ParseFloat(data []byte) (float64, error) {
	switch len(data) {
	case 0:
		return 0, nil
	case 4:
		bits := ioutil.GetU32BE(data)
		return float64(math.Float32frombits(bits)), nil
	case 8:
		bits := ioutil.GetU64BE(data)
		return math.Float64frombits(bits), nil
	default:
		return 0, ioutil.New(ioutil.InvalidData, errors.Errorf("ebml: float must be 0, 4 or 8 bytes, got %d", len(data)))
	}
}

// ParseASCII validates and returns data as a printable-ASCII string.
func ParseASCII(data []byte) (string, error) {
	for _, b := range data {
		if b < 0x20 || b > 0x7E {
			return "", ioutil.New(ioutil.InvalidData, errors.Errorf("ebml: invalid ASCII character 0x%02X", b))
		}
	}
	return string(data), nil
}
