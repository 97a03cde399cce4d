/*
NAME
  vint.go

DESCRIPTION
  vint.go implements EBML variable-length integer decoding: element IDs
  preserve their length marker, element sizes resolve the "unknown size"
  sentinel.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package ebml provides EBML variable-length-integer decoding, element
// header parsing and typed element value inference, as used by the
// Matroska demuxer.
package ebml

import (
	"github.com/pkg/errors"

	"github.com/coastalsound/transcode/ioutil"
)

// VINT is a decoded variable-length integer together with its encoded
// byte length, needed to tell an element ID's value from its "unknown
// size" sentinel for that same length.
type VINT struct {
	Value  uint64
	Length int
}

// vintLength returns 1 + the leading-zero count of the head byte, capped at
// 8; a head byte of 0x00 (8 leading zeros) means length 0, which is
// invalid.
func vintLength(head byte) int {
	switch {
	case head&0x80 != 0:
		return 1
	case head&0x40 != 0:
		return 2
	case head&0x20 != 0:
		return 3
	case head&0x10 != 0:
		return 4
	case head&0x08 != 0:
		return 5
	case head&0x04 != 0:
		return 6
	case head&0x02 != 0:
		return 7
	case head&0x01 != 0:
		return 8
	default:
		return 0
	}
}

// DecodeVINT reads one VINT starting at buf[0], returning the value, its
// encoded length, and the error for length-0 head bytes or a truncated
// tail.
func DecodeVINT(buf []byte) (VINT, error) {
	if len(buf) == 0 {
		return VINT{}, ioutil.New(ioutil.UnexpectedEOF, errors.New("ebml: empty buffer for vint"))
	}
	length := vintLength(buf[0])
	if length == 0 {
		return VINT{}, ioutil.New(ioutil.InvalidData, errors.New("ebml: vint length marker byte 0x00 is invalid"))
	}
	if len(buf) < length {
		return VINT{}, ioutil.New(ioutil.UnexpectedEOF, errors.New("ebml: truncated vint"))
	}
	mask := byte(0xFF >> uint(length))
	value := uint64(buf[0] & mask)
	for i := 1; i < length; i++ {
		value = (value << 8) | uint64(buf[i])
	}
	return VINT{Value: value, Length: length}, nil
}

// IsUnknownSize reports whether v's VINT_DATA bits are all ones, EBML's
// "unknown size" sentinel.
func (v VINT) IsUnknownSize() bool {
	bits := uint(7 * v.Length)
	mask := uint64(1)<<bits - 1
	return v.Value == mask
}
