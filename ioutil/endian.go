package ioutil

import "encoding/binary"

// Explicit little- and big-endian primitive helpers. Every integer read in
// this module goes through one of these — no implicit endianness.

func GetU16LE(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func GetU32LE(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func GetU64LE(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }
func GetU16BE(b []byte) uint16 { return binary.BigEndian.Uint16(b) }
func GetU32BE(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func GetU64BE(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func GetI16LE(b []byte) int16 { return int16(GetU16LE(b)) }
func GetI32LE(b []byte) int32 { return int32(GetU32LE(b)) }
func GetI64LE(b []byte) int64 { return int64(GetU64LE(b)) }
func GetI16BE(b []byte) int16 { return int16(GetU16BE(b)) }
func GetI32BE(b []byte) int32 { return int32(GetU32BE(b)) }
func GetI64BE(b []byte) int64 { return int64(GetU64BE(b)) }

func PutU16LE(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func PutU32LE(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func PutU64LE(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func PutU16BE(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func PutU32BE(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func PutU64BE(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

// AppendU16LE etc. append an encoded value to dst, returning the grown slice.
// These are the workhorses muxers use when assembling headers field by field.

func AppendU16LE(dst []byte, v uint16) []byte {
	var b [2]byte
	PutU16LE(b[:], v)
	return append(dst, b[:]...)
}

func AppendU32LE(dst []byte, v uint32) []byte {
	var b [4]byte
	PutU32LE(b[:], v)
	return append(dst, b[:]...)
}

func AppendU64LE(dst []byte, v uint64) []byte {
	var b [8]byte
	PutU64LE(b[:], v)
	return append(dst, b[:]...)
}

func AppendU16BE(dst []byte, v uint16) []byte {
	var b [2]byte
	PutU16BE(b[:], v)
	return append(dst, b[:]...)
}

func AppendU32BE(dst []byte, v uint32) []byte {
	var b [4]byte
	PutU32BE(b[:], v)
	return append(dst, b[:]...)
}

func AppendU64BE(dst []byte, v uint64) []byte {
	var b [8]byte
	PutU64BE(b[:], v)
	return append(dst, b[:]...)
}
