/*
NAME
  time.go

DESCRIPTION
  time.go defines the rational Timebase used to scale PTS/DTS values into
  seconds and to translate between streams with different timebases.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package core defines the data model shared by every demuxer, muxer,
// decoder, encoder and transform: Timebase, Packet, Frame and Stream.
package core

import "fmt"

// Timebase is a rational num/den pair; both must be positive. A PTS is a
// 64-bit count of Timebase units.
type Timebase struct {
	Num uint32
	Den uint32
}

// NewTimebase constructs a Timebase, panicking if num or den is zero: every
// caller constructs these from constants or validated container fields, so
// a zero here is a programming error, not user input.
func NewTimebase(num, den uint32) Timebase {
	if num == 0 || den == 0 {
		panic(fmt.Sprintf("core: invalid timebase %d/%d", num, den))
	}
	return Timebase{Num: num, Den: den}
}

// ToSeconds scales pts (in this Timebase's units) to seconds.
func (t Timebase) ToSeconds(pts int64) float64 {
	return float64(pts) * float64(t.Num) / float64(t.Den)
}

// FromSeconds converts seconds to a PTS in this Timebase's units.
func (t Timebase) FromSeconds(seconds float64) int64 {
	return int64((seconds * float64(t.Den)) / float64(t.Num))
}

// ScalePTS rescales pts from this Timebase into target, using a 128-bit
// intermediate (via big.Int-free 128-bit multiply helpers) to avoid
// overflow on long streams with large PTS values.
func (t Timebase) ScalePTS(pts int64, target Timebase) int64 {
	// pts * t.Num * target.Den / (t.Den * target.Num), with the
	// multiplication done in 128 bits before the division.
	num := mul64to128(pts, int64(t.Num))
	num = mul128by64(num, int64(target.Den))
	den := mul64to128(int64(t.Den), int64(target.Num))
	return div128by128(num, den)
}

// Equal reports whether two timebases are the same ratio (not necessarily
// the same num/den representation).
func (t Timebase) Equal(o Timebase) bool {
	return int64(t.Num)*int64(o.Den) == int64(o.Num)*int64(t.Den)
}

func (t Timebase) String() string { return fmt.Sprintf("%d/%d", t.Num, t.Den) }
