/*
NAME
  ioutil.go

DESCRIPTION
  ioutil.go defines the byte-oriented read/write/seek abstractions and the
  canonical error taxonomy that every container and codec in this module
  builds on.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package ioutil provides the reader/writer/seeker contracts and the
// canonical error kinds shared across demuxers, muxers, decoders and
// encoders.
package ioutil

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Kind classifies a failure into the taxonomy surfaced to the CLI. It never
// replaces the underlying error: Kind is attached to a wrapped cause so
// callers can branch on the kind without string-matching messages.
type Kind int

const (
	Other Kind = iota
	NotFound
	PermissionDenied
	AlreadyExists
	InvalidData
	UnexpectedEOF
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case PermissionDenied:
		return "permission denied"
	case AlreadyExists:
		return "already exists"
	case InvalidData:
		return "invalid data"
	case UnexpectedEOF:
		return "unexpected eof"
	default:
		return "error"
	}
}

// KindError pairs a Kind with an underlying cause and, for InvalidData
// errors, an optional byte offset.
type KindError struct {
	Kind   Kind
	Offset int64
	HasOff bool
	Cause  error
}

func (e *KindError) Error() string {
	if e.HasOff {
		return fmt.Sprintf("%s (offset %d): %v", e.Kind, e.Offset, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *KindError) Unwrap() error { return e.Cause }

// New wraps cause with the given Kind.
func New(kind Kind, cause error) error {
	return &KindError{Kind: kind, Cause: cause}
}

// Newf builds a Kind error from a format string.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &KindError{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

// NewAt wraps cause with the given Kind and a byte offset, for errors whose
// location in the source stream is known.
func NewAt(kind Kind, offset int64, cause error) error {
	return &KindError{Kind: kind, Offset: offset, HasOff: true, Cause: cause}
}

// KindOf extracts the Kind from err, returning Other if err does not carry
// one.
func KindOf(err error) Kind {
	var ke *KindError
	for err != nil {
		if k, ok := err.(*KindError); ok {
			return k.Kind
		}
		err = errors.Unwrap(err)
	}
	_ = ke
	return Other
}

// FromOSError maps an OS-level error (as returned by os.Open, os.Create,
// etc.) into the canonical taxonomy, always including path in the message.
func FromOSError(path string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		return NewAt(UnexpectedEOF, 0, errors.Wrapf(err, "%s", path))
	case isNotExist(err):
		return New(NotFound, errors.Wrapf(err, "%s", path))
	case isPermission(err):
		return New(PermissionDenied, errors.Wrapf(err, "%s", path))
	case isExist(err):
		return New(AlreadyExists, errors.Wrapf(err, "%s", path))
	default:
		return New(Other, errors.Wrapf(err, "%s", path))
	}
}

// Reader is the minimal byte-read contract. Reading 0 bytes with a
// non-empty buffer and a nil error is never valid; implementations return
// io.EOF instead.
type Reader interface {
	Read(p []byte) (n int, err error)
}

// Writer is the minimal byte-write contract.
type Writer interface {
	Write(p []byte) (n int, err error)
	Flush() error
}

// Whence mirrors io.Seeker's origin constants under our own name so callers
// never need to import "io" just to seek.
type Whence int

const (
	Start Whence = iota
	Current
	End
)

// Seeker is the minimal seek contract.
type Seeker interface {
	Seek(offset int64, whence Whence) (int64, error)
	Position() (int64, error)
}

// ReadSeeker is satisfied by every demuxer's source.
type ReadSeeker interface {
	Reader
	Seeker
}

// ReadExact fills buf entirely or returns UnexpectedEOF.
func ReadExact(r Reader, buf []byte) error {
	n, err := io.ReadFull(asIOReader(r), buf)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return NewAt(UnexpectedEOF, int64(n), errors.Errorf("short read: got %d of %d bytes", n, len(buf)))
		}
		return New(Other, err)
	}
	return nil
}

func asIOReader(r Reader) io.Reader {
	if ior, ok := r.(io.Reader); ok {
		return ior
	}
	return funcReader{r}
}

type funcReader struct{ r Reader }

func (f funcReader) Read(p []byte) (int, error) { return f.r.Read(p) }
