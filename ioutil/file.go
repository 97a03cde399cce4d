package ioutil

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
)

// File adapts *os.File to the Reader/Writer/Seeker contracts, mapping OS
// errors into the canonical taxonomy and always naming the offending path.
type File struct {
	f    *os.File
	path string
	w    *bufio.Writer
}

// OpenRead opens path for reading.
func OpenRead(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, FromOSError(path, err)
	}
	return &File{f: f, path: path}, nil
}

// CreateWrite creates (or truncates) path for writing, buffered.
func CreateWrite(path string) (*File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, FromOSError(path, err)
	}
	return &File{f: f, path: path, w: bufio.NewWriterSize(f, 64*1024)}, nil
}

func (fl *File) Read(p []byte) (int, error) {
	n, err := fl.f.Read(p)
	if err != nil && err != io.EOF {
		return n, FromOSError(fl.path, err)
	}
	return n, err
}

func (fl *File) Write(p []byte) (int, error) {
	if fl.w == nil {
		return 0, errors.Errorf("%s: not opened for writing", fl.path)
	}
	n, err := fl.w.Write(p)
	if err != nil {
		return n, FromOSError(fl.path, err)
	}
	return n, nil
}

func (fl *File) Flush() error {
	if fl.w == nil {
		return nil
	}
	if err := fl.w.Flush(); err != nil {
		return FromOSError(fl.path, err)
	}
	return nil
}

func (fl *File) Seek(offset int64, whence Whence) (int64, error) {
	var w int
	switch whence {
	case Start:
		w = io.SeekStart
	case Current:
		w = io.SeekCurrent
	case End:
		w = io.SeekEnd
	}
	n, err := fl.f.Seek(offset, w)
	if err != nil {
		return n, FromOSError(fl.path, err)
	}
	return n, nil
}

func (fl *File) Position() (int64, error) { return fl.Seek(0, Current) }

// Close flushes (if writing) and closes the underlying file.
func (fl *File) Close() error {
	var ferr error
	if fl.w != nil {
		ferr = fl.Flush()
	}
	if err := fl.f.Close(); err != nil && ferr == nil {
		ferr = FromOSError(fl.path, err)
	}
	return ferr
}

// Path returns the path this File was opened with.
func (fl *File) Path() string { return fl.path }
