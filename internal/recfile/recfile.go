// Package recfile implements the length-prefixed on-disk format used for
// recording and replaying message streams.
//
// A file starts with a fixed header (magic + format version) followed by
// zero or more records. Each record carries the message kind, sequence
// number, capture timestamp and a length-prefixed payload:
//
//	kind    uint16
//	seq     int64
//	tsNanos int64
//	length  uint32
//	payload [length]byte
//
// All integers are little-endian.
package recfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	magic   = "FDRC"
	version = uint16(1)

	// MaxPayload bounds a single record so a corrupt length prefix cannot
	// trigger an unbounded allocation.
	MaxPayload = 64 << 20
)

var (
	ErrBadMagic      = errors.New("recfile: bad magic")
	ErrBadVersion    = errors.New("recfile: unsupported version")
	ErrRecordTooBig  = errors.New("recfile: record exceeds max payload")
	ErrTruncatedFile = errors.New("recfile: truncated record")
)

// Record is a single captured message.
type Record struct {
	Kind      uint16
	Seq       int64
	Timestamp int64 // unix nanoseconds
	Payload   []byte
}

// Writer appends records to an underlying stream. It writes the file header
// lazily on the first record.
type Writer struct {
	w      io.Writer
	header bool
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) writeHeader() error {
	if w.header {
		return nil
	}
	var hdr [6]byte
	copy(hdr[:4], magic)
	binary.LittleEndian.PutUint16(hdr[4:], version)
	if _, err := w.w.Write(hdr[:]); err != nil {
		return err
	}
	w.header = true
	return nil
}

func (w *Writer) WriteRecord(rec Record) error {
	if len(rec.Payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrRecordTooBig, len(rec.Payload))
	}
	if err := w.writeHeader(); err != nil {
		return err
	}
	var buf [22]byte
	binary.LittleEndian.PutUint16(buf[0:], rec.Kind)
	binary.LittleEndian.PutUint64(buf[2:], uint64(rec.Seq))
	binary.LittleEndian.PutUint64(buf[10:], uint64(rec.Timestamp))
	binary.LittleEndian.PutUint32(buf[18:], uint32(len(rec.Payload)))
	if _, err := w.w.Write(buf[:]); err != nil {
		return err
	}
	_, err := w.w.Write(rec.Payload)
	return err
}

// Reader decodes records from an underlying stream. The header is validated
// on the first read.
type Reader struct {
	r      io.Reader
	header bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) readHeader() error {
	if r.header {
		return nil
	}
	var hdr [6]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrBadMagic
		}
		return err
	}
	if string(hdr[:4]) != magic {
		return ErrBadMagic
	}
	if v := binary.LittleEndian.Uint16(hdr[4:]); v != version {
		return fmt.Errorf("%w: %d", ErrBadVersion, v)
	}
	r.header = true
	return nil
}

// ReadRecord returns the next record, or io.EOF at a clean end of file.
func (r *Reader) ReadRecord() (Record, error) {
	if err := r.readHeader(); err != nil {
		return Record{}, err
	}
	var buf [22]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, ErrTruncatedFile
		}
		return Record{}, err
	}
	rec := Record{
		Kind:      binary.LittleEndian.Uint16(buf[0:]),
		Seq:       int64(binary.LittleEndian.Uint64(buf[2:])),
		Timestamp: int64(binary.LittleEndian.Uint64(buf[10:])),
	}
	length := binary.LittleEndian.Uint32(buf[18:])
	if length > MaxPayload {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrRecordTooBig, length)
	}
	if length > 0 {
		rec.Payload = make([]byte, length)
		if _, err := io.ReadFull(r.r, rec.Payload); err != nil {
			return Record{}, ErrTruncatedFile
		}
	}
	return rec, nil
}
