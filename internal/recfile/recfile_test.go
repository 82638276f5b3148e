package recfile

import (
	"bytes"
	"io"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	records := []Record{
		{Kind: 1, Seq: 0, Timestamp: 100, Payload: []byte("frame-0")},
		{Kind: 1, Seq: 1, Timestamp: 200, Payload: []byte("frame-1")},
		{Kind: 3, Seq: 2, Timestamp: 300}, // empty payload
	}
	for _, rec := range records {
		assert.NoError(t, w.WriteRecord(rec))
	}

	r := NewReader(&buf)
	for _, want := range records {
		got, err := r.ReadRecord()
		assert.NoError(t, err)
		assert.Equal(t, want.Kind, got.Kind)
		assert.Equal(t, want.Seq, got.Seq)
		assert.Equal(t, want.Timestamp, got.Timestamp)
		assert.Equal(t, want.Payload, got.Payload)
	}
	_, err := r.ReadRecord()
	assert.IsError(t, err, io.EOF)
}

func TestBadMagic(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte("NOPE\x01\x00")))
	_, err := r.ReadRecord()
	assert.IsError(t, err, ErrBadMagic)
}

func TestUnsupportedVersion(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte("FDRC\xff\x00")))
	_, err := r.ReadRecord()
	assert.IsError(t, err, ErrBadVersion)
}

func TestTruncatedRecord(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	assert.NoError(t, w.WriteRecord(Record{Kind: 1, Seq: 0, Payload: []byte("abcdef")}))

	// Cut the payload short.
	data := buf.Bytes()[:buf.Len()-3]
	r := NewReader(bytes.NewReader(data))
	_, err := r.ReadRecord()
	assert.IsError(t, err, ErrTruncatedFile)
}

func TestCorruptLengthRejected(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	assert.NoError(t, w.WriteRecord(Record{Kind: 1, Seq: 0, Payload: []byte("x")}))

	// Overwrite the length prefix with an absurd value.
	data := buf.Bytes()
	off := 6 + 18 // header + kind/seq/timestamp
	data[off] = 0xff
	data[off+1] = 0xff
	data[off+2] = 0xff
	data[off+3] = 0xff

	r := NewReader(bytes.NewReader(data))
	_, err := r.ReadRecord()
	assert.IsError(t, err, ErrRecordTooBig)
}

func TestWriterRefusesOversizedRecord(t *testing.T) {
	w := NewWriter(io.Discard)
	err := w.WriteRecord(Record{Payload: make([]byte, MaxPayload+1)})
	assert.IsError(t, err, ErrRecordTooBig)
}

func TestEmptyPayloadStaysNil(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	assert.NoError(t, w.WriteRecord(Record{Kind: 2, Seq: 5}))

	r := NewReader(&buf)
	got, err := r.ReadRecord()
	assert.NoError(t, err)
	assert.Zero(t, got.Payload)
}
