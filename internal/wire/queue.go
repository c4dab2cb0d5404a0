package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// MaxStringLength is the longest string, in bytes, a queue will write.
	MaxStringLength = math.MaxUint16
	// MaxBlobLength is the longest byte blob a queue will write or accept.
	MaxBlobLength = 512
)

var (
	// ErrShortBuffer reports a read past the end of the queued bytes.
	ErrShortBuffer = errors.New("wire: short buffer")
	// ErrBlobTooLarge reports a blob whose declared length exceeds MaxBlobLength.
	ErrBlobTooLarge = errors.New("wire: blob too large")
)

var le = binary.LittleEndian

// Queue is an ordered byte buffer. Writes append at the tail and reads consume
// from the head. All multi-byte values are little-endian.
type Queue struct {
	buf []byte
	off int
}

// NewQueue wraps b for reading. The queue does not copy b.
func NewQueue(b []byte) *Queue {
	return &Queue{buf: b}
}

// Len reports the number of unread bytes.
func (q *Queue) Len() int {
	return len(q.buf) - q.off
}

// Empty reports whether every queued byte has been read.
func (q *Queue) Empty() bool {
	return q.Len() == 0
}

// Bytes returns the unread bytes without consuming them.
func (q *Queue) Bytes() []byte {
	return q.buf[q.off:]
}

// Reset empties the queue while keeping its storage.
func (q *Queue) Reset() {
	q.buf = q.buf[:0]
	q.off = 0
}

// Write appends raw bytes.
func (q *Queue) Write(p []byte) {
	q.buf = append(q.buf, p...)
}

// Peek returns the next byte without consuming it.
func (q *Queue) Peek() (byte, error) {
	if q.Len() < 1 {
		return 0, ErrShortBuffer
	}
	return q.buf[q.off], nil
}

// Skip discards n unread bytes.
func (q *Queue) Skip(n int) error {
	if n < 0 || q.Len() < n {
		return ErrShortBuffer
	}
	q.off += n
	return nil
}

func (q *Queue) next(n int) ([]byte, error) {
	if q.Len() < n {
		return nil, ErrShortBuffer
	}
	b := q.buf[q.off : q.off+n]
	q.off += n
	return b, nil
}

func (q *Queue) WriteUint8(v uint8) { q.buf = append(q.buf, v) }

func (q *Queue) ReadUint8() (uint8, error) {
	b, err := q.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (q *Queue) WriteInt8(v int8) { q.WriteUint8(uint8(v)) }

func (q *Queue) ReadInt8() (int8, error) {
	v, err := q.ReadUint8()
	return int8(v), err
}

func (q *Queue) WriteBool(v bool) {
	if v {
		q.WriteUint8(1)
		return
	}
	q.WriteUint8(0)
}

// ReadBool treats any non-zero byte as true.
func (q *Queue) ReadBool() (bool, error) {
	v, err := q.ReadUint8()
	return v != 0, err
}

func (q *Queue) WriteUint16(v uint16) { q.buf = le.AppendUint16(q.buf, v) }

func (q *Queue) ReadUint16() (uint16, error) {
	b, err := q.next(2)
	if err != nil {
		return 0, err
	}
	return le.Uint16(b), nil
}

func (q *Queue) WriteInt16(v int16) { q.WriteUint16(uint16(v)) }

func (q *Queue) ReadInt16() (int16, error) {
	v, err := q.ReadUint16()
	return int16(v), err
}

func (q *Queue) WriteUint32(v uint32) { q.buf = le.AppendUint32(q.buf, v) }

func (q *Queue) ReadUint32() (uint32, error) {
	b, err := q.next(4)
	if err != nil {
		return 0, err
	}
	return le.Uint32(b), nil
}

func (q *Queue) WriteInt32(v int32) { q.WriteUint32(uint32(v)) }

func (q *Queue) ReadInt32() (int32, error) {
	v, err := q.ReadUint32()
	return int32(v), err
}

func (q *Queue) WriteUint64(v uint64) { q.buf = le.AppendUint64(q.buf, v) }

func (q *Queue) ReadUint64() (uint64, error) {
	b, err := q.next(8)
	if err != nil {
		return 0, err
	}
	return le.Uint64(b), nil
}

func (q *Queue) WriteInt64(v int64) { q.WriteUint64(uint64(v)) }

func (q *Queue) ReadInt64() (int64, error) {
	v, err := q.ReadUint64()
	return int64(v), err
}

func (q *Queue) WriteFloat32(v float32) { q.WriteUint32(math.Float32bits(v)) }

func (q *Queue) ReadFloat32() (float32, error) {
	v, err := q.ReadUint32()
	return math.Float32frombits(v), err
}

func (q *Queue) WriteFloat64(v float64) { q.WriteUint64(math.Float64bits(v)) }

func (q *Queue) ReadFloat64() (float64, error) {
	v, err := q.ReadUint64()
	return math.Float64frombits(v), err
}

// WriteString writes a 16-bit length prefix followed by the string bytes.
// Strings longer than MaxStringLength are truncated.
func (q *Queue) WriteString(s string) {
	if len(s) > MaxStringLength {
		s = s[:MaxStringLength]
	}
	q.WriteUint16(uint16(len(s)))
	q.buf = append(q.buf, s...)
}

func (q *Queue) ReadString() (string, error) {
	n, err := q.ReadUint16()
	if err != nil {
		return "", err
	}
	b, err := q.next(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteBlob writes a 32-bit length prefix followed by at most MaxBlobLength
// bytes of p.
func (q *Queue) WriteBlob(p []byte) {
	if len(p) > MaxBlobLength {
		p = p[:MaxBlobLength]
	}
	q.WriteUint32(uint32(len(p)))
	q.buf = append(q.buf, p...)
}

// ReadBlob returns a copy of the next blob. A declared length above
// MaxBlobLength is rejected and leaves the queue untouched, length included.
func (q *Queue) ReadBlob() ([]byte, error) {
	if q.Len() < 4 {
		return nil, ErrShortBuffer
	}
	n := le.Uint32(q.buf[q.off:])
	if n > MaxBlobLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrBlobTooLarge, n)
	}
	if q.Len()-4 < int(n) {
		return nil, ErrShortBuffer
	}
	q.off += 4
	b, err := q.next(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// WriteFrame writes p behind a 32-bit length so a reader can skip it whole.
func (q *Queue) WriteFrame(p []byte) {
	q.WriteUint32(uint32(len(p)))
	q.buf = append(q.buf, p...)
}

// ReserveUint16 appends a zero count and returns its position for PatchUint16.
func (q *Queue) ReserveUint16() int {
	mark := len(q.buf)
	q.WriteUint16(0)
	return mark
}

// PatchUint16 overwrites the count reserved at mark.
func (q *Queue) PatchUint16(mark int, v uint16) {
	le.PutUint16(q.buf[mark:], v)
}

// BeginFrame reserves a length prefix and returns its offset for EndFrame.
// It lets callers encode a frame in place without an intermediate buffer.
func (q *Queue) BeginFrame() int {
	mark := len(q.buf)
	q.WriteUint32(0)
	return mark
}

// EndFrame back-fills the length prefix reserved by BeginFrame.
func (q *Queue) EndFrame(mark int) {
	le.PutUint32(q.buf[mark:], uint32(len(q.buf)-mark-4))
}

// ReadFrame consumes a frame and returns a queue over its bytes. The returned
// queue shares storage with q.
func (q *Queue) ReadFrame() (*Queue, error) {
	n, err := q.ReadUint32()
	if err != nil {
		return nil, err
	}
	if int64(n) > int64(q.Len()) {
		return nil, ErrShortBuffer
	}
	b, _ := q.next(int(n))
	return NewQueue(b), nil
}
