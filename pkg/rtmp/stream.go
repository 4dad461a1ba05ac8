package rtmp

import (
	"bufio"
	"encoding/binary"
	"io"
)

// Stream is a buffered duplex view of an underlying connection with
// endian-aware primitive readers and writers. All multi-byte integers on
// the wire are big-endian except the chunk header stream ID, which has a
// dedicated little-endian pair.
type Stream struct {
	r *bufio.Reader
	w *bufio.Writer
}

// NewStream creates a buffered stream over rw
func NewStream(rw io.ReadWriter) *Stream {
	return &Stream{
		r: bufio.NewReader(rw),
		w: bufio.NewWriter(rw),
	}
}

// Read reads exactly n bytes
func (s *Stream) Read(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Write writes p in full
func (s *Stream) Write(p []byte) error {
	_, err := s.w.Write(p)
	return err
}

// Flush flushes buffered writes to the underlying connection
func (s *Stream) Flush() error {
	return s.w.Flush()
}

// AtEOF reports whether the stream is exhausted. It blocks until at least
// one byte is available or the peer closes the connection.
func (s *Stream) AtEOF() bool {
	_, err := s.r.Peek(1)
	return err == io.EOF
}

// ReadUint8 reads one byte
func (s *Stream) ReadUint8() (uint8, error) {
	return s.r.ReadByte()
}

// ReadUint16 reads a big-endian u16
func (s *Stream) ReadUint16() (uint16, error) {
	buf, err := s.Read(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

// ReadUint24 reads a big-endian u24
func (s *Stream) ReadUint24() (uint32, error) {
	buf, err := s.Read(3)
	if err != nil {
		return 0, err
	}
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2]), nil
}

// ReadUint32 reads a big-endian u32
func (s *Stream) ReadUint32() (uint32, error) {
	buf, err := s.Read(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

// ReadUint32LE reads a little-endian u32
func (s *Stream) ReadUint32LE() (uint32, error) {
	buf, err := s.Read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// WriteUint8 writes one byte
func (s *Stream) WriteUint8(v uint8) error {
	return s.w.WriteByte(v)
}

// WriteUint16 writes a big-endian u16
func (s *Stream) WriteUint16(v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return s.Write(buf[:])
}

// WriteUint24 writes a big-endian u24
func (s *Stream) WriteUint24(v uint32) error {
	return s.Write([]byte{byte(v >> 16), byte(v >> 8), byte(v)})
}

// WriteUint32 writes a big-endian u32
func (s *Stream) WriteUint32(v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return s.Write(buf[:])
}

// WriteUint32LE writes a little-endian u32
func (s *Stream) WriteUint32LE(v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return s.Write(buf[:])
}
