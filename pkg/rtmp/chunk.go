package rtmp

import (
	"io"

	"github.com/aminofox/rtmplink/pkg/errors"
)

// Reader reassembles complete RTMP messages from the chunk stream.
type Reader struct {
	stream      *Stream
	chunkSize   uint32
	lastHeaders map[int]*ChunkHeader
}

// NewReader creates a reader with the default inbound chunk size
func NewReader(stream *Stream) *Reader {
	return &Reader{
		stream:      stream,
		chunkSize:   DefaultChunkSize,
		lastHeaders: make(map[int]*ChunkHeader),
	}
}

// ChunkSize returns the current inbound chunk size
func (r *Reader) ChunkSize() uint32 {
	return r.chunkSize
}

// SetChunkSize updates the inbound chunk size after a set chunk size
// message from the peer.
func (r *Reader) SetChunkSize(size uint32) error {
	if size < 1 || size > MaxChunkSize {
		return errors.NewInvalidChunkSizeError(size)
	}
	r.chunkSize = size
	return nil
}

// ReadMessage reads the next complete message from the stream. It returns
// io.EOF when the stream ends cleanly before a new message starts.
func (r *Reader) ReadMessage() (Message, error) {
	if r.stream.AtEOF() {
		return nil, io.EOF
	}

	header, err := decodeHeader(r.stream)
	if err != nil {
		return nil, errors.NewIOError("cannot read chunk header", err)
	}

	if last, ok := r.lastHeaders[header.ChannelID]; ok {
		header.merge(last)
	}
	if header.BodyLength < 0 || header.Datatype < 0 || header.Timestamp < 0 || header.StreamID < 0 {
		return nil, errors.NewMalformedChunkHeaderError("compressed header on a channel with no previous full header")
	}
	r.lastHeaders[header.ChannelID] = header

	body := make([]byte, 0, header.BodyLength)
	for {
		remaining := uint32(header.BodyLength) - uint32(len(body))
		if remaining > r.chunkSize {
			remaining = r.chunkSize
		}
		chunk, err := r.stream.Read(int(remaining))
		if err != nil {
			return nil, errors.NewIOError("cannot read chunk body", err)
		}
		body = append(body, chunk...)

		if int32(len(body)) >= header.BodyLength {
			break
		}

		next, err := decodeHeader(r.stream)
		if err != nil {
			return nil, errors.NewIOError("cannot read continuation header", err)
		}
		// Flash Media Server and Flash Player repeat the extended
		// timestamp after every type 3 continuation header, even though
		// the specification says it must not be there.
		if header.Timestamp >= extendedTimestampSentinel {
			if _, err := r.stream.ReadUint32(); err != nil {
				return nil, errors.NewIOError("cannot read continuation timestamp", err)
			}
		}
		if !next.isContinuation() {
			return nil, errors.NewMalformedChunkHeaderError("message continuation is not a type 3 header")
		}
		if next.ChannelID != header.ChannelID {
			return nil, errors.NewMalformedChunkHeaderError("message continuation on a different channel")
		}
	}

	if int32(len(body)) != header.BodyLength {
		return nil, errors.Newf(errors.ErrCodeUnexpectedBodyLength,
			"reassembled %d bytes, header declared %d", len(body), header.BodyLength)
	}

	return decodeMessage(uint8(header.Datatype), body)
}

// Writer fragments outbound messages into the chunk stream.
type Writer struct {
	stream    *Stream
	chunkSize uint32
}

// NewWriter creates a writer with the default outbound chunk size
func NewWriter(stream *Stream) *Writer {
	return &Writer{
		stream:    stream,
		chunkSize: DefaultChunkSize,
	}
}

// SetChunkSize updates the outbound chunk size
func (w *Writer) SetChunkSize(size uint32) error {
	if size < 1 || size > MaxChunkSize {
		return errors.NewInvalidChunkSizeError(size)
	}
	w.chunkSize = size
	return nil
}

// WriteMessage encodes and writes one message. Protocol control datatypes
// go out on channel 2, everything else on channel 3, always with a full
// type 0 header followed by type 3 continuations.
func (w *Writer) WriteMessage(msg Message) error {
	body, err := encodeMessageBody(msg)
	if err != nil {
		return err
	}

	datatype := msg.Datatype()
	channelID := ChannelCommand
	if datatype >= 1 && datatype <= 7 {
		channelID = ChannelProtocolControl
	}

	header := &ChunkHeader{
		ChannelID:  channelID,
		Timestamp:  0,
		BodyLength: int32(len(body)),
		Datatype:   int32(datatype),
		StreamID:   0,
		Full:       true,
	}

	if err := encodeHeader(w.stream, header, nil); err != nil {
		return errors.NewIOError("cannot write chunk header", err)
	}

	for offset := 0; offset < len(body); offset += int(w.chunkSize) {
		end := offset + int(w.chunkSize)
		if end > len(body) {
			end = len(body)
		}
		if err := w.stream.Write(body[offset:end]); err != nil {
			return errors.NewIOError("cannot write chunk body", err)
		}
		if end < len(body) {
			// identical header and previous emit the type 3 form
			if err := encodeHeader(w.stream, header, header); err != nil {
				return errors.NewIOError("cannot write continuation header", err)
			}
		}
	}

	return nil
}

// Flush flushes the underlying stream
func (w *Writer) Flush() error {
	return w.stream.Flush()
}
