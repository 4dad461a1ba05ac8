package rtmp

import (
	"github.com/aminofox/rtmplink/pkg/errors"
)

// extendedTimestampSentinel in the 24-bit timestamp field means a 32-bit
// extended timestamp follows the header.
const extendedTimestampSentinel = 0xFFFFFF

// ChunkHeader holds the contextual information of an RTMP channel. Fields
// not carried by a compressed header are -1 until inherited from the last
// complete header on the same channel.
type ChunkHeader struct {
	// ChannelID is the chunk channel ID (2..65599)
	ChannelID int

	// Timestamp is the message timestamp (24-bit, or 32-bit extended)
	Timestamp int64

	// BodyLength is the message body length in bytes
	BodyLength int32

	// Datatype is the message datatype ID
	Datatype int32

	// StreamID is the message stream ID (little-endian on the wire)
	StreamID int64

	// Full records that a type 0 header has been seen on this channel
	Full bool
}

// NewChunkHeader creates a header for the given channel with all other
// fields unknown.
func NewChunkHeader(channelID int) *ChunkHeader {
	return &ChunkHeader{
		ChannelID:  channelID,
		Timestamp:  -1,
		BodyLength: -1,
		Datatype:   -1,
		StreamID:   -1,
	}
}

// isContinuation reports whether the header carries no fields of its own
// (a decoded type 3 header).
func (h *ChunkHeader) isContinuation() bool {
	return h.Timestamp == -1 && h.BodyLength == -1 && h.Datatype == -1 && h.StreamID == -1
}

// merge fills fields still unknown in h from the last complete header on
// the same channel.
func (h *ChunkHeader) merge(last *ChunkHeader) {
	if h.Timestamp == -1 {
		h.Timestamp = last.Timestamp
	}
	if h.BodyLength == -1 {
		h.BodyLength = last.BodyLength
	}
	if h.Datatype == -1 {
		h.Datatype = last.Datatype
	}
	if h.StreamID == -1 {
		h.StreamID = last.StreamID
		h.Full = h.Full || last.Full
	}
}

// decodeHeader reads one chunk header from the current stream position.
func decodeHeader(s *Stream) (*ChunkHeader, error) {
	first, err := s.ReadUint8()
	if err != nil {
		return nil, err
	}

	format := first >> 6
	channelID := int(first & 0x3F)

	switch channelID {
	case 0:
		b, err := s.ReadUint8()
		if err != nil {
			return nil, err
		}
		channelID = int(b) + 64
	case 1:
		// low byte first
		lo, err := s.ReadUint8()
		if err != nil {
			return nil, err
		}
		hi, err := s.ReadUint8()
		if err != nil {
			return nil, err
		}
		channelID = int(lo) + 64 + int(hi)<<8
	}

	header := NewChunkHeader(channelID)

	if format == 3 {
		return header, nil
	}

	ts, err := s.ReadUint24()
	if err != nil {
		return nil, err
	}
	header.Timestamp = int64(ts)

	if format <= 1 {
		bodyLen, err := s.ReadUint24()
		if err != nil {
			return nil, err
		}
		datatype, err := s.ReadUint8()
		if err != nil {
			return nil, err
		}
		header.BodyLength = int32(bodyLen)
		header.Datatype = int32(datatype)
	}

	if format == 0 {
		streamID, err := s.ReadUint32LE()
		if err != nil {
			return nil, err
		}
		header.StreamID = int64(streamID)
		header.Full = true
	}

	if header.Timestamp == extendedTimestampSentinel {
		ext, err := s.ReadUint32()
		if err != nil {
			return nil, err
		}
		header.Timestamp = int64(ext)
	}

	return header, nil
}

// encodeHeader writes header to the stream, compressed against previous.
// Passing the same *ChunkHeader as both header and previous emits the
// one-byte type 3 continuation form.
func encodeHeader(s *Stream, header, previous *ChunkHeader) error {
	size, err := headerSize(header, previous)
	if err != nil {
		return err
	}

	channelID := header.ChannelID
	switch {
	case channelID < 64:
		if err := s.WriteUint8(size | byte(channelID)); err != nil {
			return err
		}
	case channelID < 320:
		if err := s.WriteUint8(size); err != nil {
			return err
		}
		if err := s.WriteUint8(byte(channelID - 64)); err != nil {
			return err
		}
	default:
		channelID -= 64
		if err := s.WriteUint8(size + 1); err != nil {
			return err
		}
		if err := s.WriteUint8(byte(channelID & 0xFF)); err != nil {
			return err
		}
		if err := s.WriteUint8(byte(channelID >> 8)); err != nil {
			return err
		}
	}

	if size == headerSizeEmpty {
		return nil
	}

	if size <= headerSizeTimestamp {
		if header.Timestamp >= extendedTimestampSentinel {
			if err := s.WriteUint24(extendedTimestampSentinel); err != nil {
				return err
			}
		} else {
			if err := s.WriteUint24(uint32(header.Timestamp)); err != nil {
				return err
			}
		}
	}

	if size <= headerSizeMedium {
		if err := s.WriteUint24(uint32(header.BodyLength)); err != nil {
			return err
		}
		if err := s.WriteUint8(uint8(header.Datatype)); err != nil {
			return err
		}
	}

	if size == headerSizeFull {
		if err := s.WriteUint32LE(uint32(header.StreamID)); err != nil {
			return err
		}
	}

	if size <= headerSizeTimestamp && header.Timestamp >= extendedTimestampSentinel {
		if err := s.WriteUint32(uint32(header.Timestamp)); err != nil {
			return err
		}
	}

	return nil
}

// headerSize returns the format base byte for encoding header against
// previous, based on which fields differ.
func headerSize(header, previous *ChunkHeader) (byte, error) {
	if previous == nil {
		return headerSizeFull, nil
	}

	if previous == header {
		return headerSizeEmpty, nil
	}

	if previous.ChannelID != header.ChannelID {
		return 0, errors.Newf(errors.ErrCodeChannelMismatch,
			"channel mismatch on header diff: %d != %d", previous.ChannelID, header.ChannelID)
	}

	if previous.StreamID != header.StreamID {
		return headerSizeFull, nil
	}

	if previous.Datatype == header.Datatype && previous.BodyLength == header.BodyLength {
		if previous.Timestamp == header.Timestamp {
			return headerSizeEmpty, nil
		}
		return headerSizeTimestamp, nil
	}

	return headerSizeMedium, nil
}
