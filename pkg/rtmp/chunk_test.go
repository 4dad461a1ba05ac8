package rtmp

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aminofox/rtmplink/pkg/errors"
)

func TestFragmentationTransparency(t *testing.T) {
	body := make([]byte, 5000)
	for i := range body {
		body[i] = byte(i)
	}

	for _, chunkSize := range []uint32{1, 128, 4096, 65536} {
		t.Run(fmt.Sprintf("chunk size %d", chunkSize), func(t *testing.T) {
			buf := &bytes.Buffer{}
			stream := NewStream(buf)

			writer := NewWriter(stream)
			require.NoError(t, writer.SetChunkSize(chunkSize))

			msg := &UserControl{EventType: UserControlStreamBegin, EventData: body}
			require.NoError(t, writer.WriteMessage(msg))
			require.NoError(t, writer.Flush())

			reader := NewReader(stream)
			require.NoError(t, reader.SetChunkSize(chunkSize))

			decoded, err := reader.ReadMessage()
			require.NoError(t, err)

			uc, ok := decoded.(*UserControl)
			require.True(t, ok, "expected user control, got %T", decoded)
			require.Equal(t, body, uc.EventData)
		})
	}
}

func TestBigMessageChunkLayout(t *testing.T) {
	// An AMF0 string of 397 bytes makes a 400 byte command body:
	// marker + u16 length + payload.
	payload := strings.Repeat("a", 397)

	buf := &bytes.Buffer{}
	stream := NewStream(buf)

	writer := NewWriter(stream)
	if err := writer.WriteMessage(&Command{Values: []interface{}{payload}}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := writer.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	wire := buf.Bytes()

	// 12 byte type 0 header, then 128 byte slices separated by one byte
	// type 3 headers, then the 16 byte tail.
	wantLen := 12 + 400 + 3
	if len(wire) != wantLen {
		t.Fatalf("expected %d wire bytes, got %d", wantLen, len(wire))
	}
	if wire[0] != 0x03 {
		t.Fatalf("expected full header on channel 3, got 0x%02X", wire[0])
	}
	for i, offset := range []int{12 + 128, 12 + 128 + 1 + 128, 12 + 128 + 1 + 128 + 1 + 128} {
		if wire[offset] != 0xC3 {
			t.Fatalf("continuation %d: expected 0xC3 at offset %d, got 0x%02X", i, offset, wire[offset])
		}
	}

	reader := NewReader(stream)
	decoded, err := reader.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	cmd, ok := decoded.(*Command)
	if !ok {
		t.Fatalf("expected command, got %T", decoded)
	}
	if len(cmd.Values) != 1 || cmd.Values[0] != payload {
		t.Fatalf("payload mismatch")
	}
}

func TestExtendedTimestampWorkaround(t *testing.T) {
	body := make([]byte, 300)
	for i := range body {
		body[i] = byte(i)
	}
	eventData := body[2:]

	header := &ChunkHeader{
		ChannelID:  3,
		Timestamp:  0x01000000,
		BodyLength: int32(len(body)),
		Datatype:   int32(DataTypeUserControl),
		StreamID:   0,
		Full:       true,
	}

	buf := &bytes.Buffer{}
	stream := NewStream(buf)

	// Hand-build the wire form a Flash Media Server produces: the
	// extended timestamp repeats after every continuation header.
	require.NoError(t, encodeHeader(stream, header, nil))
	require.NoError(t, stream.Write(body[:128]))
	require.NoError(t, encodeHeader(stream, header, header))
	require.NoError(t, stream.WriteUint32(uint32(header.Timestamp)))
	require.NoError(t, stream.Write(body[128:256]))
	require.NoError(t, encodeHeader(stream, header, header))
	require.NoError(t, stream.WriteUint32(uint32(header.Timestamp)))
	require.NoError(t, stream.Write(body[256:]))
	require.NoError(t, stream.Flush())

	reader := NewReader(stream)
	decoded, err := reader.ReadMessage()
	require.NoError(t, err)

	uc, ok := decoded.(*UserControl)
	require.True(t, ok, "expected user control, got %T", decoded)
	require.Equal(t, eventData, uc.EventData)
}

func TestContinuationMustBeTypeThree(t *testing.T) {
	header := &ChunkHeader{
		ChannelID:  3,
		Timestamp:  0,
		BodyLength: 200,
		Datatype:   int32(DataTypeUserControl),
		StreamID:   0,
		Full:       true,
	}

	buf := &bytes.Buffer{}
	stream := NewStream(buf)

	require.NoError(t, encodeHeader(stream, header, nil))
	require.NoError(t, stream.Write(make([]byte, 128)))
	// a second full header where a continuation belongs
	require.NoError(t, encodeHeader(stream, header, nil))
	require.NoError(t, stream.Write(make([]byte, 72)))
	require.NoError(t, stream.Flush())

	reader := NewReader(stream)
	_, err := reader.ReadMessage()
	require.Error(t, err)
	require.True(t, errors.IsErrorCode(err, errors.ErrCodeMalformedChunkHeader))
}

func TestReaderRejectsInvalidChunkSize(t *testing.T) {
	reader := NewReader(NewStream(&bytes.Buffer{}))

	for _, size := range []uint32{0, 65537} {
		if err := reader.SetChunkSize(size); err == nil {
			t.Fatalf("expected error for chunk size %d", size)
		}
	}
	if err := reader.SetChunkSize(65536); err != nil {
		t.Fatalf("65536 must be accepted: %v", err)
	}
}

func TestReaderEOFBeforeMessage(t *testing.T) {
	reader := NewReader(NewStream(&bytes.Buffer{}))

	_, err := reader.ReadMessage()
	require.ErrorIs(t, err, io.EOF)
}
