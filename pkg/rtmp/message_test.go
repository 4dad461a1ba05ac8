package rtmp

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aminofox/rtmplink/pkg/errors"
)

func TestControlMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"set chunk size", &SetChunkSize{ChunkSize: 4096}},
		{"user control", &UserControl{EventType: UserControlPingRequest, EventData: []byte{0, 0, 0, 5}}},
		{"window ack size", &WindowAckSize{WindowAckSize: 2500000}},
		{"set peer bandwidth", &SetPeerBandwidth{WindowAckSize: 2500000, LimitType: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := encodeMessageBody(tt.msg)
			require.NoError(t, err)

			decoded, err := decodeMessage(tt.msg.Datatype(), body)
			require.NoError(t, err)
			require.Equal(t, tt.msg, decoded)
		})
	}
}

func TestCommandRoundTrip(t *testing.T) {
	msg := &Command{Values: []interface{}{
		"connect",
		float64(1),
		map[string]interface{}{
			"app":   "live",
			"tcUrl": "rtmp://localhost/live",
			"fpad":  false,
		},
		nil,
	}}

	body, err := encodeMessageBody(msg)
	require.NoError(t, err)

	decoded, err := decodeMessage(DataTypeCommand, body)
	require.NoError(t, err)

	cmd, ok := decoded.(*Command)
	require.True(t, ok)
	require.Equal(t, "connect", cmd.Values[0])
	require.Equal(t, float64(1), cmd.Values[1])
	obj, ok := cmd.Values[2].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "live", obj["app"])
	require.Equal(t, false, obj["fpad"])
	require.Nil(t, cmd.Values[3])
}

func TestSharedObjectEventFraming(t *testing.T) {
	msg := &SharedObjectMessage{
		Name:    "room",
		Version: 7,
		Events: []SOEvent{
			&SOUse{},
			&SORelease{},
			&SOChange{Keys: []string{"a", "b"}, Changes: map[string]interface{}{"a": float64(1), "b": "two"}},
			&SOMessage{Values: []interface{}{"hello", float64(42)}},
			&SOClear{},
			&SODelete{Key: "a"},
			&SOUseSuccess{},
		},
	}

	body, err := encodeMessageBody(msg)
	require.NoError(t, err)

	decoded, err := decodeMessage(DataTypeSharedObject, body)
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}

func TestSharedObjectEventSizeMatchesPayload(t *testing.T) {
	buf := &bytes.Buffer{}
	event := &SOChange{Keys: []string{"key"}, Changes: map[string]interface{}{"key": "value"}}
	require.NoError(t, encodeSOEvent(buf, event))

	wire := buf.Bytes()
	require.Equal(t, SOEventChange, wire[0])
	declared := binary.BigEndian.Uint32(wire[1:5])
	require.Equal(t, int(declared), len(wire)-5)
}

func TestSharedObjectEventValidation(t *testing.T) {
	t.Run("zero payload enforced", func(t *testing.T) {
		buf := &bytes.Buffer{}
		buf.WriteByte(SOEventClear)
		binary.Write(buf, binary.BigEndian, uint32(2))
		buf.Write([]byte{1, 2})

		_, err := decodeSOEvent(bytes.NewReader(buf.Bytes()))
		require.Error(t, err)
		require.True(t, errors.IsErrorCode(err, errors.ErrCodeProtocolAssertion))
	})

	t.Run("duplicate change key rejected", func(t *testing.T) {
		inner := &bytes.Buffer{}
		for i := 0; i < 2; i++ {
			inner.Write([]byte{0, 1, 'x'})       // UTF-8 key "x"
			inner.Write([]byte{0x01, 0x01})      // boolean true
		}

		buf := &bytes.Buffer{}
		buf.WriteByte(SOEventChange)
		binary.Write(buf, binary.BigEndian, uint32(inner.Len()))
		buf.Write(inner.Bytes())

		_, err := decodeSOEvent(bytes.NewReader(buf.Bytes()))
		require.Error(t, err)
		require.True(t, errors.IsErrorCode(err, errors.ErrCodeProtocolAssertion))
	})

	t.Run("unknown event type fatal", func(t *testing.T) {
		buf := &bytes.Buffer{}
		buf.WriteByte(3)
		binary.Write(buf, binary.BigEndian, uint32(0))

		_, err := decodeSOEvent(bytes.NewReader(buf.Bytes()))
		require.Error(t, err)
		require.True(t, errors.IsErrorCode(err, errors.ErrCodeUnknownSOEventType))
	})
}

func TestUnknownDatatypeFatal(t *testing.T) {
	_, err := decodeMessage(9, []byte{1, 2, 3})
	require.Error(t, err)
	require.True(t, errors.IsErrorCode(err, errors.ErrCodeUnknownMessageType))
}

func TestSetChunkSizeBounds(t *testing.T) {
	for _, size := range []uint32{0, 65537} {
		body := make([]byte, 4)
		binary.BigEndian.PutUint32(body, size)

		_, err := decodeMessage(DataTypeSetChunkSize, body)
		require.Error(t, err)
		require.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidChunkSize))
	}
}
