package rtmp

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"github.com/aminofox/rtmplink/pkg/amf0"
	"github.com/aminofox/rtmplink/pkg/errors"
)

// Message is a complete RTMP message, reassembled from one or more chunks.
type Message interface {
	// Datatype returns the message datatype ID carried in the chunk header
	Datatype() uint8
}

// SetChunkSize renegotiates the sender's outbound chunk size
type SetChunkSize struct {
	ChunkSize uint32
}

// Datatype implements Message
func (m *SetChunkSize) Datatype() uint8 { return DataTypeSetChunkSize }

// UserControl carries a user control event and its opaque payload
type UserControl struct {
	EventType uint16
	EventData []byte
}

// Datatype implements Message
func (m *UserControl) Datatype() uint8 { return DataTypeUserControl }

// WindowAckSize announces the sender's acknowledgement window
type WindowAckSize struct {
	WindowAckSize uint32
}

// Datatype implements Message
func (m *WindowAckSize) Datatype() uint8 { return DataTypeWindowAckSize }

// SetPeerBandwidth limits the peer's output bandwidth
type SetPeerBandwidth struct {
	WindowAckSize uint32
	LimitType     uint8
}

// Datatype implements Message
func (m *SetPeerBandwidth) Datatype() uint8 { return DataTypeSetPeerBandwidth }

// Command is an ordered sequence of AMF0 values, e.g. a NetConnection call
type Command struct {
	Values []interface{}
}

// Datatype implements Message
func (m *Command) Datatype() uint8 { return DataTypeCommand }

// SharedObjectMessage carries a batch of events for one named shared object
type SharedObjectMessage struct {
	Name    string
	Version uint32
	Flags   [8]byte
	Events  []SOEvent
}

// Datatype implements Message
func (m *SharedObjectMessage) Datatype() uint8 { return DataTypeSharedObject }

// SOEvent is one shared object event inside a SharedObjectMessage.
type SOEvent interface {
	// EventType returns the wire event type ID
	EventType() uint8
}

// SOUse subscribes the sender to the object
type SOUse struct{}

// EventType implements SOEvent
func (e *SOUse) EventType() uint8 { return SOEventUse }

// SORelease unsubscribes the sender from the object
type SORelease struct{}

// EventType implements SOEvent
func (e *SORelease) EventType() uint8 { return SOEventRelease }

// SOChange updates one or more object attributes. Keys preserves the wire
// order of the attributes; Changes maps them to their values.
type SOChange struct {
	Keys    []string
	Changes map[string]interface{}
}

// EventType implements SOEvent
func (e *SOChange) EventType() uint8 { return SOEventChange }

// SOMessage broadcasts an ordered sequence of AMF0 values
type SOMessage struct {
	Values []interface{}
}

// EventType implements SOEvent
func (e *SOMessage) EventType() uint8 { return SOEventMessage }

// SOClear resets the object's data
type SOClear struct{}

// EventType implements SOEvent
func (e *SOClear) EventType() uint8 { return SOEventClear }

// SODelete removes one attribute
type SODelete struct {
	Key string
}

// EventType implements SOEvent
func (e *SODelete) EventType() uint8 { return SOEventDelete }

// SOUseSuccess acknowledges a use event
type SOUseSuccess struct{}

// EventType implements SOEvent
func (e *SOUseSuccess) EventType() uint8 { return SOEventUseSuccess }

// decodeMessage decodes a reassembled message body according to the
// datatype from its chunk header.
func decodeMessage(datatype uint8, body []byte) (Message, error) {
	r := bytes.NewReader(body)

	switch datatype {
	case DataTypeSetChunkSize:
		var size uint32
		if err := binary.Read(r, binary.BigEndian, &size); err != nil {
			return nil, errors.NewIOError("truncated set chunk size body", err)
		}
		if size < 1 || size > MaxChunkSize {
			return nil, errors.NewInvalidChunkSizeError(size)
		}
		return &SetChunkSize{ChunkSize: size}, nil

	case DataTypeUserControl:
		var eventType uint16
		if err := binary.Read(r, binary.BigEndian, &eventType); err != nil {
			return nil, errors.NewIOError("truncated user control body", err)
		}
		data := make([]byte, r.Len())
		if _, err := r.Read(data); err != nil && len(data) > 0 {
			return nil, errors.NewIOError("truncated user control body", err)
		}
		return &UserControl{EventType: eventType, EventData: data}, nil

	case DataTypeWindowAckSize:
		var window uint32
		if err := binary.Read(r, binary.BigEndian, &window); err != nil {
			return nil, errors.NewIOError("truncated window ack size body", err)
		}
		return &WindowAckSize{WindowAckSize: window}, nil

	case DataTypeSetPeerBandwidth:
		var window uint32
		if err := binary.Read(r, binary.BigEndian, &window); err != nil {
			return nil, errors.NewIOError("truncated set peer bandwidth body", err)
		}
		limitType, err := r.ReadByte()
		if err != nil {
			return nil, errors.NewIOError("truncated set peer bandwidth body", err)
		}
		return &SetPeerBandwidth{WindowAckSize: window, LimitType: limitType}, nil

	case DataTypeSharedObject:
		return decodeSharedObjectBody(r)

	case DataTypeCommand:
		decoder := amf0.NewDecoder(r)
		var values []interface{}
		for r.Len() > 0 {
			v, err := decoder.Decode()
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeMalformedMessage, "bad AMF0 value in command body", err)
			}
			values = append(values, v)
		}
		return &Command{Values: values}, nil

	default:
		return nil, errors.NewUnknownMessageTypeError(datatype)
	}
}

// decodeSharedObjectBody reads the object name, version, flags and the
// event list that runs to the end of the body.
func decodeSharedObjectBody(r *bytes.Reader) (*SharedObjectMessage, error) {
	decoder := amf0.NewDecoder(r)

	name, err := decoder.ReadUTF8()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedMessage, "bad shared object name", err)
	}

	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, errors.NewIOError("truncated shared object body", err)
	}

	msg := &SharedObjectMessage{Name: name, Version: version}
	if _, err := io.ReadFull(r, msg.Flags[:]); err != nil {
		return nil, errors.NewIOError("truncated shared object flags", err)
	}

	for r.Len() > 0 {
		event, err := decodeSOEvent(r)
		if err != nil {
			return nil, err
		}
		msg.Events = append(msg.Events, event)
	}

	return msg, nil
}

// decodeSOEvent reads one event: u8 type, u32 payload size, then exactly
// payload size bytes of payload.
func decodeSOEvent(r *bytes.Reader) (SOEvent, error) {
	eventType, err := r.ReadByte()
	if err != nil {
		return nil, errors.NewIOError("truncated shared object event", err)
	}

	var payloadSize uint32
	if err := binary.Read(r, binary.BigEndian, &payloadSize); err != nil {
		return nil, errors.NewIOError("truncated shared object event", err)
	}
	if int(payloadSize) > r.Len() {
		return nil, errors.NewProtocolAssertionError("shared object event payload exceeds body")
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.NewIOError("truncated shared object event payload", err)
	}

	switch eventType {
	case SOEventUse:
		if err := requireEmptyPayload(payload); err != nil {
			return nil, err
		}
		return &SOUse{}, nil

	case SOEventRelease:
		if err := requireEmptyPayload(payload); err != nil {
			return nil, err
		}
		return &SORelease{}, nil

	case SOEventChange:
		return decodeSOChange(payload)

	case SOEventMessage:
		pr := bytes.NewReader(payload)
		decoder := amf0.NewDecoder(pr)
		var values []interface{}
		for pr.Len() > 0 {
			v, err := decoder.Decode()
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeMalformedMessage, "bad AMF0 value in message event", err)
			}
			values = append(values, v)
		}
		return &SOMessage{Values: values}, nil

	case SOEventClear:
		if err := requireEmptyPayload(payload); err != nil {
			return nil, err
		}
		return &SOClear{}, nil

	case SOEventDelete:
		pr := bytes.NewReader(payload)
		key, err := amf0.NewDecoder(pr).ReadUTF8()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeMalformedMessage, "bad delete event key", err)
		}
		if pr.Len() != 0 {
			return nil, errors.NewProtocolAssertionError("delete event payload size mismatch")
		}
		return &SODelete{Key: key}, nil

	case SOEventUseSuccess:
		if err := requireEmptyPayload(payload); err != nil {
			return nil, err
		}
		return &SOUseSuccess{}, nil

	default:
		return nil, errors.NewUnknownSOEventTypeError(eventType)
	}
}

// decodeSOChange parses (key, value) pairs until the payload is exhausted.
// The declared payload size must be consumed exactly and keys must be
// unique within the event.
func decodeSOChange(payload []byte) (*SOChange, error) {
	pr := bytes.NewReader(payload)
	decoder := amf0.NewDecoder(pr)

	event := &SOChange{Changes: make(map[string]interface{})}
	for pr.Len() > 0 {
		key, err := decoder.ReadUTF8()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeMalformedMessage, "bad change event key", err)
		}
		if _, dup := event.Changes[key]; dup {
			return nil, errors.NewProtocolAssertionError("duplicate key in change event: " + key)
		}
		value, err := decoder.Decode()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeMalformedMessage, "bad change event value", err)
		}
		event.Keys = append(event.Keys, key)
		event.Changes[key] = value
	}

	return event, nil
}

func requireEmptyPayload(payload []byte) error {
	if len(payload) != 0 {
		return errors.NewProtocolAssertionError("shared object event carries unexpected payload")
	}
	return nil
}

// encodeMessageBody serializes a message into its body bytes.
func encodeMessageBody(msg Message) ([]byte, error) {
	buf := &bytes.Buffer{}

	switch m := msg.(type) {
	case *SetChunkSize:
		if m.ChunkSize < 1 || m.ChunkSize > MaxChunkSize {
			return nil, errors.NewInvalidChunkSizeError(m.ChunkSize)
		}
		binary.Write(buf, binary.BigEndian, m.ChunkSize)

	case *UserControl:
		binary.Write(buf, binary.BigEndian, m.EventType)
		buf.Write(m.EventData)

	case *WindowAckSize:
		binary.Write(buf, binary.BigEndian, m.WindowAckSize)

	case *SetPeerBandwidth:
		binary.Write(buf, binary.BigEndian, m.WindowAckSize)
		buf.WriteByte(m.LimitType)

	case *Command:
		encoder := amf0.NewEncoder(buf)
		for _, v := range m.Values {
			if err := encoder.Encode(v); err != nil {
				return nil, errors.Wrap(errors.ErrCodeMalformedMessage, "cannot encode command value", err)
			}
		}

	case *SharedObjectMessage:
		encoder := amf0.NewEncoder(buf)
		if err := encoder.WriteUTF8(m.Name); err != nil {
			return nil, errors.NewIOError("cannot encode shared object name", err)
		}
		binary.Write(buf, binary.BigEndian, m.Version)
		buf.Write(m.Flags[:])
		for _, event := range m.Events {
			if err := encodeSOEvent(buf, event); err != nil {
				return nil, err
			}
		}

	default:
		return nil, errors.Newf(errors.ErrCodeUnknownMessageType, "cannot encode message type %T", msg)
	}

	return buf.Bytes(), nil
}

// encodeSOEvent writes one event with its payload framed by the declared
// payload size. The size written always equals the payload bytes produced.
func encodeSOEvent(buf *bytes.Buffer, event SOEvent) error {
	inner := &bytes.Buffer{}
	encoder := amf0.NewEncoder(inner)

	switch e := event.(type) {
	case *SOUse, *SORelease, *SOClear, *SOUseSuccess:
		// zero-length payload

	case *SOChange:
		for _, key := range changeKeys(e) {
			if err := encoder.WriteUTF8(key); err != nil {
				return errors.NewIOError("cannot encode change key", err)
			}
			if err := encoder.Encode(e.Changes[key]); err != nil {
				return errors.Wrap(errors.ErrCodeMalformedMessage, "cannot encode change value", err)
			}
		}

	case *SOMessage:
		for _, v := range e.Values {
			if err := encoder.Encode(v); err != nil {
				return errors.Wrap(errors.ErrCodeMalformedMessage, "cannot encode message event value", err)
			}
		}

	case *SODelete:
		if err := encoder.WriteUTF8(e.Key); err != nil {
			return errors.NewIOError("cannot encode delete key", err)
		}

	default:
		return errors.Newf(errors.ErrCodeUnknownSOEventType, "cannot encode shared object event %T", event)
	}

	buf.WriteByte(event.EventType())
	binary.Write(buf, binary.BigEndian, uint32(inner.Len()))
	buf.Write(inner.Bytes())
	return nil
}

// changeKeys returns the attribute keys in wire order, falling back to
// sorted map order when the event was built without an explicit order.
func changeKeys(e *SOChange) []string {
	if len(e.Keys) == len(e.Changes) {
		return e.Keys
	}
	keys := make([]string, 0, len(e.Changes))
	for k := range e.Changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
