// Package amf0 implements the AMF0 binary serialization used by RTMP
// command and shared object messages.
package amf0

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
)

// AMF0 data type markers
const (
	TypeNumber      byte = 0x00
	TypeBoolean     byte = 0x01
	TypeString      byte = 0x02
	TypeObject      byte = 0x03
	TypeNull        byte = 0x05
	TypeUndefined   byte = 0x06
	TypeECMAArray   byte = 0x08
	TypeObjectEnd   byte = 0x09
	TypeStrictArray byte = 0x0A
	TypeDate        byte = 0x0B
	TypeLongString  byte = 0x0C
)

// Encoder encodes values in AMF0 format
type Encoder struct {
	w io.Writer
}

// NewEncoder creates a new AMF0 encoder
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// EncodeNumber encodes a number (float64)
func (e *Encoder) EncodeNumber(n float64) error {
	if err := e.writeByte(TypeNumber); err != nil {
		return err
	}
	return binary.Write(e.w, binary.BigEndian, math.Float64bits(n))
}

// EncodeBoolean encodes a boolean
func (e *Encoder) EncodeBoolean(b bool) error {
	if err := e.writeByte(TypeBoolean); err != nil {
		return err
	}
	if b {
		return e.writeByte(0x01)
	}
	return e.writeByte(0x00)
}

// EncodeString encodes a string
func (e *Encoder) EncodeString(s string) error {
	if len(s) > 65535 {
		return e.EncodeLongString(s)
	}

	if err := e.writeByte(TypeString); err != nil {
		return err
	}
	return e.WriteUTF8(s)
}

// EncodeLongString encodes a long string (>65535 bytes)
func (e *Encoder) EncodeLongString(s string) error {
	if err := e.writeByte(TypeLongString); err != nil {
		return err
	}
	if err := binary.Write(e.w, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := e.w.Write([]byte(s))
	return err
}

// EncodeNull encodes null
func (e *Encoder) EncodeNull() error {
	return e.writeByte(TypeNull)
}

// EncodeObject encodes an object (map). Properties are written in sorted key
// order so the wire encoding is deterministic.
func (e *Encoder) EncodeObject(obj map[string]interface{}) error {
	if err := e.writeByte(TypeObject); err != nil {
		return err
	}

	for _, key := range sortedKeys(obj) {
		if err := e.WriteUTF8(key); err != nil {
			return err
		}
		if err := e.Encode(obj[key]); err != nil {
			return err
		}
	}

	return e.writeObjectEnd()
}

// EncodeECMAArray encodes an ECMA array
func (e *Encoder) EncodeECMAArray(arr map[string]interface{}) error {
	if err := e.writeByte(TypeECMAArray); err != nil {
		return err
	}

	if err := binary.Write(e.w, binary.BigEndian, uint32(len(arr))); err != nil {
		return err
	}

	for _, key := range sortedKeys(arr) {
		if err := e.WriteUTF8(key); err != nil {
			return err
		}
		if err := e.Encode(arr[key]); err != nil {
			return err
		}
	}

	return e.writeObjectEnd()
}

// WriteUTF8 writes a raw UTF-8 string (u16 length + bytes) without a type
// marker. Shared object bodies use this form for object names and change keys.
func (e *Encoder) WriteUTF8(s string) error {
	if err := binary.Write(e.w, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := e.w.Write([]byte(s))
	return err
}

// Encode encodes any value
func (e *Encoder) Encode(v interface{}) error {
	if v == nil {
		return e.EncodeNull()
	}

	switch val := v.(type) {
	case float64:
		return e.EncodeNumber(val)
	case int:
		return e.EncodeNumber(float64(val))
	case int32:
		return e.EncodeNumber(float64(val))
	case int64:
		return e.EncodeNumber(float64(val))
	case uint32:
		return e.EncodeNumber(float64(val))
	case bool:
		return e.EncodeBoolean(val)
	case string:
		return e.EncodeString(val)
	case map[string]interface{}:
		return e.EncodeObject(val)
	default:
		return fmt.Errorf("unsupported AMF0 type: %T", v)
	}
}

func (e *Encoder) writeObjectEnd() error {
	if err := binary.Write(e.w, binary.BigEndian, uint16(0)); err != nil {
		return err
	}
	return e.writeByte(TypeObjectEnd)
}

func (e *Encoder) writeByte(b byte) error {
	_, err := e.w.Write([]byte{b})
	return err
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Decoder decodes AMF0 data
type Decoder struct {
	r io.Reader
}

// NewDecoder creates a new AMF0 decoder
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode decodes the next AMF0 value
func (d *Decoder) Decode() (interface{}, error) {
	typeMarker, err := d.readByte()
	if err != nil {
		return nil, err
	}

	switch typeMarker {
	case TypeNumber:
		return d.DecodeNumber()
	case TypeBoolean:
		return d.DecodeBoolean()
	case TypeString:
		return d.ReadUTF8()
	case TypeObject:
		return d.DecodeObject()
	case TypeNull, TypeUndefined:
		return nil, nil
	case TypeECMAArray:
		return d.DecodeECMAArray()
	case TypeLongString:
		return d.DecodeLongString()
	default:
		return nil, fmt.Errorf("unsupported AMF0 type marker: 0x%02x", typeMarker)
	}
}

// DecodeNumber decodes a number
func (d *Decoder) DecodeNumber() (float64, error) {
	var bits uint64
	if err := binary.Read(d.r, binary.BigEndian, &bits); err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// DecodeBoolean decodes a boolean
func (d *Decoder) DecodeBoolean() (bool, error) {
	b, err := d.readByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// DecodeString decodes a string, expecting its type marker
func (d *Decoder) DecodeString() (string, error) {
	typeMarker, err := d.readByte()
	if err != nil {
		return "", err
	}
	if typeMarker != TypeString {
		return "", fmt.Errorf("expected string marker, got 0x%02x", typeMarker)
	}
	return d.ReadUTF8()
}

// ReadUTF8 reads a raw UTF-8 string (u16 length + bytes) without a type marker
func (d *Decoder) ReadUTF8() (string, error) {
	var length uint16
	if err := binary.Read(d.r, binary.BigEndian, &length); err != nil {
		return "", err
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", err
	}

	return string(buf), nil
}

// DecodeLongString decodes a long string
func (d *Decoder) DecodeLongString() (string, error) {
	var length uint32
	if err := binary.Read(d.r, binary.BigEndian, &length); err != nil {
		return "", err
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", err
	}

	return string(buf), nil
}

// DecodeObject decodes an object
func (d *Decoder) DecodeObject() (map[string]interface{}, error) {
	obj := make(map[string]interface{})

	for {
		var nameLen uint16
		if err := binary.Read(d.r, binary.BigEndian, &nameLen); err != nil {
			return nil, err
		}

		// A zero-length property name precedes the object end marker
		if nameLen == 0 {
			marker, err := d.readByte()
			if err != nil {
				return nil, err
			}
			if marker == TypeObjectEnd {
				break
			}
			return nil, fmt.Errorf("expected object end marker, got 0x%02x", marker)
		}

		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(d.r, nameBuf); err != nil {
			return nil, err
		}

		value, err := d.Decode()
		if err != nil {
			return nil, err
		}

		obj[string(nameBuf)] = value
	}

	return obj, nil
}

// DecodeECMAArray decodes an ECMA array
func (d *Decoder) DecodeECMAArray() (map[string]interface{}, error) {
	// The associative count is advisory; the object end marker is authoritative
	var length uint32
	if err := binary.Read(d.r, binary.BigEndian, &length); err != nil {
		return nil, err
	}

	return d.DecodeObject()
}

func (d *Decoder) readByte() (byte, error) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}
