package rtmp

import (
	"crypto/rand"

	"github.com/aminofox/rtmplink/pkg/errors"
)

const (
	// HandshakeSize is the wire size of the C1/S1/C2/S2 packets
	HandshakeSize = 1536

	handshakePayloadSize = HandshakeSize - 8
)

// handshakePacket is one 1536-byte handshake packet: two u32 fields
// followed by 1528 bytes of payload. Peers must tolerate arbitrary
// payload content.
type handshakePacket struct {
	First   uint32
	Second  uint32
	Payload []byte
}

// newHandshakePacket builds a packet with zero header fields and a random
// payload.
func newHandshakePacket() (*handshakePacket, error) {
	payload := make([]byte, handshakePayloadSize)
	if _, err := rand.Read(payload); err != nil {
		return nil, errors.NewHandshakeError("cannot generate handshake payload", err)
	}
	return &handshakePacket{Payload: payload}, nil
}

func (p *handshakePacket) encode(s *Stream) error {
	if err := s.WriteUint32(p.First); err != nil {
		return err
	}
	if err := s.WriteUint32(p.Second); err != nil {
		return err
	}
	return s.Write(p.Payload)
}

func (p *handshakePacket) decode(s *Stream) error {
	var err error
	if p.First, err = s.ReadUint32(); err != nil {
		return err
	}
	if p.Second, err = s.ReadUint32(); err != nil {
		return err
	}
	p.Payload, err = s.Read(handshakePayloadSize)
	return err
}

// clientHandshake runs the client side of the handshake: C0+C1 out, S0+S1
// in, C2 echoing S1 out, S2 in. S0 and S2 content is ignored.
func clientHandshake(s *Stream) error {
	if err := s.WriteUint8(Version); err != nil {
		return errors.NewHandshakeError("cannot write C0", err)
	}

	c1, err := newHandshakePacket()
	if err != nil {
		return err
	}
	if err := c1.encode(s); err != nil {
		return errors.NewHandshakeError("cannot write C1", err)
	}
	if err := s.Flush(); err != nil {
		return errors.NewHandshakeError("cannot flush C0+C1", err)
	}

	if _, err := s.ReadUint8(); err != nil {
		return errors.NewHandshakeError("cannot read S0", err)
	}

	s1 := &handshakePacket{}
	if err := s1.decode(s); err != nil {
		return errors.NewHandshakeError("cannot read S1", err)
	}

	c2 := &handshakePacket{First: s1.First, Second: s1.Second, Payload: s1.Payload}
	if err := c2.encode(s); err != nil {
		return errors.NewHandshakeError("cannot write C2", err)
	}
	if err := s.Flush(); err != nil {
		return errors.NewHandshakeError("cannot flush C2", err)
	}

	s2 := &handshakePacket{}
	if err := s2.decode(s); err != nil {
		return errors.NewHandshakeError("cannot read S2", err)
	}

	return nil
}

// serverHandshakeAccept handles the first half of the server handshake:
// read C0 and C1, send S0, S1 and S2.
func serverHandshakeAccept(s *Stream) error {
	version, err := s.ReadUint8()
	if err != nil {
		return errors.NewHandshakeError("cannot read C0", err)
	}
	if version != Version {
		return errors.Newf(errors.ErrCodeUnsupportedVersion, "unsupported RTMP version: %d", version)
	}

	c1 := &handshakePacket{}
	if err := c1.decode(s); err != nil {
		return errors.NewHandshakeError("cannot read C1", err)
	}

	if err := s.WriteUint8(Version); err != nil {
		return errors.NewHandshakeError("cannot write S0", err)
	}

	s1, err := newHandshakePacket()
	if err != nil {
		return err
	}
	if err := s1.encode(s); err != nil {
		return errors.NewHandshakeError("cannot write S1", err)
	}

	s2, err := newHandshakePacket()
	if err != nil {
		return err
	}
	if err := s2.encode(s); err != nil {
		return errors.NewHandshakeError("cannot write S2", err)
	}

	return s.Flush()
}

// serverHandshakeComplete reads the final C2 packet. Its content is not
// validated.
func serverHandshakeComplete(s *Stream) error {
	c2 := &handshakePacket{}
	if err := c2.decode(s); err != nil {
		return errors.NewHandshakeError("cannot read C2", err)
	}
	return nil
}
