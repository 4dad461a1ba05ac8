package rtmp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientHandshakeSequence(t *testing.T) {
	clientEnd, peerEnd := newDuplexPair()
	defer clientEnd.Close()
	defer peerEnd.Close()

	type peerResult struct {
		c0  uint8
		c1  []byte
		c2  []byte
		s1  []byte
		err error
	}

	done := make(chan peerResult, 1)
	go func() {
		var res peerResult
		peer := NewStream(peerEnd)

		// scripted peer: read C0+C1, send S0+S1, read C2, send S2 = C1
		if res.c0, res.err = peer.ReadUint8(); res.err != nil {
			done <- res
			return
		}
		if res.c1, res.err = peer.Read(HandshakeSize); res.err != nil {
			done <- res
			return
		}

		res.s1 = make([]byte, HandshakeSize)
		for i := range res.s1 {
			res.s1[i] = byte(i)
		}
		if res.err = peer.WriteUint8(Version); res.err != nil {
			done <- res
			return
		}
		if res.err = peer.Write(res.s1); res.err != nil {
			done <- res
			return
		}
		if res.err = peer.Flush(); res.err != nil {
			done <- res
			return
		}

		if res.c2, res.err = peer.Read(HandshakeSize); res.err != nil {
			done <- res
			return
		}
		res.err = peer.Write(res.c1)
		if res.err == nil {
			res.err = peer.Flush()
		}
		done <- res
	}()

	require.NoError(t, clientHandshake(NewStream(clientEnd)))

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, uint8(Version), res.c0)
	require.Len(t, res.c1, HandshakeSize)

	// C2 must echo S1 verbatim
	require.Equal(t, res.s1, res.c2)
}

func TestServerHandshake(t *testing.T) {
	serverEnd, peerEnd := newDuplexPair()
	defer serverEnd.Close()
	defer peerEnd.Close()

	serverErr := make(chan error, 1)
	go func() {
		s := NewStream(serverEnd)
		if err := serverHandshakeAccept(s); err != nil {
			serverErr <- err
			return
		}
		serverErr <- serverHandshakeComplete(s)
	}()

	require.NoError(t, clientHandshake(NewStream(peerEnd)))
	require.NoError(t, <-serverErr)
}

func TestServerRejectsBadVersion(t *testing.T) {
	serverEnd, peerEnd := newDuplexPair()
	defer serverEnd.Close()
	defer peerEnd.Close()

	peer := NewStream(peerEnd)
	require.NoError(t, peer.WriteUint8(6))
	require.NoError(t, peer.Write(make([]byte, HandshakeSize)))
	require.NoError(t, peer.Flush())

	err := serverHandshakeAccept(NewStream(serverEnd))
	require.Error(t, err)
}

func TestHandshakePacketRoundTrip(t *testing.T) {
	pkt, err := newHandshakePacket()
	require.NoError(t, err)
	require.Len(t, pkt.Payload, handshakePayloadSize)

	s := NewStream(&bytes.Buffer{})
	require.NoError(t, pkt.encode(s))
	require.NoError(t, s.Flush())

	decoded := &handshakePacket{}
	require.NoError(t, decoded.decode(s))
	require.Equal(t, pkt, decoded)
}
