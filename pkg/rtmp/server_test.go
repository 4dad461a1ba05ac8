package rtmp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// testServerConn builds a server connection over an in-memory duplex end
func testServerConn(end *duplexConn) *ServerConn {
	stream := NewStream(end)
	return &ServerConn{
		ID:     "test-session",
		stream: stream,
		reader: NewReader(stream),
		writer: NewWriter(stream),
		state:  StateWaitingC1,
		logger: testLogger(),
	}
}

func TestServerSessionStateMachine(t *testing.T) {
	serverEnd, clientEnd := newDuplexPair()
	defer serverEnd.Close()

	server := NewServer("127.0.0.1:1935", testLogger())

	var claimed []string
	server.SetHandler(func(conn *ServerConn, msg Message) error {
		soMsg, ok := msg.(*SharedObjectMessage)
		if !ok {
			return nil
		}
		claimed = append(claimed, soMsg.Name)
		return conn.SendSharedObjectUpdate(soMsg.Name, map[string]interface{}{"sparam": "1234567890"})
	})

	conn := testServerConn(serverEnd)
	sessionErr := make(chan error, 1)
	go func() {
		sessionErr <- server.runSession(conn)
	}()

	client := NewClient(ClientConfig{App: "app"}, testLogger())
	require.NoError(t, client.start(clientEnd))

	// the connect exchange advanced the session to the data state
	obs := &recordingObserver{}
	so := NewSharedObject("so_name", obs)
	require.NoError(t, client.UseSharedObject(so))

	msg, err := client.reader.ReadMessage()
	require.NoError(t, err)
	handled, err := so.HandleMessage(msg)
	require.NoError(t, err)
	require.True(t, handled)

	require.True(t, so.UseSuccess)
	require.Equal(t, "1234567890", so.Data["sparam"])
	require.Equal(t, []string{"sparam"}, obs.changes)
	require.Equal(t, []string{"so_name"}, claimed)

	// closing the client ends the session cleanly
	clientEnd.Close()
	require.NoError(t, <-sessionErr)
	require.Equal(t, StateWaitingData, conn.state)
}

func TestServerRejectsNonConnectCommand(t *testing.T) {
	serverEnd, clientEnd := newDuplexPair()
	defer serverEnd.Close()
	defer clientEnd.Close()

	server := NewServer("127.0.0.1:1935", testLogger())
	conn := testServerConn(serverEnd)

	sessionErr := make(chan error, 1)
	go func() {
		sessionErr <- server.runSession(conn)
	}()

	stream := NewStream(clientEnd)
	require.NoError(t, clientHandshake(stream))

	writer := NewWriter(stream)
	require.NoError(t, writer.WriteMessage(&Command{Values: []interface{}{"play", float64(2)}}))
	require.NoError(t, writer.Flush())

	require.Error(t, <-sessionErr)
}

func TestServerAppliesChunkSizeRenegotiation(t *testing.T) {
	serverEnd, clientEnd := newDuplexPair()
	defer serverEnd.Close()

	server := NewServer("127.0.0.1:1935", testLogger())

	received := make(chan []byte, 1)
	server.SetHandler(func(_ *ServerConn, msg Message) error {
		if uc, ok := msg.(*UserControl); ok {
			received <- uc.EventData
		}
		return nil
	})

	conn := testServerConn(serverEnd)
	sessionErr := make(chan error, 1)
	go func() {
		sessionErr <- server.runSession(conn)
	}()

	client := NewClient(ClientConfig{App: "app"}, testLogger())
	require.NoError(t, client.start(clientEnd))

	require.NoError(t, client.writer.SetChunkSize(4096))
	require.NoError(t, client.writer.WriteMessage(&SetChunkSize{ChunkSize: 4096}))
	require.NoError(t, client.writer.Flush())

	// a message larger than the old chunk size arrives intact
	big := make([]byte, 1000)
	for i := range big {
		big[i] = byte(i)
	}

	require.NoError(t, client.writer.WriteMessage(&UserControl{EventType: UserControlStreamBegin, EventData: big}))
	require.NoError(t, client.writer.Flush())

	require.Equal(t, big, <-received)

	clientEnd.Close()
	require.NoError(t, <-sessionErr)
}

func TestSessionStateString(t *testing.T) {
	tests := []struct {
		state    SessionState
		expected string
	}{
		{StateWaitingC1, "WaitingC1"},
		{StateWaitingC2, "WaitingC2"},
		{StateWaitingCommandConnect, "WaitingCommandConnect"},
		{StateWaitingData, "WaitingData"},
	}

	for _, tt := range tests {
		if tt.state.String() != tt.expected {
			t.Errorf("expected %s, got %s", tt.expected, tt.state.String())
		}
	}
}
