package rtmp

import (
	"io"
	"net"
	"strconv"

	"github.com/aminofox/rtmplink/pkg/errors"
	"github.com/aminofox/rtmplink/pkg/logger"
)

// ClientConfig holds the connection parameters. They appear verbatim in
// the NetConnection "connect" command object.
type ClientConfig struct {
	IP      string
	Port    int
	TCURL   string
	PageURL string
	SWFURL  string
	App     string
}

// Client is an RTMP client session. A session is single-threaded: all
// reads block until the next whole message is available and all writes
// are flushed explicitly. Closing the connection cancels a blocked read.
type Client struct {
	cfg    ClientConfig
	logger logger.Logger

	conn   net.Conn
	stream *Stream
	reader *Reader
	writer *Writer

	sharedObjects []*SharedObject
}

// NewClient creates a client for the given connection parameters
func NewClient(cfg ClientConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewDefaultLogger(logger.InfoLevel, "text")
	}
	return &Client{
		cfg:    cfg,
		logger: log,
	}
}

// Reader exposes the chunk reader, e.g. to inspect the negotiated inbound
// chunk size.
func (c *Client) Reader() *Reader {
	return c.reader
}

// Connect opens the TCP connection, runs the handshake, sends the
// NetConnection connect command and absorbs the pre-connect control
// messages until the server's _result arrives. Extra connect arguments
// are appended to the command list.
func (c *Client) Connect(params ...interface{}) error {
	addr := net.JoinHostPort(c.cfg.IP, strconv.Itoa(c.cfg.Port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConnectionFailed, "cannot connect to "+addr, err)
	}
	c.conn = conn

	if err := c.start(conn, params...); err != nil {
		conn.Close()
		return err
	}

	c.logger.Info("connected", logger.String("addr", addr), logger.String("app", c.cfg.App))
	return nil
}

// start runs the handshake and connect exchange over an established
// duplex connection.
func (c *Client) start(rw io.ReadWriter, params ...interface{}) error {
	c.stream = NewStream(rw)

	if err := clientHandshake(c.stream); err != nil {
		return err
	}

	c.reader = NewReader(c.stream)
	c.writer = NewWriter(c.stream)

	return c.connect(params...)
}

// connect sends the connect command and runs the pre-connect absorption
// loop.
func (c *Client) connect(params ...interface{}) error {
	values := []interface{}{
		"connect",
		float64(1),
		map[string]interface{}{
			"videoCodecs":    252,
			"audioCodecs":    3191,
			"flashVer":       "WIN 10,1,85,3",
			"app":            c.cfg.App,
			"tcUrl":          c.cfg.TCURL,
			"videoFunction":  1,
			"capabilities":   239,
			"pageUrl":        c.cfg.PageURL,
			"fpad":           false,
			"swfUrl":         c.cfg.SWFURL,
			"objectEncoding": 0,
		},
	}
	values = append(values, params...)

	if err := c.writer.WriteMessage(&Command{Values: values}); err != nil {
		return err
	}
	if err := c.writer.Flush(); err != nil {
		return errors.NewIOError("cannot flush connect command", err)
	}

	for {
		msg, err := c.reader.ReadMessage()
		if err != nil {
			return err
		}
		done, err := c.handlePreConnectMessage(msg)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// handlePreConnectMessage enforces the strict pre-connect policy. The
// reference servers always announce a 2500000 byte window and a stream
// begin for stream 0 before the connect result.
func (c *Client) handlePreConnectMessage(msg Message) (bool, error) {
	switch m := msg.(type) {
	case *Command:
		if len(m.Values) < 4 {
			return false, errors.New(errors.ErrCodeUnexpectedPreConnectMessage,
				"connect result carries too few values")
		}
		if name, ok := m.Values[0].(string); !ok || name != "_result" {
			return false, errors.Newf(errors.ErrCodeUnexpectedPreConnectMessage,
				"unexpected pre-connect command %v", m.Values[0])
		}
		if txID, ok := m.Values[1].(float64); !ok || txID != 1 {
			return false, errors.Newf(errors.ErrCodeUnexpectedPreConnectMessage,
				"connect result for unexpected transaction %v", m.Values[1])
		}
		info, ok := m.Values[3].(map[string]interface{})
		if !ok {
			return false, errors.New(errors.ErrCodeUnexpectedPreConnectMessage,
				"connect result carries no information object")
		}
		if code, _ := info["code"].(string); code != "NetConnection.Connect.Success" {
			return false, errors.Newf(errors.ErrCodeConnectRejected, "connect failed with code %v", info["code"])
		}
		return true, nil

	case *WindowAckSize:
		if m.WindowAckSize != DefaultWindowAckSize {
			return false, errors.Newf(errors.ErrCodeUnexpectedPreConnectMessage,
				"unexpected window ack size %d", m.WindowAckSize)
		}

	case *SetPeerBandwidth:
		if m.WindowAckSize != DefaultPeerBandwidth || m.LimitType != 2 {
			return false, errors.Newf(errors.ErrCodeUnexpectedPreConnectMessage,
				"unexpected peer bandwidth %d/%d", m.WindowAckSize, m.LimitType)
		}

	case *UserControl:
		if m.EventType != UserControlStreamBegin {
			return false, errors.Newf(errors.ErrCodeUnexpectedPreConnectMessage,
				"unexpected user control event %d", m.EventType)
		}
		if string(m.EventData) != "\x00\x00\x00\x00" {
			return false, errors.New(errors.ErrCodeUnexpectedPreConnectMessage,
				"stream begin for unexpected stream")
		}

	case *SetChunkSize:
		if err := c.reader.SetChunkSize(m.ChunkSize); err != nil {
			return false, err
		}
		c.logger.Debug("inbound chunk size updated", logger.Uint32("size", m.ChunkSize))

	default:
		return false, errors.Newf(errors.ErrCodeUnexpectedPreConnectMessage,
			"unexpected pre-connect message %T", msg)
	}

	return false, nil
}

// Call invokes a remote procedure on the server. No response correlation
// is performed.
func (c *Client) Call(procName string, params interface{}, transID float64) error {
	msg := &Command{Values: []interface{}{"call", transID, params}}
	if err := c.writer.WriteMessage(msg); err != nil {
		return err
	}
	return c.writer.Flush()
}

// UseSharedObject subscribes a shared object to server updates and adds
// it to the session's tracked list. Using an already tracked object is a
// no-op.
func (c *Client) UseSharedObject(so *SharedObject) error {
	for _, tracked := range c.sharedObjects {
		if tracked == so {
			return nil
		}
	}
	if err := so.Use(c.writer); err != nil {
		return err
	}
	c.sharedObjects = append(c.sharedObjects, so)
	c.logger.Info("shared object in use", logger.String("name", so.Name))
	return nil
}

// HandleMessages runs the dispatch loop until the stream ends. Messages
// are offered to the ping handler first, then to the tracked shared
// objects in order; an unclaimed message terminates the session.
func (c *Client) HandleMessages() error {
	for {
		msg, err := c.reader.ReadMessage()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		handled, err := c.handleSimpleMessage(msg)
		if err != nil {
			return err
		}
		if handled {
			continue
		}

		for _, so := range c.sharedObjects {
			claimed, err := so.HandleMessage(msg)
			if err != nil {
				return err
			}
			if claimed {
				handled = true
				break
			}
		}

		if !handled {
			return errors.Newf(errors.ErrCodeUnhandledMessage, "no handler for message %T", msg)
		}
	}
}

// handleSimpleMessage answers ping requests with a ping response echoing
// the event data.
func (c *Client) handleSimpleMessage(msg Message) (bool, error) {
	uc, ok := msg.(*UserControl)
	if !ok || uc.EventType != UserControlPingRequest {
		return false, nil
	}

	resp := &UserControl{
		EventType: UserControlPingResponse,
		EventData: uc.EventData,
	}
	if err := c.writer.WriteMessage(resp); err != nil {
		return false, err
	}
	if err := c.writer.Flush(); err != nil {
		return false, errors.NewIOError("cannot flush ping response", err)
	}
	c.logger.Debug("ping answered")
	return true, nil
}

// Close closes the underlying connection. A blocked read in the dispatch
// loop fails with an I/O error afterwards.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
