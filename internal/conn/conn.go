// Package conn implements the connection state machine over one TCP
// stream to one node: startup negotiation, authentication, per-stream
// request/response correlation, compression, and event dispatch.
//
// The wire model is asynchronous futures; the Go translation is a
// single reader goroutine that demultiplexes replies by stream id onto
// one-shot channels held in a pending table, guarded the same way the
// connection's outbound writer is guarded by a single mutex.
package conn

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nativecql/nativecql/internal/frame"
	"github.com/nativecql/nativecql/internal/protocol"
	"github.com/nativecql/nativecql/internal/streams"
)

// Logger is the minimal sink this package writes diagnostics to.
// *log.Logger and the root package's Logger both satisfy it.
type Logger interface {
	Printf(format string, v ...interface{})
}

// State is the connection's lifecycle stage.
type State int32

const (
	StateNew State = iota
	StateConnecting
	StateStartup
	StateAuthenticating
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateStartup:
		return "startup"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a new Conn.
type Options struct {
	Addr               string
	ProtoVersion       byte // frame.ProtoV1 or frame.ProtoV2
	CQLVersion         string
	CompressionEnabled bool
	Username, Password string
	Keyspace           string
	Logger             Logger
	OnEvent            func(Event)
	OnClose            func(*Conn, error)
	DialTimeout        time.Duration
}

type pendingCall struct {
	resp chan callResponse
}

type callResponse struct {
	header frame.Header
	body   []byte
	err    error
}

// Conn owns one TCP stream to one Cassandra node.
type Conn struct {
	netConn      net.Conn
	protoVersion byte
	compressor   Compressor
	logger       Logger
	onEvent      func(Event)
	onClose      func(*Conn, error)

	streams *streams.Pool

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[int8]*pendingCall

	state atomic.Int32

	closeOnce sync.Once
	closeErr  atomic.Value // error

	remoteAddr net.Addr
}

// Connect dials addr, runs the read loop, and performs startup
// (and authentication, if requested by the server) before returning.
// The connection is StateReady on success.
func Connect(ctx context.Context, opts Options) (*Conn, error) {
	dialer := net.Dialer{Timeout: opts.DialTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("conn: dial %s: %w", opts.Addr, err)
	}
	return newConn(ctx, nc, opts)
}

// newConn drives the state machine over an already-established
// net.Conn, letting tests substitute net.Pipe for a real socket.
func newConn(ctx context.Context, nc net.Conn, opts Options) (*Conn, error) {
	if opts.ProtoVersion == 0 {
		opts.ProtoVersion = frame.ProtoV1
	}
	if opts.CQLVersion == "" {
		opts.CQLVersion = "3.0.5"
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger{}
	}

	c := &Conn{
		netConn:      nc,
		protoVersion: opts.ProtoVersion,
		logger:       opts.Logger,
		onEvent:      opts.OnEvent,
		onClose:      opts.OnClose,
		streams:      streams.New(),
		pending:      make(map[int8]*pendingCall),
		remoteAddr:   nc.RemoteAddr(),
	}
	if opts.CompressionEnabled {
		c.compressor = compressorFor(opts.ProtoVersion, true)
	}
	c.state.Store(int32(StateConnecting))

	go c.readLoop()

	if err := c.startup(ctx, opts); err != nil {
		c.abort(err)
		return nil, err
	}

	if opts.Keyspace != "" {
		body := protocol.EncodeQuery(fmt.Sprintf("USE %s;", opts.Keyspace), c.protoVersion, 0, protocol.QueryOptions{})
		if _, _, err := c.Call(ctx, frame.OpQuery, body); err != nil {
			c.abort(err)
			return nil, fmt.Errorf("conn: USE %s: %w", opts.Keyspace, err)
		}
	}

	c.state.Store(int32(StateReady))
	return c, nil
}

// State reports the connection's current lifecycle stage.
func (c *Conn) State() State { return State(c.state.Load()) }

// RemoteAddr returns the peer address this connection is dialed to,
// used by the coordinator to discover the seed's own identity.
func (c *Conn) RemoteAddr() net.Addr { return c.remoteAddr }

func (c *Conn) startup(ctx context.Context, opts Options) error {
	c.state.Store(int32(StateStartup))

	options := map[string]string{"CQL_VERSION": opts.CQLVersion}
	if c.compressor != nil {
		options["COMPRESSION"] = c.compressor.Name()
	}
	body := frame.New()
	body.PackStringMap(options)

	header, respBody, err := c.Call(ctx, frame.OpStartup, body.Bytes())
	if err != nil {
		return err
	}

	switch header.Opcode {
	case frame.OpReady:
		return nil

	case frame.OpAuthenticate:
		buf := frame.Wrap(respBody)
		class, err := buf.UnpackString()
		if err != nil {
			return fmt.Errorf("conn: authenticate class: %w", err)
		}
		return c.authenticate(ctx, class, opts)

	default:
		return fmt.Errorf("conn: unexpected opcode %s in response to STARTUP", header.Opcode)
	}
}

func (c *Conn) authenticate(ctx context.Context, class string, opts Options) error {
	const passwordAuthenticator = "org.apache.cassandra.auth.PasswordAuthenticator"
	if class != passwordAuthenticator {
		return &AuthUnsupportedError{Class: class}
	}
	if opts.Username == "" {
		return &AuthMissingCredsError{}
	}
	c.state.Store(int32(StateAuthenticating))

	body := frame.New()
	body.PackStringMap(map[string]string{
		"username": opts.Username,
		"password": opts.Password,
	})
	header, _, err := c.Call(ctx, frame.OpCredentials, body.Bytes())
	if err != nil {
		return err
	}
	if header.Opcode != frame.OpReady {
		return fmt.Errorf("conn: unexpected opcode %s in response to CREDENTIALS", header.Opcode)
	}
	return nil
}

// Call sends one request frame and waits for its correlated response.
// It is the single primitive every public operation (query, prepare,
// execute, options, register) is built on.
func (c *Conn) Call(ctx context.Context, opcode frame.Opcode, body []byte) (frame.Header, []byte, error) {
	if State(c.state.Load()) == StateClosed {
		return frame.Header{}, nil, c.closeErrOr(ErrClosed)
	}

	id, err := c.streams.Acquire(ctx.Done())
	if err != nil {
		if err == streams.ErrClosed {
			err = ErrClosed
		}
		return frame.Header{}, nil, fmt.Errorf("conn: acquire stream: %w", err)
	}

	call := &pendingCall{resp: make(chan callResponse, 1)}
	c.pendingMu.Lock()
	c.pending[id] = call
	c.pendingMu.Unlock()

	if err := c.writeFrame(id, opcode, body); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		c.streams.Release(id)
		return frame.Header{}, nil, err
	}

	select {
	case resp := <-call.resp:
		return resp.header, resp.body, resp.err
	case <-ctx.Done():
		// The stream id is released by dispatch when the reply
		// eventually lands, not here: a dropped or cancelled request
		// does not free its stream id until the response arrives, so
		// the caller's own giving up simply discards the result.
		return frame.Header{}, nil, ctx.Err()
	}
}

func (c *Conn) writeFrame(id int8, opcode frame.Opcode, body []byte) error {
	flags := byte(0)
	if c.compressor != nil {
		compressed, err := c.compressor.Compress(body)
		if err == nil && len(compressed) < len(body) {
			body = compressed
			flags |= frame.FlagCompressed
		}
	}

	out := frame.New()
	frame.EncodeHeader(out, frame.Header{
		Version:  frame.RequestVersion(c.protoVersion),
		Flags:    flags,
		StreamID: id,
		Opcode:   opcode,
		Length:   int32(len(body)),
	})
	out.PackRaw(body)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.netConn.Write(out.Bytes())
	if err != nil {
		return fmt.Errorf("conn: write: %w", err)
	}
	return nil
}

// readLoop is the connection's single reader; it runs for the life of
// the socket and demultiplexes replies onto the pending table, or
// dispatches EVENT frames to the registered handler.
func (c *Conn) readLoop() {
	hdrBuf := make([]byte, frame.HeaderSize)
	for {
		if _, err := readFull(c.netConn, hdrBuf); err != nil {
			c.abort(fmt.Errorf("conn: read header: %w", err))
			return
		}
		header, err := frame.DecodeHeader(frame.Wrap(append([]byte(nil), hdrBuf...)))
		if err != nil {
			c.abort(fmt.Errorf("conn: decode header: %w", err))
			return
		}

		body := make([]byte, header.Length)
		if header.Length > 0 {
			if _, err := readFull(c.netConn, body); err != nil {
				c.abort(fmt.Errorf("conn: read body: %w", err))
				return
			}
		}

		if header.Compressed() {
			if c.compressor == nil {
				c.abort(fmt.Errorf("conn: compression flag set with no algorithm negotiated"))
				return
			}
			body, err = c.compressor.Decompress(body)
			if err != nil {
				c.abort(fmt.Errorf("conn: decompress: %w", err))
				return
			}
		}

		if header.Tracing() {
			if len(body) < 16 {
				c.abort(fmt.Errorf("conn: tracing flag set on short body"))
				return
			}
			body = body[16:]
		}

		c.dispatch(header, body)
	}
}

func (c *Conn) dispatch(header frame.Header, body []byte) {
	if header.StreamID == frame.StreamEvent && header.Opcode == frame.OpEvent {
		ev, err := decodeEvent(body)
		if err != nil {
			c.logger.Printf("conn: %v", err)
			return
		}
		if c.onEvent != nil {
			c.onEvent(ev)
		}
		return
	}

	if header.StreamID == 0 {
		// Server-initiated ERROR not correlated to any client request.
		c.logger.Printf("conn: unsolicited server error: %v", decodeServerError(body))
		return
	}

	c.pendingMu.Lock()
	call, ok := c.pending[header.StreamID]
	if ok {
		delete(c.pending, header.StreamID)
	}
	c.pendingMu.Unlock()

	// The id is freed here, on reply, regardless of whether the
	// original caller is still waiting (it may have given up on ctx
	// cancellation). The only other release point is Call itself, when
	// writing the request fails; abrupt close releases no ids.
	c.streams.Release(header.StreamID)

	if !ok {
		return
	}

	resp := callResponse{header: header, body: body}
	if header.Opcode == frame.OpError {
		resp.err = decodeServerError(body)
	}
	call.resp <- resp
}

func readFull(r net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// CloseNow tears the connection down immediately, failing every
// pending and queued request with a uniform error.
func (c *Conn) CloseNow() error {
	c.abort(ErrClosed)
	return nil
}

// CloseWhenIdle waits for every currently pending request to complete,
// refuses new ones, then closes.
func (c *Conn) CloseWhenIdle(ctx context.Context) error {
	c.state.Store(int32(StateClosed))
	for {
		c.pendingMu.Lock()
		n := len(c.pending)
		c.pendingMu.Unlock()
		if n == 0 {
			break
		}
		select {
		case <-time.After(10 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.netConn.Close()
}

func (c *Conn) abort(cause error) {
	c.closeOnce.Do(func() {
		c.closeErr.Store(cause)
		c.state.Store(int32(StateClosed))
		c.netConn.Close()
		c.streams.Close()

		c.pendingMu.Lock()
		pending := c.pending
		c.pending = make(map[int8]*pendingCall)
		c.pendingMu.Unlock()
		for _, call := range pending {
			call.resp <- callResponse{err: ErrClosed}
		}

		if c.onClose != nil {
			c.onClose(c, cause)
		}
	})
}

func (c *Conn) closeErrOr(fallback error) error {
	if v := c.closeErr.Load(); v != nil {
		return v.(error)
	}
	return fallback
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...interface{}) {}

// ErrClosed is delivered to every pending request, and (wrapped) to
// every request still waiting for a stream id, when the connection
// closes. A Call made on an already-closed connection returns the
// error that closed it, or ErrClosed if none was recorded.
var ErrClosed = connError("conn: connection closed")

type connError string

func (e connError) Error() string { return string(e) }

// AuthUnsupportedError reports that the server asked for an
// authenticator this client doesn't implement.
type AuthUnsupportedError struct{ Class string }

func (e *AuthUnsupportedError) Error() string {
	return fmt.Sprintf("conn: unsupported authenticator class %q", e.Class)
}

// AuthMissingCredsError reports that the server requires
// authentication but no username was configured.
type AuthMissingCredsError struct{}

func (*AuthMissingCredsError) Error() string {
	return "conn: server requires credentials, none configured"
}

// ServerError mirrors the ERROR opcode's integer code and message.
type ServerError struct {
	Code    int32
	Message string
}

func (e *ServerError) Error() string { return fmt.Sprintf("conn: server error 0x%04x: %s", e.Code, e.Message) }

func decodeServerError(body []byte) error {
	buf := frame.Wrap(body)
	code, err := buf.UnpackInt()
	if err != nil {
		return fmt.Errorf("conn: malformed ERROR body: %w", err)
	}
	msg, err := buf.UnpackString()
	if err != nil {
		return fmt.Errorf("conn: malformed ERROR body: %w", err)
	}
	return &ServerError{Code: code, Message: msg}
}
