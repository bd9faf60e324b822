package cluster

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nativecql/nativecql/internal/conn"
	"github.com/nativecql/nativecql/internal/frame"
	"github.com/nativecql/nativecql/internal/protocol"
)

// Logger is the minimal sink this package writes diagnostics to.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Config configures a Coordinator. It mirrors the recognized
// configuration options without depending on the root package, which
// imports this one.
type Config struct {
	Hosts              []string
	Port               int
	Username, Password string
	Keyspace           string
	DefaultConsistency uint16
	Primaries          int
	PreferDC           string
	ProtoVersion       byte
	CompressionEnabled bool
	Logger             Logger
	DialTimeout        time.Duration
}

// ClusterError reports that no primary connection is available.
type ClusterError struct{ Reason string }

func (e *ClusterError) Error() string { return "cluster: " + e.Reason }

// Coordinator discovers cluster nodes, maintains primary connections,
// routes queries round-robin, and re-prepares cached statements as
// new primaries come up.
type Coordinator struct {
	cfg   Config
	table *table
	cache *preparedCache

	mu        sync.Mutex
	primaries []*Node
	cursor    int
	watchers  []*Node
	closed    bool

	listenersMu sync.Mutex
	listeners   []func(conn.Event)
}

// NewCoordinator constructs an unconnected Coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Port == 0 {
		cfg.Port = 9042
	}
	if cfg.Primaries <= 0 {
		cfg.Primaries = 1
	}
	if cfg.ProtoVersion == 0 {
		cfg.ProtoVersion = frame.ProtoV1
	}
	if cfg.Logger == nil {
		cfg.Logger = discardLogger{}
	}
	return &Coordinator{
		cfg:   cfg,
		table: newTable(),
		cache: newPreparedCache(),
	}
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...interface{}) {}

func (co *Coordinator) isClosed() bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.closed
}

// Connect dials the configured seeds in order until one succeeds,
// discovers the ring via system.local/system.peers, opens the
// configured number of primaries with data-center preference, and
// registers event watchers.
func (co *Coordinator) Connect(ctx context.Context) error {
	if len(co.cfg.Hosts) == 0 {
		return &ClusterError{Reason: "no host configured"}
	}

	var seedConn *conn.Conn
	var seedHost string
	var lastErr error
	for _, host := range co.cfg.Hosts {
		addr := net.JoinHostPort(host, strconv.Itoa(co.cfg.Port))
		c, err := co.dial(ctx, addr)
		if err != nil {
			lastErr = err
			co.cfg.Logger.Printf("cluster: seed %s: %v", addr, err)
			continue
		}
		seedConn = c
		seedHost = host
		break
	}
	if seedConn == nil {
		return fmt.Errorf("cluster: no seed reachable: %w", lastErr)
	}

	localDC, localRack, err := co.queryLocal(ctx, seedConn)
	if err != nil {
		return fmt.Errorf("cluster: system.local: %w", err)
	}
	seedNode := co.table.getOrAdd(seedHost, localDC, localRack)
	seedNode.markUp(seedConn)

	peers, err := co.queryPeers(ctx, seedConn)
	if err != nil {
		return fmt.Errorf("cluster: system.peers: %w", err)
	}
	for _, p := range peers {
		co.table.getOrAdd(p.addr, p.dc, p.rack)
	}

	order := selectPrimaryOrder(co.table.all(), co.cfg.PreferDC)
	chosen := make([]*Node, 0, co.cfg.Primaries)
	for _, n := range order {
		if len(chosen) >= co.cfg.Primaries {
			break
		}
		if n == seedNode {
			n.setPrimary(true)
			chosen = append(chosen, n)
			continue
		}
		if err := co.connectNode(ctx, n); err != nil {
			co.cfg.Logger.Printf("cluster: connect %s: %v", n.Addr, err)
			continue
		}
		n.setPrimary(true)
		chosen = append(chosen, n)
	}
	if len(chosen) == 0 {
		return &ClusterError{Reason: "no primary could be established"}
	}

	co.mu.Lock()
	co.primaries = chosen
	co.mu.Unlock()

	co.registerWatchers(ctx)
	return nil
}

func (co *Coordinator) dial(ctx context.Context, addr string) (*conn.Conn, error) {
	return conn.Connect(ctx, conn.Options{
		Addr:               addr,
		ProtoVersion:       co.cfg.ProtoVersion,
		CompressionEnabled: co.cfg.CompressionEnabled,
		Username:           co.cfg.Username,
		Password:           co.cfg.Password,
		Keyspace:           co.cfg.Keyspace,
		Logger:             co.cfg.Logger,
		DialTimeout:        co.cfg.DialTimeout,
		OnEvent:            co.handleEvent,
	})
}

// connectNode dials n, wires its close callback to trigger failover,
// re-prepares every live cached query on it, and resolves its
// readiness future.
func (co *Coordinator) connectNode(ctx context.Context, n *Node) error {
	addr := net.JoinHostPort(n.Addr, strconv.Itoa(co.cfg.Port))
	c, err := conn.Connect(ctx, conn.Options{
		Addr:               addr,
		ProtoVersion:       co.cfg.ProtoVersion,
		CompressionEnabled: co.cfg.CompressionEnabled,
		Username:           co.cfg.Username,
		Password:           co.cfg.Password,
		Keyspace:           co.cfg.Keyspace,
		Logger:             co.cfg.Logger,
		DialTimeout:        co.cfg.DialTimeout,
		OnEvent:            co.handleEvent,
		OnClose:            func(_ *conn.Conn, cause error) { co.onNodeClose(n, cause) },
	})
	if err != nil {
		n.markReadyErr(err)
		return err
	}
	if err := co.reprepareAll(ctx, c); err != nil {
		co.cfg.Logger.Printf("cluster: re-prepare on %s: %v", n.Addr, err)
	}
	n.markUp(c)
	return nil
}

func (co *Coordinator) reprepareAll(ctx context.Context, c *conn.Conn) error {
	for _, h := range co.cache.all() {
		body := protocol.EncodePrepare(h.CQL)
		if _, _, err := c.Call(ctx, frame.OpPrepare, body); err != nil {
			return err
		}
	}
	return nil
}

// nextPrimary returns the next primary whose readiness future has
// resolved, advancing the round-robin cursor; if none is ready it
// falls back to the next primary in order regardless.
func (co *Coordinator) nextPrimary() (*Node, error) {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.closed {
		return nil, &ClusterError{Reason: "coordinator is closed"}
	}
	if len(co.primaries) == 0 {
		return nil, &ClusterError{Reason: "no primary available"}
	}
	n := len(co.primaries)
	fallback := co.primaries[co.cursor%n]
	for i := 0; i < n; i++ {
		idx := (co.cursor + i) % n
		cand := co.primaries[idx]
		select {
		case <-cand.Ready():
			if cand.readyErrVal() == nil && cand.Conn() != nil {
				co.cursor = (idx + 1) % n
				return cand, nil
			}
		default:
		}
	}
	co.cursor = (co.cursor + 1) % n
	return fallback, nil
}

// Query sends a QUERY request to the next primary and decodes its
// RESULT body.
func (co *Coordinator) Query(ctx context.Context, cql string, consistency uint16, opts protocol.QueryOptions) (*protocol.Result, error) {
	n, err := co.nextPrimary()
	if err != nil {
		return nil, err
	}
	c := n.Conn()
	if c == nil {
		return nil, &ClusterError{Reason: "chosen primary has no live connection"}
	}
	body := protocol.EncodeQuery(cql, co.cfg.ProtoVersion, consistency, opts)
	header, respBody, err := c.Call(ctx, frame.OpQuery, body)
	if err != nil {
		return nil, err
	}
	if header.Opcode != frame.OpResult {
		return nil, fmt.Errorf("cluster: unexpected opcode %s in response to QUERY", header.Opcode)
	}
	return protocol.DecodeResult(respBody, co.cfg.ProtoVersion)
}

// Prepare returns the cached handle for cql if live, otherwise sends
// PREPARE to every current primary in parallel and caches the first
// completed result.
func (co *Coordinator) Prepare(ctx context.Context, cql string) (*PreparedHandle, error) {
	if co.isClosed() {
		return nil, &ClusterError{Reason: "coordinator is closed"}
	}
	if h, ok := co.cache.get(cql); ok {
		return h, nil
	}

	co.mu.Lock()
	targets := append([]*Node(nil), co.primaries...)
	co.mu.Unlock()
	if len(targets) == 0 {
		return nil, &ClusterError{Reason: "no primary available"}
	}

	body := protocol.EncodePrepare(cql)
	results := make(chan prepareOutcome, len(targets))
	for _, n := range targets {
		go func(n *Node) {
			c := n.Conn()
			if c == nil {
				results <- prepareOutcome{err: &ClusterError{Reason: "primary has no live connection"}}
				return
			}
			header, respBody, err := c.Call(ctx, frame.OpPrepare, body)
			if err != nil {
				results <- prepareOutcome{err: err}
				return
			}
			if header.Opcode != frame.OpResult {
				results <- prepareOutcome{err: fmt.Errorf("cluster: unexpected opcode %s in response to PREPARE", header.Opcode)}
				return
			}
			res, err := protocol.DecodeResult(respBody, co.cfg.ProtoVersion)
			results <- prepareOutcome{res: res, err: err}
		}(n)
	}

	var firstErr error
	for i := 0; i < len(targets); i++ {
		o := <-results
		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		handle := &PreparedHandle{CQL: cql, ID: o.res.Prepared.ID, ParamMetadata: o.res.Prepared.ParamMetadata}
		co.cache.put(handle)
		go drainOutcomes(results, len(targets)-i-1)
		return handle, nil
	}
	return nil, fmt.Errorf("cluster: PREPARE failed on every primary: %w", firstErr)
}

// prepareOutcome is one primary's answer to a fanned-out PREPARE; the
// first success wins, the rest are drained and discarded rather than
// failing the caller.
type prepareOutcome struct {
	res *protocol.Result
	err error
}

func drainOutcomes(ch <-chan prepareOutcome, n int) {
	for i := 0; i < n; i++ {
		<-ch
	}
}

// Execute runs a prepared statement with already-encoded bind values.
func (co *Coordinator) Execute(ctx context.Context, handle *PreparedHandle, values [][]byte, consistency uint16, opts protocol.QueryOptions) (*protocol.Result, error) {
	n, err := co.nextPrimary()
	if err != nil {
		return nil, err
	}
	c := n.Conn()
	if c == nil {
		return nil, &ClusterError{Reason: "chosen primary has no live connection"}
	}
	body := protocol.EncodeExecute(handle.ID, values, co.cfg.ProtoVersion, consistency, opts)
	header, respBody, err := c.Call(ctx, frame.OpExecute, body)
	if err != nil {
		return nil, err
	}
	if header.Opcode != frame.OpResult {
		return nil, fmt.Errorf("cluster: unexpected opcode %s in response to EXECUTE", header.Opcode)
	}
	return protocol.DecodeResult(respBody, co.cfg.ProtoVersion)
}

// ReleasePrepared drops the caller's pin on a cached handle, arming
// its grace-period eviction timer once no callers remain.
func (co *Coordinator) ReleasePrepared(cql string) { co.cache.release(cql) }

// AddEventListener registers fn to receive every server-pushed event
// this coordinator's connections observe, in addition to the
// coordinator's own STATUS_CHANGE/TOPOLOGY_CHANGE handling.
func (co *Coordinator) AddEventListener(fn func(conn.Event)) {
	co.listenersMu.Lock()
	defer co.listenersMu.Unlock()
	co.listeners = append(co.listeners, fn)
}

// Register sends a REGISTER request for the given event types to the
// next primary in round-robin order.
func (co *Coordinator) Register(ctx context.Context, eventTypes []string) error {
	n, err := co.nextPrimary()
	if err != nil {
		return err
	}
	c := n.Conn()
	if c == nil {
		return &ClusterError{Reason: "chosen primary has no live connection"}
	}
	header, respBody, err := c.Call(ctx, frame.OpRegister, protocol.EncodeRegister(eventTypes))
	if err != nil {
		return err
	}
	if header.Opcode != frame.OpReady {
		return fmt.Errorf("cluster: unexpected opcode %s in response to REGISTER: %v", header.Opcode, respBody)
	}
	return nil
}

// CloseWhenIdle drains and closes every connection this coordinator
// owns, refusing new work in the meantime.
func (co *Coordinator) CloseWhenIdle(ctx context.Context) error {
	co.mu.Lock()
	co.closed = true
	nodes := co.table.all()
	co.mu.Unlock()

	var firstErr error
	for _, n := range nodes {
		if c := n.Conn(); c != nil {
			if err := c.CloseWhenIdle(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// CloseNow tears down every connection immediately.
func (co *Coordinator) CloseNow() {
	co.mu.Lock()
	co.closed = true
	nodes := co.table.all()
	co.mu.Unlock()

	for _, n := range nodes {
		if c := n.Conn(); c != nil {
			c.CloseNow()
		}
	}
}
