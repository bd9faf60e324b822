package nativecql

import (
	"context"
	"errors"
	"fmt"

	"github.com/nativecql/nativecql/internal/cluster"
	"github.com/nativecql/nativecql/internal/conn"
	"github.com/nativecql/nativecql/internal/cqltype"
	"github.com/nativecql/nativecql/internal/frame"
	"github.com/nativecql/nativecql/internal/protocol"
)

// translateErr maps the internal error types the coordinator/connection
// layers return onto the exported taxonomy, so a caller never needs to
// import an internal package to match a server error, an auth failure,
// a cluster-wide unavailability, or an abrupt close.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var se *conn.ServerError
	if errors.As(err, &se) {
		return &ServerError{Code: se.Code, Message: se.Message}
	}
	var ce *cluster.ClusterError
	if errors.As(err, &ce) {
		return &ClusterError{Reason: ce.Reason}
	}
	var au *conn.AuthUnsupportedError
	if errors.As(err, &au) {
		return &AuthError{Reason: fmt.Sprintf("unsupported authenticator class %q", au.Class)}
	}
	var am *conn.AuthMissingCredsError
	if errors.As(err, &am) {
		return &AuthError{Reason: "server requires credentials, none configured"}
	}
	if errors.Is(err, conn.ErrClosed) {
		return ErrConnectionClosed
	}
	return err
}

func encodeBindValues(cols []protocol.Column, values []interface{}) ([][]byte, error) {
	out := make([][]byte, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = nil
			continue
		}
		b, err := cqltype.Encode(cols[i].Type, v)
		if err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("bind parameter %q: %v", cols[i].Name, err)}
		}
		out[i] = b
	}
	return out, nil
}

// Cluster is the top-level handle: a connected coordinator maintaining
// one or more primary connections, round-robin query routing, and a
// shared prepared-statement cache.
type Cluster struct {
	cfg   ClusterConfig
	coord *cluster.Coordinator
}

// NewCluster validates cfg and returns an unconnected Cluster; call
// Connect before issuing any operation.
func NewCluster(cfg ClusterConfig) (*Cluster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	protoVersion := byte(frame.ProtoV1)
	if cfg.CQLVersion == 2 {
		protoVersion = frame.ProtoV2
	}
	coord := cluster.NewCoordinator(cluster.Config{
		Hosts:              cfg.Hosts,
		Port:               cfg.Port,
		Username:           cfg.Username,
		Password:           cfg.Password,
		Keyspace:           cfg.Keyspace,
		DefaultConsistency: uint16(defaultConsistency(cfg)),
		Primaries:          cfg.Primaries,
		PreferDC:           cfg.PreferDC,
		ProtoVersion:       protoVersion,
		CompressionEnabled: true,
		Logger:             loggerAdapter{cfg.Logger},
	})
	return &Cluster{cfg: cfg, coord: coord}, nil
}

func defaultConsistency(cfg ClusterConfig) Consistency {
	if cfg.DefaultConsistency != nil {
		return *cfg.DefaultConsistency
	}
	return ConsistencyOne
}

// loggerAdapter narrows the root Logger to the Printf-only shape the
// internal packages depend on, without either importing the other.
type loggerAdapter struct{ l Logger }

func (a loggerAdapter) Printf(format string, v ...interface{}) {
	if a.l == nil {
		return
	}
	a.l.Printf(format, v...)
}

// Connect dials the configured seeds, discovers the ring, and opens
// the configured number of primary connections.
func (c *Cluster) Connect(ctx context.Context) error {
	return translateErr(c.coord.Connect(ctx))
}

// CloseWhenIdle drains outstanding requests on every connection before
// closing it.
func (c *Cluster) CloseWhenIdle(ctx context.Context) error {
	return translateErr(c.coord.CloseWhenIdle(ctx))
}

// CloseNow tears down every connection immediately, failing any
// outstanding request.
func (c *Cluster) CloseNow() {
	c.coord.CloseNow()
}

func (c *Cluster) consistencyOrDefault(consistency *Consistency) (uint16, error) {
	if consistency != nil {
		return uint16(*consistency), nil
	}
	if c.cfg.DefaultConsistency != nil {
		return uint16(*c.cfg.DefaultConsistency), nil
	}
	return 0, &ConfigError{Reason: "no consistency given and no default_consistency configured"}
}

// QueryOptions carries the protocol v2 knobs a query or execute call
// may set; ignored entirely against a v1 connection.
type QueryOptions struct {
	SkipMetadata      bool
	PageSize          int32
	PagingState       []byte
	SerialConsistency *Consistency
}

func (o QueryOptions) toProtocol() protocol.QueryOptions {
	po := protocol.QueryOptions{
		SkipMetadata: o.SkipMetadata,
		PageSize:     o.PageSize,
		PagingState:  o.PagingState,
	}
	if o.SerialConsistency != nil {
		sc := uint16(*o.SerialConsistency)
		po.SerialConsistency = &sc
	}
	return po
}

// Result mirrors the tagged RESULT union: exactly one field is
// meaningful, selected by Kind.
type Result = protocol.Result

// QueryRows runs cql and requires the result to carry rows, returning
// a *ProtocolError for any other result kind.
func (c *Cluster) QueryRows(ctx context.Context, cql string, consistency *Consistency, opts QueryOptions) (*protocol.RowSet, error) {
	res, err := c.Query(ctx, cql, consistency, opts)
	if err != nil {
		return nil, err
	}
	if res.Kind != protocol.KindRows {
		return nil, &ProtocolError{Op: "query_rows", Err: fmt.Errorf("result kind %d is not rows", res.Kind)}
	}
	return res.Rows, nil
}

// Query sends a QUERY request and returns the decoded RESULT.
func (c *Cluster) Query(ctx context.Context, cql string, consistency *Consistency, opts QueryOptions) (*protocol.Result, error) {
	cons, err := c.consistencyOrDefault(consistency)
	if err != nil {
		return nil, err
	}
	res, err := c.coord.Query(ctx, cql, cons, opts.toProtocol())
	if err != nil {
		return nil, translateErr(err)
	}
	return res, nil
}

// PreparedStatement is a cached prepared query: its server-assigned
// id plus enough metadata to bind positional or named values.
type PreparedStatement struct {
	cluster *Cluster
	handle  *cluster.PreparedHandle
}

// Prepare returns a cached PreparedStatement for cql, sending PREPARE
// to every current primary the first time this text is seen.
func (c *Cluster) Prepare(ctx context.Context, cql string) (*PreparedStatement, error) {
	h, err := c.coord.Prepare(ctx, cql)
	if err != nil {
		return nil, translateErr(err)
	}
	return &PreparedStatement{cluster: c, handle: h}, nil
}

// Release drops this statement's pin on the coordinator's cache,
// arming the entry's grace-period eviction once no other caller holds
// a reference.
func (p *PreparedStatement) Release() {
	p.cluster.coord.ReleasePrepared(p.handle.CQL)
}

// ParamCount reports how many bind parameters this statement expects.
func (p *PreparedStatement) ParamCount() int {
	return len(p.handle.ParamMetadata.Columns)
}

// BindPositional encodes values in declaration order against the
// statement's parameter metadata.
func (p *PreparedStatement) BindPositional(values ...interface{}) ([][]byte, error) {
	cols := p.handle.ParamMetadata.Columns
	if len(values) != len(cols) {
		return nil, &ConfigError{Reason: fmt.Sprintf("expected %d bind values, got %d", len(cols), len(values))}
	}
	return encodeBindValues(cols, values)
}

// BindNamed encodes values by parameter name, rejecting unknown names
// and names that match more than one parameter. A parameter absent
// from values binds null.
func (p *PreparedStatement) BindNamed(values map[string]interface{}) ([][]byte, error) {
	cols := p.handle.ParamMetadata.Columns
	seen := make(map[string]bool, len(values))
	ordered := make([]interface{}, len(cols))
	for i, col := range cols {
		v, ok := values[col.Name]
		if !ok {
			continue
		}
		if seen[col.Name] {
			return nil, &ConfigError{Reason: "bind parameter " + col.Name + " matches more than one parameter"}
		}
		ordered[i] = v
		seen[col.Name] = true
	}
	if len(seen) != len(values) {
		for name := range values {
			if !seen[name] {
				return nil, &ConfigError{Reason: "unknown bind parameter " + name}
			}
		}
	}
	return encodeBindValues(cols, ordered)
}

// Execute runs the prepared statement with already-encoded bind
// values (see BindPositional/BindNamed).
func (c *Cluster) Execute(ctx context.Context, stmt *PreparedStatement, values [][]byte, consistency *Consistency, opts QueryOptions) (*protocol.Result, error) {
	cons, err := c.consistencyOrDefault(consistency)
	if err != nil {
		return nil, err
	}
	res, err := c.coord.Execute(ctx, stmt.handle, values, cons, opts.toProtocol())
	if err != nil {
		return nil, translateErr(err)
	}
	return res, nil
}

// AddEventListener registers fn to receive every server-pushed event
// this cluster's watcher connections observe.
func (c *Cluster) AddEventListener(fn func(conn.Event)) {
	c.coord.AddEventListener(fn)
}

// Register requests server-pushed events of the given types on the
// coordinator's current primary. The coordinator itself always
// watches STATUS_CHANGE/TOPOLOGY_CHANGE/SCHEMA_CHANGE for its own
// bookkeeping regardless of this call.
func (c *Cluster) Register(ctx context.Context, eventTypes []string) error {
	return translateErr(c.coord.Register(ctx, eventTypes))
}
