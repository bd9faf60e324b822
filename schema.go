package nativecql

import (
	"context"
	"fmt"
)

// schemaQueryConsistency is what these introspection helpers ask for
// regardless of the cluster's configured default, so they work even
// against a Cluster with no DefaultConsistency set.
var schemaQueryConsistency = ConsistencyOne

// KeyspaceInfo describes one row of system.schema_keyspaces.
type KeyspaceInfo struct {
	Name                string
	DurableWrites       bool
	ReplicationStrategy string
}

// Keyspaces lists every keyspace known to the cluster.
func (c *Cluster) Keyspaces(ctx context.Context) ([]KeyspaceInfo, error) {
	rows, err := c.QueryRows(ctx, "SELECT keyspace_name, durable_writes, strategy_class FROM system.schema_keyspaces", &schemaQueryConsistency, QueryOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]KeyspaceInfo, 0, rows.Count())
	for i := 0; i < rows.Count(); i++ {
		row, err := rows.RowMap(i)
		if err != nil {
			return nil, err
		}
		info := KeyspaceInfo{}
		info.Name, _ = row["keyspace_name"].(string)
		info.DurableWrites, _ = row["durable_writes"].(bool)
		info.ReplicationStrategy, _ = row["strategy_class"].(string)
		out = append(out, info)
	}
	return out, nil
}

// TableInfo describes one row of system.schema_columnfamilies.
type TableInfo struct {
	Keyspace string
	Name     string
	Comment  string
}

// Tables lists every table in keyspace.
func (c *Cluster) Tables(ctx context.Context, keyspace string) ([]TableInfo, error) {
	cql := fmt.Sprintf(
		"SELECT keyspace_name, columnfamily_name, comment FROM system.schema_columnfamilies WHERE keyspace_name = '%s'",
		escapeCQLString(keyspace))
	rows, err := c.QueryRows(ctx, cql, &schemaQueryConsistency, QueryOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]TableInfo, 0, rows.Count())
	for i := 0; i < rows.Count(); i++ {
		row, err := rows.RowMap(i)
		if err != nil {
			return nil, err
		}
		info := TableInfo{}
		info.Keyspace, _ = row["keyspace_name"].(string)
		info.Name, _ = row["columnfamily_name"].(string)
		info.Comment, _ = row["comment"].(string)
		out = append(out, info)
	}
	return out, nil
}

// ColumnInfo describes one row of system.schema_columns.
type ColumnInfo struct {
	Keyspace   string
	Table      string
	Name       string
	Validator  string
	ColumnKind string
}

// Columns lists every column of keyspace.table.
func (c *Cluster) Columns(ctx context.Context, keyspace, table string) ([]ColumnInfo, error) {
	cql := fmt.Sprintf(
		"SELECT keyspace_name, columnfamily_name, column_name, validator, type FROM system.schema_columns WHERE keyspace_name = '%s' AND columnfamily_name = '%s'",
		escapeCQLString(keyspace), escapeCQLString(table))
	rows, err := c.QueryRows(ctx, cql, &schemaQueryConsistency, QueryOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]ColumnInfo, 0, rows.Count())
	for i := 0; i < rows.Count(); i++ {
		row, err := rows.RowMap(i)
		if err != nil {
			return nil, err
		}
		info := ColumnInfo{}
		info.Keyspace, _ = row["keyspace_name"].(string)
		info.Table, _ = row["columnfamily_name"].(string)
		info.Name, _ = row["column_name"].(string)
		info.Validator, _ = row["validator"].(string)
		info.ColumnKind, _ = row["type"].(string)
		out = append(out, info)
	}
	return out, nil
}

// ClusterName returns the cluster_name reported by the primary that
// answers the query.
func (c *Cluster) ClusterName(ctx context.Context) (string, error) {
	rows, err := c.QueryRows(ctx, "SELECT cluster_name FROM system.local", &schemaQueryConsistency, QueryOptions{})
	if err != nil {
		return "", err
	}
	if rows.Count() == 0 {
		return "", &ProtocolError{Op: "cluster_name", Err: fmt.Errorf("system.local returned no rows")}
	}
	row, err := rows.RowMap(0)
	if err != nil {
		return "", err
	}
	name, _ := row["cluster_name"].(string)
	return name, nil
}

// escapeCQLString doubles single quotes, the CQL literal-quoting rule,
// so keyspace/table names can be safely embedded in SELECT ... WHERE
// clauses built by these introspection helpers (schema identifiers,
// never bound as prepared parameters, so this can't route through the
// value codec).
func escapeCQLString(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
