package protocol

import (
	"testing"

	"github.com/nativecql/nativecql/internal/cqltype"
	"github.com/nativecql/nativecql/internal/frame"
)

func TestFromFrameGlobalTableSpec(t *testing.T) {
	buf := frame.New()
	buf.PackInt(0x00000001) // global_table_spec
	buf.PackInt(2)
	buf.PackString("ks")
	buf.PackString("tbl")
	buf.PackString("a")
	buf.PackShort(uint16(cqltype.TagVarchar))
	buf.PackString("b")
	buf.PackShort(uint16(cqltype.TagInt))

	meta, err := FromFrame(buf, frame.ProtoV1)
	if err != nil {
		t.Fatal(err)
	}
	if len(meta.Columns) != 2 {
		t.Fatalf("column count = %d", len(meta.Columns))
	}
	for _, c := range meta.Columns {
		if c.Keyspace != "ks" || c.Table != "tbl" {
			t.Fatalf("column did not inherit global spec: %+v", c)
		}
	}
}

func TestFromFrameNoMetadata(t *testing.T) {
	buf := frame.New()
	buf.PackInt(0x00000004) // no_metadata
	buf.PackInt(0)

	meta, err := FromFrame(buf, frame.ProtoV1)
	if err != nil {
		t.Fatal(err)
	}
	if len(meta.Columns) != 0 {
		t.Fatalf("expected no columns, got %d", len(meta.Columns))
	}
}

func TestFindColumn(t *testing.T) {
	meta := ColumnMeta{Columns: []Column{
		{Keyspace: "ks", Table: "tbl", Name: "a"},
		{Keyspace: "ks", Table: "tbl", Name: "b"},
	}}
	if meta.FindColumn("b") != 1 {
		t.Fatalf("short name lookup failed")
	}
	if meta.FindColumn("tbl.a") != 0 {
		t.Fatalf("table-qualified lookup failed")
	}
	if meta.FindColumn("ks.tbl.b") != 1 {
		t.Fatalf("fully-qualified lookup failed")
	}
	if meta.FindColumn("nope") != -1 {
		t.Fatalf("expected -1 for unknown column")
	}
}

func TestReadTypeCollections(t *testing.T) {
	buf := frame.New()
	buf.PackShort(uint16(cqltype.TagList))
	buf.PackShort(uint16(cqltype.TagInt))

	typ, err := readType(buf)
	if err != nil {
		t.Fatal(err)
	}
	if typ.Tag != cqltype.TagList || typ.Elem == nil || typ.Elem.Tag != cqltype.TagInt {
		t.Fatalf("got %+v", typ)
	}
}
