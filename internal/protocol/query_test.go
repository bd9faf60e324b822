package protocol

import (
	"bytes"
	"testing"

	"github.com/nativecql/nativecql/internal/frame"
)

func TestEncodeQueryV1NoOptions(t *testing.T) {
	got := EncodeQuery("USE test;", frame.ProtoV1, 0 /* ANY */, QueryOptions{})
	want := []byte{
		0x00, 0x00, 0x00, 0x09, 'U', 'S', 'E', ' ', 't', 'e', 's', 't', ';',
		0x00, 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestEncodeQueryV2AppendsOptions(t *testing.T) {
	got := EncodeQuery("SELECT 1", frame.ProtoV2, 1, QueryOptions{})
	if len(got) <= len("SELECT 1")+4+2 {
		t.Fatalf("v2 body missing options tail: % x", got)
	}
	// flags byte immediately follows the consistency short.
	flagsIdx := 4 + len("SELECT 1") + 2
	if got[flagsIdx] != 0 {
		t.Fatalf("expected zero flags with no options set, got %x", got[flagsIdx])
	}
}

func TestEncodeExecuteShape(t *testing.T) {
	id := []byte("0123456789")
	got := EncodeExecute(id, [][]byte{[]byte("v")}, frame.ProtoV1, 1, QueryOptions{})

	want := frame.New()
	want.PackShortBytes(id)
	want.PackShort(1)
	want.PackBytes([]byte("v"))
	want.PackShort(1)

	if !bytes.Equal(got, want.Bytes()) {
		t.Fatalf("got % x, want % x", got, want.Bytes())
	}
}

func TestEncodeExecuteNullValue(t *testing.T) {
	got := EncodeExecute([]byte("id"), [][]byte{nil}, frame.ProtoV1, 0, QueryOptions{})
	buf := frame.Wrap(got)
	if _, err := buf.UnpackShortBytes(); err != nil {
		t.Fatal(err)
	}
	if _, err := buf.UnpackShort(); err != nil {
		t.Fatal(err)
	}
	v, err := buf.UnpackBytes()
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Fatalf("expected null, got %v", v)
	}
}

func TestEncodeRegister(t *testing.T) {
	got := EncodeRegister([]string{"STATUS_CHANGE", "TOPOLOGY_CHANGE"})
	buf := frame.Wrap(got)
	list, err := buf.UnpackStringList()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0] != "STATUS_CHANGE" || list[1] != "TOPOLOGY_CHANGE" {
		t.Fatalf("got %v", list)
	}
}
